package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/errs"
)

// Options configures the yt-dlp engine.
type Options struct {
	// Executable is the yt-dlp binary; empty resolves it from PATH.
	Executable   string
	CacheDir     string
	Proxy        string
	ProgressFreq time.Duration

	// must point to a cookies.txt file
	CookieFile string
}

var _ Engine = (*YTdlp)(nil)

// YTdlp drives downloads through go-ytdlp.
type YTdlp struct {
	log  *slog.Logger
	opts Options
}

// NewYTdlp creates a new yt-dlp engine.
func NewYTdlp(log *slog.Logger, opts Options) *YTdlp {
	if opts.ProgressFreq <= 0 {
		opts.ProgressFreq = consts.DefaultProgressFreq
	}

	return &YTdlp{
		log:  log.With(slog.String("package", "engine"), slog.String("engine", consts.EngineYTdlp)),
		opts: opts,
	}
}

func (y *YTdlp) base() *ytdlp.Command {
	cmd := ytdlp.New()

	if y.opts.Executable != "" {
		cmd.SetExecutable(y.opts.Executable)
	}

	if y.opts.CacheDir != "" {
		cmd.CacheDir(y.opts.CacheDir)
	}

	if y.opts.Proxy != "" {
		cmd.Proxy(y.opts.Proxy)
	}

	if y.opts.CookieFile != "" {
		cmd.Cookies(y.opts.CookieFile)
	}

	return cmd
}

func (y *YTdlp) command(req Request) *ytdlp.Command {
	cmd := y.base().
		ForceOverwrites().
		Output(req.OutputTemplate).
		PrintJSON().Print(printAfterMove)

	if req.Format != "" {
		cmd.Format(req.Format)
	}

	if req.MergeOutputFormat != "" {
		cmd.MergeOutputFormat(req.MergeOutputFormat)
	}

	if req.IsPlaylist {
		cmd.YesPlaylist().IgnoreErrors()
	} else {
		cmd.NoPlaylist()
	}

	if req.PlaylistItems != "" {
		cmd.PlaylistItems(req.PlaylistItems)
	}

	if req.FFmpegLocation != "" {
		cmd.FFmpegLocation(req.FFmpegLocation)
	}

	if req.ExtractAudio != nil {
		cmd.ExtractAudio().AudioFormat(req.ExtractAudio.Codec).AudioQuality(req.ExtractAudio.Quality)
	}

	if req.Retries > 0 {
		cmd.Retries(strconv.Itoa(req.Retries))
	}

	if req.FragmentRetries > 0 {
		cmd.FragmentRetries(strconv.Itoa(req.FragmentRetries))
	}

	if req.ConcurrentFragments > 0 {
		cmd.ConcurrentFragments(req.ConcurrentFragments)
	}

	if req.NoCheckCertificates {
		cmd.NoCheckCertificates()
	}

	return cmd
}

// Download runs one download and reports through hooks. Hook errors abort the
// subprocess and are returned as is; engine failures come back as *Error.
func (y *YTdlp) Download(ctx context.Context, req Request, hooks Hooks) error {
	log := y.log.With(slog.String("func", "Download"), slog.String("url", req.URL))

	ctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	var mu sync.Mutex

	tr := newTranslator(req, hooks)

	cmd := y.command(req).ProgressFunc(y.opts.ProgressFreq, func(u ytdlp.ProgressUpdate) {
		mu.Lock()
		defer mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		log.DebugContext(ctx, "ytdlp progress", slog.Any("progress_update", ProgressUpdate{&u}))

		if err := tr.handle(fromYTdlp(u)); err != nil {
			abort(err)
		}
	})

	res, runErr := cmd.Run(ctx, req.URL)

	mu.Lock()
	defer mu.Unlock()

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	if res != nil {
		for _, item := range ParseStdout(res.Stdout) {
			if item.Filepath == "" {
				continue
			}

			if err := tr.finalize(item); err != nil {
				return err
			}
		}
	}

	if runErr != nil {
		log.ErrorContext(ctx, "ytdlp run", slog.Any("error", runErr), slog.Any("result", Result{res}))

		return &Error{Msg: runErrorMessage(res, runErr)}
	}

	log.InfoContext(ctx, "done", slog.Any("result", Result{res}))

	return nil
}

// Extract fetches flat metadata. Failures that still produced JSON carry it in Error.Partial.
func (y *YTdlp) Extract(ctx context.Context, url string, opts ExtractOptions) (*entity.MediaInfo, error) {
	log := y.log.With(slog.String("func", "Extract"), slog.String("url", url))

	cmd := y.base().
		SkipDownload().
		FlatPlaylist().
		DumpSingleJSON().
		IgnoreErrors()

	if opts.PlaylistLimit > 0 {
		cmd.PlaylistItems(fmt.Sprintf("1:%d", opts.PlaylistLimit))
	}

	res, runErr := cmd.Run(ctx, url)
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}

	var info *entity.MediaInfo
	if res != nil {
		info = decodeInfo(res.Stdout)
	}

	if runErr != nil {
		log.WarnContext(ctx, "ytdlp extract", slog.Any("error", runErr), slog.Any("result", Result{res}))

		return nil, &Error{Msg: runErrorMessage(res, runErr), Partial: info}
	}

	if info == nil {
		return nil, errs.ErrNoInfo
	}

	log.DebugContext(ctx, "info extracted", slog.Any("info", *info))

	return info, nil
}

func decodeInfo(stdout string) *entity.MediaInfo {
	stdout = strings.TrimSpace(stdout)
	if stdout == "" {
		return nil
	}

	var info entity.MediaInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		return nil
	}

	return &info
}

func runErrorMessage(res *ytdlp.Result, err error) string {
	if res != nil {
		if msg := CleanError(res.Stderr); msg != "" {
			return msg
		}
	}

	return CleanError(err.Error())
}
