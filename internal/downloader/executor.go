// Package downloader runs one download task through the engine and turns engine
// events into listener calls.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/engine"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/observability"
)

// Progress is a progress update for the running task.
type Progress struct {
	Fraction float64
	Message  string
	// Stage is the task status the update implies: Downloading or Processing.
	Stage entity.TaskStatus
}

// Stage describes a postprocessing step or a finalized item.
type Stage struct {
	Name          string
	Message       string
	PlaylistIndex int
	// Filepath is the final location of a finalized item.
	Filepath string
}

// Listener receives the events of one task run. Calls happen on the engine goroutine.
type Listener interface {
	OnProgress(p Progress)
	OnStageStarted(s Stage)
	OnStageFinished(s Stage)
	OnWarning(msg string)
	OnError(msg string)
}

// Options configures the executor.
type Options struct {
	// StagingTemplate is the engine output template inside the staging directory.
	StagingTemplate     string
	FFmpegPath          string
	Retries             int
	FragmentRetries     int
	ConcurrentFragments int
	NoCheckCertificates bool
}

// Executor runs download tasks. It is safe for sequential use by one worker.
type Executor struct {
	log     *slog.Logger
	engine  engine.Engine
	metrics *observability.Metrics
	opts    Options
}

// New creates an executor. metrics may be nil.
func New(log *slog.Logger, eng engine.Engine, metrics *observability.Metrics, opts Options) *Executor {
	return &Executor{
		log:     log.With(slog.String("package", "downloader")),
		engine:  eng,
		metrics: metrics,
		opts:    opts,
	}
}

// Run downloads task into its destination and blocks until the engine returns.
//
// Cancellation through the task token returns an error wrapping errs.ErrCancelled.
// A failure reported by the engine is delivered through l.OnError and Run returns nil;
// the caller reconciles the final status. Any other error is returned.
func (e *Executor) Run(ctx context.Context, task entity.Task, l Listener) error {
	log := e.log.With(slog.String("func", "Run"), slog.Any("task", task))

	if task.Token == nil {
		return fmt.Errorf("task %s has no cancellation token", task.ID)
	}

	if err := os.MkdirAll(task.Destination, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if err := task.Token.Check("before download"); err != nil {
		return err
	}

	format := BuildFormat(task.Format, e.opts.FFmpegPath != "")
	if format.NeedsFFmpeg && e.opts.FFmpegPath == "" {
		l.OnWarning(consts.MsgFFmpegMissing)
	}

	l.OnProgress(Progress{Fraction: 0, Message: consts.MsgStartingDownload, Stage: entity.TaskStatusDownloading})

	runCtx, stop := task.Token.Bind(ctx)
	defer stop()

	h := newRun(log, task, format, l, e.metrics)
	req := e.request(task, format)

	log.InfoContext(ctx, "download started", slog.String("format", format.Selector))

	err := e.engine.Download(runCtx, req, h)

	if cerr := task.Token.Check("during download"); cerr != nil {
		log.InfoContext(ctx, "download cancelled", slog.Any("error", err))

		return cerr
	}

	var engErr *engine.Error

	switch {
	case err == nil:
	case errors.As(err, &engErr):
		e.metrics.RecordEngineError()

		msg := fmt.Sprintf(consts.MsgDownloadError, engErr.Msg)
		if task.IsPlaylist {
			msg = fmt.Sprintf(consts.MsgPartialPlaylist, h.processed, h.selected(), msg)
		}

		log.WarnContext(ctx, "engine reported failure", slog.String("error", engErr.Msg), slog.Int("processed", h.processed))
		l.OnError(msg)

		return nil
	default:
		return fmt.Errorf("download: %w", err)
	}

	if selected := h.selected(); selected > 0 && h.processed < selected {
		log.WarnContext(ctx, "fewer items finished than selected",
			slog.Int("processed", h.processed), slog.Int("selected", selected))
	}

	log.InfoContext(ctx, "download finished", slog.Int("processed", h.processed))

	return nil
}

func (e *Executor) request(task entity.Task, f Format) engine.Request {
	return engine.Request{
		URL:                 task.URL,
		OutputTemplate:      e.opts.StagingTemplate,
		Format:              f.Selector,
		MergeOutputFormat:   f.MergeOutputFormat,
		IsPlaylist:          task.IsPlaylist,
		PlaylistItems:       task.PlaylistItems,
		FFmpegLocation:      e.opts.FFmpegPath,
		ExtractAudio:        f.ExtractAudio,
		Retries:             e.opts.Retries,
		FragmentRetries:     e.opts.FragmentRetries,
		ConcurrentFragments: e.opts.ConcurrentFragments,
		NoCheckCertificates: e.opts.NoCheckCertificates,
	}
}
