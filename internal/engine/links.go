package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"spiderfetch/internal/errs"
)

const defaultExecutable = "yt-dlp"

// printURLs is what -g prints.
const printURLs = "urls"

func (y *YTdlp) linksCommand(format string) *ytdlp.Command {
	cmd := y.base().
		IgnoreErrors().
		NoCheckCertificates().
		Print(printURLs)

	if format != "" {
		cmd.Format(format)
	}

	return cmd
}

// Links returns the direct media URLs yt-dlp prints for url.
// Links printed before a failing playlist item are kept.
func (y *YTdlp) Links(ctx context.Context, url, format string) ([]string, error) {
	bin := y.opts.Executable
	if bin == "" {
		bin = defaultExecutable
	}

	cmd := y.linksCommand(format)

	log := y.log.With(slog.String("func", "Links"), slog.String("url", url))
	log.DebugContext(ctx, "executing", slog.String("executable", bin), slog.String("format", format))

	res, runErr := cmd.Run(ctx, url)
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}

	if notStarted(res, runErr) {
		return nil, fmt.Errorf("%w: %s", errs.ErrBinaryNotFound, bin)
	}

	var links []string
	if res != nil {
		links = parseLinks(res.Stdout)
	}

	if runErr != nil && len(links) == 0 {
		log.ErrorContext(ctx, "ytdlp links", slog.Any("error", runErr), slog.Any("result", Result{res}))

		return nil, &Error{Msg: runErrorMessage(res, runErr)}
	}

	if len(links) == 0 {
		return nil, errs.ErrNoLinks
	}

	log.DebugContext(ctx, "links fetched", slog.Any("result", Result{res}))

	if runErr != nil {
		log.WarnContext(ctx, "yt-dlp exited with errors, keeping partial links",
			slog.Int("links", len(links)), slog.String("stderr", res.Stderr))
	}

	return links, nil
}

// notStarted reports whether the process never ran: the executable is
// missing from PATH, or the configured path does not exist.
func notStarted(res *ytdlp.Result, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, exec.ErrNotFound) {
		return true
	}

	return res == nil || res.ExitCode < 0
}

// parseLinks keeps the http(s) lines of stdout.
func parseLinks(stdout string) []string {
	var links []string

	for _, line := range strings.FieldsFunc(stdout, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			links = append(links, line)
		}
	}

	return links
}
