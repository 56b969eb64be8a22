// Package logger builds the application slog logger.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ErrOptionsRequired is returned when New is called without options.
var ErrOptionsRequired = errors.New("logger options are required")

// Options configures the logger.
type Options struct {
	AddSource bool
	Level     string
	// Format is FormatJSON or FormatText. Unknown values fall back to JSON.
	Format string
	// Writer defaults to os.Stderr so stdout stays free for the console front end.
	Writer io.Writer
}

// New builds a logger and installs it as the slog default.
// An unknown level is reported but the logger is still returned at info level.
func New(opt *Options) (*slog.Logger, error) {
	if opt == nil {
		return nil, ErrOptionsRequired
	}

	level, err := ParseLevel(opt.Level)

	opts := &slog.HandlerOptions{
		AddSource: opt.AddSource,
		Level:     level,
	}

	out := opt.Writer
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler

	switch strings.ToLower(opt.Format) {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log, err
}

// ParseLevel converts a string level to slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", level)
	}
}

// Discard returns a logger that drops every record. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
