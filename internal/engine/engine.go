// Package engine is the boundary to the external extraction engine.
//
// An Engine runs one blocking download and reports through Hooks. A hook that
// returns an error aborts the download and the error is returned from Download.
package engine

import (
	"context"
	"strings"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/errs"
)

// Progress statuses.
const (
	StatusDownloading = "downloading"
	StatusFinished    = "finished"
	StatusError       = "error"
)

// Postprocess statuses.
const (
	PPStatusStarted  = "started"
	PPStatusFinished = "finished"
)

// Engine downloads media and extracts metadata.
type Engine interface {
	Download(ctx context.Context, req Request, hooks Hooks) error
	Extract(ctx context.Context, url string, opts ExtractOptions) (*entity.MediaInfo, error)
	Links(ctx context.Context, url, format string) ([]string, error)
}

// Request is the engine configuration for one download.
type Request struct {
	URL string
	// OutputTemplate is the staging output template, e.g. /staging/%(title)s.%(ext)s.
	OutputTemplate      string
	Format              string
	MergeOutputFormat   string
	IsPlaylist          bool
	PlaylistItems       string
	FFmpegLocation      string
	ExtractAudio        *AudioExtraction
	Retries             int
	FragmentRetries     int
	ConcurrentFragments int
	NoCheckCertificates bool
}

// AudioExtraction asks for an audio-only postprocessing stage.
type AudioExtraction struct {
	Codec   string
	Quality string
}

// ExtractOptions tunes a metadata extraction.
type ExtractOptions struct {
	PlaylistLimit int
}

// ProgressEvent is one progress hook payload.
type ProgressEvent struct {
	Status        string
	Title         string
	PlaylistIndex int
	PlaylistCount int
	Filepath      string

	Downloaded    int64
	Total         int64
	TotalEstimate int64
	// Aggregate counters span the whole operation when the engine knows them.
	AggregateDownloaded int64
	AggregateTotal      int64

	Speed float64 // bytes per second
	ETA   int64   // seconds, negative when unknown
}

// PostprocessEvent is one postprocessing hook payload.
type PostprocessEvent struct {
	Status        string
	Postprocessor string
	Title         string
	PlaylistIndex int
	Filepath      string
	// Codec is the requested audio codec for audio extraction.
	Codec string
}

// Hooks receives engine events synchronously on the download goroutine.
type Hooks interface {
	OnProgress(ev ProgressEvent) error
	OnPostprocess(ev PostprocessEvent) error
}

// Error is a failure reported by the engine itself.
type Error struct {
	Msg string
	// Partial carries whatever metadata was extracted before the failure.
	Partial *entity.MediaInfo
}

func (e *Error) Error() string {
	return "engine: " + e.Msg
}

// Unwrap makes errors.Is(err, errs.ErrEngine) hold.
func (e *Error) Unwrap() error {
	return errs.ErrEngine
}

// CleanError returns the text after the first engine error prefix, or the last non-empty line.
func CleanError(raw string) string {
	var last string

	for line := range strings.SplitSeq(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if _, msg, ok := strings.Cut(line, consts.EngineErrPrefix); ok {
			return strings.TrimSpace(msg)
		}

		last = line
	}

	return last
}
