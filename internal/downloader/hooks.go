package downloader

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/engine"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/observability"
	"spiderfetch/pkg/calc"
)

var _ engine.Hooks = (*run)(nil)

// run is the per-task hook state. The engine calls it from one goroutine.
type run struct {
	log     *slog.Logger
	task    entity.Task
	format  Format
	l       Listener
	metrics *observability.Metrics

	lastIndex int
	count     int   // playlist size reported by the engine
	itemTotal int64 // last known size of the current item
	moved     map[int]struct{}
	processed int
}

func newRun(log *slog.Logger, task entity.Task, format Format, l Listener, metrics *observability.Metrics) *run {
	return &run{
		log:     log,
		task:    task,
		format:  format,
		l:       l,
		metrics: metrics,
		moved:   make(map[int]struct{}),
	}
}

// OnProgress handles download progress of the current file.
func (r *run) OnProgress(ev engine.ProgressEvent) error {
	if err := r.task.Token.Check("in progress hook"); err != nil {
		return err
	}

	r.track(ev.PlaylistIndex, ev.PlaylistCount)

	switch ev.Status {
	case engine.StatusFinished:
		fraction := 1.0
		if ev.AggregateTotal > 0 {
			fraction = calc.Fraction(ev.AggregateDownloaded, ev.AggregateTotal)
		}

		r.l.OnProgress(Progress{Fraction: fraction, Message: processingMessage(ev.Filepath), Stage: entity.TaskStatusProcessing})
	case engine.StatusError:
		r.l.OnWarning(consts.MsgEngineError)
	default:
		if ev.Downloaded <= 0 && ev.Total <= 0 && ev.TotalEstimate <= 0 && ev.AggregateTotal <= 0 {
			r.l.OnProgress(Progress{Message: consts.MsgConnecting, Stage: entity.TaskStatusDownloading})

			return nil
		}

		fileFraction := r.fileFraction(ev)

		fraction := fileFraction
		if ev.AggregateTotal > 0 {
			fraction = calc.Fraction(ev.AggregateDownloaded, ev.AggregateTotal)
		}

		r.l.OnProgress(Progress{
			Fraction: fraction,
			Message:  downloadStatus(ev, fileFraction, r.playlist()),
			Stage:    entity.TaskStatusDownloading,
		})
	}

	return nil
}

// OnPostprocess handles postprocessing stages. Merge, audio extraction and the
// final file move trigger finalization of the item.
func (r *run) OnPostprocess(ev engine.PostprocessEvent) error {
	if err := r.task.Token.Check("in postprocess hook"); err != nil {
		return err
	}

	r.track(ev.PlaylistIndex, 0)

	codec := ev.Codec
	if codec == "" && r.format.ExtractAudio != nil {
		codec = r.format.ExtractAudio.Codec
	}

	stage := Stage{Name: ev.Postprocessor, PlaylistIndex: ev.PlaylistIndex}

	switch ev.Status {
	case engine.PPStatusStarted:
		stage.Message = stageMessage(ev.Postprocessor, codec)
		r.l.OnStageStarted(stage)
	case engine.PPStatusFinished:
		switch ev.Postprocessor {
		case consts.PPMerger, consts.PPExtractAudio, consts.PPMoveFiles:
			r.finalize(ev)
		default:
			stage.Message = processingMessage(ev.Filepath)
			r.l.OnStageFinished(stage)
		}
	default:
		r.log.Debug("unknown postprocess status", slog.String("status", ev.Status))
	}

	return nil
}

// track resets the per-item state when the engine moves to a later playlist item.
func (r *run) track(index, count int) {
	if count > 0 {
		r.count = count
	}

	if index > r.lastIndex {
		r.lastIndex = index
		r.itemTotal = 0
		clear(r.moved)
	}
}

func (r *run) fileFraction(ev engine.ProgressEvent) float64 {
	total := ev.Total
	if total <= 0 {
		total = ev.TotalEstimate
	}

	if total > 0 {
		r.itemTotal = total
	}

	return calc.Fraction(ev.Downloaded, r.itemTotal)
}

func (r *run) finalize(ev engine.PostprocessEvent) {
	log := r.log.With(slog.Int("playlist_index", ev.PlaylistIndex), slog.String("source", ev.Filepath))

	if _, done := r.moved[ev.PlaylistIndex]; done {
		log.Debug("item already finalized")

		return
	}

	if ev.Filepath == "" {
		log.Debug("finalize event without a file")

		return
	}

	name := r.finalName(ev)

	dst, err := moveFile(ev.Filepath, r.task.Destination, name)
	switch {
	case errors.Is(err, errSourceGone):
		log.Debug("source already moved")

		return
	case err != nil:
		r.metrics.RecordMoveFailure()

		msg := fmt.Sprintf(consts.MsgMoveFailed, filepath.Base(ev.Filepath), err)
		log.Warn("move to destination failed", slog.Any("error", err))

		if r.task.IsPlaylist {
			r.l.OnWarning(msg)
		} else {
			r.l.OnError(msg)
		}

		return
	}

	r.moved[ev.PlaylistIndex] = struct{}{}
	r.metrics.RecordFileMoved()

	if _, ok := consts.FinalMediaExtensions[strings.ToLower(filepath.Ext(dst))]; ok {
		r.processed++
	}

	log.Info("item finalized", slog.String("destination", dst), slog.Int("processed", r.processed))

	r.l.OnStageFinished(Stage{
		Name:          ev.Postprocessor,
		Message:       consts.MsgCompletedPrefix + strings.TrimSuffix(name, filepath.Ext(name)),
		PlaylistIndex: ev.PlaylistIndex,
		Filepath:      dst,
	})
}

// finalName is "<index>. <title>.<ext>" for playlist items and "<title>.<ext>" otherwise.
func (r *run) finalName(ev engine.PostprocessEvent) string {
	ext := filepath.Ext(ev.Filepath)

	title := ev.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(ev.Filepath), ext)
	}

	if r.task.IsPlaylist && ev.PlaylistIndex > 0 {
		title = fmt.Sprintf("%d. %s", ev.PlaylistIndex, title)
	}

	return Sanitize(title) + ext
}

func (r *run) selected() int {
	switch {
	case r.task.SelectedCount > 0:
		return r.task.SelectedCount
	case !r.task.IsPlaylist:
		return 1
	case r.task.TotalCount > 0:
		return r.task.TotalCount
	default:
		return r.count
	}
}

func (r *run) playlist() playlistState {
	total := r.task.TotalCount
	if total <= 0 {
		total = r.count
	}

	return playlistState{
		enabled:   r.task.IsPlaylist,
		index:     max(r.lastIndex, 1),
		total:     total,
		selected:  r.selected(),
		processed: r.processed,
	}
}

type playlistState struct {
	enabled   bool
	index     int // tracked item shown to the user
	total     int
	selected  int
	processed int
}

func (p playlistState) selectedLine() string {
	if p.selected <= 0 {
		return fmt.Sprintf("Selected: %d finished", p.processed)
	}

	current := min(p.processed+1, p.selected)

	return fmt.Sprintf("Selected: %d of %d (%d remaining)", current, p.selected, max(p.selected-p.processed, 0))
}
