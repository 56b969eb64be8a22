// Package console renders queue events on a terminal: one progress bar for the
// running task and a status line for everything else.
package console

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"spiderfetch/internal/entity"
	"spiderfetch/internal/notify"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

const (
	barMax      = 1000
	barWidth    = 30
	barThrottle = 100 * time.Millisecond
)

// TaskLookup returns a copy of a task by id.
type TaskLookup func(id string) (entity.Task, bool)

// Renderer is a notify.Handler target. It is called from the single dispatcher goroutine
// but guards its state anyway so tests can drive it directly.
type Renderer struct {
	log    *slog.Logger
	out    io.Writer
	lookup TaskLookup

	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar // task id : bar
}

// New creates a renderer writing to out.
func New(log *slog.Logger, out io.Writer, lookup TaskLookup) *Renderer {
	return &Renderer{
		log:    log.With(slog.String("package", "console")),
		out:    out,
		lookup: lookup,
		bars:   make(map[string]*progressbar.ProgressBar),
	}
}

// Handle renders one event.
func (r *Renderer) Handle(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Source {
	case notify.SourceTask:
		r.task(e)
	case notify.SourceInfo:
		r.info(e)
	case notify.SourceLinks:
		r.links(e)
	}
}

func (r *Renderer) task(e notify.Event) {
	switch e.Kind {
	case notify.KindProgress:
		bar := r.bar(e.TaskID)
		if err := bar.Set(int(e.Progress * barMax)); err != nil {
			r.log.Debug("progress bar set", slog.Any("error", err))
		}
	case notify.KindStatus:
		// progress text is already shown by the bar
		if e.Tag == notify.TagProgress {
			return
		}

		r.printf("%s %s: %s", marker(e.Tag), r.title(e.TaskID), e.Message)
	case notify.KindFinished:
		if bar, ok := r.bars[e.TaskID]; ok {
			_ = bar.Exit()

			delete(r.bars, e.TaskID)
		}

		r.summary(e.TaskID)
	}
}

func (r *Renderer) bar(id string) *progressbar.ProgressBar {
	if bar, ok := r.bars[id]; ok {
		return bar
	}

	bar := progressbar.NewOptions(barMax,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(r.title(id)),
		progressbar.OptionSetWidth(barWidth),
		progressbar.OptionThrottle(barThrottle),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	r.bars[id] = bar

	return bar
}

func (r *Renderer) summary(id string) {
	task, ok := r.lookup(id)
	if !ok {
		return
	}

	line := fmt.Sprintf("%s %s: %s", statusMarker(task.Status), task.Title, task.Status)

	if !task.StartedAt.IsZero() && task.FinishedAt.After(task.StartedAt) {
		line += " after " + strings.TrimSpace(humanize.RelTime(task.StartedAt, task.FinishedAt, "", ""))
	}

	if task.Error != "" {
		line += " (" + task.Error + ")"
	}

	r.printf("%s", line)
}

func (r *Renderer) info(e notify.Event) {
	switch e.Kind {
	case notify.KindStatus:
		r.printf("%s %s", marker(e.Tag), e.Message)
	case notify.KindFinished:
		if e.Info == nil {
			return
		}

		line := "  " + e.Info.Title
		if e.Info.IsPlaylist() {
			line += fmt.Sprintf(" (%s entries)", humanize.Comma(int64(len(e.Info.Entries))))
		}

		r.printf("%s", line)
	case notify.KindProgress:
	}
}

func (r *Renderer) links(e notify.Event) {
	switch e.Kind {
	case notify.KindStatus:
		r.printf("%s %s", marker(e.Tag), e.Message)
	case notify.KindFinished:
		for _, link := range e.Links {
			r.printf("%s", link)
		}
	case notify.KindProgress:
	}
}

// printf writes a full line above any visible bar.
func (r *Renderer) printf(format string, args ...any) {
	for _, bar := range r.bars {
		_ = bar.Clear()
	}

	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *Renderer) title(id string) string {
	if task, ok := r.lookup(id); ok && task.Title != "" {
		return task.Title
	}

	return id
}

func marker(tag notify.Tag) string {
	switch tag {
	case notify.TagError:
		return "[x]"
	case notify.TagWarning:
		return "[!]"
	case notify.TagSuccess:
		return "[+]"
	case notify.TagCancelled:
		return "[-]"
	case notify.TagInfo, notify.TagProgress, notify.TagStage:
		return "[*]"
	default:
		return "[*]"
	}
}

func statusMarker(status entity.TaskStatus) string {
	switch status {
	case entity.TaskStatusCompleted:
		return marker(notify.TagSuccess)
	case entity.TaskStatusCancelled:
		return marker(notify.TagCancelled)
	case entity.TaskStatusError:
		return marker(notify.TagError)
	default:
		return marker(notify.TagInfo)
	}
}
