package console_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"spiderfetch/internal/console"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/notify"
	"spiderfetch/pkg/logger"
)

func lookupOf(tasks ...entity.Task) console.TaskLookup {
	return func(id string) (entity.Task, bool) {
		for _, task := range tasks {
			if task.ID == id {
				return task, true
			}
		}

		return entity.Task{}, false
	}
}

func TestHandleTask(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	task := entity.Task{
		ID:          "t1",
		TaskRequest: entity.TaskRequest{Title: "Mock Video"},
		Status:      entity.TaskStatusCompleted,
		StartedAt:   start,
		FinishedAt:  start.Add(3 * time.Minute),
	}

	var out bytes.Buffer

	r := console.New(logger.Discard(), &out, lookupOf(task))

	for _, e := range []notify.Event{
		{Kind: notify.KindStatus, Source: notify.SourceTask, TaskID: "t1", Tag: notify.TagInfo, Message: "Added to queue: Mock Video"},
		{Kind: notify.KindProgress, Source: notify.SourceTask, TaskID: "t1", Progress: 0.5},
		{Kind: notify.KindStatus, Source: notify.SourceTask, TaskID: "t1", Tag: notify.TagProgress, Message: "Progress: 50.0%"},
		{Kind: notify.KindStatus, Source: notify.SourceTask, TaskID: "t1", Tag: notify.TagWarning, Message: "slow"},
		{Kind: notify.KindStatus, Source: notify.SourceTask, TaskID: "t1", Tag: notify.TagSuccess, Message: "Completed"},
		{Kind: notify.KindFinished, Source: notify.SourceTask, TaskID: "t1"},
	} {
		r.Handle(e)
	}

	got := out.String()

	for _, want := range []string{
		"[*] Mock Video: Added to queue: Mock Video\n",
		"[!] Mock Video: slow\n",
		"[+] Mock Video: Completed\n",
		"[+] Mock Video: completed after 3 minutes\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output misses %q:\n%s", want, got)
		}
	}

	if strings.Contains(got, "Progress: 50.0%") {
		t.Error("progress text must be rendered by the bar only")
	}
}

func TestHandleFailedTask(t *testing.T) {
	task := entity.Task{
		ID:          "t2",
		TaskRequest: entity.TaskRequest{Title: "Broken"},
		Status:      entity.TaskStatusError,
		Error:       "Download Error: Video unavailable",
	}

	var out bytes.Buffer

	r := console.New(logger.Discard(), &out, lookupOf(task))
	r.Handle(notify.Event{Kind: notify.KindFinished, Source: notify.SourceTask, TaskID: "t2"})

	if want := "[x] Broken: error (Download Error: Video unavailable)\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestHandleFetches(t *testing.T) {
	tests := []struct {
		name   string
		events []notify.Event
		want   []string
	}{
		{
			name: "playlist info",
			events: []notify.Event{
				{Kind: notify.KindStatus, Source: notify.SourceInfo, Tag: notify.TagSuccess, Message: "Information fetched successfully."},
				{Kind: notify.KindFinished, Source: notify.SourceInfo, Info: &entity.MediaInfo{
					Type:    "playlist",
					Title:   "Mix",
					Entries: make([]*entity.MediaEntry, 1200),
				}},
			},
			want: []string{"[+] Information fetched successfully.\n", "  Mix (1,200 entries)\n"},
		},
		{
			name: "links",
			events: []notify.Event{
				{Kind: notify.KindStatus, Source: notify.SourceLinks, Tag: notify.TagError, Message: "yt-dlp Error: nope"},
				{Kind: notify.KindFinished, Source: notify.SourceLinks, Links: []string{"https://cdn/a", "https://cdn/b"}},
			},
			want: []string{"[x] yt-dlp Error: nope\n", "https://cdn/a\nhttps://cdn/b\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			r := console.New(logger.Discard(), &out, lookupOf())
			for _, e := range tt.events {
				r.Handle(e)
			}

			for _, want := range tt.want {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output misses %q:\n%s", want, out.String())
				}
			}
		})
	}
}
