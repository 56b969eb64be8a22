package engine //nolint:testpackage

import (
	"errors"
	"testing"
	"time"

	"spiderfetch/internal/consts"
)

type recordingHooks struct {
	progress []ProgressEvent
	pp       []PostprocessEvent
	err      error
}

func (h *recordingHooks) OnProgress(ev ProgressEvent) error {
	h.progress = append(h.progress, ev)

	return h.err
}

func (h *recordingHooks) OnPostprocess(ev PostprocessEvent) error {
	h.pp = append(h.pp, ev)

	return h.err
}

func TestTranslatorHandle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	started := now.Add(-10 * time.Second)

	tests := []struct {
		name         string
		req          Request
		updates      []update
		wantProgress []string
		wantStages   []string
	}{
		{
			name: "download then merge",
			req:  Request{},
			updates: []update{
				{Status: ytStarting, Filename: "a.f137.mp4"},
				{Status: ytDownloading, Filename: "a.f137.mp4", Downloaded: 50, Total: 100, Started: started},
				{Status: ytFinished, Filename: "a.f137.mp4", Downloaded: 100, Total: 100},
				{Status: ytFinished, Filename: "a.f137.mp4", Downloaded: 100, Total: 100},
				{Status: ytPostProcessing, Filename: "a.f137.mp4"},
				{Status: ytPostProcessing, Filename: "a.f137.mp4"},
			},
			wantProgress: []string{StatusDownloading, StatusDownloading, StatusFinished},
			wantStages:   []string{consts.PPMerger},
		},
		{
			name: "audio extraction",
			req:  Request{ExtractAudio: &AudioExtraction{Codec: "mp3", Quality: "192"}},
			updates: []update{
				{Status: ytDownloading, Filename: "a.webm", Downloaded: 1, Total: 2},
				{Status: ytPostProcessing, Filename: "a.webm"},
			},
			wantProgress: []string{StatusDownloading},
			wantStages:   []string{consts.PPExtractAudio},
		},
		{
			name: "unknown status ignored",
			updates: []update{
				{Status: "weird", Filename: "a.mp4"},
				{Status: ytError, Filename: "a.mp4"},
			},
			wantProgress: []string{StatusError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks := &recordingHooks{}
			tr := newTranslator(tt.req, hooks)
			tr.now = func() time.Time { return now }

			for _, u := range tt.updates {
				if err := tr.handle(u); err != nil {
					t.Fatalf("handle() failed: %v", err)
				}
			}

			if len(hooks.progress) != len(tt.wantProgress) {
				t.Fatalf("got %d progress events, want %d", len(hooks.progress), len(tt.wantProgress))
			}

			for i, ev := range hooks.progress {
				if ev.Status != tt.wantProgress[i] {
					t.Errorf("progress %d status = %q, want %q", i, ev.Status, tt.wantProgress[i])
				}
			}

			if len(hooks.pp) != len(tt.wantStages) {
				t.Fatalf("got %d stage events, want %d", len(hooks.pp), len(tt.wantStages))
			}

			for i, ev := range hooks.pp {
				if ev.Postprocessor != tt.wantStages[i] || ev.Status != PPStatusStarted {
					t.Errorf("stage %d = %+v, want started %s", i, ev, tt.wantStages[i])
				}
			}
		})
	}
}

func TestTranslatorProgressFields(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	hooks := &recordingHooks{}
	tr := newTranslator(Request{}, hooks)
	tr.now = func() time.Time { return now }

	err := tr.handle(update{
		Status: ytDownloading, Filename: "clip.mp4", Title: "Clip", PlaylistIndex: 2, PlaylistCount: 5,
		Downloaded: 1000, Total: 4000, Started: now.Add(-10 * time.Second), ETA: 30 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	ev := hooks.progress[0]
	if ev.Speed != 100 || ev.ETA != 30 || ev.PlaylistIndex != 2 || ev.PlaylistCount != 5 || ev.Title != "Clip" {
		t.Errorf("unexpected event %+v", ev)
	}

	if err := tr.handle(update{Status: ytDownloading, Filename: "other.mp4"}); err != nil {
		t.Fatal(err)
	}

	if got := hooks.progress[1]; got.ETA != -1 || got.Speed != 0 {
		t.Errorf("unknown ETA and speed expected, got %+v", got)
	}
}

func TestTranslatorHookErrorPropagates(t *testing.T) {
	stop := errors.New("stop")
	tr := newTranslator(Request{}, &recordingHooks{err: stop})

	if err := tr.handle(update{Status: ytDownloading, Filename: "a.mp4"}); !errors.Is(err, stop) {
		t.Fatalf("expected hook error, got %v", err)
	}

	if err := tr.finalize(ResultJSON{Title: "A", Filepath: "/s/A.mp4"}); !errors.Is(err, stop) {
		t.Fatalf("expected hook error from finalize, got %v", err)
	}
}

func TestTranslatorFinalize(t *testing.T) {
	hooks := &recordingHooks{}
	tr := newTranslator(Request{}, hooks)

	if err := tr.finalize(ResultJSON{Title: "A", PlaylistIndex: 3, Filepath: "/s/A.mp4"}); err != nil {
		t.Fatal(err)
	}

	got := hooks.pp[0]
	if got.Postprocessor != consts.PPMoveFiles || got.Status != PPStatusFinished || got.PlaylistIndex != 3 || got.Filepath != "/s/A.mp4" {
		t.Errorf("unexpected finalize event %+v", got)
	}
}
