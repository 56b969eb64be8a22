package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/synctest"
	"time"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/engine"
	"spiderfetch/internal/errs"
	"spiderfetch/pkg/logger"
)

type hookLog struct {
	progress []engine.ProgressEvent
	pp       []engine.PostprocessEvent
	onProg   func(ev engine.ProgressEvent) error
}

func (h *hookLog) OnProgress(ev engine.ProgressEvent) error {
	h.progress = append(h.progress, ev)
	if h.onProg != nil {
		return h.onProg(ev)
	}

	return nil
}

func (h *hookLog) OnPostprocess(ev engine.PostprocessEvent) error {
	h.pp = append(h.pp, ev)

	return nil
}

func TestMockDownloadPlaylist(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		staging := t.TempDir()
		mock := engine.NewMock(logger.Discard(), engine.MockOptions{
			Steps:     4,
			ItemTime:  time.Second,
			FailItems: map[int]string{2: "[mock] item 2: Video unavailable"},
		})

		hooks := &hookLog{}

		err := mock.Download(t.Context(), engine.Request{
			URL:            "https://example.com/list",
			OutputTemplate: filepath.Join(staging, "%(title)s.%(ext)s"),
			IsPlaylist:     true,
			PlaylistItems:  "1-3",
		}, hooks)

		var engErr *engine.Error
		if !errors.As(err, &engErr) || engErr.Msg != "[mock] item 2: Video unavailable" {
			t.Fatalf("expected engine error for item 2, got %v", err)
		}

		for _, name := range []string{"Mock Video 1.mp4", "Mock Video 3.mp4"} {
			if _, err := os.Stat(filepath.Join(staging, name)); err != nil {
				t.Errorf("expected staged %s: %v", name, err)
			}
		}

		if _, err := os.Stat(filepath.Join(staging, "Mock Video 2.mp4")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("failed item must not be staged, stat err = %v", err)
		}

		var last int64
		for _, ev := range hooks.progress {
			if ev.AggregateTotal != 3*ev.Total {
				t.Fatalf("aggregate total %d, want %d", ev.AggregateTotal, 3*ev.Total)
			}

			if ev.AggregateDownloaded < last {
				t.Fatalf("aggregate went backwards: %d < %d", ev.AggregateDownloaded, last)
			}

			last = ev.AggregateDownloaded
		}

		moves := 0
		for _, ev := range hooks.pp {
			if ev.Postprocessor == consts.PPMoveFiles {
				moves++
			}
		}

		if moves != 2 {
			t.Errorf("got %d move events, want 2", moves)
		}

		if got := mock.Downloads(); len(got) != 1 || got[0] != "https://example.com/list" {
			t.Errorf("Downloads() = %v", got)
		}
	})
}

func TestMockDownloadAudio(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		staging := t.TempDir()
		mock := engine.NewMock(logger.Discard(), engine.MockOptions{Steps: 2, ItemTime: time.Second})
		hooks := &hookLog{}

		err := mock.Download(t.Context(), engine.Request{
			OutputTemplate: filepath.Join(staging, "%(title)s.%(ext)s"),
			ExtractAudio:   &engine.AudioExtraction{Codec: consts.AudioCodecMP3, Quality: consts.AudioQualityMP3},
		}, hooks)
		if err != nil {
			t.Fatalf("Download() failed: %v", err)
		}

		if _, err := os.Stat(filepath.Join(staging, "Mock Video.mp3")); err != nil {
			t.Errorf("expected staged mp3: %v", err)
		}

		if hooks.pp[0].Postprocessor != consts.PPExtractAudio || hooks.pp[0].Codec != consts.AudioCodecMP3 {
			t.Errorf("unexpected first stage %+v", hooks.pp[0])
		}
	})
}

func TestMockDownloadHookAbort(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := engine.NewMock(logger.Discard(), engine.MockOptions{Steps: 10, ItemTime: time.Second})
		hooks := &hookLog{onProg: func(engine.ProgressEvent) error { return errs.ErrCancelled }}

		err := mock.Download(t.Context(), engine.Request{
			OutputTemplate: filepath.Join(t.TempDir(), "%(title)s.%(ext)s"),
		}, hooks)
		if !errors.Is(err, errs.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}

		if len(hooks.progress) != 1 {
			t.Errorf("expected abort on first event, got %d events", len(hooks.progress))
		}
	})
}

func TestMockDownloadContextCause(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancelCause(t.Context())
		mock := engine.NewMock(logger.Discard(), engine.MockOptions{ItemTime: time.Minute})

		go func() {
			time.Sleep(time.Second)
			cancel(errs.ErrCancelled)
		}()

		err := mock.Download(ctx, engine.Request{
			OutputTemplate: filepath.Join(t.TempDir(), "%(title)s.%(ext)s"),
		}, &hookLog{})
		if !errors.Is(err, errs.ErrCancelled) {
			t.Fatalf("expected cause ErrCancelled, got %v", err)
		}
	})
}

func TestMockExtractAndLinks(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := engine.NewMock(logger.Discard(), engine.MockOptions{LinksErr: errs.ErrNoLinks})

		info, err := mock.Extract(t.Context(), "https://example.com/v", engine.ExtractOptions{})
		if err != nil || info.WebpageURL != "https://example.com/v" {
			t.Fatalf("Extract() = %+v, %v", info, err)
		}

		if _, err := mock.Links(t.Context(), "https://example.com/v", "best"); !errors.Is(err, errs.ErrNoLinks) {
			t.Errorf("expected scripted links error, got %v", err)
		}
	})
}
