package service_test

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/downloader"
	"spiderfetch/internal/engine"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/notify"
	"spiderfetch/internal/service"
	"spiderfetch/internal/storage"
	"spiderfetch/pkg/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Emit(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
}

func (r *recorder) filter(keep func(notify.Event) bool) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.DeleteFunc(slices.Clone(r.events), func(e notify.Event) bool { return !keep(e) })
}

func (r *recorder) finished(source notify.Source, taskID string) []notify.Event {
	return r.filter(func(e notify.Event) bool {
		return e.Kind == notify.KindFinished && e.Source == source && e.TaskID == taskID
	})
}

func (r *recorder) messages(source notify.Source, taskID string) []string {
	var msgs []string

	for _, e := range r.filter(func(e notify.Event) bool {
		return e.Kind == notify.KindStatus && e.Source == source && e.TaskID == taskID
	}) {
		msgs = append(msgs, e.Message)
	}

	return msgs
}

// waitFor polls cond on the fake clock.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	for range 10_000 {
		if cond() {
			return
		}

		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

func taskFinished(rec *recorder, id string) func() bool {
	return func() bool { return len(rec.finished(notify.SourceTask, id)) > 0 }
}

type fixture struct {
	queue service.Queue
	rec   *recorder
}

func newFixture(t *testing.T, eng engine.Engine, exec service.Executor, opts service.Options) fixture {
	t.Helper()

	if exec == nil {
		exec = downloader.New(logger.Discard(), eng, nil, downloader.Options{
			StagingTemplate: filepath.Join(t.TempDir(), "staging", "%(title)s.%(ext)s"),
			FFmpegPath:      "/usr/bin/ffmpeg",
		})
	}

	rec := &recorder{}
	q := service.New(logger.Discard(), opts, storage.New(logger.Discard()), exec, eng, rec, nil)

	return fixture{queue: q, rec: rec}
}

func (f fixture) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	f.queue.Start(ctx)

	t.Cleanup(cancel)
}

func request(t *testing.T, url string) entity.TaskRequest {
	t.Helper()

	return entity.TaskRequest{
		URL:         url,
		Destination: t.TempDir(),
		Format:      consts.FormatBestVideo,
		Title:       url,
	}
}

func mustAdd(t *testing.T, q service.Queue, req entity.TaskRequest) string {
	t.Helper()

	id, err := q.AddTask(req)
	if err != nil {
		t.Fatalf("AddTask(%q) failed: %v", req.URL, err)
	}

	return id
}
