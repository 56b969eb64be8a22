//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/downloader"
	"spiderfetch/internal/engine"
	"spiderfetch/internal/entity"
	httprouter "spiderfetch/internal/infrastructure/delivery/http"
	"spiderfetch/internal/infrastructure/delivery/http/request"
	"spiderfetch/internal/notify"
	"spiderfetch/internal/observability"
	"spiderfetch/internal/service"
	"spiderfetch/internal/storage"
	"spiderfetch/pkg/logger"
)

type fixture struct {
	client    *http.Client
	url       string
	downloads string
	mock      *engine.Mock
	metrics   *observability.Metrics
}

type apiResponse struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func newFixture(t *testing.T, opts engine.MockOptions) *fixture {
	t.Helper()

	base := t.TempDir()
	downloads := filepath.Join(base, "downloads")
	log := logger.Discard()

	ctx, cancel := context.WithCancel(t.Context())

	metrics := observability.New(nil)
	mock := engine.NewMock(log, opts)
	exec := downloader.New(log, mock, metrics, downloader.Options{
		StagingTemplate: filepath.Join(base, "staging", "%(title)s.%(ext)s"),
		FFmpegPath:      "/usr/bin/ffmpeg",
	})

	dispatcher := notify.NewDispatcher(log, 256)
	go dispatcher.Run(ctx)

	queue := service.New(log, service.Options{PollInterval: 20 * time.Millisecond, ShutdownTimeout: 2 * time.Second},
		storage.New(log), exec, mock, dispatcher, metrics)
	queue.Start(ctx)

	router := httprouter.New(log, queue, dispatcher, metrics.Handler(), request.Defaults{
		Destination: downloads,
		Format:      consts.FormatBestVideo,
	})

	server := httptest.NewServer(router)
	client := server.Client()
	client.Timeout = 5 * time.Second

	t.Cleanup(func() {
		if err := queue.Shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}

		cancel()
		server.Close()
	})

	return &fixture{client: client, url: server.URL, downloads: downloads, mock: mock, metrics: metrics}
}

func (fx *fixture) do(t *testing.T, method, path string, body any) (int, apiResponse) {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequestWithContext(t.Context(), method, fx.url+path, &payload)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	resp, err := fx.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}

	return resp.StatusCode, out
}

func (fx *fixture) addTask(t *testing.T, body map[string]any) string {
	t.Helper()

	status, resp := fx.do(t, http.MethodPost, "/v1/tasks/", body)
	if status != http.StatusAccepted {
		t.Fatalf("add task status %d: %+v", status, resp)
	}

	var data struct {
		ID string `json:"id"`
	}

	if err := json.Unmarshal(resp.Data, &data); err != nil || data.ID == "" {
		t.Fatalf("decode task id from %s: %v", resp.Data, err)
	}

	return data.ID
}

func (fx *fixture) task(t *testing.T, id string) entity.Task {
	t.Helper()

	status, resp := fx.do(t, http.MethodGet, "/v1/tasks/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("get task status %d", status)
	}

	var task entity.Task
	if err := json.Unmarshal(resp.Data, &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}

	return task
}

func (fx *fixture) waitForStatus(t *testing.T, id string, timeout time.Duration, want ...entity.TaskStatus) entity.Task {
	t.Helper()

	deadline := time.Now().Add(timeout)

	for {
		task := fx.task(t, id)

		for _, status := range want {
			if task.Status == status {
				return task
			}
		}

		if time.Now().After(deadline) {
			t.Fatalf("task %s stuck in %s (%s), want %v", id, task.Status, task.Message, want)
		}

		time.Sleep(20 * time.Millisecond)
	}
}
