package storage_test

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"spiderfetch/internal/entity"
	"spiderfetch/internal/errs"
	"spiderfetch/internal/storage"
	"spiderfetch/pkg/logger"
	"spiderfetch/pkg/ptr"
)

func newTask(url string) *entity.Task {
	return &entity.Task{TaskRequest: entity.TaskRequest{URL: url, Destination: "/tmp/out", Title: url}}
}

func mustEnqueue(t *testing.T, reg *storage.Registry, url string) string {
	t.Helper()

	id, err := reg.Enqueue(newTask(url))
	if err != nil {
		t.Fatalf("Enqueue(%q) failed: %v", url, err)
	}

	return id
}

func TestEnqueue(t *testing.T) {
	reg := storage.New(logger.Discard())

	if _, err := reg.Enqueue(nil); !errors.Is(err, errs.ErrTaskNil) {
		t.Fatalf("expected ErrTaskNil, got %v", err)
	}

	id := mustEnqueue(t, reg, "https://a")

	task, ok := reg.Get(id)
	if !ok {
		t.Fatal("expected task to be stored")
	}

	if task.Status != entity.TaskStatusPending || task.Token == nil || task.CreatedAt.IsZero() {
		t.Errorf("unexpected stored task %+v", task)
	}

	dup := newTask("https://b")
	dup.ID = id

	if _, err := reg.Enqueue(dup); !errors.Is(err, errs.ErrTaskExists) {
		t.Errorf("expected ErrTaskExists, got %v", err)
	}

	if got := reg.QueueSize(); got != 1 {
		t.Errorf("QueueSize() = %d, want 1", got)
	}
}

func TestTryStartNextFIFO(t *testing.T) {
	reg := storage.New(logger.Discard())

	ids := []string{
		mustEnqueue(t, reg, "https://a"),
		mustEnqueue(t, reg, "https://b"),
		mustEnqueue(t, reg, "https://c"),
	}

	var started []string

	for range ids {
		task, ok := reg.TryStartNext()
		if !ok {
			t.Fatal("expected a task to start")
		}

		if _, again := reg.TryStartNext(); again {
			t.Fatal("second task admitted while one is running")
		}

		if task.Status != entity.TaskStatusRunning {
			t.Errorf("started task status = %s", task.Status)
		}

		started = append(started, task.ID)

		if _, err := reg.FinishRunning(entity.TaskStatusCompleted, ""); err != nil {
			t.Fatalf("FinishRunning() failed: %v", err)
		}
	}

	if !slices.Equal(started, ids) {
		t.Errorf("start order = %v, want %v", started, ids)
	}

	if _, ok := reg.TryStartNext(); ok {
		t.Error("expected empty queue")
	}

	if _, err := reg.FinishRunning(entity.TaskStatusCompleted, ""); !errors.Is(err, errs.ErrNoRunningTask) {
		t.Errorf("expected ErrNoRunningTask, got %v", err)
	}
}

func TestFinishRunning(t *testing.T) {
	tests := []struct {
		name         string
		prepare      func(reg *storage.Registry, id string)
		status       entity.TaskStatus
		errMsg       string
		wantStatus   entity.TaskStatus
		wantError    string
		wantProgress float64
	}{
		{
			name:         "completed forces full progress",
			status:       entity.TaskStatusCompleted,
			wantStatus:   entity.TaskStatusCompleted,
			wantProgress: 1,
		},
		{
			name:       "error keeps message",
			status:     entity.TaskStatusError,
			errMsg:     "boom",
			wantStatus: entity.TaskStatusError,
			wantError:  "boom",
		},
		{
			name: "cancelled clears error",
			prepare: func(reg *storage.Registry, id string) {
				_, _ = reg.Update(id, storage.Patch{Error: ptr.Of("partial")}, false)
			},
			status:     entity.TaskStatusCancelled,
			wantStatus: entity.TaskStatusCancelled,
		},
		{
			name: "forced error is not overwritten",
			prepare: func(reg *storage.Registry, id string) {
				_, _ = reg.Update(id, storage.Patch{
					Status: ptr.Of(entity.TaskStatusError),
					Error:  ptr.Of("crashed"),
				}, true)
			},
			status:     entity.TaskStatusCompleted,
			wantStatus: entity.TaskStatusError,
			wantError:  "crashed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := storage.New(logger.Discard())
			id := mustEnqueue(t, reg, "https://a")

			if _, ok := reg.TryStartNext(); !ok {
				t.Fatal("expected task to start")
			}

			if tt.prepare != nil {
				tt.prepare(reg, id)
			}

			got, err := reg.FinishRunning(tt.status, tt.errMsg)
			if err != nil {
				t.Fatalf("FinishRunning() failed: %v", err)
			}

			if got.Status != tt.wantStatus || got.Error != tt.wantError || got.Progress != tt.wantProgress {
				t.Errorf("got status=%s error=%q progress=%v, want %s %q %v",
					got.Status, got.Error, got.Progress, tt.wantStatus, tt.wantError, tt.wantProgress)
			}

			if _, running := reg.Running(); running {
				t.Error("running slot must be free")
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	reg := storage.New(logger.Discard())
	id := mustEnqueue(t, reg, "https://a")

	if _, err := reg.Update("missing", storage.Patch{}, false); !errors.Is(err, errs.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	applied, err := reg.Update(id, storage.Patch{Progress: ptr.Of(1.7), Message: ptr.Of("hi")}, false)
	if err != nil || !applied {
		t.Fatalf("Update() = %v, %v", applied, err)
	}

	task, _ := reg.Get(id)
	if task.Progress != 1 || task.Message != "hi" {
		t.Errorf("expected clamped progress and message, got %+v", task)
	}

	if _, err := reg.Update(id, storage.Patch{Progress: ptr.Of(-3.0)}, false); err != nil {
		t.Fatal(err)
	}

	if task, _ = reg.Get(id); task.Progress != 0 {
		t.Errorf("negative progress not clamped: %v", task.Progress)
	}
}

func TestUpdateTerminalIsNoop(t *testing.T) {
	for _, status := range []entity.TaskStatus{
		entity.TaskStatusCompleted, entity.TaskStatusError, entity.TaskStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			reg := storage.New(logger.Discard())
			id := mustEnqueue(t, reg, "https://a")
			reg.TryStartNext()

			if _, err := reg.FinishRunning(status, "x"); err != nil {
				t.Fatal(err)
			}

			before, _ := reg.Get(id)

			applied, err := reg.Update(id, storage.Patch{
				Status:   ptr.Of(entity.TaskStatusDownloading),
				Progress: ptr.Of(0.3),
				Message:  ptr.Of("late"),
			}, false)
			if err != nil || applied {
				t.Fatalf("Update() on terminal task = %v, %v", applied, err)
			}

			after, _ := reg.Get(id)
			if after.Status != before.Status || after.Progress != before.Progress || after.Message != before.Message {
				t.Errorf("terminal task changed: %+v -> %+v", before, after)
			}

			applied, _ = reg.Update(id, storage.Patch{Message: ptr.Of("forced")}, true)
			if after, _ = reg.Get(id); !applied || after.Message != "forced" {
				t.Errorf("forced update not applied: %+v", after)
			}
		})
	}
}

func TestCancel(t *testing.T) {
	reg := storage.New(logger.Discard())

	running := mustEnqueue(t, reg, "https://a")
	pending := mustEnqueue(t, reg, "https://b")
	reg.TryStartNext()

	if _, err := reg.Cancel("missing"); !errors.Is(err, errs.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	status, err := reg.Cancel(pending)
	if err != nil || status != entity.TaskStatusCancelled {
		t.Fatalf("Cancel(pending) = %s, %v", status, err)
	}

	if slices.Contains(reg.Pending(), pending) {
		t.Error("cancelled task still in FIFO")
	}

	status, err = reg.Cancel(running)
	if err != nil || status != entity.TaskStatusCancelling {
		t.Fatalf("Cancel(running) = %s, %v", status, err)
	}

	task, _ := reg.Get(running)
	if !task.Token.Cancelled() {
		t.Error("running task token must be set")
	}

	if _, err := reg.Update(running, storage.Patch{Status: ptr.Of(entity.TaskStatusDownloading)}, false); err != nil {
		t.Fatal(err)
	}

	if task, _ = reg.Get(running); task.Status != entity.TaskStatusCancelling {
		t.Errorf("late progress overwrote Cancelling: %s", task.Status)
	}

	if _, err := reg.FinishRunning(entity.TaskStatusCancelled, ""); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{running, pending} {
		for range 2 {
			status, err = reg.Cancel(id)
			if err != nil || status != entity.TaskStatusCancelled {
				t.Errorf("repeated Cancel(%s) = %s, %v", id, status, err)
			}
		}
	}
}

func TestAtMostOneRunning(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	reg := storage.New(logger.Discard())

	var ids []string

	for step := range 500 {
		switch rng.IntN(4) {
		case 0:
			ids = append(ids, mustEnqueue(t, reg, "https://x"))
		case 1:
			if len(ids) > 0 {
				_, _ = reg.Cancel(ids[rng.IntN(len(ids))])
			}
		case 2:
			reg.TryStartNext()
		case 3:
			_, _ = reg.FinishRunning(entity.TaskStatusCompleted, "")
		}

		active := 0

		for _, task := range reg.Tasks() {
			if task.Status.IsActive() || task.Status == entity.TaskStatusCancelling {
				active++
			}
		}

		if active > 1 {
			t.Fatalf("step %d: %d tasks executing at once", step, active)
		}
	}
}

func TestFinishedIDsAndPrune(t *testing.T) {
	reg := storage.New(logger.Discard())

	done := mustEnqueue(t, reg, "https://a")
	cancelled := mustEnqueue(t, reg, "https://b")
	waiting := mustEnqueue(t, reg, "https://c")

	reg.TryStartNext()

	if _, err := reg.FinishRunning(entity.TaskStatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Cancel(cancelled); err != nil {
		t.Fatal(err)
	}

	if got := reg.FinishedIDs(); !slices.Equal(got, []string{done, cancelled}) {
		t.Errorf("FinishedIDs() = %v", got)
	}

	removed := reg.Prune(done, waiting, "missing")
	if !slices.Equal(removed, []string{done}) {
		t.Errorf("Prune() removed %v, want only %s", removed, done)
	}

	if _, ok := reg.Get(waiting); !ok {
		t.Error("unfinished task must survive prune")
	}

	if got := len(reg.Tasks()); got != 2 {
		t.Errorf("len(Tasks()) = %d, want 2", got)
	}
}

func TestPruneKeepsRunningSlot(t *testing.T) {
	reg := storage.New(logger.Discard())
	id := mustEnqueue(t, reg, "https://a")

	if _, ok := reg.TryStartNext(); !ok {
		t.Fatal("expected task to start")
	}

	// a crashed run is forced terminal before the slot is freed
	if _, err := reg.Update(id, storage.Patch{
		Status: ptr.Of(entity.TaskStatusError),
		Error:  ptr.Of("crashed"),
	}, true); err != nil {
		t.Fatal(err)
	}

	if removed := reg.Prune(id); len(removed) != 0 {
		t.Errorf("Prune() removed the running task: %v", removed)
	}

	if removed := reg.PruneFinished(time.Now().Add(time.Hour)); len(removed) != 0 {
		t.Errorf("PruneFinished() removed the running task: %v", removed)
	}

	running, ok := reg.Running()
	if !ok || running.ID != id {
		t.Fatalf("Running() = %+v, %v", running, ok)
	}

	finished, err := reg.FinishRunning(entity.TaskStatusError, "crashed")
	if err != nil {
		t.Fatalf("FinishRunning() failed: %v", err)
	}

	if finished.Status != entity.TaskStatusError || finished.Error != "crashed" {
		t.Errorf("unexpected finished task %+v", finished)
	}

	if removed := reg.Prune(id); !slices.Equal(removed, []string{id}) {
		t.Errorf("Prune() after finish = %v, want [%s]", removed, id)
	}

	if _, ok := reg.Running(); ok {
		t.Error("running slot must be free")
	}
}
