// Package storage keeps the in-memory task registry: the task map, the pending FIFO and the running slot.
package storage

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"spiderfetch/internal/cancel"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/errs"
	"spiderfetch/pkg/calc"
	"spiderfetch/pkg/gen"
)

// Patch lists the task fields an Update merges. Nil fields are left untouched.
type Patch struct {
	Status   *entity.TaskStatus
	Progress *float64
	Message  *string
	Error    *string
	Title    *string
}

type record struct {
	seq  uint64
	task entity.Task
}

// Registry is the shared queue state. Every field is guarded by mu and all reads return copies.
type Registry struct {
	log *slog.Logger

	mu        sync.Mutex
	seq       uint64
	tasks     map[string]*record // task id : record
	pending   []string           // FIFO of task ids
	runningID string
}

// New creates an empty registry.
func New(log *slog.Logger) *Registry {
	return &Registry{
		log:   log.With(slog.String("package", "storage")),
		tasks: make(map[string]*record),
	}
}

// Enqueue stores task and appends it to the pending FIFO.
// A missing id or token is generated; the stored task always starts Pending.
func (r *Registry) Enqueue(task *entity.Task) (string, error) {
	if task == nil {
		return "", errs.ErrTaskNil
	}

	stored := *task
	if stored.ID == "" {
		stored.ID = gen.NewID()
	}

	if stored.Token == nil {
		stored.Token = cancel.New()
	}

	now := time.Now()
	stored.Status = entity.TaskStatusPending
	stored.Progress = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[stored.ID]; exists {
		return "", errs.ErrTaskExists
	}

	r.seq++
	r.tasks[stored.ID] = &record{seq: r.seq, task: stored}
	r.pending = append(r.pending, stored.ID)

	r.log.Debug("task enqueued", slog.Any("task", stored), slog.Int("pending", len(r.pending)))

	return stored.ID, nil
}

// TryStartNext pops the head of the FIFO when the running slot is free and marks it Running.
// It is the only place a task is admitted to run.
func (r *Registry) TryStartNext() (entity.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runningID != "" {
		return entity.Task{}, false
	}

	for len(r.pending) > 0 {
		id := r.pending[0]
		r.pending = r.pending[1:]

		rec, ok := r.tasks[id]
		if !ok || rec.task.Status != entity.TaskStatusPending {
			continue
		}

		now := time.Now()
		rec.task.Status = entity.TaskStatusRunning
		rec.task.StartedAt = now
		rec.task.UpdatedAt = now
		r.runningID = id

		return rec.task, true
	}

	return entity.Task{}, false
}

// FinishRunning frees the running slot and moves the task to status.
// A task that already reached a terminal state keeps it.
func (r *Registry) FinishRunning(status entity.TaskStatus, errMsg string) (entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runningID == "" {
		return entity.Task{}, errs.ErrNoRunningTask
	}

	id := r.runningID
	r.runningID = ""

	rec, ok := r.tasks[id]
	if !ok {
		return entity.Task{}, errs.ErrTaskNotFound
	}

	if rec.task.Status.IsTerminal() {
		r.log.Debug("task already finalized", slog.String("task_id", id), slog.String("status", string(rec.task.Status)))

		return rec.task, nil
	}

	finish(&rec.task, status, errMsg)

	return rec.task, nil
}

func finish(task *entity.Task, status entity.TaskStatus, errMsg string) {
	now := time.Now()
	task.Status = status
	task.UpdatedAt = now
	task.FinishedAt = now

	switch status {
	case entity.TaskStatusCompleted:
		task.Progress = 1
		task.Error = ""
	case entity.TaskStatusCancelled:
		task.Error = ""
	case entity.TaskStatusError:
		task.Error = errMsg
	default:
	}
}

// Update merges p into the task. It reports whether anything was applied:
// terminal tasks are left alone unless force is set. A Cancelling task keeps
// its status against non-terminal updates.
func (r *Registry) Update(id string, p Patch, force bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[id]
	if !ok {
		return false, errs.ErrTaskNotFound
	}

	task := &rec.task
	if task.Status.IsTerminal() && !force {
		return false, nil
	}

	if p.Status != nil {
		switch next := *p.Status; {
		case next.IsTerminal():
			finish(task, next, task.Error)
		case task.Status == entity.TaskStatusCancelling && !force:
		default:
			task.Status = next
		}
	}

	if p.Progress != nil {
		task.Progress = calc.Clamp(*p.Progress)
	}

	if p.Message != nil {
		task.Message = *p.Message
	}

	if p.Error != nil {
		task.Error = *p.Error
	}

	if p.Title != nil {
		task.Title = *p.Title
	}

	task.UpdatedAt = time.Now()

	return true, nil
}

// Cancel cancels a task according to its status and returns the resulting status.
// Pending tasks leave the FIFO and become Cancelled at once; executing tasks become
// Cancelling and get their token set; terminal tasks are not touched.
func (r *Registry) Cancel(id string) (entity.TaskStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[id]
	if !ok {
		return "", errs.ErrTaskNotFound
	}

	task := &rec.task
	log := r.log.With(slog.String("task_id", id), slog.String("status", string(task.Status)))

	switch {
	case task.Status == entity.TaskStatusPending:
		r.pending = slices.DeleteFunc(r.pending, func(pid string) bool { return pid == id })
		task.Token.Cancel()
		finish(task, entity.TaskStatusCancelled, "")

		log.Info("pending task cancelled")
	case task.Status.IsActive():
		task.Status = entity.TaskStatusCancelling
		task.UpdatedAt = time.Now()
		task.Token.Cancel()

		log.Info("cancellation requested")
	case task.Status == entity.TaskStatusCancelling:
		log.Debug("task is already cancelling")
	default:
		log.Info("cancel ignored: task already finished")
	}

	return task.Status, nil
}

// Get returns a copy of the task.
func (r *Registry) Get(id string) (entity.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[id]
	if !ok {
		return entity.Task{}, false
	}

	return rec.task, true
}

// Running returns a copy of the task holding the running slot.
func (r *Registry) Running() (entity.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[r.runningID]
	if r.runningID == "" || !ok {
		return entity.Task{}, false
	}

	return rec.task, true
}

// Tasks returns copies of all tasks in enqueue order.
func (r *Registry) Tasks() []entity.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.collect(func(entity.Task) bool { return true })
}

// Pending returns the ids waiting in the FIFO, head first.
func (r *Registry) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.pending)
}

// QueueSize counts pending tasks plus the running one.
func (r *Registry) QueueSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.pending)
	if r.runningID != "" {
		size++
	}

	return size
}

// FinishedIDs returns the ids of terminal tasks in enqueue order.
func (r *Registry) FinishedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	finished := r.collect(func(t entity.Task) bool { return t.Status.IsTerminal() })

	ids := make([]string, 0, len(finished))
	for _, task := range finished {
		ids = append(ids, task.ID)
	}

	return ids
}

// Prune removes the given terminal tasks. Unknown and unfinished ids are skipped,
// and so is the task holding the running slot until FinishRunning frees it.
func (r *Registry) Prune(ids ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make([]string, 0, len(ids))

	for _, id := range ids {
		rec, ok := r.tasks[id]
		if !ok || id == r.runningID || !rec.task.Status.IsTerminal() {
			continue
		}

		delete(r.tasks, id)
		removed = append(removed, id)
	}

	return removed
}

// PruneFinished removes terminal tasks that finished before cutoff. The running slot is never pruned.
func (r *Registry) PruneFinished(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string

	for id, rec := range r.tasks {
		if id != r.runningID && rec.task.Status.IsTerminal() && rec.task.FinishedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed = append(removed, id)
		}
	}

	slices.Sort(removed)

	return removed
}

// collect must be called with mu held.
func (r *Registry) collect(keep func(entity.Task) bool) []entity.Task {
	recs := make([]*record, 0, len(r.tasks))

	for _, rec := range r.tasks {
		if keep(rec.task) {
			recs = append(recs, rec)
		}
	}

	slices.SortFunc(recs, func(a, b *record) int { return cmp.Compare(a.seq, b.seq) })

	tasks := make([]entity.Task, 0, len(recs))
	for _, rec := range recs {
		tasks = append(tasks, rec.task)
	}

	return tasks
}
