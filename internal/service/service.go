// Package service is the queue coordinator: the public API front ends use to
// add and cancel downloads, fetch metadata and shut down.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/downloader"
	"spiderfetch/internal/engine"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/errs"
	"spiderfetch/internal/notify"
	"spiderfetch/internal/observability"
	"spiderfetch/internal/storage"
	"spiderfetch/pkg/urls"
)

// Queue is the API exposed to front ends.
type Queue interface {
	// Start launches the worker and the finished-task cleanup. Later calls are no-ops.
	Start(ctx context.Context)

	AddTask(req entity.TaskRequest) (string, error)
	CancelTask(id string) (entity.TaskStatus, error)

	StartInfoFetch(ctx context.Context, url string) error
	CancelFetchInfo() bool
	StartLinkFetch(ctx context.Context, url, format string) error
	CancelLinkFetch() bool

	// Shutdown stops the worker, cancels running work and waits for the worker
	// at most the configured timeout.
	Shutdown() error

	QueueSize() int
	Task(id string) (entity.Task, bool)
	Tasks() []entity.Task
	FinishedIDs() []string
	Prune(ids ...string) []string
}

// Executor runs one task. *downloader.Executor implements it.
type Executor interface {
	Run(ctx context.Context, task entity.Task, l downloader.Listener) error
}

// Options tunes the coordinator.
type Options struct {
	PollInterval      time.Duration
	ShutdownTimeout   time.Duration
	InfoPlaylistLimit int
	FinishedTTL       time.Duration
	CleanupInterval   time.Duration
}

type queue struct {
	log      *slog.Logger
	opts     Options
	registry *storage.Registry
	exec     Executor
	engine   engine.Engine
	emitter  notify.Emitter
	metrics  *observability.Metrics

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	closed    atomic.Bool

	info    fetchSlot
	links   fetchSlot
	fetches sync.WaitGroup
}

var _ Queue = (*queue)(nil)

// New creates a coordinator. metrics may be nil.
func New(log *slog.Logger, opts Options, registry *storage.Registry, exec Executor, eng engine.Engine,
	emitter notify.Emitter, metrics *observability.Metrics,
) Queue {
	if opts.PollInterval <= 0 {
		opts.PollInterval = consts.DefaultPollInterval
	}

	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = consts.DefaultShutdownTimeout
	}

	if opts.InfoPlaylistLimit <= 0 {
		opts.InfoPlaylistLimit = consts.DefaultInfoPlaylistLimit
	}

	if emitter == nil {
		emitter = notify.Discard
	}

	return &queue{
		log:      log.With(slog.String("package", "service")),
		opts:     opts,
		registry: registry,
		exec:     exec,
		engine:   eng,
		emitter:  emitter,
		metrics:  metrics,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (q *queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		q.started.Store(true)

		go q.worker(ctx)

		go q.registry.CleanupFinished(ctx, q.opts.CleanupInterval, q.opts.FinishedTTL, func(ids []string) {
			q.metrics.RecordPruned(len(ids))
		})
	})
}

// AddTask validates req, enqueues a new task and returns its id.
// Validation failures are also reported to the front end as an error status.
func (q *queue) AddTask(req entity.TaskRequest) (string, error) {
	log := q.log.With(slog.String("func", "AddTask"))

	if q.closed.Load() {
		return "", errs.ErrServiceClosed
	}

	req.URL = urls.Normalize(req.URL)
	req.Destination = strings.TrimSpace(req.Destination)

	if err := validate(req); err != nil {
		log.Warn("task rejected", slog.Any("error", err), slog.String("url", req.URL))
		q.emit(notify.Event{Kind: notify.KindStatus, Source: notify.SourceTask, Tag: notify.TagError, Message: consts.MsgTaskRequired, Err: err})

		return "", err
	}

	if strings.TrimSpace(req.Title) == "" {
		req.Title = consts.DefaultTaskTitle
	}

	id, err := q.registry.Enqueue(&entity.Task{TaskRequest: req})
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	q.metrics.RecordTaskCreated()
	q.updateQueueMetrics()

	log.Info("task added", slog.String("task_id", id), slog.String("url", req.URL), slog.Bool("playlist", req.IsPlaylist))

	q.emit(notify.Event{
		Kind:    notify.KindStatus,
		Source:  notify.SourceTask,
		TaskID:  id,
		Tag:     notify.TagInfo,
		Status:  entity.TaskStatusPending,
		Message: fmt.Sprintf(consts.MsgTaskAdded, req.Title),
	})

	q.signal()

	return id, nil
}

func validate(req entity.TaskRequest) error {
	var err error

	if req.URL == "" {
		err = errs.ErrEmptyURL
	}

	if req.Destination == "" {
		err = errors.Join(err, errs.ErrEmptyDestination)
	}

	return err
}

// CancelTask cancels a pending or executing task. Cancelling a finished task is a no-op.
func (q *queue) CancelTask(id string) (entity.TaskStatus, error) {
	prior, _ := q.registry.Get(id)

	status, err := q.registry.Cancel(id)
	if err != nil {
		return "", fmt.Errorf("cancel task %s: %w", id, err)
	}

	switch {
	case prior.Status == entity.TaskStatusPending && status == entity.TaskStatusCancelled:
		q.updateQueueMetrics()

		if task, ok := q.registry.Get(id); ok {
			q.metrics.RecordTaskFinished(string(task.Status), 0)
			q.emitFinal(task)
		}
	case status == entity.TaskStatusCancelling && prior.Status != entity.TaskStatusCancelling:
		q.emit(notify.Event{
			Kind:    notify.KindStatus,
			Source:  notify.SourceTask,
			TaskID:  id,
			Tag:     notify.TagCancelled,
			Status:  status,
			Message: consts.MsgTaskCancelling,
		})
	default:
	}

	return status, nil
}

func (q *queue) Shutdown() error {
	log := q.log.With(slog.String("func", "Shutdown"))

	q.closed.Store(true)
	q.stopOnce.Do(func() { close(q.stop) })

	if running, ok := q.registry.Running(); ok {
		log.Info("cancelling running task", slog.String("task_id", running.ID))
		running.Token.Cancel()
	}

	q.CancelFetchInfo()
	q.CancelLinkFetch()

	if !q.started.Load() {
		return nil
	}

	timer := time.NewTimer(q.opts.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-q.done:
		log.Info("worker stopped")

		return nil
	case <-timer.C:
		log.Warn("worker did not stop in time", slog.Duration("timeout", q.opts.ShutdownTimeout))

		return errs.ErrShutdownTimeout
	}
}

func (q *queue) QueueSize() int {
	return q.registry.QueueSize()
}

func (q *queue) Task(id string) (entity.Task, bool) {
	return q.registry.Get(id)
}

func (q *queue) Tasks() []entity.Task {
	return q.registry.Tasks()
}

func (q *queue) FinishedIDs() []string {
	return q.registry.FinishedIDs()
}

func (q *queue) Prune(ids ...string) []string {
	removed := q.registry.Prune(ids...)
	q.metrics.RecordPruned(len(removed))

	return removed
}

// signal wakes the worker if it is idle.
func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) emit(e notify.Event) {
	q.emitter.Emit(e)
}

// emitFinal sends the terminal status, the final progress and the finished event of a task.
func (q *queue) emitFinal(task entity.Task) {
	status := notify.Event{Kind: notify.KindStatus, Source: notify.SourceTask, TaskID: task.ID, Status: task.Status}

	switch task.Status {
	case entity.TaskStatusCompleted:
		status.Tag, status.Message = notify.TagSuccess, consts.MsgTaskCompleted
	case entity.TaskStatusCancelled:
		status.Tag, status.Message = notify.TagCancelled, consts.MsgTaskCancelled
	default:
		status.Tag, status.Message = notify.TagError, fmt.Sprintf(consts.MsgTaskFailed, task.Error)
		status.Err = errors.New(task.Error)
	}

	q.emit(status)
	q.emit(notify.Event{Kind: notify.KindProgress, Source: notify.SourceTask, TaskID: task.ID, Status: task.Status, Progress: task.Progress})
	q.emit(notify.Event{Kind: notify.KindFinished, Source: notify.SourceTask, TaskID: task.ID, Status: task.Status})
}

func (q *queue) updateQueueMetrics() {
	_, running := q.registry.Running()
	q.metrics.SetQueue(q.registry.QueueSize(), running)
}
