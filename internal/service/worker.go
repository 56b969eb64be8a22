package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/errs"
	"spiderfetch/internal/storage"
	"spiderfetch/pkg/ptr"
)

var errPanic = errors.New("panic")

// worker runs tasks one at a time in FIFO order until Shutdown or ctx is done.
func (q *queue) worker(ctx context.Context) {
	defer close(q.done)

	log := q.log.With(slog.String("func", "worker"))
	log.InfoContext(ctx, "worker started", slog.Duration("poll_interval", q.opts.PollInterval))

	idle := time.NewTimer(q.opts.PollInterval)
	defer idle.Stop()

	for {
		if q.stopping(ctx) {
			log.InfoContext(ctx, "worker stopping")

			return
		}

		task, ok := q.registry.TryStartNext()
		if !ok {
			idle.Reset(q.opts.PollInterval)

			select {
			case <-q.stop:
			case <-ctx.Done():
			case <-q.wake:
			case <-idle.C:
			}

			continue
		}

		if q.stopping(ctx) {
			task.Token.Cancel()
		}

		q.execute(ctx, task)
	}
}

func (q *queue) stopping(ctx context.Context) bool {
	select {
	case <-q.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// execute runs task and reconciles its terminal status. It never panics.
func (q *queue) execute(ctx context.Context, task entity.Task) {
	log := q.log.With(slog.String("func", "execute"), slog.String("task_id", task.ID))
	log.InfoContext(ctx, "task started", slog.Any("task", task))

	q.updateQueueMetrics()

	// a done parent context cancels the task the same way a user would
	stopWatch := context.AfterFunc(ctx, task.Token.Cancel)
	defer stopWatch()

	l := newTaskListener(q, task.ID)
	err := q.run(ctx, task, l)

	status, errMsg := q.reconcile(ctx, task, l, err)

	final, ferr := q.registry.FinishRunning(status, errMsg)
	if ferr != nil {
		log.ErrorContext(ctx, "finish running task", slog.Any("error", ferr))

		return
	}

	q.metrics.RecordTaskFinished(string(final.Status), final.FinishedAt.Sub(final.StartedAt))
	q.updateQueueMetrics()

	log.InfoContext(ctx, "task finished", slog.Any("task", final))

	q.emitFinal(final)
}

func (q *queue) run(ctx context.Context, task entity.Task, l *taskListener) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.ErrorContext(ctx, "executor panicked",
				slog.String("task_id", task.ID), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	return q.exec.Run(ctx, task, l)
}

// reconcile picks the terminal status: a set token wins, then an error reported
// through the listener, then an unexpected error; otherwise the task completed.
func (q *queue) reconcile(ctx context.Context, task entity.Task, l *taskListener, err error) (entity.TaskStatus, string) {
	log := q.log.With(slog.String("func", "reconcile"), slog.String("task_id", task.ID))

	switch {
	case task.Token.Cancelled():
		if err != nil && !errors.Is(err, errs.ErrCancelled) {
			log.DebugContext(ctx, "error after cancellation", slog.Any("error", err))
		}

		return entity.TaskStatusCancelled, ""
	case l.failure() != "":
		return entity.TaskStatusError, l.failure()
	case err != nil:
		msg := fmt.Sprintf(consts.MsgUnexpectedError, err)
		log.ErrorContext(ctx, "task failed unexpectedly", slog.Any("error", err))

		// crash path: pin the error even if a late update raced ahead
		if _, uerr := q.registry.Update(task.ID, storage.Patch{
			Status:  ptr.Of(entity.TaskStatusError),
			Error:   &msg,
			Message: &msg,
		}, true); uerr != nil {
			log.ErrorContext(ctx, "force error status", slog.Any("error", uerr))
		}

		return entity.TaskStatusError, msg
	default:
		return entity.TaskStatusCompleted, ""
	}
}
