package service

import (
	"log/slog"
	"sync"

	"spiderfetch/internal/downloader"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/notify"
	"spiderfetch/internal/storage"
	"spiderfetch/pkg/calc"
	"spiderfetch/pkg/ptr"
)

var _ downloader.Listener = (*taskListener)(nil)

// taskListener applies executor events of one task to the registry and
// re-emits them tagged with the task id.
type taskListener struct {
	q  *queue
	id string

	mu     sync.Mutex
	errMsg string
}

func newTaskListener(q *queue, id string) *taskListener {
	return &taskListener{q: q, id: id}
}

func (l *taskListener) OnProgress(p downloader.Progress) {
	fraction := calc.Clamp(p.Fraction)

	status, ok := l.update(storage.Patch{Status: ptr.NonZero(p.Stage), Progress: &fraction, Message: &p.Message})
	if !ok {
		return
	}

	l.q.emit(notify.Event{
		Kind:     notify.KindProgress,
		Source:   notify.SourceTask,
		TaskID:   l.id,
		Tag:      notify.TagProgress,
		Status:   status,
		Message:  p.Message,
		Progress: fraction,
	})
}

func (l *taskListener) OnStageStarted(s downloader.Stage) {
	l.status(storage.Patch{Status: ptr.Of(entity.TaskStatusProcessing), Message: &s.Message}, notify.TagStage, s.Message)
}

func (l *taskListener) OnStageFinished(s downloader.Stage) {
	tag := notify.TagStage
	if s.Filepath != "" {
		tag = notify.TagSuccess
	}

	l.status(storage.Patch{Message: &s.Message}, tag, s.Message)
}

func (l *taskListener) OnWarning(msg string) {
	l.status(storage.Patch{Message: &msg}, notify.TagWarning, msg)
}

// OnError records msg as the task failure. The status turns Error when the run is reconciled.
func (l *taskListener) OnError(msg string) {
	l.mu.Lock()
	l.errMsg = msg
	l.mu.Unlock()

	l.status(storage.Patch{Message: &msg, Error: &msg}, notify.TagError, msg)
}

func (l *taskListener) failure() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.errMsg
}

func (l *taskListener) status(p storage.Patch, tag notify.Tag, msg string) {
	status, ok := l.update(p)
	if !ok {
		return
	}

	l.q.emit(notify.Event{Kind: notify.KindStatus, Source: notify.SourceTask, TaskID: l.id, Tag: tag, Status: status, Message: msg})
}

// update applies p and returns the resulting status. Updates to finished tasks are dropped.
func (l *taskListener) update(p storage.Patch) (entity.TaskStatus, bool) {
	applied, err := l.q.registry.Update(l.id, p, false)
	if err != nil {
		l.q.log.Warn("task update failed", slog.String("task_id", l.id), slog.Any("error", err))

		return "", false
	}

	if !applied {
		return "", false
	}

	task, _ := l.q.registry.Get(l.id)

	return task.Status, true
}
