// Package notify carries queue events from the worker goroutines to front ends.
//
// Producers call Emit and never block on a slow consumer for progress events;
// a single delivery goroutine (Run) hands events to subscribers in emission order.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"spiderfetch/internal/entity"
)

// Kind is the callback an event maps to.
type Kind string

const (
	KindStatus   Kind = "status"
	KindProgress Kind = "progress"
	KindFinished Kind = "finished"
)

// Tag categorizes a status event so consumers never parse message text.
type Tag string

const (
	TagInfo      Tag = "info"
	TagProgress  Tag = "progress"
	TagStage     Tag = "stage"
	TagWarning   Tag = "warning"
	TagError     Tag = "error"
	TagSuccess   Tag = "success"
	TagCancelled Tag = "cancelled"
)

// Source tells which flow produced an event.
type Source string

const (
	SourceTask  Source = "task"
	SourceInfo  Source = "info"
	SourceLinks Source = "links"
)

// Event is one UI-bound notification.
type Event struct {
	Kind     Kind
	Source   Source
	TaskID   string
	Tag      Tag
	Message  string
	Progress float64
	// Status is the task status at emission time, set for task events.
	Status entity.TaskStatus
	// Info is set on the finished event of a successful info fetch.
	Info *entity.MediaInfo
	// Links is set on the finished event of a successful link fetch.
	Links []string
	Err   error
	Time  time.Time
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (e Event) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(e.Kind)),
		slog.String("source", string(e.Source)),
		slog.String("task_id", e.TaskID),
		slog.String("tag", string(e.Tag)),
		slog.String("message", e.Message),
		slog.Float64("progress", e.Progress),
	)
}

// Emitter accepts events.
type Emitter interface {
	Emit(e Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(e).
func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// Handler receives delivered events on the delivery goroutine.
type Handler func(e Event)

type subscriber struct {
	id      uint64
	handler Handler
}

// Dispatcher is a buffered Emitter with a single delivery goroutine.
// Progress events are dropped when the buffer is full; every other kind waits for room.
type Dispatcher struct {
	log *slog.Logger

	events  chan Event
	done    chan struct{}
	stop    sync.Once
	dropped atomic.Uint64

	mu     sync.RWMutex
	subs   []subscriber
	nextID uint64
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(log *slog.Logger, buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}

	return &Dispatcher{
		log:    log.With(slog.String("package", "notify")),
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Subscribe registers h and returns a func that removes it.
func (d *Dispatcher) Subscribe(h Handler) (unsubscribe func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscriber{id: id, handler: h})
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		for i, s := range d.subs {
			if s.id == id {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)

				break
			}
		}
	}
}

// Emit queues e for delivery. It returns without delivering once the dispatcher has stopped.
func (d *Dispatcher) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	if e.Kind == KindProgress {
		select {
		case d.events <- e:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}

		return
	}

	select {
	case d.events <- e:
	case <-d.done:
		d.log.Debug("event emitted after stop", slog.Any("event", e))
	}
}

// Dropped returns how many progress events were dropped on a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run delivers events until ctx is done, then flushes what is already buffered.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.stop.Do(func() { close(d.done) })

	for {
		select {
		case e := <-d.events:
			d.deliver(e)
		case <-ctx.Done():
			d.stop.Do(func() { close(d.done) })
			d.flush()

			return
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case e := <-d.events:
			d.deliver(e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(e Event) {
	d.mu.RLock()
	subs := make([]subscriber, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(e)
	}
}
