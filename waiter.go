package main

import (
	"sync"

	"spiderfetch/internal/entity"
	"spiderfetch/internal/notify"
)

// waiter tracks the work submitted from the command line and closes its
// drained channel once every submitted task and fetch has finished.
type waiter struct {
	mu       sync.Mutex
	sealed   bool
	expected map[string]struct{}
	finished map[string]entity.TaskStatus
	fetches  map[notify.Source]bool // source : done
	failed   int
	done     chan struct{}
	closed   bool
}

func newWaiter() *waiter {
	return &waiter{
		expected: make(map[string]struct{}),
		finished: make(map[string]entity.TaskStatus),
		fetches:  make(map[notify.Source]bool),
		done:     make(chan struct{}),
	}
}

func (w *waiter) expectTask(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expected[id] = struct{}{}
}

func (w *waiter) expectFetch(src notify.Source) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.fetches[src]; !ok {
		w.fetches[src] = false
	}
}

func (w *waiter) fetchDone(src notify.Source) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.fetches[src] = true
	w.check()
}

// observe is a notify.Handler.
func (w *waiter) observe(e notify.Event) {
	if e.Kind != notify.KindFinished {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch e.Source {
	case notify.SourceTask:
		if _, seen := w.finished[e.TaskID]; seen {
			return
		}

		w.finished[e.TaskID] = e.Status
		if e.Status == entity.TaskStatusError {
			w.failed++
		}
	case notify.SourceInfo, notify.SourceLinks:
		if done, ok := w.fetches[e.Source]; ok && !done {
			w.fetches[e.Source] = true
			if e.Err != nil {
				w.failed++
			}
		}
	default:
	}

	w.check()
}

// drained stops accepting expectations and returns a channel closed when all of them are met.
func (w *waiter) drained() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.sealed = true
	w.check()

	return w.done
}

func (w *waiter) failures() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.failed
}

// check must be called with mu held.
func (w *waiter) check() {
	if !w.sealed || w.closed {
		return
	}

	for id := range w.expected {
		if _, ok := w.finished[id]; !ok {
			return
		}
	}

	for _, done := range w.fetches {
		if !done {
			return
		}
	}

	w.closed = true
	close(w.done)
}
