// Package cancel provides a one-shot cooperative cancellation token.
//
// A Token is owned by exactly one task or fetch operation. It can be set from any
// goroutine and is never reset; a new operation gets a new token.
package cancel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"spiderfetch/internal/errs"
)

// Token is a settable flag observed at cooperative checkpoints.
type Token struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// New returns an unset token.
func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the token. Calling it more than once is a no-op.
func (t *Token) Cancel() {
	t.once.Do(func() {
		t.set.Store(true)
		close(t.done)
	})
}

// Cancelled reports whether the token is set.
func (t *Token) Cancelled() bool {
	return t.set.Load()
}

// Done is closed when the token is set.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Check returns an error wrapping errs.ErrCancelled if the token is set.
// stage describes the checkpoint and ends up in the error text.
func (t *Token) Check(stage string) error {
	if !t.Cancelled() {
		return nil
	}

	if stage == "" {
		return errs.ErrCancelled
	}

	return fmt.Errorf("%w %s", errs.ErrCancelled, stage)
}

// Bind derives a context that is cancelled with cause errs.ErrCancelled once the token is set.
// The returned stop func releases the watcher and must be called.
func (t *Token) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	if t.Cancelled() {
		cancel(errs.ErrCancelled)

		return ctx, func() { cancel(context.Canceled) }
	}

	go func() {
		select {
		case <-t.done:
			cancel(errs.ErrCancelled)
		case <-ctx.Done():
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}
