package notify_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"testing/synctest"

	"spiderfetch/internal/notify"
	"spiderfetch/pkg/logger"
)

func TestDispatcherOrder(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		d := notify.NewDispatcher(logger.Discard(), 8)

		var (
			mu  sync.Mutex
			got []string
		)

		d.Subscribe(func(e notify.Event) {
			mu.Lock()
			defer mu.Unlock()

			got = append(got, e.Message)
		})

		go d.Run(ctx)

		want := []string{"a", "b", "c", "d"}
		for _, msg := range want {
			d.Emit(notify.Event{Kind: notify.KindStatus, TaskID: "t1", Message: msg})
		}

		synctest.Wait()
		cancel()
		synctest.Wait()

		mu.Lock()
		defer mu.Unlock()

		if !slices.Equal(got, want) {
			t.Errorf("delivered %v, want %v", got, want)
		}
	})
}

func TestDispatcherDropsProgressOnFullBuffer(t *testing.T) {
	d := notify.NewDispatcher(logger.Discard(), 1)

	d.Emit(notify.Event{Kind: notify.KindProgress, Progress: 0.1})
	d.Emit(notify.Event{Kind: notify.KindProgress, Progress: 0.2})

	if got := d.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestDispatcherUnsubscribe(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		d := notify.NewDispatcher(logger.Discard(), 4)

		var first, second int

		unsubscribe := d.Subscribe(func(notify.Event) { first++ })
		d.Subscribe(func(notify.Event) { second++ })

		go d.Run(ctx)

		d.Emit(notify.Event{Kind: notify.KindFinished})
		synctest.Wait()

		unsubscribe()

		d.Emit(notify.Event{Kind: notify.KindFinished})
		synctest.Wait()

		if first != 1 || second != 2 {
			t.Errorf("first=%d second=%d, want 1 and 2", first, second)
		}
	})
}

func TestEmitAfterStopDoesNotBlock(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		d := notify.NewDispatcher(logger.Discard(), 1)

		go d.Run(ctx)

		cancel()
		synctest.Wait()

		d.Emit(notify.Event{Kind: notify.KindStatus})
		d.Emit(notify.Event{Kind: notify.KindStatus})
	})
}
