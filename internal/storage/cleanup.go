package storage

import (
	"context"
	"log/slog"
	"time"
)

// CleanupFinished prunes terminal tasks older than ttl every interval until ctx is done.
// onPrune, if set, receives the ids removed by each sweep. A non-positive ttl or interval disables it.
func (r *Registry) CleanupFinished(ctx context.Context, interval, ttl time.Duration, onPrune func(ids []string)) {
	if interval <= 0 || ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := r.log.With(slog.String("action", "cleanup_finished_tasks"),
		slog.Duration("interval", interval), slog.Duration("ttl", ttl))

	for {
		select {
		case <-ticker.C:
			r.performCleanup(ctx, log, ttl, onPrune)
		case <-ctx.Done():
			log.Info("cleanup finished tasks stopped")

			return
		}
	}
}

func (r *Registry) performCleanup(ctx context.Context, log *slog.Logger, ttl time.Duration, onPrune func([]string)) {
	removed := r.PruneFinished(time.Now().Add(-ttl))
	if len(removed) == 0 {
		log.DebugContext(ctx, "no finished tasks to prune")

		return
	}

	log.InfoContext(ctx, "pruned finished tasks", slog.Int("count", len(removed)))

	if onPrune != nil {
		onPrune(removed)
	}
}
