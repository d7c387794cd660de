package search

import (
	"context"
	"log/slog"

	"github.com/goodfilms/picky/internal/index"
	"github.com/goodfilms/picky/pkg/kafka"
	"github.com/goodfilms/picky/pkg/metrics"
)

// Loader reloads index bundles; *index.Index satisfies it.
type Loader interface {
	Name() string
	Load() error
}

// Invalidator drops cached results; *cache.QueryCache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// ReloadHandler reloads idx whenever a CompleteEvent for it arrives and
// then drops cached results. Events for other indexes are acknowledged and
// ignored. inv and m may be nil.
func ReloadHandler(idx Loader, inv Invalidator, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-reloader", "index", idx.Name())
	record := func(status string) {
		if m != nil {
			m.IndexReloadsTotal.WithLabelValues(status).Inc()
		}
	}
	return func(ctx context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[index.CompleteEvent](value)
		if err != nil {
			record("invalid")
			return err
		}
		if event.Index != idx.Name() {
			record("skipped")
			return nil
		}
		if err := idx.Load(); err != nil {
			record("failed")
			return err
		}
		record("reloaded")
		logger.Info("index reloaded", "build_id", event.BuildID, "built_at", event.BuiltAt)
		if inv != nil {
			if _, err := inv.Invalidate(ctx); err != nil {
				logger.Warn("cache invalidation after reload failed", "error", err)
			}
		}
		return nil
	}
}
