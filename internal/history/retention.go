package history

// retention.go removes old run reports in the background.
//
// The job runs immediately on start, then every CheckInterval, until its
// context is cancelled. A failed prune is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig holds configuration for the retention job.
type RetentionConfig struct {
	RetentionDays int           // Days to keep run reports (default: 30)
	CheckInterval time.Duration // How often to prune (default: 24h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartRetention prunes store until ctx is cancelled. Run it in a goroutine.
func StartRetention(ctx context.Context, store Store, cfg RetentionConfig) {
	cfg = cfg.withDefaults()
	slog.Info("history retention started",
		"retention_days", cfg.RetentionDays,
		"check_interval", cfg.CheckInterval,
	)

	// Run immediately on startup
	pruneOnce(ctx, store, cfg, time.Now())

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("history retention stopped")
			return
		case now := <-ticker.C:
			pruneOnce(ctx, store, cfg, now)
		}
	}
}

// pruneOnce performs one retention cycle and returns how many runs went.
func pruneOnce(ctx context.Context, store Store, cfg RetentionConfig, now time.Time) int64 {
	start := time.Now()
	cutoff := now.AddDate(0, 0, -cfg.RetentionDays)

	pruned, err := store.Prune(ctx, cutoff)
	if err != nil {
		slog.Error("history prune failed", "error", err)
		return 0
	}
	slog.Info("pruned run history",
		"runs_pruned", pruned,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pruned
}
