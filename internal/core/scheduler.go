package core

// scheduler.go runs background maintenance for the ingest history.
//
// reading_ingests grows by one row per upload, including rejected and failed
// ones. The retention job deletes records older than the configured age in
// bounded batches so a long backlog never holds a lock on the whole table.
// Stored readings and meter state are never touched.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig holds configuration for the history retention job.
// Zero fields take the defaults below.
type RetentionConfig struct {
	KeepDays      int           // Days of ingest history to keep (default: 90)
	BatchSize     int           // Rows deleted per statement (default: 5000)
	CheckInterval time.Duration // How often to run (default: 24h)
}

const (
	DefaultRetentionDays      = 90
	DefaultRetentionBatchSize = 5000
	DefaultRetentionInterval  = 24 * time.Hour
)

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.KeepDays <= 0 {
		c.KeepDays = DefaultRetentionDays
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultRetentionBatchSize
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultRetentionInterval
	}
	return c
}

// StartRetentionScheduler purges old ingest records immediately and then
// every CheckInterval until ctx is cancelled. Failures are logged and the
// next tick tries again.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	cfg = cfg.withDefaults()
	slog.Info("retention scheduler started",
		"keep_days", cfg.KeepDays,
		"batch_size", cfg.BatchSize,
		"interval", cfg.CheckInterval,
	)

	s.runRetentionJob(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			s.runRetentionJob(ctx, cfg)
		}
	}
}

// runRetentionJob performs one purge cycle.
func (s *Service) runRetentionJob(ctx context.Context, cfg RetentionConfig) {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -cfg.KeepDays)

	purged, err := s.meters.PurgeIngests(ctx, cutoff, cfg.BatchSize)
	if err != nil {
		slog.Error("ingest history purge failed", "error", err, "purged", purged)
		return
	}
	slog.Info("purged ingest history",
		"entries_purged", purged,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
