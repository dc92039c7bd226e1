package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hyperengineering/exposure/internal/syncrun"
	"github.com/hyperengineering/exposure/internal/types"
)

// CategoryRunner executes one synchronization run for a category.
// This interface allows testing with mock implementations.
type CategoryRunner interface {
	Run(ctx context.Context, category types.Category) (*types.ExposureResult, error)
}

// SyncCoordinator periodically runs synchronization for each configured
// category. Failed categories do not block the others; transient failures
// are retried on the next cycle.
type SyncCoordinator struct {
	runner     CategoryRunner
	categories []types.Category
	interval   time.Duration
}

// NewSyncCoordinator creates a coordinator driving the given categories.
func NewSyncCoordinator(runner CategoryRunner, categories []types.Category, interval time.Duration) *SyncCoordinator {
	return &SyncCoordinator{
		runner:     runner,
		categories: categories,
		interval:   interval,
	}
}

// Run starts the coordinator loop.
func (c *SyncCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start so a crashed session resumes without
	// waiting a full interval.
	c.runAll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "sync-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

// runAll runs every configured category once.
func (c *SyncCoordinator) runAll(ctx context.Context) {
	var succeeded, failed int
	for _, cat := range c.categories {
		if ctx.Err() != nil {
			return // Graceful shutdown, don't log summary
		}
		if c.runCategory(ctx, cat) {
			succeeded++
		} else {
			failed++
		}
	}

	if succeeded > 0 || failed > 0 {
		slog.Info("sync cycle completed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "cycle_complete",
			"total", len(c.categories),
			"succeeded", succeeded,
			"failed", failed,
		)
	}
}

// runCategory runs one category and reports success.
func (c *SyncCoordinator) runCategory(ctx context.Context, cat types.Category) bool {
	slog.Info("sync run started",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "run_start",
		"category", string(cat),
	)

	res, err := c.runner.Run(ctx, cat)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return false // Graceful shutdown, don't log as error
		}
		level := slog.LevelWarn
		if !syncrun.Retryable(err) {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "sync run failed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "run_failed",
			"category", string(cat),
			"retryable", syncrun.Retryable(err),
			"error", err,
		)
		return false
	}

	if res == nil {
		// Deliberate no-op, e.g. the user declined consent.
		return true
	}
	slog.Info("sync run completed",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "run_complete",
		"category", string(cat),
		"matched_keys", res.Summary.MatchedKeyCount,
	)
	return true
}
