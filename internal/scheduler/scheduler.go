package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bauhaus93/wishlist-scrape/internal/reconcile"
)

// Runner runs one reconciliation cycle.
type Runner interface {
	Run(ctx context.Context) (reconcile.Summary, error)
}

// Run executes one cycle immediately and then one per interval, until ctx is
// cancelled. Cycles never overlap: the next tick is only taken after the
// previous cycle returned. A failed cycle is logged and retried on the next tick.
func Run(ctx context.Context, runner Runner, interval time.Duration, logger logrus.FieldLogger) {
	log := logger.WithField("component", "scheduler")
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.WithField("interval", interval.String()).Info("Scheduler started")
	RunOnce(ctx, runner, log)

	for {
		select {
		case <-ctx.Done():
			log.Info("Scheduler stopping due to context cancellation")
			return
		case <-ticker.C:
			RunOnce(ctx, runner, log)
		}
	}
}

// RunOnce runs a single cycle and logs its outcome. It reports whether the cycle succeeded.
func RunOnce(ctx context.Context, runner Runner, log logrus.FieldLogger) bool {
	start := time.Now()
	summary, err := runner.Run(ctx)
	if err != nil {
		entry := log.WithError(err)
		switch {
		case errors.Is(err, reconcile.ErrEmptyScrape):
			entry.Error("Cycle aborted: scrape returned nothing")
		case errors.Is(err, reconcile.ErrCycleRunning):
			entry.Warn("Cycle skipped: previous cycle still running")
		default:
			entry.Error("Cycle failed")
		}
		return false
	}
	log.WithFields(logrus.Fields{
		"new_snapshot": summary.NewSnapshot,
		"duration":     time.Since(start).String(),
	}).Info("Cycle completed")
	return true
}
