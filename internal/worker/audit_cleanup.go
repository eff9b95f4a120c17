package worker

import (
	"context"
	"time"

	"github.com/jdores/selfserve-egressip/internal/pkg/distlock"
	"github.com/jdores/selfserve-egressip/internal/pkg/logger"
)

const (
	// DefaultCleanupInterval is how often the retention sweep runs.
	DefaultCleanupInterval = 24 * time.Hour

	// DefaultSweepTimeout bounds one sweep, including archive uploads.
	DefaultSweepTimeout = 10 * time.Minute

	// lockMargin separates the end of a sweep from the lock expiry.
	lockMargin = time.Minute
)

// Sweeper deletes expired audit entries and reports how many were removed.
type Sweeper interface {
	Cleanup(ctx context.Context) (int64, error)
}

// AuditCleanupWorker periodically runs the audit retention sweep. The lock
// ensures only one replica sweeps at a time.
type AuditCleanupWorker struct {
	sweeper      Sweeper
	lock         distlock.DistLock
	interval     time.Duration
	sweepTimeout time.Duration
}

// NewAuditCleanupWorker creates a worker. A non-positive interval uses
// DefaultCleanupInterval.
func NewAuditCleanupWorker(sweeper Sweeper, lock distlock.DistLock, interval time.Duration) *AuditCleanupWorker {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &AuditCleanupWorker{sweeper: sweeper, lock: lock, interval: interval, sweepTimeout: DefaultSweepTimeout}
}

// SetLockTTL shortens the sweep timeout so a sweep always ends before a lock
// with the given TTL can expire and be taken by another replica.
func (w *AuditCleanupWorker) SetLockTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	limit := ttl - lockMargin
	if limit <= 0 {
		limit = ttl / 2
	}
	if w.sweepTimeout > limit {
		w.sweepTimeout = limit
	}
}

// Start begins the cleanup loop. It blocks until ctx is cancelled.
func (w *AuditCleanupWorker) Start(ctx context.Context) {
	logger.Info("audit cleanup: starting", "interval", w.interval.String())

	// Run once immediately on start
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("audit cleanup: stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep if the lock can be taken. It returns the number
// of deleted entries and whether the sweep ran.
func (w *AuditCleanupWorker) RunOnce(ctx context.Context) (int64, bool) {
	acquired, err := w.lock.Acquire(ctx)
	if err != nil {
		logger.Error("audit cleanup: lock error", "error", err)
		return 0, false
	}
	if !acquired {
		logger.Info("audit cleanup: another sweeper holds the lock, skipping")
		return 0, false
	}
	defer func() {
		if err := w.lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("audit cleanup: failed to release lock", "error", err)
		}
	}()

	start := time.Now()
	sweepCtx, cancel := context.WithTimeout(ctx, w.sweepTimeout)
	defer cancel()

	deleted, err := w.sweeper.Cleanup(sweepCtx)
	if err != nil {
		logger.Error("audit cleanup: sweep failed", "deleted", deleted, "error", err)
		return deleted, true
	}
	logger.Info("audit cleanup: sweep completed",
		"deleted", deleted, "duration", time.Since(start).Round(time.Millisecond).String())
	return deleted, true
}
