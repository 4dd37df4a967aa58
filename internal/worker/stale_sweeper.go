package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/payment-bridge/internal/observability"
	"go.uber.org/zap"
)

const staleSweeperName = "stale_sweeper"

// StaleFailer fails transactions stuck in pending.
type StaleFailer interface {
	FailStalePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// StaleSweeper periodically fails transactions that never reached the
// gateway, e.g. after a crash between persisting and calling out.
type StaleSweeper struct {
	svc       StaleFailer
	interval  time.Duration
	olderThan time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewStaleSweeper fails records pending longer than olderThan, checking every minute.
func NewStaleSweeper(svc StaleFailer, olderThan time.Duration) *StaleSweeper {
	return &StaleSweeper{
		svc:       svc,
		interval:  time.Minute,
		olderThan: olderThan,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *StaleSweeper) WithInterval(interval time.Duration) *StaleSweeper {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *StaleSweeper) Start(ctx context.Context) {
	zap.L().Info("stale sweeper starting", zap.Duration("interval", w.interval), zap.Duration("older_than", w.olderThan))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("stale sweeper context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("stale sweeper stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *StaleSweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *StaleSweeper) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *StaleSweeper) runOnce(ctx context.Context) {
	n, err := w.svc.FailStalePending(ctx, w.olderThan)
	if err != nil {
		observability.IncrementWorkerRun(staleSweeperName, "failed")
		zap.L().Error("stale sweep failed", zap.Int("failed_so_far", n), zap.Error(err))
		return
	}
	observability.IncrementWorkerRun(staleSweeperName, "success")
	if n > 0 {
		zap.L().Warn("stale pending transactions failed", zap.Int("count", n))
	}
}
