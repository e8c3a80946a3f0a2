package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/observability/metrics"
	"github.com/aryan0dhankhar/farmorders/internal/service"
)

// Sweeper is the order pass run on every tick
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// RevocationPurger drops expired signed-out tokens
type RevocationPurger interface {
	PurgeRevoked() int
}

// OrderSweeper periodically completes fully confirmed orders, refreshes the
// overdue gauge and purges expired token revocations
type OrderSweeper struct {
	orders   Sweeper
	revoked  RevocationPurger
	logger   *slog.Logger
	interval time.Duration
}

// NewOrderSweeper creates a new order sweeper; revoked may be nil
func NewOrderSweeper(orders Sweeper, revoked RevocationPurger, logger *slog.Logger, interval time.Duration) *OrderSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &OrderSweeper{
		orders:   orders,
		revoked:  revoked,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the sweeper loop. It runs one pass immediately and then on
// every tick until ctx is cancelled.
func (w *OrderSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("order sweeper started", slog.Duration("interval", w.interval))
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("order sweeper stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep
func (w *OrderSweeper) RunOnce(ctx context.Context) {
	result, err := w.orders.Sweep(ctx)
	if err != nil {
		// Partial results are still applied; the failing orders retry next tick
		w.logger.Error("order sweep failed", slog.String("error", err.Error()))
		metrics.ObserveSweep("error")
	}
	metrics.SetOverdue(result.Overdue)
	for range result.Completed {
		metrics.ObserveSweep("completed")
	}
	if len(result.Completed) > 0 {
		w.logger.Info("orders completed by sweeper",
			slog.Int("count", len(result.Completed)),
			slog.Any("order_ids", result.Completed),
		)
	}

	if w.revoked != nil {
		if n := w.revoked.PurgeRevoked(); n > 0 {
			w.logger.Debug("purged expired revocations", slog.Int("count", n))
		}
	}
}
