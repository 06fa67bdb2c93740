package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"checkout-core/internal/gateway"
	"checkout-core/internal/repo"
	"checkout-core/internal/service"
)

// ReconciliationWorker periodically sweeps drafts stuck in PENDING. Webhook
// delivery is at-least-once but not guaranteed to ever arrive; the sweeper
// asks the gateway for the truth and applies the same conditional
// transitions the webhook path uses, so running both concurrently is safe.
type ReconciliationWorker struct {
	orders   repo.OrderRepo
	gateway  gateway.Gateway
	resolver *service.Resolver
	interval time.Duration
	minAge   time.Duration
	logger   *slog.Logger
}

func NewReconciliationWorker(
	orders repo.OrderRepo,
	gw gateway.Gateway,
	resolver *service.Resolver,
	interval time.Duration,
	minAge time.Duration,
	logger *slog.Logger,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		orders:   orders,
		gateway:  gw,
		resolver: resolver,
		interval: interval,
		minAge:   minAge,
		logger:   logger,
	}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("reconciliation worker started", "interval", rw.interval, "min_age", rw.minAge)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rw.Sweep(ctx); err != nil {
				rw.logger.Error("sweep failed", "err", err)
			}
		}
	}
}

// Sweep runs one pass over stuck drafts.
func (rw *ReconciliationWorker) Sweep(ctx context.Context) error {
	stuck, err := rw.orders.FindStuck(ctx, rw.minAge)
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		return nil
	}

	rw.logger.Info("found stuck orders", "count", len(stuck))

	for _, order := range stuck {
		session, err := rw.gateway.ListSessionsByOrder(ctx, order.ID.String())
		if err != nil {
			rw.logger.Error("session lookup failed", "order_id", order.ID, "err", err)
			continue // wait for the next pass
		}

		switch {
		case session == nil:
			// CreateSession never succeeded, so the customer was never
			// able to pay. The draft is abandoned.
			rw.cancel(ctx, order.ID, "no session")

		case session.Settled():
			// The settlement webhook was lost; apply it now.
			if err := rw.resolver.ReconcileSession(ctx, session); err != nil {
				rw.logger.Error("sweep reconcile failed", "order_id", order.ID, "err", err)
			}

		case session.Expired():
			rw.cancel(ctx, order.ID, "session expired")

			// Still open: the customer may yet pay, leave it alone.
		}
	}
	return nil
}

func (rw *ReconciliationWorker) cancel(ctx context.Context, orderID uuid.UUID, reason string) {
	cancelled, err := rw.orders.Cancel(ctx, orderID)
	if err != nil {
		rw.logger.Error("cancel failed", "order_id", orderID, "err", err)
		return
	}
	if cancelled {
		rw.logger.Info("cancelled abandoned order", "order_id", orderID, "reason", reason)
	}
}
