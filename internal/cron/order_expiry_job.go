package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/reconciliation"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultExpiryBatch = 100

type pendingOrderReader interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderSweeper interface {
	Sweep(ctx context.Context, order *models.Order) (reconciliation.Result, error)
}

// OrderExpiryJobParams configure the stale checkout sweep.
type OrderExpiryJobParams struct {
	Logger   *logger.Logger
	Orders   pendingOrderReader
	Sweeper  orderSweeper
	Deadline time.Duration
	Batch    int
}

// NewOrderExpiryJob builds the job that settles orders whose session outlived its deadline.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("order sweeper required")
	}
	if params.Deadline <= 0 {
		return nil, fmt.Errorf("expiry deadline must be positive")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &orderExpiryJob{
		logg:     params.Logger,
		orders:   params.Orders,
		sweeper:  params.Sweeper,
		deadline: params.Deadline,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg     *logger.Logger
	orders   pendingOrderReader
	sweeper  orderSweeper
	deadline time.Duration
	batch    int
	now      func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

// Run sweeps one batch. An order whose processor cannot be reached stays
// pending and is retried next cycle; the other orders still run.
func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.deadline)
	pending, err := j.orders.FindPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs error
	settled, skipped := 0, 0
	for i := range pending {
		order := &pending[i]
		res, err := j.sweeper.Sweep(ctx, order)
		if err != nil {
			orderCtx := j.logg.WithOrderNumber(ctx, order.OrderNumber)
			if checkout.IsUpstream(err) {
				j.logg.Warn(j.logg.WithField(orderCtx, "error", err.Error()), "processor unreachable, order left pending")
				skipped++
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("sweep %s: %w", order.OrderNumber, err))
			continue
		}
		if res.PaymentStatus != order.PaymentStatus {
			settled++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"found":   len(pending),
		"settled": settled,
		"skipped": skipped,
	})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return errs
}
