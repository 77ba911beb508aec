package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/commerce"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func main() {
	rt := bootstrap.Start("cron-worker")
	cfg, ctx := rt.Config, context.Background()

	dbClient := rt.Database(ctx)
	redisClient := rt.Redis(ctx)

	stack, err := commerce.Build(ctx, commerce.Params{
		Config:  cfg,
		Logger:  rt.Logger,
		DB:      dbClient,
		Metrics: metrics.NewReconciliationMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		rt.Fail("failed to wire reconciliation", err)
	}

	expiry, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
		Logger:   rt.Logger,
		Orders:   stack.OrdersRepo,
		Sweeper:  stack.Engine,
		Deadline: cfg.Checkout.ExpiryDeadline(),
	})
	if err != nil {
		rt.Fail("failed to create order expiry job", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     rt.Logger,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		rt.Fail("failed to create outbox retention job", err)
	}

	// One lease per environment.
	lock, err := cron.NewRedisLock(redisClient, "cron-worker:"+cfg.App.Env, rt.Instance, cfg.Cron.LockTTL)
	if err != nil {
		rt.Fail("failed to create cron lock", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: cron.NewRegistry(expiry, retention),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		rt.Fail("failed to create cron service", err)
	}

	rt.Run(service.Run)
}
