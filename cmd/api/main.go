package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/commerce"
	"github.com/angelmondragon/storefront-backend/internal/webhooks"
	squarewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const shutdownTimeout = 20 * time.Second

func main() {
	rt := bootstrap.Start("api")
	cfg, ctx := rt.Config, context.Background()

	dbClient := rt.Database(ctx)
	redisClient := rt.Redis(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reconcileMetrics := metrics.NewReconciliationMetrics(registry)

	stack, err := commerce.Build(ctx, commerce.Params{
		Config:  cfg,
		Logger:  rt.Logger,
		DB:      dbClient,
		Metrics: reconcileMetrics,
	})
	if err != nil {
		rt.Fail("failed to wire checkout services", err)
	}

	deps := routes.Dependencies{
		DB:       dbClient,
		Redis:    redisClient,
		Gatherer: registry,
		Metrics:  reconcileMetrics,
		Checkout: stack.Checkout,
		Orders:   stack.Orders,
		Engine:   stack.Engine,
	}
	if stack.Stripe != nil {
		svc, err := stripewebhook.NewService(stack.Engine, rt.Logger)
		if err != nil {
			rt.Fail("failed to create stripe webhook service", err)
		}
		deps.StripeClient, deps.StripeWebhook = stack.Stripe, svc
		deps.StripeGuard = eventGuard(rt, redisClient, config.ProcessorStripe)
	}
	if stack.Square != nil {
		svc, err := squarewebhook.NewService(stack.Engine, stack.Square, rt.Logger)
		if err != nil {
			rt.Fail("failed to create square webhook service", err)
		}
		deps.SquareClient, deps.SquareWebhook = stack.Square, svc
		deps.SquareGuard = eventGuard(rt, redisClient, config.ProcessorSquare)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, rt.Logger, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	rt.Run(func(ctx context.Context) error {
		ctx = rt.Logger.WithFields(ctx, map[string]any{"addr": server.Addr, "processor": cfg.Checkout.ProcessorName()})
		errs := make(chan error, 1)
		go func() { errs <- server.ListenAndServe() }()
		rt.Logger.Info(ctx, "listening")

		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}

func eventGuard(rt *bootstrap.Runtime, store webhooks.EventStore, processor string) *webhooks.EventGuard {
	guard, err := webhooks.NewEventGuard(store, rt.Config.Eventing.WebhookIdempotencyTTL, processor)
	if err != nil {
		rt.Fail("failed to create "+processor+" event guard", err)
	}
	return guard
}
