package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

func main() {
	rt := bootstrap.Start("outbox-publisher")
	ctx := context.Background()

	dbClient := rt.Database(ctx)
	broker := rt.PubSub(ctx, pubsub.RolePublisher)

	routes, err := registry.NewEventRegistry(rt.Config.PubSub)
	if err != nil {
		rt.Fail("failed to build event registry", err)
	}
	relay, err := NewRelay(RelayParams{
		Outbox:      rt.Config.Outbox,
		Logger:      rt.Logger,
		DB:          dbClient,
		Broker:      broker,
		Events:      outbox.NewRepository(dbClient.DB()),
		Registry:    routes,
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:     metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		rt.Fail("failed to create outbox relay", err)
	}

	rt.Run(relay.Run)
}
