package main

import (
	"context"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

func main() {
	rt := bootstrap.Start("worker")
	ctx := context.Background()

	redisClient := rt.Redis(ctx)
	broker := rt.PubSub(ctx, pubsub.RoleSubscriber)

	dedup, err := idempotency.NewManager(redisClient, rt.Config.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		rt.Fail("failed to create idempotency manager", err)
	}
	mailer, err := notifications.NewMailer(rt.Config.Sendgrid)
	if err != nil {
		rt.Fail("failed to create mailer", err)
	}
	consumer, err := notifications.NewConsumer(broker.NotificationSubscription(), dedup, mailer, rt.Logger)
	if err != nil {
		rt.Fail("failed to create notification consumer", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   rt.Logger,
		Checks:   []Check{{"redis", redisClient.Ping}, {"pubsub", broker.Ping}},
		Consumer: consumer,
	})
	if err != nil {
		rt.Fail("failed to create worker", err)
	}

	rt.Run(service.Run)
}
