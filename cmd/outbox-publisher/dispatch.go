package main

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const publishTimeout = 15 * time.Second

type broker interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishAck
}

type publishAck interface {
	Get(context.Context) (string, error)
}

// publish sends the stored envelope unchanged and waits for the server ack.
func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Route.Topic
	pub := r.topics(topic)
	if pub == nil {
		return registry.Permanent("no publisher for topic %s", topic)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	ack := pub.Publish(ctx, eventMessage(event, resolved))
	if ack == nil {
		return registry.Permanent("publisher for topic %s returned no result", topic)
	}
	_, err := ack.Get(ctx)
	return err
}

// eventMessage carries routing attributes so consumers can filter without decoding.
func eventMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if event.AggregateType == enums.AggregateOrder {
		attrs["order_id"] = event.AggregateID.String()
	}
	return &gcppubsub.Message{Data: event.Payload, Attributes: attrs}
}

type gcpTopic struct {
	pub *gcppubsub.Publisher
}

func wrapPublisher(p *gcppubsub.Publisher) topicPublisher {
	if p == nil {
		return nil
	}
	return gcpTopic{pub: p}
}

func (t gcpTopic) Publish(ctx context.Context, msg *gcppubsub.Message) publishAck {
	return gcpAck{res: t.pub.Publish(ctx, msg)}
}

type gcpAck struct {
	res *gcppubsub.PublishResult
}

func (a gcpAck) Get(ctx context.Context) (string, error) {
	if a.res == nil {
		return "", errors.New("publish result is nil")
	}
	return a.res.Get(ctx)
}
