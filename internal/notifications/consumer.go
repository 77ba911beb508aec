package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const confirmationConsumer = "order-confirmation-mailer"

// Sender delivers one confirmation email.
type Sender interface {
	SendOrderConfirmation(ctx context.Context, email string, snapshot payloads.OrderSnapshot) error
}

type deduper interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (idempotency.Outcome, error)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer turns notification_requested events into emails. It never
// touches order state.
type Consumer struct {
	sub    receiver
	dedup  deduper
	sender Sender
	logg   *logger.Logger
}

func NewConsumer(sub *pubsub.Subscriber, dedup deduper, sender Sender, logg *logger.Logger) (*Consumer, error) {
	switch {
	case sub == nil:
		return nil, errors.New("notification subscription required")
	case dedup == nil:
		return nil, errors.New("idempotency manager required")
	case sender == nil:
		return nil, errors.New("mail sender required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	return &Consumer{sub: sub, dedup: dedup, sender: sender, logg: logg}, nil
}

// Run receives until ctx ends. Messages are nacked only when a retry could
// succeed.
func (c *Consumer) Run(ctx context.Context) error {
	return c.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.handle(ctx, msg) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// errSkip marks messages that are acknowledged without sending.
var errSkip = errors.New("skip")

// handle reports whether the message should be redelivered.
func (c *Consumer) handle(ctx context.Context, msg *pubsub.Message) (retry bool) {
	ctx = c.logg.WithFields(ctx, map[string]any{"message_id": msg.ID, "event_type": msg.Attributes["event_type"]})

	eventID, req, err := decodeRequest(msg)
	switch {
	case errors.Is(err, errSkip):
		c.logg.Debug(ctx, "ignoring message: "+err.Error())
		return false
	case err != nil:
		c.logg.Error(ctx, "undecodable notification dropped", err)
		return false
	}
	ctx = c.logg.WithOrderNumber(ctx, req.Snapshot.OrderNumber)

	outcome, err := c.dedup.Once(ctx, confirmationConsumer, eventID, func(ctx context.Context) error {
		return c.sender.SendOrderConfirmation(ctx, req.Recipient, req.Snapshot)
	})
	switch {
	case err != nil:
		c.logg.Error(ctx, "order confirmation not delivered", err)
		return true
	case outcome == idempotency.Duplicate:
		c.logg.Info(ctx, "order confirmation already sent")
	default:
		c.logg.Info(ctx, "order confirmation sent")
	}
	return false
}

func decodeRequest(msg *pubsub.Message) (uuid.UUID, payloads.NotificationRequestedEvent, error) {
	var req payloads.NotificationRequestedEvent
	if msg.Attributes["event_type"] != string(enums.EventNotificationRequested) {
		return uuid.Nil, req, fmt.Errorf("%w: not a notification event", errSkip)
	}
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return uuid.Nil, req, fmt.Errorf("decode envelope: %w", err)
	}
	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		return uuid.Nil, req, fmt.Errorf("event id: %w", err)
	}
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return uuid.Nil, req, fmt.Errorf("decode payload: %w", err)
	}
	if req.Template != payloads.TemplateOrderConfirmation {
		return uuid.Nil, req, fmt.Errorf("%w: template %q", errSkip, req.Template)
	}
	return eventID, req, nil
}
