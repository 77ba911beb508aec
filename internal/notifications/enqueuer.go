// Package notifications queues and delivers buyer emails.
package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Enqueuer hands confirmation emails to the worker through the outbox.
type Enqueuer struct {
	tx     txRunner
	outbox outboxPublisher
	now    func() time.Time
}

func NewEnqueuer(tx txRunner, publisher outboxPublisher) (*Enqueuer, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Enqueuer{tx: tx, outbox: publisher, now: time.Now}, nil
}

// SendOrderConfirmation records a notification_requested event for the order.
func (e *Enqueuer) SendOrderConfirmation(ctx context.Context, email string, snapshot payloads.OrderSnapshot) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("recipient email required")
	}
	return e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   snapshot.OrderID,
			Actor:         &outbox.ActorRef{Role: "system"},
			OccurredAt:    e.now().UTC(),
			Data: payloads.NotificationRequestedEvent{
				OrderID:   snapshot.OrderID,
				Template:  payloads.TemplateOrderConfirmation,
				Recipient: email,
				Snapshot:  snapshot,
			},
		})
	})
}
