// Package webhooks holds what the processor webhook handlers share.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventStore is the redis surface the guard needs.
type EventStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(processor, eventID string) string
}

// EventGuard collapses redeliveries of one processor event.
type EventGuard struct {
	store     EventStore
	ttl       time.Duration
	processor string
}

func NewEventGuard(store EventStore, ttl time.Duration, processor string) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("event store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if processor == "" {
		return nil, errors.New("processor is required")
	}
	return &EventGuard{store: store, ttl: ttl, processor: processor}, nil
}

// CheckAndMark reports whether the event was already seen, marking it otherwise.
func (g *EventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookEventKey(g.processor, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}
	return !set, nil
}

// Delete forgets an event so a replay is processed again.
func (g *EventGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(g.processor, eventID))
}
