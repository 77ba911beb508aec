// Package registry maps outbox event types to their Pub/Sub topic and payload
// schema, and decodes stored rows for the relay.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Route says where an event type is published and how its payload decodes.
type Route struct {
	Event     enums.OutboxEventType
	Aggregate enums.OutboxAggregateType
	Topic     string
	decode    func(json.RawMessage) (any, error)
}

func route[T any](event enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) Route {
	return Route{
		Event:     event,
		Aggregate: aggregate,
		Topic:     topic,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// ResolvedEvent is a stored row checked against its route.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// PermanentError marks a row that will never publish, however often it is retried.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e PermanentError) Unwrap() error { return e.Err }

func Permanent(format string, args ...any) error {
	return PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var p PermanentError
	return errors.As(err, &p)
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.OrdersTopic == "":
		return nil, errors.New("orders topic is required")
	case cfg.NotificationTopic == "":
		return nil, errors.New("notification topic is required")
	}

	orders, notify := cfg.OrdersTopic, cfg.NotificationTopic
	routes := []Route{
		route[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, orders),
		route[payloads.OrderPaidEvent](enums.EventOrderPaid, enums.AggregateOrder, orders),
		route[payloads.OrderPaymentFailedEvent](enums.EventOrderPaymentFailed, enums.AggregateOrder, orders),
		route[payloads.OrderExpiredEvent](enums.EventOrderExpired, enums.AggregateOrder, orders),
		route[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, orders),
		route[payloads.NotificationRequestedEvent](enums.EventNotificationRequested, enums.AggregateNotification, notify),
	}
	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]Route, len(routes))}
	for _, r := range routes {
		reg.routes[r.Event] = r
	}
	return reg, nil
}

// Topics lists each distinct topic once.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]bool, len(r.routes))
	topics := make([]string, 0, 2)
	for _, rt := range r.routes {
		if !seen[rt.Topic] {
			seen[rt.Topic] = true
			topics = append(topics, rt.Topic)
		}
	}
	return topics
}

// Resolve checks a row against its route and decodes the typed payload.
// Every failure is permanent: the stored bytes will not change on retry.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	rt, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, Permanent("unsupported event type %s", event.EventType)
	case rt.Aggregate != event.AggregateType:
		return nil, Permanent("%s belongs to %s aggregates, row has %s", event.EventType, rt.Aggregate, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, Permanent("%s row has no aggregate id", event.EventType)
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, Permanent("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent("%s envelope has no data", event.EventType)
	}
	payload, err := rt.decode(env.Data)
	if err != nil {
		return nil, Permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Route: rt, Envelope: env, Payload: payload}, nil
}
