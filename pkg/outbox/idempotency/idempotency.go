// Package idempotency gives at-least-once consumers exactly-once side effects
// by claiming each event id in Redis before acting on it.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Outcome reports whether Once ran the handler.
type Outcome int

const (
	Ran Outcome = iota + 1
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Ran:
		return "ran"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager claims keys shaped sf:idempotency:evt:<consumer>:<event_id>. A zero
// TTL keeps claims forever.
type Manager struct {
	store claimStore
	ttl   time.Duration
}

func NewManager(store claimStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, fmt.Errorf("idempotency ttl %s is negative", ttl)
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Once runs fn unless consumer already claimed eventID. When fn fails the
// claim is dropped so a redelivery can retry, and fn's error is returned.
func (m *Manager) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (Outcome, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return 0, err
	}
	claimed, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return 0, fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		return Duplicate, nil
	}

	if runErr := fn(ctx); runErr != nil {
		if delErr := m.store.Del(context.WithoutCancel(ctx), key); delErr != nil {
			runErr = multierr.Append(runErr, fmt.Errorf("release %s: %w", key, delErr))
		}
		return Ran, runErr
	}
	return Ran, nil
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
