package webhooks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = "1"
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) WebhookEventKey(processor, eventID string) string {
	return "sf:webhook:" + processor + ":" + eventID
}

func TestEventGuardCollapsesDuplicates(t *testing.T) {
	store := &memoryStore{data: map[string]string{}}
	guard, err := NewEventGuard(store, time.Hour, "stripe")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Contains(t, store.data, "sf:webhook:stripe:evt_1")

	require.NoError(t, guard.Delete(context.Background(), "evt_1"))
	seen, err = guard.CheckAndMark(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestEventGuardErrors(t *testing.T) {
	_, err := NewEventGuard(nil, time.Hour, "stripe")
	require.Error(t, err)
	_, err = NewEventGuard(&memoryStore{}, -time.Second, "stripe")
	require.Error(t, err)
	_, err = NewEventGuard(&memoryStore{}, time.Hour, "")
	require.Error(t, err)

	store := &memoryStore{data: map[string]string{}, err: errors.New("redis down")}
	guard, err := NewEventGuard(store, time.Hour, "square")
	require.NoError(t, err)
	_, err = guard.CheckAndMark(context.Background(), "evt_1")
	require.Error(t, err)
	_, err = guard.CheckAndMark(context.Background(), "")
	require.Error(t, err)
}
