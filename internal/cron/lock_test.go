package cron

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.data[key]; taken {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryLockStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryLockStore) LockKey(name string) string { return "sf:lock:" + name }

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{data: map[string]string{}}
	first, err := NewRedisLock(store, "cron-worker:prod", "web.1", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron-worker:prod", "web.2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "sf:lock:cron-worker:prod", first.Key())
	assert.Equal(t, defaultLockTTL, first.ttl)

	won, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, won)
	assert.True(t, strings.HasPrefix(store.data[first.Key()], "web.1/"), "token names the holder")

	won, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.data, first.Key(), "a non-holder release leaves the lease")

	require.NoError(t, first.Release(ctx))
	require.NoError(t, first.Release(ctx), "second release is a no-op")
	won, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestRedisLockLeavesTakenOverLease(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{data: map[string]string{}}
	lock, err := NewRedisLock(store, "cron", "web.1", time.Minute)
	require.NoError(t, err)

	won, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, won)

	// lease expired and another replica took it
	store.data[lock.Key()] = "web.2/other"
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "web.2/other", store.data[lock.Key()])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "cron", "web.1", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(&memoryLockStore{}, "", "web.1", time.Minute)
	assert.Error(t, err)

	lock, err := NewRedisLock(&memoryLockStore{}, "cron", "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", lock.holder)
}
