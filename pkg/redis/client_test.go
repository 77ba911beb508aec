package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestFixedWindowAllowCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryRedis()
	client := &Client{store: mem}

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "ip:checkout:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, allowed, "hit %d", i+1)
		assert.EqualValues(t, i+1, count)
	}
	assert.Equal(t, map[string]int64{"sf:rate_limit:ip:checkout:1.2.3.4": 60000}, mem.expiries)
}

func TestFixedWindowAllowRejectsZeroWindow(t *testing.T) {
	client := &Client{store: newMemoryRedis()}
	_, _, err := client.FixedWindowAllow(context.Background(), "scope", 1, 0)
	require.Error(t, err)
}

func TestFixedWindowAllowSurfacesStoreFailure(t *testing.T) {
	mem := newMemoryRedis()
	mem.evalErr = errors.New("connection refused")
	client := &Client{store: mem}
	_, _, err := client.FixedWindowAllow(context.Background(), "scope", 1, time.Second)
	require.ErrorContains(t, err, "connection refused")
}

func TestSetNXThenDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMemoryRedis()}

	key := client.WebhookEventKey("stripe", "evt_1")
	ok, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestDeleteIfValueOnlyRemovesOwnedKey(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMemoryRedis()}
	key := client.LockKey("cron-worker:dev")

	_, err := client.SetNX(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)

	deleted, err := client.DeleteIfValue(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.False(t, deleted)
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "owner-b", got)

	deleted, err = client.DeleteIfValue(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestKeyLayout(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sf:idempotency:POST|/api/v1/orders:key-1", client.IdempotencyKey("POST|/api/v1/orders", "key-1"))
	assert.Equal(t, "sf:rate_limit:scope", client.RateLimitKey("scope"))
	assert.Equal(t, "sf:webhook:square:evt", client.WebhookEventKey("square", "evt"))
	assert.Equal(t, "sf:lock:cron-worker", client.LockKey(" cron-worker "))
	assert.Equal(t, "sf:idempotency:scope", client.IdempotencyKey("scope", ""))
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	assert.Error(t, client.Ping(context.Background()))
	_, err := client.SetNX(context.Background(), "k", "v", time.Second)
	assert.Error(t, err)
	assert.NoError(t, client.Close())
}

func TestOptionsPrecedence(t *testing.T) {
	_, err := options(config.RedisConfig{})
	require.Error(t, err)

	opts, err := options(config.RedisConfig{URL: "redis://:secret@cache:6380/3", PoolSize: 7, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = options(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

// memoryRedis emulates the commands and the two scripts the client sends.
type memoryRedis struct {
	data     map[string]string
	counters map[string]int64
	expiries map[string]int64
	evalErr  error
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{
		data:     map[string]string{},
		counters: map[string]int64{},
		expiries: map[string]int64{},
	}
}

func (m *memoryRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *memoryRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *memoryRedis) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if m.evalErr != nil {
		return redis.NewCmdResult(nil, m.evalErr)
	}
	key := keys[0]
	switch script {
	case windowScript:
		m.counters[key]++
		if m.counters[key] == 1 {
			m.expiries[key] = args[0].(int64)
		}
		return redis.NewCmdResult(m.counters[key], nil)
	case releaseScript:
		if v, ok := m.data[key]; ok && v == args[0] {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}
