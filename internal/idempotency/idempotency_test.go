package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, WithPrefix("test"))
}

func TestRedisClaimOnce(t *testing.T) {
	mr, claimer := newMiniRedis(t)
	ctx := context.Background()

	ok, err := claimer.Claim(ctx, "call_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = claimer.Claim(ctx, "call_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must fail")

	assert.True(t, mr.Exists("test:call_1"))
	assert.Equal(t, time.Minute, mr.TTL("test:call_1"))

	mr.FastForward(2 * time.Minute)
	ok, err = claimer.Claim(ctx, "call_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "claim after expiry must succeed")
	require.NoError(t, claimer.Release(ctx, "call_1"))
	assert.False(t, mr.Exists("test:call_1"))
	require.NoError(t, claimer.Ping(ctx))
}

func TestRedisClaimPropagatesErrors(t *testing.T) {
	mr, claimer := newMiniRedis(t)
	mr.Close()
	_, err := claimer.Claim(context.Background(), "call_1", time.Minute)
	require.Error(t, err)
}

func TestNewRedisFromURL(t *testing.T) {
	_, _, err := NewRedisFromURL("not-a-url")
	require.Error(t, err)

	claimer, client, err := NewRedisFromURL("redis://localhost:6379/0")
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "salesdeck:dedupe:k", claimer.key("k"))
}

func TestMemoryClaim(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := m.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
	ok, _ = m.Claim(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = m.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)

	require.NoError(t, m.Release(ctx, "k"))
	ok, _ = m.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
}
