package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, time.Minute.Seconds(), res.RetryAfter.Seconds(), 1)

	other, err := l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	assert.True(t, mr.Exists("ratelimit:auth:10.0.0.1"))

	mr.FastForward(time.Minute + time.Second)
	res, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisLimiter_RestoresMissingTTL(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLimiter(client, 10, time.Minute)

	require.NoError(t, mr.Set("ratelimit:auth:k", "4"))

	_, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:auth:k"))
}

func TestRedisLimiter_BackendDown(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLimiter(client, 10, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	r, _ := l.Allow(ctx, "ip")
	assert.True(t, r.Allowed)
	now = now.Add(30 * time.Second)
	r, _ = l.Allow(ctx, "ip")
	assert.True(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)

	r, _ = l.Allow(ctx, "ip")
	assert.False(t, r.Allowed)
	assert.Equal(t, 30*time.Second, r.RetryAfter)

	now = now.Add(31 * time.Second)
	r, _ = l.Allow(ctx, "ip")
	assert.True(t, r.Allowed, "first request left the window")
}

func TestMemoryLimiter_ForgetsIdleKeys(t *testing.T) {
	l := NewMemoryLimiter(5, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_, err := l.Allow(ctx, fmt.Sprintf("10.0.%d.%d", i/256, i%256))
		require.NoError(t, err)
	}
	assert.Len(t, l.requests, 1000)

	now = now.Add(30 * time.Second)
	_, _ = l.Allow(ctx, "10.0.0.0")
	assert.Len(t, l.requests, 1000, "keys inside the window are kept")

	now = now.Add(45 * time.Second)
	r, err := l.Allow(ctx, "192.168.1.1")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Len(t, l.requests, 2)
	assert.Contains(t, l.requests, "10.0.0.0")
	assert.Contains(t, l.requests, "192.168.1.1")
}

func TestDefaults(t *testing.T) {
	m := NewMemoryLimiter(0, 0)
	assert.Equal(t, DefaultLimit, m.limit)
	assert.Equal(t, DefaultWindow, m.window)

	_, client := newRedis(t)
	r := NewRedisLimiter(client, -1, 0)
	assert.Equal(t, DefaultLimit, r.limit)
	assert.Equal(t, DefaultWindow, r.window)
}
