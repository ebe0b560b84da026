package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *RedisLimiter, *fakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	clock := newFakeClock()
	l := NewRedisLimiter(client, cfg, logger)
	l.now = clock.Now
	return mr, l, clock
}

func TestRedisLimiter_FiveThenDenied(t *testing.T) {
	_, l, clock := setupRedisLimiter(t, Config{Name: "scan", Window: time.Minute, Max: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, res.Allowed, "call %d", i+1)
		assert.Equal(t, 5-(i+1), res.Remaining)
		clock.Advance(200 * time.Millisecond)
	}

	res, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 59*time.Second, res.ResetAfter)
}

func TestRedisLimiter_WindowSlides(t *testing.T) {
	_, l, clock := setupRedisLimiter(t, Config{Name: "scan", Window: 10 * time.Second, Max: 1})
	ctx := context.Background()

	res, _ := l.Allow(ctx, "id")
	require.True(t, res.Allowed)

	clock.Advance(5 * time.Second)
	res, _ = l.Allow(ctx, "id")
	require.False(t, res.Allowed)
	assert.Equal(t, 5*time.Second, res.ResetAfter)

	clock.Advance(5 * time.Second)
	res, _ = l.Allow(ctx, "id")
	assert.True(t, res.Allowed)
}

func TestRedisLimiter_KeyHasTTL(t *testing.T) {
	mr, l, _ := setupRedisLimiter(t, Config{Name: "scan", Window: time.Minute, Max: 3})

	_, err := l.Allow(context.Background(), "id")
	require.NoError(t, err)

	assert.True(t, mr.Exists("ratelimit:scan:id"))
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:scan:id"))
}

func TestRedisLimiter_Peek(t *testing.T) {
	mr, l, clock := setupRedisLimiter(t, Config{Name: "auth", Window: time.Minute, Max: 2})
	ctx := context.Background()

	res, err := l.Peek(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.False(t, mr.Exists("ratelimit:auth:ip:10.0.0.1"))

	_, err = l.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	clock.Advance(20 * time.Second)
	_, err = l.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err = l.Peek(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.Equal(t, 40*time.Second, res.ResetAfter)
	}

	clock.Advance(40 * time.Second)
	res, err = l.Peek(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	mr, l, _ := setupRedisLimiter(t, Config{Name: "scan", Window: time.Minute, Max: 1})
	mr.Close()

	res, err := l.Allow(context.Background(), "id")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Peek(context.Background(), "id")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRegistry_UseShared(t *testing.T) {
	_, shared, _ := setupRedisLimiter(t, Config{Name: API, Window: time.Minute, Max: 1})
	r := NewRegistry(DefaultPresets())
	r.UseShared(shared)

	c, ok := r.Get(API)
	require.True(t, ok)
	assert.Same(t, shared, c)
}
