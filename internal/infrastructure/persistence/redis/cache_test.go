package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/pkg/circuitbreaker"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "calendar:c1", CalendarKey("c1"))
	assert.Equal(t, "lock:gates:c1", LockKey("gates:c1"))
}

func TestConfigOptionsFromURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "redis://:secret@cache:6380/2"

	opts, err := cfg.options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	cfg.URL = "http://nope"
	_, err = cfg.options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestCalendarCacheFailsFastWhenRedisIsDown(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	cc := NewCalendarCache(NewCacheFromClient(client, "cc-test:"), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := cc.Get(ctx, "c1", "2026-03-12")
		require.Error(t, err)
		assert.False(t, circuitbreaker.IsRejected(err))
	}
	require.Equal(t, circuitbreaker.StateOpen, cc.Breaker().State())

	_, _, err := cc.Get(ctx, "c1", "2026-03-12")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.ErrorIs(t, cc.Invalidate(ctx, "c1"), circuitbreaker.ErrCircuitOpen)
}

// The tests below need a live server and run only when REDIS_TEST_URL is set.
func liveCache(t *testing.T) *Cache {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.KeyPrefix = "cc-test:" + t.Name() + ":"

	c, err := NewCache(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCalendarCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cc := NewCalendarCache(liveCache(t), time.Minute)

	snap := calendar.Snapshot{Day: 12, Phase: calendar.PhaseTraining}
	require.NoError(t, cc.Put(ctx, "c1", "2026-03-12", snap))

	got, ok, err := cc.Get(ctx, "c1", "2026-03-12")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, got.Day)

	_, ok, err = cc.Get(ctx, "c1", "2026-03-13")
	require.NoError(t, err)
	assert.False(t, ok, "snapshot from another day is a miss")

	require.NoError(t, cc.Invalidate(ctx, "c1"))
	_, ok, err = cc.Get(ctx, "c1", "2026-03-12")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunLockExclusive(t *testing.T) {
	ctx := context.Background()
	lock := NewRunLock(liveCache(t), time.Minute)

	release, err := lock.Acquire(ctx, "gates:c1")
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, "gates:c1")
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))

	release, err = lock.Acquire(ctx, "gates:c1")
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}
