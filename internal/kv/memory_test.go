package kv_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/serroba/shortlink/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func TestMemoryStore_Strings(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns ErrNil for missing key", func(t *testing.T) {
		s := kv.NewMemoryStore()

		val, err := s.Get(ctx, "missing")

		assert.Empty(t, val)
		assert.ErrorIs(t, err, kv.ErrNil)
	})

	t.Run("set overwrites existing value", func(t *testing.T) {
		s := kv.NewMemoryStore()

		require.NoError(t, s.Set(ctx, "k", "one", 0))
		require.NoError(t, s.Set(ctx, "k", "two", 0))

		val, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "two", val)
	})

	t.Run("value expires after ttl", func(t *testing.T) {
		clock := newFakeClock()
		s := kv.NewMemoryStoreWithClock(clock.Now)

		require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

		clock.Advance(59 * time.Second)

		_, err := s.Get(ctx, "k")
		require.NoError(t, err)

		clock.Advance(time.Second)

		_, err = s.Get(ctx, "k")
		assert.ErrorIs(t, err, kv.ErrNil)
	})

	t.Run("del of missing key is not an error", func(t *testing.T) {
		s := kv.NewMemoryStore()

		assert.NoError(t, s.Del(ctx, "missing"))
	})

	t.Run("incr starts at one and keeps counting", func(t *testing.T) {
		s := kv.NewMemoryStore()

		n, err := s.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = s.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("incr rejects non-integer values", func(t *testing.T) {
		s := kv.NewMemoryStore()
		require.NoError(t, s.Set(ctx, "k", "abc", 0))

		_, err := s.Incr(ctx, "k")

		assert.Error(t, err)
	})
}

func TestMemoryStore_SortedSets(t *testing.T) {
	ctx := context.Background()

	t.Run("same member overwrites score", func(t *testing.T) {
		s := kv.NewMemoryStore()

		require.NoError(t, s.ZAdd(ctx, "z", 1, "a"))
		require.NoError(t, s.ZAdd(ctx, "z", 2, "a"))

		n, err := s.ZCard(ctx, "z")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("remove range honours exclusive bound", func(t *testing.T) {
		s := kv.NewMemoryStore()

		for i, m := range []string{"10", "20", "30"} {
			require.NoError(t, s.ZAdd(ctx, "z", float64((i+1)*10), m))
		}

		require.NoError(t, s.ZRemRangeByScore(ctx, "z", "-inf", "(20"))

		n, _ := s.ZCard(ctx, "z")
		assert.Equal(t, int64(2), n, "only the member below 20 is removed")

		require.NoError(t, s.ZRemRangeByScore(ctx, "z", "-inf", "20"))

		n, _ = s.ZCard(ctx, "z")
		assert.Equal(t, int64(1), n)
	})

	t.Run("invalid bound is rejected", func(t *testing.T) {
		s := kv.NewMemoryStore()

		assert.Error(t, s.ZRemRangeByScore(ctx, "z", "-inf", "nope"))
	})

	t.Run("expire applies to sorted sets", func(t *testing.T) {
		clock := newFakeClock()
		s := kv.NewMemoryStoreWithClock(clock.Now)

		require.NoError(t, s.ZAdd(ctx, "z", 1, "a"))
		require.NoError(t, s.Expire(ctx, "z", time.Hour))
		assert.Equal(t, time.Hour, s.TTL("z"))

		clock.Advance(time.Hour)

		n, err := s.ZCard(ctx, "z")
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, time.Duration(-2), s.TTL("z"))
	})

	t.Run("expire on missing key is a no-op", func(t *testing.T) {
		s := kv.NewMemoryStore()

		require.NoError(t, s.Expire(ctx, "missing", time.Hour))
		assert.Equal(t, time.Duration(-2), s.TTL("missing"))
	})
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "url:abc123", kv.URLKey("abc123"))
	assert.Equal(t, "analytics:abc123", kv.AnalyticsKey("abc123"))
	assert.Equal(t, "rate_limit:10.0.0.1:create_url", kv.RateLimitKey("10.0.0.1", "create_url"))
}
