package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/shortlink/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T) (*kv.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	store := kv.NewRedisStore(redis.NewClient(&redis.Options{Addr: server.Addr()}), time.Second)
	t.Cleanup(func() { _ = store.Shutdown() })

	return store, server
}

func TestRedisStore_Strings(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing key maps redis.Nil to ErrNil", func(t *testing.T) {
		s, _ := newMiniRedisStore(t)

		_, err := s.Get(ctx, "url:missing")

		assert.ErrorIs(t, err, kv.ErrNil)
	})

	t.Run("set applies the ttl", func(t *testing.T) {
		s, server := newMiniRedisStore(t)

		require.NoError(t, s.Set(ctx, "url:abc123", "payload", time.Hour))

		got, err := s.Get(ctx, "url:abc123")
		require.NoError(t, err)
		assert.Equal(t, "payload", got)
		assert.Equal(t, time.Hour, server.TTL("url:abc123"))

		server.FastForward(time.Hour)

		_, err = s.Get(ctx, "url:abc123")
		assert.ErrorIs(t, err, kv.ErrNil)
	})

	t.Run("del without keys is a no-op", func(t *testing.T) {
		s, _ := newMiniRedisStore(t)

		assert.NoError(t, s.Del(ctx))
		assert.NoError(t, s.Del(ctx, "url:missing"))
	})

	t.Run("incr counts from zero", func(t *testing.T) {
		s, _ := newMiniRedisStore(t)

		for want := int64(1); want <= 3; want++ {
			n, err := s.Incr(ctx, kv.AnalyticsKey("abc123"))
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}
	})

	t.Run("backend errors surface unchanged", func(t *testing.T) {
		s, server := newMiniRedisStore(t)
		server.SetError("LOADING dataset in memory")

		_, err := s.Get(ctx, "url:abc123")

		require.Error(t, err)
		assert.NotErrorIs(t, err, kv.ErrNil)
		assert.Error(t, s.Ping(ctx))
	})
}

func TestRedisStore_SortedSets(t *testing.T) {
	ctx := context.Background()
	key := kv.RateLimitKey("127.0.0.1", "create_url")

	t.Run("exclusive bound keeps the boundary member", func(t *testing.T) {
		s, _ := newMiniRedisStore(t)

		require.NoError(t, s.ZAdd(ctx, key, 100, "100"))
		require.NoError(t, s.ZAdd(ctx, key, 200, "200"))
		require.NoError(t, s.ZRemRangeByScore(ctx, key, "-inf", "(200"))

		n, err := s.ZCard(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("same member is stored once", func(t *testing.T) {
		s, _ := newMiniRedisStore(t)

		require.NoError(t, s.ZAdd(ctx, key, 100, "100"))
		require.NoError(t, s.ZAdd(ctx, key, 100, "100"))

		n, err := s.ZCard(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("expire sets the window ttl", func(t *testing.T) {
		s, server := newMiniRedisStore(t)

		require.NoError(t, s.ZAdd(ctx, key, 100, "100"))
		require.NoError(t, s.Expire(ctx, key, time.Minute))

		assert.Equal(t, time.Minute, server.TTL(key))
	})
}
