package repository

import (
	"context"
	"testing"
	"time"

	"cuebook/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBookingStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisBookingStore(client)
	ctx := context.Background()

	t.Run("BeginFinishReplay", func(t *testing.T) {
		id, started, err := repo.Begin(ctx, "1:req-a", time.Hour)
		require.NoError(t, err)
		assert.True(t, started)
		assert.Zero(t, id)

		// second caller while the first is running
		id, started, err = repo.Begin(ctx, "1:req-a", time.Hour)
		require.NoError(t, err)
		assert.False(t, started)
		assert.Zero(t, id)

		require.NoError(t, repo.Finish(ctx, "1:req-a", 77, time.Hour))

		id, started, err = repo.Begin(ctx, "1:req-a", time.Hour)
		require.NoError(t, err)
		assert.False(t, started)
		assert.Equal(t, int64(77), id)

		ttl := s.TTL("idem:1:req-a")
		assert.True(t, ttl > 0 && ttl <= time.Hour)
	})

	t.Run("AbortReleasesKey", func(t *testing.T) {
		_, started, err := repo.Begin(ctx, "1:req-b", time.Hour)
		require.NoError(t, err)
		require.True(t, started)

		require.NoError(t, repo.Abort(ctx, "1:req-b"))

		_, started, err = repo.Begin(ctx, "1:req-b", time.Hour)
		require.NoError(t, err)
		assert.True(t, started)
	})

	t.Run("KeyExpires", func(t *testing.T) {
		_, started, err := repo.Begin(ctx, "1:req-c", time.Second)
		require.NoError(t, err)
		require.True(t, started)

		s.FastForward(2 * time.Second)

		_, started, err = repo.Begin(ctx, "1:req-c", time.Second)
		require.NoError(t, err)
		assert.True(t, started)
	})

	t.Run("CorruptValue", func(t *testing.T) {
		require.NoError(t, s.Set("idem:1:req-d", "not-a-number"))
		_, _, err := repo.Begin(ctx, "1:req-d", time.Hour)
		assert.Error(t, err)
	})

	t.Run("RateLimit", func(t *testing.T) {
		customerID := int64(789)
		limit := 2
		window := time.Second

		// First request
		allowed, err := repo.CheckRateLimit(ctx, customerID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		// Second request
		allowed, err = repo.CheckRateLimit(ctx, customerID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		// Third request (exceeds limit)
		allowed, err = repo.CheckRateLimit(ctx, customerID, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		// Wait for window to expire
		s.FastForward(window + time.Millisecond)

		// Should be allowed again
		allowed, err = repo.CheckRateLimit(ctx, customerID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisBookingStore(nil)
		_, _, err := repo.Begin(ctx, "x", time.Hour)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		err := Ping(ctx, client)
		assert.NoError(t, err)
	})

	t.Run("Close", func(t *testing.T) {
		err := Close(client)
		assert.NoError(t, err)
	})
}

func TestRedisBookingStore_ServerDown(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	s.Close()

	repo := NewRedisBookingStore(client)
	_, _, err = repo.Begin(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}
