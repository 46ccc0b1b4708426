package cache

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crewdesk/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*InMemoryIdempotencyStore, *time.Time) {
	t.Helper()
	s := NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = s.Close() })
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestInMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("first mark wins", func(t *testing.T) {
		s, _ := newTestStore(t)
		ok, err := s.MarkProcessed(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.MarkProcessed(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		seen, _ := s.IsProcessed(ctx, "evt_1")
		assert.True(t, seen)
		seen, _ = s.IsProcessed(ctx, "evt_2")
		assert.False(t, seen)
	})

	t.Run("expired keys can be marked again", func(t *testing.T) {
		s, now := newTestStore(t)
		ok, _ := s.MarkProcessed(ctx, "evt_1", time.Minute)
		assert.True(t, ok)

		*now = now.Add(time.Minute)
		seen, _ := s.IsProcessed(ctx, "evt_1")
		assert.False(t, seen)
		ok, _ = s.MarkProcessed(ctx, "evt_1", time.Minute)
		assert.True(t, ok)
	})

	t.Run("sweep drops expired keys", func(t *testing.T) {
		s, now := newTestStore(t)
		_, _ = s.MarkProcessed(ctx, "a", time.Second)
		_, _ = s.MarkProcessed(ctx, "b", time.Hour)
		*now = now.Add(time.Minute)
		s.sweep()
		assert.Equal(t, 1, s.Len())
	})

	t.Run("concurrent marks admit exactly one", func(t *testing.T) {
		s, _ := newTestStore(t)
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := s.MarkProcessed(ctx, "same", time.Hour); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		s := NewInMemoryIdempotencyStore()
		assert.NoError(t, s.Close())
		assert.NoError(t, s.Close())
	})
}

func TestNewRedisClient_Disabled(t *testing.T) {
	client, err := NewRedisClient(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)

	store := NewIdempotencyStore(nil, zap.NewNop())
	defer store.Close()
	_, ok := store.(*InMemoryIdempotencyStore)
	assert.True(t, ok)
}

// redisFromEnv connects to CREWDESK_TEST_REDIS_HOST or skips the test
func redisFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()
	host := os.Getenv("CREWDESK_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("CREWDESK_TEST_REDIS_HOST not set")
	}
	port := 6379
	if p, err := strconv.Atoi(os.Getenv("CREWDESK_TEST_REDIS_PORT")); err == nil {
		port = p
	}
	return config.RedisConfig{Host: host, Port: port, DB: 15}
}

func TestRedisIdempotencyStore(t *testing.T) {
	cfg := redisFromEnv(t)
	ctx := context.Background()
	client, err := NewRedisClient(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	s := NewRedisIdempotencyStore(client, "test:idem:"+strconv.FormatInt(time.Now().UnixNano(), 10)+":")
	ok, err := s.MarkProcessed(ctx, "evt", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.MarkProcessed(ctx, "evt", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	seen, err := s.IsProcessed(ctx, "evt")
	require.NoError(t, err)
	assert.True(t, seen)
}
