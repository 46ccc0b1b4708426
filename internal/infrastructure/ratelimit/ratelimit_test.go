package ratelimit

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("limit then reject", func(t *testing.T) {
		clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
		l := newMemoryLimiter(3, time.Minute, clock.Now)

		for i := 1; i <= 3; i++ {
			r, err := l.Allow(ctx, "ip:1")
			require.NoError(t, err)
			assert.True(t, r.Allowed, "request %d", i)
			assert.Equal(t, 3-i, r.Remaining)
			assert.Equal(t, 3, r.Limit)
		}
		r, _ := l.Allow(ctx, "ip:1")
		assert.False(t, r.Allowed)
		assert.Equal(t, 0, r.Remaining)
		assert.Equal(t, time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC), r.ResetAt)
		assert.Equal(t, time.Minute, r.RetryAfter(clock.Now()))
	})

	t.Run("keys are independent", func(t *testing.T) {
		clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
		l := newMemoryLimiter(1, time.Minute, clock.Now)
		r, _ := l.Allow(ctx, "a")
		assert.True(t, r.Allowed)
		r, _ = l.Allow(ctx, "a")
		assert.False(t, r.Allowed)
		r, _ = l.Allow(ctx, "b")
		assert.True(t, r.Allowed)
	})

	t.Run("new window resets", func(t *testing.T) {
		clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 30, 0, time.UTC)}
		l := newMemoryLimiter(2, time.Minute, clock.Now)
		_, _ = l.Allow(ctx, "k")
		_, _ = l.Allow(ctx, "k")
		r, _ := l.Allow(ctx, "k")
		assert.False(t, r.Allowed)

		clock.Advance(30 * time.Second)
		r, _ = l.Allow(ctx, "k")
		assert.True(t, r.Allowed)
		assert.Equal(t, 1, r.Remaining)
	})

	t.Run("sweep drops stale windows", func(t *testing.T) {
		clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
		l := newMemoryLimiter(5, time.Minute, clock.Now)
		_, _ = l.Allow(ctx, "a")
		_, _ = l.Allow(ctx, "b")
		clock.Advance(2 * time.Minute)
		_, _ = l.Allow(ctx, "c")
		l.sweep()
		assert.Equal(t, 1, l.size())
	})

	t.Run("concurrent callers never exceed the limit", func(t *testing.T) {
		l := NewMemoryLimiter(100, time.Hour)
		defer l.Close()
		var mu sync.Mutex
		allowed := 0
		var wg sync.WaitGroup
		for i := 0; i < 150; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if r, _ := l.Allow(ctx, "shared"); r.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, allowed, 100)
		assert.GreaterOrEqual(t, allowed, 1)
	})
}

func TestRedisLimiter_Key(t *testing.T) {
	l := NewRedisLimiter(nil, "", 10, time.Minute)
	start := time.Unix(1700000040, 0)
	assert.Equal(t, "crewdesk:rl:ip:1.2.3.4:1700000040", l.key("ip:1.2.3.4", start))
}

func TestRedisLimiter(t *testing.T) {
	host := os.Getenv("CREWDESK_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("CREWDESK_TEST_REDIS_HOST not set")
	}
	port := os.Getenv("CREWDESK_TEST_REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	client := redis.NewClient(&redis.Options{Addr: host + ":" + port, DB: 15})
	defer client.Close()

	ctx := context.Background()
	prefix := "test:rl:" + strconv.FormatInt(time.Now().UnixNano(), 10) + ":"
	l := NewRedisLimiter(client, prefix, 2, time.Minute)
	fixed := time.Now()
	l.now = func() time.Time { return fixed }

	r, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	r, _ = l.Allow(ctx, "k")
	assert.True(t, r.Allowed)
	r, _ = l.Allow(ctx, "k")
	assert.False(t, r.Allowed)

	ttl, err := client.TTL(ctx, l.key("k", windowStart(fixed, time.Minute))).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
