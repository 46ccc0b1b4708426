package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares windows across instances with INCR and EXPIRE
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows limit requests per key per window
func NewRedisLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "crewdesk:rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (l *RedisLimiter) key(key string, start time.Time) string {
	return l.prefix + key + ":" + strconv.FormatInt(start.Unix(), 10)
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	start := windowStart(l.now(), l.window)
	k := l.key(key, start)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		// outlive the window slightly so clock skew between instances cannot reset early
		pipe.Expire(ctx, k, l.window+time.Second)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate limit counter %s: %w", key, err)
	}
	return result(int(incr.Val()), l.limit, start, l.window), nil
}

var _ Limiter = (*RedisLimiter)(nil)
