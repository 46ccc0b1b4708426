package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultIdempotencyPrefix = "crewdesk:idem:"

// RedisIdempotencyStore shares processed keys across instances
type RedisIdempotencyStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisIdempotencyStore wraps an existing client. The client is owned by
// the caller and is not closed by Close.
func NewRedisIdempotencyStore(client redis.Cmdable, prefix string) *RedisIdempotencyStore {
	if prefix == "" {
		prefix = defaultIdempotencyPrefix
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix}
}

// MarkProcessed sets the key with SETNX so concurrent deliveries race safely
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark %q processed: %w", key, err)
	}
	return ok, nil
}

// IsProcessed reports whether the key is still held
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %q: %w", key, err)
	}
	return n > 0, nil
}

// Close is a no-op
func (s *RedisIdempotencyStore) Close() error { return nil }

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
