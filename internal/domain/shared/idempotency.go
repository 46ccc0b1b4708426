package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed keys, such as webhook delivery ids,
// so a redelivered message is acknowledged without being applied twice.
type IdempotencyStore interface {
	// MarkProcessed returns true if the key was newly marked, false if it was seen before
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	Close() error
}
