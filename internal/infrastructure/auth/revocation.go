package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RevocationList invalidates tokens before they expire. Single tokens are
// revoked by jti on logout. RevokeUser cuts every session issued in an earlier
// second than the call, so a pair issued right after a password change survives.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error
	IssuedBeforeUserRevocation(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// NewRevocationList returns a Redis-backed list when client is non-nil
func NewRevocationList(client *redis.Client, logger *zap.Logger) RevocationList {
	if client != nil {
		return NewRedisRevocationList(client)
	}
	logger.Warn("Redis not configured, token revocation is per instance")
	return NewMemoryRevocationList()
}

const revocationPrefix = "crewdesk:revoked:"

// RedisRevocationList keeps revoked ids in Redis with the token's remaining TTL
type RedisRevocationList struct {
	client redis.Cmdable
}

// NewRedisRevocationList wraps an existing client
func NewRedisRevocationList(client redis.Cmdable) *RedisRevocationList {
	return &RedisRevocationList{client: client}
}

func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, revocationPrefix+"jti:"+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, revocationPrefix+"jti:"+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

func (l *RedisRevocationList) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	err := l.client.Set(ctx, revocationPrefix+"user:"+userID, time.Now().Unix(), ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

func (l *RedisRevocationList) IssuedBeforeUserRevocation(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	raw, err := l.client.Get(ctx, revocationPrefix+"user:"+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user revocation: %w", err)
	}
	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("corrupt user revocation timestamp: %w", err)
	}
	return issuedAt.Unix() < cutoff, nil
}

// MemoryRevocationList is the single-instance fallback
type MemoryRevocationList struct {
	mu    sync.Mutex
	jtis  map[string]time.Time // jti -> expiry
	users map[string]time.Time // user -> cutoff
	now   func() time.Time
}

// NewMemoryRevocationList creates an empty list
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{
		jtis:  make(map[string]time.Time),
		users: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (l *MemoryRevocationList) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, exp := range l.jtis {
		if now.After(exp) {
			delete(l.jtis, k)
		}
	}
	l.jtis[jti] = now.Add(ttl)
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.jtis[jti]
	if !ok {
		return false, nil
	}
	if l.now().After(exp) {
		delete(l.jtis, jti)
		return false, nil
	}
	return true, nil
}

func (l *MemoryRevocationList) RevokeUser(_ context.Context, userID string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[userID] = l.now()
	return nil
}

func (l *MemoryRevocationList) IssuedBeforeUserRevocation(_ context.Context, userID string, issuedAt time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff, ok := l.users[userID]
	if !ok {
		return false, nil
	}
	return issuedAt.Unix() < cutoff.Unix(), nil
}

var (
	_ RevocationList = (*RedisRevocationList)(nil)
	_ RevocationList = (*MemoryRevocationList)(nil)
)
