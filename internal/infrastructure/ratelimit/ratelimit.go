// Package ratelimit implements fixed-window request counters, in process or
// shared through Redis.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the state of a key's window after a request was counted
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long until the window resets, relative to now
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Limiter counts one request for key and reports whether it is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// windowStart aligns t to the start of its fixed window
func windowStart(t time.Time, window time.Duration) time.Time {
	return t.Truncate(window)
}

func result(count, limit int, start time.Time, window time.Duration) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   start.Add(window),
	}
}
