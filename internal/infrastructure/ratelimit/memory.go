package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	start time.Time
	count int
}

// MemoryLimiter keeps windows in a map. Suitable for a single instance.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*counter
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewMemoryLimiter allows limit requests per key per window. Expired windows
// are swept every two windows until Close is called.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	l := newMemoryLimiter(limit, window, time.Now)
	go l.sweepLoop()
	return l
}

func newMemoryLimiter(limit int, window time.Duration, now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*counter),
		now:     now,
		stop:    make(chan struct{}),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := windowStart(l.now(), l.window)
	c, ok := l.windows[key]
	if !ok || !c.start.Equal(start) {
		c = &counter{start: start}
		l.windows[key] = c
	}
	// rejected requests are not counted so Remaining stays at zero
	if c.count < l.limit {
		c.count++
		return result(c.count, l.limit, start, l.window), nil
	}
	return result(l.limit+1, l.limit, start, l.window), nil
}

// Close stops the sweeper
func (l *MemoryLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := windowStart(l.now(), l.window)
	for k, c := range l.windows {
		if c.start.Before(current) {
			delete(l.windows, k)
		}
	}
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

var _ Limiter = (*MemoryLimiter)(nil)
