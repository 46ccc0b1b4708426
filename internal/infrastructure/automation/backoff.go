package automation

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/notify"
)

// backoff returns a full-jitter delay in [0, min(base*2^(attempt-1), max)]
func (e *Engine) backoff(attempt int) time.Duration {
	ceiling := float64(e.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	if e.cfg.RetryMaxDelay > 0 && ceiling > float64(e.cfg.RetryMaxDelay) {
		ceiling = float64(e.cfg.RetryMaxDelay)
	}
	return time.Duration(rand.Float64() * ceiling) //nolint:gosec // jitter only
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PermanentError marks a step failure that retrying cannot fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the step is not retried
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Retryable reports whether a step error is worth another attempt. Domain
// errors, unconfigured channels and errors that classify themselves as
// non-retryable fail the step immediately.
func Retryable(err error) bool {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	var classified interface{ Retryable() bool }
	if errors.As(err, &classified) {
		return classified.Retryable()
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return false
	}
	if errors.Is(err, notify.ErrNotConfigured) || errors.Is(err, notify.ErrUnregisteredToken) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
