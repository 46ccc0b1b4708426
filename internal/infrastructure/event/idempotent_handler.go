package event

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultIdempotencyTTL is how long a handled event id is remembered
const DefaultIdempotencyTTL = 72 * time.Hour

// IdempotencyStats is a snapshot of a handler's counters
type IdempotencyStats struct {
	Processed int64 `json:"processed"`
	Duplicate int64 `json:"duplicate"`
	Failed    int64 `json:"failed"`
}

// IdempotentHandler skips events its wrapped handler already handled.
// Keys are scoped by handler name so one failing subscriber can be retried
// without replaying the subscribers that succeeded. An event is only marked
// once the wrapped handler returns nil.
type IdempotentHandler struct {
	name    string
	handler shared.EventHandler
	store   shared.IdempotencyStore
	ttl     time.Duration
	logger  *zap.Logger

	processed atomic.Int64
	duplicate atomic.Int64
	failed    atomic.Int64
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyTTL overrides DefaultIdempotencyTTL
func WithIdempotencyTTL(ttl time.Duration) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.ttl = ttl }
}

// NewIdempotentHandler wraps handler under the given subscriber name
func NewIdempotentHandler(name string, handler shared.EventHandler, store shared.IdempotencyStore, logger *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	h := &IdempotentHandler{
		name:    name,
		handler: handler,
		store:   store,
		ttl:     DefaultIdempotencyTTL,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes delegates to the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle runs the wrapped handler unless this event was already handled
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	key := "evt:" + h.name + ":" + event.EventID().String()
	log := h.logger.With(
		zap.String("handler", h.name),
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	)

	seen, err := h.store.IsProcessed(ctx, key)
	if err != nil {
		// A duplicate is preferable to a dropped event.
		log.Warn("idempotency lookup failed, handling anyway", zap.Error(err))
	} else if seen {
		h.duplicate.Add(1)
		log.Debug("duplicate event skipped")
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.failed.Add(1)
		return err
	}
	h.processed.Add(1)

	if _, err := h.store.MarkProcessed(ctx, key, h.ttl); err != nil {
		log.Warn("failed to record handled event", zap.Error(err))
	}
	return nil
}

// Stats returns the handler's counters
func (h *IdempotentHandler) Stats() IdempotencyStats {
	return IdempotencyStats{
		Processed: h.processed.Load(),
		Duplicate: h.duplicate.Load(),
		Failed:    h.failed.Load(),
	}
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
