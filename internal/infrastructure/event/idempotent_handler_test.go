package event

import (
	"context"
	"errors"
	"testing"

	"github.com/crewdesk/backend/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })

	inner := newTestHandler("job.completed")
	h := NewIdempotentHandler("notify", inner, store, zap.NewNop())
	assert.Equal(t, []string{"job.completed"}, h.EventTypes())

	ev := newTestEvent("job.completed", uuid.New())

	t.Run("failure is not remembered", func(t *testing.T) {
		inner.err = errors.New("transient")
		require.Error(t, h.Handle(ctx, ev))
		inner.err = nil
		require.NoError(t, h.Handle(ctx, ev))
		assert.Equal(t, 2, inner.count())
	})

	t.Run("redelivery is skipped", func(t *testing.T) {
		require.NoError(t, h.Handle(ctx, ev))
		assert.Equal(t, 2, inner.count())
		assert.Equal(t, IdempotencyStats{Processed: 1, Duplicate: 1, Failed: 1}, h.Stats())
	})

	t.Run("keys are scoped per handler", func(t *testing.T) {
		other := newTestHandler()
		h2 := NewIdempotentHandler("automation", other, store, zap.NewNop())
		require.NoError(t, h2.Handle(ctx, ev))
		assert.Equal(t, 1, other.count())
	})
}
