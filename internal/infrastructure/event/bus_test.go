package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEvent struct {
	shared.BaseDomainEvent
	Status string `json:"status"`
}

func newTestEvent(eventType string, orgID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Job", uuid.New(), orgID),
		Status:          "completed",
	}
}

type testHandler struct {
	mu      sync.Mutex
	types   []string
	handled []shared.DomainEvent
	err     error
	panics  bool
}

func newTestHandler(types ...string) *testHandler {
	return &testHandler{types: types}
}

func (h *testHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panics {
		panic("boom")
	}
	h.handled = append(h.handled, event)
	return h.err
}

func (h *testHandler) EventTypes() []string { return h.types }

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestHandlerRegistry_Patterns(t *testing.T) {
	r := NewHandlerRegistry()
	exact := newTestHandler()
	prefix := newTestHandler()
	all := newTestHandler()

	r.Register(exact, "job.completed")
	r.Register(prefix, "job.*", "job.completed")
	r.Register(all)

	assert.ElementsMatch(t, []shared.EventHandler{exact, prefix, all}, r.GetHandlers("job.completed"))
	assert.ElementsMatch(t, []shared.EventHandler{prefix, all}, r.GetHandlers("job.dispatched"))
	assert.ElementsMatch(t, []shared.EventHandler{all}, r.GetHandlers("invoice.paid"))
	assert.Equal(t, 3, r.Len())

	r.Unregister(prefix)
	assert.ElementsMatch(t, []shared.EventHandler{exact, all}, r.GetHandlers("job.completed"))
	assert.Equal(t, 2, r.Len())
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	ctx := context.Background()
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Start(ctx))

	jobs := newTestHandler("job.*")
	invoices := newTestHandler("invoice.paid")
	bus.Subscribe(jobs)
	bus.Subscribe(invoices)

	org := uuid.New()
	require.NoError(t, bus.Publish(ctx, newTestEvent("job.completed", org), newTestEvent("invoice.paid", org)))
	assert.Equal(t, 1, jobs.count())
	assert.Equal(t, 1, invoices.count())

	bus.Unsubscribe(jobs)
	require.NoError(t, bus.Publish(ctx, newTestEvent("job.started", org)))
	assert.Equal(t, 1, jobs.count())
}

func TestInMemoryEventBus_HandlerFailures(t *testing.T) {
	ctx := context.Background()
	bus := NewInMemoryEventBus(zap.NewNop())

	failing := newTestHandler()
	failing.err = errors.New("sms gateway down")
	panicking := newTestHandler()
	panicking.panics = true
	healthy := newTestHandler()
	bus.Subscribe(failing, "job.completed")
	bus.Subscribe(panicking, "job.completed")
	bus.Subscribe(healthy, "job.completed")

	err := bus.Publish(ctx, newTestEvent("job.completed", uuid.New()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sms gateway down")
	assert.Contains(t, err.Error(), "handler panic")
	assert.Equal(t, 1, healthy.count(), "other handlers still run")
}

func TestInMemoryEventBus_Stopped(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Stop(context.Background()))
	assert.ErrorIs(t, bus.Publish(context.Background(), newTestEvent("job.completed", uuid.New())), ErrBusStopped)
}
