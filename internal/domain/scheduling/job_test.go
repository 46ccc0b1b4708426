package scheduling

import (
	"testing"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	monday9  = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	monday11 = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
)

func newTestJob(t *testing.T) *Job {
	t.Helper()
	j, err := NewJob(uuid.New(), uuid.New(), JobDetails{Title: "Replace water heater"}, monday9, monday11)
	require.NoError(t, err)
	j.ClearDomainEvents()
	return j
}

func eventTypes(j *Job) []string {
	var out []string
	for _, e := range j.GetDomainEvents() {
		out = append(out, e.EventType())
	}
	return out
}

func TestNewJob(t *testing.T) {
	j, err := NewJob(uuid.New(), uuid.New(), JobDetails{Title: " Tune-up ", Priority: PriorityHigh}, monday9, monday11)
	require.NoError(t, err)
	assert.Equal(t, "Tune-up", j.Title)
	assert.Equal(t, JobStatusScheduled, j.Status)
	assert.Equal(t, PriorityHigh, j.Priority)
	assert.Equal(t, 2*time.Hour, j.Duration())
	assert.Equal(t, []string{EventTypeJobCreated}, eventTypes(j))

	tests := []struct {
		name       string
		customer   uuid.UUID
		d          JobDetails
		start, end time.Time
	}{
		{"no customer", uuid.Nil, JobDetails{Title: "x"}, monday9, monday11},
		{"no title", uuid.New(), JobDetails{}, monday9, monday11},
		{"end before start", uuid.New(), JobDetails{Title: "x"}, monday11, monday9},
		{"zero window", uuid.New(), JobDetails{Title: "x"}, time.Time{}, monday11},
		{"too long", uuid.New(), JobDetails{Title: "x"}, monday9, monday9.Add(15 * 24 * time.Hour)},
		{"bad priority", uuid.New(), JobDetails{Title: "x", Priority: "asap"}, monday9, monday11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJob(uuid.New(), tt.customer, tt.d, tt.start, tt.end)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	j := newTestJob(t)
	tech := uuid.New()
	now := monday9.Add(-time.Hour)

	assert.ErrorIs(t, j.Dispatch(now), shared.ErrInvalidState, "dispatch requires an assignee")
	assert.ErrorIs(t, j.Start(now), shared.ErrInvalidState)

	require.NoError(t, j.Assign([]uuid.UUID{tech, tech, uuid.Nil}))
	assert.Equal(t, []uuid.UUID{tech}, j.Assignees)
	assert.True(t, j.IsAssignedTo(tech))

	require.NoError(t, j.Dispatch(now))
	assert.ErrorIs(t, j.Assign(nil), shared.ErrInvalidState, "dispatched job must keep crew")
	assert.ErrorIs(t, j.Complete(now, ""), shared.ErrInvalidState)

	require.NoError(t, j.Start(monday9))
	assert.ErrorIs(t, j.Reschedule(monday9, monday11), shared.ErrInvalidState)
	require.NoError(t, j.Complete(monday11, " replaced anode "))
	assert.Equal(t, "replaced anode", j.CompletionNotes)
	assert.NotNil(t, j.CompletedAt)

	assert.ErrorIs(t, j.Cancel(monday11, "late"), shared.ErrInvalidState)
	assert.ErrorIs(t, j.UpdateDetails(JobDetails{Title: "x"}), shared.ErrInvalidState)

	assert.Equal(t, []string{
		EventTypeJobAssigned, EventTypeJobDispatched, EventTypeJobStarted, EventTypeJobCompleted,
	}, eventTypes(j))

	evt := j.GetDomainEvents()[3].(*JobEvent)
	assert.Equal(t, JobStatusCompleted, evt.Status)
	assert.Equal(t, []uuid.UUID{tech}, evt.Assignees)
}

func TestJob_Cancel(t *testing.T) {
	for _, status := range []JobStatus{JobStatusScheduled, JobStatusDispatched, JobStatusInProgress} {
		t.Run(string(status), func(t *testing.T) {
			j := newTestJob(t)
			j.Status = status
			require.NoError(t, j.Cancel(monday9, " customer moved "))
			assert.Equal(t, JobStatusCancelled, j.Status)
			assert.Equal(t, "customer moved", j.CancelReason)
		})
	}
}

func TestJob_Reschedule(t *testing.T) {
	j := newTestJob(t)
	require.NoError(t, j.Reschedule(monday11, monday11.Add(time.Hour)))
	assert.Equal(t, monday11, j.ScheduledStart)
	assert.Error(t, j.Reschedule(monday11, monday11))
	assert.Equal(t, []string{EventTypeJobRescheduled}, eventTypes(j))
}

func TestJob_Overlaps(t *testing.T) {
	j := newTestJob(t)
	assert.True(t, j.Overlaps(monday9.Add(time.Hour), monday11.Add(time.Hour)))
	assert.True(t, j.Overlaps(monday9.Add(-time.Hour), monday11.Add(time.Hour)))
	assert.False(t, j.Overlaps(monday11, monday11.Add(time.Hour)), "touching windows do not overlap")
	assert.False(t, j.Overlaps(monday9.Add(-2*time.Hour), monday9))
}

func TestJob_BillableItemsAndInvoicing(t *testing.T) {
	j := newTestJob(t)
	item := BillableItem{Description: "Labour", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(95)}
	require.NoError(t, j.AddBillableItem(item))
	assert.Error(t, j.AddBillableItem(BillableItem{Description: "x", Quantity: decimal.Zero, UnitPrice: decimal.NewFromInt(1)}))
	assert.Error(t, j.AddBillableItem(BillableItem{Quantity: decimal.NewFromInt(1)}))

	invoiceID := uuid.New()
	assert.ErrorIs(t, j.MarkInvoiced(invoiceID), shared.ErrInvalidState)

	j.Status = JobStatusCompleted
	require.NoError(t, j.MarkInvoiced(invoiceID))
	assert.ErrorIs(t, j.MarkInvoiced(uuid.New()), shared.ErrInvalidState)
	assert.ErrorIs(t, j.AddBillableItem(item), shared.ErrInvalidState)
}
