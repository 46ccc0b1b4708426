package scheduling

import (
	"context"
	"strings"
	"testing"
	"time"

	domaincrm "github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/scheduling"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/persistence"
	"github.com/crewdesk/backend/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type jobFixture struct {
	svc      *JobService
	tenant   *testutil.Tenant
	customer *domaincrm.Customer
	techID   uuid.UUID
	day      time.Time
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	tenant := testutil.SeedTenant(t, db, "acme")
	tech, _ := testutil.SeedMember(t, db, tenant, "tech@example.com", organization.RoleTechnician)

	customers := persistence.NewGormCustomerRepository(db)
	customer, err := domaincrm.NewCustomer(tenant.Org.ID, domaincrm.CustomerDetails{Name: "Rosa Diaz"})
	require.NoError(t, err)
	require.NoError(t, customers.Save(context.Background(), customer))

	svc := NewJobService(
		persistence.NewGormJobRepository(db),
		customers,
		persistence.NewGormMemberRepository(db),
		zap.NewNop(),
	)
	return &jobFixture{
		svc:      svc,
		tenant:   tenant,
		customer: customer,
		techID:   tech.ID,
		day:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func (f *jobFixture) create(t *testing.T, title string, startHour, endHour int, crew ...uuid.UUID) (*JobResponse, error) {
	t.Helper()
	return f.svc.Create(context.Background(), f.tenant.Org.ID, f.tenant.Owner.ID, CreateJobRequest{
		CustomerID:     f.customer.ID,
		Title:          title,
		ScheduledStart: f.day.Add(time.Duration(startHour) * time.Hour),
		ScheduledEnd:   f.day.Add(time.Duration(endHour) * time.Hour),
		AssigneeIDs:    crew,
	})
}

func TestJobService_CreateValidatesCustomerAndCrew(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.tenant.Org.ID, f.tenant.Owner.ID, CreateJobRequest{
		CustomerID:     uuid.New(),
		Title:          "Fix boiler",
		ScheduledStart: f.day,
		ScheduledEnd:   f.day.Add(time.Hour),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = f.create(t, "Fix boiler", 9, 10, uuid.New())
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	job, err := f.create(t, "Fix boiler", 9, 10, f.techID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.techID}, job.Assignees)
	assert.Equal(t, "scheduled", job.Status)
}

func TestJobService_AssignDetectsConflicts(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	first, err := f.create(t, "Morning install", 9, 12, f.techID)
	require.NoError(t, err)

	overlapping, err := f.create(t, "Late morning repair", 11, 13)
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, f.tenant.Org.ID, overlapping.ID, AssignJobRequest{AssigneeIDs: []uuid.UUID{f.techID}})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.True(t, strings.Contains(err.Error(), first.ID.String()), "error should name the conflicting job: %v", err)

	adjacent, err := f.create(t, "Afternoon check", 12, 14)
	require.NoError(t, err)
	assigned, err := f.svc.Assign(ctx, f.tenant.Org.ID, adjacent.ID, AssignJobRequest{AssigneeIDs: []uuid.UUID{f.techID}})
	require.NoError(t, err)
	assert.Len(t, assigned.Assignees, 1)

	t.Run("cancelled jobs free the slot", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, f.tenant.Org.ID, first.ID, TransitionRequest{Note: "customer away"})
		require.NoError(t, err)
		_, err = f.svc.Assign(ctx, f.tenant.Org.ID, overlapping.ID, AssignJobRequest{AssigneeIDs: []uuid.UUID{f.techID}})
		require.Error(t, err, "still overlaps the 12:00 job")

		_, err = f.svc.Update(ctx, f.tenant.Org.ID, overlapping.ID, UpdateJobRequest{
			Title:        "Late morning repair",
			ScheduledEnd: ptr(f.day.Add(12 * time.Hour)),
		})
		require.NoError(t, err)
		_, err = f.svc.Assign(ctx, f.tenant.Org.ID, overlapping.ID, AssignJobRequest{AssigneeIDs: []uuid.UUID{f.techID}})
		require.NoError(t, err)
	})
}

func TestJobService_Lifecycle(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	orgID := f.tenant.Org.ID

	job, err := f.create(t, "Replace filter", 8, 9)
	require.NoError(t, err)

	_, err = f.svc.Dispatch(ctx, orgID, job.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState, "dispatch needs a crew")

	_, err = f.svc.Assign(ctx, orgID, job.ID, AssignJobRequest{AssigneeIDs: []uuid.UUID{f.techID}})
	require.NoError(t, err)
	dispatched, err := f.svc.Dispatch(ctx, orgID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "dispatched", dispatched.Status)

	_, err = f.svc.Start(ctx, orgID, job.ID, JobActor{UserID: uuid.New(), AssignedOnly: true})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	tech := JobActor{UserID: f.techID, AssignedOnly: true}
	_, err = f.svc.Start(ctx, orgID, job.ID, tech)
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, orgID, job.ID, tech, TransitionRequest{
		Note: "all good",
		Items: []BillableItemRequest{{
			Description: "Filter", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("19.99"),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", done.Status)
	assert.Equal(t, "all good", done.CompletionNotes)
	require.Len(t, done.BillableItems, 1)

	reloaded, err := f.svc.GetByID(ctx, orgID, job.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.BillableItems, 1)
	assert.NotNil(t, reloaded.CompletedAt)

	_, err = f.svc.Cancel(ctx, orgID, job.ID, TransitionRequest{})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestJobService_TransitionJob(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	job, err := f.create(t, "Inspect roof", 10, 11, f.techID)
	require.NoError(t, err)

	got, err := f.svc.TransitionJob(ctx, f.tenant.Org.ID, job.ID, scheduling.JobStatusDispatched, "")
	require.NoError(t, err)
	assert.Equal(t, scheduling.JobStatusDispatched, got.Status)

	again, err := f.svc.TransitionJob(ctx, f.tenant.Org.ID, job.ID, scheduling.JobStatusDispatched, "")
	require.NoError(t, err, "same status is a no-op")
	assert.Equal(t, got.Version, again.Version)

	_, err = f.svc.TransitionJob(ctx, f.tenant.Org.ID, job.ID, scheduling.JobStatusScheduled, "")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestJobService_Schedule(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	orgID := f.tenant.Org.ID

	_, err := f.create(t, "Mine", 9, 10, f.techID)
	require.NoError(t, err)
	_, err = f.create(t, "Unassigned", 11, 12)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, orgID, f.tenant.Owner.ID, CreateJobRequest{
		CustomerID: f.customer.ID, Title: "Next week",
		ScheduledStart: f.day.Add(7 * 24 * time.Hour), ScheduledEnd: f.day.Add(7*24*time.Hour + time.Hour),
	})
	require.NoError(t, err)

	all, err := f.svc.Schedule(ctx, orgID, ScheduleQuery{From: f.day, To: f.day.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Mine", all[0].Title)
	assert.Equal(t, "Rosa Diaz", all[0].CustomerName)

	mine, err := f.svc.Schedule(ctx, orgID, ScheduleQuery{From: f.day, To: f.day.Add(24 * time.Hour), MemberID: f.techID.String()})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	_, err = f.svc.Schedule(ctx, orgID, ScheduleQuery{From: f.day, To: f.day.Add(90 * 24 * time.Hour)})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = f.svc.Schedule(ctx, orgID, ScheduleQuery{From: f.day, To: f.day})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func ptr[T any](v T) *T { return &v }
