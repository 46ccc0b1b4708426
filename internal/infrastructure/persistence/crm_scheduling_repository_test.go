package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/scheduling"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormCustomerRepository_List(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormCustomerRepository(db)
	ctx := context.Background()
	orgID := uuid.New()

	for _, c := range []*crm.Customer{
		newCustomer(t, orgID, "alice", "vip", "north"),
		newCustomer(t, orgID, "bob", "north"),
		newCustomer(t, orgID, "carol"),
		newCustomer(t, uuid.New(), "mallory", "vip"),
	} {
		require.NoError(t, repo.Save(ctx, c))
	}
	archived := newCustomer(t, orgID, "dave", "vip")
	archived.Archive()
	require.NoError(t, repo.Save(ctx, archived))

	t.Run("scopes to organization and hides archived", func(t *testing.T) {
		items, total, err := repo.List(ctx, orgID, crm.CustomerFilter{Filter: shared.DefaultFilter()})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, items, 3)
	})

	t.Run("includes archived on request", func(t *testing.T) {
		_, total, err := repo.List(ctx, orgID, crm.CustomerFilter{Filter: shared.DefaultFilter(), IncludeArchived: true})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
	})

	t.Run("filters by tag", func(t *testing.T) {
		items, total, err := repo.List(ctx, orgID, crm.CustomerFilter{Filter: shared.DefaultFilter(), Tag: "vip"})
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		assert.Equal(t, "alice", items[0].Name)
	})

	t.Run("searches case-insensitively", func(t *testing.T) {
		f := shared.DefaultFilter()
		f.Search = "BO"
		items, _, err := repo.List(ctx, orgID, crm.CustomerFilter{Filter: f})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "bob", items[0].Name)
	})

	t.Run("pages with a stable order", func(t *testing.T) {
		f := shared.DefaultFilter()
		f.PageSize = 2
		f.OrderBy = "name"
		f.OrderDir = "asc"
		items, total, err := repo.List(ctx, orgID, crm.CustomerFilter{Filter: f})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, items, 2)
		assert.Equal(t, "alice", items[0].Name)
		assert.Equal(t, "bob", items[1].Name)
	})

	t.Run("finds by ids within organization only", func(t *testing.T) {
		items, err := repo.FindByIDs(ctx, orgID, []uuid.UUID{archived.ID, uuid.New()})
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})
}

func TestGormCustomerRepository_ExistingEmails(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormCustomerRepository(db)
	ctx := context.Background()
	orgID := uuid.New()

	archived := newCustomer(t, orgID, "erin")
	archived.Archive()
	for _, c := range []*crm.Customer{newCustomer(t, orgID, "frank"), archived, newCustomer(t, uuid.New(), "gina")} {
		require.NoError(t, repo.Save(ctx, c))
	}

	found, err := repo.ExistingEmails(ctx, orgID, []string{"frank@example.com", "erin@example.com", "gina@example.com", "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"frank@example.com": true, "erin@example.com": true}, found)

	found, err = repo.ExistingEmails(ctx, orgID, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func newJob(t *testing.T, orgID uuid.UUID, start time.Time, hours int, crew ...uuid.UUID) *scheduling.Job {
	t.Helper()
	j, err := scheduling.NewJob(orgID, uuid.New(), scheduling.JobDetails{Title: "Install"}, start, start.Add(time.Duration(hours)*time.Hour))
	require.NoError(t, err)
	if len(crew) > 0 {
		require.NoError(t, j.Assign(crew))
	}
	return j
}

func TestGormJobRepository_SaveReplacesAssignees(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormJobRepository(db)
	ctx := context.Background()
	orgID := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	job := newJob(t, orgID, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 2, a, b)
	require.NoError(t, repo.Save(ctx, job))

	loaded, err := repo.FindByID(ctx, orgID, job.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, loaded.Assignees)

	require.NoError(t, loaded.Assign([]uuid.UUID{c}))
	require.NoError(t, repo.Save(ctx, loaded))

	reloaded, err := repo.FindByID(ctx, orgID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c}, reloaded.Assignees)
	assert.Equal(t, loaded.Version, reloaded.Version)

	_, err = repo.FindByID(ctx, uuid.New(), job.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormJobRepository_FindConflicts(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormJobRepository(db)
	ctx := context.Background()
	orgID := uuid.New()
	tech, other := uuid.New(), uuid.New()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	morning := newJob(t, orgID, day.Add(9*time.Hour), 2, tech)
	afternoon := newJob(t, orgID, day.Add(13*time.Hour), 2, tech)
	otherCrew := newJob(t, orgID, day.Add(9*time.Hour), 8, other)
	cancelled := newJob(t, orgID, day.Add(10*time.Hour), 1, tech)
	require.NoError(t, cancelled.Cancel(day, "customer away"))
	for _, j := range []*scheduling.Job{morning, afternoon, otherCrew, cancelled} {
		require.NoError(t, repo.Save(ctx, j))
	}

	conflicts, err := repo.FindConflicts(ctx, orgID, tech, day.Add(10*time.Hour), day.Add(14*time.Hour), uuid.Nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, morning.ID, conflicts[0].ID)
	assert.Equal(t, afternoon.ID, conflicts[1].ID)

	conflicts, err = repo.FindConflicts(ctx, orgID, tech, day.Add(10*time.Hour), day.Add(12*time.Hour), morning.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = repo.FindConflicts(ctx, orgID, tech, day.Add(11*time.Hour), day.Add(13*time.Hour), uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts, "touching windows do not overlap")
}

func TestGormJobRepository_FindInRangeAndList(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormJobRepository(db)
	ctx := context.Background()
	orgID := uuid.New()
	tech := uuid.New()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	first := newJob(t, orgID, day.Add(8*time.Hour), 1, tech)
	second := newJob(t, orgID, day.Add(15*time.Hour), 1)
	nextDay := newJob(t, orgID, day.Add(32*time.Hour), 1, tech)
	for _, j := range []*scheduling.Job{second, nextDay, first} {
		require.NoError(t, repo.Save(ctx, j))
	}

	jobs, err := repo.FindInRange(ctx, orgID, day, day.Add(24*time.Hour), nil)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, first.ID, jobs[0].ID)
	assert.Equal(t, second.ID, jobs[1].ID)

	jobs, err = repo.FindInRange(ctx, orgID, day, day.Add(48*time.Hour), &tech)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	items, total, err := repo.List(ctx, orgID, scheduling.JobFilter{Filter: shared.DefaultFilter(), AssigneeID: &tech})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, j := range items {
		assert.True(t, j.IsAssignedTo(tech))
	}
}
