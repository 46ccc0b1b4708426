package scheduling

import (
	"context"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// JobFilter narrows job lists
type JobFilter struct {
	shared.Filter
	Status     *JobStatus
	CustomerID *uuid.UUID
	AssigneeID *uuid.UUID
	From       *time.Time
	To         *time.Time
}

// JobRepository defines persistence for jobs
type JobRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Job, error)
	List(ctx context.Context, orgID uuid.UUID, filter JobFilter) ([]*Job, int64, error)
	// FindInRange returns jobs whose window intersects [from, to), ordered by start
	FindInRange(ctx context.Context, orgID uuid.UUID, from, to time.Time, assigneeID *uuid.UUID) ([]*Job, error)
	// FindConflicts returns active jobs for assigneeID overlapping [start, end), excluding excludeID
	FindConflicts(ctx context.Context, orgID, assigneeID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]*Job, error)
	Save(ctx context.Context, job *Job) error
}
