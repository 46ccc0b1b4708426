package scheduling

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const AggregateTypeJob = "job"

const (
	EventTypeJobCreated     = "job.created"
	EventTypeJobRescheduled = "job.rescheduled"
	EventTypeJobAssigned    = "job.assigned"
	EventTypeJobDispatched  = "job.dispatched"
	EventTypeJobStarted     = "job.started"
	EventTypeJobCompleted   = "job.completed"
	EventTypeJobCancelled   = "job.cancelled"
)

// JobEvent carries a snapshot of the job so automations can match on its fields
type JobEvent struct {
	shared.BaseDomainEvent
	JobID          uuid.UUID   `json:"job_id"`
	CustomerID     uuid.UUID   `json:"customer_id"`
	Title          string      `json:"title"`
	Status         JobStatus   `json:"status"`
	Priority       Priority    `json:"priority"`
	ScheduledStart time.Time   `json:"scheduled_start"`
	ScheduledEnd   time.Time   `json:"scheduled_end"`
	Assignees      []uuid.UUID `json:"assignees"`
	Address        string      `json:"address"`
	CancelReason   string      `json:"cancel_reason,omitempty"`
}

func newJobEvent(eventType string, j *Job) *JobEvent {
	assignees := make([]uuid.UUID, len(j.Assignees))
	copy(assignees, j.Assignees)
	return &JobEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeJob, j.ID, j.OrgID),
		JobID:           j.ID,
		CustomerID:      j.CustomerID,
		Title:           j.Title,
		Status:          j.Status,
		Priority:        j.Priority,
		ScheduledStart:  j.ScheduledStart,
		ScheduledEnd:    j.ScheduledEnd,
		Assignees:       assignees,
		Address:         j.Address.String(),
		CancelReason:    j.CancelReason,
	}
}
