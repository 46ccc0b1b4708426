package scheduling

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/scheduling"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateJobRequest is the body of POST /jobs
type CreateJobRequest struct {
	CustomerID     uuid.UUID           `json:"customer_id" binding:"required"`
	Title          string              `json:"title" binding:"required,min=1,max=200"`
	Description    string              `json:"description" binding:"max=10000"`
	Address        valueobject.Address `json:"address"`
	Priority       string              `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	ScheduledStart time.Time           `json:"scheduled_start" binding:"required"`
	ScheduledEnd   time.Time           `json:"scheduled_end" binding:"required"`
	AssigneeIDs    []uuid.UUID         `json:"assignee_ids"`
}

// UpdateJobRequest is the body of PUT /jobs/:id. Omitted window fields keep
// the current schedule.
type UpdateJobRequest struct {
	Title          string              `json:"title" binding:"required,min=1,max=200"`
	Description    string              `json:"description" binding:"max=10000"`
	Address        valueobject.Address `json:"address"`
	Priority       string              `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	ScheduledStart *time.Time          `json:"scheduled_start"`
	ScheduledEnd   *time.Time          `json:"scheduled_end"`
}

// AssignJobRequest replaces a job's crew
type AssignJobRequest struct {
	AssigneeIDs []uuid.UUID `json:"assignee_ids"`
}

// TransitionRequest carries the optional note for start, complete and cancel
type TransitionRequest struct {
	Note  string                `json:"note" binding:"max=2000"`
	Items []BillableItemRequest `json:"items" binding:"dive"`
}

// BillableItemRequest is labour or material recorded on a job
type BillableItemRequest struct {
	Description string          `json:"description" binding:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// JobActor identifies who performs a transition. AssignedOnly restricts
// technicians to jobs they are on.
type JobActor struct {
	UserID       uuid.UUID
	AssignedOnly bool
}

// JobListFilter narrows GET /jobs
type JobListFilter struct {
	Page       int        `form:"page" binding:"omitempty,min=1"`
	PageSize   int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	Search     string     `form:"search"`
	OrderBy    string     `form:"order_by"`
	OrderDir   string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	Status     string     `form:"status" binding:"omitempty,oneof=scheduled dispatched in_progress completed cancelled"`
	CustomerID string     `form:"customer_id"`
	AssigneeID string     `form:"assignee_id"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ScheduleQuery is GET /jobs/schedule
type ScheduleQuery struct {
	From     time.Time `form:"from" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	To       time.Time `form:"to" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	MemberID string    `form:"member_id"`
}

// JobResponse represents a job in API responses
type JobResponse struct {
	ID              uuid.UUID                 `json:"id"`
	CustomerID      uuid.UUID                 `json:"customer_id"`
	Title           string                    `json:"title"`
	Description     string                    `json:"description,omitempty"`
	Address         valueobject.Address       `json:"address"`
	Status          string                    `json:"status"`
	Priority        string                    `json:"priority"`
	ScheduledStart  time.Time                 `json:"scheduled_start"`
	ScheduledEnd    time.Time                 `json:"scheduled_end"`
	Assignees       []uuid.UUID               `json:"assignees"`
	BillableItems   []scheduling.BillableItem `json:"billable_items"`
	InvoiceID       *uuid.UUID                `json:"invoice_id,omitempty"`
	DispatchedAt    *time.Time                `json:"dispatched_at,omitempty"`
	StartedAt       *time.Time                `json:"started_at,omitempty"`
	CompletedAt     *time.Time                `json:"completed_at,omitempty"`
	CancelledAt     *time.Time                `json:"cancelled_at,omitempty"`
	CancelReason    string                    `json:"cancel_reason,omitempty"`
	CompletionNotes string                    `json:"completion_notes,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
	Version         int                       `json:"version"`
}

// ToJobResponse converts a job to its API view
func ToJobResponse(j *scheduling.Job) JobResponse {
	assignees := j.Assignees
	if assignees == nil {
		assignees = []uuid.UUID{}
	}
	items := j.BillableItems
	if items == nil {
		items = []scheduling.BillableItem{}
	}
	return JobResponse{
		ID:              j.ID,
		CustomerID:      j.CustomerID,
		Title:           j.Title,
		Description:     j.Description,
		Address:         j.Address,
		Status:          string(j.Status),
		Priority:        string(j.Priority),
		ScheduledStart:  j.ScheduledStart,
		ScheduledEnd:    j.ScheduledEnd,
		Assignees:       assignees,
		BillableItems:   items,
		InvoiceID:       j.InvoiceID,
		DispatchedAt:    j.DispatchedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		CancelledAt:     j.CancelledAt,
		CancelReason:    j.CancelReason,
		CompletionNotes: j.CompletionNotes,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		Version:         j.Version,
	}
}

// ScheduleEntry is one job on the schedule board
type ScheduleEntry struct {
	JobResponse
	CustomerName string `json:"customer_name"`
}
