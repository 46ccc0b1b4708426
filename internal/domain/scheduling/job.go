package scheduling

import (
	"strings"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusDispatched JobStatus = "dispatched"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// IsValid reports whether s is a known status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusScheduled, JobStatusDispatched, JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

// Priority orders jobs on the dispatch board
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether p is a known priority
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

const maxJobDuration = 14 * 24 * time.Hour

// BillableItem is work or material recorded on a job for invoicing
type BillableItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Job is a unit of field work at a customer site
type Job struct {
	shared.OrgAggregateRoot
	CustomerID      uuid.UUID
	Title           string
	Description     string
	Address         valueobject.Address
	Status          JobStatus
	Priority        Priority
	ScheduledStart  time.Time
	ScheduledEnd    time.Time
	Assignees       []uuid.UUID
	BillableItems   []BillableItem
	InvoiceID       *uuid.UUID
	DispatchedAt    *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string
	CompletionNotes string
}

// JobDetails carries the descriptive fields of a job
type JobDetails struct {
	Title       string
	Description string
	Address     valueobject.Address
	Priority    Priority
}

// NewJob schedules a job for a customer
func NewJob(orgID, customerID uuid.UUID, d JobDetails, start, end time.Time) (*Job, error) {
	if customerID == uuid.Nil {
		return nil, shared.InvalidInput("Customer is required")
	}
	j := &Job{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		CustomerID:       customerID,
		Status:           JobStatusScheduled,
		Priority:         PriorityNormal,
	}
	if err := j.applyDetails(d); err != nil {
		return nil, err
	}
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}
	j.ScheduledStart = start
	j.ScheduledEnd = end
	j.AddDomainEvent(newJobEvent(EventTypeJobCreated, j))
	return j, nil
}

// UpdateDetails edits title, description, address and priority
func (j *Job) UpdateDetails(d JobDetails) error {
	if j.Status.IsTerminal() {
		return shared.InvalidState("Cannot edit a " + string(j.Status) + " job")
	}
	if err := j.applyDetails(d); err != nil {
		return err
	}
	j.UpdatedAt = time.Now()
	j.IncrementVersion()
	return nil
}

// Reschedule moves the job to a new time window
func (j *Job) Reschedule(start, end time.Time) error {
	if j.Status != JobStatusScheduled && j.Status != JobStatusDispatched {
		return shared.InvalidState("Only scheduled or dispatched jobs can be rescheduled")
	}
	if err := validateWindow(start, end); err != nil {
		return err
	}
	j.ScheduledStart = start
	j.ScheduledEnd = end
	j.UpdatedAt = time.Now()
	j.IncrementVersion()
	j.AddDomainEvent(newJobEvent(EventTypeJobRescheduled, j))
	return nil
}

// Assign replaces the crew on the job
func (j *Job) Assign(userIDs []uuid.UUID) error {
	if j.Status.IsTerminal() {
		return shared.InvalidState("Cannot assign a " + string(j.Status) + " job")
	}
	seen := make(map[uuid.UUID]bool, len(userIDs))
	crew := make([]uuid.UUID, 0, len(userIDs))
	for _, id := range userIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		crew = append(crew, id)
	}
	if len(crew) == 0 && j.Status != JobStatusScheduled {
		return shared.InvalidState("A dispatched job must keep at least one assignee")
	}
	j.Assignees = crew
	j.UpdatedAt = time.Now()
	j.IncrementVersion()
	j.AddDomainEvent(newJobEvent(EventTypeJobAssigned, j))
	return nil
}

// IsAssignedTo reports whether userID is on the crew
func (j *Job) IsAssignedTo(userID uuid.UUID) bool {
	for _, id := range j.Assignees {
		if id == userID {
			return true
		}
	}
	return false
}

// Dispatch sends the job to its crew
func (j *Job) Dispatch(now time.Time) error {
	if j.Status != JobStatusScheduled {
		return shared.InvalidState("Only scheduled jobs can be dispatched")
	}
	if len(j.Assignees) == 0 {
		return shared.InvalidState("Assign at least one technician before dispatching")
	}
	j.Status = JobStatusDispatched
	j.DispatchedAt = &now
	j.UpdatedAt = now
	j.IncrementVersion()
	j.AddDomainEvent(newJobEvent(EventTypeJobDispatched, j))
	return nil
}

// Start marks work begun on site
func (j *Job) Start(now time.Time) error {
	if j.Status != JobStatusDispatched {
		return shared.InvalidState("Only dispatched jobs can be started")
	}
	j.Status = JobStatusInProgress
	j.StartedAt = &now
	j.UpdatedAt = now
	j.IncrementVersion()
	j.AddDomainEvent(newJobEvent(EventTypeJobStarted, j))
	return nil
}

// Complete closes the job
func (j *Job) Complete(now time.Time, notes string) error {
	if j.Status != JobStatusInProgress {
		return shared.InvalidState("Only in-progress jobs can be completed")
	}
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.CompletionNotes = strings.TrimSpace(notes)
	j.UpdatedAt = now
	j.IncrementVersion()
	j.AddDomainEvent(newJobEvent(EventTypeJobCompleted, j))
	return nil
}

// Cancel abandons the job
func (j *Job) Cancel(now time.Time, reason string) error {
	if j.Status.IsTerminal() {
		return shared.InvalidState("Cannot cancel a " + string(j.Status) + " job")
	}
	j.Status = JobStatusCancelled
	j.CancelledAt = &now
	j.CancelReason = strings.TrimSpace(reason)
	j.UpdatedAt = now
	j.IncrementVersion()
	j.AddDomainEvent(newJobEvent(EventTypeJobCancelled, j))
	return nil
}

// AddBillableItem records labour or material for invoicing
func (j *Job) AddBillableItem(item BillableItem) error {
	if j.Status == JobStatusCancelled {
		return shared.InvalidState("Cannot bill a cancelled job")
	}
	if j.InvoiceID != nil {
		return shared.InvalidState("Job has already been invoiced")
	}
	item.Description = strings.TrimSpace(item.Description)
	if item.Description == "" {
		return shared.InvalidInput("Item description is required")
	}
	if !item.Quantity.IsPositive() || item.UnitPrice.IsNegative() {
		return shared.InvalidInput("Quantity must be positive and price cannot be negative")
	}
	j.BillableItems = append(j.BillableItems, item)
	j.UpdatedAt = time.Now()
	return nil
}

// MarkInvoiced links the invoice created from this job
func (j *Job) MarkInvoiced(invoiceID uuid.UUID) error {
	if j.Status != JobStatusCompleted {
		return shared.InvalidState("Only completed jobs can be invoiced")
	}
	if j.InvoiceID != nil {
		return shared.InvalidState("Job has already been invoiced")
	}
	j.InvoiceID = &invoiceID
	j.UpdatedAt = time.Now()
	return nil
}

// Overlaps reports whether the job's window intersects [start, end)
func (j *Job) Overlaps(start, end time.Time) bool {
	return j.ScheduledStart.Before(end) && start.Before(j.ScheduledEnd)
}

// Duration returns the scheduled length
func (j *Job) Duration() time.Duration {
	return j.ScheduledEnd.Sub(j.ScheduledStart)
}

func (j *Job) applyDetails(d JobDetails) error {
	title := strings.TrimSpace(d.Title)
	if title == "" || len(title) > 200 {
		return shared.InvalidInput("Job title must be between 1 and 200 characters")
	}
	addr := d.Address.Normalize()
	if err := addr.Validate(); err != nil {
		return shared.InvalidInput(err.Error())
	}
	if d.Priority != "" {
		if !d.Priority.IsValid() {
			return shared.InvalidInput("Unknown priority " + string(d.Priority))
		}
		j.Priority = d.Priority
	}
	j.Title = title
	j.Description = d.Description
	j.Address = addr
	return nil
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return shared.InvalidInput("Scheduled start and end are required")
	}
	if !end.After(start) {
		return shared.InvalidInput("Scheduled end must be after start")
	}
	if end.Sub(start) > maxJobDuration {
		return shared.InvalidInput("A job cannot be scheduled for more than 14 days")
	}
	return nil
}
