package models

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/scheduling"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// JobModel maps scheduling.Job. Assignees live in job_assignees so schedule
// and conflict queries can filter by technician.
type JobModel struct {
	OrgAggregateModel
	CustomerID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Title           string    `gorm:"type:varchar(200);not null"`
	Description     string    `gorm:"type:text"`
	Address         JSON[valueobject.Address]
	Status          scheduling.JobStatus `gorm:"type:varchar(20);not null;index"`
	Priority        scheduling.Priority  `gorm:"type:varchar(10);not null"`
	ScheduledStart  time.Time            `gorm:"not null;index"`
	ScheduledEnd    time.Time            `gorm:"not null;index"`
	BillableItems   JSON[[]scheduling.BillableItem]
	InvoiceID       *uuid.UUID `gorm:"type:uuid"`
	DispatchedAt    *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string `gorm:"type:text"`
	CompletionNotes string `gorm:"type:text"`

	Assignees []JobAssigneeModel `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`
}

func (JobModel) TableName() string { return "jobs" }

// JobAssigneeModel links a job to a crew member's user id
type JobAssigneeModel struct {
	JobID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	OrgID  uuid.UUID `gorm:"type:uuid;not null;index"`
}

func (JobAssigneeModel) TableName() string { return "job_assignees" }

func (m *JobModel) ToDomain() *scheduling.Job {
	assignees := make([]uuid.UUID, 0, len(m.Assignees))
	for _, a := range m.Assignees {
		assignees = append(assignees, a.UserID)
	}
	return &scheduling.Job{
		OrgAggregateRoot: m.toOrgAggregate(),
		CustomerID:       m.CustomerID,
		Title:            m.Title,
		Description:      m.Description,
		Address:          m.Address.V,
		Status:           m.Status,
		Priority:         m.Priority,
		ScheduledStart:   m.ScheduledStart,
		ScheduledEnd:     m.ScheduledEnd,
		Assignees:        assignees,
		BillableItems:    m.BillableItems.V,
		InvoiceID:        m.InvoiceID,
		DispatchedAt:     m.DispatchedAt,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
		CancelledAt:      m.CancelledAt,
		CancelReason:     m.CancelReason,
		CompletionNotes:  m.CompletionNotes,
	}
}

func JobModelFromDomain(j *scheduling.Job) *JobModel {
	m := &JobModel{
		CustomerID:      j.CustomerID,
		Title:           j.Title,
		Description:     j.Description,
		Address:         NewJSON(j.Address),
		Status:          j.Status,
		Priority:        j.Priority,
		ScheduledStart:  j.ScheduledStart.UTC(),
		ScheduledEnd:    j.ScheduledEnd.UTC(),
		BillableItems:   NewJSON(j.BillableItems),
		InvoiceID:       j.InvoiceID,
		DispatchedAt:    j.DispatchedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		CancelledAt:     j.CancelledAt,
		CancelReason:    j.CancelReason,
		CompletionNotes: j.CompletionNotes,
	}
	m.fromOrgAggregate(j.OrgAggregateRoot)
	for _, uid := range j.Assignees {
		m.Assignees = append(m.Assignees, JobAssigneeModel{JobID: j.ID, UserID: uid, OrgID: j.OrgID})
	}
	return m
}
