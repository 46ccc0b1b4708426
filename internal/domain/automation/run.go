package automation

import (
	"context"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// RunStatus is the state of one rule execution
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// StepStatus is the outcome of one action
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// StepResult records how one action went
type StepResult struct {
	Index      int            `json:"index"`
	Type       ActionType     `json:"type"`
	Name       string         `json:"name"`
	Status     StepStatus     `json:"status"`
	Attempts   int            `json:"attempts"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Run is one execution of a rule against a trigger event. Failed runs are
// kept so they can be replayed.
type Run struct {
	shared.BaseEntity
	OrgID      uuid.UUID
	RuleID     uuid.UUID
	RuleName   string
	Trigger    TriggerEvent
	Status     RunStatus
	Attempt    int
	Steps      []StepResult
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// NewRun starts a run of rule for ev
func NewRun(rule *Rule, ev *TriggerEvent, now time.Time) *Run {
	return &Run{
		BaseEntity: shared.NewBaseEntity(),
		OrgID:      rule.OrgID,
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		Trigger:    *ev,
		Status:     RunRunning,
		Attempt:    1,
		StartedAt:  now,
	}
}

// RecordStep appends a step result
func (r *Run) RecordStep(step StepResult) {
	r.Steps = append(r.Steps, step)
}

// Succeed completes the run
func (r *Run) Succeed(now time.Time) {
	r.Status = RunSucceeded
	r.Error = ""
	r.FinishedAt = &now
	r.UpdatedAt = now
}

// Fail completes the run with an error
func (r *Run) Fail(now time.Time, reason string) {
	r.Status = RunFailed
	r.Error = reason
	r.FinishedAt = &now
	r.UpdatedAt = now
}

// IsFinished reports whether the run has an outcome
func (r *Run) IsFinished() bool {
	return r.Status != RunRunning
}

// Retry restarts a failed run from its first step
func (r *Run) Retry(now time.Time) error {
	if r.Status != RunFailed {
		return shared.InvalidState("Only failed runs can be retried")
	}
	r.Status = RunRunning
	r.Attempt++
	r.Steps = nil
	r.Error = ""
	r.StartedAt = now
	r.FinishedAt = nil
	r.UpdatedAt = now
	return nil
}

// Duration returns how long the run took, or zero while running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunFilter narrows run lists
type RunFilter struct {
	shared.Filter
	RuleID *uuid.UUID
	Status *RunStatus
}

// RunRepository defines persistence for runs
type RunRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Run, error)
	List(ctx context.Context, orgID uuid.UUID, filter RunFilter) ([]*Run, int64, error)
	Save(ctx context.Context, r *Run) error
}
