package automation

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/automation"
	engine "github.com/crewdesk/backend/internal/infrastructure/automation"
	"github.com/google/uuid"
)

// SecretMask replaces sealed header values in responses. Sending it back
// unchanged on update keeps the stored secret.
const SecretMask = "********"

// TriggerRequest describes when a rule fires
type TriggerRequest struct {
	Type      automation.TriggerType `json:"type" binding:"required,oneof=db_event cron api"`
	EventType string                 `json:"event_type,omitempty" binding:"max=120"`
	Cron      string                 `json:"cron,omitempty" binding:"max=120"`
}

// RuleRequest is the body of create and update calls
type RuleRequest struct {
	Name        string                 `json:"name" binding:"required,min=1,max=120"`
	Description string                 `json:"description" binding:"max=1000"`
	Enabled     *bool                  `json:"enabled"`
	Trigger     TriggerRequest         `json:"trigger" binding:"required"`
	Conditions  []automation.Condition `json:"conditions" binding:"max=20"`
	Actions     []automation.Action    `json:"actions" binding:"required,min=1,max=20"`
	MaxAttempts int                    `json:"max_attempts" binding:"omitempty,min=1,max=10"`
}

func (r RuleRequest) definition(actions []automation.Action) automation.RuleDefinition {
	return automation.RuleDefinition{
		Name:        r.Name,
		Description: r.Description,
		Trigger: automation.Trigger{
			Type:      r.Trigger.Type,
			EventType: r.Trigger.EventType,
			Cron:      r.Trigger.Cron,
		},
		Conditions:  r.Conditions,
		Actions:     actions,
		MaxAttempts: r.MaxAttempts,
	}
}

// RuleListFilter is the query of GET /automations
type RuleListFilter struct {
	Page        int    `form:"page" binding:"omitempty,min=1"`
	PageSize    int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Search      string `form:"search"`
	TriggerType string `form:"trigger_type" binding:"omitempty,oneof=db_event cron api"`
	Enabled     *bool  `form:"enabled"`
}

// RuleResponse is the API view of a rule
type RuleResponse struct {
	ID            uuid.UUID              `json:"id"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Enabled       bool                   `json:"enabled"`
	Trigger       automation.Trigger     `json:"trigger"`
	Conditions    []automation.Condition `json:"conditions"`
	Actions       []automation.Action    `json:"actions"`
	MaxAttempts   int                    `json:"max_attempts"`
	LastTriggered *time.Time             `json:"last_triggered,omitempty"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// ToRuleResponse converts a rule, masking sealed header values
func ToRuleResponse(r *automation.Rule) RuleResponse {
	conditions := r.Conditions
	if conditions == nil {
		conditions = []automation.Condition{}
	}
	return RuleResponse{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Enabled:       r.Enabled,
		Trigger:       r.Trigger,
		Conditions:    conditions,
		Actions:       maskSecrets(r.Actions),
		MaxAttempts:   r.MaxAttempts,
		LastTriggered: r.LastTriggered,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// RunListFilter is the query of GET /automation-runs
type RunListFilter struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	RuleID   string `form:"rule_id" binding:"omitempty,uuid"`
	Status   string `form:"status" binding:"omitempty,oneof=running succeeded failed"`
}

// RunResponse is the API view of a run
type RunResponse struct {
	ID         uuid.UUID               `json:"id"`
	RuleID     uuid.UUID               `json:"rule_id"`
	RuleName   string                  `json:"rule_name"`
	Trigger    automation.TriggerEvent `json:"trigger"`
	Status     automation.RunStatus    `json:"status"`
	Attempt    int                     `json:"attempt"`
	Steps      []automation.StepResult `json:"steps"`
	Error      string                  `json:"error,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
	DurationMS int64                   `json:"duration_ms"`
}

// ToRunResponse converts a run
func ToRunResponse(r *automation.Run) RunResponse {
	steps := r.Steps
	if steps == nil {
		steps = []automation.StepResult{}
	}
	return RunResponse{
		ID:         r.ID,
		RuleID:     r.RuleID,
		RuleName:   r.RuleName,
		Trigger:    r.Trigger,
		Status:     r.Status,
		Attempt:    r.Attempt,
		Steps:      steps,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration().Milliseconds(),
	}
}

// ManualTriggerRequest is the body of POST /automations/:id/trigger
type ManualTriggerRequest struct {
	Payload map[string]any `json:"payload"`
}

// ExternalEventRequest is the body of POST /ext/events
type ExternalEventRequest struct {
	EventType string         `json:"event_type" binding:"required,min=1,max=120"`
	EventID   string         `json:"event_id" binding:"omitempty,uuid"`
	Payload   map[string]any `json:"payload"`
}

// DispatchResponse reports the runs started by one trigger event
type DispatchResponse struct {
	EventID   uuid.UUID          `json:"event_id"`
	EventType string             `json:"event_type"`
	Matched   int                `json:"matched"`
	Failed    int                `json:"failed"`
	Runs      []engine.RunResult `json:"runs"`
}

func newDispatchResponse(ev *automation.TriggerEvent, results []engine.RunResult) *DispatchResponse {
	if results == nil {
		results = []engine.RunResult{}
	}
	resp := &DispatchResponse{
		EventID:   ev.EventID,
		EventType: ev.EventType,
		Matched:   len(results),
		Runs:      results,
	}
	for _, r := range results {
		if r.Status == automation.RunFailed {
			resp.Failed++
		}
	}
	return resp
}
