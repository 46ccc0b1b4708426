package models

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/automation"
	"github.com/google/uuid"
)

// AutomationRuleModel maps automation.Rule
type AutomationRuleModel struct {
	OrgAggregateModel
	Name          string                 `gorm:"type:varchar(120);not null"`
	Description   string                 `gorm:"type:text"`
	Enabled       bool                   `gorm:"not null;index"`
	TriggerType   automation.TriggerType `gorm:"type:varchar(20);not null;index"`
	EventType     string                 `gorm:"type:varchar(100)"`
	CronExpr      string                 `gorm:"type:varchar(100)"`
	Conditions    JSON[[]automation.Condition]
	Actions       JSON[[]automation.Action]
	MaxAttempts   int `gorm:"not null;default:3"`
	LastTriggered *time.Time
}

func (AutomationRuleModel) TableName() string { return "automation_rules" }

func (m *AutomationRuleModel) ToDomain() *automation.Rule {
	return &automation.Rule{
		OrgAggregateRoot: m.toOrgAggregate(),
		Name:             m.Name,
		Description:      m.Description,
		Enabled:          m.Enabled,
		Trigger: automation.Trigger{
			Type:      m.TriggerType,
			EventType: m.EventType,
			Cron:      m.CronExpr,
		},
		Conditions:    m.Conditions.V,
		Actions:       m.Actions.V,
		MaxAttempts:   m.MaxAttempts,
		LastTriggered: m.LastTriggered,
	}
}

func AutomationRuleModelFromDomain(r *automation.Rule) *AutomationRuleModel {
	m := &AutomationRuleModel{
		Name:          r.Name,
		Description:   r.Description,
		Enabled:       r.Enabled,
		TriggerType:   r.Trigger.Type,
		EventType:     r.Trigger.EventType,
		CronExpr:      r.Trigger.Cron,
		Conditions:    NewJSON(r.Conditions),
		Actions:       NewJSON(r.Actions),
		MaxAttempts:   r.MaxAttempts,
		LastTriggered: r.LastTriggered,
	}
	m.fromOrgAggregate(r.OrgAggregateRoot)
	return m
}

// AutomationRunModel maps automation.Run
type AutomationRunModel struct {
	BaseModel
	OrgID      uuid.UUID `gorm:"type:uuid;not null;index"`
	RuleID     uuid.UUID `gorm:"type:uuid;not null;index"`
	RuleName   string    `gorm:"type:varchar(120);not null"`
	Trigger    JSON[automation.TriggerEvent]
	Status     automation.RunStatus `gorm:"type:varchar(20);not null;index"`
	Attempt    int                  `gorm:"not null;default:1"`
	Steps      JSON[[]automation.StepResult]
	Error      string    `gorm:"type:text"`
	StartedAt  time.Time `gorm:"not null;index"`
	FinishedAt *time.Time
}

func (AutomationRunModel) TableName() string { return "automation_runs" }

func (m *AutomationRunModel) ToDomain() *automation.Run {
	return &automation.Run{
		BaseEntity: m.toEntity(),
		OrgID:      m.OrgID,
		RuleID:     m.RuleID,
		RuleName:   m.RuleName,
		Trigger:    m.Trigger.V,
		Status:     m.Status,
		Attempt:    m.Attempt,
		Steps:      m.Steps.V,
		Error:      m.Error,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}

func AutomationRunModelFromDomain(r *automation.Run) *AutomationRunModel {
	m := &AutomationRunModel{
		OrgID:      r.OrgID,
		RuleID:     r.RuleID,
		RuleName:   r.RuleName,
		Trigger:    NewJSON(r.Trigger),
		Status:     r.Status,
		Attempt:    r.Attempt,
		Steps:      NewJSON(r.Steps),
		Error:      r.Error,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt,
	}
	m.fromEntity(r.BaseEntity)
	return m
}
