package automation

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// TriggerType is what starts a rule
type TriggerType string

const (
	TriggerDBEvent TriggerType = "db_event"
	TriggerCron    TriggerType = "cron"
	TriggerAPI     TriggerType = "api"
)

// IsValid reports whether t is a known trigger type
func (t TriggerType) IsValid() bool {
	return t == TriggerDBEvent || t == TriggerCron || t == TriggerAPI
}

// ActionType is a single step kind in a rule's flow
type ActionType string

const (
	ActionSendSMS              ActionType = "send_sms"
	ActionSendPush             ActionType = "send_push"
	ActionHTTPRequest          ActionType = "http_request"
	ActionUpdateJobStatus      ActionType = "update_job_status"
	ActionCreateInvoiceFromJob ActionType = "create_invoice_from_job"
	ActionDelay                ActionType = "delay"
)

const (
	DefaultMaxAttempts = 3
	MaxMaxAttempts     = 10
	MaxActions         = 20
	MaxConditions      = 20
	MaxDelay           = time.Hour
)

// Trigger describes when a rule fires. EventType accepts path.Match globs such as "job.*".
type Trigger struct {
	Type      TriggerType `json:"type"`
	EventType string      `json:"event_type,omitempty"`
	Cron      string      `json:"cron,omitempty"`
}

// Action is one step of the flow
type Action struct {
	Type   ActionType     `json:"type"`
	Name   string         `json:"name,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Label returns the step name, falling back to its type
func (a Action) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return string(a.Type)
}

// RuleDefinition is the editable content of a rule
type RuleDefinition struct {
	Name        string
	Description string
	Trigger     Trigger
	Conditions  []Condition
	Actions     []Action
	MaxAttempts int
}

// Rule is an automation owned by an organization
type Rule struct {
	shared.OrgAggregateRoot
	Name          string
	Description   string
	Enabled       bool
	Trigger       Trigger
	Conditions    []Condition
	Actions       []Action
	MaxAttempts   int
	LastTriggered *time.Time
}

// NewRule creates an enabled rule
func NewRule(orgID uuid.UUID, def RuleDefinition) (*Rule, error) {
	r := &Rule{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		Enabled:          true,
	}
	if err := r.apply(def); err != nil {
		return nil, err
	}
	return r, nil
}

// Update replaces the rule definition
func (r *Rule) Update(def RuleDefinition) error {
	if err := r.apply(def); err != nil {
		return err
	}
	r.IncrementVersion()
	r.Touch()
	return nil
}

func (r *Rule) apply(def RuleDefinition) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return shared.InvalidInput("Rule name is required")
	}
	if len(def.Name) > 120 {
		return shared.InvalidInput("Rule name must be at most 120 characters")
	}
	if err := validateTrigger(&def.Trigger); err != nil {
		return err
	}
	if len(def.Conditions) > MaxConditions {
		return shared.InvalidInput(fmt.Sprintf("A rule can have at most %d conditions", MaxConditions))
	}
	for i, c := range def.Conditions {
		if err := c.Validate(); err != nil {
			return shared.InvalidInput(fmt.Sprintf("condition %d: %s", i+1, err.Error()))
		}
	}
	if len(def.Actions) == 0 {
		return shared.InvalidInput("A rule needs at least one action")
	}
	if len(def.Actions) > MaxActions {
		return shared.InvalidInput(fmt.Sprintf("A rule can have at most %d actions", MaxActions))
	}
	for i, a := range def.Actions {
		if err := validateAction(a); err != nil {
			return shared.InvalidInput(fmt.Sprintf("action %d: %s", i+1, err.Error()))
		}
	}
	if def.MaxAttempts == 0 {
		def.MaxAttempts = DefaultMaxAttempts
	}
	if def.MaxAttempts < 1 || def.MaxAttempts > MaxMaxAttempts {
		return shared.InvalidInput(fmt.Sprintf("max_attempts must be between 1 and %d", MaxMaxAttempts))
	}

	r.Name = def.Name
	r.Description = strings.TrimSpace(def.Description)
	r.Trigger = def.Trigger
	r.Conditions = def.Conditions
	r.Actions = def.Actions
	r.MaxAttempts = def.MaxAttempts
	return nil
}

func validateTrigger(t *Trigger) error {
	if !t.Type.IsValid() {
		return shared.InvalidInput("Unknown trigger type " + string(t.Type))
	}
	t.EventType = strings.TrimSpace(t.EventType)
	t.Cron = strings.TrimSpace(t.Cron)
	switch t.Type {
	case TriggerDBEvent:
		if t.EventType == "" {
			return shared.InvalidInput("db_event triggers need an event_type")
		}
		if _, err := path.Match(t.EventType, ""); err != nil {
			return shared.InvalidInput("Invalid event_type pattern")
		}
		t.Cron = ""
	case TriggerCron:
		if err := ValidateCron(t.Cron); err != nil {
			return err
		}
		t.EventType = ""
	case TriggerAPI:
		if t.EventType != "" {
			if _, err := path.Match(t.EventType, ""); err != nil {
				return shared.InvalidInput("Invalid event_type pattern")
			}
		}
		t.Cron = ""
	}
	return nil
}

// ValidateCron checks a standard five-field expression or a descriptor like "@every 1h"
func ValidateCron(expr string) error {
	if expr == "" {
		return shared.InvalidInput("cron triggers need a cron expression")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return shared.InvalidInput("Invalid cron expression: " + err.Error())
	}
	return nil
}

func validateAction(a Action) error {
	p := a.Params
	switch a.Type {
	case ActionSendSMS:
		return requireParams(p, "to", "body")
	case ActionSendPush:
		return requireParams(p, "user_id", "title", "body")
	case ActionHTTPRequest:
		if err := requireParams(p, "url"); err != nil {
			return err
		}
		raw := fmt.Sprint(p["url"])
		if !isTemplated(raw) {
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("url must be an absolute http(s) URL")
			}
		}
		if m, ok := p["method"]; ok {
			switch strings.ToUpper(fmt.Sprint(m)) {
			case "GET", "POST", "PUT", "PATCH", "DELETE":
			default:
				return fmt.Errorf("unsupported method %v", m)
			}
		}
		return nil
	case ActionUpdateJobStatus:
		return requireParams(p, "job_id", "status")
	case ActionCreateInvoiceFromJob:
		return requireParams(p, "job_id")
	case ActionDelay:
		if err := requireParams(p, "duration"); err != nil {
			return err
		}
		_, err := ParseDelay(p["duration"])
		return err
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// ParseDelay reads a delay step duration such as "30s"
func ParseDelay(v any) (time.Duration, error) {
	d, err := time.ParseDuration(fmt.Sprint(v))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %v", v)
	}
	if d <= 0 || d > MaxDelay {
		return 0, fmt.Errorf("duration must be between 0 and %s", MaxDelay)
	}
	return d, nil
}

func requireParams(p map[string]any, keys ...string) error {
	for _, k := range keys {
		v, ok := p[k]
		if !ok || v == nil || strings.TrimSpace(fmt.Sprint(v)) == "" {
			return fmt.Errorf("param %q is required", k)
		}
	}
	return nil
}

// Enable turns the rule on
func (r *Rule) Enable() {
	r.Enabled = true
	r.Touch()
}

// Disable turns the rule off
func (r *Rule) Disable() {
	r.Enabled = false
	r.Touch()
}

// MarkTriggered records the last time the rule produced a run
func (r *Rule) MarkTriggered(now time.Time) {
	r.LastTriggered = &now
}

// Matches reports whether the event should start this rule
func (r *Rule) Matches(ev *TriggerEvent) bool {
	if ev == nil || !r.Enabled || r.OrgID != ev.OrgID || r.Trigger.Type != ev.Type {
		return false
	}
	if ev.RuleID != nil {
		if *ev.RuleID != r.ID {
			return false
		}
	} else {
		switch r.Trigger.Type {
		case TriggerCron:
			return false
		default:
			if !MatchEventType(r.Trigger.EventType, ev.EventType) {
				return false
			}
		}
	}
	return MatchAll(r.Conditions, ev.Payload)
}

// MatchEventType matches an event type against an exact name or glob. An empty
// pattern matches everything.
func MatchEventType(pattern, eventType string) bool {
	if pattern == "" || pattern == "*" || pattern == eventType {
		return true
	}
	ok, err := path.Match(pattern, eventType)
	return err == nil && ok
}

// TriggerEvent is the input to the engine
type TriggerEvent struct {
	OrgID      uuid.UUID      `json:"org_id"`
	Type       TriggerType    `json:"trigger"`
	EventType  string         `json:"event_type"`
	EventID    uuid.UUID      `json:"event_id"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
	// RuleID targets a single rule, as cron ticks and manual triggers do
	RuleID *uuid.UUID `json:"rule_id,omitempty"`
}

// NewTriggerEventFromDomain converts a domain event into a db_event trigger
func NewTriggerEventFromDomain(event shared.DomainEvent) (*TriggerEvent, error) {
	payload, err := shared.EventPayload(event)
	if err != nil {
		return nil, err
	}
	return &TriggerEvent{
		OrgID:      event.OrgID(),
		Type:       TriggerDBEvent,
		EventType:  event.EventType(),
		EventID:    event.EventID(),
		Payload:    payload,
		OccurredAt: event.OccurredAt(),
	}, nil
}

// RuleFilter narrows rule lists
type RuleFilter struct {
	shared.Filter
	TriggerType *TriggerType
	Enabled     *bool
}

// RuleRepository defines persistence for rules
type RuleRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Rule, error)
	List(ctx context.Context, orgID uuid.UUID, filter RuleFilter) ([]*Rule, int64, error)
	FindEnabledByTrigger(ctx context.Context, orgID uuid.UUID, trigger TriggerType) ([]*Rule, error)
	// FindAllEnabledCron returns cron rules across organizations, for the scheduler
	FindAllEnabledCron(ctx context.Context) ([]*Rule, error)
	// MarkTriggered stamps last_triggered without touching the version
	MarkTriggered(ctx context.Context, orgID, id uuid.UUID, at time.Time) error
	Save(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
}
