package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/crewdesk/backend/internal/domain/automation"
	"github.com/crewdesk/backend/internal/domain/shared"
	engine "github.com/crewdesk/backend/internal/infrastructure/automation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ManualEventType names the trigger event of a manual run when the rule has no
// concrete event type of its own
const ManualEventType = "automation.manual"

// Runner executes rules synchronously
type Runner interface {
	DispatchAndWait(ctx context.Context, ev *automation.TriggerEvent) ([]engine.RunResult, error)
	Retry(ctx context.Context, orgID, runID uuid.UUID) (*engine.RunResult, error)
}

// SecretSealer encrypts http_request secret header values before they are stored
type SecretSealer interface {
	EncryptString(plaintext string) (string, error)
}

// CronSyncer reloads scheduler entries after a cron rule changes
type CronSyncer interface {
	Sync(ctx context.Context) error
}

// AutomationService manages automation rules and their runs
type AutomationService struct {
	rules  automation.RuleRepository
	runs   automation.RunRepository
	runner Runner
	sealer SecretSealer
	cron   CronSyncer
	logger *zap.Logger
	now    func() time.Time
}

// NewAutomationService creates the service. sealer may be nil, in which case
// rules with secret headers are rejected.
func NewAutomationService(
	rules automation.RuleRepository,
	runs automation.RunRepository,
	runner Runner,
	sealer SecretSealer,
	logger *zap.Logger,
) *AutomationService {
	return &AutomationService{
		rules:  rules,
		runs:   runs,
		runner: runner,
		sealer: sealer,
		logger: logger,
		now:    time.Now,
	}
}

// SetCronSyncer makes cron rule edits take effect without waiting for the
// scheduler's refresh period
func (s *AutomationService) SetCronSyncer(c CronSyncer) {
	s.cron = c
}

// Create creates a rule
func (s *AutomationService) Create(ctx context.Context, orgID, createdBy uuid.UUID, req RuleRequest) (*RuleResponse, error) {
	actions, err := s.sealActions(req.Actions, nil)
	if err != nil {
		return nil, err
	}
	rule, err := automation.NewRule(orgID, req.definition(actions))
	if err != nil {
		return nil, err
	}
	rule.SetCreatedBy(createdBy)
	if req.Enabled != nil && !*req.Enabled {
		rule.Disable()
	}
	if err := s.rules.Save(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("Automation rule created",
		zap.String("org_id", orgID.String()),
		zap.String("rule_id", rule.ID.String()),
		zap.String("trigger", string(rule.Trigger.Type)))
	s.syncCron(ctx, rule.Trigger.Type)

	response := ToRuleResponse(rule)
	return &response, nil
}

// Get retrieves a rule
func (s *AutomationService) Get(ctx context.Context, orgID, id uuid.UUID) (*RuleResponse, error) {
	rule, err := s.rules.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	response := ToRuleResponse(rule)
	return &response, nil
}

// List retrieves rules with filtering and pagination
func (s *AutomationService) List(ctx context.Context, orgID uuid.UUID, filter RuleListFilter) (*shared.Paginated[RuleResponse], error) {
	f := automation.RuleFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			Search:   filter.Search,
		}.Normalize(),
		Enabled: filter.Enabled,
	}
	if filter.TriggerType != "" {
		tt := automation.TriggerType(filter.TriggerType)
		f.TriggerType = &tt
	}
	rules, total, err := s.rules.List(ctx, orgID, f)
	if err != nil {
		return nil, err
	}
	items := make([]RuleResponse, len(rules))
	for i, r := range rules {
		items[i] = ToRuleResponse(r)
	}
	page := shared.NewPaginated(items, total, f.Page, f.PageSize)
	return &page, nil
}

// Update replaces a rule's definition. Enabled is applied when present.
func (s *AutomationService) Update(ctx context.Context, orgID, id uuid.UUID, req RuleRequest) (*RuleResponse, error) {
	rule, err := s.rules.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	previousTrigger := rule.Trigger.Type

	actions, err := s.sealActions(req.Actions, rule.Actions)
	if err != nil {
		return nil, err
	}
	if err := rule.Update(req.definition(actions)); err != nil {
		return nil, err
	}
	if req.Enabled != nil {
		if *req.Enabled {
			rule.Enable()
		} else {
			rule.Disable()
		}
	}
	if err := s.rules.Save(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("Automation rule updated",
		zap.String("org_id", orgID.String()),
		zap.String("rule_id", id.String()))
	s.syncCron(ctx, previousTrigger, rule.Trigger.Type)

	response := ToRuleResponse(rule)
	return &response, nil
}

// SetEnabled turns a rule on or off
func (s *AutomationService) SetEnabled(ctx context.Context, orgID, id uuid.UUID, enabled bool) (*RuleResponse, error) {
	rule, err := s.rules.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if rule.Enabled != enabled {
		if enabled {
			rule.Enable()
		} else {
			rule.Disable()
		}
		if err := s.rules.Save(ctx, rule); err != nil {
			return nil, err
		}
		s.syncCron(ctx, rule.Trigger.Type)
	}
	response := ToRuleResponse(rule)
	return &response, nil
}

// Delete removes a rule. Its runs are kept for the history view.
func (s *AutomationService) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	rule, err := s.rules.FindByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := s.rules.Delete(ctx, orgID, id); err != nil {
		return err
	}
	s.logger.Info("Automation rule deleted",
		zap.String("org_id", orgID.String()),
		zap.String("rule_id", id.String()))
	s.syncCron(ctx, rule.Trigger.Type)
	return nil
}

// Trigger runs one rule now and waits for the outcome. The event carries the
// rule's own trigger type so conditions see the same shape as a real firing.
func (s *AutomationService) Trigger(ctx context.Context, orgID, ruleID uuid.UUID, req ManualTriggerRequest) (*DispatchResponse, error) {
	rule, err := s.rules.FindByID(ctx, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.Enabled {
		return nil, shared.InvalidState("Rule is disabled")
	}

	eventType := rule.Trigger.EventType
	if eventType == "" || hasGlob(eventType) {
		eventType = ManualEventType
	}
	ev := &automation.TriggerEvent{
		OrgID:      orgID,
		Type:       rule.Trigger.Type,
		EventType:  eventType,
		EventID:    uuid.New(),
		Payload:    payloadOrEmpty(req.Payload),
		OccurredAt: s.now().UTC(),
		RuleID:     &rule.ID,
	}
	return s.dispatch(ctx, ev)
}

// IngestExternalEvent runs every api-triggered rule whose event type matches
func (s *AutomationService) IngestExternalEvent(ctx context.Context, orgID uuid.UUID, req ExternalEventRequest) (*DispatchResponse, error) {
	eventID := uuid.New()
	if req.EventID != "" {
		id, err := uuid.Parse(req.EventID)
		if err != nil {
			return nil, shared.InvalidInput("event_id must be a UUID")
		}
		eventID = id
	}
	ev := &automation.TriggerEvent{
		OrgID:      orgID,
		Type:       automation.TriggerAPI,
		EventType:  req.EventType,
		EventID:    eventID,
		Payload:    payloadOrEmpty(req.Payload),
		OccurredAt: s.now().UTC(),
	}
	return s.dispatch(ctx, ev)
}

func (s *AutomationService) dispatch(ctx context.Context, ev *automation.TriggerEvent) (*DispatchResponse, error) {
	results, err := s.runner.DispatchAndWait(ctx, ev)
	if err != nil {
		s.logger.Error("Automation dispatch failed",
			zap.String("org_id", ev.OrgID.String()),
			zap.String("event_type", ev.EventType),
			zap.Error(err))
		return nil, err
	}
	resp := newDispatchResponse(ev, results)
	s.logger.Info("Automation event dispatched",
		zap.String("org_id", ev.OrgID.String()),
		zap.String("event_type", ev.EventType),
		zap.Int("matched", resp.Matched),
		zap.Int("failed", resp.Failed))
	return resp, nil
}

// ListRuns retrieves runs, newest first
func (s *AutomationService) ListRuns(ctx context.Context, orgID uuid.UUID, filter RunListFilter) (*shared.Paginated[RunResponse], error) {
	f := automation.RunFilter{
		Filter: shared.Filter{Page: filter.Page, PageSize: filter.PageSize}.Normalize(),
	}
	var err error
	if f.RuleID, err = shared.ParseOptionalID("rule_id", filter.RuleID); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		st := automation.RunStatus(filter.Status)
		f.Status = &st
	}
	runs, total, err := s.runs.List(ctx, orgID, f)
	if err != nil {
		return nil, err
	}
	items := make([]RunResponse, len(runs))
	for i, r := range runs {
		items[i] = ToRunResponse(r)
	}
	page := shared.NewPaginated(items, total, f.Page, f.PageSize)
	return &page, nil
}

// GetRun retrieves one run
func (s *AutomationService) GetRun(ctx context.Context, orgID, id uuid.UUID) (*RunResponse, error) {
	run, err := s.runs.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	response := ToRunResponse(run)
	return &response, nil
}

// RetryRun replays a failed run from its first step and waits for the outcome
func (s *AutomationService) RetryRun(ctx context.Context, orgID, id uuid.UUID) (*engine.RunResult, error) {
	res, err := s.runner.Retry(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Automation run retried",
		zap.String("org_id", orgID.String()),
		zap.String("run_id", id.String()),
		zap.Int("attempt", res.Attempt),
		zap.String("status", string(res.Status)))
	return res, nil
}

func (s *AutomationService) syncCron(ctx context.Context, triggers ...automation.TriggerType) {
	if s.cron == nil {
		return
	}
	for _, t := range triggers {
		if t == automation.TriggerCron {
			if err := s.cron.Sync(ctx); err != nil {
				s.logger.Warn("Cron rule sync failed, waiting for the next refresh", zap.Error(err))
			}
			return
		}
	}
}

// sealActions encrypts the secret_headers of http_request actions. A value
// equal to SecretMask keeps the sealed value of the same header at the same
// position in previous.
func (s *AutomationService) sealActions(actions []automation.Action, previous []automation.Action) ([]automation.Action, error) {
	out := make([]automation.Action, len(actions))
	for i, a := range actions {
		out[i] = a
		raw, ok := a.Params["secret_headers"]
		if !ok || raw == nil {
			continue
		}
		if a.Type != automation.ActionHTTPRequest {
			return nil, shared.InvalidInput(fmt.Sprintf("action %d: secret_headers is only allowed on http_request", i+1))
		}
		headers, ok := raw.(map[string]any)
		if !ok {
			return nil, shared.InvalidInput(fmt.Sprintf("action %d: secret_headers must be an object", i+1))
		}
		if len(headers) == 0 {
			continue
		}

		var kept map[string]any
		if i < len(previous) && previous[i].Type == automation.ActionHTTPRequest {
			kept, _ = previous[i].Params["secret_headers"].(map[string]any)
		}

		sealed := make(map[string]any, len(headers))
		for name, v := range headers {
			plain := fmt.Sprint(v)
			if plain == SecretMask {
				old, ok := kept[name]
				if !ok {
					return nil, shared.InvalidInput(fmt.Sprintf("action %d: secret header %q has no stored value", i+1, name))
				}
				sealed[name] = old
				continue
			}
			if s.sealer == nil {
				return nil, shared.InvalidInput("Secret headers need an encryption key to be configured")
			}
			enc, err := s.sealer.EncryptString(plain)
			if err != nil {
				return nil, fmt.Errorf("seal secret header: %w", err)
			}
			sealed[name] = enc
		}

		params := make(map[string]any, len(a.Params))
		for k, v := range a.Params {
			params[k] = v
		}
		params["secret_headers"] = sealed
		out[i].Params = params
	}
	return out, nil
}

func maskSecrets(actions []automation.Action) []automation.Action {
	out := make([]automation.Action, len(actions))
	for i, a := range actions {
		out[i] = a
		headers, ok := a.Params["secret_headers"].(map[string]any)
		if !ok || len(headers) == 0 {
			continue
		}
		masked := make(map[string]any, len(headers))
		for name := range headers {
			masked[name] = SecretMask
		}
		params := make(map[string]any, len(a.Params))
		for k, v := range a.Params {
			params[k] = v
		}
		params["secret_headers"] = masked
		out[i].Params = params
	}
	return out
}

func hasGlob(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

func payloadOrEmpty(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}
