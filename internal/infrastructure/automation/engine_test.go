package automation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crewdesk/backend/internal/domain/automation"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRules struct {
	mu        sync.Mutex
	rules     map[uuid.UUID]*automation.Rule
	triggered map[uuid.UUID]time.Time
}

func newMemRules(rules ...*automation.Rule) *memRules {
	m := &memRules{rules: map[uuid.UUID]*automation.Rule{}, triggered: map[uuid.UUID]time.Time{}}
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return m
}

func (m *memRules) FindByID(_ context.Context, orgID, id uuid.UUID) (*automation.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.OrgID != orgID {
		return nil, shared.ErrNotFound
	}
	return r, nil
}

func (m *memRules) FindEnabledByTrigger(_ context.Context, orgID uuid.UUID, trigger automation.TriggerType) ([]*automation.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*automation.Rule
	for _, r := range m.rules {
		if r.OrgID == orgID && r.Enabled && r.Trigger.Type == trigger {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRules) MarkTriggered(_ context.Context, _, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggered[id] = at
	return nil
}

type memRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]automation.Run
}

func newMemRuns() *memRuns { return &memRuns{runs: map[uuid.UUID]automation.Run{}} }

func (m *memRuns) FindByID(_ context.Context, orgID, id uuid.UUID) (*automation.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.OrgID != orgID {
		return nil, shared.ErrNotFound
	}
	return &r, nil
}

func (m *memRuns) List(context.Context, uuid.UUID, automation.RunFilter) ([]*automation.Run, int64, error) {
	return nil, 0, nil
}

func (m *memRuns) Save(_ context.Context, r *automation.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = *r
	return nil
}

func (m *memRuns) get(id uuid.UUID) automation.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

type countingRecorder struct {
	runs  atomic.Int64
	steps atomic.Int64
}

func (c *countingRecorder) AutomationRun(string, string, time.Duration) { c.runs.Add(1) }
func (c *countingRecorder) AutomationStep(string, string)               { c.steps.Add(1) }
func (c *countingRecorder) AutomationQueueDepth(int)                    {}

func testEngineConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      4,
		StepTimeout:    time.Second,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  10 * time.Millisecond,
		ActionRate:     1000,
		ActionBurst:    100,
	}
}

func newTestEngine(t *testing.T, rules *memRules, runs *memRuns, steps Executors, opts ...Option) *Engine {
	t.Helper()
	e, err := New(testEngineConfig(), rules, runs, steps, zap.NewNop(), opts...)
	require.NoError(t, err)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func dbRule(t *testing.T, orgID uuid.UUID, pattern string, actions ...automation.Action) *automation.Rule {
	t.Helper()
	r, err := automation.NewRule(orgID, automation.RuleDefinition{
		Name:    "rule " + pattern,
		Trigger: automation.Trigger{Type: automation.TriggerDBEvent, EventType: pattern},
		Actions: actions,
	})
	require.NoError(t, err)
	return r
}

func smsAction(body string) automation.Action {
	return automation.Action{Type: automation.ActionSendSMS, Params: map[string]any{"to": "+15550001111", "body": body}}
}

type recordingSMS struct {
	mu     sync.Mutex
	bodies []string
	fail   []error
}

func (r *recordingSMS) SendSMS(_ context.Context, _ string, body string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fail) > 0 {
		err := r.fail[0]
		r.fail = r.fail[1:]
		return "", err
	}
	r.bodies = append(r.bodies, body)
	return "SM" + body, nil
}

func jobEvent(orgID uuid.UUID, eventType string, payload map[string]any) *automation.TriggerEvent {
	return &automation.TriggerEvent{
		OrgID:      orgID,
		Type:       automation.TriggerDBEvent,
		EventType:  eventType,
		EventID:    uuid.New(),
		Payload:    payload,
		OccurredAt: time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC),
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Workers = 0
	_, err := New(cfg, newMemRules(), newMemRuns(), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestEngine_DispatchAndWait_RunsMatchingRules(t *testing.T) {
	org := uuid.New()
	matching := dbRule(t, org, "job.*",
		smsAction("Job {{payload.title}} done"),
		smsAction("ref {{steps.1.message_id}}"),
	)
	other := dbRule(t, org, "invoice.paid", smsAction("paid"))
	foreign := dbRule(t, uuid.New(), "job.*", smsAction("wrong org"))

	sms := &recordingSMS{}
	rules, runs, rec := newMemRules(matching, other, foreign), newMemRuns(), &countingRecorder{}
	e := newTestEngine(t, rules, runs, Executors{automation.ActionSendSMS: SMSStep(sms)}, WithMetrics(rec))

	results, err := e.DispatchAndWait(context.Background(), jobEvent(org, "job.completed", map[string]any{"title": "Boiler"}))
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, matching.ID, res.RuleID)
	assert.Equal(t, automation.RunSucceeded, res.Status)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, []string{"Job Boiler done", "ref SMJob Boiler done"}, sms.bodies)

	stored := runs.get(res.RunID)
	assert.Equal(t, automation.RunSucceeded, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
	assert.Contains(t, rules.triggered, matching.ID)
	assert.Equal(t, int64(1), rec.runs.Load())
	assert.Equal(t, int64(2), rec.steps.Load())
}

func TestEngine_ConditionsFilterRules(t *testing.T) {
	org := uuid.New()
	r := dbRule(t, org, "job.completed", smsAction("vip"))
	require.NoError(t, r.Update(automation.RuleDefinition{
		Name:       r.Name,
		Trigger:    r.Trigger,
		Conditions: []automation.Condition{{Field: "priority", Op: automation.OpEquals, Value: "urgent"}},
		Actions:    r.Actions,
	}))
	e := newTestEngine(t, newMemRules(r), newMemRuns(), Executors{automation.ActionSendSMS: SMSStep(&recordingSMS{})})

	results, err := e.DispatchAndWait(context.Background(), jobEvent(org, "job.completed", map[string]any{"priority": "low"}))
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = e.DispatchAndWait(context.Background(), jobEvent(org, "job.completed", map[string]any{"priority": "urgent"}))
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestEngine_RetriesTransientFailures(t *testing.T) {
	org := uuid.New()
	r := dbRule(t, org, "job.*", smsAction("hello"))
	sms := &recordingSMS{fail: []error{
		&notify.APIError{Provider: "twilio", Status: 503},
		errors.New("connection reset"),
	}}
	e := newTestEngine(t, newMemRules(r), newMemRuns(), Executors{automation.ActionSendSMS: SMSStep(sms)})
	var delays []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	results, err := e.DispatchAndWait(context.Background(), jobEvent(org, "job.started", nil))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, automation.RunSucceeded, results[0].Status)
	assert.Equal(t, 3, results[0].Steps[0].Attempts)
	require.Len(t, delays, 2)
	assert.LessOrEqual(t, delays[0], time.Millisecond)
	assert.LessOrEqual(t, delays[1], 2*time.Millisecond)
}

func TestEngine_PermanentFailureStopsFlow(t *testing.T) {
	org := uuid.New()
	r := dbRule(t, org, "job.*", smsAction("first"), smsAction("second"))
	sms := &recordingSMS{fail: []error{&notify.APIError{Provider: "twilio", Status: 400, Message: "invalid number"}}}
	runs := newMemRuns()
	e := newTestEngine(t, newMemRules(r), runs, Executors{automation.ActionSendSMS: SMSStep(sms)})

	results, err := e.DispatchAndWait(context.Background(), jobEvent(org, "job.started", nil))
	require.NoError(t, err)
	res := results[0]
	assert.Equal(t, automation.RunFailed, res.Status)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, 1, res.Steps[0].Attempts)
	assert.Contains(t, res.Error, "step 1 (send_sms)")
	assert.Empty(t, sms.bodies)
	assert.Equal(t, automation.RunFailed, runs.get(res.RunID).Status)
}

func TestEngine_ExhaustedRetriesThenReplay(t *testing.T) {
	org := uuid.New()
	r := dbRule(t, org, "job.*", smsAction("hello"))
	transient := &notify.APIError{Provider: "twilio", Status: 500}
	sms := &recordingSMS{fail: []error{transient, transient, transient}}
	runs := newMemRuns()
	e := newTestEngine(t, newMemRules(r), runs, Executors{automation.ActionSendSMS: SMSStep(sms)})

	results, err := e.DispatchAndWait(context.Background(), jobEvent(org, "job.started", nil))
	require.NoError(t, err)
	require.Equal(t, automation.RunFailed, results[0].Status)
	assert.Equal(t, automation.DefaultMaxAttempts, results[0].Steps[0].Attempts)

	replayed, err := e.Retry(context.Background(), org, results[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, results[0].RunID, replayed.RunID)
	assert.Equal(t, automation.RunSucceeded, replayed.Status)
	assert.Equal(t, 2, replayed.Attempt)

	_, err = e.Retry(context.Background(), org, results[0].RunID)
	assert.ErrorIs(t, err, shared.ErrInvalidState, "succeeded runs cannot be replayed")
}

func TestEngine_MissingExecutorFailsRun(t *testing.T) {
	org := uuid.New()
	r := dbRule(t, org, "job.*", smsAction("x"))
	e := newTestEngine(t, newMemRules(r), newMemRuns(), Executors{})

	results, err := e.DispatchAndWait(context.Background(), jobEvent(org, "job.started", nil))
	require.NoError(t, err)
	assert.Equal(t, automation.RunFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "no executor")
}

func TestEngine_TargetedTriggerUsesRuleID(t *testing.T) {
	org := uuid.New()
	a := dbRule(t, org, "job.*", smsAction("a"))
	b := dbRule(t, org, "job.*", smsAction("b"))
	sms := &recordingSMS{}
	e := newTestEngine(t, newMemRules(a, b), newMemRuns(), Executors{automation.ActionSendSMS: SMSStep(sms)})

	ev := jobEvent(org, "job.started", nil)
	ev.RuleID = &b.ID
	results, err := e.DispatchAndWait(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, b.ID, results[0].RuleID)

	missing := uuid.New()
	ev.RuleID = &missing
	results, err = e.DispatchAndWait(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, results)
}

type blockingStep struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func (b *blockingStep) Execute(ctx context.Context, _ Step) (map[string]any, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	select {
	case <-b.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestEngine_DispatchQueue(t *testing.T) {
	org := uuid.New()
	r := dbRule(t, org, "job.*", automation.Action{Type: automation.ActionSendSMS, Params: map[string]any{"to": "1", "body": "b"}})
	step := &blockingStep{started: make(chan struct{}), release: make(chan struct{})}
	cfg := testEngineConfig()
	cfg.Workers, cfg.QueueSize = 1, 1
	runs := newMemRuns()
	e, err := New(cfg, newMemRules(r), runs, Executors{automation.ActionSendSMS: step}, zap.NewNop())
	require.NoError(t, err)

	ev := jobEvent(org, "job.started", nil)
	assert.ErrorIs(t, e.Dispatch(context.Background(), ev), ErrNotRunning)

	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Dispatch(context.Background(), ev))
	<-step.started
	require.NoError(t, e.Dispatch(context.Background(), ev))
	assert.ErrorIs(t, e.Dispatch(context.Background(), ev), ErrQueueFull)

	close(step.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	assert.Equal(t, int64(2), step.calls.Load(), "queued events drain on stop")
	assert.ErrorIs(t, e.Dispatch(context.Background(), ev), ErrNotRunning)
}

func TestEngine_HandleDomainEvent(t *testing.T) {
	org := uuid.New()
	r := dbRule(t, org, "job.completed", smsAction("done {{payload.title}}"))
	sms := &recordingSMS{}
	runs := newMemRuns()
	e := newTestEngine(t, newMemRules(r), runs, Executors{automation.ActionSendSMS: SMSStep(sms)})
	require.NoError(t, e.Start(context.Background()))

	base := shared.NewBaseDomainEvent("job.completed", "job", uuid.New(), org)
	require.NoError(t, e.Handle(context.Background(), shared.NewRecordedEvent(base, []byte(`{"title":"Gutter clean"}`))))

	system := shared.NewBaseDomainEvent("job.completed", "job", uuid.New(), uuid.Nil)
	require.NoError(t, e.Handle(context.Background(), shared.NewRecordedEvent(system, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	assert.Equal(t, []string{"done Gutter clean"}, sms.bodies)
	assert.Nil(t, e.EventTypes())
}

func TestEngine_Backoff(t *testing.T) {
	e := newTestEngine(t, newMemRules(), newMemRuns(), nil)
	e.cfg.RetryBaseDelay = 100 * time.Millisecond
	e.cfg.RetryMaxDelay = time.Second
	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, e.backoff(1), 100*time.Millisecond)
		assert.LessOrEqual(t, e.backoff(3), 400*time.Millisecond)
		d := e.backoff(10)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain", errors.New("io timeout"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"permanent", Permanent(errors.New("bad param")), false},
		{"server error", &notify.APIError{Status: 502}, true},
		{"client error", &notify.APIError{Status: 422}, false},
		{"http 429", &HTTPStatusError{Status: 429}, true},
		{"http 404", &HTTPStatusError{Status: 404}, false},
		{"domain", shared.InvalidState("job is completed"), false},
		{"not configured", notify.ErrNotConfigured, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
