// Package automation executes automation rules. Events arrive from the
// outbox bus, the cron trigger and the API; matching rules run their actions
// in order on a bounded worker pool, and every run is persisted so failed
// runs can be replayed.
package automation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/crewdesk/backend/internal/domain/automation"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	// ErrNotRunning is returned by Dispatch before Start or after Stop
	ErrNotRunning = errors.New("automation engine is not running")
	// ErrQueueFull is returned by Dispatch when the worker queue is saturated
	ErrQueueFull = errors.New("automation queue is full")
)

// RuleSource loads rules for matching
type RuleSource interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*automation.Rule, error)
	FindEnabledByTrigger(ctx context.Context, orgID uuid.UUID, trigger automation.TriggerType) ([]*automation.Rule, error)
	MarkTriggered(ctx context.Context, orgID, id uuid.UUID, at time.Time) error
}

// Recorder receives engine metrics
type Recorder interface {
	AutomationRun(trigger, status string, d time.Duration)
	AutomationStep(action, status string)
	AutomationQueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) AutomationRun(string, string, time.Duration) {}
func (nopRecorder) AutomationStep(string, string)               {}
func (nopRecorder) AutomationQueueDepth(int)                    {}

// Config tunes the worker pool and step retries
type Config struct {
	Workers        int
	QueueSize      int
	StepTimeout    time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	ActionRate     float64
	ActionBurst    int
}

// ConfigFrom maps the application config
func ConfigFrom(cfg config.AutomationConfig) Config {
	return Config{
		Workers:        cfg.Workers,
		QueueSize:      cfg.QueueSize,
		StepTimeout:    cfg.StepTimeout,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		ActionRate:     cfg.ActionRate,
		ActionBurst:    cfg.ActionBurst,
	}
}

func (c Config) validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("automation: workers must be positive")
	case c.QueueSize < 1:
		return fmt.Errorf("automation: queue size must be positive")
	case c.StepTimeout <= 0:
		return fmt.Errorf("automation: step timeout must be positive")
	case c.ActionRate <= 0 || c.ActionBurst < 1:
		return fmt.Errorf("automation: action rate and burst must be positive")
	}
	return nil
}

// RunResult summarizes a finished run
type RunResult struct {
	RunID    uuid.UUID               `json:"run_id"`
	RuleID   uuid.UUID               `json:"rule_id"`
	RuleName string                  `json:"rule_name"`
	Status   automation.RunStatus    `json:"status"`
	Attempt  int                     `json:"attempt"`
	Steps    []automation.StepResult `json:"steps"`
	Error    string                  `json:"error,omitempty"`
}

func resultOf(run *automation.Run) RunResult {
	return RunResult{
		RunID:    run.ID,
		RuleID:   run.RuleID,
		RuleName: run.RuleName,
		Status:   run.Status,
		Attempt:  run.Attempt,
		Steps:    run.Steps,
		Error:    run.Error,
	}
}

// Option configures an Engine
type Option func(*Engine)

// WithMetrics sets the metrics recorder
func WithMetrics(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// Engine matches trigger events against rules and executes their actions
type Engine struct {
	cfg     Config
	rules   RuleSource
	runs    automation.RunRepository
	steps   Executors
	limiter *rate.Limiter
	metrics Recorder
	logger  *zap.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
	queue   chan *automation.TriggerEvent
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an engine. steps maps each action type to its executor.
func New(cfg Config, rules RuleSource, runs automation.RunRepository, steps Executors, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		rules:   rules,
		runs:    runs,
		steps:   steps,
		limiter: rate.NewLimiter(rate.Limit(cfg.ActionRate), cfg.ActionBurst),
		metrics: nopRecorder{},
		logger:  logger.Named("automation"),
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start launches the workers
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	e.queue = make(chan *automation.TriggerEvent, e.cfg.QueueSize)
	e.running = true
	for range e.cfg.Workers {
		e.wg.Add(1)
		go e.worker(workCtx, e.queue)
	}
	e.logger.Info("automation engine started",
		zap.Int("workers", e.cfg.Workers),
		zap.Int("queue_size", e.cfg.QueueSize),
	)
	return nil
}

// Stop drains queued events. When ctx expires first, in-flight steps are cancelled.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	close(e.queue)
	cancel := e.cancel
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("automation engine stopped")
	case <-ctx.Done():
		e.logger.Warn("automation engine shutdown timed out, cancelling runs")
		cancel()
		<-done
	}
	cancel()
	return nil
}

func (e *Engine) worker(ctx context.Context, queue <-chan *automation.TriggerEvent) {
	defer e.wg.Done()
	for ev := range queue {
		e.metrics.AutomationQueueDepth(len(queue))
		if _, err := e.process(ctx, ev); err != nil {
			e.logger.Error("automation dispatch failed",
				zap.String("org_id", ev.OrgID.String()),
				zap.String("event_type", ev.EventType),
				zap.Error(err),
			)
		}
	}
}

// Dispatch queues ev for asynchronous execution without blocking
func (e *Engine) Dispatch(_ context.Context, ev *automation.TriggerEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}
	select {
	case e.queue <- ev:
		e.metrics.AutomationQueueDepth(len(e.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// DispatchAndWait runs every matching rule concurrently and returns their results
func (e *Engine) DispatchAndWait(ctx context.Context, ev *automation.TriggerEvent) ([]RunResult, error) {
	return e.process(ctx, ev)
}

func (e *Engine) process(ctx context.Context, ev *automation.TriggerEvent) ([]RunResult, error) {
	rules, err := e.matchingRules(ctx, ev)
	if err != nil {
		return nil, err
	}
	results := make([]RunResult, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, rule := range rules {
		g.Go(func() error {
			results[i] = e.execute(gctx, rule, automation.NewRun(rule, ev, e.now()))
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Retry replays a failed run from its first step
func (e *Engine) Retry(ctx context.Context, orgID, runID uuid.UUID) (*RunResult, error) {
	run, err := e.runs.FindByID(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	rule, err := e.rules.FindByID(ctx, orgID, run.RuleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.InvalidState("The rule for this run no longer exists")
		}
		return nil, err
	}
	if err := run.Retry(e.now()); err != nil {
		return nil, err
	}
	res := e.execute(ctx, rule, run)
	return &res, nil
}

func (e *Engine) matchingRules(ctx context.Context, ev *automation.TriggerEvent) ([]*automation.Rule, error) {
	if ev.RuleID != nil {
		rule, err := e.rules.FindByID(ctx, ev.OrgID, *ev.RuleID)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !rule.Matches(ev) {
			return nil, nil
		}
		return []*automation.Rule{rule}, nil
	}

	candidates, err := e.rules.FindEnabledByTrigger(ctx, ev.OrgID, ev.Type)
	if err != nil {
		return nil, err
	}
	matched := candidates[:0]
	for _, r := range candidates {
		if r.Matches(ev) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func (e *Engine) execute(ctx context.Context, rule *automation.Rule, run *automation.Run) RunResult {
	log := e.logger.With(
		zap.String("org_id", run.OrgID.String()),
		zap.String("rule_id", rule.ID.String()),
		zap.String("run_id", run.ID.String()),
		zap.Int("attempt", run.Attempt),
	)
	// Finished runs are recorded even when the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	if err := e.runs.Save(persistCtx, run); err != nil {
		log.Warn("failed to record run start", zap.Error(err))
	}

	vars := automation.TemplateVars(&run.Trigger)
	outputs := make(map[string]any, len(rule.Actions))
	vars["steps"] = outputs

	for i, action := range rule.Actions {
		res := e.runStep(ctx, rule, run, i, action, vars)
		run.RecordStep(res)
		if res.Status == automation.StepFailed {
			run.Fail(e.now(), fmt.Sprintf("step %d (%s): %s", i+1, action.Label(), res.Error))
			break
		}
		outputs[strconv.Itoa(i+1)] = res.Output
	}
	if !run.IsFinished() {
		run.Succeed(e.now())
	}

	if err := e.runs.Save(persistCtx, run); err != nil {
		log.Error("failed to record run result", zap.Error(err))
	}
	if err := e.rules.MarkTriggered(persistCtx, rule.OrgID, rule.ID, run.StartedAt); err != nil {
		log.Warn("failed to stamp rule", zap.Error(err))
	}
	e.metrics.AutomationRun(string(run.Trigger.Type), string(run.Status), run.Duration())

	if run.Status == automation.RunFailed {
		log.Warn("automation run failed", zap.String("error", run.Error))
	} else {
		log.Info("automation run succeeded", zap.Int("steps", len(run.Steps)), zap.Duration("duration", run.Duration()))
	}
	return resultOf(run)
}

func (e *Engine) runStep(ctx context.Context, rule *automation.Rule, run *automation.Run, index int, action automation.Action, vars map[string]any) automation.StepResult {
	res := automation.StepResult{
		Index:     index,
		Type:      action.Type,
		Name:      action.Label(),
		StartedAt: e.now(),
	}
	finish := func(out map[string]any, err error) automation.StepResult {
		res.FinishedAt = e.now()
		if err != nil {
			res.Status = automation.StepFailed
			res.Error = err.Error()
			e.metrics.AutomationStep(string(action.Type), string(automation.StepFailed))
			return res
		}
		res.Status = automation.StepSucceeded
		res.Output = out
		e.metrics.AutomationStep(string(action.Type), string(automation.StepSucceeded))
		return res
	}

	exec, ok := e.steps[action.Type]
	if !ok {
		return finish(nil, fmt.Errorf("no executor for action %s", action.Type))
	}
	step := Step{
		OrgID:  run.OrgID,
		RunID:  run.ID,
		RuleID: rule.ID,
		Action: action.Type,
		Params: automation.RenderParams(action.Params, vars),
		Event:  &run.Trigger,
	}

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		out, err := e.attempt(ctx, exec, step)
		if err == nil {
			return finish(out, nil)
		}
		if attempt >= rule.MaxAttempts || !Retryable(err) || ctx.Err() != nil {
			return finish(nil, err)
		}
		delay := e.backoff(attempt)
		e.logger.Debug("step failed, retrying",
			zap.String("run_id", run.ID.String()),
			zap.String("action", string(action.Type)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return finish(nil, err)
		}
	}
}

func (e *Engine) attempt(ctx context.Context, exec StepExecutor, step Step) (map[string]any, error) {
	timeout := e.cfg.StepTimeout
	switch step.Action {
	case automation.ActionDelay:
		if d, err := automation.ParseDelay(step.Params["duration"]); err == nil {
			timeout += d
		}
	case automation.ActionSendSMS, automation.ActionSendPush, automation.ActionHTTPRequest:
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return exec.Execute(stepCtx, step)
}

// Handle adapts the engine to the event bus: each domain event becomes a
// db_event trigger
func (e *Engine) Handle(ctx context.Context, event shared.DomainEvent) error {
	if event.OrgID() == uuid.Nil {
		return nil
	}
	ev, err := automation.NewTriggerEventFromDomain(event)
	if err != nil {
		return err
	}
	return e.Dispatch(ctx, ev)
}

// EventTypes subscribes the engine to every event
func (e *Engine) EventTypes() []string {
	return nil
}

var _ shared.EventHandler = (*Engine)(nil)
