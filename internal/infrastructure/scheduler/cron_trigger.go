package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/crewdesk/backend/internal/domain/automation"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CronRuleSource lists every enabled cron-triggered rule
type CronRuleSource interface {
	FindAllEnabledCron(ctx context.Context) ([]*automation.Rule, error)
}

// Dispatcher hands a trigger event to the automation engine
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *automation.TriggerEvent) error
}

const (
	ruleJobPrefix = "rule:"
	tickLockTTL   = 10 * time.Minute
)

// RuleCronTrigger keeps one scheduler entry per cron rule and dispatches a
// cron trigger event whenever an entry fires. The rule set is reloaded every
// CronRefreshPeriod so edits made through the API take effect without a restart.
// When a lock store is set, each tick is claimed once across instances.
type RuleCronTrigger struct {
	sched      *Scheduler
	rules      CronRuleSource
	dispatcher Dispatcher
	locks      shared.IdempotencyStore
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.Mutex
	specs  map[uuid.UUID]string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRuleCronTrigger creates a trigger; locks may be nil for single-instance deployments
func NewRuleCronTrigger(sched *Scheduler, rules CronRuleSource, dispatcher Dispatcher, locks shared.IdempotencyStore, logger *zap.Logger) *RuleCronTrigger {
	return &RuleCronTrigger{
		sched:      sched,
		rules:      rules,
		dispatcher: dispatcher,
		locks:      locks,
		logger:     logger,
		now:        time.Now,
		specs:      make(map[uuid.UUID]string),
	}
}

// Start loads the rules once and keeps refreshing them in the background
func (t *RuleCronTrigger) Start(ctx context.Context) error {
	if err := t.Sync(ctx); err != nil {
		t.logger.Warn("initial cron rule sync failed", zap.Error(err))
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.sched.cfg.CronRefreshPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := t.Sync(loopCtx); err != nil {
					t.logger.Warn("cron rule sync failed", zap.Error(err))
				}
			}
		}
	}()
	return nil
}

// Stop ends the refresh loop
func (t *RuleCronTrigger) Stop(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync reconciles scheduler entries with the current rule set
func (t *RuleCronTrigger) Sync(ctx context.Context) error {
	rules, err := t.rules.FindAllEnabledCron(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(rules))
	for _, r := range rules {
		seen[r.ID] = struct{}{}
		if spec, ok := t.specs[r.ID]; ok && spec == r.Trigger.Cron {
			continue
		}
		orgID, ruleID := r.OrgID, r.ID
		err := t.sched.Schedule(ruleJobPrefix+ruleID.String(), r.Trigger.Cron, func(ctx context.Context) error {
			return t.fire(ctx, orgID, ruleID)
		})
		if err != nil {
			t.logger.Warn("skipping cron rule with invalid schedule",
				zap.String("rule_id", ruleID.String()),
				zap.String("cron", r.Trigger.Cron),
				zap.Error(err),
			)
			continue
		}
		t.specs[ruleID] = r.Trigger.Cron
	}

	for id := range t.specs {
		if _, ok := seen[id]; !ok {
			t.sched.Unschedule(ruleJobPrefix + id.String())
			delete(t.specs, id)
		}
	}
	return nil
}

// Registered returns how many rules currently have a scheduler entry
func (t *RuleCronTrigger) Registered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.specs)
}

func (t *RuleCronTrigger) fire(ctx context.Context, orgID, ruleID uuid.UUID) error {
	now := t.now().UTC().Truncate(time.Minute)

	if t.locks != nil {
		key := "cron:" + ruleID.String() + ":" + strconv.FormatInt(now.Unix(), 10)
		claimed, err := t.locks.MarkProcessed(ctx, key, tickLockTTL)
		if err != nil {
			t.logger.Warn("cron tick lock unavailable, firing anyway", zap.String("rule_id", ruleID.String()), zap.Error(err))
		} else if !claimed {
			return nil
		}
	}

	id := ruleID
	ev := &automation.TriggerEvent{
		OrgID:      orgID,
		Type:       automation.TriggerCron,
		EventType:  "cron.tick",
		EventID:    uuid.New(),
		Payload:    map[string]any{"scheduled_at": now.Format(time.RFC3339)},
		OccurredAt: now,
		RuleID:     &id,
	}
	return t.dispatcher.Dispatch(ctx, ev)
}
