package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/crewdesk/backend/internal/domain/automation"
	"github.com/crewdesk/backend/internal/domain/billing"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRule(t *testing.T, orgID uuid.UUID, name string, trigger automation.Trigger) *automation.Rule {
	t.Helper()
	r, err := automation.NewRule(orgID, automation.RuleDefinition{
		Name:    name,
		Trigger: trigger,
		Conditions: []automation.Condition{
			{Field: "status", Op: automation.OpEquals, Value: "completed"},
		},
		Actions: []automation.Action{
			{Type: automation.ActionSendSMS, Params: map[string]any{"to": "{{customer.phone}}", "body": "Thanks!"}},
		},
	})
	require.NoError(t, err)
	return r
}

func TestGormRuleRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormRuleRepository(db)
	ctx := context.Background()
	orgA, orgB := uuid.New(), uuid.New()

	onComplete := newRule(t, orgA, "Thank you text", automation.Trigger{Type: automation.TriggerDBEvent, EventType: "job.completed"})
	nightly := newRule(t, orgA, "Nightly digest", automation.Trigger{Type: automation.TriggerCron, Cron: "0 2 * * *"})
	otherOrg := newRule(t, orgB, "Weekly", automation.Trigger{Type: automation.TriggerCron, Cron: "0 8 * * 1"})
	paused := newRule(t, orgB, "Paused", automation.Trigger{Type: automation.TriggerCron, Cron: "*/5 * * * *"})
	paused.Disable()
	for _, r := range []*automation.Rule{onComplete, nightly, otherOrg, paused} {
		require.NoError(t, repo.Save(ctx, r))
	}

	loaded, err := repo.FindByID(ctx, orgA, onComplete.ID)
	require.NoError(t, err)
	assert.Equal(t, onComplete.Trigger, loaded.Trigger)
	require.Len(t, loaded.Actions, 1)
	assert.Equal(t, "{{customer.phone}}", loaded.Actions[0].Params["to"])
	assert.Equal(t, automation.OpEquals, loaded.Conditions[0].Op)

	stillPaused, err := repo.FindByID(ctx, orgB, paused.ID)
	require.NoError(t, err)
	assert.False(t, stillPaused.Enabled)

	byTrigger, err := repo.FindEnabledByTrigger(ctx, orgA, automation.TriggerDBEvent)
	require.NoError(t, err)
	require.Len(t, byTrigger, 1)
	assert.Equal(t, onComplete.ID, byTrigger[0].ID)

	crons, err := repo.FindAllEnabledCron(ctx)
	require.NoError(t, err)
	assert.Len(t, crons, 2)

	require.NoError(t, repo.Delete(ctx, orgA, nightly.ID))
	assert.ErrorIs(t, repo.Delete(ctx, orgA, nightly.ID), shared.ErrNotFound)
}

func TestGormRunRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()
	orgID := uuid.New()
	rule := newRule(t, orgID, "Thank you text", automation.Trigger{Type: automation.TriggerDBEvent, EventType: "job.completed"})

	started := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	run := automation.NewRun(rule, &automation.TriggerEvent{
		OrgID: orgID, Type: automation.TriggerDBEvent, EventType: "job.completed",
		EventID: uuid.New(), Payload: map[string]any{"job_id": "j-1"}, OccurredAt: started,
	}, started)
	require.NoError(t, repo.Save(ctx, run))

	run.RecordStep(automation.StepResult{Type: automation.ActionSendSMS, Status: automation.StepSucceeded, Attempts: 1})
	run.Succeed(started.Add(time.Second))
	require.NoError(t, repo.Save(ctx, run))

	loaded, err := repo.FindByID(ctx, orgID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, automation.RunSucceeded, loaded.Status)
	assert.Len(t, loaded.Steps, 1)
	assert.Equal(t, "j-1", loaded.Trigger.Payload["job_id"])

	runs, total, err := repo.List(ctx, orgID, automation.RunFilter{Filter: shared.DefaultFilter(), RuleID: &rule.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, runs, 1)
}

func TestGormSubscriptionRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	ctx := context.Background()
	orgID := uuid.New()

	sub, err := billing.NewSubscription(orgID, billing.ProviderStripe, "sub_123")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, sub))

	found, err := repo.FindByExternalID(ctx, billing.ProviderStripe, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.ID)

	_, err = repo.FindByExternalID(ctx, billing.ProviderPolar, "sub_123")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	dup, err := billing.NewSubscription(uuid.New(), billing.ProviderStripe, "sub_123")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Save(ctx, dup), shared.ErrAlreadyExists)

	subs, err := repo.ListByOrg(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}
