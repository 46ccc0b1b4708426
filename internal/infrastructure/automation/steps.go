package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crewdesk/backend/internal/domain/automation"
	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/scheduling"
	"github.com/crewdesk/backend/internal/infrastructure/notify"
	"github.com/google/uuid"
)

// Step is one rendered action handed to an executor
type Step struct {
	OrgID  uuid.UUID
	RunID  uuid.UUID
	RuleID uuid.UUID
	Action automation.ActionType
	Params map[string]any
	Event  *automation.TriggerEvent
}

// String returns a trimmed string param, or "" when absent
func (s Step) String(key string) string {
	v, ok := s.Params[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// UUID parses a uuid param
func (s Step) UUID(key string) (uuid.UUID, error) {
	id, err := uuid.Parse(s.String(key))
	if err != nil {
		return uuid.Nil, Permanent(fmt.Errorf("param %q is not a valid id", key))
	}
	return id, nil
}

// StepExecutor performs one action and returns values later steps can reference
type StepExecutor interface {
	Execute(ctx context.Context, step Step) (map[string]any, error)
}

// StepFunc adapts a function to StepExecutor
type StepFunc func(ctx context.Context, step Step) (map[string]any, error)

// Execute calls f
func (f StepFunc) Execute(ctx context.Context, step Step) (map[string]any, error) {
	return f(ctx, step)
}

// Executors maps action types to their executors
type Executors map[automation.ActionType]StepExecutor

// SMSStep sends params.body to params.to
func SMSStep(sender notify.SMSSender) StepFunc {
	return func(ctx context.Context, s Step) (map[string]any, error) {
		to, body := s.String("to"), s.String("body")
		if to == "" || body == "" {
			return nil, Permanent(errors.New("sms needs a recipient and a body"))
		}
		sid, err := sender.SendSMS(ctx, to, body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message_id": sid}, nil
	}
}

// PushTargets resolves device tokens for a member
type PushTargets interface {
	// PushTokens returns the user's tokens when the user belongs to orgID
	PushTokens(ctx context.Context, orgID, userID uuid.UUID) ([]string, error)
	RemovePushToken(ctx context.Context, userID uuid.UUID, token string) error
}

// PushStep notifies every registered device of params.user_id. Tokens the
// provider reports as unregistered are removed from the user.
func PushStep(sender notify.PushSender, targets PushTargets) StepFunc {
	return func(ctx context.Context, s Step) (map[string]any, error) {
		userID, err := s.UUID("user_id")
		if err != nil {
			return nil, err
		}
		tokens, err := targets.PushTokens(ctx, s.OrgID, userID)
		if err != nil {
			return nil, err
		}
		msg := notify.PushMessage{
			Title: s.String("title"),
			Body:  s.String("body"),
			Data:  stringMap(s.Params["data"]),
		}

		sent, dropped := 0, 0
		var errs []error
		for _, token := range tokens {
			_, err := sender.SendPush(ctx, token, msg)
			switch {
			case err == nil:
				sent++
			case errors.Is(err, notify.ErrUnregisteredToken):
				dropped++
				if rmErr := targets.RemovePushToken(ctx, userID, token); rmErr != nil {
					errs = append(errs, rmErr)
				}
			default:
				errs = append(errs, err)
			}
		}
		if sent == 0 && len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return map[string]any{"sent": sent, "dropped": dropped}, nil
	}
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprint(val)
	}
	return out
}

// JobActions are the job and invoice operations a rule may perform
type JobActions interface {
	TransitionJob(ctx context.Context, orgID, jobID uuid.UUID, status scheduling.JobStatus, note string) (*scheduling.Job, error)
	CreateInvoiceFromJob(ctx context.Context, orgID, jobID uuid.UUID) (*sales.Invoice, error)
}

// UpdateJobStatusStep moves params.job_id to params.status
func UpdateJobStatusStep(jobs JobActions) StepFunc {
	return func(ctx context.Context, s Step) (map[string]any, error) {
		jobID, err := s.UUID("job_id")
		if err != nil {
			return nil, err
		}
		status := scheduling.JobStatus(s.String("status"))
		if !status.IsValid() {
			return nil, Permanent(fmt.Errorf("unknown job status %q", status))
		}
		job, err := jobs.TransitionJob(ctx, s.OrgID, jobID, status, s.String("note"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"job_id": job.ID.String(), "status": string(job.Status)}, nil
	}
}

// CreateInvoiceFromJobStep drafts an invoice for a completed job
func CreateInvoiceFromJobStep(jobs JobActions) StepFunc {
	return func(ctx context.Context, s Step) (map[string]any, error) {
		jobID, err := s.UUID("job_id")
		if err != nil {
			return nil, err
		}
		inv, err := jobs.CreateInvoiceFromJob(ctx, s.OrgID, jobID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"invoice_id": inv.ID.String(),
			"number":     inv.Number,
			"total":      inv.Total.StringFixed(2),
		}, nil
	}
}

// DelayStep pauses the flow for params.duration
func DelayStep() StepFunc {
	return func(ctx context.Context, s Step) (map[string]any, error) {
		d, err := automation.ParseDelay(s.Params["duration"])
		if err != nil {
			return nil, Permanent(err)
		}
		if err := sleepCtx(ctx, d); err != nil {
			return nil, err
		}
		return map[string]any{"waited": d.String()}, nil
	}
}
