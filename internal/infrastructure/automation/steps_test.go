package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crewdesk/backend/internal/domain/automation"
	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/scheduling"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/crypto"
	"github.com/crewdesk/backend/internal/infrastructure/notify"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpStep(url string, extra map[string]any) Step {
	params := map[string]any{"url": url}
	for k, v := range extra {
		params[k] = v
	}
	return Step{
		OrgID:  uuid.New(),
		RunID:  uuid.New(),
		Action: automation.ActionHTTPRequest,
		Params: params,
		Event:  &automation.TriggerEvent{EventType: "invoice.paid", Payload: map[string]any{"number": "INV-000007"}},
	}
}

func TestHTTPStep_PostsEventByDefault(t *testing.T) {
	var got map[string]any
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	out, err := NewHTTPStep(time.Second, true).Execute(context.Background(), httpStep(srv.URL, map[string]any{
		"headers": map[string]any{"Authorization": "Bearer abc"},
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out["status"])
	assert.Equal(t, map[string]any{"ok": true}, out["json"])

	assert.Equal(t, "invoice.paid", headers.Get("X-CrewDesk-Event"))
	assert.Equal(t, "Bearer abc", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "invoice.paid", got["event_type"])
}

func TestHTTPStep_CustomBodyAndMethod(t *testing.T) {
	var method string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, err := NewHTTPStep(time.Second, true).Execute(context.Background(), httpStep(srv.URL, map[string]any{
		"method": "put",
		"body":   map[string]any{"invoice": "INV-000007"},
	}))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "INV-000007", body["invoice"])
}

func TestHTTPStep_SecretHeaders(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cipher, err := crypto.New(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	sealed, err := cipher.EncryptString("Bearer hook-token")
	require.NoError(t, err)
	step := httpStep(srv.URL, map[string]any{"secret_headers": map[string]any{"Authorization": sealed}})

	_, err = NewHTTPStep(time.Second, true).Execute(context.Background(), step)
	require.Error(t, err, "sealed headers need a cipher")
	assert.False(t, Retryable(err))

	_, err = NewHTTPStep(time.Second, true).WithSecrets(cipher).Execute(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, "Bearer hook-token", auth)
}

func TestHTTPStep_StatusErrors(t *testing.T) {
	status := http.StatusBadGateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	step := NewHTTPStep(time.Second, true)

	_, err := step.Execute(context.Background(), httpStep(srv.URL, nil))
	var se *HTTPStatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, Retryable(err))

	status = http.StatusUnauthorized
	_, err = step.Execute(context.Background(), httpStep(srv.URL, nil))
	require.ErrorAs(t, err, &se)
	assert.False(t, Retryable(err))
}

func TestHTTPStep_BlocksPrivateTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request should not reach a loopback target")
	}))
	defer srv.Close()

	_, err := NewHTTPStep(time.Second, false).Execute(context.Background(), httpStep(srv.URL, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedTarget)
	assert.False(t, Retryable(err))

	_, err = NewHTTPStep(time.Second, false).Execute(context.Background(), httpStep("ftp://example.com/x", nil))
	assert.False(t, Retryable(err))
}

func TestIsPublic(t *testing.T) {
	for addr, want := range map[string]bool{
		"8.8.8.8":     true,
		"127.0.0.1":   false,
		"10.1.2.3":    false,
		"192.168.0.1": false,
		"169.254.1.1": false,
		"0.0.0.0":     false,
		"::1":         false,
		"fd00::1":     false,
	} {
		assert.Equal(t, want, isPublic(net.ParseIP(addr)), addr)
	}
}

type fakePush struct {
	sent []string
	errs map[string]error
}

func (f *fakePush) SendPush(_ context.Context, token string, _ notify.PushMessage) (string, error) {
	if err := f.errs[token]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, token)
	return "msg-" + token, nil
}

type fakeTargets struct {
	tokens  []string
	removed []string
}

func (f *fakeTargets) PushTokens(context.Context, uuid.UUID, uuid.UUID) ([]string, error) {
	return f.tokens, nil
}

func (f *fakeTargets) RemovePushToken(_ context.Context, _ uuid.UUID, token string) error {
	f.removed = append(f.removed, token)
	return nil
}

func TestPushStep_DropsUnregisteredTokens(t *testing.T) {
	sender := &fakePush{errs: map[string]error{"stale": notify.ErrUnregisteredToken}}
	targets := &fakeTargets{tokens: []string{"phone", "stale", "tablet"}}
	step := Step{OrgID: uuid.New(), Params: map[string]any{
		"user_id": uuid.NewString(), "title": "New job", "body": "Check the board",
		"data": map[string]any{"job_id": "j-1"},
	}}

	out, err := PushStep(sender, targets)(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, 2, out["sent"])
	assert.Equal(t, 1, out["dropped"])
	assert.Equal(t, []string{"stale"}, targets.removed)

	step.Params["user_id"] = "not-a-uuid"
	_, err = PushStep(sender, targets)(context.Background(), step)
	assert.False(t, Retryable(err))
}

func TestPushStep_AllFailures(t *testing.T) {
	boom := &notify.APIError{Provider: "fcm", Status: 503}
	sender := &fakePush{errs: map[string]error{"a": boom}}
	_, err := PushStep(sender, &fakeTargets{tokens: []string{"a"}})(context.Background(), Step{
		OrgID: uuid.New(), Params: map[string]any{"user_id": uuid.NewString(), "title": "t", "body": "b"},
	})
	require.Error(t, err)
	assert.True(t, Retryable(err))
}

type fakeJobs struct {
	status  scheduling.JobStatus
	invoice *sales.Invoice
	err     error
}

func (f *fakeJobs) TransitionJob(_ context.Context, _, jobID uuid.UUID, status scheduling.JobStatus, _ string) (*scheduling.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.status = status
	j := &scheduling.Job{Status: status}
	j.ID = jobID
	return j, nil
}

func (f *fakeJobs) CreateInvoiceFromJob(context.Context, uuid.UUID, uuid.UUID) (*sales.Invoice, error) {
	return f.invoice, f.err
}

func TestJobSteps(t *testing.T) {
	jobID := uuid.New()
	jobs := &fakeJobs{}
	out, err := UpdateJobStatusStep(jobs)(context.Background(), Step{
		OrgID: uuid.New(), Params: map[string]any{"job_id": jobID.String(), "status": "dispatched"},
	})
	require.NoError(t, err)
	assert.Equal(t, scheduling.JobStatusDispatched, jobs.status)
	assert.Equal(t, "dispatched", out["status"])

	_, err = UpdateJobStatusStep(jobs)(context.Background(), Step{
		Params: map[string]any{"job_id": jobID.String(), "status": "teleported"},
	})
	assert.False(t, Retryable(err))

	inv := &sales.Invoice{Number: "INV-000012", Total: decimal.RequireFromString("150.5")}
	inv.ID = uuid.New()
	jobs.invoice = inv
	out, err = CreateInvoiceFromJobStep(jobs)(context.Background(), Step{Params: map[string]any{"job_id": jobID.String()}})
	require.NoError(t, err)
	assert.Equal(t, "INV-000012", out["number"])
	assert.Equal(t, "150.50", out["total"])

	jobs.err = shared.InvalidState("Only completed jobs can be invoiced")
	_, err = CreateInvoiceFromJobStep(jobs)(context.Background(), Step{Params: map[string]any{"job_id": jobID.String()}})
	assert.False(t, Retryable(err))
}

func TestDelayStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DelayStep()(ctx, Step{Params: map[string]any{"duration": "1m"}})
	assert.True(t, errors.Is(err, context.Canceled))

	out, err := DelayStep()(context.Background(), Step{Params: map[string]any{"duration": "1ms"}})
	require.NoError(t, err)
	assert.Equal(t, "1ms", out["waited"])

	_, err = DelayStep()(context.Background(), Step{Params: map[string]any{"duration": "forever"}})
	assert.False(t, Retryable(err))
}

func TestSMSStep_RequiresParams(t *testing.T) {
	_, err := SMSStep(notify.Disabled{})(context.Background(), Step{Params: map[string]any{"to": "+1"}})
	assert.False(t, Retryable(err))
	_, err = SMSStep(notify.Disabled{})(context.Background(), Step{Params: map[string]any{"to": "+1", "body": "x"}})
	assert.ErrorIs(t, err, notify.ErrNotConfigured)
}
