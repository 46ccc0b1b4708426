package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/crewdesk/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTwilioClient_SendSMS(t *testing.T) {
	var form url.Values
	var path, user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		user, pass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewTwilioClient(config.TwilioConfig{
		AccountSID: "AC123", AuthToken: "tok", FromNumber: "+15550000000",
		BaseURL: srv.URL, RatePerSec: 100,
	}, zap.NewNop())

	sid, err := c.SendSMS(context.Background(), "+15551234567", "Your tech is on the way")
	require.NoError(t, err)
	assert.Equal(t, "SM123", sid)
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", path)
	assert.Equal(t, "AC123", user)
	assert.Equal(t, "tok", pass)
	assert.Equal(t, "+15551234567", form.Get("To"))
	assert.Equal(t, "+15550000000", form.Get("From"))
	assert.Equal(t, "Your tech is on the way", form.Get("Body"))
}

func TestTwilioClient_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	c := NewTwilioClient(config.TwilioConfig{AccountSID: "AC1", AuthToken: "t", BaseURL: srv.URL, RatePerSec: 100}, zap.NewNop())
	_, err := c.SendSMS(context.Background(), "bogus", "hi")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "21211", apiErr.Code)
	assert.False(t, apiErr.Retryable())
}

func TestFCMClient_SendPush(t *testing.T) {
	var got fcmRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		_, _ = w.Write([]byte(`{"name":"projects/crewdesk/messages/0:123"}`))
	}))
	defer srv.Close()

	c := newFCMClient(config.FCMConfig{ProjectID: "crewdesk", BaseURL: srv.URL, RatePerSec: 100}, srv.Client(), zap.NewNop())
	name, err := c.SendPush(context.Background(), "device-token", PushMessage{
		Title: "Job assigned", Body: "Water heater install at 2pm", Data: map[string]string{"job_id": "j1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/crewdesk/messages/0:123", name)
	assert.Equal(t, "/v1/projects/crewdesk/messages:send", path)
	assert.Equal(t, "device-token", got.Message.Token)
	assert.Equal(t, "Job assigned", got.Message.Notification.Title)
	assert.Equal(t, "j1", got.Message.Data["job_id"])
}

func TestFCMClient_Errors(t *testing.T) {
	status := http.StatusNotFound
	body := `{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND","details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := newFCMClient(config.FCMConfig{ProjectID: "p", BaseURL: srv.URL, RatePerSec: 100}, srv.Client(), zap.NewNop())
	_, err := c.SendPush(context.Background(), "stale", PushMessage{Title: "t"})
	assert.ErrorIs(t, err, ErrUnregisteredToken)

	status = http.StatusServiceUnavailable
	body = `{"error":{"code":503,"message":"unavailable","status":"UNAVAILABLE"}}`
	_, err = c.SendPush(context.Background(), "tok", PushMessage{Title: "t"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Retryable())
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.SendSMS(context.Background(), "+1", "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = Disabled{}.SendPush(context.Background(), "t", PushMessage{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type countingRecorder map[string]int

func (r countingRecorder) Notification(channel, status string) { r[channel+":"+status]++ }

func TestCounted(t *testing.T) {
	rec := countingRecorder{}
	c := Counted{SMS: Disabled{}, Push: Disabled{}, Recorder: rec}

	_, err := c.SendSMS(context.Background(), "+15551234567", "hi")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.SendPush(context.Background(), "tok", PushMessage{Title: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	assert.Equal(t, 1, rec["sms:disabled"])
	assert.Equal(t, 1, rec["push:disabled"])
	assert.Equal(t, "failed", outcome(errors.New("boom")))
	assert.Equal(t, "unregistered", outcome(fmt.Errorf("fcm: %w", ErrUnregisteredToken)))
}
