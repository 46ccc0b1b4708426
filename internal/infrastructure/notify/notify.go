// Package notify delivers SMS through Twilio and push notifications through
// Firebase Cloud Messaging.
package notify

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned by senders built without credentials
	ErrNotConfigured = errors.New("notification channel is not configured")
	// ErrUnregisteredToken means the device token is gone and should be dropped
	ErrUnregisteredToken = errors.New("push token is no longer registered")
)

// SMSSender sends a text message and returns the provider message id
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// PushMessage is a notification shown on a device
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushSender delivers a message to one device token
type PushSender interface {
	SendPush(ctx context.Context, token string, msg PushMessage) (string, error)
}

// APIError is a non-2xx provider response
type APIError struct {
	Provider string
	Status   int
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s: %s", e.Provider, e.Status, e.Code, e.Message)
}

// Retryable reports whether sending again may succeed
func (e *APIError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// Disabled is used for channels without credentials
type Disabled struct{}

func (Disabled) SendSMS(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) SendPush(context.Context, string, PushMessage) (string, error) {
	return "", ErrNotConfigured
}

var (
	_ SMSSender  = Disabled{}
	_ PushSender = Disabled{}
)

// Recorder counts delivery attempts per channel
type Recorder interface {
	Notification(channel, status string)
}

// Counted wraps the senders so every attempt is recorded as sent or failed
type Counted struct {
	SMS      SMSSender
	Push     PushSender
	Recorder Recorder
}

func (c Counted) SendSMS(ctx context.Context, to, body string) (string, error) {
	id, err := c.SMS.SendSMS(ctx, to, body)
	c.Recorder.Notification("sms", outcome(err))
	return id, err
}

func (c Counted) SendPush(ctx context.Context, token string, msg PushMessage) (string, error) {
	id, err := c.Push.SendPush(ctx, token, msg)
	c.Recorder.Notification("push", outcome(err))
	return id, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, ErrNotConfigured):
		return "disabled"
	case errors.Is(err, ErrUnregisteredToken):
		return "unregistered"
	default:
		return "failed"
	}
}
