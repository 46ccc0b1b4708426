package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/crewdesk/backend/internal/infrastructure/config"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
)

const fcmScope = "https://www.googleapis.com/auth/firebase.messaging"

// FCMClient sends through the HTTP v1 API with a service account token
type FCMClient struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewFCMClient reads the service account file and builds an OAuth2 client
func NewFCMClient(ctx context.Context, cfg config.FCMConfig, logger *zap.Logger) (*FCMClient, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read fcm credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("parse fcm credentials: %w", err)
	}
	httpClient := oauth2.NewClient(ctx, creds.TokenSource)
	httpClient.Timeout = 15 * time.Second
	return newFCMClient(cfg, httpClient, logger), nil
}

func newFCMClient(cfg config.FCMConfig, httpClient *http.Client, logger *zap.Logger) *FCMClient {
	return &FCMClient{
		endpoint: fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(cfg.BaseURL, "/"), cfg.ProjectID),
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(1, int(cfg.RatePerSec))),
		logger:   logger,
	}
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// SendPush delivers msg and returns the FCM message name. An UNREGISTERED
// token yields ErrUnregisteredToken.
func (c *FCMClient) SendPush(ctx context.Context, token string, msg PushMessage) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	body, err := json.Marshal(fcmRequest{Message: fcmMessage{
		Token:        token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fcm request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("fcm response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var fe fcmError
		_ = json.Unmarshal(raw, &fe)
		for _, d := range fe.Error.Details {
			if d.ErrorCode == "UNREGISTERED" {
				return "", ErrUnregisteredToken
			}
		}
		return "", &APIError{Provider: "fcm", Status: resp.StatusCode, Code: fe.Error.Status, Message: fe.Error.Message}
	}

	var out struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(raw, &out)
	return out.Name, nil
}

var _ PushSender = (*FCMClient)(nil)
