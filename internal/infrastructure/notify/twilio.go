package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crewdesk/backend/internal/infrastructure/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TwilioClient sends SMS through the Messages resource
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	http       *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewTwilioClient creates a client limited to cfg.RatePerSec messages per second
func NewTwilioClient(cfg config.TwilioConfig, logger *zap.Logger) *TwilioClient {
	return &TwilioClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		http:       &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(1, int(cfg.RatePerSec))),
		logger:     logger,
	}
}

type twilioMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendSMS posts a form-encoded message and returns its SID
func (c *TwilioClient) SendSMS(ctx context.Context, to, body string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("twilio response: %w", err)
	}
	var msg twilioMessage
	_ = json.Unmarshal(raw, &msg)

	if resp.StatusCode >= 300 {
		return "", &APIError{
			Provider: "twilio",
			Status:   resp.StatusCode,
			Code:     strconv.Itoa(msg.Code),
			Message:  msg.Message,
		}
	}
	c.logger.Debug("SMS queued", zap.String("sid", msg.SID), zap.String("status", msg.Status))
	return msg.SID, nil
}

var _ SMSSender = (*TwilioClient)(nil)
