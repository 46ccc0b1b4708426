package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	domainbilling "github.com/crewdesk/backend/internal/domain/billing"
	"github.com/crewdesk/backend/internal/infrastructure/config"
)

// PolarTolerance bounds the age of a signed Polar delivery
const PolarTolerance = 5 * time.Minute

// SubscriptionWebhook is a provider subscription event reduced to what the
// billing service applies
type SubscriptionWebhook struct {
	ID         string
	Type       string
	ExternalID string
	// OrgRef is the organization id the purchase was made for
	OrgRef     string
	State      domainbilling.State
	OccurredAt time.Time
	// Relevant is false for event types that do not change a subscription
	Relevant bool
}

// PolarVerifier checks Standard Webhooks signatures and decodes Polar
// subscription events
type PolarVerifier struct {
	key   []byte
	plans map[string]string
	now   func() time.Time
}

// NewPolarVerifier creates a verifier. A "whsec_" secret carries a base64
// key; any other value is used as raw bytes.
func NewPolarVerifier(cfg config.PolarConfig) (*PolarVerifier, error) {
	key := []byte(cfg.WebhookSecret)
	if rest, ok := strings.CutPrefix(cfg.WebhookSecret, "whsec_"); ok {
		decoded, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("polar webhook secret is not valid base64: %w", err)
		}
		key = decoded
	}
	return &PolarVerifier{key: key, plans: cfg.ProductPlans, now: time.Now}, nil
}

// Verify checks webhook-id, webhook-timestamp and webhook-signature. The
// signature header may hold several space-separated "v1,<base64>" entries.
func (v *PolarVerifier) Verify(header http.Header, body []byte) error {
	if len(v.key) == 0 {
		return fmt.Errorf("%w: polar webhook secret not configured", ErrInvalidSignature)
	}
	id := header.Get("webhook-id")
	ts := header.Get("webhook-timestamp")
	sigs := header.Get("webhook-signature")
	if id == "" || ts == "" || sigs == "" {
		return fmt.Errorf("%w: missing webhook headers", ErrInvalidSignature)
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	age := v.now().Sub(time.Unix(sec, 0))
	if age > PolarTolerance || age < -PolarTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := v.sign(id, ts, body)
	for _, candidate := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", ErrInvalidSignature)
}

func (v *PolarVerifier) sign(id, ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign produces a webhook-signature value for body; used by tests and local tooling
func (v *PolarVerifier) Sign(id string, ts time.Time, body []byte) string {
	return "v1," + base64.StdEncoding.EncodeToString(v.sign(id, strconv.FormatInt(ts.Unix(), 10), body))
}

type polarEnvelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      struct {
		ID                string         `json:"id"`
		Status            string         `json:"status"`
		ProductID         string         `json:"product_id"`
		CustomerID        string         `json:"customer_id"`
		CurrentPeriodEnd  *time.Time     `json:"current_period_end"`
		CancelAtPeriodEnd bool           `json:"cancel_at_period_end"`
		Metadata          map[string]any `json:"metadata"`
		Customer          *struct {
			ExternalID string `json:"external_id"`
		} `json:"customer"`
	} `json:"data"`
}

// Parse decodes a verified body. id is the webhook-id header, used as the
// delivery's idempotency key.
func (v *PolarVerifier) Parse(id string, body []byte) (*SubscriptionWebhook, error) {
	var env polarEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("invalid polar payload: %w", err)
	}
	out := &SubscriptionWebhook{ID: id, Type: env.Type, OccurredAt: env.Timestamp}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = v.now()
	}
	if !strings.HasPrefix(env.Type, "subscription.") {
		return out, nil
	}

	d := env.Data
	out.Relevant = true
	out.ExternalID = d.ID
	if ref, ok := d.Metadata["org_id"].(string); ok {
		out.OrgRef = ref
	} else if d.Customer != nil {
		out.OrgRef = d.Customer.ExternalID
	}
	out.State = domainbilling.State{
		Status:            polarStatus(env.Type, d.Status),
		Plan:              v.plans[d.ProductID],
		CustomerRef:       d.CustomerID,
		CurrentPeriodEnd:  d.CurrentPeriodEnd,
		CancelAtPeriodEnd: d.CancelAtPeriodEnd,
	}
	return out, nil
}

func polarStatus(eventType, status string) domainbilling.Status {
	if eventType == "subscription.revoked" {
		return domainbilling.StatusExpired
	}
	switch status {
	case "trialing":
		return domainbilling.StatusTrialing
	case "active":
		return domainbilling.StatusActive
	case "past_due", "unpaid", "incomplete":
		return domainbilling.StatusPastDue
	case "canceled":
		return domainbilling.StatusCanceled
	default:
		return domainbilling.StatusExpired
	}
}
