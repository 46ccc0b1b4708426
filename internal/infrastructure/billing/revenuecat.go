package billing

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domainbilling "github.com/crewdesk/backend/internal/domain/billing"
	"github.com/crewdesk/backend/internal/infrastructure/config"
)

// RevenueCatVerifier checks the shared Authorization secret RevenueCat sends
// with every webhook and decodes subscription events
type RevenueCatVerifier struct {
	secret string
	plans  map[string]string
}

// NewRevenueCatVerifier creates a verifier
func NewRevenueCatVerifier(cfg config.RevenueCatConfig) *RevenueCatVerifier {
	return &RevenueCatVerifier{secret: cfg.WebhookSecret, plans: cfg.EntitlementPlan}
}

// Verify compares the Authorization header in constant time. A "Bearer "
// prefix is accepted but not required, matching how the dashboard stores it.
func (v *RevenueCatVerifier) Verify(authorization string) error {
	if v.secret == "" {
		return fmt.Errorf("%w: revenuecat secret not configured", ErrInvalidSignature)
	}
	got := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	want := strings.TrimPrefix(v.secret, "Bearer ")
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return fmt.Errorf("%w: bad authorization", ErrInvalidSignature)
	}
	return nil
}

type revenueCatEnvelope struct {
	Event struct {
		ID                    string   `json:"id"`
		Type                  string   `json:"type"`
		AppUserID             string   `json:"app_user_id"`
		ProductID             string   `json:"product_id"`
		NewProductID          string   `json:"new_product_id"`
		EntitlementIDs        []string `json:"entitlement_ids"`
		PeriodType            string   `json:"period_type"`
		OriginalTransactionID string   `json:"original_transaction_id"`
		ExpirationAtMs        int64    `json:"expiration_at_ms"`
		EventTimestampMs      int64    `json:"event_timestamp_ms"`
	} `json:"event"`
}

// Parse decodes a verified body. app_user_id is the organization id.
func (v *RevenueCatVerifier) Parse(body []byte) (*SubscriptionWebhook, error) {
	var env revenueCatEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("invalid revenuecat payload: %w", err)
	}
	e := env.Event
	out := &SubscriptionWebhook{
		ID:         e.ID,
		Type:       e.Type,
		OrgRef:     e.AppUserID,
		ExternalID: e.OriginalTransactionID,
		OccurredAt: time.UnixMilli(e.EventTimestampMs).UTC(),
	}
	if e.EventTimestampMs == 0 {
		out.OccurredAt = time.Now().UTC()
	}
	if out.ExternalID == "" {
		out.ExternalID = e.AppUserID + ":" + e.ProductID
	}

	status, ok := revenueCatStatus(e.Type, e.PeriodType)
	if !ok {
		return out, nil
	}
	out.Relevant = true
	out.State = domainbilling.State{Status: status, Plan: v.plan(e.EntitlementIDs, e.ProductID, e.NewProductID)}
	if e.ExpirationAtMs > 0 {
		end := time.UnixMilli(e.ExpirationAtMs).UTC()
		out.State.CurrentPeriodEnd = &end
	}
	out.State.CancelAtPeriodEnd = e.Type == "CANCELLATION"
	return out, nil
}

func (v *RevenueCatVerifier) plan(entitlements []string, productIDs ...string) string {
	for _, e := range entitlements {
		if p, ok := v.plans[e]; ok {
			return p
		}
	}
	// PRODUCT_CHANGE carries the new product last; prefer it
	for i := len(productIDs) - 1; i >= 0; i-- {
		if p, ok := v.plans[productIDs[i]]; ok {
			return p
		}
	}
	return ""
}

func revenueCatStatus(eventType, periodType string) (domainbilling.Status, bool) {
	switch eventType {
	case "INITIAL_PURCHASE", "RENEWAL", "UNCANCELLATION", "PRODUCT_CHANGE":
		if periodType == "TRIAL" {
			return domainbilling.StatusTrialing, true
		}
		return domainbilling.StatusActive, true
	case "CANCELLATION":
		return domainbilling.StatusCanceled, true
	case "BILLING_ISSUE":
		return domainbilling.StatusPastDue, true
	case "EXPIRATION":
		return domainbilling.StatusExpired, true
	default:
		return "", false
	}
}
