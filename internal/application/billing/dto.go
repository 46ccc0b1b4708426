package billing

import (
	"time"

	domainbilling "github.com/crewdesk/backend/internal/domain/billing"
	"github.com/google/uuid"
)

// CheckoutRequest is the body of POST /billing/checkout
type CheckoutRequest struct {
	Plan       string `json:"plan" binding:"required,oneof=starter pro business"`
	SuccessURL string `json:"success_url" binding:"omitempty,url"`
	CancelURL  string `json:"cancel_url" binding:"omitempty,url"`
}

// PortalRequest is the body of POST /billing/portal
type PortalRequest struct {
	ReturnURL string `json:"return_url" binding:"omitempty,url"`
}

// URLResponse carries a hosted page the client redirects to
type URLResponse struct {
	URL string `json:"url"`
}

// SubscriptionView is one provider subscription
type SubscriptionView struct {
	ID                uuid.UUID  `json:"id"`
	Provider          string     `json:"provider"`
	Plan              string     `json:"plan"`
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	Entitled          bool       `json:"entitled"`
}

func toSubscriptionView(s *domainbilling.Subscription, now time.Time) SubscriptionView {
	return SubscriptionView{
		ID:                s.ID,
		Provider:          string(s.Provider),
		Plan:              s.Plan,
		Status:            string(s.Status),
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Entitled:          s.IsEntitled(now),
	}
}

// SubscriptionResponse is the organization's effective plan and the
// subscriptions behind it
type SubscriptionResponse struct {
	Plan          string             `json:"plan"`
	MaxMembers    int                `json:"max_members"`
	ActiveMembers int64              `json:"active_members"`
	Active        *SubscriptionView  `json:"active,omitempty"`
	Subscriptions []SubscriptionView `json:"subscriptions"`
	CanManage     bool               `json:"can_manage"`
}

// ConnectAccountRequest is the body of POST /connect/account
type ConnectAccountRequest struct {
	Country string `json:"country" binding:"omitempty,len=2"`
}

// AccountLinkRequest is the body of POST /connect/account-link
type AccountLinkRequest struct {
	RefreshURL string `json:"refresh_url" binding:"omitempty,url"`
	ReturnURL  string `json:"return_url" binding:"omitempty,url"`
}

// ConnectStatusResponse describes the organization's Stripe Connect state
type ConnectStatusResponse struct {
	Connected        bool   `json:"connected"`
	AccountID        string `json:"account_id,omitempty"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// WebhookResult reports what a webhook delivery did
type WebhookResult struct {
	Provider  string `json:"provider"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Message   string `json:"message,omitempty"`
}
