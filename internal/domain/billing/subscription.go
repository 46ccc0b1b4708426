package billing

import (
	"context"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Provider identifies the billing system a subscription lives in
type Provider string

const (
	ProviderStripe     Provider = "stripe"
	ProviderPolar      Provider = "polar"
	ProviderRevenueCat Provider = "revenuecat"
)

// Status is the normalized subscription status across providers
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

const AggregateTypeSubscription = "subscription"

const (
	EventTypeSubscriptionActivated = "subscription.activated"
	EventTypeSubscriptionUpdated   = "subscription.updated"
	EventTypeSubscriptionCanceled  = "subscription.canceled"
	EventTypeSubscriptionExpired   = "subscription.expired"
)

// State is a provider-neutral snapshot parsed from a webhook
type State struct {
	Status            Status
	Plan              string
	CustomerRef       string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}

// Subscription is an organization's plan purchase in one provider
type Subscription struct {
	shared.OrgAggregateRoot
	Provider          Provider
	ExternalID        string
	CustomerRef       string
	Plan              string
	Status            Status
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	LastEventAt       *time.Time
}

// NewSubscription creates a subscription record for a provider id
func NewSubscription(orgID uuid.UUID, provider Provider, externalID string) (*Subscription, error) {
	if externalID == "" {
		return nil, shared.InvalidInput("External subscription id is required")
	}
	switch provider {
	case ProviderStripe, ProviderPolar, ProviderRevenueCat:
	default:
		return nil, shared.InvalidInput("Unknown billing provider " + string(provider))
	}
	return &Subscription{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		Provider:         provider,
		ExternalID:       externalID,
		Status:           StatusTrialing,
	}, nil
}

// Apply merges a provider snapshot. Events older than the last applied one are
// ignored, since providers do not guarantee delivery order.
func (s *Subscription) Apply(st State, eventAt time.Time) bool {
	if s.LastEventAt != nil && eventAt.Before(*s.LastEventAt) {
		return false
	}
	wasEntitled := s.IsEntitled(eventAt)
	previous := s.Status

	s.Status = st.Status
	if st.Plan != "" {
		s.Plan = st.Plan
	}
	if st.CustomerRef != "" {
		s.CustomerRef = st.CustomerRef
	}
	if st.CurrentPeriodEnd != nil {
		s.CurrentPeriodEnd = st.CurrentPeriodEnd
	}
	s.CancelAtPeriodEnd = st.CancelAtPeriodEnd
	if st.Status == StatusCanceled && s.CanceledAt == nil {
		s.CanceledAt = &eventAt
	}
	s.LastEventAt = &eventAt
	s.UpdatedAt = time.Now()

	nowEntitled := s.IsEntitled(eventAt)
	switch {
	case !wasEntitled && nowEntitled:
		s.AddDomainEvent(newSubscriptionEvent(EventTypeSubscriptionActivated, s))
	case st.Status == StatusExpired && previous != StatusExpired:
		s.AddDomainEvent(newSubscriptionEvent(EventTypeSubscriptionExpired, s))
	case st.Status == StatusCanceled && previous != StatusCanceled:
		s.AddDomainEvent(newSubscriptionEvent(EventTypeSubscriptionCanceled, s))
	default:
		s.AddDomainEvent(newSubscriptionEvent(EventTypeSubscriptionUpdated, s))
	}
	return true
}

// IsEntitled reports whether the subscription grants its plan at now. A
// canceled subscription keeps access until the paid period ends.
func (s *Subscription) IsEntitled(now time.Time) bool {
	switch s.Status {
	case StatusActive, StatusTrialing, StatusPastDue:
		return true
	case StatusCanceled:
		return s.CurrentPeriodEnd != nil && now.Before(*s.CurrentPeriodEnd)
	default:
		return false
	}
}

// SubscriptionEvent carries a subscription snapshot
type SubscriptionEvent struct {
	shared.BaseDomainEvent
	Provider          Provider   `json:"provider"`
	Plan              string     `json:"plan"`
	Status            Status     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}

func newSubscriptionEvent(eventType string, s *Subscription) *SubscriptionEvent {
	return &SubscriptionEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(eventType, AggregateTypeSubscription, s.ID, s.OrgID),
		Provider:          s.Provider,
		Plan:              s.Plan,
		Status:            s.Status,
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
}

// SelectEntitled picks the subscription that should drive the organization's
// plan: an entitled one with the latest period end wins.
func SelectEntitled(subs []*Subscription, now time.Time) *Subscription {
	var best *Subscription
	for _, s := range subs {
		if !s.IsEntitled(now) {
			continue
		}
		if best == nil || periodEnd(s).After(periodEnd(best)) {
			best = s
		}
	}
	return best
}

func periodEnd(s *Subscription) time.Time {
	if s.CurrentPeriodEnd == nil {
		return time.Time{}
	}
	return *s.CurrentPeriodEnd
}

// SubscriptionRepository defines persistence for subscriptions
type SubscriptionRepository interface {
	FindByExternalID(ctx context.Context, provider Provider, externalID string) (*Subscription, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*Subscription, error)
	Save(ctx context.Context, s *Subscription) error
}
