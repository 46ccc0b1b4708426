package organization

import (
	"github.com/crewdesk/backend/internal/domain/shared"
)

const AggregateTypeOrganization = "organization"

const (
	EventTypeOrganizationCreated  = "organization.created"
	EventTypeStripeConnected      = "organization.stripe_connected"
	EventTypeOrganizationPlanSwap = "organization.plan_changed"
)

// OrganizationCreatedEvent is published when a new organization signs up
type OrganizationCreatedEvent struct {
	shared.BaseDomainEvent
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	OwnerID string `json:"owner_id"`
}

func NewOrganizationCreatedEvent(o *Organization) *OrganizationCreatedEvent {
	return &OrganizationCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrganizationCreated, AggregateTypeOrganization, o.ID, o.ID),
		Name:            o.Name,
		Slug:            o.Slug,
		OwnerID:         o.OwnerID.String(),
	}
}

// StripeAccountConnectedEvent is published when a Connect account is linked
type StripeAccountConnectedEvent struct {
	shared.BaseDomainEvent
	AccountID string `json:"account_id"`
}

func NewStripeAccountConnectedEvent(o *Organization) *StripeAccountConnectedEvent {
	return &StripeAccountConnectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStripeConnected, AggregateTypeOrganization, o.ID, o.ID),
		AccountID:       o.StripeAccountID,
	}
}

// PlanChangedEvent is published when the SaaS plan changes
type PlanChangedEvent struct {
	shared.BaseDomainEvent
	PreviousPlan Plan `json:"previous_plan"`
	Plan         Plan `json:"plan"`
}

func NewPlanChangedEvent(o *Organization, previous Plan) *PlanChangedEvent {
	return &PlanChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrganizationPlanSwap, AggregateTypeOrganization, o.ID, o.ID),
		PreviousPlan:    previous,
		Plan:            o.Plan,
	}
}
