package organization

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateOrganizationInput contains the input for creating an organization
type CreateOrganizationInput struct {
	OwnerID  uuid.UUID
	Name     string
	Slug     string
	Timezone string
	Currency string
}

// UpdateOrganizationInput changes profile and invoicing defaults. Nil
// pointers leave the current value.
type UpdateOrganizationInput struct {
	OrgID            uuid.UUID
	Name             string
	Timezone         string
	Locale           string
	Phone            string
	Email            string
	Address          valueobject.Address
	Currency         *string
	InvoicePrefix    *string
	QuotePrefix      *string
	DefaultTaxRate   *decimal.Decimal
	PaymentTermsDays *int
	QuoteValidDays   *int
}

// OrganizationResult is the API view of an organization
type OrganizationResult struct {
	ID                   uuid.UUID           `json:"id"`
	Name                 string              `json:"name"`
	Slug                 string              `json:"slug"`
	OwnerID              uuid.UUID           `json:"owner_id"`
	Timezone             string              `json:"timezone"`
	Currency             string              `json:"currency"`
	Locale               string              `json:"locale"`
	Phone                string              `json:"phone,omitempty"`
	Email                string              `json:"email,omitempty"`
	Address              valueobject.Address `json:"address"`
	Plan                 string              `json:"plan"`
	Status               string              `json:"status"`
	InvoicePrefix        string              `json:"invoice_prefix"`
	QuotePrefix          string              `json:"quote_prefix"`
	DefaultTaxRate       decimal.Decimal     `json:"default_tax_rate"`
	PaymentTermsDays     int                 `json:"payment_terms_days"`
	QuoteValidDays       int                 `json:"quote_valid_days"`
	StripeConnected      bool                `json:"stripe_connected"`
	StripeChargesEnabled bool                `json:"stripe_charges_enabled"`
	CreatedAt            time.Time           `json:"created_at"`
}

// ToOrganizationResult converts the aggregate to its API view
func ToOrganizationResult(o *organization.Organization) OrganizationResult {
	return OrganizationResult{
		ID:                   o.ID,
		Name:                 o.Name,
		Slug:                 o.Slug,
		OwnerID:              o.OwnerID,
		Timezone:             o.Timezone,
		Currency:             string(o.Currency),
		Locale:               o.Locale,
		Phone:                o.Phone,
		Email:                o.Email,
		Address:              o.Address,
		Plan:                 string(o.Plan),
		Status:               string(o.Status),
		InvoicePrefix:        o.Invoicing.InvoicePrefix,
		QuotePrefix:          o.Invoicing.QuotePrefix,
		DefaultTaxRate:       o.Invoicing.DefaultTaxRate,
		PaymentTermsDays:     o.Invoicing.PaymentTermsDays,
		QuoteValidDays:       o.Invoicing.QuoteValidDays,
		StripeConnected:      o.StripeAccountID != "",
		StripeChargesEnabled: o.StripeChargesEnabled,
		CreatedAt:            o.CreatedAt,
	}
}

// MemberResult is a member joined with the user's display fields
type MemberResult struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone,omitempty"`
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	Color    string    `json:"color,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// AddMemberInput adds an existing user to the organization by email
type AddMemberInput struct {
	OrgID uuid.UUID
	Email string
	Role  organization.Role
}

// ChangeRoleInput changes a member's role
type ChangeRoleInput struct {
	OrgID     uuid.UUID
	ActorRole organization.Role
	MemberID  uuid.UUID
	Role      organization.Role
}

// CreateInvitationInput invites an email address to the organization
type CreateInvitationInput struct {
	OrgID     uuid.UUID
	InvitedBy uuid.UUID
	ActorRole organization.Role
	Email     string
	Role      organization.Role
}

// InvitationResult describes an invitation. Token is only set on creation.
type InvitationResult struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	ExpiresAt time.Time  `json:"expires_at"`
	Accepted  *time.Time `json:"accepted_at,omitempty"`
	Token     string     `json:"token,omitempty"`
}

// CreateAPIKeyInput contains the input for issuing an API key
type CreateAPIKeyInput struct {
	OrgID     uuid.UUID
	CreatedBy uuid.UUID
	Name      string
	Scopes    []string
	ExpiresAt *time.Time
}

// APIKeyResult describes a key. Key holds the plaintext on creation only.
type APIKeyResult struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Preview    string     `json:"preview"`
	Scopes     []string   `json:"scopes"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Key        string     `json:"key,omitempty"`
}

func toAPIKeyResult(k *organization.APIKey) APIKeyResult {
	return APIKeyResult{
		ID:         k.ID,
		Name:       k.Name,
		Preview:    k.Preview(),
		Scopes:     k.Scopes,
		LastUsedAt: k.LastUsedAt,
		ExpiresAt:  k.ExpiresAt,
		RevokedAt:  k.RevokedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// Access is the resolved caller of an organization-scoped request
type Access struct {
	Org    *organization.Organization
	Member *organization.Member
}
