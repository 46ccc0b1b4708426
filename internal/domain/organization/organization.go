package organization

import (
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle status of an organization
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Plan is the SaaS plan an organization is entitled to
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// IsValid reports whether p is a known plan
func (p Plan) IsValid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanPro, PlanBusiness:
		return true
	}
	return false
}

// MaxMembers returns the seat limit for the plan; 0 means unlimited
func (p Plan) MaxMembers() int {
	switch p {
	case PlanFree:
		return 2
	case PlanStarter:
		return 5
	case PlanPro:
		return 25
	default:
		return 0
	}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,46})[a-z0-9]$`)

// InvoiceSettings holds per-organization document defaults
type InvoiceSettings struct {
	InvoicePrefix    string
	QuotePrefix      string
	DefaultTaxRate   decimal.Decimal
	PaymentTermsDays int
	QuoteValidDays   int
}

// DefaultInvoiceSettings returns defaults for a new organization
func DefaultInvoiceSettings() InvoiceSettings {
	return InvoiceSettings{
		InvoicePrefix:    "INV",
		QuotePrefix:      "Q",
		DefaultTaxRate:   decimal.Zero,
		PaymentTermsDays: 30,
		QuoteValidDays:   30,
	}
}

// Organization is the tenant: a field-service business and its team
type Organization struct {
	shared.BaseAggregateRoot
	Name                 string
	Slug                 string
	OwnerID              uuid.UUID
	Timezone             string
	Currency             valueobject.Currency
	Locale               string
	Phone                string
	Email                string
	Address              valueobject.Address
	Plan                 Plan
	Status               Status
	Invoicing            InvoiceSettings
	StripeAccountID      string
	StripeChargesEnabled bool
	StripePayoutsEnabled bool
	StripeCustomerID     string
	// ApplicationFeeBps is the platform fee on card payments, in basis points
	ApplicationFeeBps int
}

// NewOrganization creates an organization owned by ownerID
func NewOrganization(name, slug string, ownerID uuid.UUID) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 200 {
		return nil, shared.InvalidInput("Organization name must be between 1 and 200 characters")
	}
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !slugPattern.MatchString(slug) {
		return nil, shared.InvalidInput("Slug must be 3-48 lowercase letters, digits or hyphens")
	}
	if ownerID == uuid.Nil {
		return nil, shared.InvalidInput("Owner is required")
	}

	org := &Organization{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Slug:              slug,
		OwnerID:           ownerID,
		Timezone:          "UTC",
		Currency:          valueobject.DefaultCurrency,
		Locale:            "en-US",
		Plan:              PlanFree,
		Status:            StatusActive,
		Invoicing:         DefaultInvoiceSettings(),
	}
	org.AddDomainEvent(NewOrganizationCreatedEvent(org))
	return org, nil
}

// Slugify derives a candidate slug from a display name
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > 48 {
		s = strings.Trim(s[:48], "-")
	}
	for len(s) < 3 {
		s += "0"
	}
	return s
}

// UpdateProfile changes the organization's display details
func (o *Organization) UpdateProfile(name, timezone, locale, phone, email string, address valueobject.Address) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 200 {
		return shared.InvalidInput("Organization name must be between 1 and 200 characters")
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return shared.InvalidInput("Unknown timezone " + timezone)
		}
		o.Timezone = timezone
	}
	if email != "" && !shared.ValidateEmail(email) {
		return shared.InvalidInput("Invalid email format")
	}
	address = address.Normalize()
	if err := address.Validate(); err != nil {
		return shared.InvalidInput(err.Error())
	}
	if locale != "" {
		o.Locale = locale
	}
	o.Name = name
	o.Phone = strings.TrimSpace(phone)
	o.Email = shared.NormalizeEmail(email)
	o.Address = address
	o.UpdatedAt = time.Now()
	o.IncrementVersion()
	return nil
}

// SetCurrency changes the document currency for new quotes and invoices
func (o *Organization) SetCurrency(code string) error {
	cur, err := valueobject.ParseCurrency(code)
	if err != nil {
		return shared.InvalidInput(err.Error())
	}
	o.Currency = cur
	o.UpdatedAt = time.Now()
	return nil
}

// UpdateInvoicing replaces the document defaults
func (o *Organization) UpdateInvoicing(s InvoiceSettings) error {
	if s.InvoicePrefix == "" || len(s.InvoicePrefix) > 10 || s.QuotePrefix == "" || len(s.QuotePrefix) > 10 {
		return shared.InvalidInput("Document prefixes must be 1-10 characters")
	}
	if s.DefaultTaxRate.IsNegative() || s.DefaultTaxRate.GreaterThan(decimal.NewFromInt(100)) {
		return shared.InvalidInput("Tax rate must be between 0 and 100")
	}
	if s.PaymentTermsDays < 0 || s.PaymentTermsDays > 365 || s.QuoteValidDays < 1 || s.QuoteValidDays > 365 {
		return shared.InvalidInput("Payment terms and quote validity must be within a year")
	}
	o.Invoicing = s
	o.UpdatedAt = time.Now()
	o.IncrementVersion()
	return nil
}

// ConnectStripeAccount links a Stripe Connect account for customer payments
func (o *Organization) ConnectStripeAccount(accountID string) error {
	if !strings.HasPrefix(accountID, "acct_") {
		return shared.InvalidInput("Invalid Stripe account id")
	}
	if o.StripeAccountID != "" && o.StripeAccountID != accountID {
		return shared.InvalidState("Organization already has a connected Stripe account")
	}
	o.StripeAccountID = accountID
	o.UpdatedAt = time.Now()
	o.AddDomainEvent(NewStripeAccountConnectedEvent(o))
	return nil
}

// UpdateStripeCapabilities records the account.updated state from Stripe
func (o *Organization) UpdateStripeCapabilities(chargesEnabled, payoutsEnabled bool) {
	o.StripeChargesEnabled = chargesEnabled
	o.StripePayoutsEnabled = payoutsEnabled
	o.UpdatedAt = time.Now()
}

// SetStripeCustomer records the platform-side customer used for plan billing
func (o *Organization) SetStripeCustomer(customerID string) {
	o.StripeCustomerID = customerID
	o.UpdatedAt = time.Now()
}

// CanAcceptCardPayments reports whether Connect payments can be created
func (o *Organization) CanAcceptCardPayments() bool {
	return o.StripeAccountID != "" && o.StripeChargesEnabled
}

// ChangePlan switches the SaaS plan
func (o *Organization) ChangePlan(plan Plan) error {
	if !plan.IsValid() {
		return shared.InvalidInput("Unknown plan " + string(plan))
	}
	if o.Plan == plan {
		return nil
	}
	previous := o.Plan
	o.Plan = plan
	o.UpdatedAt = time.Now()
	o.IncrementVersion()
	o.AddDomainEvent(NewPlanChangedEvent(o, previous))
	return nil
}

// TransferOwnership records a new owner; membership roles are updated by the caller
func (o *Organization) TransferOwnership(newOwnerID uuid.UUID) {
	o.OwnerID = newOwnerID
	o.UpdatedAt = time.Now()
	o.IncrementVersion()
}

// Suspend blocks API access for the organization
func (o *Organization) Suspend() {
	o.Status = StatusSuspended
	o.UpdatedAt = time.Now()
}

// Activate lifts a suspension
func (o *Organization) Activate() {
	o.Status = StatusActive
	o.UpdatedAt = time.Now()
}

// IsActive reports whether members may use the organization
func (o *Organization) IsActive() bool {
	return o.Status == StatusActive
}

// Location returns the organization's time zone, falling back to UTC
func (o *Organization) Location() *time.Location {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
