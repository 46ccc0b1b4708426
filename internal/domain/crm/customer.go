package crm

import (
	"context"
	"strings"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

const AggregateTypeCustomer = "customer"

const (
	EventTypeCustomerCreated = "customer.created"
	EventTypeCustomerUpdated = "customer.updated"
)

const maxTags = 20

// Customer is a client of the field-service business
type Customer struct {
	shared.OrgAggregateRoot
	Name     string
	Email    string
	Phone    string
	Company  string
	Address  valueobject.Address
	Notes    string
	Tags     []string
	Archived bool
}

// CustomerDetails carries the editable fields of a customer
type CustomerDetails struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Address valueobject.Address
	Notes   string
	Tags    []string
}

// NewCustomer creates a customer in orgID
func NewCustomer(orgID uuid.UUID, d CustomerDetails) (*Customer, error) {
	c := &Customer{OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID)}
	if err := c.apply(d); err != nil {
		return nil, err
	}
	c.AddDomainEvent(newCustomerEvent(EventTypeCustomerCreated, c))
	return c, nil
}

// Update replaces the editable fields
func (c *Customer) Update(d CustomerDetails) error {
	if err := c.apply(d); err != nil {
		return err
	}
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
	c.AddDomainEvent(newCustomerEvent(EventTypeCustomerUpdated, c))
	return nil
}

// Archive hides the customer from lists; history stays linked
func (c *Customer) Archive() {
	c.Archived = true
	c.UpdatedAt = time.Now()
}

func (c *Customer) apply(d CustomerDetails) error {
	name := strings.TrimSpace(d.Name)
	if name == "" || len(name) > 200 {
		return shared.InvalidInput("Customer name must be between 1 and 200 characters")
	}
	email := shared.NormalizeEmail(d.Email)
	if email != "" && !shared.ValidateEmail(email) {
		return shared.InvalidInput("Invalid email format")
	}
	addr := d.Address.Normalize()
	if err := addr.Validate(); err != nil {
		return shared.InvalidInput(err.Error())
	}
	if len(d.Notes) > 5000 {
		return shared.InvalidInput("Notes cannot exceed 5000 characters")
	}
	tags := normalizeTags(d.Tags)
	if len(tags) > maxTags {
		return shared.InvalidInput("A customer can have at most 20 tags")
	}

	c.Name = name
	c.Email = email
	c.Phone = strings.TrimSpace(d.Phone)
	c.Company = strings.TrimSpace(d.Company)
	c.Address = addr
	c.Notes = d.Notes
	c.Tags = tags
	return nil
}

func normalizeTags(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// CustomerEvent carries a snapshot of the customer for automations
type CustomerEvent struct {
	shared.BaseDomainEvent
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Phone string   `json:"phone"`
	Tags  []string `json:"tags"`
}

func newCustomerEvent(eventType string, c *Customer) *CustomerEvent {
	return &CustomerEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeCustomer, c.ID, c.OrgID),
		Name:            c.Name,
		Email:           c.Email,
		Phone:           c.Phone,
		Tags:            c.Tags,
	}
}

// CustomerFilter narrows customer lists
type CustomerFilter struct {
	shared.Filter
	Tag             string
	IncludeArchived bool
}

// CustomerRepository defines persistence for customers
type CustomerRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Customer, error)
	FindByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*Customer, error)
	List(ctx context.Context, orgID uuid.UUID, filter CustomerFilter) ([]*Customer, int64, error)
	Save(ctx context.Context, c *Customer) error
}

// CustomerEmailIndex finds which emails already belong to an organization's
// customers, archived ones included
type CustomerEmailIndex interface {
	ExistingEmails(ctx context.Context, orgID uuid.UUID, emails []string) (map[string]bool, error)
}
