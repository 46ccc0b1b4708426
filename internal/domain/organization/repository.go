package organization

import (
	"context"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// OrganizationRepository defines persistence for organizations
type OrganizationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	FindBySlug(ctx context.Context, slug string) (*Organization, error)
	FindByStripeAccountID(ctx context.Context, accountID string) (*Organization, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*Organization, error)
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	Save(ctx context.Context, org *Organization) error
}

// MemberView joins a membership with the user's display fields
type MemberView struct {
	Member
	Email string
	Name  string
	Phone string
}

// MemberRepository defines persistence for memberships
type MemberRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Member, error)
	FindByOrgAndUser(ctx context.Context, orgID, userID uuid.UUID) (*Member, error)
	// FindByUser lists every organization the user belongs to
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*Member, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) ([]MemberView, int64, error)
	CountActive(ctx context.Context, orgID uuid.UUID) (int64, error)
	Save(ctx context.Context, member *Member) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
}

// InvitationRepository defines persistence for invitations
type InvitationRepository interface {
	FindByTokenHash(ctx context.Context, hash string) (*Invitation, error)
	ListPending(ctx context.Context, orgID uuid.UUID) ([]*Invitation, error)
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Invitation, error)
	Save(ctx context.Context, inv *Invitation) error
}

// APIKeyRepository defines persistence for API keys
type APIKeyRepository interface {
	FindByLookupID(ctx context.Context, lookupID string) (*APIKey, error)
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*APIKey, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*APIKey, error)
	Save(ctx context.Context, key *APIKey) error
}

// SequenceRepository issues gap-free document numbers per organization
type SequenceRepository interface {
	// Next atomically increments and returns the counter for (orgID, name)
	Next(ctx context.Context, orgID uuid.UUID, name string) (int64, error)
}
