package organization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewdesk/backend/internal/domain/identity"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxSlugAttempts = 20

// OrganizationService manages organizations, their members, invitations and API keys
type OrganizationService struct {
	orgRepo        organization.OrganizationRepository
	memberRepo     organization.MemberRepository
	invitationRepo organization.InvitationRepository
	apiKeyRepo     organization.APIKeyRepository
	userRepo       identity.UserRepository
	tx             shared.TxRunner
	logger         *zap.Logger
	now            func() time.Time
}

// NewOrganizationService creates a new organization service
func NewOrganizationService(
	orgRepo organization.OrganizationRepository,
	memberRepo organization.MemberRepository,
	invitationRepo organization.InvitationRepository,
	apiKeyRepo organization.APIKeyRepository,
	userRepo identity.UserRepository,
	tx shared.TxRunner,
	logger *zap.Logger,
) *OrganizationService {
	return &OrganizationService{
		orgRepo:        orgRepo,
		memberRepo:     memberRepo,
		invitationRepo: invitationRepo,
		apiKeyRepo:     apiKeyRepo,
		userRepo:       userRepo,
		tx:             tx,
		logger:         logger,
		now:            time.Now,
	}
}

// Create registers a new organization and makes the caller its owner
func (s *OrganizationService) Create(ctx context.Context, input CreateOrganizationInput) (*OrganizationResult, error) {
	slug := input.Slug
	if slug == "" {
		var err error
		if slug, err = s.uniqueSlug(ctx, organization.Slugify(input.Name)); err != nil {
			return nil, err
		}
	} else {
		exists, err := s.orgRepo.ExistsBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, shared.NewDomainError("ALREADY_EXISTS", "Slug is already taken")
		}
	}

	org, err := organization.NewOrganization(input.Name, slug, input.OwnerID)
	if err != nil {
		return nil, err
	}
	if input.Timezone != "" {
		if err := org.UpdateProfile(org.Name, input.Timezone, "", "", "", org.Address); err != nil {
			return nil, err
		}
	}
	if input.Currency != "" {
		if err := org.SetCurrency(input.Currency); err != nil {
			return nil, err
		}
	}
	owner, err := organization.NewMember(org.ID, input.OwnerID, organization.RoleOwner)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.orgRepo.Save(ctx, org); err != nil {
			return err
		}
		return s.memberRepo.Save(ctx, owner)
	})
	if err != nil {
		s.logger.Error("Failed to create organization", zap.String("slug", slug), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
		zap.String("owner_id", input.OwnerID.String()))
	result := ToOrganizationResult(org)
	return &result, nil
}

// uniqueSlug returns base, or base with the first free numeric suffix
func (s *OrganizationService) uniqueSlug(ctx context.Context, base string) (string, error) {
	if len(base) > 44 {
		base = base[:44]
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.orgRepo.ExistsBySlug(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return base + "-" + uuid.NewString()[:3], nil
}

// Get returns an organization
func (s *OrganizationService) Get(ctx context.Context, orgID uuid.UUID) (*OrganizationResult, error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	result := ToOrganizationResult(org)
	return &result, nil
}

// Update changes the organization's profile and document defaults
func (s *OrganizationService) Update(ctx context.Context, input UpdateOrganizationInput) (*OrganizationResult, error) {
	org, err := s.orgRepo.FindByID(ctx, input.OrgID)
	if err != nil {
		return nil, err
	}
	if err := org.UpdateProfile(input.Name, input.Timezone, input.Locale, input.Phone, input.Email, input.Address); err != nil {
		return nil, err
	}
	if input.Currency != nil {
		if err := org.SetCurrency(*input.Currency); err != nil {
			return nil, err
		}
	}

	inv := org.Invoicing
	changed := false
	if input.InvoicePrefix != nil {
		inv.InvoicePrefix, changed = *input.InvoicePrefix, true
	}
	if input.QuotePrefix != nil {
		inv.QuotePrefix, changed = *input.QuotePrefix, true
	}
	if input.DefaultTaxRate != nil {
		inv.DefaultTaxRate, changed = *input.DefaultTaxRate, true
	}
	if input.PaymentTermsDays != nil {
		inv.PaymentTermsDays, changed = *input.PaymentTermsDays, true
	}
	if input.QuoteValidDays != nil {
		inv.QuoteValidDays, changed = *input.QuoteValidDays, true
	}
	if changed {
		if err := org.UpdateInvoicing(inv); err != nil {
			return nil, err
		}
	}

	if err := s.orgRepo.Save(ctx, org); err != nil {
		return nil, err
	}
	s.logger.Info("Organization updated", zap.String("org_id", org.ID.String()))
	result := ToOrganizationResult(org)
	return &result, nil
}

// ResolveAccess loads the organization and the caller's membership for an
// authenticated request. Suspended members and suspended organizations are refused.
func (s *OrganizationService) ResolveAccess(ctx context.Context, orgID, userID uuid.UUID) (*Access, error) {
	member, err := s.memberRepo.FindByOrgAndUser(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.Forbidden("You are not a member of this organization")
		}
		return nil, err
	}
	if !member.IsActive() {
		return nil, shared.Forbidden("Your membership in this organization is suspended")
	}
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !org.IsActive() {
		return nil, shared.Forbidden("This organization is suspended")
	}
	return &Access{Org: org, Member: member}, nil
}

// TransferOwnership hands the owner role to another active member
func (s *OrganizationService) TransferOwnership(ctx context.Context, orgID, ownerUserID, memberID uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		org, err := s.orgRepo.FindByID(ctx, orgID)
		if err != nil {
			return err
		}
		from, err := s.memberRepo.FindByOrgAndUser(ctx, orgID, ownerUserID)
		if err != nil {
			return err
		}
		to, err := s.memberRepo.FindByID(ctx, orgID, memberID)
		if err != nil {
			return err
		}
		if err := organization.TransferOwnership(org, from, to); err != nil {
			return err
		}
		if err := s.memberRepo.Save(ctx, from); err != nil {
			return err
		}
		if err := s.memberRepo.Save(ctx, to); err != nil {
			return err
		}
		if err := s.orgRepo.Save(ctx, org); err != nil {
			return err
		}
		s.logger.Info("Ownership transferred",
			zap.String("org_id", orgID.String()),
			zap.String("new_owner", to.UserID.String()))
		return nil
	})
}
