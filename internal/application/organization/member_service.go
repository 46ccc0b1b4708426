package organization

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ListMembers pages the organization's members
func (s *OrganizationService) ListMembers(ctx context.Context, orgID uuid.UUID, filter shared.Filter) (*shared.Paginated[MemberResult], error) {
	filter = filter.Normalize()
	views, total, err := s.memberRepo.ListByOrg(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]MemberResult, len(views))
	for i, v := range views {
		items[i] = MemberResult{
			ID:       v.ID,
			UserID:   v.UserID,
			Email:    v.Email,
			Name:     v.Name,
			Phone:    v.Phone,
			Role:     string(v.Role),
			Status:   string(v.Status),
			Color:    v.Color,
			JoinedAt: v.JoinedAt,
		}
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}

// AddMember gives an existing account a role in the organization
func (s *OrganizationService) AddMember(ctx context.Context, input AddMemberInput) (*MemberResult, error) {
	if input.Role == organization.RoleOwner {
		return nil, shared.InvalidInput("Use ownership transfer to assign the owner role")
	}
	user, err := s.userRepo.FindByEmail(ctx, shared.NormalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("Account for this email; send an invitation instead")
		}
		return nil, err
	}

	_, err = s.memberRepo.FindByOrgAndUser(ctx, input.OrgID, user.ID)
	switch {
	case err == nil:
		return nil, shared.NewDomainError("ALREADY_EXISTS", "User is already a member")
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	if err := s.checkSeats(ctx, input.OrgID); err != nil {
		return nil, err
	}
	member, err := organization.NewMember(input.OrgID, user.ID, input.Role)
	if err != nil {
		return nil, err
	}
	if err := s.memberRepo.Save(ctx, member); err != nil {
		return nil, err
	}

	s.logger.Info("Member added",
		zap.String("org_id", input.OrgID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(input.Role)))
	return &MemberResult{
		ID: member.ID, UserID: user.ID, Email: user.Email, Name: user.Name, Phone: user.Phone,
		Role: string(member.Role), Status: string(member.Status), JoinedAt: member.JoinedAt,
	}, nil
}

// checkSeats refuses a new member when the plan's seat limit is reached
func (s *OrganizationService) checkSeats(ctx context.Context, orgID uuid.UUID) error {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return err
	}
	limit := org.Plan.MaxMembers()
	if limit == 0 {
		return nil
	}
	active, err := s.memberRepo.CountActive(ctx, orgID)
	if err != nil {
		return err
	}
	if active >= int64(limit) {
		return shared.NewDomainError("PAYMENT_REQUIRED",
			fmt.Sprintf("The %s plan allows %d members; upgrade to add more", org.Plan, limit))
	}
	return nil
}

// ChangeRole changes a member's role. Only the owner grants or revokes admin.
func (s *OrganizationService) ChangeRole(ctx context.Context, input ChangeRoleInput) (*organization.Member, error) {
	member, err := s.memberRepo.FindByID(ctx, input.OrgID, input.MemberID)
	if err != nil {
		return nil, err
	}
	if (input.Role == organization.RoleAdmin || member.Role == organization.RoleAdmin) && input.ActorRole != organization.RoleOwner {
		return nil, shared.Forbidden("Only the owner can change admin roles")
	}
	if err := member.ChangeRole(input.Role); err != nil {
		return nil, err
	}
	if err := s.memberRepo.Save(ctx, member); err != nil {
		return nil, err
	}
	s.logger.Info("Member role changed",
		zap.String("org_id", input.OrgID.String()),
		zap.String("member_id", member.ID.String()),
		zap.String("role", string(member.Role)))
	return member, nil
}

// RemoveMember deletes a membership. The owner cannot be removed and only
// the owner removes admins.
func (s *OrganizationService) RemoveMember(ctx context.Context, orgID uuid.UUID, actorRole organization.Role, memberID uuid.UUID) error {
	member, err := s.memberRepo.FindByID(ctx, orgID, memberID)
	if err != nil {
		return err
	}
	if err := member.CanBeRemoved(); err != nil {
		return err
	}
	if member.Role == organization.RoleAdmin && actorRole != organization.RoleOwner {
		return shared.Forbidden("Only the owner can remove an admin")
	}
	if err := s.memberRepo.Delete(ctx, orgID, memberID); err != nil {
		return err
	}
	s.logger.Info("Member removed",
		zap.String("org_id", orgID.String()),
		zap.String("user_id", member.UserID.String()))
	return nil
}

// CreateInvitation issues a single-use invitation token for an email address
func (s *OrganizationService) CreateInvitation(ctx context.Context, input CreateInvitationInput) (*InvitationResult, error) {
	if input.Role == organization.RoleAdmin && input.ActorRole != organization.RoleOwner {
		return nil, shared.Forbidden("Only the owner can invite admins")
	}
	if err := s.checkSeats(ctx, input.OrgID); err != nil {
		return nil, err
	}
	inv, token, err := organization.NewInvitation(input.OrgID, input.Email, input.Role, input.InvitedBy, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.invitationRepo.Save(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info("Invitation created",
		zap.String("org_id", input.OrgID.String()),
		zap.String("invitation_id", inv.ID.String()),
		zap.String("role", string(inv.Role)))
	return &InvitationResult{ID: inv.ID, Email: inv.Email, Role: string(inv.Role), ExpiresAt: inv.ExpiresAt, Token: token}, nil
}

// ListInvitations returns the organization's pending invitations
func (s *OrganizationService) ListInvitations(ctx context.Context, orgID uuid.UUID) ([]InvitationResult, error) {
	invs, err := s.invitationRepo.ListPending(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]InvitationResult, 0, len(invs))
	for _, inv := range invs {
		if !inv.IsPending(s.now()) {
			continue
		}
		out = append(out, InvitationResult{ID: inv.ID, Email: inv.Email, Role: string(inv.Role), ExpiresAt: inv.ExpiresAt})
	}
	return out, nil
}

// RevokeInvitation cancels a pending invitation
func (s *OrganizationService) RevokeInvitation(ctx context.Context, orgID, id uuid.UUID) error {
	inv, err := s.invitationRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := inv.Revoke(s.now()); err != nil {
		return err
	}
	return s.invitationRepo.Save(ctx, inv)
}

// AcceptInvitation consumes token and makes userID a member. The invitation
// must have been sent to the user's email.
func (s *OrganizationService) AcceptInvitation(ctx context.Context, userID uuid.UUID, token string) (*organization.Member, error) {
	inv, err := s.invitationRepo.FindByTokenHash(ctx, organization.HashToken(token))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("Invitation")
		}
		return nil, err
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Email != inv.Email {
		return nil, shared.Forbidden("This invitation was sent to a different email address")
	}

	var member *organization.Member
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := inv.Accept(s.now()); err != nil {
			return err
		}
		existing, err := s.memberRepo.FindByOrgAndUser(ctx, inv.OrgID, userID)
		switch {
		case err == nil:
			// already a member; the invitation is still used up
			member = existing
		case errors.Is(err, shared.ErrNotFound):
			if err := s.checkSeats(ctx, inv.OrgID); err != nil {
				return err
			}
			if member, err = organization.NewMember(inv.OrgID, userID, inv.Role); err != nil {
				return err
			}
			if err := s.memberRepo.Save(ctx, member); err != nil {
				return err
			}
		default:
			return err
		}
		return s.invitationRepo.Save(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Invitation accepted",
		zap.String("org_id", inv.OrgID.String()),
		zap.String("user_id", userID.String()))
	return member, nil
}
