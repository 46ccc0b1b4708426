package identity

import (
	"context"
	"errors"

	"github.com/crewdesk/backend/internal/domain/identity"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserService manages the signed-in user's own account
type UserService struct {
	userRepo    identity.UserRepository
	memberRepo  organization.MemberRepository
	jwtService  *auth.JWTService
	revocations auth.RevocationList
	logger      *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(
	userRepo identity.UserRepository,
	memberRepo organization.MemberRepository,
	jwtService *auth.JWTService,
	revocations auth.RevocationList,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		userRepo:    userRepo,
		memberRepo:  memberRepo,
		jwtService:  jwtService,
		revocations: revocations,
		logger:      logger,
	}
}

// UpdateProfile changes name and phone
func (s *UserService) UpdateProfile(ctx context.Context, input UpdateProfileInput) (*UserInfo, error) {
	user, err := s.userRepo.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if err := user.UpdateProfile(input.Name, input.Phone); err != nil {
		return nil, err
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		return nil, err
	}
	info := toUserInfo(user)
	return &info, nil
}

// ChangePassword sets a new password and ends every other session
func (s *UserService) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	user, err := s.userRepo.FindByID(ctx, input.UserID)
	if err != nil {
		return err
	}
	if err := user.ChangePassword(input.OldPassword, input.NewPassword); err != nil {
		return err
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		return err
	}
	if err := s.revocations.RevokeUser(ctx, user.ID.String(), s.jwtService.RefreshTokenTTL()); err != nil {
		s.logger.Error("Failed to revoke sessions after password change",
			zap.String("user_id", user.ID.String()), zap.Error(err))
		return err
	}
	s.logger.Info("Password changed", zap.String("user_id", user.ID.String()))
	return nil
}

// RegisterPushToken stores an FCM device token for the user
func (s *UserService) RegisterPushToken(ctx context.Context, input PushTokenInput) error {
	if input.Token == "" {
		return shared.InvalidInput("Push token is required")
	}
	user, err := s.userRepo.FindByID(ctx, input.UserID)
	if err != nil {
		return err
	}
	user.RegisterPushToken(input.Token)
	return s.userRepo.Save(ctx, user)
}

// RemovePushToken forgets a device token, for sign-out on a device or after
// FCM reports it unregistered
func (s *UserService) RemovePushToken(ctx context.Context, userID uuid.UUID, token string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	before := len(user.PushTokens)
	user.RemovePushToken(token)
	if len(user.PushTokens) == before {
		return nil
	}
	return s.userRepo.Save(ctx, user)
}

// PushTokens returns the user's device tokens when the user is an active
// member of orgID, so automations cannot notify people outside the organization
func (s *UserService) PushTokens(ctx context.Context, orgID, userID uuid.UUID) ([]string, error) {
	m, err := s.memberRepo.FindByOrgAndUser(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.Forbidden("User is not a member of this organization")
		}
		return nil, err
	}
	if !m.IsActive() {
		return nil, nil
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.PushTokens, nil
}
