package identity

import (
	"context"
	"errors"
	"time"

	"github.com/crewdesk/backend/internal/domain/identity"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errInvalidCredentials = shared.NewDomainError("INVALID_CREDENTIALS", "Invalid email or password")

// AuthService handles sign-up, sign-in and session lifecycle
type AuthService struct {
	userRepo    identity.UserRepository
	memberRepo  organization.MemberRepository
	jwtService  *auth.JWTService
	revocations auth.RevocationList
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo identity.UserRepository,
	memberRepo organization.MemberRepository,
	jwtService *auth.JWTService,
	revocations auth.RevocationList,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		memberRepo:  memberRepo,
		jwtService:  jwtService,
		revocations: revocations,
		logger:      logger,
		now:         time.Now,
	}
}

// Register creates an account and signs it in. The new user has no
// organization until they create one or accept an invitation.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	exists, err := s.userRepo.ExistsByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "An account with this email already exists")
	}

	user, err := identity.NewUser(input.Email, input.Name, input.Password)
	if err != nil {
		return nil, err
	}
	if input.Phone != "" {
		if err := user.UpdateProfile(user.Name, input.Phone); err != nil {
			return nil, err
		}
	}
	user.RecordLoginSuccess(s.now())
	if err := s.userRepo.Save(ctx, user); err != nil {
		s.logger.Error("Failed to save new user", zap.Error(err))
		return nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID.String()))
	return s.issue(user, uuid.Nil)
}

// Login authenticates a user and returns tokens scoped to one organization
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Login for unknown email", zap.String("ip", input.IP))
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if !user.CanLogin(now) {
		if user.Status == identity.UserStatusLocked {
			s.logger.Warn("Login attempt for locked account", zap.String("user_id", user.ID.String()))
			return nil, shared.NewDomainError("ACCOUNT_LOCKED", "Account is locked. Please try again later")
		}
		s.logger.Warn("Login attempt for disabled account", zap.String("user_id", user.ID.String()))
		return nil, shared.NewDomainError("ACCOUNT_DISABLED", "Account has been disabled")
	}

	if !user.VerifyPassword(input.Password) {
		locked := user.RecordLoginFailure(now)
		if err := s.userRepo.Save(ctx, user); err != nil {
			s.logger.Error("Failed to update user after login failure", zap.Error(err))
		}
		if locked {
			s.logger.Warn("Account locked after too many failed attempts",
				zap.String("user_id", user.ID.String()),
				zap.Int("attempts", user.FailedAttempts))
			return nil, shared.NewDomainError("ACCOUNT_LOCKED", "Too many failed login attempts. Account has been locked")
		}
		s.logger.Warn("Invalid password attempt",
			zap.String("user_id", user.ID.String()),
			zap.Int("failed_attempts", user.FailedAttempts))
		return nil, errInvalidCredentials
	}

	orgID, err := s.resolveOrg(ctx, user.ID, input.OrgID)
	if err != nil {
		return nil, err
	}

	user.RecordLoginSuccess(now)
	if err := s.userRepo.Save(ctx, user); err != nil {
		// the login itself succeeded
		s.logger.Error("Failed to update user after successful login", zap.Error(err))
	}

	s.logger.Info("User logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("org_id", orgID.String()))
	return s.issue(user, orgID)
}

// resolveOrg returns requested when the user is an active member of it, or
// the first active membership when requested is nil
func (s *AuthService) resolveOrg(ctx context.Context, userID, requested uuid.UUID) (uuid.UUID, error) {
	if requested != uuid.Nil {
		m, err := s.memberRepo.FindByOrgAndUser(ctx, requested, userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return uuid.Nil, shared.Forbidden("You are not a member of this organization")
			}
			return uuid.Nil, err
		}
		if !m.IsActive() {
			return uuid.Nil, shared.Forbidden("Your membership in this organization is suspended")
		}
		return requested, nil
	}

	memberships, err := s.memberRepo.FindByUser(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	for _, m := range memberships {
		if m.IsActive() {
			return m.OrgID, nil
		}
	}
	return uuid.Nil, nil
}

// SwitchOrganization issues a new token pair acting in orgID
func (s *AuthService) SwitchOrganization(ctx context.Context, userID, orgID uuid.UUID) (*LoginResult, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolveOrg(ctx, userID, orgID); err != nil {
		return nil, err
	}
	return s.issue(user, orgID)
}

// RefreshToken rotates a refresh token. The presented token is revoked so it
// cannot be replayed.
func (s *AuthService) RefreshToken(ctx context.Context, input RefreshTokenInput) (*RefreshTokenResult, error) {
	claims, err := s.jwtService.ValidateRefreshToken(input.RefreshToken)
	if err != nil {
		s.logger.Warn("Refresh token validation failed", zap.Error(err))
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, shared.NewDomainError("TOKEN_EXPIRED", "Refresh token has expired")
		}
		return nil, shared.NewDomainError("TOKEN_INVALID", "Invalid refresh token")
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !revoked {
		revoked, err = s.revocations.IssuedBeforeUserRevocation(ctx, claims.UserID, claims.IssuedAtTime())
		if err != nil {
			return nil, err
		}
	}
	if revoked {
		s.logger.Warn("Revoked refresh token presented", zap.String("user_id", claims.UserID))
		return nil, shared.NewDomainError("TOKEN_REVOKED", "Refresh token has been revoked")
	}

	userID, _ := claims.UserUUID()
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// drop the organization when the membership has gone away since sign-in
	orgID, _ := claims.OrgUUID()
	if orgID != uuid.Nil {
		if _, err := s.resolveOrg(ctx, userID, orgID); err != nil {
			if !errors.Is(err, shared.ErrForbidden) {
				return nil, err
			}
			orgID, err = s.resolveOrg(ctx, userID, uuid.Nil)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := s.revocations.Revoke(ctx, claims.ID, claims.RemainingTTL()); err != nil {
		return nil, err
	}

	pair, err := s.jwtService.GenerateTokenPair(auth.Subject{UserID: user.ID, OrgID: orgID, Email: user.Email})
	if err != nil {
		s.logger.Error("Failed to generate token pair", zap.Error(err))
		return nil, err
	}

	s.logger.Info("Token refreshed", zap.String("user_id", user.ID.String()))
	return &RefreshTokenResult{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		TokenType:             pair.TokenType,
		OrgID:                 orgID,
	}, nil
}

// Logout revokes the access token and, when supplied, the refresh token
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	if input.AccessJTI != "" {
		if err := s.revocations.Revoke(ctx, input.AccessJTI, input.AccessTTL); err != nil {
			return err
		}
	}
	if input.RefreshToken != "" {
		claims, err := s.jwtService.ValidateRefreshToken(input.RefreshToken)
		if err == nil && claims.UserID == input.UserID.String() {
			if err := s.revocations.Revoke(ctx, claims.ID, claims.RemainingTTL()); err != nil {
				return err
			}
		}
	}
	s.logger.Info("User logged out", zap.String("user_id", input.UserID.String()))
	return nil
}

// Me returns the caller's profile and memberships
func (s *AuthService) Me(ctx context.Context, userID, orgID uuid.UUID) (*CurrentUserResult, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	memberships, err := s.memberRepo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &CurrentUserResult{User: toUserInfo(user), OrgID: orgID}
	for _, m := range memberships {
		result.Memberships = append(result.Memberships, MembershipInfo{
			OrgID:  m.OrgID,
			Role:   string(m.Role),
			Status: string(m.Status),
		})
		if m.OrgID == orgID {
			result.Role = string(m.Role)
		}
	}
	return result, nil
}

func (s *AuthService) activeUser(ctx context.Context, userID uuid.UUID) (*identity.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("UNAUTHORIZED", "User no longer exists")
		}
		return nil, err
	}
	if !user.CanLogin(s.now()) {
		return nil, shared.NewDomainError("ACCOUNT_DISABLED", "Account cannot sign in")
	}
	return user, nil
}

func (s *AuthService) issue(user *identity.User, orgID uuid.UUID) (*LoginResult, error) {
	pair, err := s.jwtService.GenerateTokenPair(auth.Subject{UserID: user.ID, OrgID: orgID, Email: user.Email})
	if err != nil {
		s.logger.Error("Failed to generate token pair", zap.Error(err))
		return nil, err
	}
	return &LoginResult{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		TokenType:             pair.TokenType,
		User:                  toUserInfo(user),
		OrgID:                 orgID,
	}, nil
}

func toUserInfo(u *identity.User) UserInfo {
	return UserInfo{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Phone:       u.Phone,
		LastLoginAt: u.LastLoginAt,
	}
}
