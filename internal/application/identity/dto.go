package identity

import (
	"time"

	"github.com/google/uuid"
)

// RegisterInput contains the input for self sign-up
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Phone    string
}

// LoginInput contains the input for user login
type LoginInput struct {
	Email    string
	Password string
	// OrgID selects the organization to act in; uuid.Nil picks the first active membership
	OrgID uuid.UUID
	IP    string
}

// LoginResult contains the result of a successful login or registration
type LoginResult struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	TokenType             string
	User                  UserInfo
	OrgID                 uuid.UUID
}

// UserInfo contains basic user information
type UserInfo struct {
	ID          uuid.UUID
	Email       string
	Name        string
	Phone       string
	LastLoginAt *time.Time
}

// RefreshTokenInput contains the input for token refresh
type RefreshTokenInput struct {
	RefreshToken string
}

// RefreshTokenResult contains the result of a token refresh
type RefreshTokenResult struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	TokenType             string
	OrgID                 uuid.UUID
}

// LogoutInput identifies the session to end
type LogoutInput struct {
	UserID uuid.UUID
	// AccessJTI and AccessTTL come from the validated access token
	AccessJTI string
	AccessTTL time.Duration
	// RefreshToken is revoked too when the client sends it
	RefreshToken string
}

// MembershipInfo is one organization the user belongs to
type MembershipInfo struct {
	OrgID  uuid.UUID
	Role   string
	Status string
}

// CurrentUserResult contains the current user's information
type CurrentUserResult struct {
	User        UserInfo
	OrgID       uuid.UUID
	Role        string
	Memberships []MembershipInfo
}

// UpdateProfileInput changes the caller's display fields
type UpdateProfileInput struct {
	UserID uuid.UUID
	Name   string
	Phone  string
}

// ChangePasswordInput contains the input for password change
type ChangePasswordInput struct {
	UserID      uuid.UUID
	OldPassword string
	NewPassword string
}

// PushTokenInput registers or removes a device token
type PushTokenInput struct {
	UserID uuid.UUID
	Token  string
}
