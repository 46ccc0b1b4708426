package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"golang.org/x/crypto/bcrypt"
)

// UserStatus represents the status of a user account
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusLocked   UserStatus = "locked"
	UserStatusDisabled UserStatus = "disabled"
)

// BcryptCost is the bcrypt work factor; tests lower it to bcrypt.MinCost
var BcryptCost = 12

const (
	MaxFailedLogins  = 5
	LoginLockoutTime = 15 * time.Minute
	maxPushTokens    = 10
)

var (
	hasLetter = regexp.MustCompile(`[a-zA-Z]`)
	hasDigit  = regexp.MustCompile(`[0-9]`)
	phoneE164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
)

// User is a person who can sign in. Users are global; organization access
// is granted through organization.Member.
type User struct {
	shared.BaseAggregateRoot
	Email             string
	Name              string
	Phone             string
	PasswordHash      string
	Status            UserStatus
	PushTokens        []string
	LastLoginAt       *time.Time
	FailedAttempts    int
	LockedUntil       *time.Time
	PasswordChangedAt *time.Time
}

// NewUser creates a user with a hashed password
func NewUser(email, name, password string) (*User, error) {
	email = shared.NormalizeEmail(email)
	if !shared.ValidateEmail(email) {
		return nil, shared.InvalidInput("Invalid email format")
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 120 {
		return nil, shared.InvalidInput("Name must be between 1 and 120 characters")
	}

	u := &User{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Email:             email,
		Name:              name,
		Status:            UserStatusActive,
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	u.AddDomainEvent(NewUserRegisteredEvent(u))
	return u, nil
}

// SetPassword validates and hashes a new password
func (u *User) SetPassword(password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return err
	}
	now := time.Now()
	u.PasswordHash = string(hash)
	u.PasswordChangedAt = &now
	u.UpdatedAt = now
	return nil
}

// ChangePassword requires the current password before setting a new one
func (u *User) ChangePassword(current, next string) error {
	if !u.VerifyPassword(current) {
		return shared.NewDomainError("UNAUTHORIZED", "Current password is incorrect")
	}
	return u.SetPassword(next)
}

// VerifyPassword checks a plaintext password against the stored hash
func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// UpdateProfile changes display name and phone
func (u *User) UpdateProfile(name, phone string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 120 {
		return shared.InvalidInput("Name must be between 1 and 120 characters")
	}
	phone = strings.TrimSpace(phone)
	if phone != "" && !phoneE164.MatchString(phone) {
		return shared.InvalidInput("Phone must be in E.164 format, e.g. +15551234567")
	}
	u.Name = name
	u.Phone = phone
	u.UpdatedAt = time.Now()
	u.IncrementVersion()
	return nil
}

// RegisterPushToken adds an FCM device token, keeping the newest maxPushTokens
func (u *User) RegisterPushToken(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	for _, t := range u.PushTokens {
		if t == token {
			return
		}
	}
	u.PushTokens = append(u.PushTokens, token)
	if len(u.PushTokens) > maxPushTokens {
		u.PushTokens = u.PushTokens[len(u.PushTokens)-maxPushTokens:]
	}
	u.UpdatedAt = time.Now()
}

// RemovePushToken drops a token FCM reported as unregistered
func (u *User) RemovePushToken(token string) {
	out := u.PushTokens[:0]
	for _, t := range u.PushTokens {
		if t != token {
			out = append(out, t)
		}
	}
	u.PushTokens = out
}

// RecordLoginSuccess clears failure counters
func (u *User) RecordLoginSuccess(now time.Time) {
	u.LastLoginAt = &now
	u.FailedAttempts = 0
	u.LockedUntil = nil
	if u.Status == UserStatusLocked {
		u.Status = UserStatusActive
	}
	u.UpdatedAt = now
}

// RecordLoginFailure counts a failed attempt and locks the account after MaxFailedLogins.
// Returns true when this attempt caused a lock.
func (u *User) RecordLoginFailure(now time.Time) bool {
	u.FailedAttempts++
	u.UpdatedAt = now
	if u.FailedAttempts >= MaxFailedLogins {
		until := now.Add(LoginLockoutTime)
		u.LockedUntil = &until
		u.Status = UserStatusLocked
		return true
	}
	return false
}

// CanLogin reports whether the account may authenticate at now
func (u *User) CanLogin(now time.Time) bool {
	switch u.Status {
	case UserStatusActive:
		return true
	case UserStatusLocked:
		return u.LockedUntil != nil && now.After(*u.LockedUntil)
	default:
		return false
	}
}

// Disable blocks sign-in
func (u *User) Disable() {
	u.Status = UserStatusDisabled
	u.UpdatedAt = time.Now()
	u.IncrementVersion()
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return shared.InvalidInput("Password must be at least 8 characters")
	}
	if len(password) > 72 {
		return shared.InvalidInput("Password cannot exceed 72 characters")
	}
	if !hasLetter.MatchString(password) || !hasDigit.MatchString(password) {
		return shared.InvalidInput("Password must contain at least one letter and one number")
	}
	return nil
}
