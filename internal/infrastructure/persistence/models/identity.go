package models

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/identity"
)

// UserModel maps identity.User
type UserModel struct {
	AggregateModel
	Email             string              `gorm:"type:varchar(254);not null;uniqueIndex"`
	Name              string              `gorm:"type:varchar(120);not null"`
	Phone             string              `gorm:"type:varchar(20)"`
	PasswordHash      string              `gorm:"type:varchar(255);not null"`
	Status            identity.UserStatus `gorm:"type:varchar(20);not null;default:'active'"`
	PushTokens        JSON[[]string]
	LastLoginAt       *time.Time
	FailedAttempts    int `gorm:"not null;default:0"`
	LockedUntil       *time.Time
	PasswordChangedAt *time.Time
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) ToDomain() *identity.User {
	return &identity.User{
		BaseAggregateRoot: m.toAggregate(),
		Email:             m.Email,
		Name:              m.Name,
		Phone:             m.Phone,
		PasswordHash:      m.PasswordHash,
		Status:            m.Status,
		PushTokens:        m.PushTokens.V,
		LastLoginAt:       m.LastLoginAt,
		FailedAttempts:    m.FailedAttempts,
		LockedUntil:       m.LockedUntil,
		PasswordChangedAt: m.PasswordChangedAt,
	}
}

func UserModelFromDomain(u *identity.User) *UserModel {
	m := &UserModel{
		Email:             u.Email,
		Name:              u.Name,
		Phone:             u.Phone,
		PasswordHash:      u.PasswordHash,
		Status:            u.Status,
		PushTokens:        NewJSON(u.PushTokens),
		LastLoginAt:       u.LastLoginAt,
		FailedAttempts:    u.FailedAttempts,
		LockedUntil:       u.LockedUntil,
		PasswordChangedAt: u.PasswordChangedAt,
	}
	m.fromAggregate(u.BaseAggregateRoot)
	return m
}
