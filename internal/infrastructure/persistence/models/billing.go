package models

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/billing"
)

// SubscriptionModel maps billing.Subscription
type SubscriptionModel struct {
	OrgAggregateModel
	Provider          billing.Provider `gorm:"type:varchar(20);not null;uniqueIndex:idx_subscriptions_provider_external,priority:1"`
	ExternalID        string           `gorm:"type:varchar(128);not null;uniqueIndex:idx_subscriptions_provider_external,priority:2"`
	CustomerRef       string           `gorm:"type:varchar(128)"`
	Plan              string           `gorm:"type:varchar(32)"`
	Status            billing.Status   `gorm:"type:varchar(20);not null"`
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool `gorm:"not null;default:false"`
	CanceledAt        *time.Time
	LastEventAt       *time.Time
}

func (SubscriptionModel) TableName() string { return "subscriptions" }

func (m *SubscriptionModel) ToDomain() *billing.Subscription {
	return &billing.Subscription{
		OrgAggregateRoot:  m.toOrgAggregate(),
		Provider:          m.Provider,
		ExternalID:        m.ExternalID,
		CustomerRef:       m.CustomerRef,
		Plan:              m.Plan,
		Status:            m.Status,
		CurrentPeriodEnd:  m.CurrentPeriodEnd,
		CancelAtPeriodEnd: m.CancelAtPeriodEnd,
		CanceledAt:        m.CanceledAt,
		LastEventAt:       m.LastEventAt,
	}
}

func SubscriptionModelFromDomain(s *billing.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{
		Provider:          s.Provider,
		ExternalID:        s.ExternalID,
		CustomerRef:       s.CustomerRef,
		Plan:              s.Plan,
		Status:            s.Status,
		CurrentPeriodEnd:  utcPtr(s.CurrentPeriodEnd),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CanceledAt:        s.CanceledAt,
		LastEventAt:       utcPtr(s.LastEventAt),
	}
	m.fromOrgAggregate(s.OrgAggregateRoot)
	return m
}
