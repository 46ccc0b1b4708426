package models

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/payment"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentModel maps payment.Payment
type PaymentModel struct {
	OrgAggregateModel
	InvoiceID     uuid.UUID            `gorm:"type:uuid;not null;index"`
	CustomerID    uuid.UUID            `gorm:"type:uuid;not null"`
	Amount        decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency      valueobject.Currency `gorm:"type:varchar(3);not null"`
	Method        payment.Method       `gorm:"type:varchar(20);not null"`
	Provider      string               `gorm:"type:varchar(20);not null"`
	ProviderRef   string               `gorm:"type:varchar(128);index"`
	Status        payment.Status       `gorm:"type:varchar(20);not null;index"`
	FailureReason string               `gorm:"type:text"`
	Reference     string               `gorm:"type:varchar(128)"`
	ReceivedAt    *time.Time
	RefundedAt    *time.Time
}

func (PaymentModel) TableName() string { return "payments" }

func (m *PaymentModel) ToDomain() *payment.Payment {
	return &payment.Payment{
		OrgAggregateRoot: m.toOrgAggregate(),
		InvoiceID:        m.InvoiceID,
		CustomerID:       m.CustomerID,
		Amount:           m.Amount,
		Currency:         m.Currency,
		Method:           m.Method,
		Provider:         m.Provider,
		ProviderRef:      m.ProviderRef,
		Status:           m.Status,
		FailureReason:    m.FailureReason,
		Reference:        m.Reference,
		ReceivedAt:       m.ReceivedAt,
		RefundedAt:       m.RefundedAt,
	}
}

func PaymentModelFromDomain(p *payment.Payment) *PaymentModel {
	m := &PaymentModel{
		InvoiceID:     p.InvoiceID,
		CustomerID:    p.CustomerID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        p.Method,
		Provider:      p.Provider,
		ProviderRef:   p.ProviderRef,
		Status:        p.Status,
		FailureReason: p.FailureReason,
		Reference:     p.Reference,
		ReceivedAt:    p.ReceivedAt,
		RefundedAt:    p.RefundedAt,
	}
	m.fromOrgAggregate(p.OrgAggregateRoot)
	return m
}
