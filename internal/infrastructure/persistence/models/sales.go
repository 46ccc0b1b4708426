package models

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteModel maps sales.Quote
type QuoteModel struct {
	OrgAggregateModel
	Number             string    `gorm:"type:varchar(32);not null;index"`
	CustomerID         uuid.UUID `gorm:"type:uuid;not null;index"`
	JobID              *uuid.UUID
	Status             sales.QuoteStatus    `gorm:"type:varchar(20);not null;index"`
	Currency           valueobject.Currency `gorm:"type:varchar(3);not null"`
	Items              JSON[[]sales.LineItem]
	TaxRate            decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Tax                decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Total              decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Notes              string          `gorm:"type:text"`
	ValidUntil         *time.Time
	SentAt             *time.Time
	DecidedAt          *time.Time
	RejectionReason    string `gorm:"type:text"`
	ConvertedInvoiceID *uuid.UUID
}

func (QuoteModel) TableName() string { return "quotes" }

func (m *QuoteModel) ToDomain() *sales.Quote {
	return &sales.Quote{
		OrgAggregateRoot:   m.toOrgAggregate(),
		Number:             m.Number,
		CustomerID:         m.CustomerID,
		JobID:              m.JobID,
		Status:             m.Status,
		Currency:           m.Currency,
		Items:              m.Items.V,
		TaxRate:            m.TaxRate,
		Subtotal:           m.Subtotal,
		Tax:                m.Tax,
		Total:              m.Total,
		Notes:              m.Notes,
		ValidUntil:         m.ValidUntil,
		SentAt:             m.SentAt,
		DecidedAt:          m.DecidedAt,
		RejectionReason:    m.RejectionReason,
		ConvertedInvoiceID: m.ConvertedInvoiceID,
	}
}

func QuoteModelFromDomain(q *sales.Quote) *QuoteModel {
	m := &QuoteModel{
		Number:             q.Number,
		CustomerID:         q.CustomerID,
		JobID:              q.JobID,
		Status:             q.Status,
		Currency:           q.Currency,
		Items:              NewJSON(q.Items),
		TaxRate:            q.TaxRate,
		Subtotal:           q.Subtotal,
		Tax:                q.Tax,
		Total:              q.Total,
		Notes:              q.Notes,
		ValidUntil:         utcPtr(q.ValidUntil),
		SentAt:             q.SentAt,
		DecidedAt:          q.DecidedAt,
		RejectionReason:    q.RejectionReason,
		ConvertedInvoiceID: q.ConvertedInvoiceID,
	}
	m.fromOrgAggregate(q.OrgAggregateRoot)
	return m
}

// InvoiceModel maps sales.Invoice
type InvoiceModel struct {
	OrgAggregateModel
	Number            string     `gorm:"type:varchar(32);not null;index"`
	CustomerID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	JobID             *uuid.UUID `gorm:"type:uuid;index"`
	QuoteID           *uuid.UUID
	Status            sales.InvoiceStatus  `gorm:"type:varchar(20);not null;index"`
	Currency          valueobject.Currency `gorm:"type:varchar(3);not null"`
	Items             JSON[[]sales.LineItem]
	TaxRate           decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0"`
	Subtotal          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Tax               decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Total             decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	AmountPaid        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Notes             string          `gorm:"type:text"`
	DueDate           time.Time       `gorm:"not null;index"`
	SentAt            *time.Time
	PaidAt            *time.Time
	VoidedAt          *time.Time
	VoidReason        string `gorm:"type:text"`
	OverdueNotifiedAt *time.Time
}

func (InvoiceModel) TableName() string { return "invoices" }

func (m *InvoiceModel) ToDomain() *sales.Invoice {
	return &sales.Invoice{
		OrgAggregateRoot:  m.toOrgAggregate(),
		Number:            m.Number,
		CustomerID:        m.CustomerID,
		JobID:             m.JobID,
		QuoteID:           m.QuoteID,
		Status:            m.Status,
		Currency:          m.Currency,
		Items:             m.Items.V,
		TaxRate:           m.TaxRate,
		Subtotal:          m.Subtotal,
		Tax:               m.Tax,
		Total:             m.Total,
		AmountPaid:        m.AmountPaid,
		Notes:             m.Notes,
		DueDate:           m.DueDate,
		SentAt:            m.SentAt,
		PaidAt:            m.PaidAt,
		VoidedAt:          m.VoidedAt,
		VoidReason:        m.VoidReason,
		OverdueNotifiedAt: m.OverdueNotifiedAt,
	}
}

func InvoiceModelFromDomain(i *sales.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		Number:            i.Number,
		CustomerID:        i.CustomerID,
		JobID:             i.JobID,
		QuoteID:           i.QuoteID,
		Status:            i.Status,
		Currency:          i.Currency,
		Items:             NewJSON(i.Items),
		TaxRate:           i.TaxRate,
		Subtotal:          i.Subtotal,
		Tax:               i.Tax,
		Total:             i.Total,
		AmountPaid:        i.AmountPaid,
		Notes:             i.Notes,
		DueDate:           i.DueDate.UTC(),
		SentAt:            i.SentAt,
		PaidAt:            i.PaidAt,
		VoidedAt:          i.VoidedAt,
		VoidReason:        i.VoidReason,
		OverdueNotifiedAt: i.OverdueNotifiedAt,
	}
	m.fromOrgAggregate(i.OrgAggregateRoot)
	return m
}
