package sales

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AggregateTypeQuote   = "quote"
	AggregateTypeInvoice = "invoice"
)

const (
	EventTypeQuoteCreated   = "quote.created"
	EventTypeQuoteSent      = "quote.sent"
	EventTypeQuoteAccepted  = "quote.accepted"
	EventTypeQuoteRejected  = "quote.rejected"
	EventTypeQuoteConverted = "quote.converted"

	EventTypeInvoiceCreated        = "invoice.created"
	EventTypeInvoiceSent           = "invoice.sent"
	EventTypeInvoicePaymentApplied = "invoice.payment_applied"
	EventTypeInvoicePaid           = "invoice.paid"
	EventTypeInvoiceVoided         = "invoice.voided"
	EventTypeInvoiceOverdue        = "invoice.overdue"
)

// QuoteEvent carries a snapshot of a quote
type QuoteEvent struct {
	shared.BaseDomainEvent
	QuoteID    uuid.UUID            `json:"quote_id"`
	Number     string               `json:"number"`
	CustomerID uuid.UUID            `json:"customer_id"`
	Status     QuoteStatus          `json:"status"`
	Total      decimal.Decimal      `json:"total"`
	Currency   valueobject.Currency `json:"currency"`
	InvoiceID  *uuid.UUID           `json:"invoice_id,omitempty"`
}

func newQuoteEvent(eventType string, q *Quote) *QuoteEvent {
	return &QuoteEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeQuote, q.ID, q.OrgID),
		QuoteID:         q.ID,
		Number:          q.Number,
		CustomerID:      q.CustomerID,
		Status:          q.Status,
		Total:           q.Total,
		Currency:        q.Currency,
		InvoiceID:       q.ConvertedInvoiceID,
	}
}

// InvoiceEvent carries a snapshot of an invoice
type InvoiceEvent struct {
	shared.BaseDomainEvent
	InvoiceID  uuid.UUID            `json:"invoice_id"`
	Number     string               `json:"number"`
	CustomerID uuid.UUID            `json:"customer_id"`
	JobID      *uuid.UUID           `json:"job_id,omitempty"`
	Status     InvoiceStatus        `json:"status"`
	Total      decimal.Decimal      `json:"total"`
	AmountPaid decimal.Decimal      `json:"amount_paid"`
	BalanceDue decimal.Decimal      `json:"balance_due"`
	Currency   valueobject.Currency `json:"currency"`
	DueDate    time.Time            `json:"due_date"`
}

func newInvoiceEvent(eventType string, i *Invoice) *InvoiceEvent {
	return &InvoiceEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeInvoice, i.ID, i.OrgID),
		InvoiceID:       i.ID,
		Number:          i.Number,
		CustomerID:      i.CustomerID,
		JobID:           i.JobID,
		Status:          i.Status,
		Total:           i.Total,
		AmountPaid:      i.AmountPaid,
		BalanceDue:      i.BalanceDue(),
		Currency:        i.Currency,
		DueDate:         i.DueDate,
	}
}
