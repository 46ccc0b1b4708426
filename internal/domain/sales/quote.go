package sales

import (
	"strings"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteStatus is the lifecycle state of a quote: draft, then sent, then accepted or rejected
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
)

// IsValid reports whether s is a known status
func (s QuoteStatus) IsValid() bool {
	switch s {
	case QuoteStatusDraft, QuoteStatusSent, QuoteStatusAccepted, QuoteStatusRejected:
		return true
	}
	return false
}

// Quote is a priced proposal sent to a customer
type Quote struct {
	shared.OrgAggregateRoot
	Number             string
	CustomerID         uuid.UUID
	JobID              *uuid.UUID
	Status             QuoteStatus
	Currency           valueobject.Currency
	Items              []LineItem
	TaxRate            decimal.Decimal
	Subtotal           decimal.Decimal
	Tax                decimal.Decimal
	Total              decimal.Decimal
	Notes              string
	ValidUntil         *time.Time
	SentAt             *time.Time
	DecidedAt          *time.Time
	RejectionReason    string
	ConvertedInvoiceID *uuid.UUID
}

// NewQuote creates a draft quote
func NewQuote(orgID, customerID uuid.UUID, number string, cur valueobject.Currency, taxRate decimal.Decimal) (*Quote, error) {
	if customerID == uuid.Nil {
		return nil, shared.InvalidInput("Customer is required")
	}
	if strings.TrimSpace(number) == "" {
		return nil, shared.InvalidInput("Quote number is required")
	}
	if err := validateTaxRate(taxRate); err != nil {
		return nil, err
	}
	q := &Quote{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		Number:           number,
		CustomerID:       customerID,
		Status:           QuoteStatusDraft,
		Currency:         cur,
		TaxRate:          taxRate,
	}
	q.recompute()
	q.AddDomainEvent(newQuoteEvent(EventTypeQuoteCreated, q))
	return q, nil
}

// IsEditable reports whether content may change; only drafts are editable
func (q *Quote) IsEditable() bool {
	return q.Status == QuoteStatusDraft
}

// SetItems replaces the line items
func (q *Quote) SetItems(items []LineItem) error {
	if !q.IsEditable() {
		return shared.InvalidState("Only draft quotes can be edited")
	}
	if err := validateItems(items); err != nil {
		return err
	}
	q.Items = items
	q.recompute()
	q.UpdatedAt = time.Now()
	q.IncrementVersion()
	return nil
}

// SetTerms changes tax rate, notes and expiry
func (q *Quote) SetTerms(taxRate decimal.Decimal, notes string, validUntil *time.Time) error {
	if !q.IsEditable() {
		return shared.InvalidState("Only draft quotes can be edited")
	}
	if err := validateTaxRate(taxRate); err != nil {
		return err
	}
	q.TaxRate = taxRate
	q.Notes = notes
	q.ValidUntil = validUntil
	q.recompute()
	q.UpdatedAt = time.Now()
	q.IncrementVersion()
	return nil
}

// LinkJob attaches the quote to the job it prices
func (q *Quote) LinkJob(jobID uuid.UUID) {
	q.JobID = &jobID
}

// Send moves a draft to sent
func (q *Quote) Send(now time.Time) error {
	if q.Status != QuoteStatusDraft {
		return shared.InvalidState("Only draft quotes can be sent")
	}
	if len(q.Items) == 0 {
		return shared.InvalidState("Add at least one line item before sending")
	}
	if q.ValidUntil != nil && !now.Before(*q.ValidUntil) {
		return shared.InvalidState("Quote expiry date is in the past")
	}
	q.Status = QuoteStatusSent
	q.SentAt = &now
	q.UpdatedAt = now
	q.IncrementVersion()
	q.AddDomainEvent(newQuoteEvent(EventTypeQuoteSent, q))
	return nil
}

// IsExpired reports whether a sent quote passed its expiry at now
func (q *Quote) IsExpired(now time.Time) bool {
	return q.Status == QuoteStatusSent && q.ValidUntil != nil && !now.Before(*q.ValidUntil)
}

// Accept records the customer's approval
func (q *Quote) Accept(now time.Time) error {
	if q.Status != QuoteStatusSent {
		return shared.InvalidState("Only sent quotes can be accepted")
	}
	if q.IsExpired(now) {
		return shared.InvalidState("Quote has expired")
	}
	q.Status = QuoteStatusAccepted
	q.DecidedAt = &now
	q.UpdatedAt = now
	q.IncrementVersion()
	q.AddDomainEvent(newQuoteEvent(EventTypeQuoteAccepted, q))
	return nil
}

// Reject records the customer's refusal
func (q *Quote) Reject(now time.Time, reason string) error {
	if q.Status != QuoteStatusSent {
		return shared.InvalidState("Only sent quotes can be rejected")
	}
	q.Status = QuoteStatusRejected
	q.DecidedAt = &now
	q.RejectionReason = strings.TrimSpace(reason)
	q.UpdatedAt = now
	q.IncrementVersion()
	q.AddDomainEvent(newQuoteEvent(EventTypeQuoteRejected, q))
	return nil
}

// MarkConverted links the invoice created from an accepted quote
func (q *Quote) MarkConverted(invoiceID uuid.UUID) error {
	if q.Status != QuoteStatusAccepted {
		return shared.InvalidState("Only accepted quotes can be converted to an invoice")
	}
	if q.ConvertedInvoiceID != nil {
		return shared.InvalidState("Quote has already been converted")
	}
	q.ConvertedInvoiceID = &invoiceID
	q.UpdatedAt = time.Now()
	q.IncrementVersion()
	q.AddDomainEvent(newQuoteEvent(EventTypeQuoteConverted, q))
	return nil
}

// CanDelete reports whether the quote may be removed; sent quotes are kept for the record
func (q *Quote) CanDelete() error {
	if q.Status != QuoteStatusDraft {
		return shared.InvalidState("Only draft quotes can be deleted")
	}
	return nil
}

func (q *Quote) recompute() {
	t := ComputeTotals(q.Items, q.TaxRate, q.Currency)
	q.Subtotal, q.Tax, q.Total = t.Subtotal, t.Tax, t.Total
}
