package sales

import (
	"strings"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusVoid          InvoiceStatus = "void"
)

// IsValid reports whether s is a known status
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusVoid:
		return true
	}
	return false
}

// IsOpen reports whether the invoice is awaiting payment
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusPartiallyPaid
}

// Invoice is a bill issued to a customer
type Invoice struct {
	shared.OrgAggregateRoot
	Number            string
	CustomerID        uuid.UUID
	JobID             *uuid.UUID
	QuoteID           *uuid.UUID
	Status            InvoiceStatus
	Currency          valueobject.Currency
	Items             []LineItem
	TaxRate           decimal.Decimal
	Subtotal          decimal.Decimal
	Tax               decimal.Decimal
	Total             decimal.Decimal
	AmountPaid        decimal.Decimal
	Notes             string
	DueDate           time.Time
	SentAt            *time.Time
	PaidAt            *time.Time
	VoidedAt          *time.Time
	VoidReason        string
	OverdueNotifiedAt *time.Time
}

// NewInvoice creates a draft invoice
func NewInvoice(orgID, customerID uuid.UUID, number string, cur valueobject.Currency, taxRate decimal.Decimal, dueDate time.Time) (*Invoice, error) {
	if customerID == uuid.Nil {
		return nil, shared.InvalidInput("Customer is required")
	}
	if strings.TrimSpace(number) == "" {
		return nil, shared.InvalidInput("Invoice number is required")
	}
	if err := validateTaxRate(taxRate); err != nil {
		return nil, err
	}
	if dueDate.IsZero() {
		return nil, shared.InvalidInput("Due date is required")
	}
	inv := &Invoice{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		Number:           number,
		CustomerID:       customerID,
		Status:           InvoiceStatusDraft,
		Currency:         cur,
		TaxRate:          taxRate,
		AmountPaid:       decimal.Zero,
		DueDate:          dueDate,
	}
	inv.recompute()
	inv.AddDomainEvent(newInvoiceEvent(EventTypeInvoiceCreated, inv))
	return inv, nil
}

// NewInvoiceFromQuote copies an accepted quote's items into a draft invoice
// and marks the quote converted.
func NewInvoiceFromQuote(q *Quote, number string, dueDate time.Time) (*Invoice, error) {
	if q.Status != QuoteStatusAccepted {
		return nil, shared.InvalidState("Only accepted quotes can be converted to an invoice")
	}
	inv, err := NewInvoice(q.OrgID, q.CustomerID, number, q.Currency, q.TaxRate, dueDate)
	if err != nil {
		return nil, err
	}
	items := make([]LineItem, len(q.Items))
	copy(items, q.Items)
	inv.Items = items
	inv.Notes = q.Notes
	inv.JobID = q.JobID
	quoteID := q.ID
	inv.QuoteID = &quoteID
	inv.recompute()
	if err := q.MarkConverted(inv.ID); err != nil {
		return nil, err
	}
	return inv, nil
}

// SetItems replaces line items on a draft
func (i *Invoice) SetItems(items []LineItem) error {
	if i.Status != InvoiceStatusDraft {
		return shared.InvalidState("Only draft invoices can be edited")
	}
	if err := validateItems(items); err != nil {
		return err
	}
	i.Items = items
	i.recompute()
	i.UpdatedAt = time.Now()
	i.IncrementVersion()
	return nil
}

// SetTerms changes tax, notes and due date on a draft
func (i *Invoice) SetTerms(taxRate decimal.Decimal, notes string, dueDate time.Time) error {
	if i.Status != InvoiceStatusDraft {
		return shared.InvalidState("Only draft invoices can be edited")
	}
	if err := validateTaxRate(taxRate); err != nil {
		return err
	}
	if dueDate.IsZero() {
		return shared.InvalidInput("Due date is required")
	}
	i.TaxRate = taxRate
	i.Notes = notes
	i.DueDate = dueDate
	i.recompute()
	i.UpdatedAt = time.Now()
	i.IncrementVersion()
	return nil
}

// LinkJob records the job this invoice bills
func (i *Invoice) LinkJob(jobID uuid.UUID) {
	i.JobID = &jobID
}

// Send issues the invoice to the customer
func (i *Invoice) Send(now time.Time) error {
	if i.Status != InvoiceStatusDraft {
		return shared.InvalidState("Only draft invoices can be sent")
	}
	if len(i.Items) == 0 || !i.Total.IsPositive() {
		return shared.InvalidState("An invoice needs a positive total before it can be sent")
	}
	i.Status = InvoiceStatusSent
	i.SentAt = &now
	i.UpdatedAt = now
	i.IncrementVersion()
	i.AddDomainEvent(newInvoiceEvent(EventTypeInvoiceSent, i))
	return nil
}

// BalanceDue is the unpaid remainder
func (i *Invoice) BalanceDue() decimal.Decimal {
	return i.Total.Sub(i.AmountPaid)
}

// ApplyPayment credits a successful payment. Overpayment is rejected.
func (i *Invoice) ApplyPayment(amount decimal.Decimal, now time.Time) error {
	if !i.Status.IsOpen() {
		return shared.InvalidState("Payments can only be applied to sent invoices")
	}
	if !amount.IsPositive() {
		return shared.InvalidInput("Payment amount must be positive")
	}
	if amount.GreaterThan(i.BalanceDue()) {
		return shared.InvalidInput("Payment exceeds the balance due")
	}
	i.AmountPaid = i.AmountPaid.Add(amount)
	i.UpdatedAt = now
	i.IncrementVersion()
	if i.BalanceDue().IsZero() {
		i.Status = InvoiceStatusPaid
		i.PaidAt = &now
		i.AddDomainEvent(newInvoiceEvent(EventTypeInvoicePaid, i))
		return nil
	}
	i.Status = InvoiceStatusPartiallyPaid
	i.AddDomainEvent(newInvoiceEvent(EventTypeInvoicePaymentApplied, i))
	return nil
}

// ReversePayment undoes a refunded payment, reopening the invoice
func (i *Invoice) ReversePayment(amount decimal.Decimal, now time.Time) error {
	if i.Status != InvoiceStatusPaid && i.Status != InvoiceStatusPartiallyPaid {
		return shared.InvalidState("Invoice has no payments to reverse")
	}
	if !amount.IsPositive() || amount.GreaterThan(i.AmountPaid) {
		return shared.InvalidInput("Refund amount is invalid")
	}
	i.AmountPaid = i.AmountPaid.Sub(amount)
	i.PaidAt = nil
	if i.AmountPaid.IsZero() {
		i.Status = InvoiceStatusSent
	} else {
		i.Status = InvoiceStatusPartiallyPaid
	}
	i.UpdatedAt = now
	i.IncrementVersion()
	return nil
}

// Void cancels an invoice that has not received payment
func (i *Invoice) Void(now time.Time, reason string) error {
	if i.Status != InvoiceStatusDraft && i.Status != InvoiceStatusSent {
		return shared.InvalidState("Only draft or unpaid sent invoices can be voided")
	}
	if i.AmountPaid.IsPositive() {
		return shared.InvalidState("Refund payments before voiding")
	}
	i.Status = InvoiceStatusVoid
	i.VoidedAt = &now
	i.VoidReason = strings.TrimSpace(reason)
	i.UpdatedAt = now
	i.IncrementVersion()
	i.AddDomainEvent(newInvoiceEvent(EventTypeInvoiceVoided, i))
	return nil
}

// IsOverdue reports whether an open invoice passed its due date at now
func (i *Invoice) IsOverdue(now time.Time) bool {
	return i.Status.IsOpen() && now.After(i.DueDate)
}

// MarkOverdueNotified records the overdue reminder once per invoice
func (i *Invoice) MarkOverdueNotified(now time.Time) bool {
	if !i.IsOverdue(now) || i.OverdueNotifiedAt != nil {
		return false
	}
	i.OverdueNotifiedAt = &now
	i.UpdatedAt = now
	i.AddDomainEvent(newInvoiceEvent(EventTypeInvoiceOverdue, i))
	return true
}

// BalanceMoney returns the balance due as Money
func (i *Invoice) BalanceMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(i.BalanceDue(), i.Currency)
	return m
}

func (i *Invoice) recompute() {
	t := ComputeTotals(i.Items, i.TaxRate, i.Currency)
	i.Subtotal, i.Tax, i.Total = t.Subtotal, t.Tax, t.Total
}
