package payment

import (
	"context"
	"strings"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Method is how the customer paid
type Method string

const (
	MethodCard     Method = "card"
	MethodTerminal Method = "terminal"
	MethodCash     Method = "cash"
	MethodCheck    Method = "check"
	MethodOther    Method = "other"
)

// IsManual reports whether the method is recorded by staff rather than a processor
func (m Method) IsManual() bool {
	return m == MethodCash || m == MethodCheck || m == MethodOther
}

// IsValid reports whether m is a known method
func (m Method) IsValid() bool {
	switch m {
	case MethodCard, MethodTerminal, MethodCash, MethodCheck, MethodOther:
		return true
	}
	return false
}

// Status is the processing state of a payment
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Provider processes card payments
const (
	ProviderManual = "manual"
	ProviderStripe = "stripe"
)

const AggregateTypePayment = "payment"

const (
	EventTypePaymentSucceeded = "payment.succeeded"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentRefunded  = "payment.refunded"
)

// ErrAlreadySucceeded signals a duplicate success notification
var ErrAlreadySucceeded = shared.NewDomainError("ALREADY_EXISTS", "Payment has already succeeded")

// Payment is money received against an invoice
type Payment struct {
	shared.OrgAggregateRoot
	InvoiceID     uuid.UUID
	CustomerID    uuid.UUID
	Amount        decimal.Decimal
	Currency      valueobject.Currency
	Method        Method
	Provider      string
	ProviderRef   string
	Status        Status
	FailureReason string
	Reference     string
	ReceivedAt    *time.Time
	RefundedAt    *time.Time
}

func newPayment(orgID, invoiceID, customerID uuid.UUID, amount decimal.Decimal, cur valueobject.Currency, method Method) (*Payment, error) {
	if invoiceID == uuid.Nil {
		return nil, shared.InvalidInput("Invoice is required")
	}
	if !amount.IsPositive() {
		return nil, shared.InvalidInput("Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.InvalidInput("Unknown payment method " + string(method))
	}
	return &Payment{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		InvoiceID:        invoiceID,
		CustomerID:       customerID,
		Amount:           amount,
		Currency:         cur,
		Method:           method,
		Status:           StatusPending,
	}, nil
}

// NewManualPayment records cash, check or other offline payment as succeeded
func NewManualPayment(orgID, invoiceID, customerID uuid.UUID, amount decimal.Decimal, cur valueobject.Currency, method Method, reference string, receivedAt time.Time) (*Payment, error) {
	if !method.IsManual() {
		return nil, shared.InvalidInput("Card payments are recorded through the processor")
	}
	p, err := newPayment(orgID, invoiceID, customerID, amount, cur, method)
	if err != nil {
		return nil, err
	}
	p.Provider = ProviderManual
	p.Reference = strings.TrimSpace(reference)
	if err := p.MarkSucceeded(receivedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// NewProcessorPayment creates a pending card or terminal payment tied to a PaymentIntent
func NewProcessorPayment(orgID, invoiceID, customerID uuid.UUID, amount decimal.Decimal, cur valueobject.Currency, method Method, provider, providerRef string) (*Payment, error) {
	if method.IsManual() {
		return nil, shared.InvalidInput("Offline payments are recorded manually")
	}
	if providerRef == "" {
		return nil, shared.InvalidInput("Processor reference is required")
	}
	p, err := newPayment(orgID, invoiceID, customerID, amount, cur, method)
	if err != nil {
		return nil, err
	}
	p.Provider = provider
	p.ProviderRef = providerRef
	return p, nil
}

// MarkSucceeded confirms funds. A second confirmation returns ErrAlreadySucceeded
// so callers apply the amount to the invoice exactly once.
func (p *Payment) MarkSucceeded(now time.Time) error {
	switch p.Status {
	case StatusSucceeded:
		return ErrAlreadySucceeded
	case StatusRefunded:
		return shared.InvalidState("Payment has been refunded")
	}
	p.Status = StatusSucceeded
	p.FailureReason = ""
	p.ReceivedAt = &now
	p.UpdatedAt = now
	p.AddDomainEvent(newPaymentEvent(EventTypePaymentSucceeded, p))
	return nil
}

// MarkFailed records a declined or errored payment
func (p *Payment) MarkFailed(now time.Time, reason string) error {
	if p.Status != StatusPending {
		return shared.InvalidState("Only pending payments can fail")
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.UpdatedAt = now
	p.AddDomainEvent(newPaymentEvent(EventTypePaymentFailed, p))
	return nil
}

// MarkRefunded reverses a succeeded payment
func (p *Payment) MarkRefunded(now time.Time) error {
	if p.Status != StatusSucceeded {
		return shared.InvalidState("Only succeeded payments can be refunded")
	}
	p.Status = StatusRefunded
	p.RefundedAt = &now
	p.UpdatedAt = now
	p.AddDomainEvent(newPaymentEvent(EventTypePaymentRefunded, p))
	return nil
}

// PaymentEvent carries a payment snapshot
type PaymentEvent struct {
	shared.BaseDomainEvent
	PaymentID  uuid.UUID            `json:"payment_id"`
	InvoiceID  uuid.UUID            `json:"invoice_id"`
	CustomerID uuid.UUID            `json:"customer_id"`
	Amount     decimal.Decimal      `json:"amount"`
	Currency   valueobject.Currency `json:"currency"`
	Method     Method               `json:"method"`
	Status     Status               `json:"status"`
	Reason     string               `json:"reason,omitempty"`
}

func newPaymentEvent(eventType string, p *Payment) *PaymentEvent {
	return &PaymentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypePayment, p.ID, p.OrgID),
		PaymentID:       p.ID,
		InvoiceID:       p.InvoiceID,
		CustomerID:      p.CustomerID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Method:          p.Method,
		Status:          p.Status,
		Reason:          p.FailureReason,
	}
}

// PaymentFilter narrows payment lists
type PaymentFilter struct {
	shared.Filter
	InvoiceID *uuid.UUID
	Status    *Status
}

// PaymentRepository defines persistence for payments
type PaymentRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Payment, error)
	// FindByProviderRef looks up a processor payment across organizations, for webhooks
	FindByProviderRef(ctx context.Context, provider, ref string) (*Payment, error)
	List(ctx context.Context, orgID uuid.UUID, filter PaymentFilter) ([]*Payment, int64, error)
	Save(ctx context.Context, p *Payment) error
}
