package payment

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/payment"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ManualPaymentRequest is the body of POST /invoices/:id/payments
type ManualPaymentRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" binding:"required,oneof=cash check other"`
	Reference  string          `json:"reference" binding:"max=200"`
	ReceivedAt *time.Time      `json:"received_at"`
}

// PaymentIntentRequest is the body of POST /invoices/:id/payment-intent
type PaymentIntentRequest struct {
	// CardPresent requests a Terminal intent instead of an online one
	CardPresent  bool   `json:"card_present"`
	ReceiptEmail string `json:"receipt_email" binding:"omitempty,email,max=254"`
}

// ConnectionTokenRequest is the body of POST /terminal/connection-token
type ConnectionTokenRequest struct {
	LocationID string `json:"location_id" binding:"max=100"`
}

// PaymentListFilter narrows GET /payments
type PaymentListFilter struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy   string `form:"order_by"`
	OrderDir  string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	InvoiceID string `form:"invoice_id"`
	Status    string `form:"status"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	Amount        decimal.Decimal `json:"amount"`
	AmountDisplay string          `json:"amount_display"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method"`
	Provider      string          `json:"provider"`
	ProviderRef   string          `json:"provider_ref,omitempty"`
	Status        string          `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	ReceivedAt    *time.Time      `json:"received_at,omitempty"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ToPaymentResponse converts a payment to its API view
func ToPaymentResponse(p *payment.Payment, locale string) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		InvoiceID:     p.InvoiceID,
		CustomerID:    p.CustomerID,
		Amount:        p.Amount,
		AmountDisplay: valueobject.FormatCurrency(p.Amount, p.Currency, locale),
		Currency:      string(p.Currency),
		Method:        string(p.Method),
		Provider:      p.Provider,
		ProviderRef:   p.ProviderRef,
		Status:        string(p.Status),
		FailureReason: p.FailureReason,
		Reference:     p.Reference,
		ReceivedAt:    p.ReceivedAt,
		RefundedAt:    p.RefundedAt,
		CreatedAt:     p.CreatedAt,
	}
}

// PaymentIntentResponse is what a client needs to confirm a card payment
type PaymentIntentResponse struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	IntentID       string    `json:"intent_id"`
	ClientSecret   string    `json:"client_secret"`
	Amount         int64     `json:"amount"`
	ApplicationFee int64     `json:"application_fee"`
	Currency       string    `json:"currency"`
}

// ConnectionTokenResponse carries a Terminal SDK connection secret
type ConnectionTokenResponse struct {
	Secret string `json:"secret"`
}
