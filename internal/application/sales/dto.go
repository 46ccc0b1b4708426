package sales

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItemRequest is one priced row in a quote or invoice body
type LineItemRequest struct {
	Description string          `json:"description" binding:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func toLineItems(reqs []LineItemRequest, cur valueobject.Currency) ([]sales.LineItem, error) {
	items := make([]sales.LineItem, 0, len(reqs))
	for _, r := range reqs {
		item, err := sales.NewLineItem(r.Description, r.Quantity, r.UnitPrice, cur)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// CreateQuoteRequest is the body of POST /quotes
type CreateQuoteRequest struct {
	CustomerID uuid.UUID         `json:"customer_id" binding:"required"`
	JobID      *uuid.UUID        `json:"job_id"`
	Items      []LineItemRequest `json:"items" binding:"max=200,dive"`
	TaxRate    *decimal.Decimal  `json:"tax_rate"`
	Notes      string            `json:"notes" binding:"max=5000"`
	ValidUntil *time.Time        `json:"valid_until"`
}

// UpdateQuoteRequest replaces the content of a draft quote
type UpdateQuoteRequest struct {
	Items      []LineItemRequest `json:"items" binding:"max=200,dive"`
	TaxRate    decimal.Decimal   `json:"tax_rate"`
	Notes      string            `json:"notes" binding:"max=5000"`
	ValidUntil *time.Time        `json:"valid_until"`
}

// RejectQuoteRequest records why the customer declined
type RejectQuoteRequest struct {
	Reason string `json:"reason" binding:"max=2000"`
}

// CreateInvoiceRequest is the body of POST /invoices
type CreateInvoiceRequest struct {
	CustomerID uuid.UUID         `json:"customer_id" binding:"required"`
	JobID      *uuid.UUID        `json:"job_id"`
	Items      []LineItemRequest `json:"items" binding:"max=200,dive"`
	TaxRate    *decimal.Decimal  `json:"tax_rate"`
	Notes      string            `json:"notes" binding:"max=5000"`
	DueDate    *time.Time        `json:"due_date"`
}

// UpdateInvoiceRequest replaces the content of a draft invoice
type UpdateInvoiceRequest struct {
	Items   []LineItemRequest `json:"items" binding:"max=200,dive"`
	TaxRate decimal.Decimal   `json:"tax_rate"`
	Notes   string            `json:"notes" binding:"max=5000"`
	DueDate time.Time         `json:"due_date" binding:"required"`
}

// VoidInvoiceRequest records why an invoice was cancelled
type VoidInvoiceRequest struct {
	Reason string `json:"reason" binding:"max=2000"`
}

// DocumentListFilter narrows GET /quotes and GET /invoices
type DocumentListFilter struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Search     string `form:"search"`
	OrderBy    string `form:"order_by"`
	OrderDir   string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	Status     string `form:"status"`
	CustomerID string `form:"customer_id"`
	JobID      string `form:"job_id"`
	Overdue    bool   `form:"overdue"`
}

// QuoteResponse represents a quote in API responses
type QuoteResponse struct {
	ID                 uuid.UUID        `json:"id"`
	Number             string           `json:"number"`
	CustomerID         uuid.UUID        `json:"customer_id"`
	JobID              *uuid.UUID       `json:"job_id,omitempty"`
	Status             string           `json:"status"`
	Currency           string           `json:"currency"`
	Items              []sales.LineItem `json:"items"`
	TaxRate            decimal.Decimal  `json:"tax_rate"`
	Subtotal           decimal.Decimal  `json:"subtotal"`
	Tax                decimal.Decimal  `json:"tax"`
	Total              decimal.Decimal  `json:"total"`
	TotalDisplay       string           `json:"total_display"`
	Notes              string           `json:"notes,omitempty"`
	ValidUntil         *time.Time       `json:"valid_until,omitempty"`
	Expired            bool             `json:"expired"`
	SentAt             *time.Time       `json:"sent_at,omitempty"`
	DecidedAt          *time.Time       `json:"decided_at,omitempty"`
	RejectionReason    string           `json:"rejection_reason,omitempty"`
	ConvertedInvoiceID *uuid.UUID       `json:"converted_invoice_id,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	Version            int              `json:"version"`
}

// ToQuoteResponse converts a quote to its API view, formatting amounts for locale
func ToQuoteResponse(q *sales.Quote, now time.Time, locale string) QuoteResponse {
	items := q.Items
	if items == nil {
		items = []sales.LineItem{}
	}
	return QuoteResponse{
		ID:                 q.ID,
		Number:             q.Number,
		CustomerID:         q.CustomerID,
		JobID:              q.JobID,
		Status:             string(q.Status),
		Currency:           string(q.Currency),
		Items:              items,
		TaxRate:            q.TaxRate,
		Subtotal:           q.Subtotal,
		Tax:                q.Tax,
		Total:              q.Total,
		TotalDisplay:       valueobject.FormatCurrency(q.Total, q.Currency, locale),
		Notes:              q.Notes,
		ValidUntil:         q.ValidUntil,
		Expired:            q.IsExpired(now),
		SentAt:             q.SentAt,
		DecidedAt:          q.DecidedAt,
		RejectionReason:    q.RejectionReason,
		ConvertedInvoiceID: q.ConvertedInvoiceID,
		CreatedAt:          q.CreatedAt,
		Version:            q.Version,
	}
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID             uuid.UUID        `json:"id"`
	Number         string           `json:"number"`
	CustomerID     uuid.UUID        `json:"customer_id"`
	JobID          *uuid.UUID       `json:"job_id,omitempty"`
	QuoteID        *uuid.UUID       `json:"quote_id,omitempty"`
	Status         string           `json:"status"`
	Overdue        bool             `json:"overdue"`
	Currency       string           `json:"currency"`
	Items          []sales.LineItem `json:"items"`
	TaxRate        decimal.Decimal  `json:"tax_rate"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	Tax            decimal.Decimal  `json:"tax"`
	Total          decimal.Decimal  `json:"total"`
	AmountPaid     decimal.Decimal  `json:"amount_paid"`
	BalanceDue     decimal.Decimal  `json:"balance_due"`
	TotalDisplay   string           `json:"total_display"`
	BalanceDisplay string           `json:"balance_display"`
	Notes          string           `json:"notes,omitempty"`
	DueDate        time.Time        `json:"due_date"`
	SentAt         *time.Time       `json:"sent_at,omitempty"`
	PaidAt         *time.Time       `json:"paid_at,omitempty"`
	VoidedAt       *time.Time       `json:"voided_at,omitempty"`
	VoidReason     string           `json:"void_reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	Version        int              `json:"version"`
}

// ToInvoiceResponse converts an invoice to its API view, formatting amounts for locale
func ToInvoiceResponse(i *sales.Invoice, now time.Time, locale string) InvoiceResponse {
	items := i.Items
	if items == nil {
		items = []sales.LineItem{}
	}
	return InvoiceResponse{
		ID:             i.ID,
		Number:         i.Number,
		CustomerID:     i.CustomerID,
		JobID:          i.JobID,
		QuoteID:        i.QuoteID,
		Status:         string(i.Status),
		Overdue:        i.IsOverdue(now),
		Currency:       string(i.Currency),
		Items:          items,
		TaxRate:        i.TaxRate,
		Subtotal:       i.Subtotal,
		Tax:            i.Tax,
		Total:          i.Total,
		AmountPaid:     i.AmountPaid,
		BalanceDue:     i.BalanceDue(),
		TotalDisplay:   valueobject.FormatCurrency(i.Total, i.Currency, locale),
		BalanceDisplay: i.BalanceMoney().Format(locale),
		Notes:          i.Notes,
		DueDate:        i.DueDate,
		SentAt:         i.SentAt,
		PaidAt:         i.PaidAt,
		VoidedAt:       i.VoidedAt,
		VoidReason:     i.VoidReason,
		CreatedAt:      i.CreatedAt,
		Version:        i.Version,
	}
}
