package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Sequence names for document numbering
const (
	SequenceQuote   = "quote"
	SequenceInvoice = "invoice"
)

// FormatNumber renders a document number such as INV-000123
func FormatNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%06d", prefix, n)
}

// QuoteFilter narrows quote lists
type QuoteFilter struct {
	shared.Filter
	Status     *QuoteStatus
	CustomerID *uuid.UUID
}

// QuoteRepository defines persistence for quotes
type QuoteRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Quote, error)
	List(ctx context.Context, orgID uuid.UUID, filter QuoteFilter) ([]*Quote, int64, error)
	Save(ctx context.Context, q *Quote) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
}

// InvoiceFilter narrows invoice lists
type InvoiceFilter struct {
	shared.Filter
	Status     *InvoiceStatus
	CustomerID *uuid.UUID
	JobID      *uuid.UUID
	Overdue    bool
}

// InvoiceRepository defines persistence for invoices
type InvoiceRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, orgID uuid.UUID, filter InvoiceFilter) ([]*Invoice, int64, error)
	// FindOverdueUnnotified returns open invoices across all organizations due before now
	// that have not had an overdue notice
	FindOverdueUnnotified(ctx context.Context, now time.Time, limit int) ([]*Invoice, error)
	Save(ctx context.Context, inv *Invoice) error
}
