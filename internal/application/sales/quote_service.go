package sales

import (
	"context"
	"time"

	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuoteService handles quotes and their conversion to invoices
type QuoteService struct {
	documents
	quoteRepo   sales.QuoteRepository
	invoiceRepo sales.InvoiceRepository
	logger      *zap.Logger
}

// NewQuoteService creates a new QuoteService
func NewQuoteService(
	quoteRepo sales.QuoteRepository,
	invoiceRepo sales.InvoiceRepository,
	orgRepo organization.OrganizationRepository,
	customerRepo crm.CustomerRepository,
	seqRepo organization.SequenceRepository,
	tx shared.TxRunner,
	logger *zap.Logger,
) *QuoteService {
	return &QuoteService{
		documents: documents{
			orgRepo:      orgRepo,
			customerRepo: customerRepo,
			seqRepo:      seqRepo,
			tx:           tx,
			now:          time.Now,
		},
		quoteRepo:   quoteRepo,
		invoiceRepo: invoiceRepo,
		logger:      logger,
	}
}

// Create drafts a quote numbered from the organization's quote sequence
func (s *QuoteService) Create(ctx context.Context, orgID, createdBy uuid.UUID, req CreateQuoteRequest) (*QuoteResponse, error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCustomer(ctx, orgID, req.CustomerID); err != nil {
		return nil, err
	}
	items, err := toLineItems(req.Items, org.Currency)
	if err != nil {
		return nil, err
	}
	taxRate := org.Invoicing.DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	validUntil := req.ValidUntil
	if validUntil == nil {
		v := s.now().AddDate(0, 0, org.Invoicing.QuoteValidDays)
		validUntil = &v
	}

	var quote *sales.Quote
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		number, err := s.nextNumber(ctx, orgID, sales.SequenceQuote, org.Invoicing.QuotePrefix)
		if err != nil {
			return err
		}
		if quote, err = sales.NewQuote(orgID, req.CustomerID, number, org.Currency, taxRate); err != nil {
			return err
		}
		quote.SetCreatedBy(createdBy)
		if req.JobID != nil {
			quote.LinkJob(*req.JobID)
		}
		if err := quote.SetItems(items); err != nil {
			return err
		}
		if err := quote.SetTerms(taxRate, req.Notes, validUntil); err != nil {
			return err
		}
		return s.quoteRepo.Save(ctx, quote)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Quote created",
		zap.String("org_id", orgID.String()),
		zap.String("quote_id", quote.ID.String()),
		zap.String("number", quote.Number))
	response := ToQuoteResponse(quote, s.now(), org.Locale)
	return &response, nil
}

// GetByID retrieves a quote
func (s *QuoteService) GetByID(ctx context.Context, orgID, id uuid.UUID) (*QuoteResponse, error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	quote, err := s.quoteRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	response := ToQuoteResponse(quote, s.now(), org.Locale)
	return &response, nil
}

// List retrieves quotes with filtering and pagination
func (s *QuoteService) List(ctx context.Context, orgID uuid.UUID, filter DocumentListFilter) (*shared.Paginated[QuoteResponse], error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	f := sales.QuoteFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
			Search:   filter.Search,
		}.Normalize(),
	}
	if f.CustomerID, err = shared.ParseOptionalID("customer_id", filter.CustomerID); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		status := sales.QuoteStatus(filter.Status)
		if !status.IsValid() {
			return nil, shared.InvalidInput("Unknown quote status " + filter.Status)
		}
		f.Status = &status
	}
	quotes, total, err := s.quoteRepo.List(ctx, orgID, f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	items := make([]QuoteResponse, len(quotes))
	for i, q := range quotes {
		items[i] = ToQuoteResponse(q, now, org.Locale)
	}
	page := shared.NewPaginated(items, total, f.Page, f.PageSize)
	return &page, nil
}

// Update replaces the items and terms of a draft quote
func (s *QuoteService) Update(ctx context.Context, orgID, id uuid.UUID, req UpdateQuoteRequest) (*QuoteResponse, error) {
	return s.mutate(ctx, orgID, id, func(org *organization.Organization, q *sales.Quote, _ time.Time) error {
		items, err := toLineItems(req.Items, q.Currency)
		if err != nil {
			return err
		}
		if err := q.SetItems(items); err != nil {
			return err
		}
		return q.SetTerms(req.TaxRate, req.Notes, req.ValidUntil)
	})
}

// Delete removes a draft quote
func (s *QuoteService) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	quote, err := s.quoteRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := quote.CanDelete(); err != nil {
		return err
	}
	if err := s.quoteRepo.Delete(ctx, orgID, id); err != nil {
		return err
	}
	s.logger.Info("Quote deleted", zap.String("org_id", orgID.String()), zap.String("number", quote.Number))
	return nil
}

// Send issues a draft quote to the customer
func (s *QuoteService) Send(ctx context.Context, orgID, id uuid.UUID) (*QuoteResponse, error) {
	return s.mutate(ctx, orgID, id, func(_ *organization.Organization, q *sales.Quote, now time.Time) error {
		return q.Send(now)
	})
}

// Accept records the customer's approval of a sent quote
func (s *QuoteService) Accept(ctx context.Context, orgID, id uuid.UUID) (*QuoteResponse, error) {
	return s.mutate(ctx, orgID, id, func(_ *organization.Organization, q *sales.Quote, now time.Time) error {
		return q.Accept(now)
	})
}

// Reject records the customer's refusal of a sent quote
func (s *QuoteService) Reject(ctx context.Context, orgID, id uuid.UUID, req RejectQuoteRequest) (*QuoteResponse, error) {
	return s.mutate(ctx, orgID, id, func(_ *organization.Organization, q *sales.Quote, now time.Time) error {
		return q.Reject(now, req.Reason)
	})
}

func (s *QuoteService) mutate(ctx context.Context, orgID, id uuid.UUID, apply func(*organization.Organization, *sales.Quote, time.Time) error) (*QuoteResponse, error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	quote, err := s.quoteRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := apply(org, quote, now); err != nil {
		return nil, err
	}
	if err := s.quoteRepo.Save(ctx, quote); err != nil {
		return nil, err
	}
	s.logger.Info("Quote updated",
		zap.String("org_id", orgID.String()),
		zap.String("number", quote.Number),
		zap.String("status", string(quote.Status)))
	response := ToQuoteResponse(quote, now, org.Locale)
	return &response, nil
}

// Convert creates a draft invoice from an accepted quote. The quote and the
// invoice are saved in one transaction and a quote converts only once.
func (s *QuoteService) Convert(ctx context.Context, orgID, id uuid.UUID) (*InvoiceResponse, error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var invoice *sales.Invoice
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		quote, err := s.quoteRepo.FindByID(ctx, orgID, id)
		if err != nil {
			return err
		}
		if quote.ConvertedInvoiceID != nil {
			return shared.InvalidState("Quote has already been converted to invoice " + quote.ConvertedInvoiceID.String())
		}
		if quote.Status != sales.QuoteStatusAccepted {
			return shared.InvalidState("Only accepted quotes can be converted to an invoice")
		}
		number, err := s.nextNumber(ctx, orgID, sales.SequenceInvoice, org.Invoicing.InvoicePrefix)
		if err != nil {
			return err
		}
		if invoice, err = sales.NewInvoiceFromQuote(quote, number, dueDate(org, now)); err != nil {
			return err
		}
		if quote.CreatedBy != nil {
			invoice.SetCreatedBy(*quote.CreatedBy)
		}
		if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
			return err
		}
		return s.quoteRepo.Save(ctx, quote)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Quote converted to invoice",
		zap.String("org_id", orgID.String()),
		zap.String("quote_id", id.String()),
		zap.String("invoice_number", invoice.Number))
	response := ToInvoiceResponse(invoice, now, org.Locale)
	return &response, nil
}
