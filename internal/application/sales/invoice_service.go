package sales

import (
	"context"
	"errors"
	"time"

	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/scheduling"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService handles invoices, invoicing of completed jobs and the overdue sweep
type InvoiceService struct {
	documents
	invoiceRepo sales.InvoiceRepository
	jobRepo     scheduling.JobRepository
	logger      *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo sales.InvoiceRepository,
	jobRepo scheduling.JobRepository,
	orgRepo organization.OrganizationRepository,
	customerRepo crm.CustomerRepository,
	seqRepo organization.SequenceRepository,
	tx shared.TxRunner,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		documents: documents{
			orgRepo:      orgRepo,
			customerRepo: customerRepo,
			seqRepo:      seqRepo,
			tx:           tx,
			now:          time.Now,
		},
		invoiceRepo: invoiceRepo,
		jobRepo:     jobRepo,
		logger:      logger,
	}
}

// Create drafts an invoice numbered from the organization's invoice sequence
func (s *InvoiceService) Create(ctx context.Context, orgID, createdBy uuid.UUID, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCustomer(ctx, orgID, req.CustomerID); err != nil {
		return nil, err
	}
	if req.JobID != nil {
		if _, err := s.jobRepo.FindByID(ctx, orgID, *req.JobID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.InvalidInput("Job does not exist")
			}
			return nil, err
		}
	}
	items, err := toLineItems(req.Items, org.Currency)
	if err != nil {
		return nil, err
	}
	taxRate := org.Invoicing.DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	now := s.now()
	due := dueDate(org, now)
	if req.DueDate != nil {
		due = *req.DueDate
	}

	var invoice *sales.Invoice
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		number, err := s.nextNumber(ctx, orgID, sales.SequenceInvoice, org.Invoicing.InvoicePrefix)
		if err != nil {
			return err
		}
		if invoice, err = sales.NewInvoice(orgID, req.CustomerID, number, org.Currency, taxRate, due); err != nil {
			return err
		}
		invoice.SetCreatedBy(createdBy)
		if req.JobID != nil {
			invoice.LinkJob(*req.JobID)
		}
		if err := invoice.SetItems(items); err != nil {
			return err
		}
		if err := invoice.SetTerms(taxRate, req.Notes, due); err != nil {
			return err
		}
		return s.invoiceRepo.Save(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Invoice created",
		zap.String("org_id", orgID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number))
	response := ToInvoiceResponse(invoice, now, org.Locale)
	return &response, nil
}

// GetByID retrieves an invoice
func (s *InvoiceService) GetByID(ctx context.Context, orgID, id uuid.UUID) (*InvoiceResponse, error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	response := ToInvoiceResponse(invoice, s.now(), org.Locale)
	return &response, nil
}

// List retrieves invoices with filtering and pagination
func (s *InvoiceService) List(ctx context.Context, orgID uuid.UUID, filter DocumentListFilter) (*shared.Paginated[InvoiceResponse], error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	f := sales.InvoiceFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
			Search:   filter.Search,
		}.Normalize(),
		Overdue: filter.Overdue,
	}
	if f.CustomerID, err = shared.ParseOptionalID("customer_id", filter.CustomerID); err != nil {
		return nil, err
	}
	if f.JobID, err = shared.ParseOptionalID("job_id", filter.JobID); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		status := sales.InvoiceStatus(filter.Status)
		if !status.IsValid() {
			return nil, shared.InvalidInput("Unknown invoice status " + filter.Status)
		}
		f.Status = &status
	}
	invoices, total, err := s.invoiceRepo.List(ctx, orgID, f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	items := make([]InvoiceResponse, len(invoices))
	for i, inv := range invoices {
		items[i] = ToInvoiceResponse(inv, now, org.Locale)
	}
	page := shared.NewPaginated(items, total, f.Page, f.PageSize)
	return &page, nil
}

// Update replaces the items and terms of a draft invoice
func (s *InvoiceService) Update(ctx context.Context, orgID, id uuid.UUID, req UpdateInvoiceRequest) (*InvoiceResponse, error) {
	return s.mutate(ctx, orgID, id, func(inv *sales.Invoice, _ time.Time) error {
		items, err := toLineItems(req.Items, inv.Currency)
		if err != nil {
			return err
		}
		if err := inv.SetItems(items); err != nil {
			return err
		}
		return inv.SetTerms(req.TaxRate, req.Notes, req.DueDate)
	})
}

// Send issues a draft invoice
func (s *InvoiceService) Send(ctx context.Context, orgID, id uuid.UUID) (*InvoiceResponse, error) {
	return s.mutate(ctx, orgID, id, func(inv *sales.Invoice, now time.Time) error {
		return inv.Send(now)
	})
}

// Void cancels an unpaid invoice
func (s *InvoiceService) Void(ctx context.Context, orgID, id uuid.UUID, req VoidInvoiceRequest) (*InvoiceResponse, error) {
	return s.mutate(ctx, orgID, id, func(inv *sales.Invoice, now time.Time) error {
		return inv.Void(now, req.Reason)
	})
}

func (s *InvoiceService) mutate(ctx context.Context, orgID, id uuid.UUID, apply func(*sales.Invoice, time.Time) error) (*InvoiceResponse, error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := apply(invoice, now); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		return nil, err
	}
	s.logger.Info("Invoice updated",
		zap.String("org_id", orgID.String()),
		zap.String("number", invoice.Number),
		zap.String("status", string(invoice.Status)))
	response := ToInvoiceResponse(invoice, now, org.Locale)
	return &response, nil
}

// CreateInvoiceFromJob drafts an invoice from a completed job's billable
// items. A job that already has an invoice returns that invoice.
func (s *InvoiceService) CreateInvoiceFromJob(ctx context.Context, orgID, jobID uuid.UUID) (*sales.Invoice, error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var invoice *sales.Invoice
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		job, err := s.jobRepo.FindByID(ctx, orgID, jobID)
		if err != nil {
			return err
		}
		if job.InvoiceID != nil {
			invoice, err = s.invoiceRepo.FindByID(ctx, orgID, *job.InvoiceID)
			return err
		}
		if job.Status != scheduling.JobStatusCompleted {
			return shared.InvalidState("Only completed jobs can be invoiced")
		}

		items := make([]sales.LineItem, 0, len(job.BillableItems))
		for _, b := range job.BillableItems {
			item, err := sales.NewLineItem(b.Description, b.Quantity, b.UnitPrice, org.Currency)
			if err != nil {
				return err
			}
			items = append(items, item)
		}

		number, err := s.nextNumber(ctx, orgID, sales.SequenceInvoice, org.Invoicing.InvoicePrefix)
		if err != nil {
			return err
		}
		due := dueDate(org, now)
		if invoice, err = sales.NewInvoice(orgID, job.CustomerID, number, org.Currency, org.Invoicing.DefaultTaxRate, due); err != nil {
			return err
		}
		if job.CreatedBy != nil {
			invoice.SetCreatedBy(*job.CreatedBy)
		}
		invoice.LinkJob(job.ID)
		if err := invoice.SetItems(items); err != nil {
			return err
		}
		if err := invoice.SetTerms(org.Invoicing.DefaultTaxRate, "Job: "+job.Title, due); err != nil {
			return err
		}
		if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
			return err
		}
		if err := job.MarkInvoiced(invoice.ID); err != nil {
			return err
		}
		return s.jobRepo.Save(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Invoice created from job",
		zap.String("org_id", orgID.String()),
		zap.String("job_id", jobID.String()),
		zap.String("number", invoice.Number))
	return invoice, nil
}

// InvoiceJob is CreateInvoiceFromJob for the HTTP API
func (s *InvoiceService) InvoiceJob(ctx context.Context, orgID, jobID uuid.UUID) (*InvoiceResponse, error) {
	invoice, err := s.CreateInvoiceFromJob(ctx, orgID, jobID)
	if err != nil {
		return nil, err
	}
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	response := ToInvoiceResponse(invoice, s.now(), org.Locale)
	return &response, nil
}

// SweepOverdue marks up to limit open invoices past their due date as
// notified, raising invoice.overdue once per invoice. It returns how many
// were marked.
func (s *InvoiceService) SweepOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	invoices, err := s.invoiceRepo.FindOverdueUnnotified(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, inv := range invoices {
		if !inv.MarkOverdueNotified(now) {
			continue
		}
		if err := s.invoiceRepo.Save(ctx, inv); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				// paid or edited meanwhile; the next sweep sees the new state
				continue
			}
			return marked, err
		}
		marked++
	}
	if marked > 0 {
		s.logger.Info("Overdue invoices flagged", zap.Int("count", marked))
	}
	return marked, nil
}
