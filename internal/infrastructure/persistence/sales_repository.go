package persistence

import (
	"context"
	"time"

	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var openInvoiceStatuses = []sales.InvoiceStatus{sales.InvoiceStatusSent, sales.InvoiceStatusPartiallyPaid}

// GormQuoteRepository implements sales.QuoteRepository using GORM
type GormQuoteRepository struct {
	outboxAware
	db *gorm.DB
}

// NewGormQuoteRepository creates a new GormQuoteRepository
func NewGormQuoteRepository(db *gorm.DB) *GormQuoteRepository {
	return &GormQuoteRepository{db: db}
}

// FindByID finds a quote within an organization
func (r *GormQuoteRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*sales.Quote, error) {
	var model models.QuoteModel
	if err := conn(ctx, r.db).Where("org_id = ? AND id = ?", orgID, id).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// List pages quotes matching the filter
func (r *GormQuoteRepository) List(ctx context.Context, orgID uuid.UUID, filter sales.QuoteFilter) ([]*sales.Quote, int64, error) {
	filter.Filter = filter.Normalize()
	query := conn(ctx, r.db).Model(&models.QuoteModel{}).Where("org_id = ?", orgID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(number)"+likeClause, likePattern(filter.Search))
	}

	var rows []models.QuoteModel
	total, err := paginate(query, filter.Filter, orderClause("", filter.OrderBy, filter.OrderDir, QuoteSortFields, "created_at"), &rows)
	if err != nil {
		return nil, 0, err
	}
	quotes := make([]*sales.Quote, len(rows))
	for i := range rows {
		quotes[i] = rows[i].ToDomain()
	}
	return quotes, total, nil
}

// Save creates or updates a quote
func (r *GormQuoteRepository) Save(ctx context.Context, q *sales.Quote) error {
	return saveAggregate(ctx, r.db, r.outboxSaver, q,
		func() any { return models.QuoteModelFromDomain(q) }, nil)
}

// Delete removes a draft quote
func (r *GormQuoteRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res := conn(ctx, r.db).
		Where("org_id = ? AND id = ? AND status = ?", orgID, id, sales.QuoteStatusDraft).
		Delete(&models.QuoteModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GormInvoiceRepository implements sales.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	outboxAware
	db  *gorm.DB
	now func() time.Time
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db, now: time.Now}
}

// FindByID finds an invoice within an organization
func (r *GormInvoiceRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*sales.Invoice, error) {
	var model models.InvoiceModel
	if err := conn(ctx, r.db).Where("org_id = ? AND id = ?", orgID, id).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// List pages invoices matching the filter
func (r *GormInvoiceRepository) List(ctx context.Context, orgID uuid.UUID, filter sales.InvoiceFilter) ([]*sales.Invoice, int64, error) {
	filter.Filter = filter.Normalize()
	query := conn(ctx, r.db).Model(&models.InvoiceModel{}).Where("org_id = ?", orgID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.JobID != nil {
		query = query.Where("job_id = ?", *filter.JobID)
	}
	if filter.Overdue {
		query = query.Where("status IN ? AND due_date < ?", openInvoiceStatuses, r.now().UTC())
	}
	if filter.Search != "" {
		query = query.Where("LOWER(number)"+likeClause, likePattern(filter.Search))
	}

	var rows []models.InvoiceModel
	total, err := paginate(query, filter.Filter, orderClause("", filter.OrderBy, filter.OrderDir, InvoiceSortFields, "created_at"), &rows)
	if err != nil {
		return nil, 0, err
	}
	return invoicesToDomain(rows), total, nil
}

// FindOverdueUnnotified returns open invoices past due that have not been flagged
func (r *GormInvoiceRepository) FindOverdueUnnotified(ctx context.Context, now time.Time, limit int) ([]*sales.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.InvoiceModel
	err := conn(ctx, r.db).
		Where("status IN ? AND due_date < ? AND overdue_notified_at IS NULL", openInvoiceStatuses, now.UTC()).
		Order("due_date ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// Save creates or updates an invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *sales.Invoice) error {
	return saveAggregate(ctx, r.db, r.outboxSaver, inv,
		func() any { return models.InvoiceModelFromDomain(inv) }, nil)
}

func invoicesToDomain(rows []models.InvoiceModel) []*sales.Invoice {
	out := make([]*sales.Invoice, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var (
	_ sales.QuoteRepository   = (*GormQuoteRepository)(nil)
	_ sales.InvoiceRepository = (*GormInvoiceRepository)(nil)
)
