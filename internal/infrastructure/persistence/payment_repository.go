package persistence

import (
	"context"

	"github.com/crewdesk/backend/internal/domain/payment"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPaymentRepository implements payment.PaymentRepository using GORM
type GormPaymentRepository struct {
	outboxAware
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment within an organization
func (r *GormPaymentRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := conn(ctx, r.db).Where("org_id = ? AND id = ?", orgID, id).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByProviderRef looks up a processor payment across organizations
func (r *GormPaymentRepository) FindByProviderRef(ctx context.Context, provider, ref string) (*payment.Payment, error) {
	if ref == "" {
		return nil, shared.ErrNotFound
	}
	var model models.PaymentModel
	if err := conn(ctx, r.db).Where("provider = ? AND provider_ref = ?", provider, ref).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// List pages payments matching the filter
func (r *GormPaymentRepository) List(ctx context.Context, orgID uuid.UUID, filter payment.PaymentFilter) ([]*payment.Payment, int64, error) {
	filter.Filter = filter.Normalize()
	query := conn(ctx, r.db).Model(&models.PaymentModel{}).Where("org_id = ?", orgID)
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var rows []models.PaymentModel
	total, err := paginate(query, filter.Filter, orderClause("", filter.OrderBy, filter.OrderDir, PaymentSortFields, "created_at"), &rows)
	if err != nil {
		return nil, 0, err
	}
	payments := make([]*payment.Payment, len(rows))
	for i := range rows {
		payments[i] = rows[i].ToDomain()
	}
	return payments, total, nil
}

// Save creates or updates a payment
func (r *GormPaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	return saveAggregate(ctx, r.db, r.outboxSaver, p,
		func() any { return models.PaymentModelFromDomain(p) }, nil)
}

var _ payment.PaymentRepository = (*GormPaymentRepository)(nil)
