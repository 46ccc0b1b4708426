package persistence

import (
	"context"

	"github.com/crewdesk/backend/internal/domain/billing"
	"github.com/crewdesk/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSubscriptionRepository implements billing.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	outboxAware
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// FindByExternalID finds a subscription by its provider identity
func (r *GormSubscriptionRepository) FindByExternalID(ctx context.Context, provider billing.Provider, externalID string) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := conn(ctx, r.db).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// ListByOrg lists the organization's subscriptions, newest first
func (r *GormSubscriptionRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*billing.Subscription, error) {
	var rows []models.SubscriptionModel
	if err := conn(ctx, r.db).Where("org_id = ?", orgID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	subs := make([]*billing.Subscription, len(rows))
	for i := range rows {
		subs[i] = rows[i].ToDomain()
	}
	return subs, nil
}

// Save creates or updates a subscription
func (r *GormSubscriptionRepository) Save(ctx context.Context, s *billing.Subscription) error {
	return saveAggregate(ctx, r.db, r.outboxSaver, s,
		func() any { return models.SubscriptionModelFromDomain(s) }, nil)
}

var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
