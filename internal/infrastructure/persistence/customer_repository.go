package persistence

import (
	"context"
	"strings"

	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCustomerRepository implements crm.CustomerRepository using GORM
type GormCustomerRepository struct {
	outboxAware
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// FindByID finds a customer within an organization
func (r *GormCustomerRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*crm.Customer, error) {
	var model models.CustomerModel
	if err := conn(ctx, r.db).Where("org_id = ? AND id = ?", orgID, id).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByIDs finds multiple customers by their IDs
func (r *GormCustomerRepository) FindByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*crm.Customer, error) {
	if len(ids) == 0 {
		return []*crm.Customer{}, nil
	}
	var rows []models.CustomerModel
	if err := conn(ctx, r.db).Where("org_id = ? AND id IN ?", orgID, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return customersToDomain(rows), nil
}

// List pages customers matching the filter
func (r *GormCustomerRepository) List(ctx context.Context, orgID uuid.UUID, filter crm.CustomerFilter) ([]*crm.Customer, int64, error) {
	filter.Filter = filter.Normalize()
	query := conn(ctx, r.db).Model(&models.CustomerModel{}).Where("org_id = ?", orgID)

	if !filter.IncludeArchived {
		query = query.Where("archived = ?", false)
	}
	if filter.Search != "" {
		p := likePattern(filter.Search)
		query = query.Where(
			"(LOWER(name)"+likeClause+" OR LOWER(email)"+likeClause+" OR LOWER(company)"+likeClause+" OR phone"+likeClause+")",
			p, p, p, p)
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		query = r.withTag(query, tag)
	}

	var rows []models.CustomerModel
	total, err := paginate(query, filter.Filter, orderClause("", filter.OrderBy, filter.OrderDir, CustomerSortFields, "created_at"), &rows)
	if err != nil {
		return nil, 0, err
	}
	return customersToDomain(rows), total, nil
}

// withTag filters on membership of the JSON tags array
func (r *GormCustomerRepository) withTag(query *gorm.DB, tag string) *gorm.DB {
	if isPostgres(r.db) {
		return query.Where("tags @> ?::jsonb", `["`+strings.ReplaceAll(tag, `"`, `\"`)+`"]`)
	}
	return query.Where("EXISTS (SELECT 1 FROM json_each(customers.tags) WHERE json_each.value = ?)", tag)
}

// Save creates or updates a customer
func (r *GormCustomerRepository) Save(ctx context.Context, c *crm.Customer) error {
	return saveAggregate(ctx, r.db, r.outboxSaver, c,
		func() any { return models.CustomerModelFromDomain(c) }, nil)
}

// ExistingEmails returns the subset of emails used by customers of orgID
func (r *GormCustomerRepository) ExistingEmails(ctx context.Context, orgID uuid.UUID, emails []string) (map[string]bool, error) {
	found := make(map[string]bool)
	for start := 0; start < len(emails); start += emailLookupBatch {
		batch := emails[start:min(start+emailLookupBatch, len(emails))]
		var hits []string
		err := conn(ctx, r.db).Model(&models.CustomerModel{}).
			Where("org_id = ? AND email IN ?", orgID, batch).
			Distinct().Pluck("email", &hits).Error
		if err != nil {
			return nil, err
		}
		for _, e := range hits {
			found[e] = true
		}
	}
	return found, nil
}

const emailLookupBatch = 500

func customersToDomain(rows []models.CustomerModel) []*crm.Customer {
	out := make([]*crm.Customer, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var (
	_ crm.CustomerRepository = (*GormCustomerRepository)(nil)
	_ crm.CustomerEmailIndex = (*GormCustomerRepository)(nil)
)
