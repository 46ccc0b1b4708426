package persistence

import (
	"context"
	"time"

	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOrganizationRepository implements organization.OrganizationRepository
type GormOrganizationRepository struct {
	outboxAware
	db *gorm.DB
}

// NewGormOrganizationRepository creates a new GormOrganizationRepository
func NewGormOrganizationRepository(db *gorm.DB) *GormOrganizationRepository {
	return &GormOrganizationRepository{db: db}
}

func (r *GormOrganizationRepository) findOne(ctx context.Context, query string, args ...any) (*organization.Organization, error) {
	var model models.OrganizationModel
	if err := conn(ctx, r.db).Where(query, args...).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByID finds an organization by ID
func (r *GormOrganizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*organization.Organization, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindBySlug finds an organization by its URL slug
func (r *GormOrganizationRepository) FindBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	return r.findOne(ctx, "slug = ?", slug)
}

// FindByStripeAccountID finds the organization owning a Connect account
func (r *GormOrganizationRepository) FindByStripeAccountID(ctx context.Context, accountID string) (*organization.Organization, error) {
	if accountID == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, "stripe_account_id = ?", accountID)
}

// FindByStripeCustomerID finds the organization billed as a Stripe customer
func (r *GormOrganizationRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*organization.Organization, error) {
	if customerID == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, "stripe_customer_id = ?", customerID)
}

// ExistsBySlug reports whether the slug is taken
func (r *GormOrganizationRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.OrganizationModel{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

// Save creates or updates an organization
func (r *GormOrganizationRepository) Save(ctx context.Context, org *organization.Organization) error {
	return saveAggregate(ctx, r.db, r.outboxSaver, org,
		func() any { return models.OrganizationModelFromDomain(org) }, nil)
}

// GormMemberRepository implements organization.MemberRepository
type GormMemberRepository struct {
	db *gorm.DB
}

// NewGormMemberRepository creates a new GormMemberRepository
func NewGormMemberRepository(db *gorm.DB) *GormMemberRepository {
	return &GormMemberRepository{db: db}
}

// FindByID finds a membership within an organization
func (r *GormMemberRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*organization.Member, error) {
	var model models.MemberModel
	if err := conn(ctx, r.db).Where("org_id = ? AND id = ?", orgID, id).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByOrgAndUser finds a user's membership in an organization
func (r *GormMemberRepository) FindByOrgAndUser(ctx context.Context, orgID, userID uuid.UUID) (*organization.Member, error) {
	var model models.MemberModel
	if err := conn(ctx, r.db).Where("org_id = ? AND user_id = ?", orgID, userID).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByUser lists the user's memberships, oldest first
func (r *GormMemberRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*organization.Member, error) {
	var rows []models.MemberModel
	if err := conn(ctx, r.db).Where("user_id = ?", userID).Order("joined_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	members := make([]*organization.Member, len(rows))
	for i := range rows {
		members[i] = rows[i].ToDomain()
	}
	return members, nil
}

// ListByOrg pages the organization's members joined with their user profile
func (r *GormMemberRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) ([]organization.MemberView, int64, error) {
	filter = filter.Normalize()
	query := conn(ctx, r.db).
		Table("members").
		Joins("JOIN users ON users.id = members.user_id").
		Where("members.org_id = ?", orgID)

	if filter.Search != "" {
		p := likePattern(filter.Search)
		query = query.Where("(LOWER(users.name)"+likeClause+" OR LOWER(users.email)"+likeClause+")", p, p)
	}
	if role, ok := filter.Filters["role"]; ok {
		query = query.Where("members.role = ?", role)
	}
	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("members.status = ?", status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	order := "users.name ASC"
	if filter.OrderBy != "" && filter.OrderBy != "name" {
		order = orderClause("members", filter.OrderBy, filter.OrderDir, MemberSortFields, "joined_at")
	}
	var rows []models.MemberViewRow
	if err := query.
		Select("members.*, users.email AS email, users.name AS name, users.phone AS phone").
		Order(order).Offset(filter.Offset()).Limit(filter.PageSize).
		Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	views := make([]organization.MemberView, len(rows))
	for i := range rows {
		views[i] = rows[i].ToDomain()
	}
	return views, total, nil
}

// CountActive counts active memberships, for seat limits
func (r *GormMemberRepository) CountActive(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.MemberModel{}).
		Where("org_id = ? AND status = ?", orgID, organization.MemberStatusActive).
		Count(&count).Error
	return count, err
}

// Save creates or updates a membership
func (r *GormMemberRepository) Save(ctx context.Context, member *organization.Member) error {
	return upsert(ctx, r.db, models.MemberModelFromDomain(member))
}

// Delete removes a membership and its job assignments
func (r *GormMemberRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var model models.MemberModel
		if err := tx.Where("org_id = ? AND id = ?", orgID, id).First(&model).Error; err != nil {
			return translateError(err)
		}
		if err := tx.Where("org_id = ? AND user_id = ?", orgID, model.UserID).
			Delete(&models.JobAssigneeModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.MemberModel{}, "id = ?", id).Error
	})
}

// GormInvitationRepository implements organization.InvitationRepository
type GormInvitationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormInvitationRepository creates a new GormInvitationRepository
func NewGormInvitationRepository(db *gorm.DB) *GormInvitationRepository {
	return &GormInvitationRepository{db: db, now: time.Now}
}

// FindByTokenHash finds an invitation by the hash of its token
func (r *GormInvitationRepository) FindByTokenHash(ctx context.Context, hash string) (*organization.Invitation, error) {
	var model models.InvitationModel
	if err := conn(ctx, r.db).Where("token_hash = ?", hash).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// ListPending lists open, unexpired invitations
func (r *GormInvitationRepository) ListPending(ctx context.Context, orgID uuid.UUID) ([]*organization.Invitation, error) {
	var rows []models.InvitationModel
	if err := conn(ctx, r.db).
		Where("org_id = ? AND accepted_at IS NULL AND revoked_at IS NULL AND expires_at > ?", orgID, r.now().UTC()).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	invs := make([]*organization.Invitation, len(rows))
	for i := range rows {
		invs[i] = rows[i].ToDomain()
	}
	return invs, nil
}

// FindByID finds an invitation within an organization
func (r *GormInvitationRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*organization.Invitation, error) {
	var model models.InvitationModel
	if err := conn(ctx, r.db).Where("org_id = ? AND id = ?", orgID, id).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Save creates or updates an invitation
func (r *GormInvitationRepository) Save(ctx context.Context, inv *organization.Invitation) error {
	return upsert(ctx, r.db, models.InvitationModelFromDomain(inv))
}

// GormAPIKeyRepository implements organization.APIKeyRepository
type GormAPIKeyRepository struct {
	db *gorm.DB
}

// NewGormAPIKeyRepository creates a new GormAPIKeyRepository
func NewGormAPIKeyRepository(db *gorm.DB) *GormAPIKeyRepository {
	return &GormAPIKeyRepository{db: db}
}

// FindByLookupID finds a key by the public prefix embedded in the plaintext
func (r *GormAPIKeyRepository) FindByLookupID(ctx context.Context, lookupID string) (*organization.APIKey, error) {
	var model models.APIKeyModel
	if err := conn(ctx, r.db).Where("lookup_id = ?", lookupID).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByID finds a key within an organization
func (r *GormAPIKeyRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*organization.APIKey, error) {
	var model models.APIKeyModel
	if err := conn(ctx, r.db).Where("org_id = ? AND id = ?", orgID, id).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// ListByOrg lists every key, revoked ones included
func (r *GormAPIKeyRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*organization.APIKey, error) {
	var rows []models.APIKeyModel
	if err := conn(ctx, r.db).Where("org_id = ?", orgID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	keys := make([]*organization.APIKey, len(rows))
	for i := range rows {
		keys[i] = rows[i].ToDomain()
	}
	return keys, nil
}

// Save creates or updates a key
func (r *GormAPIKeyRepository) Save(ctx context.Context, key *organization.APIKey) error {
	return upsert(ctx, r.db, models.APIKeyModelFromDomain(key))
}

// GormSequenceRepository implements organization.SequenceRepository
type GormSequenceRepository struct {
	db *gorm.DB
}

// NewGormSequenceRepository creates a new GormSequenceRepository
func NewGormSequenceRepository(db *gorm.DB) *GormSequenceRepository {
	return &GormSequenceRepository{db: db}
}

// Next increments the counter in a single upsert so concurrent callers never
// observe the same value
func (r *GormSequenceRepository) Next(ctx context.Context, orgID uuid.UUID, name string) (int64, error) {
	var value int64
	err := conn(ctx, r.db).Raw(`
INSERT INTO document_sequences (org_id, name, value, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT (org_id, name) DO UPDATE
SET value = document_sequences.value + 1, updated_at = excluded.updated_at
RETURNING value`, orgID, name, time.Now().UTC()).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

var (
	_ organization.OrganizationRepository = (*GormOrganizationRepository)(nil)
	_ organization.MemberRepository       = (*GormMemberRepository)(nil)
	_ organization.InvitationRepository   = (*GormInvitationRepository)(nil)
	_ organization.APIKeyRepository       = (*GormAPIKeyRepository)(nil)
	_ organization.SequenceRepository     = (*GormSequenceRepository)(nil)
)
