package persistence

import (
	"context"
	"time"

	"github.com/crewdesk/backend/internal/domain/automation"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRuleRepository implements automation.RuleRepository using GORM
type GormRuleRepository struct {
	outboxAware
	db *gorm.DB
}

// NewGormRuleRepository creates a new GormRuleRepository
func NewGormRuleRepository(db *gorm.DB) *GormRuleRepository {
	return &GormRuleRepository{db: db}
}

// FindByID finds a rule within an organization
func (r *GormRuleRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*automation.Rule, error) {
	var model models.AutomationRuleModel
	if err := conn(ctx, r.db).Where("org_id = ? AND id = ?", orgID, id).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// List pages rules matching the filter
func (r *GormRuleRepository) List(ctx context.Context, orgID uuid.UUID, filter automation.RuleFilter) ([]*automation.Rule, int64, error) {
	filter.Filter = filter.Normalize()
	query := conn(ctx, r.db).Model(&models.AutomationRuleModel{}).Where("org_id = ?", orgID)
	if filter.TriggerType != nil {
		query = query.Where("trigger_type = ?", *filter.TriggerType)
	}
	if filter.Enabled != nil {
		query = query.Where("enabled = ?", *filter.Enabled)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(name)"+likeClause, likePattern(filter.Search))
	}

	var rows []models.AutomationRuleModel
	total, err := paginate(query, filter.Filter, orderClause("", filter.OrderBy, filter.OrderDir, RuleSortFields, "created_at"), &rows)
	if err != nil {
		return nil, 0, err
	}
	return rulesToDomain(rows), total, nil
}

// FindEnabledByTrigger lists the organization's enabled rules for a trigger type
func (r *GormRuleRepository) FindEnabledByTrigger(ctx context.Context, orgID uuid.UUID, trigger automation.TriggerType) ([]*automation.Rule, error) {
	var rows []models.AutomationRuleModel
	if err := conn(ctx, r.db).
		Where("org_id = ? AND trigger_type = ? AND enabled = ?", orgID, trigger, true).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rulesToDomain(rows), nil
}

// FindAllEnabledCron returns enabled cron rules across organizations
func (r *GormRuleRepository) FindAllEnabledCron(ctx context.Context) ([]*automation.Rule, error) {
	var rows []models.AutomationRuleModel
	if err := conn(ctx, r.db).
		Where("trigger_type = ? AND enabled = ?", automation.TriggerCron, true).
		Order("org_id, created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rulesToDomain(rows), nil
}

// MarkTriggered records when a rule last produced a run
func (r *GormRuleRepository) MarkTriggered(ctx context.Context, orgID, id uuid.UUID, at time.Time) error {
	return conn(ctx, r.db).Model(&models.AutomationRuleModel{}).
		Where("org_id = ? AND id = ?", orgID, id).
		UpdateColumn("last_triggered", at).Error
}

// Save creates or updates a rule
func (r *GormRuleRepository) Save(ctx context.Context, rule *automation.Rule) error {
	return saveAggregate(ctx, r.db, r.outboxSaver, rule,
		func() any { return models.AutomationRuleModelFromDomain(rule) }, nil)
}

// Delete removes a rule; its run history is kept
func (r *GormRuleRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res := conn(ctx, r.db).Where("org_id = ? AND id = ?", orgID, id).Delete(&models.AutomationRuleModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func rulesToDomain(rows []models.AutomationRuleModel) []*automation.Rule {
	out := make([]*automation.Rule, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// GormRunRepository implements automation.RunRepository using GORM
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// FindByID finds a run within an organization
func (r *GormRunRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*automation.Run, error) {
	var model models.AutomationRunModel
	if err := conn(ctx, r.db).Where("org_id = ? AND id = ?", orgID, id).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// List pages runs, newest first by default
func (r *GormRunRepository) List(ctx context.Context, orgID uuid.UUID, filter automation.RunFilter) ([]*automation.Run, int64, error) {
	filter.Filter = filter.Normalize()
	query := conn(ctx, r.db).Model(&models.AutomationRunModel{}).Where("org_id = ?", orgID)
	if filter.RuleID != nil {
		query = query.Where("rule_id = ?", *filter.RuleID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var rows []models.AutomationRunModel
	total, err := paginate(query, filter.Filter, orderClause("", filter.OrderBy, filter.OrderDir, RunSortFields, "started_at"), &rows)
	if err != nil {
		return nil, 0, err
	}
	runs := make([]*automation.Run, len(rows))
	for i := range rows {
		runs[i] = rows[i].ToDomain()
	}
	return runs, total, nil
}

// Save creates or updates a run
func (r *GormRunRepository) Save(ctx context.Context, run *automation.Run) error {
	return upsert(ctx, r.db, models.AutomationRunModelFromDomain(run))
}

var (
	_ automation.RuleRepository = (*GormRuleRepository)(nil)
	_ automation.RunRepository  = (*GormRunRepository)(nil)
)
