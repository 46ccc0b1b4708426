package persistence

import (
	"context"
	"time"

	"github.com/crewdesk/backend/internal/domain/scheduling"
	"github.com/crewdesk/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var terminalJobStatuses = []scheduling.JobStatus{scheduling.JobStatusCompleted, scheduling.JobStatusCancelled}

// GormJobRepository implements scheduling.JobRepository using GORM
type GormJobRepository struct {
	outboxAware
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// FindByID finds a job with its assignees
func (r *GormJobRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*scheduling.Job, error) {
	var model models.JobModel
	if err := conn(ctx, r.db).Preload("Assignees").
		Where("org_id = ? AND id = ?", orgID, id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// List pages jobs matching the filter
func (r *GormJobRepository) List(ctx context.Context, orgID uuid.UUID, filter scheduling.JobFilter) ([]*scheduling.Job, int64, error) {
	filter.Filter = filter.Normalize()
	query := conn(ctx, r.db).Model(&models.JobModel{}).Where("jobs.org_id = ?", orgID)

	if filter.Status != nil {
		query = query.Where("jobs.status = ?", *filter.Status)
	}
	if filter.CustomerID != nil {
		query = query.Where("jobs.customer_id = ?", *filter.CustomerID)
	}
	if filter.AssigneeID != nil {
		query = query.Where("EXISTS (SELECT 1 FROM job_assignees ja WHERE ja.job_id = jobs.id AND ja.user_id = ?)", *filter.AssigneeID)
	}
	if filter.From != nil {
		query = query.Where("jobs.scheduled_end > ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("jobs.scheduled_start < ?", filter.To.UTC())
	}
	if filter.Search != "" {
		query = query.Where("LOWER(jobs.title)"+likeClause, likePattern(filter.Search))
	}

	var rows []models.JobModel
	order := orderClause("jobs", filter.OrderBy, filter.OrderDir, JobSortFields, "scheduled_start")
	total, err := paginate(query, filter.Filter, order, &rows, "Assignees")
	if err != nil {
		return nil, 0, err
	}
	return jobsToDomain(rows), total, nil
}

// FindInRange returns jobs intersecting [from, to), ordered by start
func (r *GormJobRepository) FindInRange(ctx context.Context, orgID uuid.UUID, from, to time.Time, assigneeID *uuid.UUID) ([]*scheduling.Job, error) {
	query := conn(ctx, r.db).Preload("Assignees").
		Where("jobs.org_id = ? AND jobs.scheduled_start < ? AND jobs.scheduled_end > ?", orgID, to.UTC(), from.UTC())
	if assigneeID != nil {
		query = query.Where("EXISTS (SELECT 1 FROM job_assignees ja WHERE ja.job_id = jobs.id AND ja.user_id = ?)", *assigneeID)
	}
	var rows []models.JobModel
	if err := query.Order("jobs.scheduled_start ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return jobsToDomain(rows), nil
}

// FindConflicts returns the assignee's active jobs overlapping [start, end)
func (r *GormJobRepository) FindConflicts(ctx context.Context, orgID, assigneeID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]*scheduling.Job, error) {
	var rows []models.JobModel
	err := conn(ctx, r.db).Preload("Assignees").
		Joins("JOIN job_assignees ja ON ja.job_id = jobs.id").
		Where("jobs.org_id = ? AND ja.user_id = ?", orgID, assigneeID).
		Where("jobs.status NOT IN ?", terminalJobStatuses).
		Where("jobs.scheduled_start < ? AND jobs.scheduled_end > ?", end.UTC(), start.UTC()).
		Where("jobs.id <> ?", excludeID).
		Order("jobs.scheduled_start ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return jobsToDomain(rows), nil
}

// Save creates or updates a job and replaces its assignee set
func (r *GormJobRepository) Save(ctx context.Context, job *scheduling.Job) error {
	var model *models.JobModel
	return saveAggregate(ctx, r.db, r.outboxSaver, job,
		func() any {
			model = models.JobModelFromDomain(job)
			return model
		},
		func(tx *gorm.DB) error {
			if err := tx.Where("job_id = ?", job.ID).Delete(&models.JobAssigneeModel{}).Error; err != nil {
				return err
			}
			if len(model.Assignees) == 0 {
				return nil
			}
			return tx.Create(&model.Assignees).Error
		})
}

func jobsToDomain(rows []models.JobModel) []*scheduling.Job {
	out := make([]*scheduling.Job, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ scheduling.JobRepository = (*GormJobRepository)(nil)
