package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/scheduling"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxScheduleRange bounds the window of one schedule query
const MaxScheduleRange = 62 * 24 * time.Hour

// JobService handles job scheduling and the job lifecycle
type JobService struct {
	jobRepo      scheduling.JobRepository
	customerRepo crm.CustomerRepository
	memberRepo   organization.MemberRepository
	logger       *zap.Logger
	now          func() time.Time
}

// NewJobService creates a new JobService
func NewJobService(
	jobRepo scheduling.JobRepository,
	customerRepo crm.CustomerRepository,
	memberRepo organization.MemberRepository,
	logger *zap.Logger,
) *JobService {
	return &JobService{
		jobRepo:      jobRepo,
		customerRepo: customerRepo,
		memberRepo:   memberRepo,
		logger:       logger,
		now:          time.Now,
	}
}

// Create schedules a job, optionally with its crew
func (s *JobService) Create(ctx context.Context, orgID, createdBy uuid.UUID, req CreateJobRequest) (*JobResponse, error) {
	if _, err := s.customerRepo.FindByID(ctx, orgID, req.CustomerID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.InvalidInput("Customer does not exist")
		}
		return nil, err
	}
	job, err := scheduling.NewJob(orgID, req.CustomerID, scheduling.JobDetails{
		Title:       req.Title,
		Description: req.Description,
		Address:     req.Address,
		Priority:    scheduling.Priority(req.Priority),
	}, req.ScheduledStart, req.ScheduledEnd)
	if err != nil {
		return nil, err
	}
	job.SetCreatedBy(createdBy)

	if len(req.AssigneeIDs) > 0 {
		if err := s.checkCrew(ctx, job, req.AssigneeIDs); err != nil {
			return nil, err
		}
		if err := job.Assign(req.AssigneeIDs); err != nil {
			return nil, err
		}
	}

	if err := s.jobRepo.Save(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("Job created",
		zap.String("org_id", orgID.String()),
		zap.String("job_id", job.ID.String()),
		zap.Time("scheduled_start", job.ScheduledStart))
	response := ToJobResponse(job)
	return &response, nil
}

// GetByID retrieves a job
func (s *JobService) GetByID(ctx context.Context, orgID, id uuid.UUID) (*JobResponse, error) {
	job, err := s.jobRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	response := ToJobResponse(job)
	return &response, nil
}

// List retrieves jobs with filtering and pagination
func (s *JobService) List(ctx context.Context, orgID uuid.UUID, filter JobListFilter) (*shared.Paginated[JobResponse], error) {
	f := scheduling.JobFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
			Search:   filter.Search,
		}.Normalize(),
		From: filter.From,
		To:   filter.To,
	}
	var err error
	if f.CustomerID, err = shared.ParseOptionalID("customer_id", filter.CustomerID); err != nil {
		return nil, err
	}
	if f.AssigneeID, err = shared.ParseOptionalID("assignee_id", filter.AssigneeID); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		status := scheduling.JobStatus(filter.Status)
		f.Status = &status
	}
	jobs, total, err := s.jobRepo.List(ctx, orgID, f)
	if err != nil {
		return nil, err
	}
	items := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		items[i] = ToJobResponse(j)
	}
	page := shared.NewPaginated(items, total, f.Page, f.PageSize)
	return &page, nil
}

// Update edits a job's details and, when given, its time window. Moving the
// window re-checks the crew for overlaps.
func (s *JobService) Update(ctx context.Context, orgID, id uuid.UUID, req UpdateJobRequest) (*JobResponse, error) {
	job, err := s.jobRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := job.UpdateDetails(scheduling.JobDetails{
		Title:       req.Title,
		Description: req.Description,
		Address:     req.Address,
		Priority:    scheduling.Priority(req.Priority),
	}); err != nil {
		return nil, err
	}

	start, end := job.ScheduledStart, job.ScheduledEnd
	if req.ScheduledStart != nil {
		start = *req.ScheduledStart
	}
	if req.ScheduledEnd != nil {
		end = *req.ScheduledEnd
	}
	if !start.Equal(job.ScheduledStart) || !end.Equal(job.ScheduledEnd) {
		if err := job.Reschedule(start, end); err != nil {
			return nil, err
		}
		if err := s.checkConflicts(ctx, job, job.Assignees); err != nil {
			return nil, err
		}
	}

	if err := s.jobRepo.Save(ctx, job); err != nil {
		return nil, err
	}
	response := ToJobResponse(job)
	return &response, nil
}

// Assign replaces the crew. Every assignee must be an active member with no
// other active job overlapping this one.
func (s *JobService) Assign(ctx context.Context, orgID, id uuid.UUID, req AssignJobRequest) (*JobResponse, error) {
	job, err := s.jobRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCrew(ctx, job, req.AssigneeIDs); err != nil {
		return nil, err
	}
	if err := job.Assign(req.AssigneeIDs); err != nil {
		return nil, err
	}
	if err := s.jobRepo.Save(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("Job assigned",
		zap.String("org_id", orgID.String()),
		zap.String("job_id", id.String()),
		zap.Int("crew_size", len(job.Assignees)))
	response := ToJobResponse(job)
	return &response, nil
}

func (s *JobService) checkCrew(ctx context.Context, job *scheduling.Job, userIDs []uuid.UUID) error {
	for _, userID := range userIDs {
		member, err := s.memberRepo.FindByOrgAndUser(ctx, job.OrgID, userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.InvalidInput(fmt.Sprintf("User %s is not a member of this organization", userID))
			}
			return err
		}
		if !member.IsActive() {
			return shared.InvalidInput(fmt.Sprintf("Member %s is suspended", userID))
		}
	}
	return s.checkConflicts(ctx, job, userIDs)
}

// checkConflicts fails with INVALID_STATE naming the first overlapping job
func (s *JobService) checkConflicts(ctx context.Context, job *scheduling.Job, userIDs []uuid.UUID) error {
	for _, userID := range userIDs {
		conflicts, err := s.jobRepo.FindConflicts(ctx, job.OrgID, userID, job.ScheduledStart, job.ScheduledEnd, job.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			c := conflicts[0]
			return shared.NewDomainError("INVALID_STATE", fmt.Sprintf(
				"Member %s is already booked on job %s from %s to %s",
				userID, c.ID, c.ScheduledStart.Format(time.RFC3339), c.ScheduledEnd.Format(time.RFC3339)))
		}
	}
	return nil
}

// Dispatch sends a job to its crew
func (s *JobService) Dispatch(ctx context.Context, orgID, id uuid.UUID) (*JobResponse, error) {
	return s.transition(ctx, orgID, id, nil, func(job *scheduling.Job, now time.Time) error {
		return job.Dispatch(now)
	})
}

// Start records arrival on site
func (s *JobService) Start(ctx context.Context, orgID, id uuid.UUID, actor JobActor) (*JobResponse, error) {
	return s.transition(ctx, orgID, id, &actor, func(job *scheduling.Job, now time.Time) error {
		return job.Start(now)
	})
}

// Complete closes a job, recording any billable items first
func (s *JobService) Complete(ctx context.Context, orgID, id uuid.UUID, actor JobActor, req TransitionRequest) (*JobResponse, error) {
	return s.transition(ctx, orgID, id, &actor, func(job *scheduling.Job, now time.Time) error {
		for _, item := range req.Items {
			if err := job.AddBillableItem(scheduling.BillableItem(item)); err != nil {
				return err
			}
		}
		return job.Complete(now, req.Note)
	})
}

// Cancel abandons a job
func (s *JobService) Cancel(ctx context.Context, orgID, id uuid.UUID, req TransitionRequest) (*JobResponse, error) {
	return s.transition(ctx, orgID, id, nil, func(job *scheduling.Job, now time.Time) error {
		return job.Cancel(now, req.Note)
	})
}

// AddBillableItems records labour or materials without changing status
func (s *JobService) AddBillableItems(ctx context.Context, orgID, id uuid.UUID, actor JobActor, items []BillableItemRequest) (*JobResponse, error) {
	if len(items) == 0 {
		return nil, shared.InvalidInput("At least one item is required")
	}
	return s.transition(ctx, orgID, id, &actor, func(job *scheduling.Job, _ time.Time) error {
		for _, item := range items {
			if err := job.AddBillableItem(scheduling.BillableItem(item)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *JobService) transition(ctx context.Context, orgID, id uuid.UUID, actor *JobActor, apply func(*scheduling.Job, time.Time) error) (*JobResponse, error) {
	job, err := s.jobRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.AssignedOnly && !job.IsAssignedTo(actor.UserID) {
		return nil, shared.Forbidden("You are not assigned to this job")
	}
	if err := apply(job, s.now()); err != nil {
		return nil, err
	}
	if err := s.jobRepo.Save(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("Job status changed",
		zap.String("org_id", orgID.String()),
		zap.String("job_id", id.String()),
		zap.String("status", string(job.Status)))
	response := ToJobResponse(job)
	return &response, nil
}

// TransitionJob moves a job to status on behalf of an automation
func (s *JobService) TransitionJob(ctx context.Context, orgID, jobID uuid.UUID, status scheduling.JobStatus, note string) (*scheduling.Job, error) {
	job, err := s.jobRepo.FindByID(ctx, orgID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == status {
		return job, nil
	}
	now := s.now()
	switch status {
	case scheduling.JobStatusDispatched:
		err = job.Dispatch(now)
	case scheduling.JobStatusInProgress:
		err = job.Start(now)
	case scheduling.JobStatusCompleted:
		err = job.Complete(now, note)
	case scheduling.JobStatusCancelled:
		err = job.Cancel(now, note)
	default:
		err = shared.InvalidInput("Automations cannot move a job to " + string(status))
	}
	if err != nil {
		return nil, err
	}
	if err := s.jobRepo.Save(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("Job status changed by automation",
		zap.String("org_id", orgID.String()),
		zap.String("job_id", jobID.String()),
		zap.String("status", string(status)))
	return job, nil
}

// Schedule returns jobs intersecting [from, to), optionally for one member,
// with customer names for the board
func (s *JobService) Schedule(ctx context.Context, orgID uuid.UUID, q ScheduleQuery) ([]ScheduleEntry, error) {
	if !q.To.After(q.From) {
		return nil, shared.InvalidInput("'to' must be after 'from'")
	}
	if q.To.Sub(q.From) > MaxScheduleRange {
		return nil, shared.InvalidInput("Schedule range cannot exceed 62 days")
	}
	memberID, err := shared.ParseOptionalID("member_id", q.MemberID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.jobRepo.FindInRange(ctx, orgID, q.From, q.To, memberID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(jobs))
	seen := make(map[uuid.UUID]bool, len(jobs))
	for _, j := range jobs {
		if !seen[j.CustomerID] {
			seen[j.CustomerID] = true
			ids = append(ids, j.CustomerID)
		}
	}
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) > 0 {
		customers, err := s.customerRepo.FindByIDs(ctx, orgID, ids)
		if err != nil {
			return nil, err
		}
		for _, c := range customers {
			names[c.ID] = c.Name
		}
	}

	entries := make([]ScheduleEntry, len(jobs))
	for i, j := range jobs {
		entries[i] = ScheduleEntry{JobResponse: ToJobResponse(j), CustomerName: names[j.CustomerID]}
	}
	return entries, nil
}
