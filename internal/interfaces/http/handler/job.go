package handler

import (
	schedulingapp "github.com/crewdesk/backend/internal/application/scheduling"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// JobHandler handles the job lifecycle and the dispatch board
type JobHandler struct {
	BaseHandler
	jobService *schedulingapp.JobService
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobService *schedulingapp.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// AddItemsRequest appends billable items to a job
type AddItemsRequest struct {
	Items []schedulingapp.BillableItemRequest `json:"items" binding:"required,min=1,dive"`
}

// actor limits technicians to the jobs they are assigned to
func actor(c *gin.Context) schedulingapp.JobActor {
	return schedulingapp.JobActor{
		UserID:       userID(c),
		AssignedOnly: middleware.GetRole(c) == organization.RoleTechnician,
	}
}

// Create godoc
// @ID           createJob
// @Summary      Schedule a job
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        request body schedulingapp.CreateJobRequest true "Job"
// @Success      201 {object} APIResponse[schedulingapp.JobResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /jobs [post]
func (h *JobHandler) Create(c *gin.Context) {
	var req schedulingapp.CreateJobRequest
	if !h.bindJSON(c, &req) {
		return
	}
	job, err := h.jobService.Create(c.Request.Context(), orgID(c), userID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, job)
}

// GetByID returns one job
func (h *JobHandler) GetByID(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	job, err := h.jobService.GetByID(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// List godoc
// @ID           listJobs
// @Summary      List jobs
// @Tags         jobs
// @Produce      json
// @Param        status query string false "Status" Enums(scheduled, dispatched, in_progress, completed, cancelled)
// @Param        customer_id query string false "Customer" format(uuid)
// @Param        assignee_id query string false "Assigned member" format(uuid)
// @Param        from query string false "Scheduled start at or after (RFC 3339)"
// @Param        to query string false "Scheduled start before (RFC 3339)"
// @Success      200 {object} APIResponse[[]schedulingapp.JobResponse]
// @Security     BearerAuth
// @Router       /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	var filter schedulingapp.JobListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	result, err := h.jobService.List(c.Request.Context(), orgID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, result)
}

// Update changes details and, while not started, the schedule window
func (h *JobHandler) Update(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req schedulingapp.UpdateJobRequest
	if !h.bindJSON(c, &req) {
		return
	}
	job, err := h.jobService.Update(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// Assign replaces the crew on a job
func (h *JobHandler) Assign(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req schedulingapp.AssignJobRequest
	if !h.bindJSON(c, &req) {
		return
	}
	job, err := h.jobService.Assign(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// Dispatch sends a scheduled job to its crew
func (h *JobHandler) Dispatch(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	job, err := h.jobService.Dispatch(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// Start marks a job in progress
func (h *JobHandler) Start(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	job, err := h.jobService.Start(c.Request.Context(), orgID(c), id, actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// Complete godoc
// @ID           completeJob
// @Summary      Complete a job
// @Description  Items sent with the request are recorded before the job closes.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        id path string true "Job ID" format(uuid)
// @Param        request body schedulingapp.TransitionRequest false "Note and items"
// @Success      200 {object} APIResponse[schedulingapp.JobResponse]
// @Failure      403 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /jobs/{id}/complete [post]
func (h *JobHandler) Complete(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req schedulingapp.TransitionRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	job, err := h.jobService.Complete(c.Request.Context(), orgID(c), id, actor(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// Cancel cancels a job that has not completed
func (h *JobHandler) Cancel(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req schedulingapp.TransitionRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	job, err := h.jobService.Cancel(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// AddItems records labour or materials on a job
func (h *JobHandler) AddItems(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req AddItemsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	job, err := h.jobService.AddBillableItems(c.Request.Context(), orgID(c), id, actor(c), req.Items)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// Schedule godoc
// @ID           getSchedule
// @Summary      Dispatch board
// @Description  Non-cancelled jobs overlapping the window, with customer names.
// @Tags         jobs
// @Produce      json
// @Param        from query string true "Window start (RFC 3339)"
// @Param        to query string true "Window end (RFC 3339)"
// @Param        member_id query string false "Only this member's jobs" format(uuid)
// @Success      200 {object} APIResponse[[]schedulingapp.ScheduleEntry]
// @Security     BearerAuth
// @Router       /jobs/schedule [get]
func (h *JobHandler) Schedule(c *gin.Context) {
	var q schedulingapp.ScheduleQuery
	if !h.bindQuery(c, &q) {
		return
	}
	entries, err := h.jobService.Schedule(c.Request.Context(), orgID(c), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}
