package handler

import (
	automationapp "github.com/crewdesk/backend/internal/application/automation"
	schedulingapp "github.com/crewdesk/backend/internal/application/scheduling"
	"github.com/crewdesk/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ExternalHandler serves the API key authenticated integration surface
type ExternalHandler struct {
	BaseHandler
	automationService *automationapp.AutomationService
	jobService        *schedulingapp.JobService
}

// NewExternalHandler creates a new ExternalHandler
func NewExternalHandler(automationService *automationapp.AutomationService, jobService *schedulingapp.JobService) *ExternalHandler {
	return &ExternalHandler{automationService: automationService, jobService: jobService}
}

// IngestEvent godoc
// @ID           ingestExternalEvent
// @Summary      Fire API-triggered automations
// @Description  Every enabled rule with an api trigger matching event_type runs and is awaited.
// @Description  Resending the same event_id does not run rules twice.
// @Tags         external
// @Accept       json
// @Produce      json
// @Param        request body automationapp.ExternalEventRequest true "Event"
// @Success      202 {object} APIResponse[automationapp.DispatchResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Security     ApiKeyAuth
// @Router       /ext/events [post]
func (h *ExternalHandler) IngestEvent(c *gin.Context) {
	var req automationapp.ExternalEventRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.automationService.IngestExternalEvent(c.Request.Context(), orgID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, result)
}

// ListJobs pages through jobs for an integration
func (h *ExternalHandler) ListJobs(c *gin.Context) {
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

// CreateJob schedules a job on behalf of the key's creator
func (h *ExternalHandler) CreateJob(c *gin.Context) {
	var req schedulingapp.CreateJobRequest
	if !h.bindJSON(c, &req) {
		return
	}
	key := middleware.GetAPIKey(c)
	if key == nil {
		h.Unauthorized(c, "API key required")
		return
	}
	job, err := h.jobService.Create(c.Request.Context(), orgID(c), key.CreatedBy, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, job)
}
