package handler

import (
	automationapp "github.com/crewdesk/backend/internal/application/automation"
	"github.com/gin-gonic/gin"
)

// AutomationHandler manages automation rules and their run history
type AutomationHandler struct {
	BaseHandler
	automationService *automationapp.AutomationService
}

// NewAutomationHandler creates a new AutomationHandler
func NewAutomationHandler(automationService *automationapp.AutomationService) *AutomationHandler {
	return &AutomationHandler{automationService: automationService}
}

// Create godoc
// @ID           createAutomation
// @Summary      Create an automation rule
// @Description  Header values of webhook actions are sealed at rest and masked in responses.
// @Tags         automations
// @Accept       json
// @Produce      json
// @Param        request body automationapp.RuleRequest true "Rule"
// @Success      201 {object} APIResponse[automationapp.RuleResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /automations [post]
func (h *AutomationHandler) Create(c *gin.Context) {
	var req automationapp.RuleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	rule, err := h.automationService.Create(c.Request.Context(), orgID(c), userID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rule)
}

// Get returns one rule
func (h *AutomationHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	rule, err := h.automationService.Get(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// List pages through rules
func (h *AutomationHandler) List(c *gin.Context) {
	var filter automationapp.RuleListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	result, err := h.automationService.List(c.Request.Context(), orgID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, result)
}

// Update replaces a rule's definition
func (h *AutomationHandler) Update(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req automationapp.RuleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	rule, err := h.automationService.Update(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// Enable turns a rule on
func (h *AutomationHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

// Disable turns a rule off
func (h *AutomationHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *AutomationHandler) setEnabled(c *gin.Context, enabled bool) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	rule, err := h.automationService.SetEnabled(c.Request.Context(), orgID(c), id, enabled)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// Delete removes a rule; its runs are kept
func (h *AutomationHandler) Delete(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.automationService.Delete(c.Request.Context(), orgID(c), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Trigger godoc
// @ID           triggerAutomation
// @Summary      Run a rule now
// @Description  Dispatches and waits for the run. The payload becomes the trigger event.
// @Tags         automations
// @Accept       json
// @Produce      json
// @Param        id path string true "Rule ID" format(uuid)
// @Param        request body automationapp.ManualTriggerRequest false "Payload"
// @Success      200 {object} APIResponse[automationapp.DispatchResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /automations/{id}/trigger [post]
func (h *AutomationHandler) Trigger(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req automationapp.ManualTriggerRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	result, err := h.automationService.Trigger(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListRuns pages through run history, newest first
func (h *AutomationHandler) ListRuns(c *gin.Context) {
	var filter automationapp.RunListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	result, err := h.automationService.ListRuns(c.Request.Context(), orgID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, result)
}

// GetRun returns one run with its step results
func (h *AutomationHandler) GetRun(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	run, err := h.automationService.GetRun(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, run)
}

// RetryRun re-runs a failed run with its original trigger event
func (h *AutomationHandler) RetryRun(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.automationService.RetryRun(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
