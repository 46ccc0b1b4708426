package handler

import (
	"github.com/crewdesk/backend/internal/application/event"
	"github.com/gin-gonic/gin"
)

// OutboxHandler exposes the organization's event outbox for inspection and
// dead letter recovery
type OutboxHandler struct {
	BaseHandler
	outboxService *event.OutboxService
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outboxService *event.OutboxService) *OutboxHandler {
	return &OutboxHandler{outboxService: outboxService}
}

// RetryAllResponse reports how many dead entries were requeued
type RetryAllResponse struct {
	Retried int64 `json:"retried"`
}

// GetDeadLetterEntries godoc
// @ID           getOutboxDeadLetterEntries
// @Summary      List dead letter entries
// @Description  Events that exhausted their retries
// @Tags         events
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]event.OutboxEntryDTO]
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /events/dead [get]
func (h *OutboxHandler) GetDeadLetterEntries(c *gin.Context) {
	var filter event.OutboxFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	result, err := h.outboxService.GetDeadLetterEntries(c.Request.Context(), orgID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, result)
}

// GetEntry returns a single outbox entry
func (h *OutboxHandler) GetEntry(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	entry, err := h.outboxService.GetEntry(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryDeadEntry requeues one dead entry
func (h *OutboxHandler) RetryDeadEntry(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	entry, err := h.outboxService.RetryDeadEntry(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryAllDeadEntries requeues every dead entry of the organization
func (h *OutboxHandler) RetryAllDeadEntries(c *gin.Context) {
	n, err := h.outboxService.RetryAllDeadEntries(c.Request.Context(), orgID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RetryAllResponse{Retried: n})
}

// GetStats counts entries by status
func (h *OutboxHandler) GetStats(c *gin.Context) {
	stats, err := h.outboxService.GetStats(c.Request.Context(), orgID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
