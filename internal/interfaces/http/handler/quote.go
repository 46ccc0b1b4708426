package handler

import (
	"context"

	salesapp "github.com/crewdesk/backend/internal/application/sales"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// QuoteHandler handles quotes from draft to conversion
type QuoteHandler struct {
	BaseHandler
	quoteService *salesapp.QuoteService
}

// NewQuoteHandler creates a new QuoteHandler
func NewQuoteHandler(quoteService *salesapp.QuoteService) *QuoteHandler {
	return &QuoteHandler{quoteService: quoteService}
}

// Create godoc
// @ID           createQuote
// @Summary      Draft a quote
// @Tags         quotes
// @Accept       json
// @Produce      json
// @Param        request body salesapp.CreateQuoteRequest true "Quote"
// @Success      201 {object} APIResponse[salesapp.QuoteResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /quotes [post]
func (h *QuoteHandler) Create(c *gin.Context) {
	var req salesapp.CreateQuoteRequest
	if !h.bindJSON(c, &req) {
		return
	}
	quote, err := h.quoteService.Create(c.Request.Context(), orgID(c), userID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, quote)
}

// GetByID returns one quote with its lines
func (h *QuoteHandler) GetByID(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	quote, err := h.quoteService.GetByID(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quote)
}

// List pages through quotes
func (h *QuoteHandler) List(c *gin.Context) {
	var filter salesapp.DocumentListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	result, err := h.quoteService.List(c.Request.Context(), orgID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, result)
}

// Update replaces the lines of a draft quote
func (h *QuoteHandler) Update(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req salesapp.UpdateQuoteRequest
	if !h.bindJSON(c, &req) {
		return
	}
	quote, err := h.quoteService.Update(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quote)
}

// Delete removes a draft quote
func (h *QuoteHandler) Delete(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.quoteService.Delete(c.Request.Context(), orgID(c), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Send marks a quote sent and notifies the customer
func (h *QuoteHandler) Send(c *gin.Context) {
	h.transition(c, h.quoteService.Send)
}

// Accept records the customer's acceptance
func (h *QuoteHandler) Accept(c *gin.Context) {
	h.transition(c, h.quoteService.Accept)
}

// Reject records the customer's rejection with an optional reason
func (h *QuoteHandler) Reject(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req salesapp.RejectQuoteRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	quote, err := h.quoteService.Reject(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quote)
}

// Convert godoc
// @ID           convertQuote
// @Summary      Convert an accepted quote into an invoice
// @Tags         quotes
// @Produce      json
// @Param        id path string true "Quote ID" format(uuid)
// @Success      201 {object} APIResponse[salesapp.InvoiceResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /quotes/{id}/convert [post]
func (h *QuoteHandler) Convert(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.quoteService.Convert(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

type quoteTransition = func(ctx context.Context, orgID, id uuid.UUID) (*salesapp.QuoteResponse, error)

func (h *QuoteHandler) transition(c *gin.Context, fn quoteTransition) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	quote, err := fn(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quote)
}
