package handler

import (
	paymentapp "github.com/crewdesk/backend/internal/application/payment"
	"github.com/gin-gonic/gin"
)

// PaymentHandler lists payments and serves Terminal connection tokens
type PaymentHandler struct {
	BaseHandler
	paymentService *paymentapp.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *paymentapp.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// List pages through payments, newest first
func (h *PaymentHandler) List(c *gin.Context) {
	var filter paymentapp.PaymentListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	result, err := h.paymentService.List(c.Request.Context(), orgID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, result)
}

// ConnectionToken godoc
// @ID           terminalConnectionToken
// @Summary      Stripe Terminal connection token
// @Description  Issued on the organization's connected account.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body paymentapp.ConnectionTokenRequest false "Location"
// @Success      200 {object} APIResponse[paymentapp.ConnectionTokenResponse]
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /terminal/connection-token [post]
func (h *PaymentHandler) ConnectionToken(c *gin.Context) {
	var req paymentapp.ConnectionTokenRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	token, err := h.paymentService.ConnectionToken(c.Request.Context(), orgID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, token)
}
