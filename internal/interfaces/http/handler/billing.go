package handler

import (
	billingapp "github.com/crewdesk/backend/internal/application/billing"
	"github.com/gin-gonic/gin"
)

// BillingHandler serves the organization's own plan and its Stripe Connect account
type BillingHandler struct {
	BaseHandler
	subscriptionService *billingapp.SubscriptionService
	connectService      *billingapp.ConnectService
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(subscriptionService *billingapp.SubscriptionService, connectService *billingapp.ConnectService) *BillingHandler {
	return &BillingHandler{subscriptionService: subscriptionService, connectService: connectService}
}

// GetSubscription godoc
// @ID           getSubscription
// @Summary      Current plan and seat usage
// @Tags         billing
// @Produce      json
// @Success      200 {object} APIResponse[billingapp.SubscriptionResponse]
// @Security     BearerAuth
// @Router       /billing/subscription [get]
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	result, err := h.subscriptionService.Get(c.Request.Context(), orgID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Checkout opens a Stripe Checkout session for a plan
func (h *BillingHandler) Checkout(c *gin.Context) {
	var req billingapp.CheckoutRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.subscriptionService.Checkout(c.Request.Context(), orgID(c), userID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Portal opens the Stripe billing portal
func (h *BillingHandler) Portal(c *gin.Context) {
	var req billingapp.PortalRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	result, err := h.subscriptionService.Portal(c.Request.Context(), orgID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// CreateConnectAccount creates the Express account payments are routed to
func (h *BillingHandler) CreateConnectAccount(c *gin.Context) {
	var req billingapp.ConnectAccountRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	result, err := h.connectService.CreateAccount(c.Request.Context(), orgID(c), userID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// ConnectAccountLink returns a hosted onboarding link
func (h *BillingHandler) ConnectAccountLink(c *gin.Context) {
	var req billingapp.AccountLinkRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	link, err := h.connectService.AccountLink(c.Request.Context(), orgID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, link)
}

// ConnectStatus reports whether the account can take charges
func (h *BillingHandler) ConnectStatus(c *gin.Context) {
	result, err := h.connectService.Status(c.Request.Context(), orgID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
