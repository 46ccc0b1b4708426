package handler

import (
	"errors"
	"net/http"

	billingapp "github.com/crewdesk/backend/internal/application/billing"
	"github.com/crewdesk/backend/internal/infrastructure/billing"
	"github.com/crewdesk/backend/internal/infrastructure/logger"
	"github.com/crewdesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler receives provider deliveries. Only signature failures are
// reported as errors; anything after verification answers 200 so the
// provider does not retry an event that was already recorded.
type WebhookHandler struct {
	BaseHandler
	webhookService *billingapp.WebhookService
	recorder       WebhookRecorder
}

// WebhookRecorder counts deliveries per provider and outcome
type WebhookRecorder interface {
	Webhook(provider, outcome string)
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(webhookService *billingapp.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// WithMetrics records every delivery on r
func (h *WebhookHandler) WithMetrics(r WebhookRecorder) *WebhookHandler {
	h.recorder = r
	return h
}

// Stripe godoc
// @ID           stripeWebhook
// @Summary      Stripe webhook
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Signature"
// @Success      200 {object} APIResponse[billingapp.WebhookResult]
// @Failure      401 {object} ErrorResponse
// @Router       /webhooks/stripe [post]
func (h *WebhookHandler) Stripe(c *gin.Context) {
	body, ok := h.body(c)
	if !ok {
		return
	}
	result, err := h.webhookService.HandleStripe(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
	h.record("stripe", result, err)
	h.respond(c, result, err)
}

// Polar receives Standard Webhooks deliveries from Polar
func (h *WebhookHandler) Polar(c *gin.Context) {
	body, ok := h.body(c)
	if !ok {
		return
	}
	result, err := h.webhookService.HandlePolar(c.Request.Context(), c.Request.Header, body)
	h.record("polar", result, err)
	h.respond(c, result, err)
}

// RevenueCat receives RevenueCat deliveries authenticated by a shared bearer value
func (h *WebhookHandler) RevenueCat(c *gin.Context) {
	body, ok := h.body(c)
	if !ok {
		return
	}
	result, err := h.webhookService.HandleRevenueCat(c.Request.Context(), c.GetHeader("Authorization"), body)
	h.record("revenuecat", result, err)
	h.respond(c, result, err)
}

func (h *WebhookHandler) body(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		h.BadRequest(c, "Unreadable body")
		return nil, false
	}
	return body, true
}

func (h *WebhookHandler) respond(c *gin.Context, result *billingapp.WebhookResult, err error) {
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Invalid webhook signature")
			return
		}
		h.HandleError(c, err)
		return
	}
	if !result.Processed && !result.Duplicate && result.Message != "" {
		logger.GetGinLogger(c).Warn("Webhook not processed",
			zap.String("provider", result.Provider),
			zap.String("event_id", result.EventID),
			zap.String("event_type", result.EventType),
			zap.String("reason", result.Message))
	}
	h.Success(c, result)
}

func (h *WebhookHandler) record(provider string, result *billingapp.WebhookResult, err error) {
	if h.recorder == nil {
		return
	}
	h.recorder.Webhook(provider, webhookOutcome(result, err))
}

func webhookOutcome(result *billingapp.WebhookResult, err error) string {
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		return "invalid_signature"
	case err != nil:
		return "error"
	case result.Duplicate:
		return "duplicate"
	case result.Processed:
		return "processed"
	default:
		return "ignored"
	}
}
