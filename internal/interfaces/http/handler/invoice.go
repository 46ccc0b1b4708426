package handler

import (
	paymentapp "github.com/crewdesk/backend/internal/application/payment"
	salesapp "github.com/crewdesk/backend/internal/application/sales"
	"github.com/gin-gonic/gin"
)

// InvoiceHandler handles invoices and the payments taken against them
type InvoiceHandler struct {
	BaseHandler
	invoiceService *salesapp.InvoiceService
	paymentService *paymentapp.PaymentService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *salesapp.InvoiceService, paymentService *paymentapp.PaymentService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService, paymentService: paymentService}
}

// Create drafts an invoice from explicit lines
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req salesapp.CreateInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}
	invoice, err := h.invoiceService.Create(c.Request.Context(), orgID(c), userID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// GetByID returns one invoice with lines and balance
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.invoiceService.GetByID(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// List godoc
// @ID           listInvoices
// @Summary      List invoices
// @Tags         invoices
// @Produce      json
// @Param        status query string false "Status" Enums(draft, sent, partially_paid, paid, void)
// @Param        customer_id query string false "Customer" format(uuid)
// @Param        job_id query string false "Job" format(uuid)
// @Param        overdue query bool false "Only past due with a balance"
// @Success      200 {object} APIResponse[[]salesapp.InvoiceResponse]
// @Security     BearerAuth
// @Router       /invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	var filter salesapp.DocumentListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	result, err := h.invoiceService.List(c.Request.Context(), orgID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, result)
}

// Update replaces the lines of a draft invoice
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req salesapp.UpdateInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}
	invoice, err := h.invoiceService.Update(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Send issues the invoice to the customer
func (h *InvoiceHandler) Send(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.invoiceService.Send(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Void cancels an invoice that has no payments
func (h *InvoiceHandler) Void(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req salesapp.VoidInvoiceRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	invoice, err := h.invoiceService.Void(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// CreateFromJob godoc
// @ID           invoiceJob
// @Summary      Invoice a completed job
// @Description  Lines are copied from the job's billable items. A job is invoiced at most once.
// @Tags         jobs
// @Produce      json
// @Param        id path string true "Job ID" format(uuid)
// @Success      201 {object} APIResponse[salesapp.InvoiceResponse]
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /jobs/{id}/invoice [post]
func (h *InvoiceHandler) CreateFromJob(c *gin.Context) {
	jobID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.invoiceService.InvoiceJob(c.Request.Context(), orgID(c), jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// RecordPayment godoc
// @ID           recordPayment
// @Summary      Record a cash or check payment
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body paymentapp.ManualPaymentRequest true "Payment"
// @Success      201 {object} APIResponse[paymentapp.PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/{id}/payments [post]
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req paymentapp.ManualPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	payment, err := h.paymentService.RecordManual(c.Request.Context(), orgID(c), id, userID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, payment)
}

// CreatePaymentIntent starts a card payment for the open balance,
// online or on a Terminal reader
func (h *InvoiceHandler) CreatePaymentIntent(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req paymentapp.PaymentIntentRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	intent, err := h.paymentService.CreateIntent(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, intent)
}
