package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	crmapp "github.com/crewdesk/backend/internal/application/crm"
	"github.com/crewdesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// CustomerHandler handles customer CRUD and CSV import
type CustomerHandler struct {
	BaseHandler
	customerService *crmapp.CustomerService
	importService   *crmapp.CustomerImportService
}

// NewCustomerHandler creates a new CustomerHandler
func NewCustomerHandler(customerService *crmapp.CustomerService, importService *crmapp.CustomerImportService) *CustomerHandler {
	return &CustomerHandler{customerService: customerService, importService: importService}
}

// Create godoc
// @ID           createCustomer
// @Summary      Create a customer
// @Tags         customers
// @Accept       json
// @Produce      json
// @Param        request body crmapp.CustomerRequest true "Customer"
// @Success      201 {object} APIResponse[crmapp.CustomerResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /customers [post]
func (h *CustomerHandler) Create(c *gin.Context) {
	var req crmapp.CustomerRequest
	if !h.bindJSON(c, &req) {
		return
	}
	customer, err := h.customerService.Create(c.Request.Context(), orgID(c), userID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, customer)
}

// GetByID godoc
// @ID           getCustomer
// @Summary      Get a customer
// @Tags         customers
// @Produce      json
// @Param        id path string true "Customer ID" format(uuid)
// @Success      200 {object} APIResponse[crmapp.CustomerResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /customers/{id} [get]
func (h *CustomerHandler) GetByID(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	customer, err := h.customerService.GetByID(c.Request.Context(), orgID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, customer)
}

// List godoc
// @ID           listCustomers
// @Summary      List customers
// @Tags         customers
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Param        search query string false "Name, email, phone or company"
// @Param        tag query string false "Only customers carrying this tag"
// @Success      200 {object} APIResponse[[]crmapp.CustomerResponse]
// @Security     BearerAuth
// @Router       /customers [get]
func (h *CustomerHandler) List(c *gin.Context) {
	var filter crmapp.CustomerListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	result, err := h.customerService.List(c.Request.Context(), orgID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, result)
}

// Update replaces a customer's details
func (h *CustomerHandler) Update(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req crmapp.CustomerRequest
	if !h.bindJSON(c, &req) {
		return
	}
	customer, err := h.customerService.Update(c.Request.Context(), orgID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, customer)
}

// Delete archives a customer; existing jobs and documents keep the reference
func (h *CustomerHandler) Delete(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.customerService.Delete(c.Request.Context(), orgID(c), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Import godoc
// @ID           importCustomers
// @Summary      Import customers from CSV
// @Description  Accepts a multipart "file" field or a text/csv body within the request size limit. Nothing is created unless every row is valid.
// @Tags         customers
// @Accept       multipart/form-data,text/csv
// @Produce      json
// @Param        file formData file false "CSV file"
// @Param        dry_run query bool false "Validate only"
// @Param        skip_existing query bool false "Skip rows whose email already exists"
// @Success      200 {object} APIResponse[crmapp.ImportResult]
// @Success      201 {object} APIResponse[crmapp.ImportResult]
// @Failure      400 {object} ErrorResponse
// @Failure      413 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /customers/import [post]
func (h *CustomerHandler) Import(c *gin.Context) {
	opts := crmapp.ImportOptions{
		DryRun:       queryBool(c, "dry_run"),
		SkipExisting: queryBool(c, "skip_existing"),
	}
	var body io.Reader = c.Request.Body
	if c.ContentType() == "multipart/form-data" {
		header, err := c.FormFile("file")
		if err != nil {
			h.importBodyError(c, err, "A CSV file is required in the \"file\" field")
			return
		}
		f, err := header.Open()
		if err != nil {
			h.HandleError(c, err)
			return
		}
		defer f.Close()
		body = f
	}

	result, err := h.importService.Import(c.Request.Context(), orgID(c), userID(c), body, opts)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.importBodyError(c, err, "")
			return
		}
		h.HandleError(c, err)
		return
	}
	if result.Created > 0 {
		h.Created(c, result)
		return
	}
	h.Success(c, result)
}

func (h *CustomerHandler) importBodyError(c *gin.Context, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeBadRequest, "Import file exceeds maximum allowed size")
		return
	}
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, msg)
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}
