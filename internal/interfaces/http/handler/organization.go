package handler

import (
	"time"

	orgapp "github.com/crewdesk/backend/internal/application/organization"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/crewdesk/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrganizationHandler serves the organization profile, members, invitations and API keys
type OrganizationHandler struct {
	BaseHandler
	orgService *orgapp.OrganizationService
}

// NewOrganizationHandler creates a new OrganizationHandler
func NewOrganizationHandler(orgService *orgapp.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgService: orgService}
}

// CreateOrganizationRequest starts a new organization owned by the caller
type CreateOrganizationRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=200" example:"Acme Plumbing"`
	Slug     string `json:"slug" binding:"omitempty,min=3,max=63" example:"acme-plumbing"`
	Timezone string `json:"timezone" binding:"omitempty,max=64" example:"America/Denver"`
	Currency string `json:"currency" binding:"omitempty,currency" example:"USD"`
}

// UpdateOrganizationRequest changes the profile and invoicing defaults.
// Omitted pointer fields keep their value.
type UpdateOrganizationRequest struct {
	Name             string              `json:"name" binding:"required,min=1,max=200"`
	Timezone         string              `json:"timezone" binding:"omitempty,max=64"`
	Locale           string              `json:"locale" binding:"omitempty,max=16"`
	Phone            string              `json:"phone" binding:"max=50"`
	Email            string              `json:"email" binding:"omitempty,email,max=254"`
	Address          valueobject.Address `json:"address"`
	Currency         *string             `json:"currency" binding:"omitempty,currency"`
	InvoicePrefix    *string             `json:"invoice_prefix" binding:"omitempty,max=10"`
	QuotePrefix      *string             `json:"quote_prefix" binding:"omitempty,max=10"`
	DefaultTaxRate   *decimal.Decimal    `json:"default_tax_rate"`
	PaymentTermsDays *int                `json:"payment_terms_days" binding:"omitempty,min=0,max=365"`
	QuoteValidDays   *int                `json:"quote_valid_days" binding:"omitempty,min=1,max=365"`
}

// MemberListRequest pages through members
type MemberListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Search   string `form:"search"`
}

// AddMemberRequest adds an existing user by email
type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=admin dispatcher technician viewer"`
}

// ChangeRoleRequest changes a member's role
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin dispatcher technician viewer"`
}

// CreateInvitationRequest invites someone by email
type CreateInvitationRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=admin dispatcher technician viewer"`
}

// AcceptInvitationRequest redeems an invitation token
type AcceptInvitationRequest struct {
	Token string `json:"token" binding:"required"`
}

// TransferOwnershipRequest hands the owner role to another member
type TransferOwnershipRequest struct {
	MemberID uuid.UUID `json:"member_id" binding:"required"`
}

// CreateAPIKeyRequest issues a key for the external API
type CreateAPIKeyRequest struct {
	Name      string     `json:"name" binding:"required,min=1,max=100" example:"Zapier"`
	Scopes    []string   `json:"scopes" binding:"required,min=1,dive,oneof=events:write jobs:read jobs:write"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// MemberResponse is the API view of a membership
type MemberResponse struct {
	ID       uuid.UUID `json:"id"`
	OrgID    uuid.UUID `json:"org_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

func toMemberResponse(m *organization.Member) MemberResponse {
	return MemberResponse{
		ID:       m.ID,
		OrgID:    m.OrgID,
		UserID:   m.UserID,
		Role:     string(m.Role),
		Status:   string(m.Status),
		JoinedAt: m.JoinedAt,
	}
}

// Create godoc
// @ID           createOrganization
// @Summary      Create an organization
// @Description  The caller becomes the owner. A slug is derived from the name when omitted.
// @Tags         organizations
// @Accept       json
// @Produce      json
// @Param        request body CreateOrganizationRequest true "Organization"
// @Success      201 {object} APIResponse[orgapp.OrganizationResult]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /orgs [post]
func (h *OrganizationHandler) Create(c *gin.Context) {
	var req CreateOrganizationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.orgService.Create(c.Request.Context(), orgapp.CreateOrganizationInput{
		OwnerID:  userID(c),
		Name:     req.Name,
		Slug:     req.Slug,
		Timezone: req.Timezone,
		Currency: req.Currency,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// GetCurrent returns the organization the request acts on
func (h *OrganizationHandler) GetCurrent(c *gin.Context) {
	result, err := h.orgService.Get(c.Request.Context(), orgID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// UpdateCurrent changes the profile and invoicing defaults
func (h *OrganizationHandler) UpdateCurrent(c *gin.Context) {
	var req UpdateOrganizationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.orgService.Update(c.Request.Context(), orgapp.UpdateOrganizationInput{
		OrgID:            orgID(c),
		Name:             req.Name,
		Timezone:         req.Timezone,
		Locale:           req.Locale,
		Phone:            req.Phone,
		Email:            req.Email,
		Address:          req.Address,
		Currency:         req.Currency,
		InvoicePrefix:    req.InvoicePrefix,
		QuotePrefix:      req.QuotePrefix,
		DefaultTaxRate:   req.DefaultTaxRate,
		PaymentTermsDays: req.PaymentTermsDays,
		QuoteValidDays:   req.QuoteValidDays,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// TransferOwnership makes another member the owner. Only the owner may call it.
func (h *OrganizationHandler) TransferOwnership(c *gin.Context) {
	var req TransferOwnershipRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.orgService.TransferOwnership(c.Request.Context(), orgID(c), userID(c), req.MemberID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ListMembers godoc
// @ID           listMembers
// @Summary      List organization members
// @Tags         members
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Param        search query string false "Name or email"
// @Success      200 {object} APIResponse[[]orgapp.MemberResult]
// @Security     BearerAuth
// @Router       /members [get]
func (h *OrganizationHandler) ListMembers(c *gin.Context) {
	var req MemberListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	filter := shared.DefaultFilter()
	filter.Search = req.Search
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	result, err := h.orgService.ListMembers(c.Request.Context(), orgID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, result)
}

// AddMember adds an existing user to the organization
func (h *OrganizationHandler) AddMember(c *gin.Context) {
	var req AddMemberRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.orgService.AddMember(c.Request.Context(), orgapp.AddMemberInput{
		OrgID: orgID(c),
		Email: req.Email,
		Role:  organization.Role(req.Role),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// ChangeRole changes a member's role
func (h *OrganizationHandler) ChangeRole(c *gin.Context) {
	memberID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	member, err := h.orgService.ChangeRole(c.Request.Context(), orgapp.ChangeRoleInput{
		OrgID:     orgID(c),
		ActorRole: middleware.GetRole(c),
		MemberID:  memberID,
		Role:      organization.Role(req.Role),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toMemberResponse(member))
}

// RemoveMember removes a member. The owner cannot be removed.
func (h *OrganizationHandler) RemoveMember(c *gin.Context) {
	memberID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.orgService.RemoveMember(c.Request.Context(), orgID(c), middleware.GetRole(c), memberID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// CreateInvitation godoc
// @ID           createInvitation
// @Summary      Invite someone by email
// @Description  The response carries the one-time token; it is not retrievable later.
// @Tags         members
// @Accept       json
// @Produce      json
// @Param        request body CreateInvitationRequest true "Invitation"
// @Success      201 {object} APIResponse[orgapp.InvitationResult]
// @Failure      402 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /invitations [post]
func (h *OrganizationHandler) CreateInvitation(c *gin.Context) {
	var req CreateInvitationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.orgService.CreateInvitation(c.Request.Context(), orgapp.CreateInvitationInput{
		OrgID:     orgID(c),
		InvitedBy: userID(c),
		ActorRole: middleware.GetRole(c),
		Email:     req.Email,
		Role:      organization.Role(req.Role),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// ListInvitations returns pending invitations
func (h *OrganizationHandler) ListInvitations(c *gin.Context) {
	result, err := h.orgService.ListInvitations(c.Request.Context(), orgID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RevokeInvitation cancels a pending invitation
func (h *OrganizationHandler) RevokeInvitation(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.orgService.RevokeInvitation(c.Request.Context(), orgID(c), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// AcceptInvitation joins the caller to the inviting organization
func (h *OrganizationHandler) AcceptInvitation(c *gin.Context) {
	var req AcceptInvitationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	member, err := h.orgService.AcceptInvitation(c.Request.Context(), userID(c), req.Token)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toMemberResponse(member))
}

// ListAPIKeys returns the organization's keys without their secrets
func (h *OrganizationHandler) ListAPIKeys(c *gin.Context) {
	result, err := h.orgService.ListAPIKeys(c.Request.Context(), orgID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// CreateAPIKey godoc
// @ID           createAPIKey
// @Summary      Issue an API key
// @Description  The plaintext key is only returned here.
// @Tags         api-keys
// @Accept       json
// @Produce      json
// @Param        request body CreateAPIKeyRequest true "Key"
// @Success      201 {object} APIResponse[orgapp.APIKeyResult]
// @Security     BearerAuth
// @Router       /api-keys [post]
func (h *OrganizationHandler) CreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.orgService.CreateAPIKey(c.Request.Context(), orgapp.CreateAPIKeyInput{
		OrgID:     orgID(c),
		CreatedBy: userID(c),
		Name:      req.Name,
		Scopes:    req.Scopes,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// RevokeAPIKey revokes a key immediately
func (h *OrganizationHandler) RevokeAPIKey(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.orgService.RevokeAPIKey(c.Request.Context(), orgID(c), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
