package handler

import (
	"time"

	identityapp "github.com/crewdesk/backend/internal/application/identity"
	"github.com/crewdesk/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthHandler serves sign-up, sign-in and the caller's own account
type AuthHandler struct {
	BaseHandler
	authService *identityapp.AuthService
	userService *identityapp.UserService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *identityapp.AuthService, userService *identityapp.UserService) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService}
}

// RegisterRequest creates an account
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=254" example:"owner@acme-plumbing.com"`
	Name     string `json:"name" binding:"required,min=1,max=100" example:"Dana Reyes"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Phone    string `json:"phone" binding:"omitempty,max=32" example:"+15551234567"`
}

// LoginRequest signs in, optionally straight into one organization
type LoginRequest struct {
	Email    string     `json:"email" binding:"required,email"`
	Password string     `json:"password" binding:"required"`
	OrgID    *uuid.UUID `json:"org_id"`
}

// RefreshRequest rotates a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest optionally carries the refresh token so it is revoked too
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SwitchOrgRequest re-issues tokens for another organization
type SwitchOrgRequest struct {
	OrgID uuid.UUID `json:"org_id" binding:"required"`
}

// UpdateProfileRequest changes the caller's display fields
type UpdateProfileRequest struct {
	Name  string `json:"name" binding:"required,min=1,max=100"`
	Phone string `json:"phone" binding:"omitempty,max=32"`
}

// ChangePasswordRequest changes the caller's password
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// PushTokenRequest registers or removes a device token for push notifications
type PushTokenRequest struct {
	Token string `json:"token" binding:"required,max=4096"`
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// TokenResponse carries a token pair
type TokenResponse struct {
	AccessToken           string        `json:"access_token"`
	RefreshToken          string        `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time     `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time     `json:"refresh_token_expires_at"`
	TokenType             string        `json:"token_type"`
	OrgID                 *uuid.UUID    `json:"org_id,omitempty"`
	User                  *UserResponse `json:"user,omitempty"`
}

// MembershipResponse lists one organization the user belongs to
type MembershipResponse struct {
	OrgID  uuid.UUID `json:"org_id"`
	Role   string    `json:"role"`
	Status string    `json:"status"`
}

// CurrentUserResponse answers GET /auth/me
type CurrentUserResponse struct {
	User        UserResponse         `json:"user"`
	OrgID       *uuid.UUID           `json:"org_id,omitempty"`
	Role        string               `json:"role,omitempty"`
	Memberships []MembershipResponse `json:"memberships"`
}

func toUserResponse(u identityapp.UserInfo) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name, Phone: u.Phone, LastLoginAt: u.LastLoginAt}
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func toLoginResponse(r *identityapp.LoginResult) TokenResponse {
	user := toUserResponse(r.User)
	return TokenResponse{
		AccessToken:           r.AccessToken,
		RefreshToken:          r.RefreshToken,
		AccessTokenExpiresAt:  r.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: r.RefreshTokenExpiresAt,
		TokenType:             r.TokenType,
		OrgID:                 optionalID(r.OrgID),
		User:                  &user,
	}
}

// Register godoc
// @ID           register
// @Summary      Create an account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Account"
// @Success      201 {object} APIResponse[TokenResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.authService.Register(c.Request.Context(), identityapp.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toLoginResponse(result))
}

// Login godoc
// @ID           login
// @Summary      Sign in with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Credentials"
// @Success      200 {object} APIResponse[TokenResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      423 {object} ErrorResponse
// @Failure      429 {object} ErrorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}
	input := identityapp.LoginInput{Email: req.Email, Password: req.Password, IP: c.ClientIP()}
	if req.OrgID != nil {
		input.OrgID = *req.OrgID
	}
	result, err := h.authService.Login(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toLoginResponse(result))
}

// Refresh godoc
// @ID           refreshToken
// @Summary      Rotate a refresh token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest true "Refresh token"
// @Success      200 {object} APIResponse[TokenResponse]
// @Failure      401 {object} ErrorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.authService.RefreshToken(c.Request.Context(), identityapp.RefreshTokenInput{RefreshToken: req.RefreshToken})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, TokenResponse{
		AccessToken:           result.AccessToken,
		RefreshToken:          result.RefreshToken,
		AccessTokenExpiresAt:  result.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: result.RefreshTokenExpiresAt,
		TokenType:             result.TokenType,
		OrgID:                 optionalID(result.OrgID),
	})
}

// Logout revokes the presented access token and, if sent, the refresh token.
// An empty body is fine.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	input := identityapp.LogoutInput{UserID: userID(c), RefreshToken: req.RefreshToken}
	if claims := middleware.GetClaims(c); claims != nil {
		input.AccessJTI = claims.ID
		input.AccessTTL = claims.RemainingTTL()
	}
	if err := h.authService.Logout(c.Request.Context(), input); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Me returns the caller with their memberships
func (h *AuthHandler) Me(c *gin.Context) {
	var org uuid.UUID
	if claims := middleware.GetClaims(c); claims != nil {
		org, _ = claims.OrgUUID()
	}
	result, err := h.authService.Me(c.Request.Context(), userID(c), org)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := CurrentUserResponse{
		User:        toUserResponse(result.User),
		OrgID:       optionalID(result.OrgID),
		Role:        result.Role,
		Memberships: make([]MembershipResponse, 0, len(result.Memberships)),
	}
	for _, m := range result.Memberships {
		resp.Memberships = append(resp.Memberships, MembershipResponse{OrgID: m.OrgID, Role: m.Role, Status: m.Status})
	}
	h.Success(c, resp)
}

// SwitchOrg issues tokens scoped to another organization the caller belongs to
func (h *AuthHandler) SwitchOrg(c *gin.Context) {
	var req SwitchOrgRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.authService.SwitchOrganization(c.Request.Context(), userID(c), req.OrgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toLoginResponse(result))
}

// UpdateProfile changes the caller's name and phone
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if !h.bindJSON(c, &req) {
		return
	}
	user, err := h.userService.UpdateProfile(c.Request.Context(), identityapp.UpdateProfileInput{
		UserID: userID(c),
		Name:   req.Name,
		Phone:  req.Phone,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toUserResponse(*user))
}

// ChangePassword changes the caller's password and ends their other sessions
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}
	err := h.userService.ChangePassword(c.Request.Context(), identityapp.ChangePasswordInput{
		UserID:      userID(c),
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// RegisterPushToken stores a device token for the caller
func (h *AuthHandler) RegisterPushToken(c *gin.Context) {
	var req PushTokenRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.userService.RegisterPushToken(c.Request.Context(), identityapp.PushTokenInput{UserID: userID(c), Token: req.Token}); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// RemovePushToken forgets a device token
func (h *AuthHandler) RemovePushToken(c *gin.Context) {
	var req PushTokenRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.userService.RemovePushToken(c.Request.Context(), userID(c), req.Token); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
