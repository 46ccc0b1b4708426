// Package middleware holds the gin middleware that authenticates callers,
// resolves their organization and guards routes by role or API key scope.
package middleware

import (
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/infrastructure/auth"
	"github.com/crewdesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys set by the middleware in this package
const (
	RequestIDKey = "request_id"
	ClaimsKey    = "jwt_claims"
	UserIDKey    = "user_id"
	OrgIDKey     = "org_id"
	MemberKey    = "member"
	RoleKey      = "role"
	APIKeyKey    = "api_key"

	RequestIDHeader = "X-Request-ID"
	OrgIDHeader     = "X-Org-ID"
	APIKeyHeader    = "X-API-Key"
)

// GetRequestID returns the id assigned by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// GetClaims returns the access token claims, nil for API key callers
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// GetUserID returns the authenticated user, uuid.Nil when there is none
func GetUserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetOrgID returns the organization the request acts on
func GetOrgID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(OrgIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetMember returns the caller's membership in the current organization
func GetMember(c *gin.Context) *organization.Member {
	if v, ok := c.Get(MemberKey); ok {
		if m, ok := v.(*organization.Member); ok {
			return m
		}
	}
	return nil
}

// GetRole returns the caller's role, empty for API key callers
func GetRole(c *gin.Context) organization.Role {
	if v, ok := c.Get(RoleKey); ok {
		if r, ok := v.(organization.Role); ok {
			return r
		}
	}
	return ""
}

// GetAPIKey returns the key that authenticated an external API call
func GetAPIKey(c *gin.Context) *organization.APIKey {
	if v, ok := c.Get(APIKeyKey); ok {
		if k, ok := v.(*organization.APIKey); ok {
			return k
		}
	}
	return nil
}

func abortWithError(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code),
		dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}
