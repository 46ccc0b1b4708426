package middleware

import (
	"context"
	"errors"

	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIKeyAuthenticator resolves a presented API key
type APIKeyAuthenticator interface {
	AuthenticateAPIKey(ctx context.Context, plaintext string) (*organization.APIKey, error)
}

// APIKeyAuth authenticates /ext requests by the X-API-Key header and binds
// the request to the key's organization
func APIKeyAuth(authn APIKeyAuthenticator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		plaintext := c.GetHeader(APIKeyHeader)
		if plaintext == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Missing API key")
			return
		}

		key, err := authn.AuthenticateAPIKey(c.Request.Context(), plaintext)
		if err != nil {
			if errors.Is(err, shared.ErrUnauthorized) {
				abortWithError(c, dto.ErrCodeUnauthorized, "Invalid API key")
				return
			}
			log.Error("API key authentication failed", zap.Error(err))
			abortWithError(c, dto.ErrCodeInternal, "An unexpected error occurred")
			return
		}

		c.Set(APIKeyKey, key)
		setOrg(c, key.OrgID)
		c.Next()
	}
}

// RequireScope rejects API keys that were not granted scope
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := GetAPIKey(c)
		if key == nil || !key.HasScope(scope) {
			abortWithError(c, dto.ErrCodeForbidden, "API key lacks the "+scope+" scope")
			return
		}
		c.Next()
	}
}
