package middleware

import (
	"errors"
	"strings"

	"github.com/crewdesk/backend/internal/infrastructure/auth"
	"github.com/crewdesk/backend/internal/infrastructure/logger"
	"github.com/crewdesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

// TokenValidator validates access tokens
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// JWTConfig configures JWTAuth
type JWTConfig struct {
	Validator TokenValidator
	// Revocations is optional. Lookup failures are logged and the request
	// is allowed through so a Redis outage does not lock everyone out.
	Revocations auth.RevocationList
	Logger      *zap.Logger
}

// JWTAuth requires a valid bearer access token and stores its claims and
// user id in the gin context
func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			abortWithError(c, dto.ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Missing token")
			return
		}

		claims, err := cfg.Validator.ValidateAccessToken(token)
		if err != nil {
			log.Debug("Access token rejected", zap.Error(err), zap.String("path", c.Request.URL.Path))
			code, message := tokenError(err)
			abortWithError(c, code, message)
			return
		}
		userID, err := claims.UserUUID()
		if err != nil {
			abortWithError(c, dto.ErrCodeTokenInvalid, "Invalid token")
			return
		}

		if cfg.Revocations != nil && revoked(c, cfg.Revocations, claims, log) {
			abortWithError(c, dto.ErrCodeTokenRevoked, "Token has been revoked")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, userID)

		ctx := c.Request.Context()
		ctx, _ = logger.WithUserID(ctx, logger.FromContext(ctx), claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func revoked(c *gin.Context, list auth.RevocationList, claims *auth.Claims, log *zap.Logger) bool {
	ctx := c.Request.Context()
	if claims.ID != "" {
		isRevoked, err := list.IsRevoked(ctx, claims.ID)
		if err != nil {
			log.Error("Failed to check token revocation", zap.String("jti", claims.ID), zap.Error(err))
		} else if isRevoked {
			return true
		}
	}
	before, err := list.IssuedBeforeUserRevocation(ctx, claims.UserID, claims.IssuedAtTime())
	if err != nil {
		log.Error("Failed to check user revocation", zap.String("user_id", claims.UserID), zap.Error(err))
		return false
	}
	return before
}

func tokenError(err error) (string, string) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrInvalidTokenType):
		return dto.ErrCodeTokenInvalid, "An access token is required"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return dto.ErrCodeTokenInvalid, "Token is not yet valid"
	default:
		return dto.ErrCodeTokenInvalid, "Invalid token"
	}
}
