package middleware

import (
	"context"
	"errors"

	orgapp "github.com/crewdesk/backend/internal/application/organization"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/logger"
	"github.com/crewdesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccessResolver loads a user's membership in an organization
type AccessResolver interface {
	ResolveAccess(ctx context.Context, orgID, userID uuid.UUID) (*orgapp.Access, error)
}

// OrgAccess resolves the organization a JWT-authenticated request acts on.
// The X-Org-ID header wins over the org claim so a client can switch
// organizations without refreshing its token; membership is checked either way.
// Must run after JWTAuth.
func OrgAccess(resolver AccessResolver, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == uuid.Nil {
			abortWithError(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}

		orgID, ok := requestedOrg(c)
		if !ok {
			abortWithError(c, dto.ErrCodeBadRequest, "Invalid X-Org-ID header")
			return
		}
		if orgID == uuid.Nil {
			abortWithError(c, dto.ErrCodeForbidden, "No organization selected")
			return
		}

		access, err := resolver.ResolveAccess(c.Request.Context(), orgID, userID)
		if err != nil {
			var domainErr *shared.DomainError
			if errors.As(err, &domainErr) {
				code := dto.NormalizeErrorCode(domainErr.Code)
				// Hide whether an org the caller cannot see exists
				if errors.Is(err, shared.ErrNotFound) {
					code = dto.ErrCodeForbidden
				}
				abortWithError(c, code, domainErr.Message)
				return
			}
			log.Error("Failed to resolve organization access",
				zap.String("org_id", orgID.String()),
				zap.String("user_id", userID.String()),
				zap.Error(err))
			abortWithError(c, dto.ErrCodeInternal, "An unexpected error occurred")
			return
		}

		setOrg(c, orgID)
		c.Set(MemberKey, access.Member)
		c.Set(RoleKey, access.Member.Role)
		c.Next()
	}
}

func requestedOrg(c *gin.Context) (uuid.UUID, bool) {
	if header := c.GetHeader(OrgIDHeader); header != "" {
		id, err := uuid.Parse(header)
		return id, err == nil
	}
	if claims := GetClaims(c); claims != nil && claims.OrgID != "" {
		id, err := claims.OrgUUID()
		return id, err == nil
	}
	return uuid.Nil, true
}

func setOrg(c *gin.Context, orgID uuid.UUID) {
	c.Set(OrgIDKey, orgID)
	ctx := c.Request.Context()
	ctx, _ = logger.WithOrgID(ctx, logger.FromContext(ctx), orgID.String())
	c.Request = c.Request.WithContext(ctx)
}

// RequirePermission rejects members whose role lacks any of the permissions
func RequirePermission(perms ...organization.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		member := GetMember(c)
		if member == nil {
			abortWithError(c, dto.ErrCodeForbidden, "Organization membership required")
			return
		}
		for _, p := range perms {
			if !member.Can(p) {
				abortWithError(c, dto.ErrCodeForbidden, "Your role does not allow this action")
				return
			}
		}
		c.Next()
	}
}
