package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/crewdesk/backend/internal/infrastructure/ratelimit"
	"github.com/crewdesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KeyFunc picks the bucket a request is counted against
type KeyFunc func(c *gin.Context) string

// ByClientIP counts per client address
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByOrgOrIP counts per organization once one is resolved, else per client address
func ByOrgOrIP(c *gin.Context) string {
	if id := GetOrgID(c); id != uuid.Nil {
		return "org:" + id.String()
	}
	return ByClientIP(c)
}

// RateLimitConfig configures RateLimit
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	// Scope prefixes bucket keys and labels the rejection metric
	Scope string
	Key   KeyFunc
	// OnLimited is called for every rejected request
	OnLimited func(scope string)
	Logger    *zap.Logger
}

// RateLimit answers 429 once a bucket's fixed window is used up. Limiter
// errors fail open.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	key := cfg.Key
	if key == nil {
		key = ByClientIP
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		res, err := cfg.Limiter.Allow(c.Request.Context(), cfg.Scope+":"+key(c))
		if err != nil {
			log.Warn("Rate limiter unavailable", zap.String("scope", cfg.Scope), zap.Error(err))
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retry := res.RetryAfter(time.Now())
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			if cfg.OnLimited != nil {
				cfg.OnLimited(cfg.Scope)
			}
			abortWithError(c, dto.ErrCodeRateLimited, "Too many requests, please retry later")
			return
		}
		c.Next()
	}
}
