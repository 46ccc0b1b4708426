package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/grafana/pyroscope-go"
)

// Profiling labels CPU and allocation samples taken while a request runs
// with its route, method and organization, so Pyroscope can break profiles
// down per endpoint. Health and metrics endpoints are skipped.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || route == "/health" || route == "/metrics" {
			c.Next()
			return
		}

		labels := []string{
			"route", route,
			"method", c.Request.Method,
			"resource", resourceFromRoute(route),
		}
		if id := GetOrgID(c); id != uuid.Nil {
			labels = append(labels, "org_id", id.String())
		}

		pyroscope.TagWrapper(c.Request.Context(), pyroscope.Labels(labels...), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// resourceFromRoute returns the first static segment after /api/vN,
// "/api/v1/jobs/:id/start" -> "jobs"
func resourceFromRoute(route string) string {
	for _, part := range strings.Split(route, "/") {
		if part == "" || part == "api" || part == "ext" || strings.HasPrefix(part, ":") {
			continue
		}
		if len(part) > 1 && part[0] == 'v' && strings.Trim(part[1:], "0123456789") == "" {
			continue
		}
		return part
	}
	return ""
}
