package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request, named after the route pattern
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// SpanAttributes tags the active span with request, user and org ids and
// records handler errors on it. It belongs after the auth middleware of a
// route group.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if id := GetRequestID(c); id != "" {
				span.SetAttributes(attribute.String("request_id", id))
			}
			if id := GetUserID(c); id != uuid.Nil {
				span.SetAttributes(attribute.String("user_id", id.String()))
			}
			if id := GetOrgID(c); id != uuid.Nil {
				span.SetAttributes(attribute.String("org_id", id.String()))
			}
		}
		c.Next()

		if !span.IsRecording() {
			return
		}
		for _, e := range c.Errors {
			span.RecordError(e.Err)
		}
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
