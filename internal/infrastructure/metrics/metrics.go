// Package metrics exposes Prometheus metrics for scraping at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crewdesk"

// Registry holds the service's collectors on a dedicated registry
type Registry struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	automationRuns  *prometheus.CounterVec
	automationSteps *prometheus.CounterVec
	automationTime  *prometheus.HistogramVec
	automationQueue prometheus.Gauge
	outboxEvents    *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	slowQueries     *prometheus.CounterVec
}

// New creates a registry with Go runtime and process collectors attached
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		automationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "automation", Name: "runs_total",
			Help: "Automation runs by trigger and outcome.",
		}, []string{"trigger", "status"}),
		automationSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "automation", Name: "steps_total",
			Help: "Automation step attempts by action type and outcome.",
		}, []string{"action", "status"}),
		automationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "automation", Name: "run_duration_seconds",
			Help:    "Automation run duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"trigger"}),
		automationQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "automation", Name: "queue_depth",
			Help: "Trigger events waiting for a worker.",
		}),
		outboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "outbox", Name: "events_total",
			Help: "Outbox entries processed by outcome.",
		}, []string{"event_type", "status"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "webhook", Name: "received_total",
			Help: "Inbound provider webhooks by provider and outcome.",
		}, []string{"provider", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "sent_total",
			Help: "Outbound SMS and push notifications.",
		}, []string{"channel", "status"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"scope"}),
		slowQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "db", Name: "slow_queries_total",
			Help: "SQL statements slower than the configured threshold.",
		}, []string{"operation"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests, r.httpDuration,
		r.automationRuns, r.automationSteps, r.automationTime, r.automationQueue,
		r.outboxEvents, r.webhooks, r.notifications, r.rateLimited, r.slowQueries,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry, for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// GinMiddleware records request counts and latency per matched route
func (r *Registry) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// AutomationRun records a finished run
func (r *Registry) AutomationRun(trigger, status string, d time.Duration) {
	r.automationRuns.WithLabelValues(trigger, status).Inc()
	r.automationTime.WithLabelValues(trigger).Observe(d.Seconds())
}

// AutomationStep records one step attempt
func (r *Registry) AutomationStep(action, status string) {
	r.automationSteps.WithLabelValues(action, status).Inc()
}

// AutomationQueueDepth sets the pending event count
func (r *Registry) AutomationQueueDepth(n int) {
	r.automationQueue.Set(float64(n))
}

// OutboxEvent records one processed outbox entry
func (r *Registry) OutboxEvent(eventType, status string) {
	r.outboxEvents.WithLabelValues(eventType, status).Inc()
}

// Webhook records an inbound webhook
func (r *Registry) Webhook(provider, outcome string) {
	r.webhooks.WithLabelValues(provider, outcome).Inc()
}

// Notification records an outbound message
func (r *Registry) Notification(channel, status string) {
	r.notifications.WithLabelValues(channel, status).Inc()
}

// RateLimited records a rejected request
func (r *Registry) RateLimited(scope string) {
	r.rateLimited.WithLabelValues(scope).Inc()
}

// SlowQuery records a statement over the slow threshold
func (r *Registry) SlowQuery(operation string) {
	r.slowQueries.WithLabelValues(operation).Inc()
}
