package router

import (
	"net/http"

	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/infrastructure/logger"
	"github.com/crewdesk/backend/internal/infrastructure/metrics"
	"github.com/crewdesk/backend/internal/infrastructure/ratelimit"
	"github.com/crewdesk/backend/internal/interfaces/http/dto"
	"github.com/crewdesk/backend/internal/interfaces/http/handler"
	"github.com/crewdesk/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers groups every HTTP handler the API mounts
type Handlers struct {
	Auth         *handler.AuthHandler
	Organization *handler.OrganizationHandler
	Customer     *handler.CustomerHandler
	Job          *handler.JobHandler
	Quote        *handler.QuoteHandler
	Invoice      *handler.InvoiceHandler
	Payment      *handler.PaymentHandler
	Billing      *handler.BillingHandler
	Webhook      *handler.WebhookHandler
	Automation   *handler.AutomationHandler
	Attachment   *handler.AttachmentHandler
	External     *handler.ExternalHandler
	Outbox       *handler.OutboxHandler
	System       *handler.SystemHandler
}

// Config is everything New needs besides the handlers
type Config struct {
	ServiceName string
	Logger      *zap.Logger
	Metrics     *metrics.Registry

	JWT     middleware.JWTConfig
	Access  middleware.AccessResolver
	APIKeys middleware.APIKeyAuthenticator

	// APILimiter throttles authenticated traffic per organization and
	// AuthLimiter the public auth endpoints per client IP. Nil disables.
	APILimiter  ratelimit.Limiter
	AuthLimiter ratelimit.Limiter

	CORS            middleware.CORSConfig
	Security        middleware.SecurityConfig
	MaxBodySize     int64
	TrustedProxies  []string
	ProfilerEnabled bool
}

// New builds the engine with global middleware and every route
func New(cfg Config, h Handlers) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	_ = engine.SetTrustedProxies(cfg.TrustedProxies)

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(cfg.Logger),
		logger.Recovery(cfg.Logger),
		middleware.Tracing(cfg.ServiceName),
		middleware.Secure(cfg.Security),
		middleware.CORS(cfg.CORS),
		middleware.BodyLimit(cfg.MaxBodySize),
	)
	if cfg.Metrics != nil {
		engine.Use(cfg.Metrics.GinMiddleware())
		engine.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	engine.Use(middleware.Profiling(cfg.ProfilerEnabled))

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(dto.ErrCodeNotFound, "Route not found", middleware.GetRequestID(c)))
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, dto.NewErrorResponseWithRequestID(dto.ErrCodeBadRequest, "Method not allowed", middleware.GetRequestID(c)))
	})

	engine.GET("/health", h.System.Health)

	NewRouter(engine).Register(
		authRoutes(cfg, h),
		accountRoutes(cfg, h),
		orgRoutes(cfg, h),
		externalRoutes(cfg, h),
		webhookRoutes(h),
	).Setup()

	return engine
}

func rateLimit(cfg Config, limiter ratelimit.Limiter, scope string, key middleware.KeyFunc) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	rl := middleware.RateLimitConfig{Limiter: limiter, Scope: scope, Key: key, Logger: cfg.Logger}
	if cfg.Metrics != nil {
		rl.OnLimited = cfg.Metrics.RateLimited
	}
	return middleware.RateLimit(rl)
}

// authRoutes are reachable without a token
func authRoutes(cfg Config, h Handlers) *DomainGroup {
	g := NewDomainGroup("auth", "/auth").
		Use(rateLimit(cfg, cfg.AuthLimiter, "auth", middleware.ByClientIP))
	g.POST("/register", h.Auth.Register)
	g.POST("/login", h.Auth.Login)
	g.POST("/refresh", h.Auth.Refresh)
	return g
}

// accountRoutes need a user but no organization
func accountRoutes(cfg Config, h Handlers) *DomainGroup {
	g := NewDomainGroup("account", "").
		Use(middleware.JWTAuth(cfg.JWT), middleware.SpanAttributes())

	auth := g.Group("auth", "/auth")
	auth.POST("/logout", h.Auth.Logout)
	auth.GET("/me", h.Auth.Me)
	auth.POST("/switch-org", h.Auth.SwitchOrg)
	auth.PUT("/profile", h.Auth.UpdateProfile)
	auth.PUT("/password", h.Auth.ChangePassword)
	auth.POST("/push-tokens", h.Auth.RegisterPushToken)
	auth.DELETE("/push-tokens", h.Auth.RemovePushToken)

	g.POST("/orgs", h.Organization.Create)
	g.POST("/invitations/accept", h.Organization.AcceptInvitation)
	return g
}

// orgRoutes act on the caller's current organization; each route names
// the permission it needs
func orgRoutes(cfg Config, h Handlers) *DomainGroup {
	var (
		read        = middleware.RequirePermission(organization.PermRead)
		manageOrg   = middleware.RequirePermission(organization.PermManageOrg)
		members     = middleware.RequirePermission(organization.PermManageMembers)
		billing     = middleware.RequirePermission(organization.PermManageBilling)
		customers   = middleware.RequirePermission(organization.PermManageCustomers)
		dispatch    = middleware.RequirePermission(organization.PermDispatchJobs)
		work        = middleware.RequirePermission(organization.PermWorkJobs)
		sales       = middleware.RequirePermission(organization.PermManageSales)
		automations = middleware.RequirePermission(organization.PermManageAutomations)
	)

	g := NewDomainGroup("org", "").Use(
		middleware.JWTAuth(cfg.JWT),
		middleware.OrgAccess(cfg.Access, cfg.Logger),
		middleware.SpanAttributes(),
		rateLimit(cfg, cfg.APILimiter, "api", middleware.ByOrgOrIP),
	)

	orgs := g.Group("orgs", "/orgs/current")
	orgs.GET("", read, h.Organization.GetCurrent)
	orgs.PUT("", manageOrg, h.Organization.UpdateCurrent)
	orgs.POST("/transfer-ownership", manageOrg, h.Organization.TransferOwnership)

	m := g.Group("members", "/members")
	m.GET("", read, h.Organization.ListMembers)
	m.POST("", members, h.Organization.AddMember)
	m.PUT("/:id/role", members, h.Organization.ChangeRole)
	m.DELETE("/:id", members, h.Organization.RemoveMember)

	inv := g.Group("invitations", "/invitations")
	inv.GET("", members, h.Organization.ListInvitations)
	inv.POST("", members, h.Organization.CreateInvitation)
	inv.DELETE("/:id", members, h.Organization.RevokeInvitation)

	keys := g.Group("api-keys", "/api-keys")
	keys.GET("", manageOrg, h.Organization.ListAPIKeys)
	keys.POST("", manageOrg, h.Organization.CreateAPIKey)
	keys.DELETE("/:id", manageOrg, h.Organization.RevokeAPIKey)

	cust := g.Group("customers", "/customers")
	cust.GET("", read, h.Customer.List)
	cust.POST("", customers, h.Customer.Create)
	cust.POST("/import", customers, h.Customer.Import)
	cust.GET("/:id", read, h.Customer.GetByID)
	cust.PUT("/:id", customers, h.Customer.Update)
	cust.DELETE("/:id", customers, h.Customer.Delete)

	jobs := g.Group("jobs", "/jobs")
	jobs.GET("", read, h.Job.List)
	jobs.POST("", dispatch, h.Job.Create)
	jobs.GET("/schedule", read, h.Job.Schedule)
	jobs.GET("/:id", read, h.Job.GetByID)
	jobs.PUT("/:id", dispatch, h.Job.Update)
	jobs.POST("/:id/assign", dispatch, h.Job.Assign)
	jobs.POST("/:id/dispatch", dispatch, h.Job.Dispatch)
	jobs.POST("/:id/start", work, h.Job.Start)
	jobs.POST("/:id/complete", work, h.Job.Complete)
	jobs.POST("/:id/cancel", dispatch, h.Job.Cancel)
	jobs.POST("/:id/items", work, h.Job.AddItems)
	jobs.POST("/:id/invoice", sales, h.Invoice.CreateFromJob)

	quotes := g.Group("quotes", "/quotes")
	quotes.GET("", read, h.Quote.List)
	quotes.POST("", sales, h.Quote.Create)
	quotes.GET("/:id", read, h.Quote.GetByID)
	quotes.PUT("/:id", sales, h.Quote.Update)
	quotes.DELETE("/:id", sales, h.Quote.Delete)
	quotes.POST("/:id/send", sales, h.Quote.Send)
	quotes.POST("/:id/accept", sales, h.Quote.Accept)
	quotes.POST("/:id/reject", sales, h.Quote.Reject)
	quotes.POST("/:id/convert", sales, h.Quote.Convert)

	invoices := g.Group("invoices", "/invoices")
	invoices.GET("", read, h.Invoice.List)
	invoices.POST("", sales, h.Invoice.Create)
	invoices.GET("/:id", read, h.Invoice.GetByID)
	invoices.PUT("/:id", sales, h.Invoice.Update)
	invoices.POST("/:id/send", sales, h.Invoice.Send)
	invoices.POST("/:id/void", sales, h.Invoice.Void)
	invoices.POST("/:id/payments", sales, h.Invoice.RecordPayment)
	// technicians take card payments on site
	invoices.POST("/:id/payment-intent", work, h.Invoice.CreatePaymentIntent)

	g.GET("/payments", read, h.Payment.List)
	g.POST("/terminal/connection-token", work, h.Payment.ConnectionToken)

	bill := g.Group("billing", "/billing")
	bill.GET("/subscription", read, h.Billing.GetSubscription)
	bill.POST("/checkout", billing, h.Billing.Checkout)
	bill.POST("/portal", billing, h.Billing.Portal)

	connect := g.Group("connect", "/connect")
	connect.POST("/account", billing, h.Billing.CreateConnectAccount)
	connect.POST("/account-link", billing, h.Billing.ConnectAccountLink)
	connect.GET("/status", billing, h.Billing.ConnectStatus)

	att := g.Group("attachments", "/attachments")
	att.POST("/upload-url", work, h.Attachment.CreateUploadURL)
	att.GET("/download-url", read, h.Attachment.CreateDownloadURL)
	att.DELETE("", dispatch, h.Attachment.Delete)

	auto := g.Group("automations", "/automations").Use(automations)
	auto.GET("", h.Automation.List)
	auto.POST("", h.Automation.Create)
	auto.GET("/:id", h.Automation.Get)
	auto.PUT("/:id", h.Automation.Update)
	auto.DELETE("/:id", h.Automation.Delete)
	auto.POST("/:id/enable", h.Automation.Enable)
	auto.POST("/:id/disable", h.Automation.Disable)
	auto.POST("/:id/trigger", h.Automation.Trigger)

	runs := g.Group("automation-runs", "/automation-runs").Use(automations)
	runs.GET("", h.Automation.ListRuns)
	runs.GET("/:id", h.Automation.GetRun)
	runs.POST("/:id/retry", h.Automation.RetryRun)

	events := g.Group("events", "/events").Use(manageOrg)
	events.GET("/dead", h.Outbox.GetDeadLetterEntries)
	events.GET("/stats", h.Outbox.GetStats)
	events.POST("/dead/retry-all", h.Outbox.RetryAllDeadEntries)
	events.GET("/:id", h.Outbox.GetEntry)
	events.POST("/:id/retry", h.Outbox.RetryDeadEntry)

	return g
}

// externalRoutes authenticate with an API key instead of a user token
func externalRoutes(cfg Config, h Handlers) *DomainGroup {
	g := NewDomainGroup("external", "/ext").Use(
		middleware.APIKeyAuth(cfg.APIKeys, cfg.Logger),
		middleware.SpanAttributes(),
		rateLimit(cfg, cfg.APILimiter, "ext", middleware.ByOrgOrIP),
	)
	g.POST("/events", middleware.RequireScope(organization.ScopeEventsWrite), h.External.IngestEvent)
	g.GET("/jobs", middleware.RequireScope(organization.ScopeJobsRead), h.External.ListJobs)
	g.POST("/jobs", middleware.RequireScope(organization.ScopeJobsWrite), h.External.CreateJob)
	return g
}

// webhookRoutes verify provider signatures themselves
func webhookRoutes(h Handlers) *DomainGroup {
	g := NewDomainGroup("webhooks", "/webhooks")
	g.POST("/stripe", h.Webhook.Stripe)
	g.POST("/polar", h.Webhook.Polar)
	g.POST("/revenuecat", h.Webhook.RevenueCat)
	return g
}
