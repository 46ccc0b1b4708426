package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	attachmentapp "github.com/crewdesk/backend/internal/application/attachment"
	automationapp "github.com/crewdesk/backend/internal/application/automation"
	billingapp "github.com/crewdesk/backend/internal/application/billing"
	crmapp "github.com/crewdesk/backend/internal/application/crm"
	eventapp "github.com/crewdesk/backend/internal/application/event"
	identityapp "github.com/crewdesk/backend/internal/application/identity"
	orgapp "github.com/crewdesk/backend/internal/application/organization"
	paymentapp "github.com/crewdesk/backend/internal/application/payment"
	salesapp "github.com/crewdesk/backend/internal/application/sales"
	schedulingapp "github.com/crewdesk/backend/internal/application/scheduling"
	domainautomation "github.com/crewdesk/backend/internal/domain/automation"
	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/scheduling"
	"github.com/crewdesk/backend/internal/infrastructure/auth"
	"github.com/crewdesk/backend/internal/infrastructure/automation"
	"github.com/crewdesk/backend/internal/infrastructure/billing"
	"github.com/crewdesk/backend/internal/infrastructure/cache"
	"github.com/crewdesk/backend/internal/infrastructure/config"
	"github.com/crewdesk/backend/internal/infrastructure/crypto"
	"github.com/crewdesk/backend/internal/infrastructure/event"
	"github.com/crewdesk/backend/internal/infrastructure/logger"
	"github.com/crewdesk/backend/internal/infrastructure/metrics"
	"github.com/crewdesk/backend/internal/infrastructure/migration"
	"github.com/crewdesk/backend/internal/infrastructure/notify"
	"github.com/crewdesk/backend/internal/infrastructure/persistence"
	"github.com/crewdesk/backend/internal/infrastructure/ratelimit"
	"github.com/crewdesk/backend/internal/infrastructure/scheduler"
	"github.com/crewdesk/backend/internal/infrastructure/storage"
	"github.com/crewdesk/backend/internal/infrastructure/telemetry"
	"github.com/crewdesk/backend/internal/interfaces/http/handler"
	"github.com/crewdesk/backend/internal/interfaces/http/middleware"
	"github.com/crewdesk/backend/internal/interfaces/http/router"
	"github.com/crewdesk/backend/migrations"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			CrewDesk API
//	@version		1.0
//	@description	Field service backend: jobs, dispatch, quotes, invoices, payments and automations.

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

//	@securityDefinitions.apikey	APIKeyAuth
//	@in							header
//	@name						X-API-Key

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()
	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}

	// Bootstrap logger for telemetry setup; replaced once the providers exist
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}
	otel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:       serviceName,
		ServiceVersion:    version,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		TracesEnabled:     cfg.Telemetry.Enabled,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsEnabled:    cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	log := bootLog
	if otel.LogsEnabled() {
		log, err = logger.NewWithOTel(logCfg, serviceName, otel.LoggerProvider())
		if err != nil {
			bootLog.Fatal("Failed to initialize OTel logger", zap.Error(err))
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting CrewDesk backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	profiler, err := telemetry.StartProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilerEnabled,
		ServerAddress:   cfg.Telemetry.ProfilerAddress,
		ApplicationName: serviceName,
		Tags:            map[string]string{"env": cfg.App.Env, "version": version},
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.Running() && cfg.Telemetry.SpanProfiles {
		otel.EnableSpanProfiles()
	}

	registry := metrics.New()

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithSlowQueryRecorder(registry))
	db, err := persistence.NewDatabase(ctx, &cfg.Database,
		persistence.WithLogger(gormLog),
		persistence.WithTracing(telemetry.DBTracingConfig{
			Enabled:   cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			SlowQuery: cfg.Telemetry.DBSlowQueryThresh,
		}),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Database.AutoMigrate {
		if err := migrate(db, cfg.Database.MigrationsPath, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Redis is optional; every consumer has an in-memory fallback
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient != nil {
		defer func() {
			_ = redisClient.Close()
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	cipher, err := crypto.FromConfig(cfg.Crypto)
	if err != nil {
		log.Fatal("Failed to initialize encryption", zap.Error(err))
	}

	// Repositories
	userRepo := persistence.NewGormUserRepository(db.DB)
	orgRepo := persistence.NewGormOrganizationRepository(db.DB)
	memberRepo := persistence.NewGormMemberRepository(db.DB)
	invitationRepo := persistence.NewGormInvitationRepository(db.DB)
	apiKeyRepo := persistence.NewGormAPIKeyRepository(db.DB)
	seqRepo := persistence.NewGormSequenceRepository(db.DB)
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	jobRepo := persistence.NewGormJobRepository(db.DB)
	quoteRepo := persistence.NewGormQuoteRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	subRepo := persistence.NewGormSubscriptionRepository(db.DB)
	ruleRepo := persistence.NewGormRuleRepository(db.DB)
	runRepo := persistence.NewGormRunRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	tx := persistence.NewTxManager(db.DB)

	// Aggregates write their events to the outbox in the saving transaction
	outboxPublisher := event.NewOutboxPublisher(cfg.Event.MaxRetries)
	userRepo.SetOutboxEventSaver(outboxPublisher)
	orgRepo.SetOutboxEventSaver(outboxPublisher)
	customerRepo.SetOutboxEventSaver(outboxPublisher)
	jobRepo.SetOutboxEventSaver(outboxPublisher)
	quoteRepo.SetOutboxEventSaver(outboxPublisher)
	invoiceRepo.SetOutboxEventSaver(outboxPublisher)
	paymentRepo.SetOutboxEventSaver(outboxPublisher)
	subRepo.SetOutboxEventSaver(outboxPublisher)
	ruleRepo.SetOutboxEventSaver(outboxPublisher)

	idempotency := cache.NewIdempotencyStore(redisClient, log)
	revocations := auth.NewRevocationList(redisClient, log)
	jwtService := auth.NewJWTService(cfg.JWT)

	// External providers
	stripeGateway := billing.NewStripeGateway(cfg.Stripe, log)
	polar, err := billing.NewPolarVerifier(cfg.Polar)
	if err != nil {
		log.Fatal("Invalid Polar configuration", zap.Error(err))
	}
	revenueCat := billing.NewRevenueCatVerifier(cfg.RevenueCat)

	var sms notify.SMSSender = notify.Disabled{}
	if cfg.Twilio.Enabled() {
		sms = notify.NewTwilioClient(cfg.Twilio, log)
	} else {
		log.Warn("Twilio not configured, send_sms steps will fail")
	}
	var push notify.PushSender = notify.Disabled{}
	if cfg.FCM.Enabled() {
		fcm, err := notify.NewFCMClient(ctx, cfg.FCM, log)
		if err != nil {
			log.Fatal("Failed to initialize FCM", zap.Error(err))
		}
		push = fcm
	} else {
		log.Warn("FCM not configured, send_push steps will fail")
	}
	notifier := notify.Counted{SMS: sms, Push: push, Recorder: registry}

	var objects storage.ObjectStore = storage.Disabled{}
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3Store(ctx, cfg.Storage, log)
		if err != nil {
			log.Fatal("Failed to initialize S3 storage", zap.Error(err))
		}
		objects = s3
	}

	// Application services
	orgService := orgapp.NewOrganizationService(orgRepo, memberRepo, invitationRepo, apiKeyRepo, userRepo, tx, log)
	authService := identityapp.NewAuthService(userRepo, memberRepo, jwtService, revocations, log)
	userService := identityapp.NewUserService(userRepo, memberRepo, jwtService, revocations, log)
	customerService := crmapp.NewCustomerService(customerRepo, log)
	customerImportService := crmapp.NewCustomerImportService(customerRepo, customerRepo, tx, log)
	jobService := schedulingapp.NewJobService(jobRepo, customerRepo, memberRepo, log)
	quoteService := salesapp.NewQuoteService(quoteRepo, invoiceRepo, orgRepo, customerRepo, seqRepo, tx, log)
	invoiceService := salesapp.NewInvoiceService(invoiceRepo, jobRepo, orgRepo, customerRepo, seqRepo, tx, log)
	paymentService := paymentapp.NewPaymentService(paymentRepo, invoiceRepo, orgRepo, stripeGateway, tx, log)
	subscriptionService := billingapp.NewSubscriptionService(orgRepo, memberRepo, subRepo, userRepo, stripeGateway, cfg.App.PublicURL, log)
	connectService := billingapp.NewConnectService(orgRepo, userRepo, stripeGateway, cfg.App.PublicURL, log)
	webhookService := billingapp.NewWebhookService(billingapp.WebhookServiceConfig{
		Stripe:     stripeGateway,
		Polar:      polar,
		RevenueCat: revenueCat,
		Payments:   paymentService,
		OrgRepo:    orgRepo,
		SubRepo:    subRepo,
		Seen:       idempotency,
		Tx:         tx,
		Logger:     log,
	})
	outboxService := eventapp.NewOutboxService(outboxRepo, log)
	attachmentService := attachmentapp.NewService(objects, map[attachmentapp.Scope]attachmentapp.OwnerCheck{
		attachmentapp.ScopeJob: func(ctx context.Context, orgID, id uuid.UUID) error {
			_, err := jobRepo.FindByID(ctx, orgID, id)
			return err
		},
		attachmentapp.ScopeQuote: func(ctx context.Context, orgID, id uuid.UUID) error {
			_, err := quoteRepo.FindByID(ctx, orgID, id)
			return err
		},
		attachmentapp.ScopeInvoice: func(ctx context.Context, orgID, id uuid.UUID) error {
			_, err := invoiceRepo.FindByID(ctx, orgID, id)
			return err
		},
		attachmentapp.ScopeCustomer: func(ctx context.Context, orgID, id uuid.UUID) error {
			_, err := customerRepo.FindByID(ctx, orgID, id)
			return err
		},
	}, cfg.Storage.MaxUploadSize, log)

	// Automation engine
	actions := jobActions{jobs: jobService, invoices: invoiceService}
	engine, err := automation.New(automation.ConfigFrom(cfg.Automation), ruleRepo, runRepo, automation.Executors{
		domainautomation.ActionSendSMS:              automation.SMSStep(notifier),
		domainautomation.ActionSendPush:             automation.PushStep(notifier, userService),
		domainautomation.ActionHTTPRequest:          automation.NewHTTPStep(cfg.Automation.StepTimeout, cfg.Automation.AllowPrivateTargets).WithSecrets(cipher),
		domainautomation.ActionUpdateJobStatus:      automation.UpdateJobStatusStep(actions),
		domainautomation.ActionCreateInvoiceFromJob: automation.CreateInvoiceFromJobStep(actions),
		domainautomation.ActionDelay:                automation.DelayStep(),
	}, log, automation.WithMetrics(registry))
	if err != nil {
		log.Fatal("Invalid automation configuration", zap.Error(err))
	}
	automationService := automationapp.NewAutomationService(ruleRepo, runRepo, engine, cipher, log)

	// Event bus: outbox entries fan out to the automation engine
	eventBus := event.NewInMemoryEventBus(log)
	if cfg.Automation.Enabled {
		eventBus.Subscribe(event.NewIdempotentHandler("automation", engine, idempotency, log))
	}

	// Background components, stopped in reverse order on shutdown
	var stoppers []stopper
	startBackground := func(name string, start func(context.Context) error, stop func(context.Context) error) {
		if err := start(ctx); err != nil {
			log.Fatal("Failed to start "+name, zap.Error(err))
		}
		stoppers = append(stoppers, stopper{name: name, stop: stop})
		log.Info(name + " started")
	}

	startBackground("event bus", eventBus.Start, eventBus.Stop)
	if cfg.Automation.Enabled {
		startBackground("automation engine", engine.Start, engine.Stop)
	}
	if cfg.Event.ProcessorEnabled {
		processor := event.NewOutboxProcessor(outboxRepo, eventBus, event.ProcessorConfigFrom(cfg.Event), log, registry)
		startBackground("outbox processor", processor.Start, processor.Stop)
	}
	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(scheduler.ConfigFrom(cfg.Scheduler), log)
		if err != nil {
			log.Fatal("Invalid scheduler configuration", zap.Error(err))
		}
		if err := scheduler.RegisterOverdueSweep(sched, invoiceService, log); err != nil {
			log.Fatal("Failed to schedule overdue sweep", zap.Error(err))
		}
		startBackground("scheduler", sched.Start, sched.Stop)
		if cfg.Automation.Enabled {
			cronTrigger := scheduler.NewRuleCronTrigger(sched, ruleRepo, engine, idempotency, log)
			automationService.SetCronSyncer(cronTrigger)
			startBackground("cron trigger", cronTrigger.Start, cronTrigger.Stop)
		}
	}

	// Rate limiting: Redis keeps counters shared across instances
	var apiLimiter, authLimiter ratelimit.Limiter
	if cfg.HTTP.RateLimitEnabled {
		if redisClient != nil {
			apiLimiter = ratelimit.NewRedisLimiter(redisClient, "crewdesk:rl:api:", cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
			authLimiter = ratelimit.NewRedisLimiter(redisClient, "crewdesk:rl:auth:", cfg.HTTP.AuthRateLimitRequests, cfg.HTTP.AuthRateLimitWindow)
		} else {
			memAPI := ratelimit.NewMemoryLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
			memAuth := ratelimit.NewMemoryLimiter(cfg.HTTP.AuthRateLimitRequests, cfg.HTTP.AuthRateLimitWindow)
			defer memAPI.Close()
			defer memAuth.Close()
			apiLimiter, authLimiter = memAPI, memAuth
		}
	}

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	checks := map[string]handler.HealthCheck{"database": db.Ping}
	if redisClient != nil {
		checks["redis"] = redisPing(redisClient)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engineHTTP := router.New(router.Config{
		ServiceName: serviceName,
		Logger:      log,
		Metrics:     registry,
		JWT: middleware.JWTConfig{
			Validator:   jwtService,
			Revocations: revocations,
			Logger:      log,
		},
		Access:          orgService,
		APIKeys:         orgService,
		APILimiter:      apiLimiter,
		AuthLimiter:     authLimiter,
		CORS:            cors,
		Security:        middleware.SecurityConfig{HSTSEnabled: cfg.App.IsProduction(), HSTSMaxAge: 31536000},
		MaxBodySize:     cfg.HTTP.MaxBodySize,
		TrustedProxies:  cfg.HTTP.TrustedProxies,
		ProfilerEnabled: profiler.Running(),
	}, router.Handlers{
		Auth:         handler.NewAuthHandler(authService, userService),
		Organization: handler.NewOrganizationHandler(orgService),
		Customer:     handler.NewCustomerHandler(customerService, customerImportService),
		Job:          handler.NewJobHandler(jobService),
		Quote:        handler.NewQuoteHandler(quoteService),
		Invoice:      handler.NewInvoiceHandler(invoiceService, paymentService),
		Payment:      handler.NewPaymentHandler(paymentService),
		Billing:      handler.NewBillingHandler(subscriptionService, connectService),
		Webhook:      handler.NewWebhookHandler(webhookService).WithMetrics(registry),
		Automation:   handler.NewAutomationHandler(automationService),
		Attachment:   handler.NewAttachmentHandler(attachmentService),
		External:     handler.NewExternalHandler(automationService, jobService),
		Outbox:       handler.NewOutboxHandler(outboxService),
		System:       handler.NewSystemHandler(version, checks),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engineHTTP,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	for i := len(stoppers) - 1; i >= 0; i-- {
		if err := stoppers[i].stop(shutdownCtx); err != nil {
			log.Error("Failed to stop "+stoppers[i].name, zap.Error(err))
		}
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Failed to stop profiler", zap.Error(err))
	}
	if err := otel.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush telemetry", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

type stopper struct {
	name string
	stop func(context.Context) error
}

// jobActions gives automation steps the job and invoice operations they need
type jobActions struct {
	jobs     *schedulingapp.JobService
	invoices *salesapp.InvoiceService
}

func (a jobActions) TransitionJob(ctx context.Context, orgID, jobID uuid.UUID, status scheduling.JobStatus, note string) (*scheduling.Job, error) {
	return a.jobs.TransitionJob(ctx, orgID, jobID, status, note)
}

func (a jobActions) CreateInvoiceFromJob(ctx context.Context, orgID, jobID uuid.UUID) (*sales.Invoice, error) {
	return a.invoices.CreateInvoiceFromJob(ctx, orgID, jobID)
}

func migrate(db *persistence.Database, path string, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	var m *migration.Migrator
	if path != "" {
		m, err = migration.New(sqlDB, path, log)
	} else {
		m, err = migration.NewEmbedded(sqlDB, migrations.FS, log)
	}
	if err != nil {
		return err
	}
	return m.Up()
}

func redisPing(client *redis.Client) handler.HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
