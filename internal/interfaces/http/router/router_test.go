package router

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	crmapp "github.com/crewdesk/backend/internal/application/crm"
	identityapp "github.com/crewdesk/backend/internal/application/identity"
	orgapp "github.com/crewdesk/backend/internal/application/organization"
	schedulingapp "github.com/crewdesk/backend/internal/application/scheduling"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/infrastructure/auth"
	"github.com/crewdesk/backend/internal/infrastructure/config"
	"github.com/crewdesk/backend/internal/infrastructure/metrics"
	"github.com/crewdesk/backend/internal/infrastructure/persistence"
	"github.com/crewdesk/backend/internal/infrastructure/ratelimit"
	"github.com/crewdesk/backend/internal/interfaces/http/dto"
	"github.com/crewdesk/backend/internal/interfaces/http/handler"
	"github.com/crewdesk/backend/internal/interfaces/http/middleware"
	"github.com/crewdesk/backend/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/test/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("group middleware runs before route middleware", func(t *testing.T) {
		var order []string
		mark := func(name string) gin.HandlerFunc {
			return func(c *gin.Context) { order = append(order, name) }
		}

		g := NewDomainGroup("jobs", "/jobs").Use(mark("group"))
		g.POST("/:id/start", mark("route"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

		engine := gin.New()
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/42/start", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []string{"group", "route"}, order)
	})

	t.Run("routes include subgroups with full paths", func(t *testing.T) {
		g := NewDomainGroup("org", "")
		g.GET("/payments", func(*gin.Context) {})
		jobs := g.Group("jobs", "/jobs")
		jobs.GET("", func(*gin.Context) {})
		jobs.POST("/:id/assign", func(*gin.Context) {})

		assert.Equal(t, "org", g.Name())
		assert.Equal(t, "", g.Prefix())
		assert.ElementsMatch(t, []RouteInfo{
			{Method: "GET", Path: "/payments"},
			{Method: "GET", Path: "/jobs"},
			{Method: "POST", Path: "/jobs/:id/assign"},
		}, g.Routes())
	})
}

type apiFixture struct {
	engine *gin.Engine
	tenant *testutil.Tenant
	techID uuid.UUID
}

func newAPIFixture(t *testing.T, authLimiter ratelimit.Limiter) *apiFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	tenant := testutil.SeedTenant(t, db, "acme")
	tech, _ := testutil.SeedMember(t, db, tenant, "tech@example.com", organization.RoleTechnician)

	jwtSvc := auth.NewJWTService(config.JWTConfig{
		Secret:                 "router-test-secret-long-enough-for-hs256",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: time.Hour,
		Issuer:                 "crewdesk-test",
	})
	revocations := auth.NewMemoryRevocationList()
	log := zap.NewNop()

	users := persistence.NewGormUserRepository(db)
	members := persistence.NewGormMemberRepository(db)
	customers := persistence.NewGormCustomerRepository(db)
	orgService := orgapp.NewOrganizationService(
		persistence.NewGormOrganizationRepository(db),
		members,
		persistence.NewGormInvitationRepository(db),
		persistence.NewGormAPIKeyRepository(db),
		users,
		persistence.NewTxManager(db),
		log,
	)
	authService := identityapp.NewAuthService(users, members, jwtSvc, revocations, log)
	userService := identityapp.NewUserService(users, members, jwtSvc, revocations, log)
	customerService := crmapp.NewCustomerService(customers, log)
	jobService := schedulingapp.NewJobService(persistence.NewGormJobRepository(db), customers, members, log)

	sqlDB, err := db.DB()
	require.NoError(t, err)

	engine := New(Config{
		ServiceName: "crewdesk-test",
		Logger:      log,
		Metrics:     metrics.New(),
		JWT:         middleware.JWTConfig{Validator: jwtSvc, Revocations: revocations},
		Access:      orgService,
		APIKeys:     orgService,
		AuthLimiter: authLimiter,
		CORS:        middleware.DefaultCORSConfig(),
		MaxBodySize: 1 << 20,
	}, Handlers{
		Auth:         handler.NewAuthHandler(authService, userService),
		Organization: handler.NewOrganizationHandler(orgService),
		Customer:     handler.NewCustomerHandler(customerService, crmapp.NewCustomerImportService(customers, customers, persistence.NewTxManager(db), log)),
		Job:          handler.NewJobHandler(jobService),
		External:     handler.NewExternalHandler(nil, jobService),
		System: handler.NewSystemHandler("test", map[string]handler.HealthCheck{
			"database": sqlDB.PingContext,
		}),
	})

	return &apiFixture{engine: engine, tenant: tenant, techID: tech.ID}
}

func (f *apiFixture) login(t *testing.T, email string) string {
	t.Helper()
	w := testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": email, "password": "s3cretpass"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return testutil.DecodeData[handler.TokenResponse](t, w).AccessToken
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := testutil.DoJSON(t, f.engine, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	health := testutil.DecodeData[handler.HealthResponse](t, w)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Checks["database"])

	w = testutil.DoJSON(t, f.engine, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `crewdesk_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestHealthReportsFailingDependency(t *testing.T) {
	sys := handler.NewSystemHandler("test", map[string]handler.HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	engine := New(Config{}, Handlers{System: sys})

	w := testutil.DoJSON(t, engine, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	health := testutil.DecodeData[handler.HealthResponse](t, w)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "connection refused", health.Checks["redis"])
}

func TestUnknownRoute(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/nope", nil, nil)
	testutil.AssertErrorCode(t, w, http.StatusNotFound, dto.ErrCodeNotFound)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestOrgRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/customers", nil, nil)
	testutil.AssertErrorCode(t, w, http.StatusUnauthorized, dto.ErrCodeUnauthorized)
}

func TestCustomerAndJobFlow(t *testing.T) {
	f := newAPIFixture(t, nil)
	owner := f.login(t, f.tenant.Owner.Email)
	tech := f.login(t, "tech@example.com")

	w := testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/customers",
		map[string]any{"name": "Rosa Diaz", "email": "rosa@example.com", "tags": []string{"vip"}}, testutil.Bearer(owner))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	customer := testutil.DecodeData[crmapp.CustomerResponse](t, w)
	assert.Equal(t, "Rosa Diaz", customer.Name)

	t.Run("technicians can read but not write customers", func(t *testing.T) {
		w := testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/customers",
			map[string]any{"name": "Nope"}, testutil.Bearer(tech))
		testutil.AssertErrorCode(t, w, http.StatusForbidden, dto.ErrCodeForbidden)

		w = testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/customers?search=rosa", nil, testutil.Bearer(tech))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		list := testutil.DecodeData[[]crmapp.CustomerResponse](t, w)
		require.Len(t, list, 1)
		assert.Equal(t, customer.ID, list[0].ID)
	})

	t.Run("validation errors carry field details", func(t *testing.T) {
		w := testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/customers",
			map[string]any{"email": "not-an-email"}, testutil.Bearer(owner))
		testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
		assert.Contains(t, w.Body.String(), `"field":"name"`)
	})

	day := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	w = testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/jobs", map[string]any{
		"customer_id":     customer.ID,
		"title":           "Replace water heater",
		"scheduled_start": day,
		"scheduled_end":   day.Add(2 * time.Hour),
		"assignee_ids":    []uuid.UUID{f.techID},
	}, testutil.Bearer(owner))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	job := testutil.DecodeData[schedulingapp.JobResponse](t, w)
	jobPath := "/api/v1/jobs/" + job.ID.String()

	t.Run("technicians cannot dispatch", func(t *testing.T) {
		w := testutil.DoJSON(t, f.engine, http.MethodPost, jobPath+"/dispatch", nil, testutil.Bearer(tech))
		testutil.AssertErrorCode(t, w, http.StatusForbidden, dto.ErrCodeForbidden)
	})

	t.Run("starting before dispatch is an invalid state", func(t *testing.T) {
		w := testutil.DoJSON(t, f.engine, http.MethodPost, jobPath+"/start", nil, testutil.Bearer(tech))
		testutil.AssertErrorCode(t, w, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState)
	})

	w = testutil.DoJSON(t, f.engine, http.MethodPost, jobPath+"/dispatch", nil, testutil.Bearer(owner))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutil.DoJSON(t, f.engine, http.MethodPost, jobPath+"/start", nil, testutil.Bearer(tech))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "in_progress", testutil.DecodeData[schedulingapp.JobResponse](t, w).Status)

	w = testutil.DoJSON(t, f.engine, http.MethodPost, jobPath+"/complete", map[string]any{
		"note":  "Old unit hauled away",
		"items": []map[string]any{{"description": "Labour", "quantity": "2", "unit_price": "95.00"}},
	}, testutil.Bearer(tech))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	completed := testutil.DecodeData[schedulingapp.JobResponse](t, w)
	assert.Equal(t, "completed", completed.Status)
	assert.Len(t, completed.BillableItems, 1)

	t.Run("schedule lists the job for the technician", func(t *testing.T) {
		q := "?from=" + day.Add(-time.Hour).Format(time.RFC3339) + "&to=" + day.Add(3*time.Hour).Format(time.RFC3339)
		w := testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/jobs/schedule"+q+"&member_id="+f.techID.String(), nil, testutil.Bearer(owner))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		entries := testutil.DecodeData[[]schedulingapp.ScheduleEntry](t, w)
		require.Len(t, entries, 1)
		assert.Equal(t, "Rosa Diaz", entries[0].CustomerName)
	})

	t.Run("list filters by assignee and customer", func(t *testing.T) {
		q := "?assignee_id=" + f.techID.String() + "&customer_id=" + customer.ID.String()
		w := testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/jobs"+q, nil, testutil.Bearer(owner))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		jobs := testutil.DecodeData[[]schedulingapp.JobResponse](t, w)
		require.Len(t, jobs, 1)
		assert.Equal(t, job.ID, jobs[0].ID)

		w = testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/jobs?assignee_id="+uuid.NewString(), nil, testutil.Bearer(owner))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Empty(t, testutil.DecodeData[[]schedulingapp.JobResponse](t, w))
	})

	t.Run("malformed filter id is invalid input", func(t *testing.T) {
		w := testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/jobs?customer_id=rosa", nil, testutil.Bearer(owner))
		testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
		w = testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/invoices?job_id=42", nil, testutil.Bearer(owner))
		testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
	})

	t.Run("malformed id is a bad request", func(t *testing.T) {
		w := testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil, testutil.Bearer(owner))
		testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeBadRequest)
	})
}

func TestCustomerImport(t *testing.T) {
	f := newAPIFixture(t, nil)
	owner := f.login(t, f.tenant.Owner.Email)
	tech := f.login(t, "tech@example.com")
	csv := "name,email,tags\nRosa Diaz,rosa@example.com,vip\nAmy Santiago,amy@example.com,\n"

	post := func(token, query, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/customers/import"+query, body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		f.engine.ServeHTTP(w, req)
		return w
	}

	t.Run("technicians cannot import", func(t *testing.T) {
		w := post(tech, "", "text/csv", bytes.NewBufferString(csv))
		testutil.AssertErrorCode(t, w, http.StatusForbidden, dto.ErrCodeForbidden)
	})

	t.Run("dry run over a raw body", func(t *testing.T) {
		w := post(owner, "?dry_run=true", "text/csv", bytes.NewBufferString(csv))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		res := testutil.DecodeData[crmapp.ImportResult](t, w)
		assert.True(t, res.DryRun)
		assert.Equal(t, 2, res.TotalRows)
		assert.Equal(t, 0, res.Created)
	})

	t.Run("multipart upload creates customers", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "customers.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(csv))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		w := post(owner, "", mw.FormDataContentType(), &buf)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, 2, testutil.DecodeData[crmapp.ImportResult](t, w).Created)

		w = testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/customers?tag=vip", nil, testutil.Bearer(owner))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		list := testutil.DecodeData[[]crmapp.CustomerResponse](t, w)
		require.Len(t, list, 1)
		assert.Equal(t, "Rosa Diaz", list[0].Name)
	})

	t.Run("re-import reports existing emails", func(t *testing.T) {
		w := post(owner, "", "text/csv", bytes.NewBufferString(csv))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		res := testutil.DecodeData[crmapp.ImportResult](t, w)
		assert.Equal(t, 2, res.ErrorRows)
		assert.Equal(t, 0, res.Created)
	})

	t.Run("missing file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("note", "x"))
		require.NoError(t, mw.Close())
		w := post(owner, "", mw.FormDataContentType(), &buf)
		testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeBadRequest)
	})

	t.Run("file without name column", func(t *testing.T) {
		w := post(owner, "", "text/csv", bytes.NewBufferString("email\nx@example.com\n"))
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})
}

func TestForeignOrganizationHeaderIsForbidden(t *testing.T) {
	f := newAPIFixture(t, nil)
	owner := f.login(t, f.tenant.Owner.Email)

	headers := testutil.Bearer(owner)
	headers[middleware.OrgIDHeader] = uuid.NewString()
	w := testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/customers", nil, headers)
	testutil.AssertErrorCode(t, w, http.StatusForbidden, dto.ErrCodeForbidden)
}

func TestMeAndSwitchOrgNeedNoOrganization(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "new@example.com", "name": "New Owner", "password": "longenough",
	}, nil)
	testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)

	w = testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "new@example.com", "name": "New Owner", "password": "longenough7",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token := testutil.DecodeData[handler.TokenResponse](t, w).AccessToken

	w = testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/auth/me", nil, testutil.Bearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me := testutil.DecodeData[handler.CurrentUserResponse](t, w)
	assert.Empty(t, me.Memberships)

	// no organization yet
	w = testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/customers", nil, testutil.Bearer(token))
	testutil.AssertErrorCode(t, w, http.StatusForbidden, dto.ErrCodeForbidden)

	w = testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/orgs", map[string]string{"name": "New Co"}, testutil.Bearer(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestExternalRoutesRequireAPIKey(t *testing.T) {
	f := newAPIFixture(t, nil)
	owner := f.login(t, f.tenant.Owner.Email)

	w := testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/ext/jobs", nil, nil)
	testutil.AssertErrorCode(t, w, http.StatusUnauthorized, dto.ErrCodeUnauthorized)

	w = testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/api-keys",
		map[string]any{"name": "Zapier", "scopes": []string{"events:write"}}, testutil.Bearer(owner))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	key := testutil.DecodeData[orgapp.APIKeyResult](t, w)
	require.NotEmpty(t, key.Key)

	apiKey := map[string]string{middleware.APIKeyHeader: key.Key}
	w = testutil.DoJSON(t, f.engine, http.MethodGet, "/api/v1/ext/jobs", nil, apiKey)
	testutil.AssertErrorCode(t, w, http.StatusForbidden, dto.ErrCodeForbidden)

	w = testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/ext/events", map[string]any{}, apiKey)
	testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(2, time.Minute)
	t.Cleanup(limiter.Close)
	f := newAPIFixture(t, limiter)

	body := map[string]string{"email": f.tenant.Owner.Email, "password": "wrong-password"}
	for i := 0; i < 2; i++ {
		w := testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/auth/login", body, nil)
		testutil.AssertErrorCode(t, w, http.StatusUnauthorized, dto.ErrCodeInvalidCredentials)
	}
	w := testutil.DoJSON(t, f.engine, http.MethodPost, "/api/v1/auth/login", body, nil)
	testutil.AssertErrorCode(t, w, http.StatusTooManyRequests, dto.ErrCodeRateLimited)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
