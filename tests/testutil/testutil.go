// Package testutil provides shared helpers for package tests: database
// fixtures, gin test contexts and polling assertions.
package testutil

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crewdesk/backend/internal/domain/identity"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/infrastructure/persistence/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	identity.BcryptCost = bcrypt.MinCost
}

// MockDB wraps a GORM postgres session backed by sqlmock
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB creates a mock database that is closed when the test ends
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to open GORM connection")
	t.Cleanup(func() { _ = mockDB.Close() })

	return &MockDB{DB: gormDB, Mock: mock, SqlDB: mockDB}
}

// ExpectationsWereMet verifies that all expectations were met
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// NewTestDB opens a private in-memory sqlite database with the full schema
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// Tenant is a seeded organization with its owner
type Tenant struct {
	Org   *organization.Organization
	Owner *identity.User
	// OwnerMember is the owner's membership row
	OwnerMember *organization.Member
}

// SeedTenant inserts a user, an organization they own and the owner
// membership directly through the models, bypassing the outbox
func SeedTenant(t *testing.T, db *gorm.DB, slug string) *Tenant {
	t.Helper()
	owner, err := identity.NewUser(slug+"-owner@example.com", "Owner of "+slug, "s3cretpass")
	require.NoError(t, err)
	org, err := organization.NewOrganization("Org "+slug, slug, owner.ID)
	require.NoError(t, err)
	member, err := organization.NewMember(org.ID, owner.ID, organization.RoleOwner)
	require.NoError(t, err)

	require.NoError(t, db.Create(models.UserModelFromDomain(owner)).Error)
	require.NoError(t, db.Create(models.OrganizationModelFromDomain(org)).Error)
	require.NoError(t, db.Create(models.MemberModelFromDomain(member)).Error)
	owner.MarkStored()
	org.MarkStored()
	owner.ClearDomainEvents()
	org.ClearDomainEvents()

	return &Tenant{Org: org, Owner: owner, OwnerMember: member}
}

// SeedMember adds a user with role to the tenant's organization
func SeedMember(t *testing.T, db *gorm.DB, tenant *Tenant, email string, role organization.Role) (*identity.User, *organization.Member) {
	t.Helper()
	user, err := identity.NewUser(email, "Member "+email, "s3cretpass")
	require.NoError(t, err)
	member, err := organization.NewMember(tenant.Org.ID, user.ID, role)
	require.NoError(t, err)
	require.NoError(t, db.Create(models.UserModelFromDomain(user)).Error)
	require.NoError(t, db.Create(models.MemberModelFromDomain(member)).Error)
	user.MarkStored()
	user.ClearDomainEvents()
	return user, member
}

// TestContext wraps a Gin test context with its recorder
type TestContext struct {
	Context  *gin.Context
	Recorder *httptest.ResponseRecorder
	Engine   *gin.Engine
}

// NewTestContext creates a Gin test context for a GET /
func NewTestContext(t *testing.T) *TestContext {
	t.Helper()
	w := httptest.NewRecorder()
	c, engine := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return &TestContext{Context: c, Recorder: w, Engine: engine}
}

// SetHeader sets a header on the request
func (tc *TestContext) SetHeader(key, value string) {
	tc.Context.Request.Header.Set(key, value)
}

// ResponseBody returns the response body as bytes
func (tc *TestContext) ResponseBody() []byte {
	return tc.Recorder.Body.Bytes()
}

// ResponseCode returns the HTTP status code
func (tc *TestContext) ResponseCode() int {
	return tc.Recorder.Code
}

// NewTestUUID generates a deterministic UUID from seed
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// ContextWithTimeout creates a context with a timeout for tests
func ContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// RequireEventually polls condition until it holds or fails the test
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}
	require.Fail(t, "Condition not met within timeout", msgAndArgs...)
}
