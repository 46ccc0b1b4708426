package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory sqlite database with the full schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// recordingSaver captures events handed to the outbox
type recordingSaver struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

func (s *recordingSaver) SaveEvents(_ context.Context, tx any, events ...shared.DomainEvent) error {
	if _, ok := tx.(*gorm.DB); !ok {
		panic("outbox saver expects a *gorm.DB transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSaver) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType()
	}
	return out
}

func newCustomer(t *testing.T, orgID uuid.UUID, name string, tags ...string) *crm.Customer {
	t.Helper()
	c, err := crm.NewCustomer(orgID, crm.CustomerDetails{Name: name, Email: name + "@example.com", Tags: tags})
	require.NoError(t, err)
	return c
}

func TestSaveAggregate_VersionLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormCustomerRepository(db)
	ctx := context.Background()
	orgID := uuid.New()

	c := newCustomer(t, orgID, "ada")
	require.NoError(t, repo.Save(ctx, c))
	assert.Equal(t, 1, c.Version)
	assert.Equal(t, 1, c.StoredVersion())

	loaded, err := repo.FindByID(ctx, orgID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.StoredVersion())

	loaded.Notes = "gate code 1234"
	require.NoError(t, repo.Save(ctx, loaded))
	assert.Equal(t, 2, loaded.Version)

	again, err := repo.FindByID(ctx, orgID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version)
	assert.Equal(t, "gate code 1234", again.Notes)
}

func TestSaveAggregate_StaleWriteConflicts(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormCustomerRepository(db)
	ctx := context.Background()
	orgID := uuid.New()

	c := newCustomer(t, orgID, "grace")
	require.NoError(t, repo.Save(ctx, c))

	first, err := repo.FindByID(ctx, orgID, c.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, orgID, c.ID)
	require.NoError(t, err)

	first.Notes = "first"
	require.NoError(t, repo.Save(ctx, first))

	second.Notes = "second"
	err = repo.Save(ctx, second)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	stored, err := repo.FindByID(ctx, orgID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Notes)
}

func TestSaveAggregate_WritesEventsAndClears(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormCustomerRepository(db)
	saver := &recordingSaver{}
	repo.SetOutboxEventSaver(saver)

	c := newCustomer(t, uuid.New(), "linus")
	require.NotEmpty(t, c.GetDomainEvents())
	require.NoError(t, repo.Save(context.Background(), c))

	assert.Equal(t, []string{crm.EventTypeCustomerCreated}, saver.types())
	assert.Empty(t, c.GetDomainEvents())
}

func TestSaveAggregate_OutboxFailureRollsBack(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormCustomerRepository(db)
	repo.SetOutboxEventSaver(&recordingSaver{err: assert.AnError})
	ctx := context.Background()
	orgID := uuid.New()

	c := newCustomer(t, orgID, "margaret")
	err := repo.Save(ctx, c)
	require.ErrorIs(t, err, assert.AnError)
	assert.NotEmpty(t, c.GetDomainEvents())
	assert.Equal(t, 0, c.StoredVersion())

	_, err = repo.FindByID(ctx, orgID, c.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil))
	assert.Equal(t, shared.ErrNotFound, translateError(gorm.ErrRecordNotFound))
	assert.Equal(t, shared.ErrAlreadyExists, translateError(gorm.ErrDuplicatedKey))
	assert.Equal(t, assert.AnError, translateError(assert.AnError))
}

func TestLikePattern_EscapesWildcards(t *testing.T) {
	assert.Equal(t, `%50\% off%`, likePattern(" 50% OFF "))
	assert.Equal(t, `%a\_b%`, likePattern("a_b"))
}

func TestTxManager_CommitsAndRollsBack(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormCustomerRepository(db)
	txm := NewTxManager(db)
	ctx := context.Background()
	orgID := uuid.New()

	kept := newCustomer(t, orgID, "kept")
	require.NoError(t, txm.WithinTx(ctx, func(ctx context.Context) error {
		return repo.Save(ctx, kept)
	}))

	dropped := newCustomer(t, orgID, "dropped")
	boom := errors.New("boom")
	err := txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := repo.Save(ctx, dropped); err != nil {
			return err
		}
		return txm.WithinTx(ctx, func(context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.FindByID(ctx, orgID, kept.ID)
	assert.NoError(t, err)
	_, err = repo.FindByID(ctx, orgID, dropped.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
