package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/crewdesk/backend/internal/domain/payment"
	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentInvoice(t *testing.T, orgID uuid.UUID, number string, due time.Time) *sales.Invoice {
	t.Helper()
	inv, err := sales.NewInvoice(orgID, uuid.New(), number, valueobject.USD, decimal.Zero, due)
	require.NoError(t, err)
	item, err := sales.NewLineItem("Labour", decimal.NewFromInt(2), decimal.NewFromInt(75), valueobject.USD)
	require.NoError(t, err)
	require.NoError(t, inv.SetItems([]sales.LineItem{item}))
	require.NoError(t, inv.Send(due.Add(-72*time.Hour)))
	return inv
}

func TestGormInvoiceRepository_FindOverdueUnnotified(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	overdue := sentInvoice(t, uuid.New(), "INV-000001", now.Add(-48*time.Hour))
	notified := sentInvoice(t, uuid.New(), "INV-000002", now.Add(-24*time.Hour))
	require.True(t, notified.MarkOverdueNotified(now))
	notYetDue := sentInvoice(t, uuid.New(), "INV-000003", now.Add(24*time.Hour))
	draft, err := sales.NewInvoice(uuid.New(), uuid.New(), "INV-000004", valueobject.USD, decimal.Zero, now.Add(-time.Hour))
	require.NoError(t, err)
	for _, inv := range []*sales.Invoice{overdue, notified, notYetDue, draft} {
		require.NoError(t, repo.Save(ctx, inv))
	}

	found, err := repo.FindOverdueUnnotified(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, overdue.ID, found[0].ID)
	assert.True(t, found[0].Total.Equal(decimal.NewFromInt(150)))
}

func TestGormInvoiceRepository_ListOverdue(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormInvoiceRepository(db)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()
	orgID := uuid.New()

	require.NoError(t, repo.Save(ctx, sentInvoice(t, orgID, "INV-000010", now.Add(-time.Hour))))
	require.NoError(t, repo.Save(ctx, sentInvoice(t, orgID, "INV-000011", now.Add(time.Hour))))

	items, total, err := repo.List(ctx, orgID, sales.InvoiceFilter{Filter: shared.DefaultFilter(), Overdue: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "INV-000010", items[0].Number)
}

func TestGormQuoteRepository_DeleteDraftOnly(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormQuoteRepository(db)
	ctx := context.Background()
	orgID := uuid.New()

	q, err := sales.NewQuote(orgID, uuid.New(), "Q-000001", valueobject.USD, decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, q))

	assert.ErrorIs(t, repo.Delete(ctx, uuid.New(), q.ID), shared.ErrNotFound)
	require.NoError(t, repo.Delete(ctx, orgID, q.ID))
	_, err = repo.FindByID(ctx, orgID, q.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormSequenceRepository_Next(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormSequenceRepository(db)
	ctx := context.Background()
	orgA, orgB := uuid.New(), uuid.New()

	for want := int64(1); want <= 3; want++ {
		got, err := repo.Next(ctx, orgA, sales.SequenceInvoice)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := repo.Next(ctx, orgA, sales.SequenceQuote)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
	got, err = repo.Next(ctx, orgB, sales.SequenceInvoice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestGormSequenceRepository_NextIsUniqueUnderConcurrency(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormSequenceRepository(db)
	orgID := uuid.New()

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := repo.Next(context.Background(), orgID, sales.SequenceInvoice)
			assert.NoError(t, err)
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestGormPaymentRepository_FindByProviderRef(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	orgID := uuid.New()
	invoiceID := uuid.New()

	p, err := payment.NewProcessorPayment(orgID, invoiceID, uuid.New(), decimal.NewFromInt(150), valueobject.USD,
		payment.MethodCard, payment.ProviderStripe, "pi_123")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, p))
	cash, err := payment.NewManualPayment(orgID, invoiceID, uuid.New(), decimal.NewFromInt(20), valueobject.USD,
		payment.MethodCash, "", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, cash))

	found, err := repo.FindByProviderRef(ctx, payment.ProviderStripe, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	_, err = repo.FindByProviderRef(ctx, payment.ProviderManual, "")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	items, total, err := repo.List(ctx, orgID, payment.PaymentFilter{Filter: shared.DefaultFilter(), InvoiceID: &invoiceID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)
}
