package payment

import (
	"context"
	"testing"
	"time"

	domaincrm "github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/payment"
	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/billing"
	"github.com/crewdesk/backend/internal/infrastructure/persistence"
	"github.com/crewdesk/backend/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockCardGateway struct {
	mock.Mock
}

func (m *MockCardGateway) CreatePaymentIntent(ctx context.Context, in billing.PaymentIntentInput) (*billing.PaymentIntent, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentIntent), args.Error(1)
}

func (m *MockCardGateway) CreateTerminalConnectionToken(ctx context.Context, locationID string) (string, error) {
	args := m.Called(ctx, locationID)
	return args.String(0), args.Error(1)
}

type paymentFixture struct {
	svc      *PaymentService
	gateway  *MockCardGateway
	payments *persistence.GormPaymentRepository
	invoices *persistence.GormInvoiceRepository
	orgs     *persistence.GormOrganizationRepository
	tenant   *testutil.Tenant
	invoice  *sales.Invoice
	now      time.Time
}

// newPaymentFixture seeds a sent $200.00 invoice
func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	tenant := testutil.SeedTenant(t, db, "acme")
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	customers := persistence.NewGormCustomerRepository(db)
	customer, err := domaincrm.NewCustomer(tenant.Org.ID, domaincrm.CustomerDetails{Name: "Rosa Diaz"})
	require.NoError(t, err)
	require.NoError(t, customers.Save(ctx, customer))

	invoices := persistence.NewGormInvoiceRepository(db)
	invoice, err := sales.NewInvoice(tenant.Org.ID, customer.ID, "INV-000001", tenant.Org.Currency, decimal.Zero, now.AddDate(0, 0, 14))
	require.NoError(t, err)
	item, err := sales.NewLineItem("Water heater flush", decimal.NewFromInt(2), decimal.NewFromInt(100), tenant.Org.Currency)
	require.NoError(t, err)
	require.NoError(t, invoice.SetItems([]sales.LineItem{item}))
	require.NoError(t, invoice.Send(now))
	require.NoError(t, invoices.Save(ctx, invoice))

	gateway := new(MockCardGateway)
	payments := persistence.NewGormPaymentRepository(db)
	orgs := persistence.NewGormOrganizationRepository(db)
	svc := NewPaymentService(payments, invoices, orgs, gateway, persistence.NewTxManager(db), zap.NewNop())
	svc.now = func() time.Time { return now }

	return &paymentFixture{
		svc:      svc,
		gateway:  gateway,
		payments: payments,
		invoices: invoices,
		orgs:     orgs,
		tenant:   tenant,
		invoice:  invoice,
		now:      now,
	}
}

func (f *paymentFixture) enableCards(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	org, err := f.orgs.FindByID(ctx, f.tenant.Org.ID)
	require.NoError(t, err)
	require.NoError(t, org.ConnectStripeAccount("acct_123"))
	org.UpdateStripeCapabilities(true, true)
	require.NoError(t, f.orgs.Save(ctx, org))
}

func (f *paymentFixture) reloadInvoice(t *testing.T) *sales.Invoice {
	t.Helper()
	inv, err := f.invoices.FindByID(context.Background(), f.tenant.Org.ID, f.invoice.ID)
	require.NoError(t, err)
	return inv
}

func TestPaymentService_RecordManual(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	orgID := f.tenant.Org.ID

	p, err := f.svc.RecordManual(ctx, orgID, f.invoice.ID, f.tenant.Owner.ID, ManualPaymentRequest{
		Amount:    decimal.NewFromInt(50),
		Method:    "check",
		Reference: " #1042 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "succeeded", p.Status)
	assert.Equal(t, "manual", p.Provider)
	assert.Equal(t, "#1042", p.Reference)
	assert.Equal(t, "$50.00", p.AmountDisplay)

	inv := f.reloadInvoice(t)
	assert.Equal(t, sales.InvoiceStatusPartiallyPaid, inv.Status)
	assert.Equal(t, "150.00", inv.BalanceDue().StringFixed(2))

	_, err = f.svc.RecordManual(ctx, orgID, f.invoice.ID, f.tenant.Owner.ID, ManualPaymentRequest{
		Amount: decimal.NewFromInt(151),
		Method: "cash",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput, "overpayment is rejected")

	_, err = f.svc.RecordManual(ctx, orgID, f.invoice.ID, f.tenant.Owner.ID, ManualPaymentRequest{
		Amount: decimal.NewFromInt(150),
		Method: "cash",
	})
	require.NoError(t, err)
	inv = f.reloadInvoice(t)
	assert.Equal(t, sales.InvoiceStatusPaid, inv.Status)
	require.NotNil(t, inv.PaidAt)

	page, err := f.svc.List(ctx, orgID, PaymentListFilter{InvoiceID: f.invoice.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
}

func TestPaymentService_RecordManual_Validation(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	future := f.now.Add(time.Hour)

	_, err := f.svc.RecordManual(ctx, f.tenant.Org.ID, f.invoice.ID, f.tenant.Owner.ID, ManualPaymentRequest{
		Amount: decimal.NewFromInt(10), Method: "cash", ReceivedAt: &future,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = f.svc.RecordManual(ctx, f.tenant.Org.ID, f.invoice.ID, f.tenant.Owner.ID, ManualPaymentRequest{
		Amount: decimal.NewFromInt(10), Method: "card",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput, "card payments go through the processor")

	_, err = f.svc.RecordManual(ctx, uuid.New(), f.invoice.ID, f.tenant.Owner.ID, ManualPaymentRequest{
		Amount: decimal.NewFromInt(10), Method: "cash",
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPaymentService_CreateIntent(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	orgID := f.tenant.Org.ID

	_, err := f.svc.CreateIntent(ctx, orgID, f.invoice.ID, PaymentIntentRequest{})
	assert.ErrorIs(t, err, ErrCardPaymentsDisabled)

	f.enableCards(t)
	f.gateway.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(in billing.PaymentIntentInput) bool {
		return in.Amount == 20000 && in.DestinationAccount == "acct_123" && in.Currency == "USD" && !in.CardPresent
	})).Return(&billing.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: 20000, ApplicationFee: 100}, nil).Twice()

	first, err := f.svc.CreateIntent(ctx, orgID, f.invoice.ID, PaymentIntentRequest{})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", first.ClientSecret)
	assert.Equal(t, int64(100), first.ApplicationFee)

	second, err := f.svc.CreateIntent(ctx, orgID, f.invoice.ID, PaymentIntentRequest{})
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID, "same intent maps to the same pending payment")

	p, err := f.payments.FindByProviderRef(ctx, payment.ProviderStripe, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, payment.MethodCard, p.Method)
	f.gateway.AssertExpectations(t)
}

func TestPaymentService_ConfirmProcessorPayment_AppliesOnce(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	f.enableCards(t)
	f.gateway.On("CreatePaymentIntent", mock.Anything, mock.Anything).
		Return(&billing.PaymentIntent{ID: "pi_2", ClientSecret: "s", Amount: 20000}, nil).Once()

	_, err := f.svc.CreateIntent(ctx, f.tenant.Org.ID, f.invoice.ID, PaymentIntentRequest{CardPresent: true})
	require.NoError(t, err)

	require.NoError(t, f.svc.ConfirmProcessorPayment(ctx, payment.ProviderStripe, "pi_2"))
	require.NoError(t, f.svc.ConfirmProcessorPayment(ctx, payment.ProviderStripe, "pi_2"), "duplicate delivery is a no-op")

	inv := f.reloadInvoice(t)
	assert.Equal(t, sales.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, "200.00", inv.AmountPaid.StringFixed(2))

	p, err := f.payments.FindByProviderRef(ctx, payment.ProviderStripe, "pi_2")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, p.Status)
	assert.Equal(t, payment.MethodTerminal, p.Method)

	require.NoError(t, f.svc.RefundProcessorPayment(ctx, payment.ProviderStripe, "pi_2"))
	inv = f.reloadInvoice(t)
	assert.Equal(t, sales.InvoiceStatusSent, inv.Status)
	assert.True(t, inv.AmountPaid.IsZero())

	err = f.svc.ConfirmProcessorPayment(ctx, payment.ProviderStripe, "pi_unknown")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPaymentService_FailProcessorPayment(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	f.enableCards(t)
	f.gateway.On("CreatePaymentIntent", mock.Anything, mock.Anything).
		Return(&billing.PaymentIntent{ID: "pi_3", ClientSecret: "s", Amount: 20000}, nil).Once()
	_, err := f.svc.CreateIntent(ctx, f.tenant.Org.ID, f.invoice.ID, PaymentIntentRequest{})
	require.NoError(t, err)

	require.NoError(t, f.svc.FailProcessorPayment(ctx, payment.ProviderStripe, "pi_3", "card_declined"))
	require.NoError(t, f.svc.FailProcessorPayment(ctx, payment.ProviderStripe, "pi_3", "card_declined"))

	p, err := f.payments.FindByProviderRef(ctx, payment.ProviderStripe, "pi_3")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Equal(t, "card_declined", p.FailureReason)
	assert.Equal(t, sales.InvoiceStatusSent, f.reloadInvoice(t).Status)
}

func TestPaymentService_ConnectionToken(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.ConnectionToken(ctx, f.tenant.Org.ID, ConnectionTokenRequest{})
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	f.enableCards(t)
	f.gateway.On("CreateTerminalConnectionToken", mock.Anything, "tml_loc").Return("pst_test_secret", nil).Once()
	tok, err := f.svc.ConnectionToken(ctx, f.tenant.Org.ID, ConnectionTokenRequest{LocationID: "tml_loc"})
	require.NoError(t, err)
	assert.Equal(t, "pst_test_secret", tok.Secret)
}
