package billing

import (
	"context"
	"testing"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/billing"
	"github.com/crewdesk/backend/internal/infrastructure/persistence"
	"github.com/crewdesk/backend/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockStripe is a mock of the plan and Connect gateway calls
type MockStripe struct {
	mock.Mock
}

func (m *MockStripe) CreateCustomer(ctx context.Context, orgID uuid.UUID, email, name string) (string, error) {
	args := m.Called(ctx, orgID, email, name)
	return args.String(0), args.Error(1)
}

func (m *MockStripe) CreateCheckoutSession(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *MockStripe) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

func (m *MockStripe) CreateConnectAccount(ctx context.Context, in billing.ConnectAccountInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *MockStripe) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*billing.AccountLink, error) {
	args := m.Called(ctx, accountID, refreshURL, returnURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.AccountLink), args.Error(1)
}

func (m *MockStripe) GetAccountStatus(ctx context.Context, accountID string) (*billing.AccountStatus, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.AccountStatus), args.Error(1)
}

func newPlanServices(t *testing.T) (*gorm.DB, *testutil.Tenant, *MockStripe, *SubscriptionService, *ConnectService) {
	t.Helper()
	db := testutil.NewTestDB(t)
	tenant := testutil.SeedTenant(t, db, "acme")
	gw := new(MockStripe)
	orgs := persistence.NewGormOrganizationRepository(db)
	users := persistence.NewGormUserRepository(db)
	subs := NewSubscriptionService(orgs, persistence.NewGormMemberRepository(db), persistence.NewGormSubscriptionRepository(db),
		users, gw, "https://app.crewdesk.test/", zap.NewNop())
	connect := NewConnectService(orgs, users, gw, "https://app.crewdesk.test", zap.NewNop())
	return db, tenant, gw, subs, connect
}

func TestSubscriptionService_Get(t *testing.T) {
	_, tenant, _, svc, _ := newPlanServices(t)

	resp, err := svc.Get(context.Background(), tenant.Org.ID)
	require.NoError(t, err)
	assert.Equal(t, "free", resp.Plan)
	assert.Equal(t, int64(1), resp.ActiveMembers)
	assert.Nil(t, resp.Active)
	assert.Empty(t, resp.Subscriptions)
	assert.False(t, resp.CanManage)
}

func TestSubscriptionService_Checkout(t *testing.T) {
	_, tenant, gw, svc, _ := newPlanServices(t)
	ctx := context.Background()
	orgID := tenant.Org.ID

	_, err := svc.Checkout(ctx, orgID, tenant.Owner.ID, CheckoutRequest{Plan: "free"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	gw.On("CreateCustomer", mock.Anything, orgID, "acme-owner@example.com", "Org acme").Return("cus_9", nil).Once()
	gw.On("CreateCheckoutSession", mock.Anything, billing.CheckoutInput{
		OrgID:      orgID,
		CustomerID: "cus_9",
		Plan:       "pro",
		SuccessURL: "https://app.crewdesk.test/settings/billing?checkout=success",
		CancelURL:  "https://app.crewdesk.test/settings/billing?checkout=cancelled",
	}).Return(&billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil).Once()

	resp, err := svc.Checkout(ctx, orgID, tenant.Owner.ID, CheckoutRequest{Plan: "pro"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", resp.URL)

	gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(in billing.CheckoutInput) bool {
		return in.CustomerID == "cus_9" && in.Plan == "business"
	})).Return(nil, billing.ErrUnknownPlan).Once()
	_, err = svc.Checkout(ctx, orgID, tenant.Owner.ID, CheckoutRequest{Plan: "business"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	gw.On("CreatePortalSession", mock.Anything, "cus_9", "https://app.crewdesk.test/settings/billing").
		Return("https://billing.stripe.test/p", nil).Once()
	portal, err := svc.Portal(ctx, orgID, PortalRequest{})
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.test/p", portal.URL)

	gw.AssertExpectations(t)
}

func TestSubscriptionService_PortalWithoutCustomer(t *testing.T) {
	_, tenant, _, svc, _ := newPlanServices(t)
	_, err := svc.Portal(context.Background(), tenant.Org.ID, PortalRequest{})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestConnectService_Onboarding(t *testing.T) {
	_, tenant, gw, _, svc := newPlanServices(t)
	ctx := context.Background()
	orgID := tenant.Org.ID

	status, err := svc.Status(ctx, orgID)
	require.NoError(t, err)
	assert.False(t, status.Connected)

	_, err = svc.AccountLink(ctx, orgID, AccountLinkRequest{})
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	gw.On("CreateConnectAccount", mock.Anything, billing.ConnectAccountInput{
		OrgID: orgID, Email: "acme-owner@example.com", BusinessName: "Org acme", Country: "US",
	}).Return("acct_77", nil).Once()
	status, err = svc.CreateAccount(ctx, orgID, tenant.Owner.ID, ConnectAccountRequest{Country: "us"})
	require.NoError(t, err)
	assert.Equal(t, "acct_77", status.AccountID)

	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	gw.On("CreateAccountLink", mock.Anything, "acct_77",
		"https://app.crewdesk.test/settings/payments?onboarding=refresh",
		"https://app.crewdesk.test/settings/payments?onboarding=done").
		Return(&billing.AccountLink{URL: "https://connect.stripe.test/setup", ExpiresAt: expires}, nil).Once()
	link, err := svc.AccountLink(ctx, orgID, AccountLinkRequest{})
	require.NoError(t, err)
	assert.Equal(t, "https://connect.stripe.test/setup", link.URL)

	gw.On("GetAccountStatus", mock.Anything, "acct_77").
		Return(&billing.AccountStatus{AccountID: "acct_77", ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}, nil)
	status, err = svc.Status(ctx, orgID)
	require.NoError(t, err)
	assert.True(t, status.ChargesEnabled)

	again, err := svc.CreateAccount(ctx, orgID, tenant.Owner.ID, ConnectAccountRequest{})
	require.NoError(t, err)
	assert.Equal(t, "acct_77", again.AccountID, "an existing account is reused")
	gw.AssertExpectations(t)
}
