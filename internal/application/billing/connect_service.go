package billing

import (
	"context"
	"strings"

	"github.com/crewdesk/backend/internal/domain/identity"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/billing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnectGateway manages Stripe Connect Express accounts
type ConnectGateway interface {
	CreateConnectAccount(ctx context.Context, in billing.ConnectAccountInput) (string, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*billing.AccountLink, error)
	GetAccountStatus(ctx context.Context, accountID string) (*billing.AccountStatus, error)
}

// ConnectService onboards an organization onto Stripe Connect so it can take card payments
type ConnectService struct {
	orgRepo   organization.OrganizationRepository
	userRepo  identity.UserRepository
	gateway   ConnectGateway
	publicURL string
	logger    *zap.Logger
}

// NewConnectService creates a new ConnectService
func NewConnectService(
	orgRepo organization.OrganizationRepository,
	userRepo identity.UserRepository,
	gateway ConnectGateway,
	publicURL string,
	logger *zap.Logger,
) *ConnectService {
	return &ConnectService{
		orgRepo:   orgRepo,
		userRepo:  userRepo,
		gateway:   gateway,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}
}

// CreateAccount creates the organization's Express account. An organization
// that already has one gets its current status back.
func (s *ConnectService) CreateAccount(ctx context.Context, orgID, userID uuid.UUID, req ConnectAccountRequest) (*ConnectStatusResponse, error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.StripeAccountID != "" {
		return s.Status(ctx, orgID)
	}
	email := org.Email
	if email == "" {
		user, err := s.userRepo.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		email = user.Email
	}

	accountID, err := s.gateway.CreateConnectAccount(ctx, billing.ConnectAccountInput{
		OrgID:        org.ID,
		Email:        email,
		BusinessName: org.Name,
		Country:      strings.ToUpper(req.Country),
	})
	if err != nil {
		return nil, err
	}
	if err := org.ConnectStripeAccount(accountID); err != nil {
		return nil, err
	}
	if err := s.orgRepo.Save(ctx, org); err != nil {
		return nil, err
	}

	s.logger.Info("Organization connected to Stripe",
		zap.String("org_id", org.ID.String()),
		zap.String("account_id", accountID))
	return &ConnectStatusResponse{Connected: true, AccountID: accountID}, nil
}

// AccountLink returns a one-time onboarding link for the organization's account
func (s *ConnectService) AccountLink(ctx context.Context, orgID uuid.UUID, req AccountLinkRequest) (*billing.AccountLink, error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.StripeAccountID == "" {
		return nil, shared.InvalidState("Create a Stripe account before onboarding")
	}
	refresh := req.RefreshURL
	if refresh == "" {
		refresh = s.publicURL + "/settings/payments?onboarding=refresh"
	}
	ret := req.ReturnURL
	if ret == "" {
		ret = s.publicURL + "/settings/payments?onboarding=done"
	}
	return s.gateway.CreateAccountLink(ctx, org.StripeAccountID, refresh, ret)
}

// Status fetches the account's capabilities from Stripe and records any change
func (s *ConnectService) Status(ctx context.Context, orgID uuid.UUID) (*ConnectStatusResponse, error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.StripeAccountID == "" {
		return &ConnectStatusResponse{}, nil
	}
	st, err := s.gateway.GetAccountStatus(ctx, org.StripeAccountID)
	if err != nil {
		return nil, err
	}
	if st.ChargesEnabled != org.StripeChargesEnabled || st.PayoutsEnabled != org.StripePayoutsEnabled {
		org.UpdateStripeCapabilities(st.ChargesEnabled, st.PayoutsEnabled)
		if err := s.orgRepo.Save(ctx, org); err != nil {
			return nil, err
		}
	}
	return &ConnectStatusResponse{
		Connected:        true,
		AccountID:        st.AccountID,
		ChargesEnabled:   st.ChargesEnabled,
		PayoutsEnabled:   st.PayoutsEnabled,
		DetailsSubmitted: st.DetailsSubmitted,
	}, nil
}
