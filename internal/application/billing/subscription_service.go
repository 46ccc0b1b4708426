package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	domainbilling "github.com/crewdesk/backend/internal/domain/billing"
	"github.com/crewdesk/backend/internal/domain/identity"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/billing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlanGateway creates the hosted Stripe pages used to buy and manage a plan
type PlanGateway interface {
	CreateCustomer(ctx context.Context, orgID uuid.UUID, email, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// SubscriptionService exposes the organization's SaaS plan
type SubscriptionService struct {
	orgRepo    organization.OrganizationRepository
	memberRepo organization.MemberRepository
	subRepo    domainbilling.SubscriptionRepository
	userRepo   identity.UserRepository
	gateway    PlanGateway
	publicURL  string
	logger     *zap.Logger
	now        func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService. publicURL is the
// web app origin hosted pages return to.
func NewSubscriptionService(
	orgRepo organization.OrganizationRepository,
	memberRepo organization.MemberRepository,
	subRepo domainbilling.SubscriptionRepository,
	userRepo identity.UserRepository,
	gateway PlanGateway,
	publicURL string,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		orgRepo:    orgRepo,
		memberRepo: memberRepo,
		subRepo:    subRepo,
		userRepo:   userRepo,
		gateway:    gateway,
		publicURL:  strings.TrimRight(publicURL, "/"),
		logger:     logger,
		now:        time.Now,
	}
}

// Get returns the effective plan, seat usage and every known subscription
func (s *SubscriptionService) Get(ctx context.Context, orgID uuid.UUID) (*SubscriptionResponse, error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	subs, err := s.subRepo.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	seats, err := s.memberRepo.CountActive(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resp := &SubscriptionResponse{
		Plan:          string(org.Plan),
		MaxMembers:    org.Plan.MaxMembers(),
		ActiveMembers: seats,
		Subscriptions: make([]SubscriptionView, len(subs)),
		CanManage:     org.StripeCustomerID != "",
	}
	for i, sub := range subs {
		resp.Subscriptions[i] = toSubscriptionView(sub, now)
	}
	if active := domainbilling.SelectEntitled(subs, now); active != nil {
		view := toSubscriptionView(active, now)
		resp.Active = &view
	}
	return resp, nil
}

// Checkout starts a Stripe Checkout session for plan, creating the
// organization's billing customer on first use
func (s *SubscriptionService) Checkout(ctx context.Context, orgID, userID uuid.UUID, req CheckoutRequest) (*URLResponse, error) {
	plan := organization.Plan(req.Plan)
	if !plan.IsValid() || plan == organization.PlanFree {
		return nil, shared.InvalidInput("Unknown plan " + req.Plan)
	}
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.Plan == plan {
		return nil, shared.InvalidState("Organization is already on the " + req.Plan + " plan")
	}

	if org.StripeCustomerID == "" {
		email := org.Email
		if email == "" {
			user, err := s.userRepo.FindByID(ctx, userID)
			if err != nil {
				return nil, err
			}
			email = user.Email
		}
		customerID, err := s.gateway.CreateCustomer(ctx, org.ID, email, org.Name)
		if err != nil {
			return nil, err
		}
		org.SetStripeCustomer(customerID)
		if err := s.orgRepo.Save(ctx, org); err != nil {
			return nil, err
		}
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutInput{
		OrgID:      org.ID,
		CustomerID: org.StripeCustomerID,
		Plan:       req.Plan,
		SuccessURL: s.orDefault(req.SuccessURL, "/settings/billing?checkout=success"),
		CancelURL:  s.orDefault(req.CancelURL, "/settings/billing?checkout=cancelled"),
	})
	if err != nil {
		if errors.Is(err, billing.ErrUnknownPlan) {
			return nil, shared.InvalidInput("Plan " + req.Plan + " is not available for purchase")
		}
		return nil, err
	}

	s.logger.Info("Checkout session created",
		zap.String("org_id", org.ID.String()),
		zap.String("plan", req.Plan),
		zap.String("session_id", sess.ID))
	return &URLResponse{URL: sess.URL}, nil
}

// Portal returns a Stripe billing portal link for an organization that has purchased a plan
func (s *SubscriptionService) Portal(ctx context.Context, orgID uuid.UUID, req PortalRequest) (*URLResponse, error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.StripeCustomerID == "" {
		return nil, shared.InvalidState("Organization has no billing account yet")
	}
	url, err := s.gateway.CreatePortalSession(ctx, org.StripeCustomerID, s.orDefault(req.ReturnURL, "/settings/billing"))
	if err != nil {
		return nil, err
	}
	return &URLResponse{URL: url}, nil
}

func (s *SubscriptionService) orDefault(url, path string) string {
	if url != "" {
		return url
	}
	return s.publicURL + path
}
