package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	domainbilling "github.com/crewdesk/backend/internal/domain/billing"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/payment"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/billing"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

// WebhookDedupTTL is how long a processed delivery id is remembered
const WebhookDedupTTL = 72 * time.Hour

// StripeEvents verifies and interprets Stripe webhook deliveries
type StripeEvents interface {
	ParseWebhook(payload []byte, signature string) (stripe.Event, error)
	SubscriptionState(sub *stripe.Subscription) domainbilling.State
}

// PolarEvents verifies and decodes Polar deliveries
type PolarEvents interface {
	Verify(header http.Header, body []byte) error
	Parse(id string, body []byte) (*billing.SubscriptionWebhook, error)
}

// RevenueCatEvents verifies and decodes RevenueCat deliveries
type RevenueCatEvents interface {
	Verify(authorization string) error
	Parse(body []byte) (*billing.SubscriptionWebhook, error)
}

// ProcessorPayments settles card payments reported by Stripe
type ProcessorPayments interface {
	ConfirmProcessorPayment(ctx context.Context, provider, ref string) error
	FailProcessorPayment(ctx context.Context, provider, ref, reason string) error
	RefundProcessorPayment(ctx context.Context, provider, ref string) error
}

// WebhookService applies provider webhooks. Deliveries are deduplicated by
// provider event id. Only a failed signature check is returned as an error;
// processing failures are logged and reported in the result.
type WebhookService struct {
	stripe     StripeEvents
	polar      PolarEvents
	revenueCat RevenueCatEvents
	payments   ProcessorPayments
	orgRepo    organization.OrganizationRepository
	subRepo    domainbilling.SubscriptionRepository
	seen       shared.IdempotencyStore
	tx         shared.TxRunner
	logger     *zap.Logger
	now        func() time.Time
}

// WebhookServiceConfig contains the dependencies of WebhookService
type WebhookServiceConfig struct {
	Stripe     StripeEvents
	Polar      PolarEvents
	RevenueCat RevenueCatEvents
	Payments   ProcessorPayments
	OrgRepo    organization.OrganizationRepository
	SubRepo    domainbilling.SubscriptionRepository
	Seen       shared.IdempotencyStore
	Tx         shared.TxRunner
	Logger     *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	return &WebhookService{
		stripe:     cfg.Stripe,
		polar:      cfg.Polar,
		revenueCat: cfg.RevenueCat,
		payments:   cfg.Payments,
		orgRepo:    cfg.OrgRepo,
		subRepo:    cfg.SubRepo,
		seen:       cfg.Seen,
		tx:         cfg.Tx,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// HandleStripe processes a Stripe delivery
func (s *WebhookService) HandleStripe(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := s.stripe.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Warn("Rejected Stripe webhook", zap.Error(err))
		return nil, err
	}
	result := &WebhookResult{Provider: "stripe", EventID: event.ID, EventType: string(event.Type)}
	return s.once(ctx, result, func(ctx context.Context) (string, error) {
		return s.routeStripe(ctx, event)
	}), nil
}

// HandlePolar processes a Polar delivery
func (s *WebhookService) HandlePolar(ctx context.Context, header http.Header, body []byte) (*WebhookResult, error) {
	if err := s.polar.Verify(header, body); err != nil {
		s.logger.Warn("Rejected Polar webhook", zap.Error(err))
		return nil, err
	}
	hook, err := s.polar.Parse(header.Get("webhook-id"), body)
	if err != nil {
		return &WebhookResult{Provider: "polar", Message: err.Error()}, nil
	}
	return s.subscriptionWebhook(ctx, domainbilling.ProviderPolar, hook), nil
}

// HandleRevenueCat processes a RevenueCat delivery
func (s *WebhookService) HandleRevenueCat(ctx context.Context, authorization string, body []byte) (*WebhookResult, error) {
	if err := s.revenueCat.Verify(authorization); err != nil {
		s.logger.Warn("Rejected RevenueCat webhook", zap.Error(err))
		return nil, err
	}
	hook, err := s.revenueCat.Parse(body)
	if err != nil {
		return &WebhookResult{Provider: "revenuecat", Message: err.Error()}, nil
	}
	return s.subscriptionWebhook(ctx, domainbilling.ProviderRevenueCat, hook), nil
}

func (s *WebhookService) subscriptionWebhook(ctx context.Context, provider domainbilling.Provider, hook *billing.SubscriptionWebhook) *WebhookResult {
	result := &WebhookResult{Provider: string(provider), EventID: hook.ID, EventType: hook.Type}
	return s.once(ctx, result, func(ctx context.Context) (string, error) {
		if !hook.Relevant {
			return "Event type not handled", nil
		}
		orgID, err := uuid.Parse(hook.OrgRef)
		if err != nil {
			return "", fmt.Errorf("delivery does not reference an organization: %q", hook.OrgRef)
		}
		return "", s.applySubscription(ctx, provider, hook.ExternalID, orgID, hook.State, hook.OccurredAt)
	})
}

// once runs process unless the delivery id was already handled. The id is
// recorded only after success so a failed delivery can be replayed.
func (s *WebhookService) once(ctx context.Context, result *WebhookResult, process func(context.Context) (string, error)) *WebhookResult {
	key := "webhook:" + result.Provider + ":" + result.EventID
	if result.EventID != "" {
		seen, err := s.seen.IsProcessed(ctx, key)
		if err != nil {
			s.logger.Warn("Webhook idempotency lookup failed", zap.String("key", key), zap.Error(err))
		}
		if seen {
			result.Processed = true
			result.Duplicate = true
			return result
		}
	}

	msg, err := process(ctx)
	if err != nil {
		s.logger.Error("Failed to process webhook event",
			zap.String("provider", result.Provider),
			zap.String("event_id", result.EventID),
			zap.String("event_type", result.EventType),
			zap.Error(err))
		result.Message = err.Error()
		return result
	}
	result.Processed = true
	result.Message = msg
	if result.EventID != "" {
		if _, err := s.seen.MarkProcessed(ctx, key, WebhookDedupTTL); err != nil {
			s.logger.Warn("Failed to record webhook delivery", zap.String("key", key), zap.Error(err))
		}
	}
	return result
}

func (s *WebhookService) routeStripe(ctx context.Context, event stripe.Event) (string, error) {
	s.logger.Info("Processing Stripe webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return "", fmt.Errorf("failed to unmarshal payment intent: %w", err)
		}
		return ignoreUnknown(s.payments.ConfirmProcessorPayment(ctx, payment.ProviderStripe, pi.ID))

	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return "", fmt.Errorf("failed to unmarshal payment intent: %w", err)
		}
		return ignoreUnknown(s.payments.FailProcessorPayment(ctx, payment.ProviderStripe, pi.ID, failureReason(&pi)))

	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return "", fmt.Errorf("failed to unmarshal charge: %w", err)
		}
		if !ch.Refunded || ch.PaymentIntent == nil {
			return "Partial refunds are reconciled manually", nil
		}
		return ignoreUnknown(s.payments.RefundProcessorPayment(ctx, payment.ProviderStripe, ch.PaymentIntent.ID))

	case stripe.EventTypeAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return "", fmt.Errorf("failed to unmarshal account: %w", err)
		}
		return s.accountUpdated(ctx, &acct)

	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return "", fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		return s.checkoutCompleted(ctx, &sess)

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		return s.stripeSubscription(ctx, event, &sub)

	default:
		s.logger.Debug("Unhandled webhook event type", zap.String("event_type", string(event.Type)))
		return "Event type not handled", nil
	}
}

// ignoreUnknown acknowledges events for payments this service did not create
func ignoreUnknown(err error) (string, error) {
	if errors.Is(err, shared.ErrNotFound) {
		return "Payment not found", nil
	}
	return "", err
}

func failureReason(pi *stripe.PaymentIntent) string {
	if pi.LastPaymentError == nil {
		return "payment_failed"
	}
	if pi.LastPaymentError.Code != "" {
		return string(pi.LastPaymentError.Code)
	}
	return pi.LastPaymentError.Msg
}

func (s *WebhookService) accountUpdated(ctx context.Context, acct *stripe.Account) (string, error) {
	org, err := s.orgRepo.FindByStripeAccountID(ctx, acct.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "Account not linked to an organization", nil
		}
		return "", err
	}
	if org.StripeChargesEnabled == acct.ChargesEnabled && org.StripePayoutsEnabled == acct.PayoutsEnabled {
		return "", nil
	}
	org.UpdateStripeCapabilities(acct.ChargesEnabled, acct.PayoutsEnabled)
	s.logger.Info("Stripe account capabilities changed",
		zap.String("org_id", org.ID.String()),
		zap.Bool("charges_enabled", acct.ChargesEnabled),
		zap.Bool("payouts_enabled", acct.PayoutsEnabled))
	return "", s.orgRepo.Save(ctx, org)
}

func (s *WebhookService) checkoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) (string, error) {
	orgID, err := uuid.Parse(sess.ClientReferenceID)
	if err != nil || sess.Customer == nil {
		return "Session not started by this platform", nil
	}
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "Organization not found", nil
		}
		return "", err
	}
	if org.StripeCustomerID == sess.Customer.ID {
		return "", nil
	}
	org.SetStripeCustomer(sess.Customer.ID)
	return "", s.orgRepo.Save(ctx, org)
}

func (s *WebhookService) stripeSubscription(ctx context.Context, event stripe.Event, sub *stripe.Subscription) (string, error) {
	state := s.stripe.SubscriptionState(sub)
	if event.Type == stripe.EventTypeCustomerSubscriptionDeleted && state.Status != domainbilling.StatusExpired {
		state.Status = domainbilling.StatusCanceled
	}

	orgID, err := uuid.Parse(sub.Metadata["org_id"])
	if err != nil {
		if state.CustomerRef == "" {
			return "Subscription has no customer", nil
		}
		org, err := s.orgRepo.FindByStripeCustomerID(ctx, state.CustomerRef)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// webhooks may arrive for customers created outside this platform
				s.logger.Warn("Organization not found for Stripe customer",
					zap.String("customer_id", state.CustomerRef))
				return "Organization not found", nil
			}
			return "", err
		}
		orgID = org.ID
	}
	return "", s.applySubscription(ctx, domainbilling.ProviderStripe, sub.ID, orgID, state, time.Unix(event.Created, 0).UTC())
}

// applySubscription merges a provider snapshot and moves the organization to
// the plan of its best entitled subscription, or free when none is entitled
func (s *WebhookService) applySubscription(ctx context.Context, provider domainbilling.Provider, externalID string, orgID uuid.UUID, state domainbilling.State, at time.Time) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		sub, err := s.subRepo.FindByExternalID(ctx, provider, externalID)
		switch {
		case err == nil:
		case errors.Is(err, shared.ErrNotFound):
			if sub, err = domainbilling.NewSubscription(orgID, provider, externalID); err != nil {
				return err
			}
		default:
			return err
		}

		if !sub.Apply(state, at) {
			s.logger.Info("Ignored out-of-order subscription event",
				zap.String("provider", string(provider)),
				zap.String("subscription", externalID))
			return nil
		}
		if err := s.subRepo.Save(ctx, sub); err != nil {
			return err
		}
		return s.syncPlan(ctx, sub.OrgID)
	})
}

func (s *WebhookService) syncPlan(ctx context.Context, orgID uuid.UUID) error {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return err
	}
	subs, err := s.subRepo.ListByOrg(ctx, orgID)
	if err != nil {
		return err
	}

	plan := organization.PlanFree
	if best := domainbilling.SelectEntitled(subs, s.now()); best != nil {
		plan = organization.Plan(best.Plan)
		if !plan.IsValid() {
			s.logger.Warn("Entitled subscription has no known plan",
				zap.String("org_id", orgID.String()),
				zap.String("plan", best.Plan))
			return nil
		}
	}
	if org.Plan == plan {
		return nil
	}
	previous := org.Plan
	if err := org.ChangePlan(plan); err != nil {
		return err
	}
	if err := s.orgRepo.Save(ctx, org); err != nil {
		return err
	}
	s.logger.Info("Organization plan changed",
		zap.String("org_id", orgID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(plan)))
	return nil
}
