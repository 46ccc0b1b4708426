// Package billing wraps the payment and subscription providers: Stripe for
// Connect payments and plan checkout, Polar and RevenueCat for plan webhooks.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	domainbilling "github.com/crewdesk/backend/internal/domain/billing"
	"github.com/crewdesk/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// ErrInvalidSignature is returned when a webhook fails verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrUnknownPlan is returned when no Stripe price is configured for a plan
var ErrUnknownPlan = errors.New("no price configured for plan")

// StripeGateway talks to the Stripe API with the platform secret key
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	feeBps        int
	priceIDs      map[string]string
	plansByPrice  map[string]string
	logger        *zap.Logger
}

// NewStripeGateway creates a gateway using Stripe's default HTTP backends
func NewStripeGateway(cfg config.StripeConfig, logger *zap.Logger) *StripeGateway {
	backends := stripe.NewBackends(&http.Client{Timeout: 30 * time.Second})
	return newStripeGateway(cfg, backends, logger)
}

func newStripeGateway(cfg config.StripeConfig, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	byPrice := make(map[string]string, len(cfg.PriceIDs))
	for plan, price := range cfg.PriceIDs {
		byPrice[price] = plan
	}
	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		feeBps:        cfg.ApplicationFeeBps,
		priceIDs:      cfg.PriceIDs,
		plansByPrice:  byPrice,
		logger:        logger,
	}
}

// ConnectAccountInput describes the business an Express account is created for
type ConnectAccountInput struct {
	OrgID        uuid.UUID
	Email        string
	BusinessName string
	Country      string
}

// CreateConnectAccount creates an Express account able to take card payments
func (g *StripeGateway) CreateConnectAccount(ctx context.Context, in ConnectAccountInput) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(in.Email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
		BusinessProfile: &stripe.AccountBusinessProfileParams{Name: stripe.String(in.BusinessName)},
	}
	if in.Country != "" {
		params.Country = stripe.String(in.Country)
	}
	params.Context = ctx
	params.AddMetadata("org_id", in.OrgID.String())
	params.SetIdempotencyKey("acct-create-" + in.OrgID.String())

	acct, err := g.api.Accounts.New(params)
	if err != nil {
		return "", wrapStripeError("create connect account", err)
	}
	g.logger.Info("Stripe Connect account created",
		zap.String("org_id", in.OrgID.String()),
		zap.String("account_id", acct.ID))
	return acct.ID, nil
}

// AccountLink is a one-time onboarding URL
type AccountLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateAccountLink returns an onboarding link for an Express account
func (g *StripeGateway) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := g.api.AccountLinks.New(params)
	if err != nil {
		return nil, wrapStripeError("create account link", err)
	}
	return &AccountLink{URL: link.URL, ExpiresAt: time.Unix(link.ExpiresAt, 0).UTC()}, nil
}

// AccountStatus is the capability state of a connected account
type AccountStatus struct {
	AccountID        string `json:"account_id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// GetAccountStatus fetches the current account capabilities
func (g *StripeGateway) GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := g.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, wrapStripeError("get account", err)
	}
	return accountStatus(acct), nil
}

func accountStatus(a *stripe.Account) *AccountStatus {
	return &AccountStatus{
		AccountID:        a.ID,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
}

// PaymentIntentInput describes a destination charge for an invoice
type PaymentIntentInput struct {
	OrgID              uuid.UUID
	InvoiceID          uuid.UUID
	InvoiceNumber      string
	Amount             int64 // minor units
	Currency           string
	DestinationAccount string
	// FeeBps overrides the platform default when positive
	FeeBps       int
	CardPresent  bool
	ReceiptEmail string
	// IdempotencyKey makes retries of the same request return the same intent
	IdempotencyKey string
}

// PaymentIntent is what the client needs to confirm a payment
type PaymentIntent struct {
	ID             string `json:"id"`
	ClientSecret   string `json:"client_secret"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	ApplicationFee int64  `json:"application_fee"`
}

// CreatePaymentIntent creates a destination charge: the customer pays the
// platform, funds move to the connected account minus the application fee.
// Terminal payments use card_present with automatic capture.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error) {
	if in.Amount <= 0 {
		return nil, errors.New("amount must be positive")
	}
	if in.DestinationAccount == "" {
		return nil, errors.New("destination account is required")
	}
	bps := g.feeBps
	if in.FeeBps > 0 {
		bps = in.FeeBps
	}
	fee := ApplicationFee(in.Amount, bps)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(strings.ToLower(in.Currency)),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(in.DestinationAccount),
		},
		OnBehalfOf:  stripe.String(in.DestinationAccount),
		Description: stripe.String("Invoice " + in.InvoiceNumber),
	}
	if fee > 0 {
		params.ApplicationFeeAmount = stripe.Int64(fee)
	}
	if in.CardPresent {
		params.PaymentMethodTypes = stripe.StringSlice([]string{"card_present"})
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic))
	} else {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{Enabled: stripe.Bool(true)}
	}
	if in.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(in.ReceiptEmail)
	}
	params.Context = ctx
	params.AddMetadata("org_id", in.OrgID.String())
	params.AddMetadata("invoice_id", in.InvoiceID.String())
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, wrapStripeError("create payment intent", err)
	}
	return &PaymentIntent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         string(pi.Status),
		Amount:         pi.Amount,
		ApplicationFee: fee,
	}, nil
}

// ApplicationFee returns amount*bps/10000 rounded half up
func ApplicationFee(amount int64, bps int) int64 {
	if bps <= 0 || amount <= 0 {
		return 0
	}
	return (amount*int64(bps) + 5000) / 10000
}

// CreateTerminalConnectionToken issues a token for a Terminal SDK reader
func (g *StripeGateway) CreateTerminalConnectionToken(ctx context.Context, locationID string) (string, error) {
	params := &stripe.TerminalConnectionTokenParams{}
	if locationID != "" {
		params.Location = stripe.String(locationID)
	}
	params.Context = ctx
	tok, err := g.api.TerminalConnectionTokens.New(params)
	if err != nil {
		return "", wrapStripeError("create terminal connection token", err)
	}
	return tok.Secret, nil
}

// CreateCustomer creates the platform customer an organization is billed as
func (g *StripeGateway) CreateCustomer(ctx context.Context, orgID uuid.UUID, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata("org_id", orgID.String())
	params.SetIdempotencyKey("cus-create-" + orgID.String())

	cus, err := g.api.Customers.New(params)
	if err != nil {
		return "", wrapStripeError("create customer", err)
	}
	return cus.ID, nil
}

// CheckoutInput describes a plan purchase
type CheckoutInput struct {
	OrgID      uuid.UUID
	CustomerID string
	Plan       string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is a hosted checkout page
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession starts a subscription checkout for a plan
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	price, ok := g.priceIDs[in.Plan]
	if !ok || price == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, in.Plan)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(in.CustomerID),
		ClientReferenceID: stripe.String(in.OrgID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(price), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"org_id": in.OrgID.String(), "plan": in.Plan},
		},
	}
	params.Context = ctx
	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeError("create checkout session", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession returns a billing portal URL for the customer
func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", wrapStripeError("create portal session", err)
	}
	return sess.URL, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
// API version mismatches are tolerated since handlers read only stable fields.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ev, nil
}

// PlanForPrice maps a configured price id back to its plan
func (g *StripeGateway) PlanForPrice(priceID string) string {
	return g.plansByPrice[priceID]
}

// SubscriptionState converts a Stripe subscription into the provider-neutral snapshot
func (g *StripeGateway) SubscriptionState(sub *stripe.Subscription) domainbilling.State {
	st := domainbilling.State{
		Status:            stripeStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Plan:              sub.Metadata["plan"],
	}
	if sub.Customer != nil {
		st.CustomerRef = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		st.CurrentPeriodEnd = &end
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			if plan := g.PlanForPrice(item.Price.ID); plan != "" {
				st.Plan = plan
				break
			}
		}
	}
	return st
}

func stripeStatus(s stripe.SubscriptionStatus) domainbilling.Status {
	switch s {
	case stripe.SubscriptionStatusTrialing:
		return domainbilling.StatusTrialing
	case stripe.SubscriptionStatusActive:
		return domainbilling.StatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return domainbilling.StatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return domainbilling.StatusCanceled
	default:
		return domainbilling.StatusExpired
	}
}

func wrapStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Errorf("stripe %s: %s (%s): %w", op, se.Msg, se.Code, err)
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}
