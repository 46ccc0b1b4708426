package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/payment"
	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/billing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CardGateway is the part of the Stripe gateway that takes card payments
type CardGateway interface {
	CreatePaymentIntent(ctx context.Context, in billing.PaymentIntentInput) (*billing.PaymentIntent, error)
	CreateTerminalConnectionToken(ctx context.Context, locationID string) (string, error)
}

// ErrCardPaymentsDisabled is returned until the organization finishes Stripe onboarding
var ErrCardPaymentsDisabled = shared.InvalidState("Card payments are not enabled for this organization")

// PaymentService records payments against invoices
type PaymentService struct {
	paymentRepo payment.PaymentRepository
	invoiceRepo sales.InvoiceRepository
	orgRepo     organization.OrganizationRepository
	gateway     CardGateway
	tx          shared.TxRunner
	logger      *zap.Logger
	now         func() time.Time
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	paymentRepo payment.PaymentRepository,
	invoiceRepo sales.InvoiceRepository,
	orgRepo organization.OrganizationRepository,
	gateway CardGateway,
	tx shared.TxRunner,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		invoiceRepo: invoiceRepo,
		orgRepo:     orgRepo,
		gateway:     gateway,
		tx:          tx,
		logger:      logger,
		now:         time.Now,
	}
}

// RecordManual records a cash, check or other offline payment and applies it
// to the invoice in the same transaction
func (s *PaymentService) RecordManual(ctx context.Context, orgID, invoiceID, createdBy uuid.UUID, req ManualPaymentRequest) (*PaymentResponse, error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	receivedAt := now
	if req.ReceivedAt != nil {
		if req.ReceivedAt.After(now) {
			return nil, shared.InvalidInput("Payment date cannot be in the future")
		}
		receivedAt = *req.ReceivedAt
	}

	var p *payment.Payment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		invoice, err := s.invoiceRepo.FindByID(ctx, orgID, invoiceID)
		if err != nil {
			return err
		}
		p, err = payment.NewManualPayment(orgID, invoice.ID, invoice.CustomerID, req.Amount, invoice.Currency,
			payment.Method(req.Method), req.Reference, receivedAt)
		if err != nil {
			return err
		}
		p.SetCreatedBy(createdBy)
		if err := invoice.ApplyPayment(p.Amount, now); err != nil {
			return err
		}
		if err := s.paymentRepo.Save(ctx, p); err != nil {
			return err
		}
		return s.invoiceRepo.Save(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Manual payment recorded",
		zap.String("org_id", orgID.String()),
		zap.String("invoice_id", invoiceID.String()),
		zap.String("amount", p.Amount.String()),
		zap.String("method", string(p.Method)))
	response := ToPaymentResponse(p, org.Locale)
	return &response, nil
}

// CreateIntent opens a Stripe destination charge for the invoice balance and
// records it as a pending payment. Repeating the call for an unchanged
// invoice returns the same intent.
func (s *PaymentService) CreateIntent(ctx context.Context, orgID, invoiceID uuid.UUID, req PaymentIntentRequest) (*PaymentIntentResponse, error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !org.CanAcceptCardPayments() {
		return nil, ErrCardPaymentsDisabled
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if !invoice.Status.IsOpen() {
		return nil, shared.InvalidState("Only sent invoices with a balance can be paid")
	}
	balance := invoice.BalanceMoney()
	if !balance.IsPositive() {
		return nil, shared.InvalidState("Invoice has no balance due")
	}

	method := payment.MethodCard
	if req.CardPresent {
		method = payment.MethodTerminal
	}
	intent, err := s.gateway.CreatePaymentIntent(ctx, billing.PaymentIntentInput{
		OrgID:              orgID,
		InvoiceID:          invoice.ID,
		InvoiceNumber:      invoice.Number,
		Amount:             balance.MinorUnits(),
		Currency:           string(invoice.Currency),
		DestinationAccount: org.StripeAccountID,
		FeeBps:             org.ApplicationFeeBps,
		CardPresent:        req.CardPresent,
		ReceiptEmail:       req.ReceiptEmail,
		IdempotencyKey:     fmt.Sprintf("pi-%s-v%d-%s", invoice.ID, invoice.Version, method),
	})
	if err != nil {
		return nil, err
	}

	p, err := s.paymentRepo.FindByProviderRef(ctx, payment.ProviderStripe, intent.ID)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound):
		p, err = payment.NewProcessorPayment(orgID, invoice.ID, invoice.CustomerID, balance.Amount(), invoice.Currency,
			method, payment.ProviderStripe, intent.ID)
		if err != nil {
			return nil, err
		}
		if err := s.paymentRepo.Save(ctx, p); err != nil {
			return nil, err
		}
		s.logger.Info("Payment intent created",
			zap.String("org_id", orgID.String()),
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("intent_id", intent.ID),
			zap.Int64("amount", intent.Amount),
			zap.Int64("application_fee", intent.ApplicationFee))
	default:
		return nil, err
	}

	return &PaymentIntentResponse{
		PaymentID:      p.ID,
		IntentID:       intent.ID,
		ClientSecret:   intent.ClientSecret,
		Amount:         intent.Amount,
		ApplicationFee: intent.ApplicationFee,
		Currency:       string(invoice.Currency),
	}, nil
}

// ConnectionToken issues a Terminal reader token for an organization that takes card payments
func (s *PaymentService) ConnectionToken(ctx context.Context, orgID uuid.UUID, req ConnectionTokenRequest) (*ConnectionTokenResponse, error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !org.CanAcceptCardPayments() {
		return nil, ErrCardPaymentsDisabled
	}
	secret, err := s.gateway.CreateTerminalConnectionToken(ctx, req.LocationID)
	if err != nil {
		return nil, err
	}
	return &ConnectionTokenResponse{Secret: secret}, nil
}

// List retrieves payments with filtering and pagination
func (s *PaymentService) List(ctx context.Context, orgID uuid.UUID, filter PaymentListFilter) (*shared.Paginated[PaymentResponse], error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	f := payment.PaymentFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
		}.Normalize(),
	}
	if f.InvoiceID, err = shared.ParseOptionalID("invoice_id", filter.InvoiceID); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		status := payment.Status(filter.Status)
		switch status {
		case payment.StatusPending, payment.StatusSucceeded, payment.StatusFailed, payment.StatusRefunded:
		default:
			return nil, shared.InvalidInput("Unknown payment status " + filter.Status)
		}
		f.Status = &status
	}
	payments, total, err := s.paymentRepo.List(ctx, orgID, f)
	if err != nil {
		return nil, err
	}
	items := make([]PaymentResponse, len(payments))
	for i, p := range payments {
		items[i] = ToPaymentResponse(p, org.Locale)
	}
	page := shared.NewPaginated(items, total, f.Page, f.PageSize)
	return &page, nil
}

// ConfirmProcessorPayment marks a processor payment succeeded and applies it
// to its invoice. Duplicate notifications are no-ops, so the invoice is
// credited once.
func (s *PaymentService) ConfirmProcessorPayment(ctx context.Context, provider, ref string) error {
	now := s.now()
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.paymentRepo.FindByProviderRef(ctx, provider, ref)
		if err != nil {
			return err
		}
		if err := p.MarkSucceeded(now); err != nil {
			if errors.Is(err, payment.ErrAlreadySucceeded) {
				return nil
			}
			return err
		}
		if err := s.paymentRepo.Save(ctx, p); err != nil {
			return err
		}

		invoice, err := s.invoiceRepo.FindByID(ctx, p.OrgID, p.InvoiceID)
		if err != nil {
			return err
		}
		if err := invoice.ApplyPayment(p.Amount, now); err != nil {
			var de *shared.DomainError
			if errors.As(err, &de) {
				// funds were captured; the invoice changed since the intent was opened
				s.logger.Warn("Captured payment could not be applied to invoice",
					zap.String("org_id", p.OrgID.String()),
					zap.String("payment_id", p.ID.String()),
					zap.String("invoice_id", invoice.ID.String()),
					zap.Error(err))
				return nil
			}
			return err
		}
		if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
			return err
		}
		s.logger.Info("Card payment applied",
			zap.String("org_id", p.OrgID.String()),
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("amount", p.Amount.String()))
		return nil
	})
}

// FailProcessorPayment records a declined intent
func (s *PaymentService) FailProcessorPayment(ctx context.Context, provider, ref, reason string) error {
	p, err := s.paymentRepo.FindByProviderRef(ctx, provider, ref)
	if err != nil {
		return err
	}
	if p.Status != payment.StatusPending {
		return nil
	}
	if err := p.MarkFailed(s.now(), reason); err != nil {
		return err
	}
	s.logger.Info("Card payment failed",
		zap.String("org_id", p.OrgID.String()),
		zap.String("payment_id", p.ID.String()),
		zap.String("reason", reason))
	return s.paymentRepo.Save(ctx, p)
}

// RefundProcessorPayment marks a succeeded payment refunded and reopens its invoice
func (s *PaymentService) RefundProcessorPayment(ctx context.Context, provider, ref string) error {
	now := s.now()
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.paymentRepo.FindByProviderRef(ctx, provider, ref)
		if err != nil {
			return err
		}
		if p.Status == payment.StatusRefunded {
			return nil
		}
		if err := p.MarkRefunded(now); err != nil {
			return err
		}
		if err := s.paymentRepo.Save(ctx, p); err != nil {
			return err
		}
		invoice, err := s.invoiceRepo.FindByID(ctx, p.OrgID, p.InvoiceID)
		if err != nil {
			return err
		}
		if err := invoice.ReversePayment(p.Amount, now); err != nil {
			return err
		}
		return s.invoiceRepo.Save(ctx, invoice)
	})
}
