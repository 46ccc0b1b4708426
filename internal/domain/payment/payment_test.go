package payment

import (
	"testing"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManualPayment(t *testing.T) {
	now := time.Now()
	p, err := NewManualPayment(uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(40), valueobject.USD, MethodCash, " receipt 12 ", now)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, p.Status)
	assert.Equal(t, ProviderManual, p.Provider)
	assert.Equal(t, "receipt 12", p.Reference)
	require.Len(t, p.GetDomainEvents(), 1)
	assert.Equal(t, EventTypePaymentSucceeded, p.GetDomainEvents()[0].EventType())

	_, err = NewManualPayment(uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(40), valueobject.USD, MethodCard, "", now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = NewManualPayment(uuid.New(), uuid.New(), uuid.New(), decimal.Zero, valueobject.USD, MethodCash, "", now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = NewManualPayment(uuid.New(), uuid.Nil, uuid.New(), decimal.NewFromInt(1), valueobject.USD, MethodCash, "", now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestProcessorPayment_Lifecycle(t *testing.T) {
	now := time.Now()
	_, err := NewProcessorPayment(uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(10), valueobject.USD, MethodCard, ProviderStripe, "")
	assert.Error(t, err)
	_, err = NewProcessorPayment(uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(10), valueobject.USD, MethodCheck, ProviderStripe, "pi_1")
	assert.Error(t, err)

	p, err := NewProcessorPayment(uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(10), valueobject.USD, MethodCard, ProviderStripe, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)

	assert.Error(t, p.MarkRefunded(now))
	require.NoError(t, p.MarkSucceeded(now))
	assert.ErrorIs(t, p.MarkSucceeded(now), ErrAlreadySucceeded)
	assert.Error(t, p.MarkFailed(now, "declined"))

	require.NoError(t, p.MarkRefunded(now))
	assert.ErrorIs(t, p.MarkSucceeded(now), shared.ErrInvalidState)

	failed, _ := NewProcessorPayment(uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(10), valueobject.USD, MethodTerminal, ProviderStripe, "pi_2")
	require.NoError(t, failed.MarkFailed(now, "card_declined"))
	assert.Equal(t, "card_declined", failed.FailureReason)
	require.NoError(t, failed.MarkSucceeded(now), "a retried intent can still succeed")
	assert.Empty(t, failed.FailureReason)
}
