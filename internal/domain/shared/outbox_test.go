package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxBackoff(t *testing.T) {
	assert.Equal(t, time.Second, OutboxBackoff(0))
	assert.Equal(t, time.Second, OutboxBackoff(1))
	assert.Equal(t, 8*time.Second, OutboxBackoff(4))
	assert.Equal(t, MaxOutboxBackoff, OutboxBackoff(12))
	assert.Equal(t, MaxOutboxBackoff, OutboxBackoff(64), "large shifts do not overflow")
}

func TestOutboxEntry_FailureLifecycle(t *testing.T) {
	event := NewBaseDomainEvent("job.completed", "job", uuid.New(), uuid.New())
	entry := NewOutboxEntry(&event, []byte(`{}`))
	entry.MaxRetries = 2
	assert.Equal(t, event.OrgID(), entry.OrgID)

	assert.ErrorIs(t, entry.ResetForRetry(), ErrInvalidState, "only dead entries can be retried")

	entry.MarkFailed("timeout")
	assert.Equal(t, OutboxStatusFailed, entry.Status)
	require.NotNil(t, entry.NextRetryAt)
	assert.WithinDuration(t, time.Now().Add(time.Second), *entry.NextRetryAt, 500*time.Millisecond)

	entry.MarkFailed("timeout again")
	assert.True(t, entry.IsDead())
	assert.Nil(t, entry.NextRetryAt)

	require.NoError(t, entry.ResetForRetry())
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Zero(t, entry.RetryCount)
	assert.Empty(t, entry.LastError)
}
