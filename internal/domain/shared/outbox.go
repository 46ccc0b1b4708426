package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the status of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// Outbox retry defaults: attempts are spaced 1s, 2s, 4s... capped at
// MaxOutboxBackoff, and an entry is dead after DefaultMaxRetries failures
const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
	MaxOutboxBackoff   = 5 * time.Minute
)

// OutboxEntry is a serialized domain event awaiting delivery to the event bus
type OutboxEntry struct {
	ID            uuid.UUID
	OrgID         uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	OccurredAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry creates a new outbox entry for a domain event
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now()
	return &OutboxEntry{
		ID:            uuid.New(),
		OrgID:         event.OrgID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		OccurredAt:    event.OccurredAt(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkSent marks the entry as delivered
func (e *OutboxEntry) MarkSent() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a delivery failure and schedules the next attempt.
// Entries that exhaust MaxRetries become DEAD.
func (e *OutboxEntry) MarkFailed(errMsg string) {
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = time.Now()

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := time.Now().Add(OutboxBackoff(e.RetryCount))
	e.NextRetryAt = &next
}

// OutboxBackoff returns the wait before attempt number retry+1
func OutboxBackoff(retry int) time.Duration {
	if retry < 1 {
		return DefaultBaseBackoff
	}
	if retry > 20 {
		return MaxOutboxBackoff
	}
	return min(DefaultBaseBackoff<<uint(retry-1), MaxOutboxBackoff)
}

// ResetForRetry puts a dead entry back into the pending queue
func (e *OutboxEntry) ResetForRetry() error {
	if e.Status != OutboxStatusDead {
		return InvalidState("Only dead-lettered events can be retried")
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

// IsDead returns true if the entry is in dead letter status
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// ToEvent rehydrates the entry as a publishable domain event
func (e *OutboxEntry) ToEvent() *RecordedEvent {
	return NewRecordedEvent(BaseDomainEvent{
		ID:         e.EventID,
		Type:       e.EventType,
		Timestamp:  e.OccurredAt,
		AggID:      e.AggregateID,
		AggType:    e.AggregateType,
		OrgIDValue: e.OrgID,
	}, e.Payload)
}

// OutboxRepository defines the interface for outbox persistence
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// FindPending retrieves pending entries up to the specified limit
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// FindRetryable retrieves failed entries that are due for retry
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	// FindDead pages through dead-lettered entries of one org; uuid.Nil spans every org
	FindDead(ctx context.Context, orgID uuid.UUID, page, pageSize int) ([]*OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// MarkProcessing claims entries and returns those this caller won
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus tallies entries per status for one org; uuid.Nil spans every org
	CountByStatus(ctx context.Context, orgID uuid.UUID) (map[OutboxStatus]int64, error)
}
