package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crewdesk/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxPublisher writes domain events to the outbox inside the caller's transaction
type OutboxPublisher struct {
	maxRetries int
}

// NewOutboxPublisher creates a publisher whose entries give up after maxRetries attempts
func NewOutboxPublisher(maxRetries int) *OutboxPublisher {
	if maxRetries <= 0 {
		maxRetries = shared.DefaultMaxRetries
	}
	return &OutboxPublisher{maxRetries: maxRetries}
}

// PublishWithTx persists events through tx so they commit with the aggregate
func (p *OutboxPublisher) PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := encodePayload(event)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event.EventType(), err)
		}
		entry := shared.NewOutboxEntry(event, payload)
		entry.MaxRetries = p.maxRetries
		entries = append(entries, entry)
	}
	return NewGormOutboxRepository(tx).Save(ctx, entries...)
}

// SaveEvents implements shared.OutboxEventSaver; tx must be a *gorm.DB
func (p *OutboxPublisher) SaveEvents(ctx context.Context, tx any, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	db, ok := tx.(*gorm.DB)
	if !ok {
		return fmt.Errorf("outbox: transaction must be *gorm.DB, got %T", tx)
	}
	return p.PublishWithTx(ctx, db, events...)
}

func encodePayload(event shared.DomainEvent) ([]byte, error) {
	if rec, ok := event.(*shared.RecordedEvent); ok {
		if len(rec.Data) == 0 {
			return []byte("{}"), nil
		}
		return rec.Data, nil
	}
	return json.Marshal(event)
}

var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
