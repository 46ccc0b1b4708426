package shared

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents an event that occurred in the domain
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	OrgID() uuid.UUID
}

// BaseDomainEvent provides common fields for all domain events.
// Embedded without a json tag so its fields flatten into the event payload.
type BaseDomainEvent struct {
	ID         uuid.UUID `json:"event_id"`
	Type       string    `json:"event_type"`
	Timestamp  time.Time `json:"occurred_at"`
	AggID      uuid.UUID `json:"aggregate_id"`
	AggType    string    `json:"aggregate_type"`
	OrgIDValue uuid.UUID `json:"org_id"`
}

func (e *BaseDomainEvent) EventID() uuid.UUID     { return e.ID }
func (e *BaseDomainEvent) EventType() string      { return e.Type }
func (e *BaseDomainEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e *BaseDomainEvent) AggregateID() uuid.UUID { return e.AggID }
func (e *BaseDomainEvent) AggregateType() string  { return e.AggType }
func (e *BaseDomainEvent) OrgID() uuid.UUID       { return e.OrgIDValue }

// NewBaseDomainEvent creates a new base domain event
func NewBaseDomainEvent(eventType, aggType string, aggID, orgID uuid.UUID) BaseDomainEvent {
	return BaseDomainEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Timestamp:  time.Now(),
		AggID:      aggID,
		AggType:    aggType,
		OrgIDValue: orgID,
	}
}

// RecordedEvent is a domain event rehydrated from its serialized form.
// The outbox processor and external API triggers publish this type, so
// subscribers read the payload rather than type-asserting concrete events.
type RecordedEvent struct {
	BaseDomainEvent
	Data json.RawMessage `json:"-"`
}

// NewRecordedEvent wraps a raw payload in a DomainEvent
func NewRecordedEvent(base BaseDomainEvent, data []byte) *RecordedEvent {
	return &RecordedEvent{BaseDomainEvent: base, Data: data}
}

// Payload decodes the event data into a generic map
func (e *RecordedEvent) Payload() (map[string]any, error) {
	out := make(map[string]any)
	if len(e.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventPayload returns the JSON payload of any domain event
func EventPayload(event DomainEvent) (map[string]any, error) {
	if rec, ok := event.(*RecordedEvent); ok {
		return rec.Payload()
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
