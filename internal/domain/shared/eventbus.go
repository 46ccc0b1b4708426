package shared

import "context"

// EventHandler reacts to domain events delivered by the outbox processor.
// Delivery is at least once, so handlers must tolerate repeats.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the event types to receive; empty means all
	EventTypes() []string
}

// EventPublisher hands committed events to subscribers
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus is the in-process fan-out between the outbox and its consumers
// (the automation engine today)
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OutboxEventSaver stores events in the outbox inside the caller's write
// transaction; tx is the *gorm.DB of that transaction
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, tx any, events ...DomainEvent) error
}
