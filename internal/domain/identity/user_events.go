package identity

import (
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const AggregateTypeUser = "user"

const EventTypeUserRegistered = "user.registered"

// UserRegisteredEvent is published when a user signs up or accepts an invitation
type UserRegisteredEvent struct {
	shared.BaseDomainEvent
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NewUserRegisteredEvent creates a new UserRegisteredEvent. Users are not
// owned by an organization, so the event carries a nil org id.
func NewUserRegisteredEvent(u *User) *UserRegisteredEvent {
	return &UserRegisteredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeUserRegistered, AggregateTypeUser, u.ID, uuid.Nil),
		Email:           u.Email,
		Name:            u.Name,
	}
}
