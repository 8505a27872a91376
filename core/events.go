package core

import (
	"context"
	"time"
)

// Event types published for downstream collaborators (notifications, audit...).
const (
	EventUserRegistered = "user.registered"
	EventUserCreated    = "user.created"
	EventUserLoggedIn   = "user.logged_in"
	EventUserLoggedOut  = "user.logged_out"
	EventUserDeleted    = "user.deleted"
)

// Event is a domain event about a user account.
type Event struct {
	Type       string    `json:"eventType"`
	UserID     string    `json:"userId"`
	Email      string    `json:"email,omitempty"`
	Role       string    `json:"role,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewEvent(typ, userID, email, role string) Event {
	return Event{Type: typ, UserID: userID, Email: email, Role: role, OccurredAt: time.Now().UTC()}
}

// EventPublisher publishes domain events. Publishing is best effort:
// callers log failures and never fail the originating request.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
	Close()
}

type noopPublisher struct{}

// NewNoopPublisher returns a publisher that drops every event.
func NewNoopPublisher() EventPublisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, Event) error { return nil }
func (noopPublisher) Close()                               {}
