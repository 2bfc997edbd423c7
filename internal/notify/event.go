// Package notify delivers audit events to external endpoints without
// blocking the caller.
package notify

import (
	"context"
	"time"
)

// Event is a notification about a recorded action.
type Event struct {
	ID         string
	Action     string
	ActorID    int64
	ActorEmail string
	Details    map[string]interface{}
	Timestamp  time.Time
}

// Provider delivers events to one destination.
type Provider interface {
	// Name returns the provider name, e.g. "webhook:ops".
	Name() string

	// Send delivers the event.
	Send(ctx context.Context, event Event) error

	// SupportsAction reports whether this provider wants events for action.
	SupportsAction(action string) bool

	// Validate checks if the provider configuration is valid.
	Validate(ctx context.Context) error
}
