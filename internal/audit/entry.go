// Package audit records operator actions and reads them back for review.
package audit

import (
	"context"
	"strings"
	"time"
)

// Entry is a single audit record.
type Entry struct {
	ID         string                 `json:"id" yaml:"id"`
	Timestamp  time.Time              `json:"timestamp" yaml:"timestamp"`
	Action     string                 `json:"action" yaml:"action"`
	ActorID    int64                  `json:"actor_id" yaml:"actor_id"`
	ActorEmail string                 `json:"actor_email" yaml:"actor_email"`
	Details    map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Action  string
	ActorID int64
	Since   time.Time
	Until   time.Time
	Limit   int
}

// Matches reports whether e passes the filter, ignoring Limit.
func (f Filter) Matches(e Entry) bool {
	if f.Action != "" && !strings.EqualFold(f.Action, e.Action) {
		return false
	}
	if f.ActorID != 0 && f.ActorID != e.ActorID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Sink persists audit entries. List returns entries newest first.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}
