package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/pterokeys/internal/notify"
	"github.com/systmms/pterokeys/pkg/rotation"
)

// Notifier forwards recorded entries. Send must not block.
type Notifier interface {
	Send(event notify.Event)
}

// Logger writes audit entries to a Sink and forwards them to a Notifier.
// It satisfies rotation.AuditLogger.
type Logger struct {
	sink     Sink
	notifier Notifier
	now      func() time.Time
	newID    func() string
}

// NewLogger creates a Logger. notifier may be nil.
func NewLogger(sink Sink, notifier Notifier) *Logger {
	return &Logger{
		sink:     sink,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// LogAction records action performed by actor. The entry is durable once
// LogAction returns nil; notification delivery is best effort.
func (l *Logger) LogAction(ctx context.Context, actor rotation.Operator, action rotation.Action, details map[string]any) error {
	entry := Entry{
		ID:         l.newID(),
		Timestamp:  l.now().UTC(),
		Action:     string(action),
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Details:    details,
	}

	if err := l.sink.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry %s: %w", action, err)
	}

	if l.notifier != nil {
		l.notifier.Send(notify.Event{
			ID:         entry.ID,
			Action:     entry.Action,
			ActorID:    entry.ActorID,
			ActorEmail: entry.ActorEmail,
			Details:    entry.Details,
			Timestamp:  entry.Timestamp,
		})
	}

	return nil
}

// List returns entries from the underlying sink.
func (l *Logger) List(ctx context.Context, filter Filter) ([]Entry, error) {
	return l.sink.List(ctx, filter)
}
