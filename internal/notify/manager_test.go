package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a test double for Provider
type fakeProvider struct {
	name       string
	actions    []string
	sendFunc   func(ctx context.Context, event Event) error
	mu         sync.Mutex
	sentEvents []Event
	sendDelay  time.Duration
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) SupportsAction(action string) bool {
	if len(p.actions) == 0 {
		return true
	}
	for _, a := range p.actions {
		if a == action {
			return true
		}
	}
	return false
}

func (p *fakeProvider) Validate(ctx context.Context) error { return nil }

func (p *fakeProvider) Send(ctx context.Context, event Event) error {
	if p.sendDelay > 0 {
		select {
		case <-time.After(p.sendDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if p.sendFunc != nil {
		return p.sendFunc(ctx, event)
	}

	p.mu.Lock()
	p.sentEvents = append(p.sentEvents, event)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) getSentEvents() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]Event, len(p.sentEvents))
	copy(events, p.sentEvents)
	return events
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

type countingDrops struct {
	mu sync.Mutex
	n  int
}

func (c *countingDrops) NotificationDropped() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingDrops) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestManager_RegisterProvider(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	m.RegisterProvider(newFakeProvider("test1"))
	m.RegisterProvider(newFakeProvider("test2"))

	assert.Len(t, m.Providers(), 2)
}

func TestManager_StartStop(t *testing.T) {
	t.Parallel()

	m := NewManager(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	// Start again should be a no-op
	m.Start(ctx)

	m.Stop()
	// Stop again should be a no-op
	m.Stop()
}

func TestManager_StopDeliversQueuedEvents(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	p1 := newFakeProvider("provider1")
	p2 := newFakeProvider("provider2")
	m.RegisterProvider(p1)
	m.RegisterProvider(p2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.Send(Event{ID: "e1", Action: "USER_API_KEY_REGENERATED", Timestamp: time.Now()})
	m.Stop()

	require.Len(t, p1.getSentEvents(), 1)
	assert.Equal(t, "e1", p1.getSentEvents()[0].ID)
	assert.Len(t, p2.getSentEvents(), 1)
}

func TestManager_FiltersByAction(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	provider := newFakeProvider("test")
	provider.actions = []string{"USER_API_KEY_REGENERATED"}
	m.RegisterProvider(provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.Send(Event{ID: "skip", Action: "USER_LOGIN"})
	m.Send(Event{ID: "keep", Action: "USER_API_KEY_REGENERATED"})
	m.Stop()

	events := provider.getSentEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "keep", events[0].ID)
}

func TestManager_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	drops := &countingDrops{}
	m := NewManager(2, WithDropRecorder(drops))

	provider := newFakeProvider("slow")
	provider.sendDelay = 100 * time.Millisecond
	m.RegisterProvider(provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	for i := 0; i < 10; i++ {
		m.Send(Event{ID: fmt.Sprintf("e%d", i)})
	}
	m.Stop()

	dropped := m.DroppedCount()
	assert.Greater(t, dropped, int64(0), "Some events should have been dropped")
	assert.Equal(t, int(dropped), drops.count())
	assert.Equal(t, 10-int(dropped), len(provider.getSentEvents()))
}

func TestManager_NotRunning(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	provider := newFakeProvider("test")
	m.RegisterProvider(provider)

	m.Send(Event{ID: "no-start"})

	assert.Empty(t, provider.getSentEvents())
	assert.Zero(t, m.DroppedCount())
}

func TestManager_LogsProviderFailures(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	m := NewManager(10, WithLogger(logger))
	provider := newFakeProvider("broken")
	provider.sendFunc = func(ctx context.Context, event Event) error {
		return errors.New("connection refused")
	}
	m.RegisterProvider(provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Send(Event{ID: "e1"})
	m.Stop()

	msgs := logger.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "broken")
	assert.Contains(t, msgs[0], "event_id=e1")
	assert.Contains(t, msgs[0], "connection refused")
}

func TestManager_ContextCancellation(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	m.RegisterProvider(newFakeProvider("test"))

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}
