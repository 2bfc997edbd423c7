package notify

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultQueueSize is the maximum number of events that can be queued.
	DefaultQueueSize = 100

	drainTimeout = 5 * time.Second
)

// Logger receives delivery failures.
type Logger interface {
	Warn(format string, args ...interface{})
}

// DropRecorder counts events dropped on a full queue.
type DropRecorder interface {
	NotificationDropped()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger reports provider failures to logger.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDropRecorder reports dropped events to r.
func WithDropRecorder(r DropRecorder) Option {
	return func(m *Manager) {
		m.drops = r
	}
}

// Manager fans events out to providers from a bounded queue so that
// callers never wait on delivery.
type Manager struct {
	providers []Provider
	queue     chan Event
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	done      chan struct{}

	logger Logger
	drops  DropRecorder

	droppedCount int64
	droppedMu    sync.Mutex
}

// NewManager creates a manager. If queueSize is 0, DefaultQueueSize is used.
func NewManager(queueSize int, opts ...Option) *Manager {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	m := &Manager{
		providers: make([]Provider, 0),
		queue:     make(chan Event, queueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterProvider adds a provider.
func (m *Manager) RegisterProvider(provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, provider)
}

// Providers returns a copy of the registered providers.
func (m *Manager) Providers() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	providers := make([]Provider, len(m.providers))
	copy(providers, m.providers)
	return providers
}

// Start launches the delivery worker. It must be called before Send.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.worker(ctx)
}

// Stop shuts the worker down after delivering queued events.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
}

// Send queues an event. It never blocks: when the queue is full the event
// is dropped and counted. Events sent before Start or after Stop are ignored.
func (m *Manager) Send(event Event) {
	m.mu.RLock()
	if !m.running {
		m.mu.RUnlock()
		return
	}
	m.mu.RUnlock()

	select {
	case m.queue <- event:
	default:
		m.droppedMu.Lock()
		m.droppedCount++
		m.droppedMu.Unlock()

		if m.drops != nil {
			m.drops.NotificationDropped()
		}
	}
}

// DroppedCount returns the number of events dropped due to queue overflow.
func (m *Manager) DroppedCount() int64 {
	m.droppedMu.Lock()
	defer m.droppedMu.Unlock()
	return m.droppedCount
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.drainQueue()
			return
		case <-m.done:
			m.drainQueue()
			return
		case event := <-m.queue:
			m.dispatch(ctx, event)
		}
	}
}

func (m *Manager) drainQueue() {
	for {
		select {
		case event := <-m.queue:
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			m.dispatch(ctx, event)
			cancel()
		default:
			return
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, event Event) {
	for _, provider := range m.Providers() {
		if !provider.SupportsAction(event.Action) {
			continue
		}

		if err := provider.Send(ctx, event); err != nil && m.logger != nil {
			m.logger.Warn("Notification via %s failed: event_id=%s error=%v", provider.Name(), event.ID, err)
		}
	}
}
