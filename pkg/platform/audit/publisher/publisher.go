package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
	audit "campusgate/pkg/platform/audit"
	"campusgate/pkg/platform/audit/metrics"
)

const persistTimeout = 5 * time.Second

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store   audit.Store
	events  chan audit.Event
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *metrics.Metrics
	async   bool

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and persisted in a background goroutine; Emit never
// blocks and drops the event when the buffer is full.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan audit.Event, size)
			p.async = true
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store audit.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		p.metrics.DecQueueDepth()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := p.persist(ctx, event)
		cancel()
		if err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"action", event.Action,
				"request_id", event.RequestID,
			)
		}
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	start := time.Now()
	err := p.store.Append(ctx, event)
	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	if err != nil {
		p.metrics.IncPersistFailures()
	}
	return err
}

// Close stops accepting events and waits for queued ones to drain.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		if p.async {
			close(p.events)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if !p.async {
		return p.persist(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return dErrors.New(dErrors.CodeUnavailable, "audit publisher closed")
	}
	select {
	case p.events <- event:
		p.metrics.IncQueueDepth()
		p.metrics.IncEventsEnqueued()
		return nil
	default:
		p.metrics.IncEventsDropped()
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, event dropped",
				"action", event.Action,
				"request_id", event.RequestID,
			)
		}
		return dErrors.New(dErrors.CodeUnavailable, "audit buffer full")
	}
}

func (p *Publisher) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]audit.Event, error) {
	return p.store.ListByTenant(ctx, tenantID)
}

func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}
