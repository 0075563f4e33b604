package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
)

const (
	DefaultBufferSize = 16
	DefaultRetention  = 10 * time.Minute
	// idle unfinished operations are forgotten after this long without events.
	defaultIdleTimeout = time.Hour
)

// Sink receives every accepted event after subscribers have been served.
// Deliver must not block.
type Sink interface {
	Deliver(ev Event)
}

type operation struct {
	tenantID   id.TenantID
	last       Event
	hasLast    bool
	lastAt     time.Time
	finishedAt time.Time
	subs       map[*Subscription]struct{}
}

func (o *operation) finished() bool { return !o.finishedAt.IsZero() }

// Hub tracks operations and their subscribers. Each subscription has a
// bounded buffer: a slow reader loses intermediate events but always gets
// the terminal one, after which its channel is closed.
type Hub struct {
	mu          sync.Mutex
	ops         map[id.OperationID]*operation
	bufferSize  int
	retention   time.Duration
	idleTimeout time.Duration
	clock       func() time.Time
	sinks       []Sink
	logger      *slog.Logger
	metrics     *Metrics
}

type HubOption func(*Hub)

// WithBufferSize sets the per-subscription buffer; values below 2 are raised to 2.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) { h.bufferSize = max(n, 2) }
}

// WithRetention keeps finished operations around for late subscribers.
func WithRetention(d time.Duration) HubOption {
	return func(h *Hub) { h.retention = d }
}

func WithClock(clock func() time.Time) HubOption {
	return func(h *Hub) { h.clock = clock }
}

func WithSink(s Sink) HubOption {
	return func(h *Hub) { h.sinks = append(h.sinks, s) }
}

func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		ops:         make(map[id.OperationID]*operation),
		bufferSize:  DefaultBufferSize,
		retention:   DefaultRetention,
		idleTimeout: defaultIdleTimeout,
		clock:       time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start registers a new operation for tenantID and publishes its queued event.
func (h *Hub) Start(ctx context.Context, tenantID id.TenantID, message string) (id.OperationID, error) {
	opID := id.NewOperationID()
	err := h.Publish(ctx, Event{
		OperationID: opID,
		TenantID:    tenantID,
		Status:      StatusQueued,
		Message:     message,
	})
	if err != nil {
		return id.OperationID{}, err
	}
	return opID, nil
}

// Publish records ev as the operation's latest state and fans it out. The
// first event for an unknown operation registers it under ev.TenantID.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	now := h.clock()
	if ev.At.IsZero() {
		ev.At = now
	}

	h.mu.Lock()
	op, ok := h.ops[ev.OperationID]
	if !ok {
		op = &operation{tenantID: ev.TenantID, subs: make(map[*Subscription]struct{})}
		h.ops[ev.OperationID] = op
		h.metrics.SetOperations(len(h.ops))
	}
	if op.tenantID != ev.TenantID {
		h.mu.Unlock()
		return dErrors.New(dErrors.CodeForbidden, "operation belongs to another tenant")
	}
	if op.finished() {
		h.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "operation already finished")
	}
	op.last, op.hasLast, op.lastAt = ev, true, now

	if ev.Status.IsTerminal() {
		op.finishedAt = now
		for sub := range op.subs {
			h.deliverFinal(sub, ev)
		}
		h.metrics.AddSubscribers(-len(op.subs))
		op.subs = nil
	} else {
		for sub := range op.subs {
			h.deliver(sub, ev)
		}
	}
	h.mu.Unlock()

	h.metrics.IncPublished(ev.Status)
	for _, s := range h.sinks {
		s.Deliver(ev)
	}
	h.logger.DebugContext(ctx, "progress published",
		"operation_id", ev.OperationID.String(),
		"status", ev.Status,
		"percent", ev.Percent,
	)
	return nil
}

// deliver drops ev when the subscriber is behind. Caller holds h.mu.
func (h *Hub) deliver(sub *Subscription, ev Event) {
	select {
	case sub.events <- ev:
	default:
		h.metrics.IncDropped(DropSlowSubscriber)
	}
}

// deliverFinal makes room by discarding the oldest buffered event, then
// closes the stream. Only the hub sends, so the loop terminates.
func (h *Hub) deliverFinal(sub *Subscription, ev Event) {
	for {
		select {
		case sub.events <- ev:
			close(sub.events)
			sub.closed = true
			return
		default:
		}
		select {
		case <-sub.events:
			h.metrics.IncDropped(DropSlowSubscriber)
		default:
		}
	}
}

// Subscribe opens a stream for opID as seen by tenantID. The latest event is
// replayed first. Operations of other tenants are reported as not found.
func (h *Hub) Subscribe(tenantID id.TenantID, opID id.OperationID) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	op, ok := h.ops[opID]
	if !ok || op.tenantID != tenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "operation not found")
	}
	sub := &Subscription{hub: h, opID: opID, events: make(chan Event, h.bufferSize)}
	if op.hasLast {
		sub.events <- op.last
	}
	if op.finished() {
		close(sub.events)
		sub.closed = true
		return sub, nil
	}
	op.subs[sub] = struct{}{}
	h.metrics.AddSubscribers(1)
	return sub, nil
}

// Last returns the latest event of opID if tenantID owns it.
func (h *Hub) Last(tenantID id.TenantID, opID id.OperationID) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	op, ok := h.ops[opID]
	if !ok || op.tenantID != tenantID || !op.hasLast {
		return Event{}, false
	}
	return op.last, true
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	if op, ok := h.ops[sub.opID]; ok && op.subs != nil {
		delete(op.subs, sub)
	}
	close(sub.events)
	sub.closed = true
	h.metrics.AddSubscribers(-1)
}

// Prune forgets finished operations past retention and unfinished ones that
// have gone quiet with nobody watching.
func (h *Hub) Prune() int {
	now := h.clock()
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for opID, op := range h.ops {
		expired := op.finished() && now.Sub(op.finishedAt) >= h.retention
		idle := !op.finished() && len(op.subs) == 0 && now.Sub(op.lastAt) >= h.idleTimeout
		if expired || idle {
			delete(h.ops, opID)
			removed++
		}
	}
	h.metrics.SetOperations(len(h.ops))
	return removed
}

// Run prunes periodically until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	interval := max(h.retention/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := h.Prune(); n > 0 {
				h.logger.DebugContext(ctx, "pruned progress operations", "count", n)
			}
		}
	}
}

// Subscription is one reader's view of an operation.
type Subscription struct {
	hub    *Hub
	opID   id.OperationID
	events chan Event
	closed bool // guarded by hub.mu
}

// Events is closed after the terminal event or Close.
func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Close() { s.hub.unsubscribe(s) }
