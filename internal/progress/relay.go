package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"campusgate/internal/platform/kafka/producer"
	"campusgate/pkg/platform/circuit"
)

const (
	defaultRelayQueue   = 1024
	defaultRelayTimeout = 2 * time.Second
)

// Producer is the Kafka client. *producer.Producer satisfies it.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaRelay mirrors hub events onto a topic, keyed by operation id so one
// operation's events stay ordered. It is best effort: a full queue or an
// open circuit drops events instead of slowing publishers.
type KafkaRelay struct {
	producer Producer
	topic    string
	queue    chan Event
	breaker  *circuit.Breaker
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

type RelayOption func(*KafkaRelay)

func WithRelayQueue(n int) RelayOption {
	return func(r *KafkaRelay) { r.queue = make(chan Event, max(n, 1)) }
}

func WithRelayBreaker(b *circuit.Breaker) RelayOption {
	return func(r *KafkaRelay) { r.breaker = b }
}

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *KafkaRelay) { r.logger = logger }
}

func WithRelayMetrics(m *Metrics) RelayOption {
	return func(r *KafkaRelay) { r.metrics = m }
}

func NewKafkaRelay(p Producer, topic string, opts ...RelayOption) *KafkaRelay {
	r := &KafkaRelay{
		producer: p,
		topic:    topic,
		queue:    make(chan Event, defaultRelayQueue),
		timeout:  defaultRelayTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = circuit.New("progress-relay",
			circuit.WithStateChange(func(name string, _, to circuit.State) {
				r.metrics.SetBreakerState(int(to))
				r.logger.Warn("circuit state changed", "breaker", name, "state", to.String())
			}),
		)
	}
	return r
}

func (r *KafkaRelay) Deliver(ev Event) {
	select {
	case r.queue <- ev:
	default:
		r.metrics.IncDropped(DropRelayFull)
	}
}

// Run forwards queued events until ctx is cancelled, then drains what is
// already queued while the circuit allows.
func (r *KafkaRelay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case ev := <-r.queue:
			r.forward(ctx, ev)
		}
	}
}

func (r *KafkaRelay) drain() {
	ctx := context.Background()
	for {
		select {
		case ev := <-r.queue:
			r.forward(ctx, ev)
		default:
			return
		}
	}
}

func (r *KafkaRelay) forward(ctx context.Context, ev Event) {
	if !r.breaker.Allow() {
		r.metrics.IncDropped(DropRelayOpen)
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		r.breaker.Success()
		r.logger.ErrorContext(ctx, "marshal progress event", "error", err)
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	err = r.producer.Produce(sendCtx, &producer.Message{
		Topic: r.topic,
		Key:   []byte(ev.OperationID.String()),
		Value: payload,
		Headers: map[string]string{
			"tenant_id": ev.TenantID.String(),
			"status":    string(ev.Status),
		},
	})
	if err != nil {
		r.breaker.Failure()
		r.metrics.IncDropped(DropRelayFailed)
		r.logger.WarnContext(ctx, "progress relay failed",
			"error", err,
			"operation_id", ev.OperationID.String(),
		)
		return
	}
	r.breaker.Success()
}
