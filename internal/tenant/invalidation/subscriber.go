package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	tenantmetrics "campusgate/internal/tenant/metrics"
)

const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// Subscriber applies invalidations received on the Redis channel. Messages
// published while it was disconnected are lost, so every (re)subscription
// purges the local cache first; entries are then refetched on demand.
type Subscriber struct {
	client  redis.UniversalClient
	channel string
	cache   Invalidator
	logger  *slog.Logger
	metrics *tenantmetrics.Metrics
}

type SubscriberOption func(*Subscriber)

func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) { s.logger = logger }
}

func WithSubscriberMetrics(m *tenantmetrics.Metrics) SubscriberOption {
	return func(s *Subscriber) { s.metrics = m }
}

func NewSubscriber(client redis.UniversalClient, channel string, cache Invalidator, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		client:  client,
		channel: channel,
		cache:   cache,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	ps := s.client.Subscribe(ctx, s.channel)
	stop := context.AfterFunc(ctx, func() { _ = ps.Close() })
	defer stop()
	defer ps.Close() //nolint:errcheck // closed twice on shutdown

	backoff := minBackoff
	for {
		raw, err := ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil
			}
			s.logger.WarnContext(ctx, "tenant invalidation receive failed",
				"error", err,
				"channel", s.channel,
				"retry_in", backoff,
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff

		switch m := raw.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				s.cache.Purge()
				s.metrics.IncInvalidation(SourceResub)
				s.logger.InfoContext(ctx, "tenant invalidation subscribed", "channel", m.Channel)
			}
		case *redis.Message:
			s.handle(ctx, m.Payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		s.logger.WarnContext(ctx, "malformed tenant invalidation", "error", err)
		return
	}
	if msg.Apply(s.cache) {
		s.metrics.IncInvalidation(SourceRedis)
	}
}
