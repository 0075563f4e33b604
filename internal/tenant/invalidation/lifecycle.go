package invalidation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	tenantcontract "campusgate/contracts/tenant"
	"campusgate/internal/platform/kafka/consumer"
	tenantmetrics "campusgate/internal/tenant/metrics"
)

// LifecycleHandler turns billing lifecycle events into local invalidations.
// The directory itself is updated by billing; this process only has to stop
// serving the cached copy.
type LifecycleHandler struct {
	cache   Invalidator
	logger  *slog.Logger
	metrics *tenantmetrics.Metrics
}

func NewLifecycleHandler(cache Invalidator, logger *slog.Logger, m *tenantmetrics.Metrics) *LifecycleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleHandler{cache: cache, logger: logger, metrics: m}
}

// Handle never returns an error for a malformed record: redelivering it
// would not make it parse.
func (h *LifecycleHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var ev tenantcontract.LifecycleEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.logger.WarnContext(ctx, "malformed tenant lifecycle event",
			"error", err,
			"topic", msg.Topic,
			"offset", msg.Offset,
		)
		return nil
	}
	if ev.TenantKey == "" && len(msg.Key) > 0 {
		ev.TenantKey = string(msg.Key)
	}
	invalidation := Message{
		TenantID: ev.TenantID,
		Key:      strings.ToLower(strings.TrimSpace(ev.TenantKey)),
		Reason:   ev.Type,
	}
	if !invalidation.Apply(h.cache) {
		h.logger.WarnContext(ctx, "tenant lifecycle event names no tenant",
			"type", ev.Type,
			"version", ev.Version,
			"offset", msg.Offset,
		)
		return nil
	}
	h.metrics.IncInvalidation(SourceKafka)
	h.logger.InfoContext(ctx, "tenant invalidated by lifecycle event",
		"type", ev.Type,
		"tenant_key", invalidation.Key,
	)
	return nil
}

var _ consumer.Handler = (*LifecycleHandler)(nil)
