package service

import (
	"log/slog"

	tenantmetrics "campusgate/internal/tenant/metrics"
)

type serviceConfig struct {
	logger      *slog.Logger
	auditor     AuditLogger
	metrics     *tenantmetrics.Metrics
	broadcaster Broadcaster
	tx          StoreTx
}

// Option configures a Service.
type Option func(c *serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithAuditor(auditor AuditLogger) Option {
	return func(c *serviceConfig) {
		c.auditor = auditor
	}
}

func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

// WithBroadcaster sets the push invalidation channel. Without one,
// invalidation is local and other processes converge within the cache TTL.
func WithBroadcaster(b Broadcaster) Option {
	return func(c *serviceConfig) {
		c.broadcaster = b
	}
}

// WithTx sets the transaction boundary. The default serializes mutations
// within this process.
func WithTx(tx StoreTx) Option {
	return func(c *serviceConfig) {
		c.tx = tx
	}
}
