// Package kafka holds the shared broker health check; the producer and
// consumer live in subpackages.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

var ErrNoBrokers = errors.New("kafka brokers not configured")

// HealthChecker checks that at least one broker accepts TCP connections.
type HealthChecker struct {
	brokers []string
	timeout time.Duration
}

func NewHealthChecker(brokers []string) *HealthChecker {
	return &HealthChecker{brokers: brokers, timeout: 2 * time.Second}
}

// Check satisfies health.CheckFunc.
func (h *HealthChecker) Check(ctx context.Context) error {
	var lastErr error
	for _, broker := range h.brokers {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			continue
		}
		dialer := net.Dialer{Timeout: h.timeout}
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close() //nolint:errcheck // probe connection
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("no kafka brokers reachable: %w", lastErr)
	}
	return ErrNoBrokers
}
