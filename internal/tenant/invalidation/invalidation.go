// Package invalidation pushes tenant cache invalidations to every process.
// Admin mutations publish on a Redis channel; billing lifecycle events arrive
// over Kafka. Both end in the same local cache calls.
package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "campusgate/pkg/domain"
)

// Invalidation sources, used as the metrics label.
const (
	SourceAdmin = "admin"
	SourceRedis = "redis"
	SourceKafka = "kafka"
	SourceResub = "resubscribe"
)

// Invalidator is the local cache. *cache.Cache satisfies it.
type Invalidator interface {
	Invalidate(key string)
	InvalidateID(tenantID id.TenantID)
	Purge()
}

// Message is the payload on the invalidation channel. Either field may be
// empty; receivers drop whatever they can match.
type Message struct {
	TenantID string    `json:"tenant_id,omitempty"`
	Key      string    `json:"key,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// NewMessage builds a message for a directory entry.
func NewMessage(tenantID id.TenantID, key, reason string, at time.Time) Message {
	m := Message{Key: key, Reason: reason, At: at}
	if !tenantID.IsNil() {
		m.TenantID = tenantID.String()
	}
	return m
}

// Apply drops the entry the message names from inv. It reports false when
// the message names nothing usable.
func (m Message) Apply(inv Invalidator) bool {
	applied := false
	if m.Key != "" {
		inv.Invalidate(m.Key)
		applied = true
	}
	if m.TenantID != "" {
		tenantID, err := id.ParseTenantID(m.TenantID)
		if err == nil {
			inv.InvalidateID(tenantID)
			applied = true
		}
	}
	return applied
}

// RedisBroadcaster publishes invalidations on a Pub/Sub channel.
type RedisBroadcaster struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisBroadcaster(client redis.UniversalClient, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// NopBroadcaster is used when Redis is not configured; invalidation then
// stays process-local.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(context.Context, Message) error { return nil }
