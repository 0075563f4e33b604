package credential

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationList stores revoked token IDs as expiring Redis keys so
// every process sees a revocation immediately.
type RedisRevocationList struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRevocationList(client redis.UniversalClient, prefix string) *RedisRevocationList {
	return &RedisRevocationList{client: client, prefix: prefix}
}

// Revoke marks tokenID revoked for ttl, normally the token's remaining lifetime.
func (r *RedisRevocationList) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("token id is required")
	}
	return r.client.Set(ctx, r.prefix+tokenID, "1", ttl).Err()
}

func (r *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocationList is the single-process list used when Redis is not
// configured.
type MemoryRevocationList struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	clock   func() time.Time
}

func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{revoked: make(map[string]time.Time), clock: time.Now}
}

func (m *MemoryRevocationList) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("token id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	for jti, expiry := range m.revoked {
		if !now.Before(expiry) {
			delete(m.revoked, jti)
		}
	}
	m.revoked[tokenID] = now.Add(ttl)
	return nil
}

func (m *MemoryRevocationList) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expiry, ok := m.revoked[tokenID]
	return ok && m.clock().Before(expiry), nil
}
