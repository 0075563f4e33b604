package tenant

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	"campusgate/pkg/platform/sentinel"
)

// ErrNotFound is returned when a tenant is not found.
var ErrNotFound = sentinel.ErrNotFound

// InMemory stores tenants in memory for development and tests. Records are
// stored and returned by value so callers never share mutable state.
type InMemory struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]models.Tenant
	keyIdx  map[string]id.TenantID
}

func NewInMemory() *InMemory {
	return &InMemory{
		tenants: make(map[id.TenantID]models.Tenant),
		keyIdx:  make(map[string]id.TenantID),
	}
}

// Create inserts the tenant if its key is not taken.
func (s *InMemory) Create(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(t.Key)
	if _, exists := s.keyIdx[key]; exists {
		return fmt.Errorf("tenant key %q must be unique: %w", key, sentinel.ErrAlreadyExists)
	}
	if _, exists := s.tenants[t.ID]; exists {
		return fmt.Errorf("tenant id must be unique: %w", sentinel.ErrAlreadyExists)
	}
	s.tenants[t.ID] = *t
	s.keyIdx[key] = t.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// FindByKey looks a tenant up by subdomain label (case-insensitive).
func (s *InMemory) FindByKey(_ context.Context, key string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenantID, ok := s.keyIdx[strings.ToLower(key)]
	if !ok {
		return nil, ErrNotFound
	}
	t := s.tenants[tenantID]
	return &t, nil
}

// FindByKeyForUpdate is FindByKey; callers serialize through the service's
// in-memory transaction.
func (s *InMemory) FindByKeyForUpdate(ctx context.Context, key string) (*models.Tenant, error) {
	return s.FindByKey(ctx, key)
}

// Update replaces a tenant's mutable fields. The key is immutable.
func (s *InMemory) Update(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tenants[t.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Key != t.Key {
		return fmt.Errorf("tenant key is immutable: %w", sentinel.ErrInvalidState)
	}
	s.tenants[t.ID] = *t
	return nil
}

// List returns all tenants ordered by key.
func (s *InMemory) List(_ context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, &t)
	}
	slices.SortFunc(out, func(a, b *models.Tenant) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}
