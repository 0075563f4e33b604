// Package membership persists tenant-scoped memberships. There is at most one
// membership per (principal, tenant) pair.
package membership

import (
	"context"
	"sync"

	"campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	"campusgate/pkg/platform/sentinel"
)

var ErrNotFound = sentinel.ErrNotFound

type key struct {
	principal id.PrincipalID
	tenant    id.TenantID
}

type InMemory struct {
	mu      sync.RWMutex
	records map[key]*models.Membership
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[key]*models.Membership)}
}

// FindMembership returns a copy of the membership for (principalID, tenantID).
func (s *InMemory) FindMembership(_ context.Context, principalID id.PrincipalID, tenantID id.TenantID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.records[key{principalID, tenantID}]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

// Save inserts or replaces the membership for its (principal, tenant) pair.
func (s *InMemory) Save(_ context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key{m.PrincipalID, m.TenantID}] = m.Clone()
	return nil
}

// ListByTenant returns copies of every membership in the tenant.
func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Membership
	for k, m := range s.records {
		if k.tenant == tenantID {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}
