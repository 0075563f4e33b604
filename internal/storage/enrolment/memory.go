package enrolment

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"campusgate/internal/storage/scope"
	id "campusgate/pkg/domain"
	"campusgate/pkg/requestcontext"
)

// InMemory partitions rows by tenant and applies the same deny-all rule as
// the database policy.
type InMemory struct {
	mu   sync.RWMutex
	rows map[id.TenantID][]Enrolment
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[id.TenantID][]Enrolment)}
}

func (s *InMemory) List(ctx context.Context) ([]Enrolment, error) {
	token, ok := scope.TokenFrom(ctx)
	if !ok {
		return nil, scope.ErrNoTenantScope
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.rows[token.TenantID()])
	slices.SortFunc(out, func(a, b Enrolment) int { return cmp.Compare(a.StudentRef, b.StudentRef) })
	return out, nil
}

func (s *InMemory) Add(ctx context.Context, studentRef, grade string) (Enrolment, error) {
	token, ok := scope.TokenFrom(ctx)
	if !ok {
		return Enrolment{}, scope.ErrNoTenantScope
	}
	e := Enrolment{ID: uuid.New(), StudentRef: studentRef, Grade: grade, CreatedAt: requestcontext.Now(ctx)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[token.TenantID()] = append(s.rows[token.TenantID()], e)
	return e, nil
}
