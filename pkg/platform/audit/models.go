package audit

import (
	"context"
	"time"

	id "campusgate/pkg/domain"
)

// Event is one audit record. Pipeline denials fill Route and Reason; admin
// actions fill ActorID. Keep it transport-agnostic so stores can fan out.
type Event struct {
	Timestamp   time.Time
	TenantID    id.TenantID
	PrincipalID id.PrincipalID
	Action      string
	Route       string
	Decision    string
	Reason      string
	RequestID   string
	ClientIP    string
	Device      string
	ActorID     string
}

type AuditEvent string

const (
	EventAccessDenied      AuditEvent = "access_denied"
	EventPipelineFailure   AuditEvent = "pipeline_failure"
	EventTenantSuspended   AuditEvent = "tenant_suspended"
	EventTenantReinstated  AuditEvent = "tenant_reinstated"
	EventTenantArchived    AuditEvent = "tenant_archived"
	EventTenantTierChanged AuditEvent = "tenant_tier_changed"
	EventCacheInvalidated  AuditEvent = "tenant_cache_invalidated"
)

// Decision values.
const (
	DecisionDenied  = "denied"
	DecisionFailed  = "failed"
	DecisionApplied = "applied"
)

// Store persists audit events. Implementations are append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
