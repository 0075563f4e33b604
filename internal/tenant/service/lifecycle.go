package service

import (
	"context"
	"time"

	"campusgate/internal/tenant/invalidation"
	"campusgate/internal/tenant/models"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/audit"
	"campusgate/pkg/platform/middleware/admin"
	"campusgate/pkg/requestcontext"
)

// Lifecycle change kinds, used as the metrics label.
const (
	kindSuspend   = "suspend"
	kindReinstate = "reinstate"
	kindArchive   = "archive"
	kindTier      = "tier"
	kindExplicit  = "explicit"
)

// Suspend blocks an active tenant.
func (s *Service) Suspend(ctx context.Context, key, reason string) (*models.Tenant, error) {
	return s.mutate(ctx, key, kindSuspend, audit.EventTenantSuspended, reason,
		func(t *models.Tenant, now time.Time) error { return t.Suspend(now) })
}

// Reinstate lifts a suspension.
func (s *Service) Reinstate(ctx context.Context, key, reason string) (*models.Tenant, error) {
	return s.mutate(ctx, key, kindReinstate, audit.EventTenantReinstated, reason,
		func(t *models.Tenant, now time.Time) error { return t.Reinstate(now) })
}

// Archive makes the tenant inactive. There is no way back.
func (s *Service) Archive(ctx context.Context, key, reason string) (*models.Tenant, error) {
	return s.mutate(ctx, key, kindArchive, audit.EventTenantArchived, reason,
		func(t *models.Tenant, now time.Time) error { return t.Archive(now) })
}

// ChangeTier moves the tenant to another tier and recomputes its features.
func (s *Service) ChangeTier(ctx context.Context, key string, req *models.ChangeTierRequest) (*models.Tenant, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tier change is required")
	}
	reason := string(req.Tier)
	return s.mutate(ctx, key, kindTier, audit.EventTenantTierChanged, reason,
		func(t *models.Tenant, now time.Time) error { return t.ChangeTier(req.Tier, req.AddOns, now) })
}

// Invalidate drops key from every process's cache without touching the
// directory. Unknown keys are accepted so negative entries can be flushed.
func (s *Service) Invalidate(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	msg := invalidation.Message{Key: key, Reason: kindExplicit, At: requestcontext.Now(ctx)}
	s.cache.Invalidate(key)
	s.metrics.IncInvalidation(invalidation.SourceAdmin)
	s.broadcast(ctx, msg)
	s.auditor.Log(ctx, audit.Event{
		Action:   string(audit.EventCacheInvalidated),
		Decision: audit.DecisionApplied,
		Reason:   key,
		ActorID:  admin.ActorID(ctx),
	})
	return nil
}

// mutate applies change under the transaction, then invalidates locally,
// broadcasts and audits. Nothing past the commit can fail the request.
func (s *Service) mutate(
	ctx context.Context,
	key, kind string,
	event audit.AuditEvent,
	reason string,
	change func(t *models.Tenant, now time.Time) error,
) (*models.Tenant, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var updated *models.Tenant
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		t, err := s.tenants.FindByKeyForUpdate(txCtx, key)
		if err != nil {
			return err
		}
		if err := change(t, now); err != nil {
			return err
		}
		if err := s.tenants.Update(txCtx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, wrapTenantErr(err, "failed to update tenant")
	}

	s.cache.Invalidate(updated.Key)
	s.cache.InvalidateID(updated.ID)
	s.metrics.IncInvalidation(invalidation.SourceAdmin)
	s.metrics.IncLifecycleChange(kind)
	s.broadcast(ctx, invalidation.NewMessage(updated.ID, updated.Key, kind, now))

	s.auditor.Log(ctx, audit.Event{
		TenantID: updated.ID,
		Action:   string(event),
		Decision: audit.DecisionApplied,
		Reason:   reason,
		ActorID:  admin.ActorID(ctx),
	})
	return updated, nil
}

func (s *Service) broadcast(ctx context.Context, msg invalidation.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), broadcastTimeout)
	defer cancel()
	if err := s.broadcaster.Publish(ctx, msg); err != nil {
		s.metrics.IncBroadcastFailure()
		s.logger.ErrorContext(ctx, "tenant invalidation broadcast failed",
			"error", err,
			"tenant_key", msg.Key,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
