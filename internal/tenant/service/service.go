// Package service implements tenant administration: directory reads that
// bypass the cache and lifecycle mutations that invalidate it everywhere.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"campusgate/internal/tenant/invalidation"
	tenantmetrics "campusgate/internal/tenant/metrics"
	"campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/audit"
	"campusgate/pkg/platform/sentinel"
	"campusgate/pkg/validation"
)

// TenantStore is the directory as the admin surface sees it.
type TenantStore interface {
	FindByKey(ctx context.Context, key string) (*models.Tenant, error)
	FindByKeyForUpdate(ctx context.Context, key string) (*models.Tenant, error)
	Update(ctx context.Context, t *models.Tenant) error
	List(ctx context.Context) ([]*models.Tenant, error)
}

// CacheInvalidator is this process's tenant cache.
type CacheInvalidator interface {
	Invalidate(key string)
	InvalidateID(tenantID id.TenantID)
}

// Broadcaster pushes invalidations to the other processes.
type Broadcaster interface {
	Publish(ctx context.Context, msg invalidation.Message) error
}

// AuditLogger records admin actions.
type AuditLogger interface {
	Log(ctx context.Context, event audit.Event)
}

const broadcastTimeout = 2 * time.Second

// Service orchestrates tenant administration.
type Service struct {
	tenants     TenantStore
	cache       CacheInvalidator
	broadcaster Broadcaster
	tx          StoreTx
	logger      *slog.Logger
	auditor     AuditLogger
	metrics     *tenantmetrics.Metrics
}

func New(tenants TenantStore, cache CacheInvalidator, opts ...Option) *Service {
	cfg := serviceConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Service{
		tenants:     tenants,
		cache:       cache,
		broadcaster: cfg.broadcaster,
		tx:          cfg.tx,
		logger:      cfg.logger,
		auditor:     cfg.auditor,
		metrics:     cfg.metrics,
	}
	if s.broadcaster == nil {
		s.broadcaster = invalidation.NopBroadcaster{}
	}
	if s.tx == nil {
		s.tx = newInMemoryStoreTx()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.auditor == nil {
		s.auditor = audit.NewLogger(s.logger, nil)
	}
	return s
}

// Get reads the directory entry directly, never from the cache.
func (s *Service) Get(ctx context.Context, key string) (*models.Tenant, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	t, err := s.tenants.FindByKey(ctx, key)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	return t, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Tenant, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to list tenants")
	}
	return tenants, nil
}

func normalizeKey(key string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if !validation.IsTenantKey(key) {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid tenant key")
	}
	return key, nil
}

// wrapTenantErr translates store errors once. Domain errors raised by the
// model or the transaction pass through unchanged.
func wrapTenantErr(err error, action string) error {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "tenant directory unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, action)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, action)
	}
}
