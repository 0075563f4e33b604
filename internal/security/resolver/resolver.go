// Package resolver maps a request host onto a tenant through the tenant
// cache. It fails closed: a directory failure is an error, never "unknown"
// and never "active".
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	tenantmodels "campusgate/internal/tenant/models"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/sentinel"
	"campusgate/pkg/validation"
)

// TenantSource is the cached directory lookup.
type TenantSource interface {
	Get(ctx context.Context, key string) (*tenantmodels.Tenant, error)
}

type Reason string

const (
	ReasonUnknownTenant Reason = "unknown_tenant"
	ReasonMalformedHost Reason = "malformed_host"
)

// ResolutionError means the host does not address a tenant.
type ResolutionError struct {
	Reason Reason
	Host   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %q", e.Reason, e.Host)
}

// TenantUnavailableError means the tenant exists but is not active. It is
// terminal for every route, public ones included.
type TenantUnavailableError struct {
	Key    string
	Status tenantmodels.TenantStatus
}

func (e *TenantUnavailableError) Error() string {
	return fmt.Sprintf("tenant %s is %s", e.Key, e.Status)
}

type Kind int

const (
	// KindNoTenant is the bare root domain or a reserved label.
	KindNoTenant Kind = iota
	KindResolved
)

// Resolution is the result of parsing, and for school hosts resolving, a host.
type Resolution struct {
	Kind   Kind
	Key    string
	Tenant *tenantmodels.Tenant
}

type Config struct {
	BaseDomain     string
	ReservedLabels []string
}

type Resolver struct {
	baseDomain string
	reserved   []string
	tenants    TenantSource
}

func New(cfg Config, tenants TenantSource) *Resolver {
	reserved := make([]string, 0, len(cfg.ReservedLabels))
	for _, l := range cfg.ReservedLabels {
		reserved = append(reserved, strings.ToLower(strings.TrimSpace(l)))
	}
	return &Resolver{
		baseDomain: strings.Trim(strings.ToLower(cfg.BaseDomain), "."),
		reserved:   reserved,
		tenants:    tenants,
	}
}

// ParseHost extracts the tenant key from host without touching the directory.
// The bare base domain and reserved labels yield KindNoTenant.
func (r *Resolver) ParseHost(host string) (Resolution, error) {
	h := strings.ToLower(strings.TrimSpace(host))
	if hostOnly, _, err := net.SplitHostPort(h); err == nil {
		h = hostOnly
	}
	h = strings.TrimSuffix(h, ".")

	if h == r.baseDomain {
		return Resolution{Kind: KindNoTenant}, nil
	}
	label, ok := strings.CutSuffix(h, "."+r.baseDomain)
	if !ok || label == "" || strings.Contains(label, ".") {
		return Resolution{}, &ResolutionError{Reason: ReasonMalformedHost, Host: host}
	}
	if slices.Contains(r.reserved, label) {
		return Resolution{Kind: KindNoTenant}, nil
	}
	if !validation.IsTenantKey(label) {
		return Resolution{}, &ResolutionError{Reason: ReasonMalformedHost, Host: host}
	}
	return Resolution{Kind: KindResolved, Key: label}, nil
}

// Resolve parses host and loads its tenant. Errors are *ResolutionError,
// *TenantUnavailableError, or a dErrors timeout/unavailable error.
func (r *Resolver) Resolve(ctx context.Context, host string) (Resolution, error) {
	res, err := r.ParseHost(host)
	if err != nil || res.Kind == KindNoTenant {
		return res, err
	}

	t, err := r.tenants.Get(ctx, res.Key)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		return Resolution{}, &ResolutionError{Reason: ReasonUnknownTenant, Host: host}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Resolution{}, dErrors.Wrap(err, dErrors.CodeTimeout, "tenant resolution cancelled")
	default:
		if !dErrors.IsRetryable(err) {
			err = dErrors.Wrap(err, dErrors.CodeUnavailable, "tenant resolution failed")
		}
		return Resolution{}, err
	}

	if !t.IsActive() {
		return Resolution{}, &TenantUnavailableError{Key: t.Key, Status: t.Status}
	}
	res.Tenant = t
	return res, nil
}
