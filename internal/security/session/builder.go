// Package session builds the per-request SecurityContext from a resolved
// tenant and a verified principal.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusgate/internal/credential"
	"campusgate/internal/security/models"
	"campusgate/internal/security/permissions"
	tenantmodels "campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/sentinel"
	"campusgate/pkg/requestcontext"
)

// MembershipSource reads memberships from the tenant directory. It is never
// cached: suspending a membership takes effect on the next request.
type MembershipSource interface {
	FindMembership(ctx context.Context, principalID id.PrincipalID, tenantID id.TenantID) (*tenantmodels.Membership, error)
}

type Reason string

const (
	ReasonNoMembership        Reason = "no_membership"
	ReasonMembershipSuspended Reason = "membership_suspended"
)

// MembershipError means the principal may not act in the tenant. It is never
// a credential problem.
type MembershipError struct {
	Reason Reason
}

func (e *MembershipError) Error() string {
	return fmt.Sprintf("membership: %s", e.Reason)
}

const DefaultTimeout = 500 * time.Millisecond

type Builder struct {
	memberships MembershipSource
	timeout     time.Duration
}

func NewBuilder(memberships MembershipSource, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Builder{memberships: memberships, timeout: timeout}
}

// Build loads the membership for (principal, tenant) and derives the granted
// permissions. It has no side effects and returns a fresh context each call.
//
// Platform admins need no membership: without one they hold every permission
// the tenant's features allow but no tenant role. A suspended membership
// blocks a platform admin like anyone else.
func (b *Builder) Build(ctx context.Context, tenant *tenantmodels.Tenant, principal *credential.Principal) (*models.SecurityContext, error) {
	if tenant == nil || principal == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant and principal are required")
	}
	if !tenant.IsActive() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "security context requires an active tenant")
	}

	membership, err := b.fetch(ctx, principal.ID, tenant.ID)
	if err != nil {
		return nil, err
	}

	params := models.Params{
		Tenant:    *tenant,
		Principal: *principal,
		IssuedAt:  requestcontext.Now(ctx),
	}

	switch {
	case membership == nil && !principal.IsPlatformAdmin():
		return nil, &MembershipError{Reason: ReasonNoMembership}
	case membership != nil && !membership.IsActive():
		return nil, &MembershipError{Reason: ReasonMembershipSuspended}
	case principal.IsPlatformAdmin():
		params.Membership = membership
		params.Granted = permissions.Capabilities(tenant.EnabledFeatures)
		params.Withheld = withheldFromPlatformAdmin(params.Granted)
	default:
		params.Membership = membership
		params.Granted, params.Withheld = permissions.Grant(membership.Role, membership.ExplicitPermissions, tenant.EnabledFeatures)
	}

	return models.NewSecurityContext(params)
}

// fetch returns (nil, nil) when no membership exists.
func (b *Builder) fetch(ctx context.Context, principalID id.PrincipalID, tenantID id.TenantID) (*tenantmodels.Membership, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	m, err := b.memberships.FindMembership(fetchCtx, principalID, tenantID)
	switch {
	case err == nil:
		if m == nil {
			return nil, nil
		}
		if m.PrincipalID != principalID || m.TenantID != tenantID {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "directory returned a foreign membership")
		}
		return m.Clone(), nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), fetchCtx.Err() != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "membership lookup timed out")
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "membership lookup failed")
	}
}

func withheldFromPlatformAdmin(granted permissions.Set) permissions.Set {
	var w []permissions.Permission
	for _, p := range permissions.All() {
		if !granted.Has(p) {
			w = append(w, p)
		}
	}
	return permissions.NewSet(w...)
}
