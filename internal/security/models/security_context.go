// Package models holds the request-scoped security types produced by the
// pipeline.
package models

import (
	"time"

	"campusgate/internal/credential"
	"campusgate/internal/security/permissions"
	tenantmodels "campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
)

// SecurityContext is the immutable per-request result of resolution,
// verification and membership loading. All fields are copies; nothing a
// caller does to returned values affects the context or any cache.
type SecurityContext struct {
	tenant        tenantmodels.Tenant
	principal     credential.Principal
	membership    *tenantmodels.Membership
	platformAdmin bool
	granted       permissions.Set
	withheld      permissions.Set
	issuedAt      time.Time
}

// Params is the input to NewSecurityContext. Membership may be nil only for
// platform admins acting in a tenant they do not belong to.
type Params struct {
	Tenant     tenantmodels.Tenant
	Principal  credential.Principal
	Membership *tenantmodels.Membership
	Granted    permissions.Set
	Withheld   permissions.Set
	IssuedAt   time.Time
}

// NewSecurityContext refuses non-active tenants, inactive memberships and
// memberships belonging to another tenant or principal.
func NewSecurityContext(p Params) (*SecurityContext, error) {
	if !p.Tenant.IsActive() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "security context requires an active tenant")
	}
	if p.Principal.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "security context requires a principal")
	}
	if p.Membership == nil {
		if !p.Principal.IsPlatformAdmin() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "security context requires a membership")
		}
	} else {
		if p.Membership.TenantID != p.Tenant.ID || p.Membership.PrincipalID != p.Principal.ID {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "membership does not match tenant and principal")
		}
		if !p.Membership.IsActive() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "security context requires an active membership")
		}
	}

	sc := &SecurityContext{
		tenant:        p.Tenant,
		principal:     p.Principal,
		platformAdmin: p.Principal.IsPlatformAdmin(),
		granted:       p.Granted,
		withheld:      p.Withheld,
		issuedAt:      p.IssuedAt,
	}
	if p.Membership != nil {
		sc.membership = p.Membership.Clone()
	}
	return sc, nil
}

func (c *SecurityContext) Tenant() tenantmodels.Tenant { return c.tenant }

func (c *SecurityContext) TenantID() id.TenantID { return c.tenant.ID }

func (c *SecurityContext) Principal() credential.Principal { return c.principal }

func (c *SecurityContext) PrincipalID() id.PrincipalID { return c.principal.ID }

// Membership returns a copy of the membership, or false for a platform admin
// without one.
func (c *SecurityContext) Membership() (*tenantmodels.Membership, bool) {
	if c.membership == nil {
		return nil, false
	}
	return c.membership.Clone(), true
}

// Role returns the membership role, or "" without a membership.
func (c *SecurityContext) Role() tenantmodels.Role {
	if c.membership == nil {
		return ""
	}
	return c.membership.Role
}

func (c *SecurityContext) IsPlatformAdmin() bool { return c.platformAdmin }

func (c *SecurityContext) Granted() permissions.Set { return c.granted }

func (c *SecurityContext) HasPermission(p permissions.Permission) bool {
	return c.granted.Has(p)
}

// Withheld reports whether p would have been granted but for the tenant's
// enabled features.
func (c *SecurityContext) Withheld(p permissions.Permission) bool {
	return c.withheld.Has(p)
}

func (c *SecurityContext) IssuedAt() time.Time { return c.issuedAt }
