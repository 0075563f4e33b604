package models

import (
	"slices"
	"time"

	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
	strs "campusgate/pkg/platform/strings"
)

// Membership binds a principal to one tenant with a role. There is at most
// one membership per (principal, tenant); stores enforce it.
type Membership struct {
	PrincipalID         id.PrincipalID   `json:"principal_id"`
	TenantID            id.TenantID      `json:"tenant_id"`
	Role                Role             `json:"role"`
	ExplicitPermissions []string         `json:"explicit_permissions"`
	Status              MembershipStatus `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func NewMembership(principalID id.PrincipalID, tenantID id.TenantID, role Role, explicit []string, now time.Time) (*Membership, error) {
	if principalID.IsNil() || tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "membership requires principal and tenant")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown role "+string(role))
	}
	return &Membership{
		PrincipalID:         principalID,
		TenantID:            tenantID,
		Role:                role,
		ExplicitPermissions: strs.DedupeAndTrim(explicit),
		Status:              MembershipStatusActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

func (m *Membership) IsActive() bool {
	return m.Status == MembershipStatusActive
}

func (m *Membership) Suspend(now time.Time) {
	m.Status = MembershipStatusSuspended
	m.UpdatedAt = now
}

// Clone returns a deep copy; the permission slice is not shared.
func (m *Membership) Clone() *Membership {
	if m == nil {
		return nil
	}
	c := *m
	c.ExplicitPermissions = slices.Clone(m.ExplicitPermissions)
	return &c
}
