package testutil

import (
	"time"

	"github.com/google/uuid"

	tenantmodels "campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
)

// TestIDs provides fixed identifiers for deterministic test data.
var TestIDs = struct {
	TenantA    id.TenantID
	TenantB    id.TenantID
	Principal1 id.PrincipalID
	Principal2 id.PrincipalID
}{
	TenantA:    id.TenantID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	TenantB:    id.TenantID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000002")),
	Principal1: id.PrincipalID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	Principal2: id.PrincipalID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
}

// FixedNow is the reference instant used by fixtures.
var FixedNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// TenantBuilder builds directory entries fluently.
type TenantBuilder struct {
	tenant tenantmodels.Tenant
}

// NewTenant starts an active basic-tier tenant with a random ID.
func NewTenant(key string) *TenantBuilder {
	return &TenantBuilder{tenant: tenantmodels.Tenant{
		ID:              id.NewTenantID(),
		Key:             key,
		Name:            key,
		Status:          tenantmodels.TenantStatusActive,
		Tier:            tenantmodels.TierBasic,
		EnabledFeatures: tenantmodels.TierFeatures(tenantmodels.TierBasic),
		CreatedAt:       FixedNow,
		UpdatedAt:       FixedNow,
	}}
}

func (b *TenantBuilder) WithID(tenantID id.TenantID) *TenantBuilder {
	b.tenant.ID = tenantID
	return b
}

func (b *TenantBuilder) WithStatus(status tenantmodels.TenantStatus) *TenantBuilder {
	b.tenant.Status = status
	return b
}

// WithTier sets the tier and recomputes enabled features.
func (b *TenantBuilder) WithTier(tier tenantmodels.Tier, addOns ...tenantmodels.Feature) *TenantBuilder {
	b.tenant.Tier = tier
	b.tenant.AddOns = tenantmodels.NewFeatureSet(addOns...)
	b.tenant.EnabledFeatures = tenantmodels.EnabledFeaturesFor(tier, addOns)
	return b
}

// WithFeatures overrides enabled features directly.
func (b *TenantBuilder) WithFeatures(features ...tenantmodels.Feature) *TenantBuilder {
	b.tenant.EnabledFeatures = tenantmodels.NewFeatureSet(features...)
	return b
}

func (b *TenantBuilder) Build() *tenantmodels.Tenant {
	t := b.tenant
	return &t
}

// MembershipBuilder builds memberships fluently.
type MembershipBuilder struct {
	membership tenantmodels.Membership
}

func NewMembership(principalID id.PrincipalID, tenantID id.TenantID, role tenantmodels.Role) *MembershipBuilder {
	return &MembershipBuilder{membership: tenantmodels.Membership{
		PrincipalID: principalID,
		TenantID:    tenantID,
		Role:        role,
		Status:      tenantmodels.MembershipStatusActive,
		CreatedAt:   FixedNow,
		UpdatedAt:   FixedNow,
	}}
}

func (b *MembershipBuilder) WithPermissions(perms ...string) *MembershipBuilder {
	b.membership.ExplicitPermissions = perms
	return b
}

func (b *MembershipBuilder) Suspended() *MembershipBuilder {
	b.membership.Status = tenantmodels.MembershipStatusSuspended
	return b
}

func (b *MembershipBuilder) Build() *tenantmodels.Membership {
	return b.membership.Clone()
}
