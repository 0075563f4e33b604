package models

import (
	"time"

	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/validation"
)

// Tenant is one school. Key is the subdomain label; it is globally unique and
// never changes once assigned. Tenants are never deleted, only archived.
//
// Tenant has value semantics: FeatureSet is immutable, so a copy is safe to
// hand to another goroutine.
type Tenant struct {
	ID              id.TenantID     `json:"id"`
	Key             string          `json:"key"`
	Name            string          `json:"name"`
	Status          TenantStatus    `json:"status"`
	Tier            Tier            `json:"tier"`
	AddOns          FeatureSet      `json:"add_ons"`
	EnabledFeatures FeatureSet      `json:"enabled_features"`
	Contact         ContactMetadata `json:"contact"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func NewTenant(tenantID id.TenantID, key, name string, tier Tier, now time.Time) (*Tenant, error) {
	if !validation.IsTenantKey(key) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant key must be a lowercase DNS label")
	}
	if name == "" || len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name must be 1-128 characters")
	}
	if !tier.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown subscription tier")
	}
	return &Tenant{
		ID:              tenantID,
		Key:             key,
		Name:            name,
		Status:          TenantStatusActive,
		Tier:            tier,
		EnabledFeatures: EnabledFeaturesFor(tier, nil),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

func (t *Tenant) HasFeature(f Feature) bool {
	return t.EnabledFeatures.Has(f)
}

// Suspend blocks the tenant (typically for non-payment). Only active tenants can be suspended.
func (t *Tenant) Suspend(now time.Time) error {
	if t.Status != TenantStatusActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "only an active tenant can be suspended")
	}
	t.Status = TenantStatusSuspended
	t.UpdatedAt = now
	return nil
}

// Reinstate lifts a suspension. Archived tenants cannot come back.
func (t *Tenant) Reinstate(now time.Time) error {
	if t.Status != TenantStatusSuspended {
		return dErrors.New(dErrors.CodeInvariantViolation, "only a suspended tenant can be reinstated")
	}
	t.Status = TenantStatusActive
	t.UpdatedAt = now
	return nil
}

// Archive soft-deletes the tenant. inactive is terminal.
func (t *Tenant) Archive(now time.Time) error {
	if t.Status == TenantStatusInactive {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is already archived")
	}
	t.Status = TenantStatusInactive
	t.UpdatedAt = now
	return nil
}

// ChangeTier moves the tenant to tier with the given add-ons and recomputes
// the enabled feature set.
func (t *Tenant) ChangeTier(tier Tier, addOns []Feature, now time.Time) error {
	if t.Status == TenantStatusInactive {
		return dErrors.New(dErrors.CodeInvariantViolation, "archived tenants cannot change tier")
	}
	if !tier.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown subscription tier")
	}
	for _, f := range addOns {
		if !f.IsKnown() {
			return dErrors.New(dErrors.CodeInvariantViolation, "unknown add-on feature "+string(f))
		}
	}
	t.Tier = tier
	t.AddOns = NewFeatureSet(addOns...)
	t.EnabledFeatures = EnabledFeaturesFor(tier, addOns)
	t.UpdatedAt = now
	return nil
}
