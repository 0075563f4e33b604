package models

import id "campusgate/pkg/domain"

// Domain events describe directory changes. The tenant service turns them into
// cache invalidations and audit records.

// TenantLifecycleChanged is emitted on suspend, reinstate and archive.
type TenantLifecycleChanged struct {
	TenantID id.TenantID
	Key      string
	From     TenantStatus
	To       TenantStatus
}

// TenantTierChanged is emitted when the tier or add-ons change.
type TenantTierChanged struct {
	TenantID id.TenantID
	Key      string
	From     Tier
	To       Tier
	Features FeatureSet
}
