package models

import (
	"encoding/json"
	"slices"

	strs "campusgate/pkg/platform/strings"
)

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	// TenantStatusInactive is the soft-archived terminal state.
	TenantStatusInactive TenantStatus = "inactive"
)

func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusInactive:
		return true
	}
	return false
}

// Tier is the subscription tier billed for a tenant.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Feature is a purchasable module. Enabled features are the hard ceiling on
// what any membership in the tenant can be granted.
type Feature string

const (
	FeatureSIS        Feature = "sis"
	FeatureAcademics  Feature = "academics"
	FeatureLibrary    Feature = "library"
	FeatureFinance    Feature = "finance_module"
	FeatureBulkImport Feature = "bulk_import"
	FeatureMessaging  Feature = "messaging"
)

// KnownFeatures lists every feature the platform sells.
var KnownFeatures = []Feature{
	FeatureSIS, FeatureAcademics, FeatureLibrary, FeatureFinance, FeatureBulkImport, FeatureMessaging,
}

func (f Feature) IsKnown() bool {
	return slices.Contains(KnownFeatures, f)
}

// FeatureSet is an immutable, sorted set of features. Copies share storage
// safely because no method mutates it.
type FeatureSet struct {
	features []Feature
}

func NewFeatureSet(features ...Feature) FeatureSet {
	return FeatureSet{features: strs.DedupeAndTrim(features)}
}

func (s FeatureSet) Has(f Feature) bool {
	_, found := slices.BinarySearch(s.features, f)
	return found
}

func (s FeatureSet) Len() int { return len(s.features) }

// Slice returns a copy of the members in sorted order.
func (s FeatureSet) Slice() []Feature {
	return slices.Clone(s.features)
}

// Union returns a new set holding members of both sets.
func (s FeatureSet) Union(other FeatureSet) FeatureSet {
	return NewFeatureSet(append(s.Slice(), other.features...)...)
}

func (s FeatureSet) Equal(other FeatureSet) bool {
	return slices.Equal(s.features, other.features)
}

func (s FeatureSet) MarshalJSON() ([]byte, error) {
	if s.features == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.features)
}

func (s *FeatureSet) UnmarshalJSON(data []byte) error {
	var features []Feature
	if err := json.Unmarshal(data, &features); err != nil {
		return err
	}
	*s = NewFeatureSet(features...)
	return nil
}

// Role is a membership's tenant-scoped role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTeacher   Role = "teacher"
	RoleRegistrar Role = "registrar"
	RoleBursar    Role = "bursar"
	RoleLibrarian Role = "librarian"
	RoleStudent   Role = "student"
	RoleParent    Role = "parent"
)

var knownRoles = []Role{RoleAdmin, RoleTeacher, RoleRegistrar, RoleBursar, RoleLibrarian, RoleStudent, RoleParent}

func (r Role) IsValid() bool {
	return slices.Contains(knownRoles, r)
}

type MembershipStatus string

const (
	MembershipStatusActive    MembershipStatus = "active"
	MembershipStatusSuspended MembershipStatus = "suspended"
)

func (s MembershipStatus) IsValid() bool {
	return s == MembershipStatusActive || s == MembershipStatusSuspended
}

// ContactMetadata is descriptive only; nothing in the pipeline reads it.
type ContactMetadata struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
