package models

import (
	"strings"

	strs "campusgate/pkg/platform/strings"
)

// ChangeTierRequest is the body of PUT /admin/tenants/{key}/tier.
type ChangeTierRequest struct {
	Tier   Tier      `json:"tier" validate:"required,oneof=basic standard premium"`
	AddOns []Feature `json:"add_ons" validate:"max=6,dive,oneof=sis academics library finance_module bulk_import messaging"`
}

func (r *ChangeTierRequest) Normalize() {
	r.Tier = Tier(strings.ToLower(strings.TrimSpace(string(r.Tier))))
	for i := range r.AddOns {
		r.AddOns[i] = Feature(strings.ToLower(string(r.AddOns[i])))
	}
	r.AddOns = strs.DedupeAndTrim(r.AddOns)
}

// LifecycleRequest is the optional body of suspend/reinstate/archive.
type LifecycleRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

func (r *LifecycleRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}
