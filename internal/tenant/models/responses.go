package models

import "time"

// TenantResponse is the admin view of a directory entry.
type TenantResponse struct {
	ID              string          `json:"id"`
	Key             string          `json:"key"`
	Name            string          `json:"name"`
	Status          TenantStatus    `json:"status"`
	Tier            Tier            `json:"tier"`
	AddOns          []Feature       `json:"add_ons"`
	EnabledFeatures []Feature       `json:"enabled_features"`
	Contact         ContactMetadata `json:"contact"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func ToTenantResponse(t *Tenant) TenantResponse {
	return TenantResponse{
		ID:              t.ID.String(),
		Key:             t.Key,
		Name:            t.Name,
		Status:          t.Status,
		Tier:            t.Tier,
		AddOns:          t.AddOns.Slice(),
		EnabledFeatures: t.EnabledFeatures.Slice(),
		Contact:         t.Contact,
		UpdatedAt:       t.UpdatedAt,
	}
}
