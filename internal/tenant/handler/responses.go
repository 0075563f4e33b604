package handler

import (
	"time"

	"campusgate/internal/tenant/models"
	"campusgate/pkg/platform/audit"
)

type TenantListResponse struct {
	Tenants []models.TenantResponse `json:"tenants"`
	Total   int                     `json:"total"`
}

type InvalidateResponse struct {
	Key         string `json:"key"`
	Invalidated bool   `json:"invalidated"`
}

type AuditEventResponse struct {
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	Decision    string    `json:"decision"`
	Reason      string    `json:"reason,omitempty"`
	Route       string    `json:"route,omitempty"`
	PrincipalID string    `json:"principal_id,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

type AuditListResponse struct {
	Events []AuditEventResponse `json:"events"`
}

func toTenantList(tenants []*models.Tenant) *TenantListResponse {
	out := make([]models.TenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, models.ToTenantResponse(t))
	}
	return &TenantListResponse{Tenants: out, Total: len(out)}
}

func toAuditList(events []audit.Event) *AuditListResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, ev := range events {
		r := AuditEventResponse{
			Timestamp: ev.Timestamp,
			Action:    ev.Action,
			Decision:  ev.Decision,
			Reason:    ev.Reason,
			Route:     ev.Route,
			ActorID:   ev.ActorID,
			RequestID: ev.RequestID,
		}
		if !ev.PrincipalID.IsNil() {
			r.PrincipalID = ev.PrincipalID.String()
		}
		out = append(out, r)
	}
	return &AuditListResponse{Events: out}
}
