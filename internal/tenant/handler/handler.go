// Package handler exposes tenant administration over HTTP. Routes are
// mounted on the bare root domain behind the admin token middleware.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	"campusgate/pkg/platform/audit"
	"campusgate/pkg/platform/httputil"
	"campusgate/pkg/requestcontext"
)

// Service is the tenant administration surface. Returns domain objects, not
// HTTP DTOs.
type Service interface {
	Get(ctx context.Context, key string) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	Suspend(ctx context.Context, key, reason string) (*models.Tenant, error)
	Reinstate(ctx context.Context, key, reason string) (*models.Tenant, error)
	Archive(ctx context.Context, key, reason string) (*models.Tenant, error)
	ChangeTier(ctx context.Context, key string, req *models.ChangeTierRequest) (*models.Tenant, error)
	Invalidate(ctx context.Context, key string) error
}

// AuditReader lists recorded audit events for one tenant.
type AuditReader interface {
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]audit.Event, error)
}

type Handler struct {
	service Service
	audit   AuditReader
	logger  *slog.Logger
}

// New builds the handler. auditReader may be nil, which disables the audit route.
func New(service Service, auditReader AuditReader, logger *slog.Logger) *Handler {
	return &Handler{service: service, audit: auditReader, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/tenants", h.HandleList)
	r.Get("/admin/tenants/{key}", h.HandleGet)
	r.Post("/admin/tenants/{key}/suspend", h.lifecycle("suspend", h.service.Suspend))
	r.Post("/admin/tenants/{key}/reinstate", h.lifecycle("reinstate", h.service.Reinstate))
	r.Post("/admin/tenants/{key}/archive", h.lifecycle("archive", h.service.Archive))
	r.Put("/admin/tenants/{key}/tier", h.HandleChangeTier)
	r.Post("/admin/tenants/{key}/invalidate", h.HandleInvalidate)
	if h.audit != nil {
		r.Get("/admin/tenants/{key}/audit", h.HandleAudit)
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenants, err := h.service.List(ctx)
	if err != nil {
		h.fail(ctx, w, "list tenants failed", "", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTenantList(tenants))
}

// HandleGet returns the directory entry as stored, bypassing the cache.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")
	tenant, err := h.service.Get(ctx, key)
	if err != nil {
		h.fail(ctx, w, "get tenant failed", key, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToTenantResponse(tenant))
}

type lifecycleFunc func(ctx context.Context, key, reason string) (*models.Tenant, error)

// lifecycle handles the status transitions. The body is optional.
func (h *Handler) lifecycle(action string, apply lifecycleFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := chi.URLParam(r, "key")

		req := &models.LifecycleRequest{}
		if r.ContentLength != 0 {
			decoded, ok := httputil.DecodeAndPrepare[models.LifecycleRequest](w, r, h.logger)
			if !ok {
				return
			}
			req = decoded
		}

		tenant, err := apply(ctx, key, req.Reason)
		if err != nil {
			h.fail(ctx, w, action+" tenant failed", key, err)
			return
		}
		h.logger.InfoContext(ctx, "tenant "+action,
			"tenant_key", tenant.Key,
			"status", tenant.Status,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteJSON(w, http.StatusOK, models.ToTenantResponse(tenant))
	}
}

func (h *Handler) HandleChangeTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	req, ok := httputil.DecodeAndPrepare[models.ChangeTierRequest](w, r, h.logger)
	if !ok {
		return
	}
	tenant, err := h.service.ChangeTier(ctx, key, req)
	if err != nil {
		h.fail(ctx, w, "change tier failed", key, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToTenantResponse(tenant))
}

func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")
	if err := h.service.Invalidate(ctx, key); err != nil {
		h.fail(ctx, w, "invalidate tenant failed", key, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, &InvalidateResponse{Key: key, Invalidated: true})
}

func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")
	tenant, err := h.service.Get(ctx, key)
	if err != nil {
		h.fail(ctx, w, "get tenant failed", key, err)
		return
	}
	events, err := h.audit.ListByTenant(ctx, tenant.ID)
	if err != nil {
		h.fail(ctx, w, "list audit events failed", key, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditList(events))
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg, key string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"tenant_key", key,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
