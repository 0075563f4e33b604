package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"campusgate/internal/progress"
	"campusgate/internal/security/models"
	"campusgate/internal/security/propagation"
	"campusgate/internal/storage/enrolment"
	tenantmodels "campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/httputil"
	"campusgate/pkg/requestcontext"
)

// EnrolmentStore is the tenant-scoped sample table. Implementations read the
// tenant from the scope token on ctx.
type EnrolmentStore interface {
	List(ctx context.Context) ([]enrolment.Enrolment, error)
	Add(ctx context.Context, studentRef, grade string) (enrolment.Enrolment, error)
}

// JobRunner starts background operations that report progress.
type JobRunner interface {
	Go(ctx context.Context, message string, fn progress.JobFunc) (id.OperationID, error)
}

// Handler serves the tenant API behind the security pipeline. Every
// permission, down to the per-method ones in the route table, was decided
// before a handler runs; handlers only read the SecurityContext.
type Handler struct {
	enrolments EnrolmentStore
	jobs       JobRunner
	logger     *slog.Logger
	loginURL   string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLoginURL sets the external sign-in page that /login forwards to.
func WithLoginURL(u string) HandlerOption {
	return func(h *Handler) {
		h.loginURL = u
	}
}

func NewHandler(enrolments EnrolmentStore, jobs JobRunner, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		enrolments: enrolments,
		jobs:       jobs,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type LandingResponse struct {
	Service string `json:"service"`
	Status  string `json:"status"`
}

func (h *Handler) HandleLanding(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LandingResponse{Service: "campusgate", Status: "ok"})
}

type MeResponse struct {
	TenantID        string   `json:"tenant_id"`
	TenantKey       string   `json:"tenant_key"`
	Tier            string   `json:"tier"`
	PrincipalID     string   `json:"principal_id"`
	Role            string   `json:"role,omitempty"`
	PlatformAdmin   bool     `json:"platform_admin"`
	EnabledFeatures []string `json:"enabled_features"`
	Permissions     []string `json:"permissions"`
}

// HandleMe describes the caller's SecurityContext.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.securityContext(w, r)
	if !ok {
		return
	}
	tenant := sc.Tenant()
	features := make([]string, 0, tenant.EnabledFeatures.Len())
	for _, f := range tenant.EnabledFeatures.Slice() {
		features = append(features, string(f))
	}
	slices.Sort(features)

	httputil.WriteJSON(w, http.StatusOK, MeResponse{
		TenantID:        sc.TenantID().String(),
		TenantKey:       tenant.Key,
		Tier:            string(tenant.Tier),
		PrincipalID:     sc.PrincipalID().String(),
		Role:            string(sc.Role()),
		PlatformAdmin:   sc.IsPlatformAdmin(),
		EnabledFeatures: features,
		Permissions:     sc.Granted().Strings(),
	})
}

type StudentListResponse struct {
	Students []enrolment.Enrolment `json:"students"`
}

func (h *Handler) HandleListStudents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := h.enrolments.List(ctx)
	if err != nil {
		h.fail(ctx, w, "list students failed", err)
		return
	}
	if rows == nil {
		rows = []enrolment.Enrolment{}
	}
	httputil.WriteJSON(w, http.StatusOK, StudentListResponse{Students: rows})
}

func (h *Handler) HandleAddStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[EnrolStudentRequest](w, r, h.logger)
	if !ok {
		return
	}
	row, err := h.enrolments.Add(ctx, req.StudentRef, req.Grade)
	if err != nil {
		h.fail(ctx, w, "add student failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, row)
}

type InvoiceListResponse struct {
	TenantID string   `json:"tenant_id"`
	Invoices []string `json:"invoices"`
}

func (h *Handler) HandleListInvoices(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.securityContext(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, InvoiceListResponse{TenantID: sc.TenantID().String(), Invoices: []string{}})
}

type LoanListResponse struct {
	TenantID string   `json:"tenant_id"`
	Loans    []string `json:"loans"`
}

func (h *Handler) HandleListLoans(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.securityContext(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LoanListResponse{TenantID: sc.TenantID().String(), Loans: []string{}})
}

type SettingsResponse struct {
	Key     string                       `json:"key"`
	Name    string                       `json:"name"`
	Tier    string                       `json:"tier"`
	AddOns  tenantmodels.FeatureSet      `json:"add_ons"`
	Contact tenantmodels.ContactMetadata `json:"contact"`
}

// HandleSettings is admin-only by route; the pipeline already enforced it.
func (h *Handler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.securityContext(w, r)
	if !ok {
		return
	}
	t := sc.Tenant()
	httputil.WriteJSON(w, http.StatusOK, SettingsResponse{
		Key:     t.Key,
		Name:    t.Name,
		Tier:    string(t.Tier),
		AddOns:  t.AddOns,
		Contact: t.Contact,
	})
}

func (h *Handler) securityContext(w http.ResponseWriter, r *http.Request) (*models.SecurityContext, bool) {
	sc, ok := propagation.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return nil, false
	}
	return sc, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
