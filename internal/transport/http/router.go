// Package httptransport assembles the HTTP surface: the ambient middleware,
// the security pipeline and every route the pipeline classifies.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"campusgate/pkg/platform/middleware/admin"
	"campusgate/pkg/platform/middleware/metadata"
	"campusgate/pkg/platform/middleware/request"
	"campusgate/pkg/validation"
)

// Registrar mounts a handler's routes.
type Registrar interface {
	Register(r chi.Router)
}

// Guard is the security pipeline as seen by the router.
type Guard interface {
	Handler(next http.Handler) http.Handler
}

type RouterConfig struct {
	RequestTimeout time.Duration
	TrustedProxies []netip.Prefix
	AdminTokenHash []byte
}

// Deps are the handlers the router mounts. Nil optional fields skip their routes.
type Deps struct {
	Logger   *slog.Logger
	Guard    Guard
	API      *Handler
	Admin    []Registrar
	Progress Registrar
	Health   Registrar
	Metrics  http.Handler
	Latency  *request.Metrics
}

// NewRouter applies the middleware in a fixed order: recovery, request
// identity, client metadata, access log, latency and then the security
// pipeline, so every handler below runs with a decided SecurityContext.
func NewRouter(cfg RouterConfig, deps Deps) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(metadata.NewMiddleware(&metadata.Config{TrustedProxies: cfg.TrustedProxies}).Handler)
	r.Use(request.Logger(logger))
	r.Use(request.LatencyMiddleware(deps.Latency))
	r.Use(deps.Guard.Handler)

	// Progress streams outlive the request timeout.
	if deps.Progress != nil {
		deps.Progress.Register(r)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(request.Timeout(cfg.RequestTimeout))
		}
		r.Use(request.ContentTypeJSON)
		r.Use(request.BodyLimit(validation.MaxBodySize))

		if deps.Health != nil {
			deps.Health.Register(r)
		}
		if deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", deps.Metrics)
		}

		api := deps.API
		r.Get("/", api.HandleLanding)
		r.Get("/login", api.HandleLogin)
		r.Get("/api/me", api.HandleMe)
		r.Get("/api/students", api.HandleListStudents)
		r.Post("/api/students", api.HandleAddStudent)
		r.Post("/api/imports/students", api.HandleImportStudents)
		r.Get("/api/finance/invoices", api.HandleListInvoices)
		r.Get("/api/library/loans", api.HandleListLoans)
		r.Get("/api/settings", api.HandleSettings)

		if len(deps.Admin) > 0 {
			r.Group(func(r chi.Router) {
				r.Use(admin.RequireAdminToken(cfg.AdminTokenHash, logger))
				for _, reg := range deps.Admin {
					reg.Register(r)
				}
			})
		}
	})

	return r
}
