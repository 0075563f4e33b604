// Package middleware is the per-request security pipeline: route
// classification, tenant resolution, credential verification, context
// building, authorization and propagation, strictly in that order. Any stage
// may end the request; none is skipped once an earlier one has run.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"campusgate/internal/credential"
	"campusgate/internal/platform/privacy"
	"campusgate/internal/security/authz"
	secmetrics "campusgate/internal/security/metrics"
	"campusgate/internal/security/models"
	"campusgate/internal/security/propagation"
	"campusgate/internal/security/resolver"
	"campusgate/internal/security/routes"
	"campusgate/internal/security/session"
	"campusgate/internal/security/tracer"
	tenantmodels "campusgate/internal/tenant/models"
	audit "campusgate/pkg/platform/audit"
	"campusgate/pkg/requestcontext"
)

// Stage names used for metrics and logs.
const (
	stageResolve   = "resolve"
	stageVerify    = "verify"
	stageBuild     = "build_context"
	stageAuthorize = "authorize"
)

type Pipeline struct {
	routes   *routes.Table
	resolver TenantResolver
	verifier CredentialVerifier
	builder  ContextBuilder
	auditor  audit.Emitter
	logger   *slog.Logger
	tracer   tracer.Tracer
	metrics  *secmetrics.Metrics
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithTracer(t tracer.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

func WithMetrics(m *secmetrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithAuditor sets where denials are emitted. The emitter must not block;
// the async audit publisher is the production choice.
func WithAuditor(e audit.Emitter) Option {
	return func(p *Pipeline) { p.auditor = e }
}

func New(table *routes.Table, res TenantResolver, verifier CredentialVerifier, builder ContextBuilder, opts ...Option) *Pipeline {
	p := &Pipeline{
		routes:   table,
		resolver: res,
		verifier: verifier,
		builder:  builder,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// result is what the stages produced for one request. It never outlives
// the request.
type result struct {
	route     routes.Route
	method    string
	tenant    *tenantmodels.Tenant
	principal *credential.Principal
	sc        *models.SecurityContext
	outcome   models.Outcome
	err       error
}

func (res *result) deny(o models.Outcome, err error) *result {
	res.outcome = o
	res.err = err
	return res
}

// Handler wraps next with the pipeline.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := p.tracer.Start(r.Context(), tracer.SpanPipeline, tracer.String(tracer.AttrRoute, r.URL.Path))

		res := p.evaluate(ctx, r)
		span.SetAttributes(tracer.String(tracer.AttrOutcome, string(res.outcome)))
		p.metrics.IncOutcome(string(res.outcome), string(res.route.Kind))

		if res.outcome != models.OutcomeAllowed {
			span.End(res.err)
			p.reject(ctx, w, r, res)
			return
		}

		ctx, err := propagation.Propagate(ctx, res.sc)
		if err != nil {
			span.End(err)
			p.reject(ctx, w, r, res.deny(models.OutcomeInternalError, err))
			return
		}
		propagation.SetHeaders(w, res.sc)
		span.End(nil)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Evaluate runs every stage for r and returns the outcome with the context
// that would be propagated. It never writes a response.
func (p *Pipeline) Evaluate(ctx context.Context, r *http.Request) (models.Outcome, *models.SecurityContext) {
	res := p.evaluate(ctx, r)
	return res.outcome, res.sc
}

func (p *Pipeline) evaluate(ctx context.Context, r *http.Request) *result {
	res := &result{method: r.Method}
	route, ok := p.routes.Classify(r.URL.Path)
	if !ok {
		return res.deny(models.OutcomeNotFound, nil)
	}
	res.route = route
	public := route.Kind == routes.KindPublic

	if denied := p.resolve(ctx, r.Host, res); denied {
		return res
	}

	if res.tenant == nil {
		// Only public routes get here: the root domain has no tenant, so
		// there is nothing to verify a membership against.
		return p.authorize(ctx, res)
	}

	if public && r.Header.Get("Authorization") == "" {
		return p.authorize(ctx, res)
	}

	if denied := p.verify(ctx, r, res); denied {
		return res
	}
	if res.principal == nil {
		return p.authorize(ctx, res)
	}

	if denied := p.build(ctx, res); denied {
		return res
	}
	return p.authorize(ctx, res)
}

// resolve enforces the route's host scope before touching the directory.
func (p *Pipeline) resolve(ctx context.Context, host string, res *result) bool {
	start := time.Now()
	defer p.metrics.ObserveStage(stageResolve, start)

	parsed, err := p.resolver.ParseHost(host)
	if err != nil {
		if res.route.Scope == routes.ScopeAny {
			// Probes and direct IP access still reach tenant-agnostic pages.
			return false
		}
		res.deny(models.OutcomeUnknownTenant, err)
		return true
	}
	switch {
	case res.route.Scope == routes.ScopeRoot && parsed.Kind != resolver.KindNoTenant:
		res.deny(models.OutcomeNotFound, nil)
		return true
	case res.route.Scope == routes.ScopeTenant && parsed.Kind == resolver.KindNoTenant:
		res.deny(models.OutcomeUnknownTenant, nil)
		return true
	case parsed.Kind == resolver.KindNoTenant:
		return false
	}

	ctx, span := p.tracer.Start(ctx, tracer.SpanResolve, tracer.String(tracer.AttrTenantKey, parsed.Key))
	resolution, err := p.resolver.Resolve(ctx, host)
	span.End(err)
	if err != nil {
		res.deny(resolutionOutcome(err), err)
		return true
	}
	res.tenant = resolution.Tenant
	return false
}

func resolutionOutcome(err error) models.Outcome {
	var resErr *resolver.ResolutionError
	var unavailable *resolver.TenantUnavailableError
	switch {
	case errors.As(err, &resErr):
		return models.OutcomeUnknownTenant
	case errors.As(err, &unavailable):
		if unavailable.Status == tenantmodels.TenantStatusSuspended {
			return models.OutcomeTenantSuspended
		}
		return models.OutcomeTenantInactive
	}
	return models.OutcomeInternalError
}

// verify leaves res.principal nil when a public route carries a bad
// credential; the request continues anonymously.
func (p *Pipeline) verify(ctx context.Context, r *http.Request, res *result) bool {
	start := time.Now()
	defer p.metrics.ObserveStage(stageVerify, start)

	ctx, span := p.tracer.Start(ctx, tracer.SpanVerify)
	principal, err := p.verifyBearer(ctx, r.Header.Get("Authorization"))
	span.End(err)
	if err == nil {
		res.principal = principal
		return false
	}

	var verr *credential.VerificationError
	if !errors.As(err, &verr) {
		p.logger.ErrorContext(ctx, "credential verification unavailable",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		if res.route.Kind == routes.KindPublic {
			return false
		}
		res.deny(models.OutcomeInternalError, err)
		return true
	}
	if res.route.Kind == routes.KindPublic {
		return false
	}
	res.deny(models.OutcomeUnauthenticated, err)
	return true
}

func (p *Pipeline) verifyBearer(ctx context.Context, header string) (*credential.Principal, error) {
	raw, err := credential.ExtractBearer(header)
	if err != nil {
		return nil, err
	}
	return p.verifier.Verify(ctx, raw)
}

func (p *Pipeline) build(ctx context.Context, res *result) bool {
	start := time.Now()
	defer p.metrics.ObserveStage(stageBuild, start)

	ctx, span := p.tracer.Start(ctx, tracer.SpanBuild,
		tracer.String(tracer.AttrTenantID, res.tenant.ID.String()),
		tracer.String(tracer.AttrPrincipalID, res.principal.ID.String()),
	)
	sc, err := p.builder.Build(ctx, res.tenant, res.principal)
	span.End(err)
	if err == nil {
		res.sc = sc
		return false
	}
	if res.route.Kind == routes.KindPublic {
		return false
	}

	var merr *session.MembershipError
	if errors.As(err, &merr) {
		if merr.Reason == session.ReasonMembershipSuspended {
			res.deny(models.OutcomeMembershipSuspended, err)
		} else {
			res.deny(models.OutcomeNoMembership, err)
		}
		return true
	}
	res.deny(models.OutcomeInternalError, err)
	return true
}

func (p *Pipeline) authorize(ctx context.Context, res *result) *result {
	start := time.Now()
	defer p.metrics.ObserveStage(stageAuthorize, start)

	_, span := p.tracer.Start(ctx, tracer.SpanAuthorize,
		tracer.String(tracer.AttrRouteKind, string(res.route.Kind)),
	)
	decision := authz.Authorize(res.sc, res.route, res.method)
	span.SetAttributes(tracer.String(tracer.AttrOutcome, string(decision.Reason)))
	span.End(nil)

	res.outcome = decision.Reason
	return res
}

// reject writes the denial, logs it and emits the audit event. Only
// identifiers that earlier stages verified are logged.
func (p *Pipeline) reject(ctx context.Context, w http.ResponseWriter, r *http.Request, res *result) {
	writeOutcome(w, r, res.outcome)

	args := []any{
		"outcome", string(res.outcome),
		"class", string(res.outcome.Class()),
		"route", r.URL.Path,
		"request_id", requestcontext.RequestID(ctx),
	}
	if res.tenant != nil {
		args = append(args, "tenant_id", res.tenant.ID.String())
	}
	if res.principal != nil {
		args = append(args, "principal_id", res.principal.ID.String())
		if res.principal.Email != "" {
			args = append(args, "principal_email", privacy.MaskEmail(res.principal.Email))
		}
	}
	if res.outcome == models.OutcomeInternalError {
		p.logger.ErrorContext(ctx, "security pipeline failed", append(args, "error", res.err)...)
	} else {
		p.logger.WarnContext(ctx, "request denied", args...)
	}

	if res.tenant != nil {
		p.emitAudit(ctx, r, res)
	}
}

func (p *Pipeline) emitAudit(ctx context.Context, r *http.Request, res *result) {
	if p.auditor == nil {
		return
	}
	event := audit.Event{
		TenantID: res.tenant.ID,
		Action:   string(audit.EventPipelineFailure),
		Route:    r.URL.Path,
		Decision: audit.DecisionFailed,
		Reason:   string(res.outcome),
	}
	if res.outcome.Class() == models.ClassAuthorization {
		event.Action = string(audit.EventAccessDenied)
		event.Decision = audit.DecisionDenied
	}
	if res.principal != nil {
		event.PrincipalID = res.principal.ID
	}
	event = audit.Enrich(ctx, event)
	if err := p.auditor.Emit(context.WithoutCancel(ctx), event); err != nil {
		p.metrics.IncAuditDropped()
		p.logger.WarnContext(ctx, "audit emit failed",
			"error", err,
			"request_id", event.RequestID,
		)
	}
}
