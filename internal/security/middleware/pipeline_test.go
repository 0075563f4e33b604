package middleware_test

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks TenantResolver,CredentialVerifier,ContextBuilder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"campusgate/internal/credential"
	"campusgate/internal/security/middleware"
	"campusgate/internal/security/middleware/mocks"
	"campusgate/internal/security/models"
	"campusgate/internal/security/permissions"
	"campusgate/internal/security/propagation"
	"campusgate/internal/security/resolver"
	"campusgate/internal/security/routes"
	"campusgate/internal/security/session"
	"campusgate/internal/storage/scope"
	tenantmodels "campusgate/internal/tenant/models"
	dErrors "campusgate/pkg/domain-errors"
	audit "campusgate/pkg/platform/audit"
	"campusgate/pkg/platform/audit/store/memory"
	"campusgate/pkg/testutil"
)

type recordingHandler struct {
	called bool
	ctx    context.Context
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

// PipelineSuite drives the pipeline with mocked stages to pin down stage
// ordering and outcome mapping.
type PipelineSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	resolver *mocks.MockTenantResolver
	verifier *mocks.MockCredentialVerifier
	builder  *mocks.MockContextBuilder
	audit    *memory.InMemoryStore
	next     *recordingHandler
	handler  http.Handler
	tenant   *tenantmodels.Tenant
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.resolver = mocks.NewMockTenantResolver(s.ctrl)
	s.verifier = mocks.NewMockCredentialVerifier(s.ctrl)
	s.builder = mocks.NewMockContextBuilder(s.ctrl)
	s.audit = memory.NewInMemoryStore()
	s.next = &recordingHandler{}
	s.tenant = testutil.NewTenant("harare-primary").WithID(testutil.TestIDs.TenantA).WithTier(tenantmodels.TierStandard).Build()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := middleware.New(routes.Default(), s.resolver, s.verifier, s.builder,
		middleware.WithLogger(logger),
		middleware.WithAuditor(auditEmitter{s.audit}),
	)
	s.handler = pipeline.Handler(s.next)
}

// auditEmitter writes straight to the store so assertions need no waiting.
type auditEmitter struct{ store audit.Store }

func (e auditEmitter) Emit(ctx context.Context, ev audit.Event) error { return e.store.Append(ctx, ev) }

func (s *PipelineSuite) serve(host, path, authorization string) (*httptest.ResponseRecorder, middleware.OutcomeResponse) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = host
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var body middleware.OutcomeResponse
	if rec.Code != http.StatusOK {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func (s *PipelineSuite) expectTenantHost(host string) {
	s.resolver.EXPECT().ParseHost(host).Return(resolver.Resolution{Kind: resolver.KindResolved, Key: "harare-primary"}, nil)
}

func (s *PipelineSuite) expectResolved(host string) {
	s.expectTenantHost(host)
	s.resolver.EXPECT().Resolve(gomock.Any(), host).
		Return(resolver.Resolution{Kind: resolver.KindResolved, Key: "harare-primary", Tenant: s.tenant}, nil)
}

func (s *PipelineSuite) principal(platformRole string) *credential.Principal {
	return &credential.Principal{ID: testutil.TestIDs.Principal1, PlatformRole: platformRole}
}

func (s *PipelineSuite) securityContext(role tenantmodels.Role) *models.SecurityContext {
	granted, withheld := permissions.Grant(role, nil, s.tenant.EnabledFeatures)
	sc, err := models.NewSecurityContext(models.Params{
		Tenant:     *s.tenant,
		Principal:  *s.principal(""),
		Membership: testutil.NewMembership(testutil.TestIDs.Principal1, s.tenant.ID, role).Build(),
		Granted:    granted,
		Withheld:   withheld,
		IssuedAt:   testutil.FixedNow,
	})
	s.Require().NoError(err)
	return sc
}

func (s *PipelineSuite) auditReasons() []string {
	events, err := s.audit.ListRecent(context.Background(), 100)
	s.Require().NoError(err)
	reasons := make([]string, 0, len(events))
	for _, e := range events {
		reasons = append(reasons, e.Reason)
	}
	return reasons
}

func (s *PipelineSuite) TestUnclassifiedRouteNeverRunsAStage() {
	rec, body := s.serve("harare-primary.example", "/internal/debug", "")

	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("not_found", body.Error)
	s.False(s.next.called)
}

func (s *PipelineSuite) TestUnknownTenantStopsBeforeVerification() {
	host := "unknown-school.example"
	s.resolver.EXPECT().ParseHost(host).Return(resolver.Resolution{Kind: resolver.KindResolved, Key: "unknown-school"}, nil)
	s.resolver.EXPECT().Resolve(gomock.Any(), host).
		Return(resolver.Resolution{}, &resolver.ResolutionError{Reason: resolver.ReasonUnknownTenant, Host: host})
	// No verifier or builder expectations: any call fails the test.

	rec, body := s.serve(host, "/api/me", "Bearer some-token")

	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("unknown_tenant", body.Error)
	s.Equal(middleware.RemediationCheckAddress, body.Remediation)
	s.Empty(body.LoginURL, "an unknown school is not a login prompt")
	s.False(body.Retryable)
	s.False(s.next.called)
}

func (s *PipelineSuite) TestTenantStatusOutcomes() {
	tests := []struct {
		name   string
		status tenantmodels.TenantStatus
		path   string
		code   int
		want   string
		remedy middleware.Remediation
	}{
		{"suspended", tenantmodels.TenantStatusSuspended, "/api/me", http.StatusForbidden, "tenant_suspended", middleware.RemediationContactSchool},
		{"inactive", tenantmodels.TenantStatusInactive, "/api/me", http.StatusGone, "tenant_inactive", middleware.RemediationSchoolClosed},
		{"inactive on a public page", tenantmodels.TenantStatusInactive, "/", http.StatusGone, "tenant_inactive", middleware.RemediationSchoolClosed},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			host := "harare-primary.example"
			s.expectTenantHost(host)
			s.resolver.EXPECT().Resolve(gomock.Any(), host).
				Return(resolver.Resolution{}, &resolver.TenantUnavailableError{Key: "harare-primary", Status: tt.status})

			*s.next = recordingHandler{}

			rec, body := s.serve(host, tt.path, "Bearer token")

			s.Equal(tt.code, rec.Code)
			s.Equal(tt.want, body.Error)
			s.Equal(tt.remedy, body.Remediation)
			s.False(s.next.called, "the application must not run for a %s school", tt.status)
			s.Empty(rec.Header().Get(propagation.HeaderTenantID))
		})
	}
}

// TestNonActiveTenantGetsNoScope covers every route class: a suspended or
// inactive school never reaches the application, so no storage scope or
// SecurityContext is ever built for it.
func (s *PipelineSuite) TestNonActiveTenantGetsNoScope() {
	statuses := []tenantmodels.TenantStatus{tenantmodels.TenantStatusSuspended, tenantmodels.TenantStatusInactive}
	paths := []string{"/", "/login", "/api/me", "/api/students", "/api/finance/invoices", "/api/settings"}

	for _, status := range statuses {
		for _, path := range paths {
			s.Run(string(status)+" "+path, func() {
				host := "harare-primary.example"
				s.expectTenantHost(host)
				s.resolver.EXPECT().Resolve(gomock.Any(), host).
					Return(resolver.Resolution{}, &resolver.TenantUnavailableError{Key: "harare-primary", Status: status})
				*s.next = recordingHandler{}

				rec, _ := s.serve(host, path, "Bearer token")

				s.NotEqual(http.StatusOK, rec.Code)
				s.False(s.next.called)
				s.Nil(s.next.ctx)
				s.Empty(rec.Header().Get(propagation.HeaderTenantID))
			})
		}
	}
}

func (s *PipelineSuite) TestDirectoryFailureIsRetryableInternalError() {
	host := "harare-primary.example"
	s.expectTenantHost(host)
	s.resolver.EXPECT().Resolve(gomock.Any(), host).
		Return(resolver.Resolution{}, dErrors.New(dErrors.CodeUnavailable, "directory down"))

	rec, body := s.serve(host, "/api/me", "Bearer token")

	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("internal_error", body.Error)
	s.True(body.Retryable)
	s.Equal("1", rec.Header().Get("Retry-After"))
}

func (s *PipelineSuite) TestHostScope() {
	s.Run("root route on a school host", func() {
		s.expectTenantHost("harare-primary.example")
		rec, body := s.serve("harare-primary.example", "/admin/tenants/x", "")
		s.Equal(http.StatusNotFound, rec.Code)
		s.Equal("not_found", body.Error)
	})
	s.Run("tenant route on the root domain", func() {
		s.resolver.EXPECT().ParseHost("example").Return(resolver.Resolution{Kind: resolver.KindNoTenant}, nil)
		rec, body := s.serve("example", "/api/me", "")
		s.Equal(http.StatusNotFound, rec.Code)
		s.Equal("unknown_tenant", body.Error)
	})
	s.Run("public page on the root domain", func() {
		s.resolver.EXPECT().ParseHost("example").Return(resolver.Resolution{Kind: resolver.KindNoTenant}, nil)
		rec, _ := s.serve("example", "/", "")
		s.Equal(http.StatusOK, rec.Code)
		_, ok := propagation.FromContext(s.next.ctx)
		s.False(ok)
	})
	s.Run("public page on an unparseable host", func() {
		s.resolver.EXPECT().ParseHost("10.0.0.7:8080").
			Return(resolver.Resolution{}, &resolver.ResolutionError{Reason: resolver.ReasonMalformedHost})
		rec, _ := s.serve("10.0.0.7:8080", "/health/live", "")
		s.Equal(http.StatusOK, rec.Code)
	})
}

func (s *PipelineSuite) TestMissingCredentialPromptsLogin() {
	s.expectResolved("harare-primary.example")

	req := httptest.NewRequest(http.MethodGet, "/api/me?tab=profile", nil)
	req.Host = "harare-primary.example"
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var body middleware.OutcomeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("unauthenticated", body.Error)
	s.Equal(middleware.RemediationLogin, body.Remediation)
	s.Equal("/login?next=%2Fapi%2Fme%3Ftab%3Dprofile", body.LoginURL)
	s.Equal([]string{"unauthenticated"}, s.auditReasons())
}

func (s *PipelineSuite) TestInvalidCredential() {
	s.Run("denied on a protected route", func() {
		s.expectResolved("harare-primary.example")
		s.verifier.EXPECT().Verify(gomock.Any(), "expired-token").
			Return(nil, &credential.VerificationError{Reason: credential.ReasonExpired})

		rec, body := s.serve("harare-primary.example", "/api/me", "Bearer expired-token")
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal("unauthenticated", body.Error)
	})
	s.Run("anonymous on a public route", func() {
		s.expectResolved("harare-primary.example")
		s.verifier.EXPECT().Verify(gomock.Any(), "expired-token").
			Return(nil, &credential.VerificationError{Reason: credential.ReasonExpired})

		rec, _ := s.serve("harare-primary.example", "/public/timetable", "Bearer expired-token")
		s.Equal(http.StatusOK, rec.Code)
		_, ok := propagation.FromContext(s.next.ctx)
		s.False(ok)
	})
}

func (s *PipelineSuite) TestRevocationOutageFailsClosed() {
	s.expectResolved("harare-primary.example")
	s.verifier.EXPECT().Verify(gomock.Any(), "token").
		Return(nil, dErrors.New(dErrors.CodeUnavailable, "revocation lookup failed"))

	rec, body := s.serve("harare-primary.example", "/api/me", "Bearer token")

	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("internal_error", body.Error)
	s.True(body.Retryable)
}

func (s *PipelineSuite) TestMembershipOutcomes() {
	tests := []struct {
		name   string
		reason session.Reason
		want   string
		remedy middleware.Remediation
	}{
		{"no membership", session.ReasonNoMembership, "no_membership", middleware.RemediationUseCorrectSchool},
		{"suspended membership", session.ReasonMembershipSuspended, "membership_suspended", middleware.RemediationContactSchoolAdmin},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.expectResolved("harare-primary.example")
			s.verifier.EXPECT().Verify(gomock.Any(), "token").Return(s.principal(""), nil)
			s.builder.EXPECT().Build(gomock.Any(), s.tenant, gomock.Any()).
				Return(nil, &session.MembershipError{Reason: tt.reason})

			rec, body := s.serve("harare-primary.example", "/api/me", "Bearer token")
			s.Equal(http.StatusForbidden, rec.Code)
			s.Equal(tt.want, body.Error)
			s.Equal(tt.remedy, body.Remediation)
			s.Empty(body.LoginURL, "membership problems are not credential problems")
		})
	}
}

func (s *PipelineSuite) TestMembershipLookupFailure() {
	s.expectResolved("harare-primary.example")
	s.verifier.EXPECT().Verify(gomock.Any(), "token").Return(s.principal(""), nil)
	s.builder.EXPECT().Build(gomock.Any(), s.tenant, gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeTimeout, "membership lookup timed out"))

	rec, body := s.serve("harare-primary.example", "/api/me", "Bearer token")

	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("internal_error", body.Error)
	s.Equal([]string{"internal_error"}, s.auditReasons())
}

func (s *PipelineSuite) TestAuthorizationDenialIsAudited() {
	s.expectResolved("harare-primary.example")
	s.verifier.EXPECT().Verify(gomock.Any(), "token").Return(s.principal(""), nil)
	s.builder.EXPECT().Build(gomock.Any(), s.tenant, gomock.Any()).Return(s.securityContext(tenantmodels.RoleTeacher), nil)

	rec, body := s.serve("harare-primary.example", "/api/settings/branding", "Bearer token")

	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("insufficient_role", body.Error)
	s.Equal(middleware.RemediationAskAdmin, body.Remediation)

	events, err := s.audit.ListByTenant(context.Background(), s.tenant.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventAccessDenied), events[0].Action)
	s.Equal(audit.DecisionDenied, events[0].Decision)
	s.Equal(testutil.TestIDs.Principal1, events[0].PrincipalID)
	s.Equal("/api/settings/branding", events[0].Route)
}

func (s *PipelineSuite) TestAllowedRequestPropagatesContext() {
	sc := s.securityContext(tenantmodels.RoleTeacher)
	s.expectResolved("harare-primary.example")
	s.verifier.EXPECT().Verify(gomock.Any(), "token").Return(s.principal(""), nil)
	s.builder.EXPECT().Build(gomock.Any(), s.tenant, gomock.Any()).Return(sc, nil)

	rec, _ := s.serve("harare-primary.example", "/api/students/roster", "Bearer token")

	s.Equal(http.StatusOK, rec.Code)
	s.Require().True(s.next.called)
	got, ok := propagation.FromContext(s.next.ctx)
	s.Require().True(ok)
	s.Same(sc, got)
	token, ok := scope.TokenFrom(s.next.ctx)
	s.Require().True(ok)
	s.Equal(s.tenant.ID, token.TenantID())
	s.Equal(s.tenant.ID.String(), rec.Header().Get(propagation.HeaderTenantID))
	s.Empty(s.auditReasons())
}

func (s *PipelineSuite) TestEvaluateDoesNotWrite() {
	s.expectResolved("harare-primary.example")

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Host = "harare-primary.example"
	outcome, sc := middleware.New(routes.Default(), s.resolver, s.verifier, s.builder).Evaluate(context.Background(), req)

	s.Equal(models.OutcomeUnauthenticated, outcome)
	s.Nil(sc)
}

func TestStatusFor(t *testing.T) {
	cases := map[models.Outcome]int{
		models.OutcomeUnknownTenant:       http.StatusNotFound,
		models.OutcomeTenantSuspended:     http.StatusForbidden,
		models.OutcomeTenantInactive:      http.StatusGone,
		models.OutcomeUnauthenticated:     http.StatusUnauthorized,
		models.OutcomeNoMembership:        http.StatusForbidden,
		models.OutcomeMembershipSuspended: http.StatusForbidden,
		models.OutcomeInsufficientRole:    http.StatusForbidden,
		models.OutcomeFeatureUnavailable:  http.StatusForbidden,
		models.OutcomeInternalError:       http.StatusServiceUnavailable,
		models.OutcomeNotFound:            http.StatusNotFound,
	}
	for outcome, want := range cases {
		if got := middleware.StatusFor(outcome); got != want {
			t.Errorf("StatusFor(%s) = %d, want %d", outcome, got, want)
		}
	}
}
