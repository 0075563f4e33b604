package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"campusgate/internal/credential"
	"campusgate/internal/platform/health"
	"campusgate/internal/progress"
	progresshandler "campusgate/internal/progress/handler"
	"campusgate/internal/security/middleware"
	"campusgate/internal/security/resolver"
	"campusgate/internal/security/routes"
	"campusgate/internal/security/session"
	"campusgate/internal/storage/enrolment"
	"campusgate/internal/tenant/cache"
	tenantmodels "campusgate/internal/tenant/models"
	membershipstore "campusgate/internal/tenant/store/membership"
	tenantstore "campusgate/internal/tenant/store/tenant"
	httptransport "campusgate/internal/transport/http"
	id "campusgate/pkg/domain"
	"campusgate/pkg/platform/audit"
	"campusgate/pkg/platform/audit/publisher"
	auditmemory "campusgate/pkg/platform/audit/store/memory"
	"campusgate/pkg/testutil"
)

const (
	signingKey = "router-signing-key-0123456789abcdef"
	issuerName = "campusgate-test"
	audience   = "campusgate"
	adminToken = "router-admin-token"
)

var (
	teacherID   = testutil.TestIDs.Principal1
	registrarID = testutil.TestIDs.Principal2
)

type adminStub struct{}

func (adminStub) Register(r chi.Router) {
	r.Get("/admin/tenants", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type RouterSuite struct {
	suite.Suite
	issuer *credential.Issuer
	runner *progress.Runner
	router http.Handler
	audit  *auditmemory.InMemoryStore
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tenants := tenantstore.NewInMemory()
	memberships := membershipstore.NewInMemory()
	harare := testutil.NewTenant("harare-primary").WithID(testutil.TestIDs.TenantA).
		WithTier(tenantmodels.TierPremium).Build()
	demo := testutil.NewTenant("demo-school").WithID(testutil.TestIDs.TenantB).Build()
	s.Require().NoError(tenants.Create(ctx, harare))
	s.Require().NoError(tenants.Create(ctx, demo))
	s.Require().NoError(memberships.Save(ctx, testutil.NewMembership(teacherID, harare.ID, tenantmodels.RoleTeacher).Build()))
	s.Require().NoError(memberships.Save(ctx, testutil.NewMembership(registrarID, harare.ID, tenantmodels.RoleRegistrar).Build()))
	s.Require().NoError(memberships.Save(ctx, testutil.NewMembership(registrarID, demo.ID, tenantmodels.RoleRegistrar).Build()))

	res := resolver.New(resolver.Config{BaseDomain: "example", ReservedLabels: []string{"www"}},
		cache.New(tenants, cache.DefaultConfig()))
	verifier := credential.NewVerifier(credential.VerifierConfig{
		SigningKey: []byte(signingKey),
		Issuer:     issuerName,
		Audience:   audience,
	})
	s.issuer = credential.NewIssuer([]byte(signingKey), issuerName, audience, time.Hour)
	s.audit = auditmemory.NewInMemoryStore()
	pipeline := middleware.New(routes.Default(), res, verifier, session.NewBuilder(memberships, 0),
		middleware.WithLogger(logger),
		middleware.WithAuditor(publisher.NewPublisher(s.audit)),
	)

	hub := progress.NewHub(progress.WithBufferSize(64))
	s.runner = progress.NewRunner(ctx, hub, logger)
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	s.Require().NoError(err)

	s.router = httptransport.NewRouter(httptransport.RouterConfig{
		RequestTimeout: 5 * time.Second,
		AdminTokenHash: hash,
	}, httptransport.Deps{
		Logger:   logger,
		Guard:    pipeline,
		API:      httptransport.NewHandler(enrolment.NewInMemory(), s.runner, logger, httptransport.WithLoginURL("https://auth.example/login")),
		Admin:    []httptransport.Registrar{adminStub{}},
		Progress: progresshandler.New(hub, logger),
		Health:   health.New("test"),
	})
}

func (s *RouterSuite) do(method, host, path string, principalID id.PrincipalID, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Host = host
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !principalID.IsNil() {
		token, _, err := s.issuer.Issue(context.Background(), credential.IssueRequest{PrincipalID: principalID})
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) TestLandingIsPublic() {
	rec := s.do(http.MethodGet, "example", "/", id.PrincipalID{}, nil)
	s.Equal(http.StatusOK, rec.Code)
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestLoginLinkFromOutcomeIsServed() {
	rec := s.do(http.MethodGet, "harare-primary.example", "/api/me", id.PrincipalID{}, nil)
	s.Require().Equal(http.StatusUnauthorized, rec.Code)
	var body middleware.OutcomeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().NotEmpty(body.LoginURL)

	for _, host := range []string{"harare-primary.example", "example"} {
		rec = s.do(http.MethodGet, host, body.LoginURL, id.PrincipalID{}, nil)
		s.Require().Equal(http.StatusFound, rec.Code, host)

		target, err := url.Parse(rec.Header().Get("Location"))
		s.Require().NoError(err)
		s.Equal("auth.example", target.Host)
		s.Equal("http://"+host+"/api/me", target.Query().Get("return_to"))
	}
}

func (s *RouterSuite) TestLoginRejectsForeignReturnTarget() {
	rec := s.do(http.MethodGet, "harare-primary.example", "/login?next=//evil.example/steal", id.PrincipalID{}, nil)
	s.Require().Equal(http.StatusFound, rec.Code)

	target, err := url.Parse(rec.Header().Get("Location"))
	s.Require().NoError(err)
	s.Equal("http://harare-primary.example/", target.Query().Get("return_to"))
}

func (s *RouterSuite) TestHealthOnAnyHost() {
	rec := s.do(http.MethodGet, "harare-primary.example", "/health/live", id.PrincipalID{}, nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestMeDescribesTheCaller() {
	rec := s.do(http.MethodGet, "harare-primary.example", "/api/me", teacherID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var me httptransport.MeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &me))
	s.Equal("harare-primary", me.TenantKey)
	s.Equal(string(tenantmodels.RoleTeacher), me.Role)
	s.Equal(testutil.TestIDs.TenantA.String(), rec.Header().Get("X-Tenant-ID"))
	s.Contains(me.Permissions, "sis.students.read")
	s.NotContains(me.Permissions, "sis.students.write")
}

func (s *RouterSuite) TestUnauthenticatedApiCall() {
	rec := s.do(http.MethodGet, "harare-primary.example", "/api/me", id.PrincipalID{}, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestTeacherCannotWriteStudents() {
	rec := s.do(http.MethodPost, "harare-primary.example", "/api/students", teacherID,
		httptransport.EnrolStudentRequest{StudentRef: "S-1", Grade: "7"})
	s.Require().Equal(http.StatusForbidden, rec.Code)

	var body middleware.OutcomeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("insufficient_role", body.Error)
	s.Equal(middleware.RemediationAskAdmin, body.Remediation)

	events, err := s.audit.ListByTenant(context.Background(), testutil.TestIDs.TenantA)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventAccessDenied), events[0].Action)
	s.Equal(audit.DecisionDenied, events[0].Decision)
	s.Equal("insufficient_role", events[0].Reason)
	s.Equal("/api/students", events[0].Route)
	s.Equal(teacherID, events[0].PrincipalID)

	s.Empty(s.listStudents("harare-primary.example"), "denied write never reached the store")
}

func (s *RouterSuite) TestTeacherStillReadsStudents() {
	rec := s.do(http.MethodGet, "harare-primary.example", "/api/students", teacherID, nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestStudentsStayInTheirTenant() {
	rec := s.do(http.MethodPost, "harare-primary.example", "/api/students", registrarID,
		httptransport.EnrolStudentRequest{StudentRef: " S-1 ", Grade: "7"})
	s.Require().Equal(http.StatusCreated, rec.Code)

	var created enrolment.Enrolment
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &created))
	s.Equal("S-1", created.StudentRef)

	s.Equal([]string{"S-1"}, s.listStudents("harare-primary.example"))
	s.Empty(s.listStudents("demo-school.example"))
}

func (s *RouterSuite) TestInvalidStudentBody() {
	rec := s.do(http.MethodPost, "harare-primary.example", "/api/students", registrarID,
		httptransport.EnrolStudentRequest{StudentRef: "   ", Grade: "7"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterSuite) TestFeatureGateFollowsTier() {
	rec := s.do(http.MethodGet, "demo-school.example", "/api/imports/students", registrarID, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	var body middleware.OutcomeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("feature_unavailable", body.Error)
}

func (s *RouterSuite) TestBulkImportReportsProgress() {
	rec := s.do(http.MethodPost, "harare-primary.example", "/api/imports/students", registrarID,
		httptransport.ImportStudentsRequest{Rows: []httptransport.EnrolStudentRequest{
			{StudentRef: "S-2", Grade: "4"},
			{StudentRef: "S-3", Grade: "5"},
		}})
	s.Require().Equal(http.StatusAccepted, rec.Code)

	var accepted httptransport.ImportAcceptedResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &accepted))
	s.runner.Wait()

	status := s.do(http.MethodGet, "harare-primary.example", accepted.StatusURL, registrarID, nil)
	s.Require().Equal(http.StatusOK, status.Code)
	var last progress.Event
	s.Require().NoError(json.Unmarshal(status.Body.Bytes(), &last))
	s.Equal(progress.StatusSucceeded, last.Status)
	s.Equal(100, last.Percent)

	s.Equal([]string{"S-2", "S-3"}, s.listStudents("harare-primary.example"))

	other := s.do(http.MethodGet, "demo-school.example", accepted.StatusURL, registrarID, nil)
	s.Equal(http.StatusNotFound, other.Code)
}

func (s *RouterSuite) TestAdminRoutesNeedRootHostAndToken() {
	rec := s.do(http.MethodGet, "example", "/admin/tenants", id.PrincipalID{}, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
	req.Host = "example"
	req.Header.Set("X-Admin-Token", adminToken)
	req.Header.Set("X-Admin-Actor-ID", "ops@campusgate")
	ok := httptest.NewRecorder()
	s.router.ServeHTTP(ok, req)
	s.Equal(http.StatusOK, ok.Code)

	onSchool := s.do(http.MethodGet, "harare-primary.example", "/admin/tenants", id.PrincipalID{}, nil)
	s.Equal(http.StatusNotFound, onSchool.Code)
}

func (s *RouterSuite) TestUnclassifiedPathIsNotFound() {
	rec := s.do(http.MethodGet, "harare-primary.example", "/internal/debug", registrarID, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) listStudents(host string) []string {
	rec := s.do(http.MethodGet, host, "/api/students", registrarID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var body httptransport.StudentListResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	refs := make([]string, 0, len(body.Students))
	for _, st := range body.Students {
		refs = append(refs, st.StudentRef)
	}
	return refs
}
