package e2e

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"campusgate/internal/credential"
	credhandler "campusgate/internal/credential/handler"
	"campusgate/internal/progress"
	progresshandler "campusgate/internal/progress/handler"
	"campusgate/internal/security/middleware"
	"campusgate/internal/security/resolver"
	"campusgate/internal/security/routes"
	"campusgate/internal/security/session"
	"campusgate/internal/seeder"
	"campusgate/internal/storage/enrolment"
	"campusgate/internal/tenant/cache"
	tenanthandler "campusgate/internal/tenant/handler"
	tenantservice "campusgate/internal/tenant/service"
	membershipstore "campusgate/internal/tenant/store/membership"
	tenantstore "campusgate/internal/tenant/store/tenant"
	httptransport "campusgate/internal/transport/http"
	"campusgate/pkg/platform/audit"
	"campusgate/pkg/platform/audit/publisher"
	auditmemory "campusgate/pkg/platform/audit/store/memory"
	id "campusgate/pkg/domain"
)

const (
	baseDomain = "example"
	signingKey = "e2e-signing-key-0123456789abcdef"
	issuerName = "https://auth.campusgate.test"
	audience   = "campusgate-api"
	adminToken = "e2e-admin-token"
)

// stranger holds a valid credential but no membership in any school.
var stranger = id.PrincipalID(uuid.MustParse("0f000000-0000-4000-8000-0000000000ff"))

// countingVerifier records how many credentials reached verification.
type countingVerifier struct {
	next  *credential.Verifier
	calls atomic.Int64
}

func (v *countingVerifier) Verify(ctx context.Context, raw string) (*credential.Principal, error) {
	v.calls.Add(1)
	return v.next.Verify(ctx, raw)
}

// harness runs the whole HTTP stack in-process over seeded in-memory stores.
// Metrics are left nil so every scenario can build a fresh stack.
type harness struct {
	server   *httptest.Server
	issuer   *credential.Issuer
	verifier *countingVerifier
	jobs     *progress.Runner
	cancel   context.CancelFunc
}

func newHarness() (*harness, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tenants := tenantstore.NewInMemory()
	memberships := membershipstore.NewInMemory()
	if err := seeder.New(tenants, memberships, logger).SeedAll(ctx); err != nil {
		cancel()
		return nil, err
	}

	tenantCache := cache.New(tenants, cache.DefaultConfig(), cache.WithLogger(logger))
	auditor := publisher.NewPublisher(auditmemory.NewInMemoryStore())
	admins := tenantservice.New(tenants, tenantCache,
		tenantservice.WithLogger(logger),
		tenantservice.WithAuditor(audit.NewLogger(logger, auditor)),
	)

	revocations := credential.NewMemoryRevocationList()
	verifier := &countingVerifier{next: credential.NewVerifier(credential.VerifierConfig{
		SigningKey: []byte(signingKey),
		Issuer:     issuerName,
		Audience:   audience,
		Leeway:     30 * time.Second,
	}, credential.WithRevocationList(revocations))}
	pipeline := middleware.New(
		routes.Default(),
		resolver.New(resolver.Config{BaseDomain: baseDomain, ReservedLabels: []string{"www"}}, tenantCache),
		verifier,
		session.NewBuilder(memberships, time.Second),
		middleware.WithLogger(logger),
		middleware.WithAuditor(auditor),
	)

	hub := progress.NewHub(progress.WithBufferSize(64), progress.WithLogger(logger))
	jobs := progress.NewRunner(ctx, hub, logger)

	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		cancel()
		return nil, err
	}
	router := httptransport.NewRouter(httptransport.RouterConfig{
		RequestTimeout: 10 * time.Second,
		AdminTokenHash: hash,
	}, httptransport.Deps{
		Logger:   logger,
		Guard:    pipeline,
		API:      httptransport.NewHandler(enrolment.NewInMemory(), jobs, logger),
		Admin: []httptransport.Registrar{
			tenanthandler.New(admins, auditor, logger),
			credhandler.New(revocations, logger),
		},
		Progress: progresshandler.New(hub, logger),
	})

	return &harness{
		server:   httptest.NewServer(router),
		issuer:   credential.NewIssuer([]byte(signingKey), issuerName, audience, time.Hour),
		verifier: verifier,
		jobs:     jobs,
		cancel:   cancel,
	}, nil
}

func (h *harness) token(name string) (string, error) {
	token, _, err := h.issue(name)
	return token, err
}

// issue mints a token for a seeded principal name. Unknown names get the
// stranger, who belongs to no school.
func (h *harness) issue(name string) (string, string, error) {
	principalID, ok := seeder.Principals[name]
	if !ok {
		principalID = stranger
	}
	return h.issuer.Issue(context.Background(), credential.IssueRequest{PrincipalID: principalID, Name: name})
}

func (h *harness) Close() {
	h.cancel()
	h.jobs.Wait()
	h.server.Close()
}
