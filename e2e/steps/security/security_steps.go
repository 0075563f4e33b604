package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/cucumber/godog"
	"golang.org/x/sync/errgroup"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Request(method, host, path, principal string, body any, headers map[string]string) error
	Send(method, host, path, principal string, body any, headers map[string]string) (*http.Response, []byte, error)
	MarkVerifications()
	VerificationsSinceMark() int64
	IssueToken(principal string) error
	GetIssuedToken() (token, tokenID string)
}

// RegisterSteps registers request and isolation step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &securitySteps{tc: tc}

	ctx.Step(`^"([^"]*)" requests "([^"]*)" on "([^"]*)"$`, steps.principalRequests)
	ctx.Step(`^an anonymous visitor requests "([^"]*)" on "([^"]*)"$`, steps.anonymousRequests)
	ctx.Step(`^"([^"]*)" posts to "([^"]*)" on "([^"]*)" with:$`, steps.principalPosts)

	ctx.Step(`^a token is issued to "([^"]*)"$`, steps.issueToken)
	ctx.Step(`^the issued token requests "([^"]*)" on "([^"]*)"$`, steps.issuedTokenRequests)

	ctx.Step(`^I note the credential verification count$`, steps.noteVerifications)
	ctx.Step(`^no credential verification should have been attempted$`, steps.noVerification)

	ctx.Step(`^(\d+) concurrent "/api/me" requests alternate between "([^"]*)" on "([^"]*)" and "([^"]*)" on "([^"]*)"$`, steps.concurrentMe)
	ctx.Step(`^every response should carry only its own school's context$`, steps.everyResponseIsolated)
}

type meResult struct {
	host      string
	status    int
	tenantKey string
}

type securitySteps struct {
	tc TestContext

	mu      sync.Mutex
	results []meResult
}

func (s *securitySteps) principalRequests(ctx context.Context, principal, path, host string) error {
	return s.tc.Request(http.MethodGet, host, path, principal, nil, nil)
}

func (s *securitySteps) anonymousRequests(ctx context.Context, path, host string) error {
	return s.tc.Request(http.MethodGet, host, path, "", nil, nil)
}

func (s *securitySteps) principalPosts(ctx context.Context, principal, path, host string, body *godog.DocString) error {
	var payload any
	if err := json.Unmarshal([]byte(body.Content), &payload); err != nil {
		return fmt.Errorf("invalid JSON in step: %w", err)
	}
	return s.tc.Request(http.MethodPost, host, path, principal, payload, nil)
}

func (s *securitySteps) issueToken(ctx context.Context, principal string) error {
	return s.tc.IssueToken(principal)
}

func (s *securitySteps) issuedTokenRequests(ctx context.Context, path, host string) error {
	token, _ := s.tc.GetIssuedToken()
	if token == "" {
		return fmt.Errorf("no token was issued")
	}
	return s.tc.Request(http.MethodGet, host, path, "", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func (s *securitySteps) noteVerifications(ctx context.Context) error {
	s.tc.MarkVerifications()
	return nil
}

func (s *securitySteps) noVerification(ctx context.Context) error {
	if n := s.tc.VerificationsSinceMark(); n != 0 {
		return fmt.Errorf("expected no credential verification, got %d", n)
	}
	return nil
}

func (s *securitySteps) concurrentMe(ctx context.Context, n int, principalA, hostA, principalB, hostB string) error {
	s.results = make([]meResult, 0, n)
	g := new(errgroup.Group)
	g.SetLimit(16)
	for i := range n {
		principal, host := principalA, hostA
		if i%2 == 1 {
			principal, host = principalB, hostB
		}
		g.Go(func() error {
			resp, raw, err := s.tc.Send(http.MethodGet, host, "/api/me", principal, nil, nil)
			if err != nil {
				return err
			}
			var me struct {
				TenantKey string `json:"tenant_key"`
			}
			_ = json.Unmarshal(raw, &me) //nolint:errcheck // non-200 bodies are checked by status
			s.mu.Lock()
			s.results = append(s.results, meResult{host: host, status: resp.StatusCode, tenantKey: me.TenantKey})
			s.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (s *securitySteps) everyResponseIsolated(ctx context.Context) error {
	if len(s.results) == 0 {
		return fmt.Errorf("no concurrent responses recorded")
	}
	for _, r := range s.results {
		if r.status != http.StatusOK {
			return fmt.Errorf("request to %s answered %d", r.host, r.status)
		}
		want, _, _ := strings.Cut(r.host, ".")
		if r.tenantKey != want {
			return fmt.Errorf("request to %s saw tenant %q", r.host, r.tenantKey)
		}
	}
	return nil
}
