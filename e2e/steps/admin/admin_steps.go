package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	AdminRequest(method, path string, body any) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetIssuedToken() (token, tokenID string)
}

// RegisterSteps registers tenant administration step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &adminSteps{tc: tc}

	ctx.Step(`^the platform operator suspends "([^"]*)"$`, steps.suspend)
	ctx.Step(`^the platform operator reinstates "([^"]*)"$`, steps.reinstate)
	ctx.Step(`^the platform operator archives "([^"]*)"$`, steps.archive)
	ctx.Step(`^the platform operator moves "([^"]*)" to the "([^"]*)" tier$`, steps.changeTier)
	ctx.Step(`^the platform operator revokes the issued token$`, steps.revokeIssuedToken)
	ctx.Step(`^the audit trail of "([^"]*)" should record "([^"]*)"$`, steps.auditShouldRecord)
}

type adminSteps struct {
	tc TestContext
}

func (s *adminSteps) lifecycle(key, action string) error {
	body := map[string]string{"reason": "e2e " + action}
	if err := s.tc.AdminRequest(http.MethodPost, "/admin/tenants/"+key+"/"+action, body); err != nil {
		return err
	}
	return s.expectOK(action + " " + key)
}

func (s *adminSteps) suspend(ctx context.Context, key string) error {
	return s.lifecycle(key, "suspend")
}

func (s *adminSteps) reinstate(ctx context.Context, key string) error {
	return s.lifecycle(key, "reinstate")
}

func (s *adminSteps) archive(ctx context.Context, key string) error {
	return s.lifecycle(key, "archive")
}

func (s *adminSteps) changeTier(ctx context.Context, key, tier string) error {
	body := map[string]any{"tier": tier, "add_ons": []string{}}
	if err := s.tc.AdminRequest(http.MethodPut, "/admin/tenants/"+key+"/tier", body); err != nil {
		return err
	}
	return s.expectOK("change tier of " + key)
}

func (s *adminSteps) revokeIssuedToken(ctx context.Context) error {
	_, tokenID := s.tc.GetIssuedToken()
	if tokenID == "" {
		return fmt.Errorf("no token was issued")
	}
	body := map[string]any{"token_id": tokenID, "expires_in_seconds": 3600}
	if err := s.tc.AdminRequest(http.MethodPost, "/admin/tokens/revoke", body); err != nil {
		return err
	}
	return s.expectOK("revoke token")
}

func (s *adminSteps) auditShouldRecord(ctx context.Context, key, action string) error {
	if err := s.tc.AdminRequest(http.MethodGet, "/admin/tenants/"+key+"/audit", nil); err != nil {
		return err
	}
	if err := s.expectOK("read audit of " + key); err != nil {
		return err
	}
	var resp struct {
		Events []struct {
			Action  string `json:"action"`
			ActorID string `json:"actor_id"`
		} `json:"events"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &resp); err != nil {
		return fmt.Errorf("failed to parse audit list: %w", err)
	}
	for _, ev := range resp.Events {
		if ev.Action == action {
			return nil
		}
	}
	return fmt.Errorf("audit trail of %s has no %s event\nResponse: %s", key, action, string(s.tc.GetLastResponseBody()))
}

func (s *adminSteps) expectOK(what string) error {
	if status := s.tc.GetLastResponseStatus(); status != http.StatusOK {
		return fmt.Errorf("%s: expected 200 but got %d\nResponse: %s", what, status, string(s.tc.GetLastResponseBody()))
	}
	return nil
}
