package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Request(method, host, path, principal string, body any, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetOperationURL() string
	SetOperationURL(url string)
}

// RegisterSteps registers bulk import and progress step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &progressSteps{tc: tc}

	ctx.Step(`^"([^"]*)" imports (\d+) students on "([^"]*)"$`, steps.importStudents)
	ctx.Step(`^the import should finish with status "([^"]*)"$`, steps.importShouldFinish)
	ctx.Step(`^"([^"]*)" should see (\d+) students on "([^"]*)"$`, steps.shouldSeeStudents)
}

type progressSteps struct {
	tc        TestContext
	principal string
	host      string
}

func (s *progressSteps) importStudents(ctx context.Context, principal string, n int, host string) error {
	rows := make([]map[string]string, 0, n)
	for i := range n {
		rows = append(rows, map[string]string{
			"student_ref": fmt.Sprintf("S-%04d", i+1),
			"grade":       fmt.Sprint(1 + i%7),
		})
	}
	if err := s.tc.Request(http.MethodPost, host, "/api/imports/students", principal, map[string]any{"rows": rows}, nil); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != http.StatusAccepted {
		return nil
	}
	url, err := s.tc.GetResponseField("status_url")
	if err != nil {
		return err
	}
	s.tc.SetOperationURL(fmt.Sprint(url))
	s.principal, s.host = principal, host
	return nil
}

// importShouldFinish polls the operation until it reaches a terminal status.
func (s *progressSteps) importShouldFinish(ctx context.Context, expected string) error {
	if s.tc.GetOperationURL() == "" {
		return fmt.Errorf("no import was accepted")
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := s.tc.Request(http.MethodGet, s.host, s.tc.GetOperationURL(), s.principal, nil, nil); err != nil {
			return err
		}
		if s.tc.GetLastResponseStatus() != http.StatusOK {
			return fmt.Errorf("operation status answered %d: %s", s.tc.GetLastResponseStatus(), string(s.tc.GetLastResponseBody()))
		}
		var ev struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(s.tc.GetLastResponseBody(), &ev); err != nil {
			return fmt.Errorf("failed to parse progress event: %w", err)
		}
		if ev.Status == "succeeded" || ev.Status == "failed" {
			if ev.Status != expected {
				return fmt.Errorf("import finished %s, expected %s", ev.Status, expected)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("import still %s after 5s", ev.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (s *progressSteps) shouldSeeStudents(ctx context.Context, principal string, n int, host string) error {
	if err := s.tc.Request(http.MethodGet, host, "/api/students", principal, nil, nil); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != http.StatusOK {
		return fmt.Errorf("list students answered %d", s.tc.GetLastResponseStatus())
	}
	var resp struct {
		Students []json.RawMessage `json:"students"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &resp); err != nil {
		return fmt.Errorf("failed to parse students: %w", err)
	}
	if len(resp.Students) != n {
		return fmt.Errorf("expected %d students on %s, got %d", n, host, len(resp.Students))
	}
	return nil
}
