package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext holds state between test steps
type TestContext struct {
	harness          *harness
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	OperationURL     string
	IssuedToken      string
	IssuedTokenID    string
	verifiedBefore   int64
}

// NewTestContext creates a new test context
func NewTestContext() *TestContext {
	return &TestContext{
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Start boots a fresh in-process stack for the scenario.
func (tc *TestContext) Start() error {
	h, err := newHarness()
	if err != nil {
		return fmt.Errorf("start harness: %w", err)
	}
	tc.harness = h
	return nil
}

func (tc *TestContext) Stop() {
	if tc.harness != nil {
		tc.harness.Close()
	}
}

// Request sends method path to the given school host. An empty principal
// sends no credential.
func (tc *TestContext) Request(method, host, path, principal string, body any, headers map[string]string) error {
	resp, raw, err := tc.Send(method, host, path, principal, body, headers)
	if err != nil {
		return err
	}
	tc.LastResponse = resp
	tc.LastResponseBody = raw
	return nil
}

// Send is Request without recording the response, for concurrent steps.
func (tc *TestContext) Send(method, host, path, principal string, body any, headers map[string]string) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.harness.server.URL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Host = host
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if principal != "" {
		token, err := tc.harness.token(principal)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to mint token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	// An explicit header wins over the minted token.
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, raw, nil
}

// AdminRequest calls the tenant admin API on the root host.
func (tc *TestContext) AdminRequest(method, path string, body any) error {
	return tc.Request(method, baseDomain, path, "", body, map[string]string{
		"X-Admin-Token":    adminToken,
		"X-Admin-Actor-ID": "ops@campusgate.test",
	})
}

// GetResponseField extracts a field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}
	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	return strings.Contains(string(tc.LastResponseBody), text)
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

// MarkVerifications snapshots the verifier call count.
func (tc *TestContext) MarkVerifications() {
	tc.verifiedBefore = tc.harness.verifier.calls.Load()
}

// VerificationsSinceMark reports credential verifications since the last mark.
func (tc *TestContext) VerificationsSinceMark() int64 {
	return tc.harness.verifier.calls.Load() - tc.verifiedBefore
}

func (tc *TestContext) GetOperationURL() string {
	return tc.OperationURL
}

func (tc *TestContext) SetOperationURL(url string) {
	tc.OperationURL = url
}

// IssueToken mints and keeps a token so later steps can reuse or revoke it.
func (tc *TestContext) IssueToken(principal string) error {
	token, jti, err := tc.harness.issue(principal)
	if err != nil {
		return fmt.Errorf("failed to mint token: %w", err)
	}
	tc.IssuedToken, tc.IssuedTokenID = token, jti
	return nil
}

func (tc *TestContext) GetIssuedToken() (string, string) {
	return tc.IssuedToken, tc.IssuedTokenID
}
