package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusgate/internal/credential"
)

type failingRevoker struct{}

func (failingRevoker) Revoke(context.Context, string, time.Duration) error {
	return errors.New("redis: connection refused")
}

func serve(t *testing.T, revoker Revoker, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	New(revoker, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	req := httptest.NewRequest(http.MethodPost, "/admin/tokens/revoke", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRevokeMarksTokenRevoked(t *testing.T) {
	list := credential.NewMemoryRevocationList()

	rec := serve(t, list, `{"token_id":" abc123 ","expires_in_seconds":600}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RevokeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc123", resp.TokenID)
	assert.True(t, resp.Revoked)

	revoked, err := list.IsRevoked(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevokeRejectsInvalidBody(t *testing.T) {
	list := credential.NewMemoryRevocationList()

	for name, body := range map[string]string{
		"missing token id": `{"expires_in_seconds":600}`,
		"blank token id":   `{"token_id":"   ","expires_in_seconds":600}`,
		"zero lifetime":    `{"token_id":"abc123","expires_in_seconds":0}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := serve(t, list, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRevokeUnavailableList(t *testing.T) {
	rec := serve(t, failingRevoker{}, `{"token_id":"abc123","expires_in_seconds":600}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "temporarily_unavailable")
}
