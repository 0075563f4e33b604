// Package admin guards the tenant administration API. Operators present a
// shared token whose bcrypt hash is configured on the server; the plaintext
// never lives in config.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"campusgate/pkg/requestcontext"
)

// maxTokenLength matches bcrypt's 72 byte input ceiling.
const maxTokenLength = 72

type contextKeyActorID struct{}

// ActorID returns the operator identifier attached by RequireAdminToken, or "".
func ActorID(ctx context.Context) string {
	actorID, _ := ctx.Value(contextKeyActorID{}).(string)
	return actorID
}

// WithActorID is used by workers and tests that act on behalf of an operator.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKeyActorID{}, actorID)
}

// HashToken produces the bcrypt hash stored in ADMIN_TOKEN_HASH.
func HashToken(token string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
}

// RequireAdminToken rejects requests whose X-Admin-Token does not match
// tokenHash. X-Admin-Actor-ID is mandatory so every mutation is attributable.
func RequireAdminToken(tokenHash []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get("X-Admin-Token")
			if len(tokenHash) == 0 || token == "" || len(token) > maxTokenLength ||
				bcrypt.CompareHashAndPassword(tokenHash, []byte(token)) != nil {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeError(w, http.StatusUnauthorized, "unauthorized", "admin token required")
				return
			}

			actorID := r.Header.Get("X-Admin-Actor-ID")
			if actorID == "" {
				writeError(w, http.StatusBadRequest, "bad_request", "X-Admin-Actor-ID header required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActorID(ctx, actorID)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","error_description":"` + description + `"}`)) //nolint:errcheck // headers already sent
}
