// Package handler lets platform operators revoke issued access tokens
// before they expire.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/httputil"
	"campusgate/pkg/platform/middleware/admin"
	"campusgate/pkg/requestcontext"
)

// Revoker records a token ID as revoked for ttl.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

// RevokeRequest is the body of POST /admin/tokens/revoke. ExpiresInSeconds
// should cover the token's remaining lifetime; the entry is useless after it.
type RevokeRequest struct {
	TokenID          string `json:"token_id" validate:"required,notblank,max=128"`
	ExpiresInSeconds int    `json:"expires_in_seconds" validate:"required,min=1,max=2592000"`
}

func (r *RevokeRequest) Normalize() {
	r.TokenID = strings.TrimSpace(r.TokenID)
}

type RevokeResponse struct {
	TokenID   string    `json:"token_id"`
	Revoked   bool      `json:"revoked"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Handler struct {
	revoker Revoker
	logger  *slog.Logger
}

func New(revoker Revoker, logger *slog.Logger) *Handler {
	return &Handler{revoker: revoker, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/tokens/revoke", h.HandleRevoke)
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger)
	if !ok {
		return
	}

	ttl := time.Duration(req.ExpiresInSeconds) * time.Second
	if err := h.revoker.Revoke(ctx, req.TokenID, ttl); err != nil {
		h.logger.ErrorContext(ctx, "revoke token failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "revocation list unavailable"))
		return
	}

	h.logger.InfoContext(ctx, "token revoked",
		"token_id", req.TokenID,
		"actor_id", admin.ActorID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, &RevokeResponse{
		TokenID:   req.TokenID,
		Revoked:   true,
		ExpiresAt: requestcontext.Now(ctx).Add(ttl),
	})
}
