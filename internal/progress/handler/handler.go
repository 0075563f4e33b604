// Package handler streams operation progress to browsers over WebSocket.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"campusgate/internal/progress"
	"campusgate/internal/security/propagation"
	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/httputil"
	"campusgate/pkg/requestcontext"
)

const defaultWriteTimeout = 5 * time.Second

// Hub is the progress hub as the HTTP surface uses it.
type Hub interface {
	Subscribe(tenantID id.TenantID, opID id.OperationID) (*progress.Subscription, error)
	Last(tenantID id.TenantID, opID id.OperationID) (progress.Event, bool)
}

type Handler struct {
	hub            Hub
	logger         *slog.Logger
	originPatterns []string
	writeTimeout   time.Duration
}

// New builds the handler. originPatterns lists the extra hosts allowed to
// open streams cross-origin; same-origin requests are always accepted.
func New(hub Hub, logger *slog.Logger, originPatterns ...string) *Handler {
	return &Handler{
		hub:            hub,
		logger:         logger,
		originPatterns: originPatterns,
		writeTimeout:   defaultWriteTimeout,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/operations/{id}", h.HandleLast)
	r.Get("/api/operations/{id}/progress", h.HandleStream)
}

// target resolves the caller's tenant and the operation id, writing the error
// response itself when either is missing.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (id.TenantID, id.OperationID, bool) {
	sc, ok := propagation.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.TenantID{}, id.OperationID{}, false
	}
	opID, err := id.ParseOperationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid operation id"))
		return id.TenantID{}, id.OperationID{}, false
	}
	return sc.TenantID(), opID, true
}

// HandleLast returns the operation's latest event for clients that poll.
func (h *Handler) HandleLast(w http.ResponseWriter, r *http.Request) {
	tenantID, opID, ok := h.target(w, r)
	if !ok {
		return
	}
	ev, found := h.hub.Last(tenantID, opID)
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "operation not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ev)
}

// HandleStream upgrades to WebSocket and writes one JSON message per event.
// The subscription is opened before the upgrade so unknown or foreign
// operations get a plain 404.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, opID, ok := h.target(w, r)
	if !ok {
		return
	}
	sub, err := h.hub.Subscribe(tenantID, opID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer sub.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.WarnContext(ctx, "progress stream upgrade failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	defer conn.CloseNow() //nolint:errcheck // no-op after a clean close

	ctx = conn.CloseRead(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				_ = conn.Close(websocket.StatusNormalClosure, "operation finished")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.InfoContext(ctx, "progress stream ended",
						"error", err,
						"operation_id", opID.String(),
					)
				}
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, ev progress.Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
