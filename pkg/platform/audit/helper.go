package audit

import (
	"context"
	"log/slog"

	"campusgate/pkg/requestcontext"
)

// Emitter is the interface for audit event emission.
// Satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Logger writes an audit line to the text log and emits the event to the
// audit store. Services use it for admin actions.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
}

// NewLogger creates an audit logger. Either argument may be nil.
func NewLogger(textLogger *slog.Logger, emitter Emitter) *Logger {
	return &Logger{
		textLogger: textLogger,
		emitter:    emitter,
	}
}

// Log enriches event with the request id, pinned time and client details from
// ctx, then logs and emits it. Emission errors are logged, never returned.
func (l *Logger) Log(ctx context.Context, event Event) {
	event = Enrich(ctx, event)
	l.logToText(ctx, event)
	l.emitToAudit(ctx, event)
}

// Enrich fills request-scoped fields that the caller left empty.
func Enrich(ctx context.Context, event Event) Event {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	client := requestcontext.ClientFrom(ctx)
	if event.ClientIP == "" {
		event.ClientIP = client.IP
	}
	if event.Device == "" {
		event.Device = client.Device
	}
	return event
}

func (l *Logger) logToText(ctx context.Context, event Event) {
	if l.textLogger == nil {
		return
	}
	args := []any{
		"event", event.Action,
		"log_type", "audit",
		"decision", event.Decision,
		"request_id", event.RequestID,
	}
	if !event.TenantID.IsNil() {
		args = append(args, "tenant_id", event.TenantID.String())
	}
	if event.Reason != "" {
		args = append(args, "reason", event.Reason)
	}
	if event.ActorID != "" {
		args = append(args, "actor_id", event.ActorID)
	}
	l.textLogger.InfoContext(ctx, event.Action, args...)
}

func (l *Logger) emitToAudit(ctx context.Context, event Event) {
	if l.emitter == nil {
		return
	}
	if err := l.emitter.Emit(ctx, event); err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", event.Action,
		)
	}
}
