// Package requestcontext carries request-scoped transport metadata (request ID
// and client details) through context.Context. Security state lives in
// internal/security/propagation, not here.
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey struct{}
	clientKey    struct{}
	nowKey       struct{}
)

// Client describes the caller as seen by the transport layer.
type Client struct {
	IP        string
	UserAgent string
	Device    string
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID, or "" outside an HTTP request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

func ClientFrom(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}

// ClientIP returns the resolved client IP, or "" when metadata middleware did not run.
func ClientIP(ctx context.Context) string {
	return ClientFrom(ctx).IP
}

// WithNow pins the request's reference time. Every stage of one request
// (context issued_at, audit timestamps, cache expiry checks) reads the same instant.
func WithNow(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, nowKey{}, t)
}

// Now returns the pinned request time, falling back to time.Now() for
// workers and tests that run outside the HTTP chain.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(nowKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
