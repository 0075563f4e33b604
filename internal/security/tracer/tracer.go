// Package tracer is the tracing abstraction used by the security pipeline.
// Stages open spans through Tracer so packages stay free of OpenTelemetry
// imports; OTelTracer adapts it to OpenTelemetry and NoopTracer serves tests.
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names, one per pipeline stage.
const (
	SpanPipeline  = "security.pipeline"
	SpanResolve   = "security.resolve"
	SpanVerify    = "security.verify"
	SpanBuild     = "security.build_context"
	SpanAuthorize = "security.authorize"
)

// Attribute keys set on pipeline spans.
const (
	AttrTenantID    = "tenant.id"
	AttrTenantKey   = "tenant.key"
	AttrPrincipalID = "principal.id"
	AttrRole        = "membership.role"
	AttrRoute       = "route"
	AttrRouteKind   = "route.kind"
	AttrOutcome     = "outcome"
	AttrCacheHit    = "cache.hit"
)
