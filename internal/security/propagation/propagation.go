// Package propagation hands a finalized SecurityContext to the rest of the
// request: handlers read it with FromContext, storage reads the scope token,
// and tracing gets the tenant, principal and role fields.
package propagation

import (
	"context"
	"fmt"
	"net/http"

	"campusgate/internal/security/models"
	"campusgate/internal/security/tracer"
	"campusgate/internal/storage/scope"
)

// HeaderTenantID is echoed on responses of tenant-scoped requests.
const HeaderTenantID = "X-Tenant-ID"

type securityContextKey struct{}

// Propagate attaches sc and its storage token to ctx. A nil sc leaves ctx
// untouched, so storage stays deny-all.
func Propagate(ctx context.Context, sc *models.SecurityContext) (context.Context, error) {
	if sc == nil {
		return ctx, nil
	}
	token, err := scope.NewToken(sc.TenantID(), sc.PrincipalID(), string(sc.Role()))
	if err != nil {
		return ctx, fmt.Errorf("build scope token: %w", err)
	}
	ctx = context.WithValue(ctx, securityContextKey{}, sc)
	ctx = scope.WithToken(ctx, token)
	tracer.SetOnContext(ctx, Attributes(sc)...)
	return ctx, nil
}

// FromContext returns the request's SecurityContext, if the pipeline built one.
func FromContext(ctx context.Context) (*models.SecurityContext, bool) {
	sc, ok := ctx.Value(securityContextKey{}).(*models.SecurityContext)
	return sc, ok && sc != nil
}

// Attributes are the observability fields for sc.
func Attributes(sc *models.SecurityContext) []tracer.Attribute {
	return []tracer.Attribute{
		tracer.String(tracer.AttrTenantID, sc.TenantID().String()),
		tracer.String(tracer.AttrPrincipalID, sc.PrincipalID().String()),
		tracer.String(tracer.AttrRole, string(sc.Role())),
	}
}

// LogAttrs returns the same fields in slog's alternating key/value form.
func LogAttrs(sc *models.SecurityContext) []any {
	return []any{
		"tenant_id", sc.TenantID().String(),
		"principal_id", sc.PrincipalID().String(),
		"role", string(sc.Role()),
	}
}

// SetHeaders stamps the tenant id on the response.
func SetHeaders(w http.ResponseWriter, sc *models.SecurityContext) {
	if sc == nil {
		return
	}
	w.Header().Set(HeaderTenantID, sc.TenantID().String())
}
