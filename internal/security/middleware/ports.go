package middleware

import (
	"context"

	"campusgate/internal/credential"
	"campusgate/internal/security/models"
	"campusgate/internal/security/resolver"
	tenantmodels "campusgate/internal/tenant/models"
)

// TenantResolver is satisfied by *resolver.Resolver.
type TenantResolver interface {
	ParseHost(host string) (resolver.Resolution, error)
	Resolve(ctx context.Context, host string) (resolver.Resolution, error)
}

// CredentialVerifier is satisfied by *credential.Verifier.
type CredentialVerifier interface {
	Verify(ctx context.Context, raw string) (*credential.Principal, error)
}

// ContextBuilder is satisfied by *session.Builder.
type ContextBuilder interface {
	Build(ctx context.Context, tenant *tenantmodels.Tenant, principal *credential.Principal) (*models.SecurityContext, error)
}
