// Package scope is the storage side of the propagation contract. Handlers
// never pass tenant IDs to storage: the pipeline puts a Token on the request
// context and storage reads it from there. No token means no tenant-scoped
// access at all; there is no default tenant.
package scope

import (
	"context"
	"errors"

	id "campusgate/pkg/domain"
)

// ErrNoTenantScope is returned by tenant-scoped storage when the context
// carries no Token.
var ErrNoTenantScope = errors.New("no tenant scope on context")

// Token is the opaque storage scoping token. Its fields are readable but it
// can only be built through NewToken.
type Token struct {
	tenantID    id.TenantID
	principalID id.PrincipalID
	role        string
}

// NewToken is called by the propagator once authorization has passed.
func NewToken(tenantID id.TenantID, principalID id.PrincipalID, role string) (Token, error) {
	if tenantID.IsNil() || principalID.IsNil() {
		return Token{}, errors.New("scope token requires tenant and principal")
	}
	return Token{tenantID: tenantID, principalID: principalID, role: role}, nil
}

func (t Token) TenantID() id.TenantID       { return t.tenantID }
func (t Token) PrincipalID() id.PrincipalID { return t.principalID }
func (t Token) Role() string                { return t.role }

type tokenKey struct{}

func WithToken(ctx context.Context, t Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, t)
}

// TokenFrom returns the token on ctx; a zero token is treated as absent.
func TokenFrom(ctx context.Context) (Token, bool) {
	t, ok := ctx.Value(tokenKey{}).(Token)
	if !ok || t.tenantID.IsNil() {
		return Token{}, false
	}
	return t, true
}
