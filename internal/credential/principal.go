// Package credential verifies bearer tokens into principals. It knows nothing
// about tenants: a principal is an identity, memberships live elsewhere.
package credential

import (
	"time"

	id "campusgate/pkg/domain"
)

// PlatformAdminRole is the platform_role claim value that marks operators
// allowed to act across tenants.
const PlatformAdminRole = "platform_admin"

// Principal is a verified identity. It is produced fresh for every request.
type Principal struct {
	ID           id.PrincipalID
	TokenID      string
	Email        string
	Name         string
	PlatformRole string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

func (p Principal) IsPlatformAdmin() bool {
	return p.PlatformRole == PlatformAdminRole
}
