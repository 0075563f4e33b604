// Package authz decides whether a security context may use a route.
package authz

import (
	"slices"

	"campusgate/internal/security/models"
	"campusgate/internal/security/permissions"
	"campusgate/internal/security/routes"
	tenantmodels "campusgate/internal/tenant/models"
)

// Authorize is pure: same inputs, same decision. sc may be nil.
//
// Evaluation order fixes the tie-break: a role that could never use the
// capability gets insufficient_role even when the tenant also lacks the
// feature; feature_unavailable is reserved for callers whose role or
// overrides would grant it on a higher tier. The per-method permission of
// the route is checked last, with the same tie-break.
func Authorize(sc *models.SecurityContext, route routes.Route, method string) models.Decision {
	if route.Kind == routes.KindPublic {
		return models.Allow()
	}
	if sc == nil {
		return models.Deny(models.OutcomeUnauthenticated)
	}
	if d := authorizeKind(sc, route); !d.Allowed {
		return d
	}
	if perm, ok := route.Required(method); ok {
		return gate(sc, perm)
	}
	return models.Allow()
}

func authorizeKind(sc *models.SecurityContext, route routes.Route) models.Decision {
	switch route.Kind {
	case routes.KindAuthenticated:
		return models.Allow()

	case routes.KindAdminOnly:
		// The only cross-tenant path.
		if sc.IsPlatformAdmin() || sc.Role() == tenantmodels.RoleAdmin {
			return models.Allow()
		}
		return models.Deny(models.OutcomeInsufficientRole)

	case routes.KindRoleRestricted:
		if slices.Contains(route.AllowedRoles, sc.Role()) {
			return models.Allow()
		}
		return models.Deny(models.OutcomeInsufficientRole)

	case routes.KindFeatureGated:
		return gate(sc, route.Capability)
	}

	// Unknown kinds never pass.
	return models.Deny(models.OutcomeInsufficientRole)
}

func gate(sc *models.SecurityContext, perm permissions.Permission) models.Decision {
	if sc.HasPermission(perm) {
		return models.Allow()
	}
	if sc.Withheld(perm) {
		return models.Deny(models.OutcomeFeatureUnavailable)
	}
	return models.Deny(models.OutcomeInsufficientRole)
}
