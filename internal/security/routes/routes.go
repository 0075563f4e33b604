// Package routes is the declarative route classification table. Every path
// served by the process is classified here; the pipeline refuses anything
// the table does not know.
package routes

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"campusgate/internal/security/permissions"
	"campusgate/internal/tenant/models"
)

// Kind is the access class of a route.
type Kind string

const (
	KindPublic         Kind = "public"
	KindAuthenticated  Kind = "authenticated"
	KindRoleRestricted Kind = "role_restricted"
	KindFeatureGated   Kind = "feature_gated"
	KindAdminOnly      Kind = "admin_only"
)

// HostScope says which hosts may address a route.
type HostScope string

const (
	// ScopeAny serves both the bare root domain and school hosts.
	ScopeAny HostScope = "any"
	// ScopeTenant requires a school host.
	ScopeTenant HostScope = "tenant"
	// ScopeRoot requires the bare root domain. Root routes carry their own
	// gate (the admin token) and are public as far as the pipeline goes.
	ScopeRoot HostScope = "root"
)

// Route is one row of the table. Pattern is an exact path, or a prefix
// ending in "/*" that matches the prefix itself and everything below it.
//
// Requires names the permission each HTTP method needs on top of what Kind
// demands. Methods absent from it need nothing more.
type Route struct {
	Pattern      string
	Kind         Kind
	Scope        HostScope
	AllowedRoles []models.Role
	Capability   permissions.Permission
	Requires     map[string]permissions.Permission
}

// Required returns the permission method needs on this route, if any.
func (r Route) Required(method string) (permissions.Permission, bool) {
	p, ok := r.Requires[strings.ToUpper(method)]
	return p, ok
}

func (r Route) prefix() (string, bool) {
	if p, ok := strings.CutSuffix(r.Pattern, "/*"); ok {
		return p, true
	}
	return r.Pattern, false
}

func (r Route) matches(path string) bool {
	p, isPrefix := r.prefix()
	if !isPrefix {
		return path == p
	}
	return path == p || strings.HasPrefix(path, p+"/")
}

// Table classifies request paths. It is immutable after construction.
type Table struct {
	routes []Route
}

// NewTable validates routes and orders them most specific first.
func NewTable(routes ...Route) (*Table, error) {
	seen := make(map[string]bool, len(routes))
	for _, r := range routes {
		if err := validate(r); err != nil {
			return nil, err
		}
		if seen[r.Pattern] {
			return nil, fmt.Errorf("route %s declared twice", r.Pattern)
		}
		seen[r.Pattern] = true
	}
	sorted := slices.Clone(routes)
	slices.SortStableFunc(sorted, func(a, b Route) int {
		pa, _ := a.prefix()
		pb, _ := b.prefix()
		return len(pb) - len(pa)
	})
	return &Table{routes: sorted}, nil
}

// MustTable is NewTable for static tables.
func MustTable(routes ...Route) *Table {
	t, err := NewTable(routes...)
	if err != nil {
		panic(err)
	}
	return t
}

func validate(r Route) error {
	if !strings.HasPrefix(r.Pattern, "/") {
		return fmt.Errorf("route %q must start with /", r.Pattern)
	}
	switch r.Kind {
	case KindPublic, KindAuthenticated, KindAdminOnly:
	case KindRoleRestricted:
		if len(r.AllowedRoles) == 0 {
			return fmt.Errorf("role-restricted route %s needs allowed roles", r.Pattern)
		}
	case KindFeatureGated:
		if !r.Capability.IsKnown() {
			return fmt.Errorf("feature-gated route %s has unknown capability %q", r.Pattern, r.Capability)
		}
	default:
		return fmt.Errorf("route %s has unknown kind %q", r.Pattern, r.Kind)
	}
	for method, p := range r.Requires {
		if r.Kind == KindPublic {
			return fmt.Errorf("public route %s cannot require permissions", r.Pattern)
		}
		if method != strings.ToUpper(method) {
			return fmt.Errorf("route %s: method %q must be upper case", r.Pattern, method)
		}
		if !p.IsKnown() {
			return fmt.Errorf("route %s: %s requires unknown permission %q", r.Pattern, method, p)
		}
	}
	switch r.Scope {
	case ScopeAny, ScopeTenant:
	case ScopeRoot:
		if r.Kind != KindPublic {
			return fmt.Errorf("root route %s must be public to the pipeline", r.Pattern)
		}
	default:
		return fmt.Errorf("route %s has unknown host scope %q", r.Pattern, r.Scope)
	}
	return nil
}

// Classify returns the most specific route matching path.
func (t *Table) Classify(path string) (Route, bool) {
	if path == "" {
		path = "/"
	}
	for _, r := range t.routes {
		if r.matches(path) {
			return r, true
		}
	}
	return Route{}, false
}

// Routes returns the table rows, most specific first.
func (t *Table) Routes() []Route {
	return slices.Clone(t.routes)
}

// Default is the service's route table.
func Default() *Table {
	return MustTable(
		Route{Pattern: "/", Kind: KindPublic, Scope: ScopeAny},
		Route{Pattern: "/login", Kind: KindPublic, Scope: ScopeAny},
		Route{Pattern: "/public/*", Kind: KindPublic, Scope: ScopeAny},
		Route{Pattern: "/health/*", Kind: KindPublic, Scope: ScopeAny},
		Route{Pattern: "/metrics", Kind: KindPublic, Scope: ScopeRoot},
		Route{Pattern: "/admin/*", Kind: KindPublic, Scope: ScopeRoot},

		Route{Pattern: "/api/me", Kind: KindAuthenticated, Scope: ScopeTenant},
		Route{Pattern: "/api/operations/*", Kind: KindAuthenticated, Scope: ScopeTenant},
		Route{
			Pattern:      "/api/students/*",
			Kind:         KindRoleRestricted,
			Scope:        ScopeTenant,
			AllowedRoles: []models.Role{models.RoleTeacher, models.RoleAdmin, models.RoleRegistrar},
			Requires: map[string]permissions.Permission{
				http.MethodGet:  permissions.SISStudentsRead,
				http.MethodPost: permissions.SISStudentsWrite,
			},
		},
		Route{
			Pattern:    "/api/finance/*",
			Kind:       KindFeatureGated,
			Scope:      ScopeTenant,
			Capability: permissions.FinanceAccess,
			Requires: map[string]permissions.Permission{
				http.MethodGet:  permissions.InvoicesRead,
				http.MethodPost: permissions.InvoicesWrite,
			},
		},
		Route{Pattern: "/api/library/*", Kind: KindFeatureGated, Scope: ScopeTenant, Capability: permissions.LibraryAccess},
		Route{
			Pattern:    "/api/imports/*",
			Kind:       KindFeatureGated,
			Scope:      ScopeTenant,
			Capability: permissions.BulkImportRun,
			Requires:   map[string]permissions.Permission{http.MethodPost: permissions.SISStudentsWrite},
		},
		Route{Pattern: "/api/settings/*", Kind: KindAdminOnly, Scope: ScopeTenant},
	)
}
