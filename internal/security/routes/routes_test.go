package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusgate/internal/security/permissions"
	"campusgate/internal/tenant/models"
)

func TestDefaultClassification(t *testing.T) {
	table := Default()

	tests := []struct {
		path    string
		pattern string
		kind    Kind
		scope   HostScope
	}{
		{"/", "/", KindPublic, ScopeAny},
		{"", "/", KindPublic, ScopeAny},
		{"/login", "/login", KindPublic, ScopeAny},
		{"/public/brochure.pdf", "/public/*", KindPublic, ScopeAny},
		{"/health", "/health/*", KindPublic, ScopeAny},
		{"/health/ready", "/health/*", KindPublic, ScopeAny},
		{"/metrics", "/metrics", KindPublic, ScopeRoot},
		{"/admin/tenants/demo-school/suspend", "/admin/*", KindPublic, ScopeRoot},
		{"/api/me", "/api/me", KindAuthenticated, ScopeTenant},
		{"/api/operations/5f0c/progress", "/api/operations/*", KindAuthenticated, ScopeTenant},
		{"/api/students", "/api/students/*", KindRoleRestricted, ScopeTenant},
		{"/api/finance/invoices", "/api/finance/*", KindFeatureGated, ScopeTenant},
		{"/api/library", "/api/library/*", KindFeatureGated, ScopeTenant},
		{"/api/settings", "/api/settings/*", KindAdminOnly, ScopeTenant},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r, ok := table.Classify(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.pattern, r.Pattern)
			assert.Equal(t, tt.kind, r.Kind)
			assert.Equal(t, tt.scope, r.Scope)
		})
	}
}

func TestUnclassifiedPaths(t *testing.T) {
	table := Default()
	for _, path := range []string{"/api", "/api/mee", "/api/me/extra", "/healthz", "/publicity", "/api/financial", "/wp-login.php"} {
		_, ok := table.Classify(path)
		assert.False(t, ok, path)
	}
}

func TestRouteMetadata(t *testing.T) {
	table := Default()

	finance, _ := table.Classify("/api/finance/invoices/batch")
	assert.Equal(t, permissions.FinanceAccess, finance.Capability)

	library, _ := table.Classify("/api/library/loans")
	assert.Equal(t, permissions.LibraryAccess, library.Capability)

	students, _ := table.Classify("/api/students")
	assert.ElementsMatch(t, []models.Role{models.RoleTeacher, models.RoleAdmin, models.RoleRegistrar}, students.AllowedRoles)

	read, ok := students.Required("GET")
	require.True(t, ok)
	assert.Equal(t, permissions.SISStudentsRead, read)
	write, ok := students.Required("post")
	require.True(t, ok)
	assert.Equal(t, permissions.SISStudentsWrite, write)
	_, ok = students.Required("DELETE")
	assert.False(t, ok)

	imports, _ := table.Classify("/api/imports/students")
	write, ok = imports.Required("POST")
	require.True(t, ok)
	assert.Equal(t, permissions.SISStudentsWrite, write)
}

func TestMostSpecificRouteWins(t *testing.T) {
	table := MustTable(
		Route{Pattern: "/api/*", Kind: KindAuthenticated, Scope: ScopeTenant},
		Route{Pattern: "/api/settings/*", Kind: KindAdminOnly, Scope: ScopeTenant},
	)
	r, ok := table.Classify("/api/settings/billing")
	require.True(t, ok)
	assert.Equal(t, KindAdminOnly, r.Kind)

	r, ok = table.Classify("/api/other")
	require.True(t, ok)
	assert.Equal(t, KindAuthenticated, r.Kind)
}

func TestNewTableRejectsInvalidRoutes(t *testing.T) {
	tests := []struct {
		name  string
		route Route
	}{
		{"relative pattern", Route{Pattern: "api", Kind: KindPublic, Scope: ScopeAny}},
		{"role restricted without roles", Route{Pattern: "/x", Kind: KindRoleRestricted, Scope: ScopeTenant}},
		{"feature gated without capability", Route{Pattern: "/x", Kind: KindFeatureGated, Scope: ScopeTenant}},
		{"feature gated with unknown capability", Route{Pattern: "/x", Kind: KindFeatureGated, Scope: ScopeTenant, Capability: "astrology"}},
		{"unknown kind", Route{Pattern: "/x", Kind: "vip", Scope: ScopeTenant}},
		{"unknown scope", Route{Pattern: "/x", Kind: KindPublic, Scope: "moon"}},
		{"non-public root route", Route{Pattern: "/x", Kind: KindAuthenticated, Scope: ScopeRoot}},
		{"public route with method permission", Route{Pattern: "/x", Kind: KindPublic, Scope: ScopeAny,
			Requires: map[string]permissions.Permission{"GET": permissions.SISAccess}}},
		{"lower case method", Route{Pattern: "/x", Kind: KindAuthenticated, Scope: ScopeTenant,
			Requires: map[string]permissions.Permission{"post": permissions.SISAccess}}},
		{"unknown method permission", Route{Pattern: "/x", Kind: KindAuthenticated, Scope: ScopeTenant,
			Requires: map[string]permissions.Permission{"POST": "astrology"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.route)
			assert.Error(t, err)
		})
	}

	_, err := NewTable(
		Route{Pattern: "/x", Kind: KindPublic, Scope: ScopeAny},
		Route{Pattern: "/x", Kind: KindAuthenticated, Scope: ScopeTenant},
	)
	assert.Error(t, err, "duplicate patterns")
}
