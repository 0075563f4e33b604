// Package permissions derives a membership's granted permissions:
//
//	granted = (role defaults ∪ explicit permissions) ∩ capabilities(enabled features)
//
// Every permission is backed by exactly one feature, so the tenant's enabled
// features are a hard ceiling no role or override can exceed.
package permissions

import (
	"slices"

	"campusgate/internal/tenant/models"
	strs "campusgate/pkg/platform/strings"
)

// Permission names a capability. The access permission of a feature carries
// the feature's own name ("finance_module"); finer permissions are dotted.
type Permission string

const (
	SISAccess          Permission = "sis"
	SISStudentsRead    Permission = "sis.students.read"
	SISStudentsWrite   Permission = "sis.students.write"
	AcademicsAccess    Permission = "academics"
	GradebookWrite     Permission = "academics.gradebook.write"
	LibraryAccess      Permission = "library"
	LibraryLoansManage Permission = "library.loans.manage"
	FinanceAccess      Permission = "finance_module"
	InvoicesRead       Permission = "finance.invoices.read"
	InvoicesWrite      Permission = "finance.invoices.write"
	BulkImportAccess   Permission = "bulk_import"
	BulkImportRun      Permission = "bulk_import.run"
	MessagingAccess    Permission = "messaging"
	MessagingSend      Permission = "messaging.send"
)

// catalog maps each permission to its backing feature.
var catalog = map[Permission]models.Feature{
	SISAccess:          models.FeatureSIS,
	SISStudentsRead:    models.FeatureSIS,
	SISStudentsWrite:   models.FeatureSIS,
	AcademicsAccess:    models.FeatureAcademics,
	GradebookWrite:     models.FeatureAcademics,
	LibraryAccess:      models.FeatureLibrary,
	LibraryLoansManage: models.FeatureLibrary,
	FinanceAccess:      models.FeatureFinance,
	InvoicesRead:       models.FeatureFinance,
	InvoicesWrite:      models.FeatureFinance,
	BulkImportAccess:   models.FeatureBulkImport,
	BulkImportRun:      models.FeatureBulkImport,
	MessagingAccess:    models.FeatureMessaging,
	MessagingSend:      models.FeatureMessaging,
}

var roleDefaults = map[models.Role][]Permission{
	models.RoleAdmin: All(),
	models.RoleTeacher: {
		SISAccess, SISStudentsRead, AcademicsAccess, GradebookWrite,
		LibraryAccess, MessagingAccess, MessagingSend,
	},
	models.RoleRegistrar: {
		SISAccess, SISStudentsRead, SISStudentsWrite, AcademicsAccess,
		BulkImportAccess, BulkImportRun,
	},
	models.RoleBursar: {
		SISAccess, SISStudentsRead, FinanceAccess, InvoicesRead, InvoicesWrite,
	},
	models.RoleLibrarian: {
		SISAccess, LibraryAccess, LibraryLoansManage,
	},
	models.RoleStudent: {
		SISAccess, AcademicsAccess, LibraryAccess,
	},
	models.RoleParent: {
		SISAccess, AcademicsAccess, FinanceAccess, InvoicesRead, MessagingAccess,
	},
}

// FeatureOf returns the feature backing p.
func FeatureOf(p Permission) (models.Feature, bool) {
	f, ok := catalog[p]
	return f, ok
}

// IsKnown reports whether p is in the catalog.
func (p Permission) IsKnown() bool {
	_, ok := catalog[p]
	return ok
}

// All returns every catalog permission in sorted order.
func All() []Permission {
	all := make([]Permission, 0, len(catalog))
	for p := range catalog {
		all = append(all, p)
	}
	slices.Sort(all)
	return all
}

// RoleDefaults returns the default permissions of role, sorted.
func RoleDefaults(role models.Role) Set {
	return NewSet(roleDefaults[role]...)
}

// Capabilities returns every permission backed by an enabled feature.
func Capabilities(enabled models.FeatureSet) Set {
	var caps []Permission
	for p, f := range catalog {
		if enabled.Has(f) {
			caps = append(caps, p)
		}
	}
	return NewSet(caps...)
}

// Grant computes the granted set for a membership in a tenant, and the
// withheld set: permissions the role or overrides would confer that the
// feature ceiling removed. Unknown explicit permissions are ignored.
func Grant(role models.Role, explicit []string, enabled models.FeatureSet) (granted, withheld Set) {
	requested := make([]Permission, 0, len(roleDefaults[role])+len(explicit))
	requested = append(requested, roleDefaults[role]...)
	for _, raw := range explicit {
		if p := Permission(raw); p.IsKnown() {
			requested = append(requested, p)
		}
	}

	var g, w []Permission
	for _, p := range NewSet(requested...).items {
		if enabled.Has(catalog[p]) {
			g = append(g, p)
		} else {
			w = append(w, p)
		}
	}
	return Set{items: g}, Set{items: w}
}

// Set is an immutable, sorted permission set.
type Set struct {
	items []Permission
}

func NewSet(perms ...Permission) Set {
	return Set{items: strs.DedupeAndTrim(perms)}
}

func (s Set) Has(p Permission) bool {
	_, found := slices.BinarySearch(s.items, p)
	return found
}

func (s Set) Len() int { return len(s.items) }

// Slice returns a copy of the members in sorted order.
func (s Set) Slice() []Permission {
	return slices.Clone(s.items)
}

// Strings returns the members as strings, for logs and responses.
func (s Set) Strings() []string {
	out := make([]string, len(s.items))
	for i, p := range s.items {
		out[i] = string(p)
	}
	return out
}

func (s Set) Equal(other Set) bool {
	return slices.Equal(s.items, other.items)
}

// IsSubsetOf reports whether every member of s is in other.
func (s Set) IsSubsetOf(other Set) bool {
	for _, p := range s.items {
		if !other.Has(p) {
			return false
		}
	}
	return true
}
