// Package strings provides string-set helpers for permission and feature lists.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim trims every element, drops empties and duplicates, and
// returns the result sorted so derived sets are deterministic.
//
// Example:
//
//	DedupeAndTrim([]string{" library ", "sis", "library", ""})
//	// Returns: []string{"library", "sis"}
func DedupeAndTrim[S ~string](values []S) []S {
	if len(values) == 0 {
		return nil
	}
	result := make([]S, 0, len(values))
	for _, v := range values {
		if trimmed := S(strings.TrimSpace(string(v))); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	slices.Sort(result)
	return slices.Compact(result)
}
