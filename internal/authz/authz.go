// Package authz decides whether a caller may perform an operation.  The
// role and permission sets it is given must come from the store, never
// from the request itself.
package authz

import (
	"sort"

	"github.com/helpdeskhq/helpdesk/internal/model"
)

// Effective returns the union of the directly granted permissions and
// the permissions implied by each role, sorted and without duplicates.
func Effective(roles, direct []string) []string {
	set := make(map[string]struct{}, len(direct))
	for _, p := range direct {
		set[p] = struct{}{}
	}
	for _, r := range roles {
		for _, p := range model.RolePermissions(r) {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HasRole reports whether role is among roles.
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Allowed reports whether a holder of roles and direct permissions may
// exercise required.  ADMIN is allowed everything.
func Allowed(roles, direct []string, required string) bool {
	if HasRole(roles, model.RoleAdmin) {
		return true
	}
	for _, p := range Effective(roles, direct) {
		if p == required {
			return true
		}
	}
	return false
}
