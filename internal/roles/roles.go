package roles

import "sort"

// Role names. Storage historically held a single scalar role; everything
// here treats role membership as a set and normalizes at the boundary.
const (
	Guest           = "guest"
	Host            = "host"
	PropertyManager = "property_manager"
)

// primary-role priority, used only for default-dashboard redirection.
// Authorization always checks set membership directly.
var priority = []string{Host, PropertyManager, Guest}

// Normalize deduplicates and sorts a role list, dropping empties. It is
// the one place scalar-era data becomes a genuine set.
func Normalize(roleList []string) []string {
	seen := make(map[string]struct{}, len(roleList))
	out := make([]string, 0, len(roleList))
	for _, r := range roleList {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// EnsureGuest returns the role set with "guest" present. It is a pure
// addition: every role already held remains held.
func EnsureGuest(roleList []string) []string {
	normalized := Normalize(roleList)
	if Has(normalized, Guest) {
		return normalized
	}
	return Normalize(append(normalized, Guest))
}

// Equal reports whether two role lists hold exactly the same entries in
// the same order. Comparing a raw stored list against its normalized
// form tells whether the store needs a write; lengths alone cannot,
// since dropping a duplicate and gaining "guest" can cancel out.
func Equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Has reports set membership.
func Has(roleList []string, role string) bool {
	for _, r := range roleList {
		if r == role {
			return true
		}
	}
	return false
}

// Primary picks the role that drives the default dashboard redirect.
func Primary(roleList []string) string {
	for _, p := range priority {
		if Has(roleList, p) {
			return p
		}
	}
	return Guest
}

// DashboardPath maps the primary role to its landing page.
func DashboardPath(roleList []string) string {
	switch Primary(roleList) {
	case Host:
		return "/host/dashboard"
	case PropertyManager:
		return "/manager/dashboard"
	default:
		return "/guest/dashboard"
	}
}
