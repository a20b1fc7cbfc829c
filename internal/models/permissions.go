package models

import "sort"

// Permission constants define the closed set of valid permissions.
// Unknown permission strings are dropped silently wherever a set is assigned.
const (
	PermProductsRead    = "products.read"
	PermProductsWrite   = "products.write"
	PermProductsDelete  = "products.delete"
	PermChangelogsRead  = "changelogs.read"
	PermChangelogsWrite = "changelogs.write"
	PermCategoriesRead  = "categories.read"
	PermCategoriesWrite = "categories.write"
	PermMediaRead       = "media.read"
	PermMediaWrite      = "media.write"
	PermMediaDelete     = "media.delete"
	PermUsersRead       = "users.read"
	PermUsersWrite      = "users.write"
	PermUsersDelete     = "users.delete"
	PermRolesRead       = "roles.read"
	PermRolesWrite      = "roles.write"
	PermAuditRead       = "audit.read"
	PermSettingsRead    = "settings.read"
	PermSettingsWrite   = "settings.write"

	// Wildcard permission - grants everything (admin only)
	PermAll = "*"
)

// AllValidPermissions is the whitelist of all allowed permissions
var AllValidPermissions = map[string]bool{
	PermProductsRead:    true,
	PermProductsWrite:   true,
	PermProductsDelete:  true,
	PermChangelogsRead:  true,
	PermChangelogsWrite: true,
	PermCategoriesRead:  true,
	PermCategoriesWrite: true,
	PermMediaRead:       true,
	PermMediaWrite:      true,
	PermMediaDelete:     true,
	PermUsersRead:       true,
	PermUsersWrite:      true,
	PermUsersDelete:     true,
	PermRolesRead:       true,
	PermRolesWrite:      true,
	PermAuditRead:       true,
	PermSettingsRead:    true,
	PermSettingsWrite:   true,
	PermAll:             true,
}

// DefaultRolePermissions maps legacy coarse role names to their permission
// sets. Used as the fallback when a principal record cannot be found but a
// claimed role is supplied out-of-band (stale credential tolerance).
var DefaultRolePermissions = map[string][]string{
	"admin": {PermAll},
	"editor": {
		PermProductsRead, PermProductsWrite,
		PermChangelogsRead, PermChangelogsWrite,
		PermCategoriesRead, PermCategoriesWrite,
		PermMediaRead, PermMediaWrite,
	},
	"viewer": {
		PermProductsRead, PermChangelogsRead,
		PermCategoriesRead, PermMediaRead,
	},
}

// IsValidPermission checks if a permission exists in the whitelist
func IsValidPermission(perm string) bool {
	return AllValidPermissions[perm]
}

// FilterValidPermissions drops unknown permission strings. A stored set
// containing a retired permission still resolves.
func FilterValidPermissions(perms []string) []string {
	filtered := make([]string, 0, len(perms))
	for _, p := range perms {
		if AllValidPermissions[p] {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// AllPermissions returns the permission whitelist as a sorted slice
func AllPermissions() []string {
	perms := make([]string, 0, len(AllValidPermissions))
	for p := range AllValidPermissions {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

// HasPermission checks if a permission set contains a required permission.
// Handles wildcard "*" for super-admin access.
func HasPermission(perms []string, required string) bool {
	for _, p := range perms {
		if p == PermAll {
			return true
		}
		if p == required {
			return true
		}
	}
	return false
}
