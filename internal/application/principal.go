package application

import "slices"

// RoleAdmin grants room management and booking decisions.
const RoleAdmin = "admin"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID   int64
	Username string
	Roles    []string
}

// HasRoles reports whether the principal holds every required role.
func (p Principal) HasRoles(required ...string) bool {
	for _, role := range required {
		if !slices.Contains(p.Roles, role) {
			return false
		}
	}
	return true
}

// IsAdmin reports whether the principal holds RoleAdmin.
func (p Principal) IsAdmin() bool {
	return p.HasRoles(RoleAdmin)
}

// UserMayAccessRoom reports whether roles permit booking room. A room with no
// allowed roles is open to everyone; otherwise one shared role suffices.
func UserMayAccessRoom(room Room, roles []string) bool {
	if len(room.AllowedRoles) == 0 {
		return true
	}
	for _, role := range roles {
		if slices.Contains(room.AllowedRoles, role) {
			return true
		}
	}
	return false
}
