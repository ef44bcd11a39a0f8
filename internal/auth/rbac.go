package auth

import "github.com/safespace/server/internal/model"

var roleRank = map[model.Role]int{
	model.RoleGuest: 0,
	model.RoleUser:  1,
	model.RoleAdmin: 2,
}

// IsAuthorized reports whether userRole meets the required role.
// Hierarchy: admin > user > guest. An empty role counts as guest; an unknown
// role satisfies nothing.
func IsAuthorized(userRole, required model.Role) bool {
	if userRole == "" {
		userRole = model.RoleGuest
	}
	rank, ok := roleRank[userRole]
	if !ok {
		return false
	}
	need, ok := roleRank[required]
	if !ok {
		return false
	}
	return rank >= need
}
