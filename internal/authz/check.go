package authz

import "github.com/google/uuid"

// Actor describes the authenticated caller on whose behalf an operation
// runs. Handlers resolve it once per request and thread it explicitly
// into services; nothing below the HTTP layer reads global state.
type Actor struct {
	ID                   uuid.UUID
	Email                string
	Role                 Role
	Permissions          []Permission
	AssignedUniversityID *uuid.UUID
}

// HasPermission reports whether the actor may exercise the permission.
// A nil actor is unauthenticated and holds nothing. Super admins hold
// every permission implicitly regardless of their stored set; stored
// sets are consulted only for admins. Pure and deterministic.
//
// This function and IsSuperAdmin are the only places in the codebase
// that inspect RoleSuperAdmin.
func HasPermission(actor *Actor, p Permission) bool {
	if actor == nil {
		return false
	}
	if actor.Role == RoleSuperAdmin {
		return true
	}
	if actor.Role != RoleAdmin {
		return false
	}
	for _, held := range actor.Permissions {
		if held == p {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the actor holds the super admin role.
// Operations reserved to super admins (user management, request review)
// gate on this rather than on a grantable permission.
func IsSuperAdmin(actor *Actor) bool {
	return actor != nil && actor.Role == RoleSuperAdmin
}
