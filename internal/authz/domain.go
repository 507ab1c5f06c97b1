package authz

import "fmt"

// Role is the closed set of account roles.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleStudent    Role = "student"
)

// ParseRole validates a raw role value at the boundary.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleSuperAdmin, RoleAdmin, RoleStudent:
		return Role(raw), nil
	}
	return "", fmt.Errorf("authz: unknown role %q", raw)
}

// Permission is an atomic grantable capability. The catalog is closed:
// grants outside this set are rejected at the boundary.
type Permission string

const (
	PermCreateMaterial     Permission = "create_material"
	PermEditMaterial       Permission = "edit_material"
	PermDeleteMaterial     Permission = "delete_material"
	PermManageCourses      Permission = "manage_courses"
	PermManageUniversities Permission = "manage_universities"
	PermManageUsers        Permission = "manage_users"
	PermViewAllContent     Permission = "view_all_content"
)

// AllPermissions returns the full catalog in stable order.
func AllPermissions() []Permission {
	return []Permission{
		PermCreateMaterial,
		PermEditMaterial,
		PermDeleteMaterial,
		PermManageCourses,
		PermManageUniversities,
		PermManageUsers,
		PermViewAllContent,
	}
}

// ParsePermission validates a raw permission value at the boundary.
func ParsePermission(raw string) (Permission, error) {
	for _, p := range AllPermissions() {
		if Permission(raw) == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("authz: unknown permission %q", raw)
}
