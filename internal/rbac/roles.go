package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin      = "admin"
	RoleCommander  = "commander"
	RoleAnalyst    = "analyst" // read-only triage and statistics
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// IsAdmin reports whether role may triage, assign and resolve.
func IsAdmin(role string) bool { return role == RoleAdmin || role == RoleSuperAdmin }

func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleCommander, RoleAnalyst, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
