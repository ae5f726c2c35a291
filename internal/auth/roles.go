package auth

import "strings"

// Role is the canonical actor role. Client tokens arrive with many
// spellings ("STORE_OWNER", "store manager", "Admin"); they are normalized
// exactly once here, at the system boundary, and only canonical values
// travel downstream.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleStoreManager Role = "STORE_MANAGER"
	RolePlayer       Role = "PLAYER"
	RoleUnknown      Role = "UNKNOWN"
)

// NormalizeRole maps any observed role spelling to its canonical value.
func NormalizeRole(raw string) Role {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	cleaned = strings.ReplaceAll(cleaned, "-", "_")

	switch cleaned {
	case "ADMIN", "ADMINISTRATOR", "SUPERUSER", "HEADQUARTERS":
		return RoleAdmin
	case "STORE_MANAGER", "STORE_OWNER", "STOREMANAGER", "MANAGER", "OWNER":
		return RoleStoreManager
	case "PLAYER", "USER", "MEMBER", "CUSTOMER":
		return RolePlayer
	default:
		return RoleUnknown
	}
}

// CanMutateLedger reports whether a role may call mutating operations.
func (r Role) CanMutateLedger() bool {
	return r == RoleAdmin || r == RoleStoreManager
}

// CanDistribute reports whether a role may set store quotas. Only
// headquarters admins reallocate the tournament supply.
func (r Role) CanDistribute() bool {
	return r == RoleAdmin
}
