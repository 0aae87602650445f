package rbac

import "time"

// Role is one of the fixed roles of the audit-tracking application. The set
// is closed: roles are provisioned at startup and never created at runtime.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleAuditor Role = "AUDITOR"
	RoleCliente Role = "CLIENTE"
	RoleSoporte Role = "SOPORTE"
)

// Roles lists every role in catalog order.
var Roles = []Role{RoleAdmin, RoleAuditor, RoleCliente, RoleSoporte}

// ParseRole validates a role name coming from the outside.
func ParseRole(name string) (Role, bool) {
	r := Role(name)
	for _, known := range Roles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// Permission is a fine-grained capability key. Permissions are never granted
// to users directly, only through roles.
type Permission string

const (
	PermAuditsRead        Permission = "audits.read"
	PermAuditsWrite       Permission = "audits.write"
	PermAuditsReview      Permission = "audits.review"
	PermFilesUpload       Permission = "files.upload"
	PermFilesReview       Permission = "files.review"
	PermNotificationsRead Permission = "notifications.read"
	PermMeetingsManage    Permission = "meetings.manage"
	PermComplianceRead    Permission = "compliance.read"
	PermReportsManage     Permission = "reports.manage"
	PermTicketsManage     Permission = "tickets.manage"
	PermTicketsRead       Permission = "tickets.read"
)

// User is an account holder. Users are soft-disabled, never deleted, and
// carry a version counter for optimistic locking on credential updates.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Principal is a user with resolved roles and effective permissions: the
// deduplicated union of the permissions of every assigned role.
type Principal struct {
	User        User
	Roles       []Role
	Permissions map[Permission]struct{}
}

// HasRole reports membership of any of the given roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// HasPermission reports whether the principal holds the capability.
func (p Principal) HasPermission(perm Permission) bool {
	_, ok := p.Permissions[perm]
	return ok
}

// PermissionKeys returns the effective permissions as sorted-insertion keys
// for serialization.
func (p Principal) PermissionKeys() []string {
	out := make([]string, 0, len(p.Permissions))
	for _, perm := range PermissionCatalog {
		if _, ok := p.Permissions[perm]; ok {
			out = append(out, string(perm))
		}
	}
	return out
}
