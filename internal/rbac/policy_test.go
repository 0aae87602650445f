package rbac

import "testing"

func principalWith(roles ...Role) Principal {
	perms := make(map[Permission]struct{})
	for _, role := range roles {
		for _, perm := range RolePermissions[role] {
			perms[perm] = struct{}{}
		}
	}
	return Principal{Roles: roles, Permissions: perms}
}

func TestRolePermissionsMatchesCatalog(t *testing.T) {
	known := make(map[Permission]struct{}, len(PermissionCatalog))
	for _, perm := range PermissionCatalog {
		known[perm] = struct{}{}
	}
	for role, perms := range RolePermissions {
		seen := make(map[Permission]struct{}, len(perms))
		for _, perm := range perms {
			if _, ok := known[perm]; !ok {
				t.Fatalf("role %s grants unknown permission %s", role, perm)
			}
			if _, dup := seen[perm]; dup {
				t.Fatalf("role %s grants %s twice", role, perm)
			}
			seen[perm] = struct{}{}
		}
	}
	if got, want := len(RolePermissions[RoleAdmin]), len(PermissionCatalog); got != want {
		t.Fatalf("admin should hold every permission: got %d want %d", got, want)
	}
}

func TestPolicyPredicates(t *testing.T) {
	cases := []struct {
		name  string
		check func(Principal) bool
		allow []Role
	}{
		{"create audit", CanCreateAudit, []Role{RoleCliente, RoleAuditor, RoleAdmin}},
		{"review audit", CanReviewAudit, []Role{RoleAdmin, RoleAuditor}},
		{"view all audits", CanViewAllAudits, []Role{RoleAdmin, RoleAuditor}},
		{"view own audit", CanViewOwnAudit, []Role{RoleCliente, RoleSoporte}},
		{"manage meetings", CanManageMeetings, []Role{RoleAdmin, RoleAuditor, RoleCliente, RoleSoporte}},
		{"read compliance", CanReadCompliance, []Role{RoleAdmin, RoleAuditor}},
		{"read compliance as client", CanReadComplianceAsClient, []Role{RoleCliente}},
		{"manage users", CanManageUsers, []Role{RoleAdmin}},
	}
	for _, tc := range cases {
		allowed := make(map[Role]bool, len(tc.allow))
		for _, role := range tc.allow {
			allowed[role] = true
		}
		for _, role := range Roles {
			got := tc.check(principalWith(role))
			if got != allowed[role] {
				t.Errorf("%s: role %s got %v want %v", tc.name, role, got, allowed[role])
			}
		}
		if tc.check(principalWith()) {
			t.Errorf("%s: principal without roles must be denied", tc.name)
		}
	}
}

func TestPermissionUnionAcrossRoles(t *testing.T) {
	p := principalWith(RoleCliente, RoleSoporte)
	for _, perm := range []Permission{PermAuditsRead, PermAuditsWrite, PermTicketsManage, PermMeetingsManage} {
		if !p.HasPermission(perm) {
			t.Errorf("union principal missing %s", perm)
		}
	}
	if p.HasPermission(PermAuditsReview) {
		t.Error("union principal must not gain review permission")
	}
	// Duplicate grants collapse: tickets.manage comes from both roles.
	keys := p.PermissionKeys()
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("duplicate permission key %s", k)
		}
		seen[k] = true
	}
}

func TestParseRole(t *testing.T) {
	if _, ok := ParseRole("ADMIN"); !ok {
		t.Fatal("ADMIN should parse")
	}
	for _, bad := range []string{"admin", "ROOT", ""} {
		if _, ok := ParseRole(bad); ok {
			t.Fatalf("%q should not parse", bad)
		}
	}
}
