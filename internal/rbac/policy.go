package rbac

// Authorization predicates. Pure functions of the principal's role list with
// compiled-in allow-lists, so the set of protected actions and their required
// roles reads as static code rather than a runtime-mutable table.

// CanCreateAudit: clients file their own requests; auditors and admins may
// file on a client's behalf.
func CanCreateAudit(p Principal) bool {
	return p.HasRole(RoleCliente, RoleAuditor, RoleAdmin)
}

// CanReviewAudit gates status transitions on audit requests.
func CanReviewAudit(p Principal) bool {
	return p.HasRole(RoleAdmin, RoleAuditor)
}

// CanViewAllAudits distinguishes reviewers from owners: anyone else only
// sees their own requests.
func CanViewAllAudits(p Principal) bool {
	return p.HasRole(RoleAdmin, RoleAuditor)
}

// CanViewOwnAudit covers the owner-scoped read path.
func CanViewOwnAudit(p Principal) bool {
	return p.HasRole(RoleCliente, RoleSoporte)
}

// CanManageMeetings: every role may schedule meetings for itself.
func CanManageMeetings(p Principal) bool {
	return p.HasRole(RoleAdmin, RoleAuditor, RoleCliente, RoleSoporte)
}

// CanReadCompliance grants the full compliance history.
func CanReadCompliance(p Principal) bool {
	return p.HasRole(RoleAdmin, RoleAuditor)
}

// CanReadComplianceAsClient grants the summarized single-entry view.
func CanReadComplianceAsClient(p Principal) bool {
	return p.HasRole(RoleCliente)
}

// CanManageUsers gates the admin user listing and role management.
func CanManageUsers(p Principal) bool {
	return p.HasRole(RoleAdmin)
}
