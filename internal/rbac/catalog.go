package rbac

// PermissionCatalog is the fixed permission set, provisioned idempotently at
// startup. Order is stable so derived lists serialize deterministically.
var PermissionCatalog = []Permission{
	PermAuditsRead,
	PermAuditsWrite,
	PermAuditsReview,
	PermFilesUpload,
	PermFilesReview,
	PermNotificationsRead,
	PermMeetingsManage,
	PermComplianceRead,
	PermReportsManage,
	PermTicketsManage,
	PermTicketsRead,
}

// RolePermissions is the compiled-in role to permission table. It is the
// single authority for what each role can do; nothing mutates it at runtime,
// which keeps the authorization surface reviewable as static code.
var RolePermissions = map[Role][]Permission{
	RoleAdmin: PermissionCatalog,
	RoleAuditor: {
		PermAuditsRead,
		PermAuditsWrite,
		PermAuditsReview,
		PermFilesUpload,
		PermFilesReview,
		PermNotificationsRead,
		PermMeetingsManage,
		PermComplianceRead,
		PermReportsManage,
		PermTicketsRead,
	},
	RoleCliente: {
		PermAuditsRead,
		PermAuditsWrite,
		PermFilesUpload,
		PermNotificationsRead,
		PermMeetingsManage,
		PermTicketsManage,
	},
	RoleSoporte: {
		PermTicketsManage,
		PermNotificationsRead,
		PermAuditsRead,
		PermMeetingsManage,
	},
}
