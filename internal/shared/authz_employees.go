package shared

// Employee management permissions.
const (
	PermViewEmployees       = "view.employees.enable"
	PermModifyEmployees     = "modify.employees.enable"
	PermAssignRoles         = "assign.employee_roles.enable"
	PermManageGrants        = "manage.role_grants.enable"
	PermViewAuditTrail      = "view.audit_trail.enable"
	PermHardDeleteEmployees = "hardDelete.employees.enable"
)

// EmployeeScopes lists all permissions related to employee management,
// including the administrative grant/audit surface.
func EmployeeScopes() []string {
	return []string{
		PermViewEmployees,
		PermModifyEmployees,
		PermAssignRoles,
		PermManageGrants,
		PermViewAuditTrail,
		PermHardDeleteEmployees,
	}
}
