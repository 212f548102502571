package shared

// Service location permissions.
const (
	PermViewServiceLocations       = "view.service_locations.enable"
	PermModifyServiceLocations     = "modify.service_locations.enable"
	PermHardDeleteServiceLocations = "hardDelete.service_locations.enable"
)

// ServiceLocationScopes lists all permissions related to service locations.
func ServiceLocationScopes() []string {
	return []string{
		PermViewServiceLocations,
		PermModifyServiceLocations,
		PermHardDeleteServiceLocations,
	}
}
