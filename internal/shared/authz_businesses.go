package shared

// Business record permissions declared for the access-control catalog.
// Key format is <action>.<resource>.<qualifier> and is the wire contract
// with every caller; renaming a key requires migrating existing grants.
const (
	PermViewBusinesses       = "view.businesses.enable"
	PermModifyBusinesses     = "modify.businesses.enable"
	PermDeactivateBusinesses = "deactivate.businesses.enable"
	PermHardDeleteBusinesses = "hardDelete.businesses.enable"
)

// BusinessScopes lists all permissions related to business records.
func BusinessScopes() []string {
	return []string{
		PermViewBusinesses,
		PermModifyBusinesses,
		PermDeactivateBusinesses,
		PermHardDeleteBusinesses,
	}
}
