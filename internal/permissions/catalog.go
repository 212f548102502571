package permissions

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldline-hq/fieldline/internal/shared"
)

// Definition describes one catalog entry before it is persisted.
type Definition struct {
	Key         string
	Description string
}

// ParseKey splits a permission key into its action, resource and qualifier
// segments, validating the <action>.<resource>.<qualifier> format.
func ParseKey(key string) (action, resource, qualifier string, err error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// HardDeleteOverrideKey returns the override permission that bypasses the
// last-record guard for the given resource type.
func HardDeleteOverrideKey(resourceType string) string {
	return "hardDelete." + resourceType + ".enable"
}

// Catalog returns the full set of permission definitions shipped with the
// platform. Descriptions are operator-facing; the keys themselves are the
// contract with calling code.
func Catalog() []Definition {
	descriptions := map[string]string{
		shared.PermViewBusinesses:             "View business records",
		shared.PermModifyBusinesses:           "Create and edit business records",
		shared.PermDeactivateBusinesses:       "Deactivate business records",
		shared.PermHardDeleteBusinesses:       "Permanently delete business records, overriding last-record protection",
		shared.PermViewServiceLocations:       "View service locations",
		shared.PermModifyServiceLocations:     "Create and edit service locations",
		shared.PermHardDeleteServiceLocations: "Permanently delete service locations, overriding last-record protection",
		shared.PermViewTickets:                "View service tickets",
		shared.PermModifyTickets:              "Create and edit service tickets",
		shared.PermCloseTickets:               "Close service tickets",
		shared.PermHardDeleteTickets:          "Permanently delete service tickets",
		shared.PermViewInvoices:               "View invoices",
		shared.PermModifyInvoices:             "Create and edit invoices",
		shared.PermVoidInvoices:               "Void issued invoices",
		shared.PermViewReports:                "View billing and operations reports",
		shared.PermViewEmployees:              "View employee records",
		shared.PermModifyEmployees:            "Create and edit employee records",
		shared.PermAssignRoles:                "Assign and remove employee roles",
		shared.PermManageGrants:               "Grant and revoke role permissions",
		shared.PermViewAuditTrail:             "View audit trails and security events",
		shared.PermHardDeleteEmployees:        "Permanently delete employee records, overriding last-record protection",
	}

	var keys []string
	keys = append(keys, shared.BusinessScopes()...)
	keys = append(keys, shared.ServiceLocationScopes()...)
	keys = append(keys, shared.TicketScopes()...)
	keys = append(keys, shared.BillingScopes()...)
	keys = append(keys, shared.EmployeeScopes()...)

	defs := make([]Definition, 0, len(keys))
	for _, key := range keys {
		defs = append(defs, Definition{Key: key, Description: descriptions[key]})
	}
	return defs
}

// CatalogSeeder upserts catalog definitions. Implemented by the Repository;
// kept as an interface so seeding can be tested without a database.
type CatalogSeeder interface {
	UpsertPermissions(ctx context.Context, defs []Definition) error
}

// SeedCatalog writes the full catalog through the seeder. The upsert is
// idempotent: re-running it must not create duplicates or alter unrelated
// fields, so it is safe to call on every deployment.
func SeedCatalog(ctx context.Context, seeder CatalogSeeder) error {
	defs := Catalog()
	for _, def := range defs {
		if _, _, _, err := ParseKey(def.Key); err != nil {
			return err
		}
	}
	if err := seeder.UpsertPermissions(ctx, defs); err != nil {
		return fmt.Errorf("permissions: seed catalog: %w", err)
	}
	return nil
}
