package shared

// Billing permissions.
const (
	PermViewInvoices   = "view.invoices.enable"
	PermModifyInvoices = "modify.invoices.enable"
	PermVoidInvoices   = "void.invoices.enable"
	PermViewReports    = "view.reports.enable"
)

// BillingScopes lists all permissions related to billing.
func BillingScopes() []string {
	return []string{
		PermViewInvoices,
		PermModifyInvoices,
		PermVoidInvoices,
		PermViewReports,
	}
}
