package shared

// Service ticket permissions.
const (
	PermViewTickets       = "view.tickets.enable"
	PermModifyTickets     = "modify.tickets.enable"
	PermCloseTickets      = "close.tickets.enable"
	PermHardDeleteTickets = "hardDelete.tickets.enable"
)

// TicketScopes lists all permissions related to service tickets.
func TicketScopes() []string {
	return []string{
		PermViewTickets,
		PermModifyTickets,
		PermCloseTickets,
		PermHardDeleteTickets,
	}
}
