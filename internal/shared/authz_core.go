package shared

// Back office permissions.
const (
	PermQuotesView         = "quotes.view"
	PermQuotesStatusUpdate = "quotes.status.update"
	PermQuotesExport       = "quotes.export"
	PermBookingsView       = "bookings.view"
)

// AdminScopes lists every permission granted to the admin role.
func AdminScopes() []string {
	return []string{
		PermQuotesView,
		PermQuotesStatusUpdate,
		PermQuotesExport,
		PermBookingsView,
	}
}
