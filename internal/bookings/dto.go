package bookings

import "strings"

// CreateRequest is the public booking form.
type CreateRequest struct {
	QuoteNumber        string `json:"quote_number" validate:"max=40"`
	CustomerName       string `json:"customer_name" validate:"required,min=2,max=120"`
	CustomerEmail      string `json:"customer_email" validate:"required,email,max=254"`
	CustomerPhone      string `json:"customer_phone" validate:"required,max=32"`
	Street             string `json:"street" validate:"required,max=200"`
	City               string `json:"city" validate:"required,max=100"`
	Province           string `json:"province" validate:"required,oneof=AB BC MB NB NL NS NT NU ON PE QC SK YT"`
	PostalCode         string `json:"postal_code" validate:"required,postcode_iso3166_alpha2=CA"`
	Date               string `json:"date" validate:"required"`
	Time               string `json:"time" validate:"required"`
	ProjectDescription string `json:"project_description" validate:"max=2000"`
	Notes              string `json:"notes" validate:"max=2000"`
}

// Normalize trims the form and canonicalises codes.
func (r *CreateRequest) Normalize() {
	r.QuoteNumber = strings.ToUpper(strings.TrimSpace(r.QuoteNumber))
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.ToLower(strings.TrimSpace(r.CustomerEmail))
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.Street = strings.TrimSpace(r.Street)
	r.City = strings.TrimSpace(r.City)
	r.Province = strings.ToUpper(strings.TrimSpace(r.Province))
	r.PostalCode = strings.ToUpper(strings.TrimSpace(r.PostalCode))
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	r.ProjectDescription = strings.TrimSpace(r.ProjectDescription)
	r.Notes = strings.TrimSpace(r.Notes)
}

// CreateResponse confirms a booking.
type CreateResponse struct {
	Success            bool   `json:"success"`
	ID                 string `json:"id"`
	ConfirmationNumber string `json:"confirmation_number"`
	ScheduledAt        string `json:"scheduled_at"`
	DurationMinutes    int    `json:"duration_minutes"`
	Status             Status `json:"status"`
	QuoteStatus        string `json:"quote_status,omitempty"`
}
