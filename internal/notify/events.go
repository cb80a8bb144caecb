// Package notify describes the events the service announces and delivers
// them to customers and staff over email and Slack.
package notify

import (
	"context"
	"time"
)

// Event names, also used as metric labels.
const (
	EventQuoteSubmitted     = "quote.submitted"
	EventQuoteStatusChanged = "quote.status_changed"
	EventBookingConfirmed   = "booking.confirmed"
)

// QuoteItem is one line of a submitted quote.
type QuoteItem struct {
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents *int64 `json:"unit_price_cents,omitempty"`
}

// QuoteSubmitted announces a new quote.
type QuoteSubmitted struct {
	QuoteID       string      `json:"quote_id"`
	QuoteNumber   string      `json:"quote_number"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	Province      string      `json:"province,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	Items         []QuoteItem `json:"items"`
	TotalCents    int64       `json:"total_cents"`
	SubmittedAt   time.Time   `json:"submitted_at"`
}

// QuoteStatusChanged announces an applied status transition.
type QuoteStatusChanged struct {
	QuoteID       string    `json:"quote_id"`
	QuoteNumber   string    `json:"quote_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Reason        string    `json:"reason,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}

// BookingConfirmed announces a confirmed measurement appointment.
type BookingConfirmed struct {
	BookingID          string    `json:"booking_id"`
	ConfirmationNumber string    `json:"confirmation_number"`
	QuoteNumber        string    `json:"quote_number,omitempty"`
	CustomerName       string    `json:"customer_name"`
	CustomerEmail      string    `json:"customer_email"`
	CustomerPhone      string    `json:"customer_phone"`
	Address            string    `json:"address"`
	ScheduledAt        time.Time `json:"scheduled_at"`
	DurationMinutes    int       `json:"duration_minutes"`
	ProjectDescription string    `json:"project_description,omitempty"`
}

// Dispatcher hands events to the delivery pipeline. Implementations must not
// block on delivery; callers treat a returned error as a dropped notification.
type Dispatcher interface {
	QuoteSubmitted(ctx context.Context, event QuoteSubmitted) error
	QuoteStatusChanged(ctx context.Context, event QuoteStatusChanged) error
	BookingConfirmed(ctx context.Context, event BookingConfirmed) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) QuoteSubmitted(context.Context, QuoteSubmitted) error         { return nil }
func (Nop) QuoteStatusChanged(context.Context, QuoteStatusChanged) error { return nil }
func (Nop) BookingConfirmed(context.Context, BookingConfirmed) error     { return nil }
