// Package bookings schedules in-home measurement appointments.
package bookings

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status of a booking.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Booking is a confirmed measurement appointment.
type Booking struct {
	ID                 uuid.UUID  `json:"id"`
	ConfirmationNumber string     `json:"confirmation_number"`
	QuoteID            *uuid.UUID `json:"quote_id,omitempty"`
	QuoteNumber        string     `json:"quote_number,omitempty"`
	CustomerName       string     `json:"customer_name"`
	CustomerEmail      string     `json:"customer_email"`
	CustomerPhone      string     `json:"customer_phone"`
	Street             string     `json:"street"`
	City               string     `json:"city"`
	Province           string     `json:"province"`
	PostalCode         string     `json:"postal_code"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
	DurationMinutes    int        `json:"duration_minutes"`
	Status             Status     `json:"status"`
	ProjectDescription string     `json:"project_description,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Address formats the street address on one line.
func (b Booking) Address() string {
	parts := []string{b.Street, b.City}
	region := strings.TrimSpace(b.Province + " " + b.PostalCode)
	if region != "" {
		parts = append(parts, region)
	}
	return strings.Join(parts, ", ")
}

// Slot is one bookable start time on a day.
type Slot struct {
	Time      string    `json:"time"`
	StartsAt  time.Time `json:"starts_at"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
}

// Availability lists the slots of one local date.
type Availability struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}
