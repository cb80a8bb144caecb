package quotes

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a quote lifecycle state.
type Status string

const (
	StatusPending               Status = "pending"
	StatusContacted             Status = "contacted"
	StatusQuoted                Status = "quoted"
	StatusMeasurementScheduled  Status = "measurement_scheduled"
	StatusInstallationScheduled Status = "installation_scheduled"
	StatusInstalled             Status = "installed"
	StatusConverted             Status = "converted"
	StatusCancelled             Status = "cancelled"
)

// Statuses lists every state in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusContacted,
	StatusQuoted,
	StatusMeasurementScheduled,
	StatusInstallationScheduled,
	StatusInstalled,
	StatusConverted,
	StatusCancelled,
}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusConverted || s == StatusCancelled
}

// ValidityPeriod is how long quoted prices are honoured.
const ValidityPeriod = 30 * 24 * time.Hour

// LineItem is one requested product. Items never change after submission.
type LineItem struct {
	ProductID      string         `json:"product_id"`
	Name           string         `json:"name"`
	Quantity       int            `json:"quantity"`
	UnitPriceCents *int64         `json:"unit_price_cents,omitempty"`
	Category       string         `json:"category,omitempty"`
	Options        map[string]any `json:"options,omitempty"`
}

// LineTotalCents is unit price times quantity, zero when unpriced.
func (li LineItem) LineTotalCents() int64 {
	if li.UnitPriceCents == nil {
		return 0
	}
	return *li.UnitPriceCents * int64(li.Quantity)
}

// Quote is a customer's request for pricing.
type Quote struct {
	ID            uuid.UUID  `json:"id"`
	QuoteNumber   string     `json:"quote_number"`
	OwnerID       *int64     `json:"owner_id,omitempty"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Province      string     `json:"province,omitempty"`
	Items         []LineItem `json:"items"`
	Notes         string     `json:"notes,omitempty"`
	InternalNotes string     `json:"internal_notes,omitempty"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TotalCents is the sum of every priced line.
func (q Quote) TotalCents() int64 {
	var total int64
	for _, item := range q.Items {
		total += item.LineTotalCents()
	}
	return total
}

// ValidUntil is the last day the quoted prices apply.
func (q Quote) ValidUntil() time.Time {
	return q.CreatedAt.Add(ValidityPeriod)
}

// QuoteSummary is a quote row without its items, used in listings.
type QuoteSummary struct {
	ID            uuid.UUID `json:"id"`
	QuoteNumber   string    `json:"quote_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Province      string    `json:"province,omitempty"`
	Status        Status    `json:"status"`
	ItemCount     int       `json:"item_count"`
	TotalCents    int64     `json:"total_cents"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusLogEntry records one applied transition. Entries are insert-only.
type StatusLogEntry struct {
	ID        int64     `json:"id"`
	QuoteID   uuid.UUID `json:"quote_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	ActorID   *int64    `json:"actor_id"`
	Override  bool      `json:"override"`
	CreatedAt time.Time `json:"created_at"`
}

// Viewer identifies who is reading quotes.
type Viewer struct {
	UserID *int64
	Email  string
	Admin  bool
}

// CanRead reports whether v may see q. Owners match by account id or by
// the verified email of their session.
func (v Viewer) CanRead(q *Quote) bool {
	if v.Admin {
		return true
	}
	if v.UserID != nil && q.OwnerID != nil && *v.UserID == *q.OwnerID {
		return true
	}
	return v.Email != "" && strings.EqualFold(v.Email, q.CustomerEmail)
}
