package quotes

import (
	"strings"

	"github.com/pgclosets/quote-service/internal/pricing"
)

// SubmitRequest is the public quote form.
type SubmitRequest struct {
	CustomerName  string            `json:"customer_name" validate:"required,min=2,max=120"`
	CustomerEmail string            `json:"customer_email" validate:"required,email,max=254"`
	CustomerPhone string            `json:"customer_phone" validate:"omitempty,max=32"`
	Province      string            `json:"province" validate:"omitempty,len=2,alpha"`
	Notes         string            `json:"notes" validate:"max=2000"`
	Items         []LineItemRequest `json:"items" validate:"min=1,max=50,dive"`
}

// LineItemRequest is one product on the quote form.
type LineItemRequest struct {
	ProductID      string         `json:"product_id" validate:"required,max=100"`
	Name           string         `json:"name" validate:"required,max=200"`
	Quantity       int            `json:"quantity" validate:"gt=0,lte=100"`
	UnitPriceCents *int64         `json:"unit_price_cents" validate:"omitempty,gte=0,lte=100000000"`
	Category       string         `json:"category" validate:"max=100"`
	Options        map[string]any `json:"options"`
}

// Normalize trims free text and upper-cases the province.
func (r *SubmitRequest) Normalize() {
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.ToLower(strings.TrimSpace(r.CustomerEmail))
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.Province = strings.ToUpper(strings.TrimSpace(r.Province))
	r.Notes = strings.TrimSpace(r.Notes)
	for i := range r.Items {
		r.Items[i].ProductID = strings.TrimSpace(r.Items[i].ProductID)
		r.Items[i].Name = strings.TrimSpace(r.Items[i].Name)
		r.Items[i].Category = strings.TrimSpace(r.Items[i].Category)
	}
}

// SubmitResponse is returned on creation.
type SubmitResponse struct {
	Success     bool   `json:"success"`
	ID          string `json:"id"`
	QuoteNumber string `json:"quote_number"`
}

// StatusUpdateRequest moves a quote through the lifecycle.
type StatusUpdateRequest struct {
	Status       Status `json:"status" validate:"required"`
	From         Status `json:"from"`
	Reason       string `json:"reason" validate:"max=500"`
	InternalNote string `json:"internal_note" validate:"max=2000"`
	Override     bool   `json:"override"`
}

// StatusUpdateResponse reports the quote after the update.
type StatusUpdateResponse struct {
	Success bool   `json:"success"`
	Changed bool   `json:"changed"`
	Quote   *Quote `json:"quote"`
}

// ListRequest filters the admin listing.
type ListRequest struct {
	Status  Status
	Email   string
	Page    int
	PerPage int
}

func (r ListRequest) limitOffset() (int, int) {
	perPage := r.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	page := r.Page
	if page <= 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}

// EstimateRequest prices a set of products without storing anything.
type EstimateRequest struct {
	Products         []pricing.PricingInput `json:"products" validate:"min=1,max=20,dive"`
	IncludeFinancing bool                   `json:"include_financing"`
}

// PaymentEvent is the body posted by the payment provider.
type PaymentEvent struct {
	ID          string `json:"id" validate:"required"`
	Type        string `json:"type" validate:"required"`
	QuoteNumber string `json:"quote_number" validate:"required"`
	AmountCents int64  `json:"amount_cents"`
}

// PaymentEventTypeSucceeded converts the referenced quote.
const PaymentEventTypeSucceeded = "payment.succeeded"

// PaymentResult reports what the webhook did.
type PaymentResult struct {
	Success   bool   `json:"success"`
	Applied   bool   `json:"applied"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Status    Status `json:"status,omitempty"`
}
