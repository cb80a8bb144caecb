package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pgclosets/quote-service/internal/platform/httpx"
)

// Breakdown is a PricingResult in whole cents for display. Components are
// rounded half-up individually; the customer discount and tax absorb the
// residual cent so that MarkedUp - discounts = Subtotal and
// Subtotal + Installation + Delivery + Tax = Total hold exactly.
type Breakdown struct {
	MSRPCents             int64    `json:"msrp_cents"`
	MarkupCents           int64    `json:"markup_cents"`
	MarkedUpCents         int64    `json:"marked_up_cents"`
	VolumeDiscountCents   int64    `json:"volume_discount_cents"`
	CustomerDiscountCents int64    `json:"customer_discount_cents"`
	SubtotalCents         int64    `json:"subtotal_cents"`
	InstallationCents     int64    `json:"installation_cents"`
	DeliveryCents         int64    `json:"delivery_cents"`
	DeliveryZone          string   `json:"delivery_zone"`
	DeliveryWaived        bool     `json:"delivery_waived"`
	TaxRegion             string   `json:"tax_region"`
	TaxRate               string   `json:"tax_rate"`
	TaxCents              int64    `json:"tax_cents"`
	TotalCents            int64    `json:"total_cents"`
	SavingsCents          int64    `json:"savings_cents"`
	Fallbacks             []string `json:"fallbacks,omitempty"`
}

// Breakdown converts the exact result to display cents.
func (r PricingResult) Breakdown() Breakdown {
	b := Breakdown{
		MSRPCents:           roundCents(r.MSRPAmount),
		MarkedUpCents:       roundCents(r.MarkedUpPrice),
		VolumeDiscountCents: roundCents(r.VolumeDiscount),
		SubtotalCents:       roundCents(r.Subtotal),
		InstallationCents:   roundCents(r.Installation),
		DeliveryCents:       roundCents(r.DeliveryFee),
		DeliveryZone:        r.DeliveryZone,
		DeliveryWaived:      r.DeliveryWaived,
		TaxRegion:           r.TaxRegion,
		TaxRate:             r.TaxRate.String(),
		TotalCents:          r.TotalCents(),
		SavingsCents:        roundCents(r.Savings),
		Fallbacks:           r.Fallbacks,
	}
	b.MarkupCents = b.MarkedUpCents - b.MSRPCents
	b.CustomerDiscountCents = b.MarkedUpCents - b.VolumeDiscountCents - b.SubtotalCents
	b.TaxCents = b.TotalCents - b.SubtotalCents - b.InstallationCents - b.DeliveryCents
	return b
}

// EstimateLine is one priced product inside an Estimate.
type EstimateLine struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	Quantity    int       `json:"quantity"`
	Breakdown   Breakdown `json:"breakdown"`
}

// Estimate prices a multi-product order with one delivery for the order.
type Estimate struct {
	Lines     []EstimateLine   `json:"lines"`
	Totals    Breakdown        `json:"totals"`
	Financing []FinancingOffer `json:"financing,omitempty"`

	result PricingResult
}

// Result returns the exact aggregate behind Totals.
func (e Estimate) Result() PricingResult {
	return e.result
}

// Estimate prices every input, then settles delivery and tax once on the
// aggregate using the first line's postal code. Financing is attached when
// requested and the total qualifies.
func (c *Calculator) Estimate(inputs []PricingInput, includeFinancing bool) (Estimate, error) {
	if len(inputs) == 0 {
		return Estimate{}, httpx.NewValidationError("At least one product is required")
	}
	var messages []string
	for i, in := range inputs {
		if err := ValidateInput(in); err != nil {
			var verr *httpx.ValidationError
			if errors.As(err, &verr) {
				for _, m := range verr.Messages {
					messages = append(messages, fmt.Sprintf("products[%d]: %s", i, m))
				}
				continue
			}
			return Estimate{}, err
		}
	}
	if len(messages) > 0 {
		return Estimate{}, httpx.NewValidationError(messages...)
	}

	agg := PricingResult{
		BasePrice:     decimal.Zero,
		MSRPAmount:    decimal.Zero,
		MarkedUpPrice: decimal.Zero,
	}
	est := Estimate{Lines: make([]EstimateLine, 0, len(inputs))}
	for _, in := range inputs {
		line := c.priceLine(in)
		lineSettled := line
		c.settle(&lineSettled, line.Subtotal, line.Installation, in.PostalCode)
		est.Lines = append(est.Lines, EstimateLine{
			ProductID:   in.ProductID,
			ProductName: in.ProductName,
			Quantity:    in.Quantity,
			Breakdown:   lineSettled.Breakdown(),
		})

		agg.MSRPAmount = agg.MSRPAmount.Add(line.MSRPAmount)
		agg.MarkedUpPrice = agg.MarkedUpPrice.Add(line.MarkedUpPrice)
		agg.VolumeDiscount = agg.VolumeDiscount.Add(line.VolumeDiscount)
		agg.CustomerDiscount = agg.CustomerDiscount.Add(line.CustomerDiscount)
		agg.Subtotal = agg.Subtotal.Add(line.Subtotal)
		agg.Installation = agg.Installation.Add(line.Installation)
		for _, f := range line.Fallbacks {
			agg.Fallbacks = appendOnce(agg.Fallbacks, f)
		}
	}
	c.settle(&agg, agg.Subtotal, agg.Installation, inputs[0].PostalCode)

	est.result = agg
	est.Totals = agg.Breakdown()
	if includeFinancing {
		est.Financing = c.Financing(est.Totals.TotalCents)
	}
	return est, nil
}
