// Package pricing computes closet-door quotes: markup, volume and customer
// discounts, installation, delivery zones, regional tax and financing.
//
// Amounts are carried as exact decimals of cents and rounded half-up to whole
// cents only when a total is produced.
package pricing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pgclosets/quote-service/internal/platform/httpx"
)

var postalCodePattern = regexp.MustCompile(`^[A-Za-z]\d[A-Za-z][ -]?\d[A-Za-z]\d$`)

// Opening limits in inches.
const (
	MinWidthIn   = 12
	MaxWidthIn   = 120
	MinHeightIn  = 60
	MaxHeightIn  = 120
	MaxQuantity  = 50
	squareInches = 144
)

// Fallback names recorded on a result when a documented default was used.
const (
	FallbackCustomerType = "customer_type"
	FallbackDoorType     = "door_type"
	FallbackDeliveryZone = "delivery_zone"
	FallbackTaxRegion    = "tax_region"
)

// PricingInput describes one product configuration to price.
type PricingInput struct {
	ProductID           string       `json:"product_id" validate:"required,max=100"`
	ProductName         string       `json:"product_name" validate:"max=200"`
	MSRPCents           int64        `json:"msrp_cents" validate:"gte=0"`
	WidthIn             float64      `json:"width_in" validate:"gte=12,lte=120"`
	HeightIn            float64      `json:"height_in" validate:"gte=60,lte=120"`
	Quantity            int          `json:"quantity" validate:"gt=0,lte=50"`
	IncludeInstallation bool         `json:"include_installation"`
	CustomerType        CustomerType `json:"customer_type"`
	PostalCode          string       `json:"postal_code" validate:"required"`
	DoorType            string       `json:"door_type" validate:"max=50"`
}

// PricingResult is the exact outcome of pricing one input. All amounts are
// in cents.
type PricingResult struct {
	// BasePrice is the marked-up unit price, MSRP * (1 + markup).
	BasePrice decimal.Decimal
	// MSRPAmount is MSRP * quantity.
	MSRPAmount decimal.Decimal
	// MarkedUpPrice is BasePrice * quantity, the amount both discounts apply to.
	MarkedUpPrice decimal.Decimal

	VolumeDiscountRate   decimal.Decimal
	VolumeDiscount       decimal.Decimal
	CustomerDiscountRate decimal.Decimal
	CustomerDiscount     decimal.Decimal
	// Subtotal is MarkedUpPrice less both discounts.
	Subtotal decimal.Decimal

	Installation   decimal.Decimal
	DeliveryZone   string
	DeliveryFee    decimal.Decimal
	DeliveryWaived bool
	TaxRegion      string
	TaxRate        decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	Savings        decimal.Decimal

	Fallbacks []string
}

// Discounts is the sum of both discounts.
func (r PricingResult) Discounts() decimal.Decimal {
	return r.VolumeDiscount.Add(r.CustomerDiscount)
}

// TotalCents is Total rounded half-up to a whole cent.
func (r PricingResult) TotalCents() int64 {
	return roundCents(r.Total)
}

// Calculator prices inputs against a fixed rule table. It holds no mutable
// state and is safe for concurrent use.
type Calculator struct {
	rules    Rules
	discount DiscountEngine
}

// NewCalculator validates rules and returns a calculator over them.
func NewCalculator(rules Rules) (*Calculator, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{rules: rules, discount: NewDiscountEngine(rules)}, nil
}

// Calculate prices a single input including its own delivery and tax.
func (c *Calculator) Calculate(in PricingInput) (PricingResult, error) {
	if err := ValidateInput(in); err != nil {
		return PricingResult{}, err
	}
	res := c.priceLine(in)
	c.settle(&res, res.Subtotal, res.Installation, in.PostalCode)
	return res, nil
}

// ValidateInput rejects inputs the calculator cannot price.
func ValidateInput(in PricingInput) error {
	var messages []string
	if in.Quantity <= 0 {
		messages = append(messages, "quantity must be greater than 0")
	} else if in.Quantity > MaxQuantity {
		messages = append(messages, fmt.Sprintf("quantity must be at most %d", MaxQuantity))
	}
	if in.MSRPCents < 0 {
		messages = append(messages, "msrp_cents must not be negative")
	}
	if in.WidthIn < MinWidthIn || in.WidthIn > MaxWidthIn {
		messages = append(messages, fmt.Sprintf("width_in must be between %d and %d", MinWidthIn, MaxWidthIn))
	}
	if in.HeightIn < MinHeightIn || in.HeightIn > MaxHeightIn {
		messages = append(messages, fmt.Sprintf("height_in must be between %d and %d", MinHeightIn, MaxHeightIn))
	}
	if !postalCodePattern.MatchString(strings.TrimSpace(in.PostalCode)) {
		messages = append(messages, "Invalid Canadian postal code")
	}
	if len(messages) > 0 {
		return httpx.NewValidationError(messages...)
	}
	return nil
}

// priceLine computes everything up to installation for one input.
func (c *Calculator) priceLine(in PricingInput) PricingResult {
	qty := decimal.NewFromInt(int64(in.Quantity))
	msrp := decimal.NewFromInt(in.MSRPCents)

	res := PricingResult{}
	res.BasePrice = msrp.Mul(decimal.NewFromInt(1).Add(c.rules.MarkupRate))
	res.MSRPAmount = msrp.Mul(qty)
	res.MarkedUpPrice = res.BasePrice.Mul(qty)

	disc := c.discount.For(in.Quantity, in.CustomerType)
	if disc.CustomerDefaulted {
		res.Fallbacks = append(res.Fallbacks, FallbackCustomerType)
	}
	res.VolumeDiscountRate = disc.VolumeRate
	res.CustomerDiscountRate = disc.CustomerRate
	res.VolumeDiscount = res.MarkedUpPrice.Mul(disc.VolumeRate)
	res.CustomerDiscount = res.MarkedUpPrice.Mul(disc.CustomerRate)
	res.Subtotal = res.MarkedUpPrice.Sub(res.Discounts())

	res.Installation = decimal.Zero
	if in.IncludeInstallation {
		rate, ok := c.rules.InstallationRates[normalizeDoorType(in.DoorType)]
		if !ok {
			rate = c.rules.InstallationRates[StandardDoorType]
			res.Fallbacks = append(res.Fallbacks, FallbackDoorType)
		}
		area := decimal.NewFromFloat(in.WidthIn).
			Mul(decimal.NewFromFloat(in.HeightIn)).
			Div(decimal.NewFromInt(squareInches))
		perUnit := rate.BaseCents.Add(rate.PerSquareFootCents.Mul(area))
		res.Installation = perUnit.Mul(qty)
	}
	return res
}

// settle applies delivery and tax for the given goods and installation
// amounts and fills in the total and savings.
func (c *Calculator) settle(res *PricingResult, subtotal, installation decimal.Decimal, postalCode string) {
	code := normalizePostalCode(postalCode)

	zone, zoneFound := c.deliveryZone(code)
	if !zoneFound {
		res.Fallbacks = appendOnce(res.Fallbacks, FallbackDeliveryZone)
	}
	res.DeliveryZone = zone.Name
	zoneFee := decimal.NewFromInt(zone.FeeCents)
	res.DeliveryFee = zoneFee
	res.DeliveryWaived = false
	if zone.FreeThresholdCents > 0 && subtotal.Add(installation).GreaterThanOrEqual(decimal.NewFromInt(zone.FreeThresholdCents)) {
		res.DeliveryFee = decimal.Zero
		res.DeliveryWaived = zoneFee.IsPositive()
	}

	region, regionFound := c.taxRegion(code)
	if !regionFound {
		res.Fallbacks = appendOnce(res.Fallbacks, FallbackTaxRegion)
	}
	res.TaxRegion = region.Code
	res.TaxRate = region.Rate

	taxable := subtotal.Add(installation).Add(res.DeliveryFee)
	res.Tax = taxable.Mul(region.Rate)
	res.Total = taxable.Add(res.Tax)

	res.Savings = res.Discounts()
	if res.DeliveryWaived {
		res.Savings = res.Savings.Add(zoneFee)
	}
}

func (c *Calculator) deliveryZone(postalCode string) (DeliveryZone, bool) {
	if len(postalCode) >= 3 {
		prefix := postalCode[:3]
		for _, zone := range c.rules.DeliveryZones {
			if zone.matches(prefix) {
				return zone, true
			}
		}
	}
	return c.rules.DefaultDelivery, false
}

func (c *Calculator) taxRegion(postalCode string) (TaxRegion, bool) {
	if postalCode != "" {
		letter := rune(postalCode[0])
		for _, region := range c.rules.TaxRegions {
			if strings.ContainsRune(region.Letters, letter) {
				return region, true
			}
		}
	}
	return c.rules.taxRegion(c.rules.DefaultTaxRegion), false
}

func normalizePostalCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer(" ", "", "-", "").Replace(code)
}

func appendOnce(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// roundCents rounds half-up. Amounts are never negative, so shopspring's
// half-away-from-zero rounding is half-up here.
func roundCents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
