package pricing

import "github.com/shopspring/decimal"

// Discounts are the rates that apply to one order line. Both rates apply
// to the same pre-discount amount and are summed, never compounded.
type Discounts struct {
	VolumeRate   decimal.Decimal
	CustomerRate decimal.Decimal
	// CustomerType is the type the customer rate was taken from.
	CustomerType CustomerType
	// CustomerDefaulted is set when an unmapped type fell back to residential.
	CustomerDefaulted bool
}

// CombinedRate is VolumeRate + CustomerRate.
func (d Discounts) CombinedRate() decimal.Decimal {
	return d.VolumeRate.Add(d.CustomerRate)
}

// DiscountEngine resolves volume and customer-type discount rates.
type DiscountEngine struct {
	rules Rules
}

// NewDiscountEngine constructs the engine over a validated rule table.
func NewDiscountEngine(rules Rules) DiscountEngine {
	return DiscountEngine{rules: rules}
}

// VolumeRate returns the tier rate matching quantity, or zero.
func (e DiscountEngine) VolumeRate(quantity int) decimal.Decimal {
	return e.rules.volumeRate(quantity)
}

// CustomerRate returns the flat rate for customerType. An empty type is
// residential; unknown types are priced as residential and reported through
// the boolean.
func (e DiscountEngine) CustomerRate(customerType CustomerType) (decimal.Decimal, CustomerType, bool) {
	if customerType == "" {
		customerType = CustomerResidential
	}
	if customerType.Valid() {
		if rate, ok := e.rules.CustomerDiscounts[customerType]; ok {
			return rate, customerType, false
		}
		return decimal.Zero, customerType, false
	}
	return e.rules.CustomerDiscounts[CustomerResidential], CustomerResidential, true
}

// For returns the discounts for a line of quantity units.
func (e DiscountEngine) For(quantity int, customerType CustomerType) Discounts {
	rate, applied, defaulted := e.CustomerRate(customerType)
	return Discounts{
		VolumeRate:        e.VolumeRate(quantity),
		CustomerRate:      rate,
		CustomerType:      applied,
		CustomerDefaulted: defaulted,
	}
}
