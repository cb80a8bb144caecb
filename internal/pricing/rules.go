package pricing

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// CustomerType selects the customer-type discount.
type CustomerType string

const (
	CustomerResidential CustomerType = "residential"
	CustomerContractor  CustomerType = "contractor"
	CustomerSenior      CustomerType = "senior"
)

// Valid reports whether t is a recognised customer type.
func (t CustomerType) Valid() bool {
	switch t {
	case CustomerResidential, CustomerContractor, CustomerSenior:
		return true
	}
	return false
}

// StandardDoorType is the installation rate used when a door type is unmapped.
const StandardDoorType = "standard"

// VolumeTier applies Rate when MinQuantity <= quantity <= MaxQuantity.
// MaxQuantity zero leaves the tier open ended.
type VolumeTier struct {
	MinQuantity int             `yaml:"min_quantity"`
	MaxQuantity int             `yaml:"max_quantity"`
	Rate        decimal.Decimal `yaml:"rate"`
}

func (t VolumeTier) matches(quantity int) bool {
	return quantity >= t.MinQuantity && (t.MaxQuantity == 0 || quantity <= t.MaxQuantity)
}

// InstallationRate prices installation per unit as Base + PerSquareFoot * area.
type InstallationRate struct {
	BaseCents          decimal.Decimal `yaml:"base_cents"`
	PerSquareFootCents decimal.Decimal `yaml:"per_square_foot_cents"`
}

// DeliveryZone is keyed by postal-code prefixes. FreeThresholdCents zero
// means delivery is never waived in the zone.
type DeliveryZone struct {
	Name               string   `yaml:"name"`
	Prefixes           []string `yaml:"prefixes"`
	FeeCents           int64    `yaml:"fee_cents"`
	FreeThresholdCents int64    `yaml:"free_threshold_cents"`
}

func (z DeliveryZone) matches(postalPrefix string) bool {
	for _, p := range z.Prefixes {
		if strings.HasPrefix(postalPrefix, p) {
			return true
		}
	}
	return false
}

// TaxRegion applies Rate to postal codes starting with one of Letters.
type TaxRegion struct {
	Code    string          `yaml:"code"`
	Name    string          `yaml:"name"`
	Letters string          `yaml:"letters"`
	Rate    decimal.Decimal `yaml:"rate"`
}

// FinancingTerm is one instalment plan.
type FinancingTerm struct {
	Months int             `yaml:"months"`
	APR    decimal.Decimal `yaml:"apr"`
}

// FinancingRules lists plans offered once a total reaches MinAmountCents.
type FinancingRules struct {
	MinAmountCents int64           `yaml:"min_amount_cents"`
	Terms          []FinancingTerm `yaml:"terms"`
}

// Rules is the complete business-rule table used by the calculator.
type Rules struct {
	MarkupRate        decimal.Decimal                  `yaml:"markup_rate"`
	VolumeTiers       []VolumeTier                     `yaml:"volume_tiers"`
	CustomerDiscounts map[CustomerType]decimal.Decimal `yaml:"customer_discounts"`
	InstallationRates map[string]InstallationRate      `yaml:"installation_rates"`
	DeliveryZones     []DeliveryZone                   `yaml:"delivery_zones"`
	DefaultDelivery   DeliveryZone                     `yaml:"default_delivery"`
	TaxRegions        []TaxRegion                      `yaml:"tax_regions"`
	DefaultTaxRegion  string                           `yaml:"default_tax_region"`
	Financing         FinancingRules                   `yaml:"financing"`
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultRules returns the Ottawa rule table.
func DefaultRules() Rules {
	return Rules{
		MarkupRate: dec("0.35"),
		VolumeTiers: []VolumeTier{
			{MinQuantity: 2, MaxQuantity: 4, Rate: dec("0.05")},
			{MinQuantity: 5, MaxQuantity: 9, Rate: dec("0.10")},
			{MinQuantity: 10, Rate: dec("0.15")},
		},
		CustomerDiscounts: map[CustomerType]decimal.Decimal{
			CustomerResidential: decimal.Zero,
			CustomerContractor:  dec("0.15"),
			CustomerSenior:      dec("0.10"),
		},
		InstallationRates: map[string]InstallationRate{
			StandardDoorType: {BaseCents: dec("15000"), PerSquareFootCents: dec("200")},
			"bifold":         {BaseCents: dec("12500"), PerSquareFootCents: dec("150")},
			"bypass":         {BaseCents: dec("17500"), PerSquareFootCents: dec("200")},
			"barn":           {BaseCents: dec("22500"), PerSquareFootCents: dec("250")},
			"pivot":          {BaseCents: dec("25000"), PerSquareFootCents: dec("300")},
		},
		DeliveryZones: []DeliveryZone{
			{Name: "ottawa-suburbs", Prefixes: []string{"K0A", "K4A", "K4B", "K4C", "K4M", "K4P", "K7S"}, FeeCents: 12500, FreeThresholdCents: 250000},
			{Name: "ottawa-core", Prefixes: []string{"K1", "K2"}, FeeCents: 7500, FreeThresholdCents: 150000},
			{Name: "eastern-ontario", Prefixes: []string{"K0", "K6", "K7", "K8"}, FeeCents: 15000, FreeThresholdCents: 400000},
		},
		DefaultDelivery: DeliveryZone{Name: "outer", FeeCents: 17500},
		TaxRegions: []TaxRegion{
			{Code: "ON", Name: "Ontario HST", Letters: "KLMNP", Rate: dec("0.13")},
			{Code: "QC", Name: "Quebec GST+QST", Letters: "GHJ", Rate: dec("0.14975")},
			{Code: "NS", Name: "Nova Scotia HST", Letters: "B", Rate: dec("0.14")},
			{Code: "NB", Name: "New Brunswick HST", Letters: "E", Rate: dec("0.15")},
			{Code: "NL", Name: "Newfoundland and Labrador HST", Letters: "A", Rate: dec("0.15")},
			{Code: "PE", Name: "Prince Edward Island HST", Letters: "C", Rate: dec("0.15")},
			{Code: "MB", Name: "Manitoba GST+PST", Letters: "R", Rate: dec("0.12")},
			{Code: "SK", Name: "Saskatchewan GST+PST", Letters: "S", Rate: dec("0.11")},
			{Code: "AB", Name: "Alberta GST", Letters: "T", Rate: dec("0.05")},
			{Code: "BC", Name: "British Columbia GST+PST", Letters: "V", Rate: dec("0.12")},
			{Code: "NT", Name: "Territories GST", Letters: "XY", Rate: dec("0.05")},
		},
		DefaultTaxRegion: "ON",
		Financing: FinancingRules{
			MinAmountCents: 100000,
			Terms: []FinancingTerm{
				{Months: 6, APR: decimal.Zero},
				{Months: 12, APR: dec("0.0499")},
				{Months: 24, APR: dec("0.0999")},
			},
		},
	}
}

// LoadRules reads a YAML rule table from path. Unknown keys are rejected
// and the result is validated before it is returned.
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("pricing: read rules: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules decodes and validates a YAML rule table.
func ParseRules(raw []byte) (Rules, error) {
	var rules Rules
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&rules); err != nil {
		return Rules{}, fmt.Errorf("pricing: decode rules: %w", err)
	}
	rules.normalize()
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r *Rules) normalize() {
	for i := range r.DeliveryZones {
		for j, p := range r.DeliveryZones[i].Prefixes {
			r.DeliveryZones[i].Prefixes[j] = strings.ToUpper(strings.TrimSpace(p))
		}
	}
	if len(r.InstallationRates) > 0 {
		normalized := make(map[string]InstallationRate, len(r.InstallationRates))
		for k, v := range r.InstallationRates {
			normalized[normalizeDoorType(k)] = v
		}
		r.InstallationRates = normalized
	}
	for i := range r.TaxRegions {
		r.TaxRegions[i].Letters = strings.ToUpper(r.TaxRegions[i].Letters)
	}
	sort.SliceStable(r.VolumeTiers, func(i, j int) bool {
		return r.VolumeTiers[i].MinQuantity < r.VolumeTiers[j].MinQuantity
	})
}

// Validate checks that the rule table is internally consistent.
func (r Rules) Validate() error {
	var errs []error
	one := decimal.NewFromInt(1)

	if r.MarkupRate.IsNegative() {
		errs = append(errs, errors.New("markup_rate must not be negative"))
	}

	maxVolume := decimal.Zero
	for i, tier := range r.VolumeTiers {
		if tier.MinQuantity < 1 {
			errs = append(errs, fmt.Errorf("volume_tiers[%d]: min_quantity must be at least 1", i))
		}
		if tier.MaxQuantity != 0 && tier.MaxQuantity < tier.MinQuantity {
			errs = append(errs, fmt.Errorf("volume_tiers[%d]: max_quantity below min_quantity", i))
		}
		if tier.Rate.IsNegative() || tier.Rate.GreaterThanOrEqual(one) {
			errs = append(errs, fmt.Errorf("volume_tiers[%d]: rate must be in [0,1)", i))
		}
		if i > 0 {
			prev := r.VolumeTiers[i-1]
			if prev.MaxQuantity == 0 || tier.MinQuantity <= prev.MaxQuantity {
				errs = append(errs, fmt.Errorf("volume_tiers[%d]: overlaps previous tier", i))
			}
		}
		if tier.Rate.GreaterThan(maxVolume) {
			maxVolume = tier.Rate
		}
	}

	maxCustomer := decimal.Zero
	for t, rate := range r.CustomerDiscounts {
		if !t.Valid() {
			errs = append(errs, fmt.Errorf("customer_discounts: unknown customer type %q", t))
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
			errs = append(errs, fmt.Errorf("customer_discounts[%s]: rate must be in [0,1)", t))
		}
		if rate.GreaterThan(maxCustomer) {
			maxCustomer = rate
		}
	}
	if maxVolume.Add(maxCustomer).GreaterThanOrEqual(one) {
		errs = append(errs, errors.New("combined volume and customer discounts must stay below 100%"))
	}

	if _, ok := r.InstallationRates[StandardDoorType]; !ok {
		errs = append(errs, fmt.Errorf("installation_rates: %q rate is required", StandardDoorType))
	}
	for k, rate := range r.InstallationRates {
		if rate.BaseCents.IsNegative() || rate.PerSquareFootCents.IsNegative() {
			errs = append(errs, fmt.Errorf("installation_rates[%s]: rates must not be negative", k))
		}
	}

	for i, zone := range r.DeliveryZones {
		if zone.Name == "" {
			errs = append(errs, fmt.Errorf("delivery_zones[%d]: name is required", i))
		}
		if len(zone.Prefixes) == 0 {
			errs = append(errs, fmt.Errorf("delivery_zones[%d]: at least one prefix is required", i))
		}
		if zone.FeeCents < 0 || zone.FreeThresholdCents < 0 {
			errs = append(errs, fmt.Errorf("delivery_zones[%d]: amounts must not be negative", i))
		}
	}
	if r.DefaultDelivery.FeeCents < 0 {
		errs = append(errs, errors.New("default_delivery: fee must not be negative"))
	}

	defaultFound := false
	seenLetters := map[rune]string{}
	for i, region := range r.TaxRegions {
		if region.Rate.IsNegative() || region.Rate.GreaterThanOrEqual(one) {
			errs = append(errs, fmt.Errorf("tax_regions[%d]: rate must be in [0,1)", i))
		}
		for _, l := range region.Letters {
			if owner, dup := seenLetters[l]; dup {
				errs = append(errs, fmt.Errorf("tax_regions[%d]: letter %c already mapped to %s", i, l, owner))
			}
			seenLetters[l] = region.Code
		}
		if region.Code == r.DefaultTaxRegion {
			defaultFound = true
		}
	}
	if !defaultFound {
		errs = append(errs, fmt.Errorf("default_tax_region %q is not defined", r.DefaultTaxRegion))
	}

	if r.Financing.MinAmountCents < 0 {
		errs = append(errs, errors.New("financing: min_amount_cents must not be negative"))
	}
	for i, term := range r.Financing.Terms {
		if term.Months <= 0 {
			errs = append(errs, fmt.Errorf("financing.terms[%d]: months must be positive", i))
		}
		if term.APR.IsNegative() {
			errs = append(errs, fmt.Errorf("financing.terms[%d]: apr must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("pricing: invalid rules: %w", errors.Join(errs...))
	}
	return nil
}

func (r Rules) volumeRate(quantity int) decimal.Decimal {
	for _, tier := range r.VolumeTiers {
		if tier.matches(quantity) {
			return tier.Rate
		}
	}
	return decimal.Zero
}

func (r Rules) taxRegion(code string) TaxRegion {
	for _, region := range r.TaxRegions {
		if region.Code == code {
			return region
		}
	}
	return TaxRegion{}
}

func normalizeDoorType(doorType string) string {
	return strings.ToLower(strings.TrimSpace(doorType))
}
