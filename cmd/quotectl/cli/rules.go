package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pgclosets/quote-service/internal/pricing"
	"github.com/pgclosets/quote-service/internal/platform/money"
)

// RulesCheckOptions defines the flags of the rules check command.
type RulesCheckOptions struct {
	Path       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RulesSummary is the JSON output of a successful rules check.
type RulesSummary struct {
	OK            bool     `json:"ok"`
	Path          string   `json:"path"`
	VolumeTiers   int      `json:"volume_tiers"`
	TaxRegions    int      `json:"tax_regions"`
	DeliveryZones int      `json:"delivery_zones"`
	Sample        string   `json:"sample_total"`
	Fallbacks     []string `json:"sample_fallbacks,omitempty"`
}

// sampleInput prices a representative order so rule mistakes show up as
// surprising totals before deployment.
var sampleInput = pricing.PricingInput{
	ProductID:           "rules-check",
	MSRPCents:           100000,
	WidthIn:             72,
	HeightIn:            80,
	Quantity:            1,
	IncludeInstallation: true,
	CustomerType:        pricing.CustomerResidential,
	PostalCode:          "K1P 5N2",
	DoorType:            "bypass",
}

// RulesCheckCommand loads and validates a pricing rules file. It returns the
// process exit code.
func RulesCheckCommand(opts RulesCheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Path == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "rules check: --file is required")
		return 1
	}
	rules, err := pricing.LoadRules(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rules check: %v\n", err)
		return 10
	}
	calc, err := pricing.NewCalculator(rules)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rules check: %v\n", err)
		return 10
	}
	result, err := calc.Calculate(sampleInput)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rules check: sample: %v\n", err)
		return 10
	}
	summary := RulesSummary{
		OK:            true,
		Path:          opts.Path,
		VolumeTiers:   len(rules.VolumeTiers),
		TaxRegions:    len(rules.TaxRegions),
		DeliveryZones: len(rules.DeliveryZones),
		Sample:        money.FormatCAD(result.TotalCents()),
		Fallbacks:     result.Fallbacks,
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rules check: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%s: ok (%d volume tiers, %d tax regions, %d delivery zones)\nsample order total: %s\n",
		summary.Path, summary.VolumeTiers, summary.TaxRegions, summary.DeliveryZones, summary.Sample)
	return 0
}
