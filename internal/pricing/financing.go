package pricing

import "github.com/shopspring/decimal"

// FinancingOffer is one instalment plan priced for a total.
type FinancingOffer struct {
	Months              int    `json:"months"`
	APR                 string `json:"apr"`
	MonthlyPaymentCents int64  `json:"monthly_payment_cents"`
	TotalCostCents      int64  `json:"total_cost_cents"`
}

// Financing prices every configured term for totalCents. It returns nil
// when the total is below the financing minimum.
func (c *Calculator) Financing(totalCents int64) []FinancingOffer {
	if totalCents <= 0 || totalCents < c.rules.Financing.MinAmountCents {
		return nil
	}
	principal := decimal.NewFromInt(totalCents)
	offers := make([]FinancingOffer, 0, len(c.rules.Financing.Terms))
	for _, term := range c.rules.Financing.Terms {
		monthly := monthlyPayment(principal, term)
		total := principal
		if term.APR.IsPositive() {
			total = monthly.Mul(decimal.NewFromInt(int64(term.Months)))
		}
		offers = append(offers, FinancingOffer{
			Months:              term.Months,
			APR:                 term.APR.String(),
			MonthlyPaymentCents: roundCents(monthly),
			TotalCostCents:      roundCents(total),
		})
	}
	return offers
}

// monthlyPayment amortises principal over the term:
// P * r(1+r)^n / ((1+r)^n - 1), or P / n at 0% APR.
func monthlyPayment(principal decimal.Decimal, term FinancingTerm) decimal.Decimal {
	months := decimal.NewFromInt(int64(term.Months))
	if !term.APR.IsPositive() {
		return principal.Div(months)
	}
	r := term.APR.Div(decimal.NewFromInt(12))
	growth := decimal.NewFromInt(1).Add(r).Pow(months)
	return principal.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))
}
