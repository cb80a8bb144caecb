// Package money formats cent amounts for customer-facing documents.
package money

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency is the ISO code every amount in the service is denominated in.
var Currency = currency.CAD

var printer = message.NewPrinter(language.MustParse("en-CA"))

// FormatCAD renders cents as "$1,234.50".
func FormatCAD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + "$" + printer.Sprint(number.Decimal(float64(cents)/100, number.Scale(2)))
}

// FormatCADWithCode renders cents as "$1,234.50 CAD".
func FormatCADWithCode(cents int64) string {
	return FormatCAD(cents) + " " + Currency.String()
}

// FormatPercent renders a rate such as 0.13 as "13%".
func FormatPercent(rate float64) string {
	return printer.Sprint(number.Percent(rate, number.MaxFractionDigits(3)))
}
