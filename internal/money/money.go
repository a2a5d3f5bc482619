// Package money provides helpers for yen amounts. All amounts in billsync are
// tax-exclusive integers in the currency minor unit (JPY has none), so the
// package is arithmetic over int64 plus formatting and tax derivation.
package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shopspring/decimal"
)

var printer = message.NewPrinter(language.Japanese)

// FormatYen renders an amount with grouped digits and the yen suffix,
// e.g. 1234567 -> "1,234,567円".
func FormatYen(amount int64) string {
	return printer.Sprintf("%d円", amount)
}

// Tax computes the consumption tax on a tax-exclusive subtotal at the given
// percent rate, rounded to the nearest yen.
func Tax(subtotal, ratePercent int64) int64 {
	if ratePercent <= 0 || subtotal == 0 {
		return 0
	}
	tax := decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromInt(ratePercent)).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return tax.IntPart()
}
