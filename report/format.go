package report

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatMarketCap renders a whole-dollar amount with thousands separators,
// e.g. 1234567 -> "1,234,567".
func FormatMarketCap(d decimal.Decimal) string {
	return formatFixed(d, 0)
}

// FormatPrice renders an amount with thousands separators and two decimals,
// e.g. 3.5 -> "3.50".
func FormatPrice(d decimal.Decimal) string {
	return formatFixed(d, 2)
}

// FormatPercent renders a percentage value with two decimals, ungrouped,
// e.g. 1234.5 -> "1234.50".
func FormatPercent(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// formatFixed rounds half away from zero to places digits and groups the
// integer part the way English locales do.
func formatFixed(d decimal.Decimal, places int32) string {
	rounded := d.Round(places)
	abs := rounded.Abs()
	whole := abs.Truncate(0)

	p := message.NewPrinter(language.English)
	out := p.Sprintf("%d", whole.IntPart())
	if places > 0 {
		// "0.50" -> ".50"
		out += abs.Sub(whole).StringFixed(places)[1:]
	}
	if rounded.IsNegative() {
		out = "-" + out
	}
	return out
}
