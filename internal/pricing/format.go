package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Symbol returns the display prefix for a currency code.
func Symbol(currency string) string {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "USD":
		return "$"
	case "GBP":
		return "£"
	case "EUR":
		return "€"
	case "CHF":
		return "CHF "
	case "":
		return "£"
	default:
		return strings.ToUpper(strings.TrimSpace(currency))
	}
}

// Format renders amount with its currency symbol and two decimals.
func Format(amount decimal.Decimal, currency string) string {
	return Symbol(currency) + amount.StringFixed(2)
}
