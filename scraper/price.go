package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed when a price carries no currency marker
const DefaultCurrency = "INR"

var pricePattern = regexp.MustCompile(`(?i)(₹|rs\.?|inr|\$|£|€)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)

// ParsePrice reads the first amount in a site price string such as
// "₹1,29,999.50", "Rs. 66" or "MRP ₹70". Indian digit grouping is accepted.
func ParsePrice(text string) (decimal.Decimal, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero, "", fmt.Errorf("empty price")
	}

	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, "", fmt.Errorf("no valid price pattern found in: %s", text)
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("invalid amount %q: %w", m[2], err)
	}

	return amount, currencyCode(m[1]), nil
}

func currencyCode(symbol string) string {
	switch strings.ToLower(strings.TrimSuffix(symbol, ".")) {
	case "$":
		return "USD"
	case "£":
		return "GBP"
	case "€":
		return "EUR"
	default:
		return DefaultCurrency
	}
}
