package scraper

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"$":  "USD",
	"€":  "EUR",
	"£":  "GBP",
	"¥":  "JPY",
	"₹":  "INR",
	"C$": "CAD",
	"A$": "AUD",
}

// currencyFromSymbol maps the first recognized currency symbol in raw to
// its ISO code. Longer symbols are checked first so "C$" wins over "$".
func currencyFromSymbol(raw string) string {
	for _, sym := range []string{"C$", "A$"} {
		if strings.Contains(raw, sym) {
			return currencySymbols[sym]
		}
	}
	for sym, code := range currencySymbols {
		if len([]rune(sym)) == 1 && strings.Contains(raw, sym) {
			return code
		}
	}
	return ""
}

// parsePrice turns a display price string into a decimal. It strips
// currency symbols and grouping separators and normalizes a decimal
// comma, so "1.299,95", "1,299.95" and "€ 1299.95" all parse to the
// same value.
func parsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' || r == ',' || r == '-' {
			return r
		}
		return -1
	}, raw)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("no digits in price %q", raw)
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: the later one is the decimal separator.
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		cleaned = normalizeSingleSeparator(cleaned, ",", lastComma)
	case lastDot >= 0:
		cleaned = normalizeSingleSeparator(cleaned, ".", lastDot)
	}

	p, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing price %q: %w", raw, err)
	}
	if p.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative price %q", raw)
	}
	return p, nil
}

// normalizeSingleSeparator decides whether a lone "." or "," groups
// thousands or marks decimals. Exactly three trailing digits after the
// last separator with a nonzero integer part reads as grouping (1.299
// is 1299), anything else as a decimal mark (12,99 is 12.99).
func normalizeSingleSeparator(s, sep string, last int) string {
	trailing := len(s) - last - 1
	grouping := trailing == 3 && last > 0 && s[:last] != "0"
	if grouping {
		return strings.ReplaceAll(s, sep, "")
	}
	if sep == "," {
		s = strings.ReplaceAll(s[:last], ",", "") + "." + s[last+1:]
	}
	return s
}
