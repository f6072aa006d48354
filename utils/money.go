// utils/money.go
package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Narrow symbols for the currencies the platform settles in.
var currencySymbols = map[string]string{
	"NGN": "₦",
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"GHS": "GH₵",
	"KES": "KSh",
}

// NormalizeCurrency validates an ISO 4217 code and returns it upper-cased.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("invalid currency %q: %w", code, err)
	}
	return unit.String(), nil
}

// FormatMoney renders an amount as "₦1,234.50". Unknown codes fall back to "XYZ 1,234.50".
func FormatMoney(amount decimal.Decimal, code string) string {
	prefix := strings.ToUpper(strings.TrimSpace(code)) + " "
	if normalized, err := NormalizeCurrency(code); err == nil {
		if sym, ok := currencySymbols[normalized]; ok {
			prefix = sym
		} else {
			prefix = normalized + " "
		}
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	whole, frac, _ := strings.Cut(amount.Abs().StringFixed(2), ".")
	return sign + prefix + groupThousands(whole) + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
