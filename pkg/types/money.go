package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitExponents lists currencies whose minor unit is not 1/100.
var minorUnitExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
}

var currencySymbols = map[string]string{
	"JPY": "¥",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// MinorUnitExponent returns how many decimal places the currency's minor unit has.
func MinorUnitExponent(currency string) int32 {
	if exp, ok := minorUnitExponents[normalizeCurrency(currency)]; ok {
		return exp
	}
	return 2
}

// MoneyDecimal converts an integer amount in minor units into its major-unit decimal.
func MoneyDecimal(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -MinorUnitExponent(currency))
}

// FormatMoney renders minor units for display, e.g. 2150 JPY as "¥2,150" and 1999 USD as "$19.99".
func FormatMoney(amount int64, currency string) string {
	code := normalizeCurrency(currency)
	exp := MinorUnitExponent(code)
	value := MoneyDecimal(amount, code)

	negative := value.IsNegative()
	fixed := value.Abs().StringFixed(exp)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	if symbol, ok := currencySymbols[code]; ok {
		b.WriteString(symbol)
	}
	b.WriteString(groupThousands(whole))
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	if _, ok := currencySymbols[code]; !ok {
		b.WriteByte(' ')
		b.WriteString(code)
	}
	return b.String()
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func normalizeCurrency(currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return "JPY"
	}
	return code
}
