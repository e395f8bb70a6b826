// Package core provides the payslip domain model and numeric field handling.
//
// This file contains the lenient number parsing used for every numeric form
// field (quantity, unit amount, rate) and the fixed two-decimal formatting
// used for every published figure.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxExponent bounds scientific notation accepted from a field. Anything
// larger is not representable as a form number and is treated as unparsable.
const maxExponent = 308

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ParseNumber reads the longest leading numeric prefix of s.
//
// Leading and trailing whitespace is ignored, a single decimal comma is
// accepted when the value has no dot, and trailing garbage after the number is
// dropped. It reports false when s does not start with a number.
//
// Examples:
//
//	ParseNumber("12.34")  -> 12.34, true
//	ParseNumber("12,5")   -> 12.5, true
//	ParseNumber("3 días") -> 3, true
//	ParseNumber("1e3")    -> 1000, true
//	ParseNumber("abc")    -> 0, false
//	ParseNumber("")       -> 0, false
func ParseNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	prefix, ok := numericPrefix(s)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(prefix)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// numericPrefix scans sign, integer digits, an optional fraction and an
// optional exponent. The returned string is normalized so that the decimal
// package always accepts it.
func numericPrefix(s string) (string, bool) {
	var b strings.Builder
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		if s[i] == '-' {
			b.WriteByte('-')
		}
		i++
	}

	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	intPart := s[start:i]

	fracPart := ""
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		fracPart = s[i+1 : j]
		if intPart != "" || fracPart != "" {
			i = j
		}
	}
	if intPart == "" && fracPart == "" {
		return "", false
	}

	if intPart == "" {
		intPart = "0"
	}
	b.WriteString(intPart)
	if fracPart != "" {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		neg := false
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			neg = s[j] == '-'
			j++
		}
		expStart := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if digits := s[expStart:j]; digits != "" {
			digits = strings.TrimLeft(digits, "0")
			if len(digits) > 3 || (digits != "" && atoiSmall(digits) > maxExponent) {
				return "", false
			}
			if digits != "" {
				b.WriteByte('e')
				if neg {
					b.WriteByte('-')
				}
				b.WriteString(digits)
			}
		}
	}
	return b.String(), true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func atoiSmall(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}

// NumberOrZero parses s and falls back to zero. This is the coercion used by
// aggregation for quantity and unit amount.
func NumberOrZero(s string) decimal.Decimal {
	d, ok := ParseNumber(s)
	if !ok {
		return decimal.Zero
	}
	return d
}

// NumberOrOne parses s and falls back to one when s is unparsable, missing or
// zero. It is only used for the divisor quantity of the contribution target
// row and intentionally differs from NumberOrZero: unifying the two changes
// the published contribution amount.
func NumberOrOne(s string) decimal.Decimal {
	d, ok := ParseNumber(s)
	if !ok || d.IsZero() {
		return one
	}
	return d
}

// FormatAmount renders d with exactly two decimals, rounding half away from zero.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Percent converts a percentage (9 for 9%) into a rate (0.09).
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(hundred)
}
