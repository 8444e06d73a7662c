// Package core provides number parsing and rounding utilities.
//
// Amounts, energy and distances are carried as float64 in the domain model.
// Every rounding step goes through decimal arithmetic so that values such as
// 3 x 3.333 land on 10.00 instead of drifting with binary floating point.
package core

import (
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxAmount bounds every quantity, price, fee and distance a record may hold.
const MaxAmount = 1e9

var (
	ErrInvalidNumber   = errors.New("invalid number")
	ErrAmbiguousNumber = errors.New("ambiguous number: use a dot for decimals (1234.5) or write thousands without a comma")
	ErrOutOfRange      = errors.New("number out of range")
)

// Finite reports whether every value is neither NaN nor infinite.
func Finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// InRange reports whether v is finite and within ±MaxAmount.
func InRange(v float64) bool {
	return Finite(v) && math.Abs(v) <= MaxAmount
}

// The helpers below pass NaN and ±Inf through as plain float results;
// decimal cannot represent them.

// Round2 rounds to the nearest cent, half away from zero.
func Round2(v float64) float64 {
	if !Finite(v) {
		return v
	}
	return roundTo(decimal.NewFromFloat(v), 2)
}

// Round3 rounds to three decimals, half away from zero.
func Round3(v float64) float64 {
	if !Finite(v) {
		return v
	}
	return roundTo(decimal.NewFromFloat(v), 3)
}

// Mul2 multiplies a and b exactly and rounds the product to 2 decimals.
func Mul2(a, b float64) float64 {
	if !Finite(a, b) {
		return a * b
	}
	return roundTo(decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)), 2)
}

// Div rounds a / b to places decimals, half away from zero. b must not be
// zero.
func Div(a, b float64, places int32) float64 {
	if !Finite(a, b) {
		return a / b
	}
	f, _ := decimal.NewFromFloat(a).DivRound(decimal.NewFromFloat(b), places).Float64()
	return f
}

// Sum adds values exactly and rounds the result to places decimals.
func Sum(places int32, values ...float64) float64 {
	if !Finite(values...) {
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total
	}
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return roundTo(total, places)
}

func roundTo(d decimal.Decimal, places int32) float64 {
	f, _ := d.Round(places).Float64()
	return f
}

// A lone comma followed by exactly three digits reads as either a thousands
// separator or a decimal comma.
var ambiguousComma = regexp.MustCompile(`^[+-]?\d{1,3},\d{3}$`)

// ParseDecimal converts user or CSV input into a float. It accepts both dot
// (12.34) and comma (12,34) decimal separators; an empty string is 0.
// Commas next to a dot are thousands separators. A single comma followed by
// exactly three digits is rejected as ambiguous, as are values that overflow
// float64.
//
// Examples:
//
//	ParseDecimal("12.34") -> 12.34, nil
//	ParseDecimal("12,34") -> 12.34, nil
//	ParseDecimal("1,234.5") -> 1234.5, nil
//	ParseDecimal("1,234") -> 0, ErrAmbiguousNumber
//	ParseDecimal("") -> 0, nil
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ambiguousComma.MatchString(s) {
		return 0, ErrAmbiguousNumber
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		// thousands separators
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidNumber
	}
	f, _ := d.Float64()
	if !Finite(f) {
		return 0, ErrOutOfRange
	}
	return f, nil
}

// FormatDecimal renders v with at most places decimals and no trailing zeros.
// NaN and ±Inf render as an empty string.
func FormatDecimal(v float64, places int32) string {
	if !Finite(v) {
		return ""
	}
	return decimal.NewFromFloat(v).Round(places).String()
}

// FormatFixed renders v with exactly places decimals.
func FormatFixed(v float64, places int32) string {
	if !Finite(v) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}
