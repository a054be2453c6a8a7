package billing

import (
	"math"
	"strconv"
	"strings"
)

// ValidationError reports a malformed or out-of-range monetary input. The core
// never substitutes zero for a value it cannot accept; the offending field is
// named so the caller can surface a field-level message before persisting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "billing: " + e.Field + " " + e.Reason
}

// maxAmount bounds parsed amounts well inside int64 range so that later
// qty*price and tax arithmetic cannot overflow.
const maxAmount Money = 1_000_000_000_000

// ParseAmount converts a form-field string into Money. An empty string is the
// caller's defaulting decision and yields zero; anything else must parse to a
// finite, non-negative number. Fractional shillings round to the nearest whole
// unit. NaN, infinities and garbage are rejected loudly rather than absorbed.
func ParseAmount(field, value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, invalid(field, "is not a number")
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, invalid(field, "must be a finite number")
	}
	if parsed < 0 {
		return 0, invalid(field, "must not be negative")
	}
	rounded := math.Round(parsed)
	if rounded > float64(maxAmount) {
		return 0, invalid(field, "is out of range")
	}
	return Money(rounded), nil
}

// PercentOf converts a percentage (in basis points) of the base amount into an
// absolute Money value, rounding to the nearest shilling. Every surface that
// offers a percent toggle for discounts or deposits must go through this one
// conversion before handing the absolute amount to Compute.
func PercentOf(base Money, bps int) Money {
	if bps <= 0 || base <= 0 {
		return 0
	}
	return roundDiv(base*int64(bps), 10000)
}
