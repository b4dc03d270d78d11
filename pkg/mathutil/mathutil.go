// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"
	"strconv"
)

// Clamp limits value to [lo, hi]. Infinite bounds never clamp.
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// IsUnbounded reports whether a bound represents "no limit".
func IsUnbounded(bound float64) bool {
	return math.IsInf(bound, 0)
}

// Round rounds a value to the given number of decimals.
func Round(val float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(val*scale) / scale
}

// IsZero checks if a value is effectively zero (within tolerance)
func IsZero(val, tolerance float64) bool {
	return math.Abs(val) <= tolerance
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// IsWhole reports whether val is finite and has no fractional part.
func IsWhole(val float64) bool {
	return !math.IsInf(val, 0) && !math.IsNaN(val) && val == math.Trunc(val)
}

// FormatBound renders a bound for logs, spelling out infinities.
func FormatBound(bound float64) string {
	switch {
	case math.IsInf(bound, 1):
		return "+inf"
	case math.IsInf(bound, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(bound, 'g', -1, 64)
	}
}

// RangeDistance returns how far value lies outside [lo, hi], or 0 when inside.
func RangeDistance(value, lo, hi float64) float64 {
	if value < lo {
		return lo - value
	}
	if value > hi {
		return value - hi
	}
	return 0
}
