package validation

import (
	"fmt"
	"math"
	"sort"
)

// ValidateBounds rejects a user range whose minimum exceeds its maximum.
// An infinite side is unbounded and never conflicts.
func ValidateBounds(name string, min, max float64) error {
	if math.IsNaN(min) || math.IsNaN(max) {
		return fmt.Errorf("bounds for %s must be numbers, got [%v, %v]", name, min, max)
	}
	if math.IsInf(min, 0) || math.IsInf(max, 0) {
		return nil
	}
	if min > max {
		return fmt.Errorf("minimum %g for %s exceeds maximum %g", min, name, max)
	}
	return nil
}

// ValidateTargetRanges returns warnings for target ranges that cannot be
// scored, such as a range with both sides unbounded.
func ValidateTargetRanges(ranges map[string][2]float64) []string {
	var warnings []string
	for _, name := range sortedRangeNames(ranges) {
		r := ranges[name]
		if math.IsInf(r[0], -1) && math.IsInf(r[1], 1) {
			warnings = append(warnings, fmt.Sprintf("%s target is unbounded on both sides and always scores 0", name))
		}
	}
	return warnings
}

func sortedRangeNames(ranges map[string][2]float64) []string {
	names := make([]string, 0, len(ranges))
	for name := range ranges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
