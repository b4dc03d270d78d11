package optimizer

import (
	"fmt"
	"math"

	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"github.com/iwvelando/airframe-optimizer/internal/config"
	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"github.com/iwvelando/airframe-optimizer/pkg/mathutil"
	"github.com/iwvelando/airframe-optimizer/pkg/validation"
)

// parameter is one tunable airframe field. Every value held here is in raw
// display units: centimeters, or a plain count for the number of fins.
type parameter struct {
	key     string
	integer bool

	absMin float64
	absMax float64
	min    float64
	max    float64
	step   float64

	original float64
	last     float64

	get     func() float64
	set     func(raw float64) error
	restore func()
}

// buildParameters wires each tunable field to its airframe getter and setter.
// Absolute maxima are derived from the geometry at this point and do not
// follow later changes.
func buildParameters(fins *airframe.FinSet, tube *airframe.BodyTube, nose *airframe.NoseCone) []*parameter {
	cm := constants.CentimetersPerMeter
	inf := math.Inf(1)

	thickness, rootChord, height, count := fins.Thickness, fins.RootChord, fins.Height, fins.Count
	noseLength, wall := nose.Length, nose.WallThickness

	params := []*parameter{
		{
			key:     config.KeyThickness,
			absMax:  inf,
			get:     func() float64 { return fins.Thickness * cm },
			set:     func(v float64) error { return fins.SetThickness(v / cm) },
			restore: func() { fins.Thickness = thickness },
		},
		{
			key:     config.KeyRootChord,
			absMax:  tube.Length * cm,
			get:     func() float64 { return fins.RootChord * cm },
			set:     func(v float64) error { return fins.SetRootChord(v / cm) },
			restore: func() { fins.RootChord = rootChord },
		},
		{
			key:     config.KeyHeight,
			absMax:  constants.FinHeightRadiusFactor * tube.OuterRadius * cm,
			get:     func() float64 { return fins.Height * cm },
			set:     func(v float64) error { return fins.SetHeight(v / cm) },
			restore: func() { fins.Height = height },
		},
		{
			key:     config.KeyFinCount,
			integer: true,
			absMin:  1,
			absMax:  inf,
			get:     func() float64 { return float64(fins.Count) },
			set: func(v float64) error {
				if !mathutil.IsWhole(v) {
					return fmt.Errorf("fin count %v is not a whole number: %w", v, airframe.ErrInvalidValue)
				}
				return fins.SetCount(int(v))
			},
			restore: func() { fins.Count = count },
		},
		{
			key:     config.KeyNoseLength,
			absMax:  inf,
			get:     func() float64 { return nose.Length * cm },
			set:     func(v float64) error { return nose.SetLength(v / cm) },
			restore: func() { nose.Length = noseLength },
		},
		{
			key:    config.KeyNoseWallThickness,
			absMax: nose.BaseRadius * cm,
			get:    func() float64 { return nose.WallThickness * cm },
			set: func(v float64) error {
				// cm -> m round-off can land one ulp above the base radius.
				return nose.SetWallThickness(math.Min(v/cm, nose.BaseRadius))
			},
			restore: func() { nose.WallThickness = wall },
		},
	}

	for _, p := range params {
		p.original = p.get()
		p.last = p.original
		p.min, p.max = p.absMin, p.absMax
		p.step = stepSize(p.min, p.max, p.integer)
	}
	return params
}

// clamp keeps a candidate inside the current range. Fin count is rounded
// to the nearest whole fin after clamping.
func (p *parameter) clamp(raw float64) float64 {
	v := mathutil.Clamp(raw, p.min, p.max)
	if p.integer {
		v = math.Round(v)
	}
	return v
}

// updateBounds intersects the absolute range with a user range and
// recomputes the step. An infinite user side is unbounded. The returned
// warning is non-empty when the intersection was empty and had to collapse.
func (p *parameter) updateBounds(userMin, userMax float64) (string, error) {
	if err := validation.ValidateBounds(config.DisplayName(p.key), userMin, userMax); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBounds, err)
	}
	if math.IsInf(userMin, 0) {
		userMin = math.Inf(-1)
	}
	if math.IsInf(userMax, 0) {
		userMax = math.Inf(1)
	}

	lo := math.Max(p.absMin, userMin)
	hi := math.Min(p.absMax, userMax)

	var warning string
	if lo > hi {
		switch {
		case userMin > p.absMax:
			lo, hi = p.absMax, p.absMax
		case userMax < p.absMin:
			lo, hi = p.absMin, p.absMin
		default:
			lo = hi
		}
		warning = fmt.Sprintf("%s bounds [%s, %s] fall outside the physical range [%s, %s]; using %s",
			config.DisplayName(p.key),
			mathutil.FormatBound(userMin), mathutil.FormatBound(userMax),
			mathutil.FormatBound(p.absMin), mathutil.FormatBound(p.absMax),
			mathutil.FormatBound(lo))
	}

	if p.integer {
		lo = math.Ceil(lo)
		hi = math.Floor(hi)
		if lo > hi {
			lo = hi
		}
	}

	p.min, p.max = lo, hi
	p.step = stepSize(lo, hi, p.integer)
	return warning, nil
}

// stepSize is the search step for a range: 0 for a single point, 10% of the
// bounded side when the other is open, and a tenth of the range otherwise.
func stepSize(lo, hi float64, integer bool) float64 {
	floor := constants.MinStep
	if integer {
		floor = constants.MinIntegerStep
	}

	loOpen, hiOpen := mathutil.IsUnbounded(lo), mathutil.IsUnbounded(hi)
	switch {
	case lo == hi:
		return 0
	case loOpen && hiOpen:
		return floor
	case hiOpen:
		return math.Max(math.Abs(lo)*constants.HalfOpenStepFraction, floor)
	case loOpen:
		return math.Max(math.Abs(hi)*constants.HalfOpenStepFraction, floor)
	default:
		return math.Max((hi-lo)/constants.StepDivisions, floor)
	}
}
