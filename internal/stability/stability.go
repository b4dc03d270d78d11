// Package stability computes the static stability margin of an airframe
// with the Barrowman equations for a nose cone and one elliptical fin set.
package stability

import (
	"math"

	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"go.uber.org/zap"
)

// Nose cone normal-force slope and center of pressure as a fraction of length.
const noseCNAlpha = 2.0

var noseCPFraction = map[string]float64{
	airframe.ShapeConical:    0.666,
	airframe.ShapeOgive:      0.466,
	airframe.ShapeElliptical: 0.5,
}

// Calculator computes stability margins in calibers.
type Calculator struct {
	logger *zap.Logger
}

// NewCalculator creates a Calculator.
func NewCalculator(logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{logger: logger}
}

// Breakdown holds the intermediate terms of a margin computation.
type Breakdown struct {
	NoseCNAlpha float64
	NoseCP      float64
	FinCNAlpha  float64
	FinCP       float64
	CP          float64
	CG          float64
	Caliber     float64
	Margin      float64
}

// Margin returns (CP - CG) / caliber, or NaN when the geometry does not
// admit a valid result. Derived state must be current (see Recompute).
func (c *Calculator) Margin(a *airframe.Airframe) float64 {
	b := Compute(a)
	if math.IsNaN(b.Margin) {
		c.logger.Debug("invalid stability margin",
			zap.String("op", "stability.Margin"),
			zap.Float64("cp", b.CP),
			zap.Float64("cg", b.CG),
			zap.Float64("caliber", b.Caliber),
		)
	}
	return b.Margin
}

// Compute runs the Barrowman calculation and returns every term.
func Compute(a *airframe.Airframe) Breakdown {
	b := Breakdown{Margin: math.NaN(), CP: math.NaN()}
	nose, err := a.Nose()
	if err != nil {
		return b
	}
	fs, tube, err := a.LastFinSet()
	if err != nil {
		return b
	}

	b.CG = a.Derived.CG
	b.Caliber = a.Derived.Caliber()
	if b.Caliber <= 0 || math.IsNaN(b.CG) || math.IsInf(b.CG, 0) {
		return b
	}

	frac, ok := noseCPFraction[nose.Shape]
	if !ok {
		frac = noseCPFraction[airframe.ShapeOgive]
	}
	b.NoseCNAlpha = noseCNAlpha
	b.NoseCP = frac * nose.Length

	b.FinCNAlpha = finCNAlpha(fs, tube.OuterRadius, b.Caliber)
	// Elliptical planform: zero tip chord, tip leading edge swept back half the root chord.
	b.FinCP = a.FinLeadingEdge(tube, fs) + fs.RootChord/3

	total := b.NoseCNAlpha + b.FinCNAlpha
	if total <= 0 || math.IsNaN(total) {
		return b
	}
	b.CP = (b.NoseCNAlpha*b.NoseCP + b.FinCNAlpha*b.FinCP) / total
	if math.IsNaN(b.CP) || math.IsInf(b.CP, 0) {
		return b
	}
	b.Margin = (b.CP - b.CG) / b.Caliber
	return b
}

// finCNAlpha is the Barrowman fin normal-force slope with body interference.
// The mid-chord line of an elliptical fin runs straight out, so its length
// equals the span.
func finCNAlpha(fs *airframe.FinSet, bodyRadius, caliber float64) float64 {
	if fs.Count <= 0 || fs.Height <= 0 || fs.RootChord <= 0 {
		return 0
	}
	s := fs.Height
	ratio := s / caliber
	midChord := s
	slope := 4 * float64(fs.Count) * ratio * ratio /
		(1 + math.Sqrt(1+math.Pow(2*midChord/fs.RootChord, 2)))
	interference := 1 + bodyRadius/(s+bodyRadius)
	return slope * interference
}
