package optimizer

import (
	"errors"
	"fmt"
	"math"

	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"github.com/iwvelando/airframe-optimizer/pkg/mathutil"
	"github.com/iwvelando/airframe-optimizer/pkg/neldermead"
	"github.com/iwvelando/airframe-optimizer/pkg/optimization"
	"go.uber.org/zap"
)

// startingPoint is the original value of every enabled parameter, clamped
// into its current range.
func startingPoint(enabled []*parameter) []float64 {
	x0 := make([]float64, len(enabled))
	for i, p := range enabled {
		x0[i] = p.clamp(p.original)
	}
	return x0
}

// simplexSearch runs one Nelder-Mead search for the current parachute
// combination. Progress is reported as base+iteration out of total.
func (o *Optimizer) simplexSearch(rc *RunContext, enabled []*parameter, base, total int) error {
	objective := func(x []float64) float64 {
		return o.evaluate(rc, x, enabled).Value()
	}
	progress := func(iteration int) {
		o.progress(optimization.Progress{Phase: 0, Current: base + iteration, Total: total, TotalPhases: 1})
	}

	res, err := neldermead.Minimize(rc.ctx, objective, startingPoint(enabled), o.settings, progress)
	if err != nil && !errors.Is(err, rc.ctx.Err()) {
		return fmt.Errorf("simplex search failed: %w", err)
	}
	o.logger.Debug("simplex search finished",
		zap.String("op", "optimizer.simplexSearch"),
		zap.String("reason", string(res.Reason)),
		zap.Int("iterations", res.Iterations),
		zap.Int("evaluations", res.Evaluations),
		zap.Float64("score", res.F),
	)
	return nil
}

const (
	// gridDecimals drops accumulated float noise from stepped candidates.
	gridDecimals = 9
	// gridTolerance lets the last step land on the upper bound.
	gridTolerance = 1e-9
)

// gridAxis is the local search window of one parameter during grid search.
type gridAxis struct {
	p    *parameter
	min  float64
	max  float64
	step float64
}

// candidates enumerates the values tried for an axis in one phase.
func (a gridAxis) candidates() []float64 {
	lo, hi, step := a.min, a.max, a.step
	loOpen, hiOpen := mathutil.IsUnbounded(lo), mathutil.IsUnbounded(hi)

	switch {
	case loOpen && hiOpen:
		return []float64{0.1, 0.5, 1, 2, 5}
	case lo == hi || step <= 0:
		return []float64{lo}
	case a.p.integer:
		limit := math.Min(hi, constants.GridMaxFinCount)
		if limit < lo {
			return []float64{lo}
		}
		inc := math.Max(math.Round(step), constants.MinIntegerStep)
		var out []float64
		for v := lo; v <= limit; v += inc {
			out = append(out, v)
		}
		return out
	case hiOpen:
		return progression(lo, step)
	case loOpen:
		out := progression(-hi, step)
		for i := range out {
			out[i] = -out[i]
		}
		return out
	default:
		var out []float64
		for i := 0; ; i++ {
			v := mathutil.Round(lo+float64(i)*step, gridDecimals)
			if v > hi && !mathutil.WithinTolerance(v, hi, gridTolerance) {
				break
			}
			out = append(out, math.Min(v, hi))
		}
		return out
	}
}

// progression returns start + step*(2^k - 1) for the first few k.
func progression(start, step float64) []float64 {
	out := make([]float64, constants.GridProgressionLength)
	for k := range out {
		out[k] = start + step*(math.Pow(2, float64(k))-1)
	}
	return out
}

// refine narrows the window around center for the next phase.
func (a gridAxis) refine(center float64) gridAxis {
	floor := constants.MinStep
	if a.p.integer {
		floor = constants.MinIntegerStep
	}
	step := math.Max(a.step/2, floor)
	lo := math.Max(center-2*step, a.p.min)
	hi := math.Min(center+2*step, a.p.max)
	if a.p.integer {
		lo, hi = math.Ceil(lo), math.Floor(hi)
	}
	if lo > hi {
		lo = hi
	}
	return gridAxis{p: a.p, min: lo, max: hi, step: step}
}

// gridSearch enumerates the Cartesian product of the enabled parameters for
// a fixed number of phases, narrowing around the best point after each one.
// Parameter bounds are left untouched.
func (o *Optimizer) gridSearch(rc *RunContext, enabled []*parameter) {
	axes := make([]gridAxis, len(enabled))
	for i, p := range enabled {
		axes[i] = gridAxis{p: p, min: p.min, max: p.max, step: p.step}
	}

	bestX := startingPoint(enabled)
	bestF := MaxError
	// Earlier parachute combinations may already have reached the threshold.
	done := func() bool {
		return rc.Cancelled() || math.Min(bestF, rc.BestError()) < constants.GridStopError
	}

	for phase := 0; phase < constants.GridPhases; phase++ {
		if done() {
			return
		}
		if phase > 0 {
			for i := range axes {
				axes[i] = axes[i].refine(bestX[i])
			}
		}

		lists := make([][]float64, len(axes))
		phaseTotal := 1
		for i, axis := range axes {
			lists[i] = axis.candidates()
			phaseTotal *= len(lists[i])
		}
		o.log(fmt.Sprintf("--- Grid phase %d/%d: %d combinations ---", phase+1, constants.GridPhases, phaseTotal))

		count := 0
		point := make([]float64, len(axes))
		var walk func(depth int) bool
		walk = func(depth int) bool {
			if done() {
				return false
			}
			if depth == len(axes) {
				count++
				f := o.evaluate(rc, point, enabled).Value()
				if f < bestF {
					bestF = f
					copy(bestX, point)
				}
				o.progress(optimization.Progress{Phase: phase, Current: count, Total: phaseTotal, TotalPhases: constants.GridPhases})
				return true
			}
			for _, v := range lists[depth] {
				point[depth] = v
				if !walk(depth + 1) {
					return false
				}
			}
			return true
		}
		walk(0)
	}
}
