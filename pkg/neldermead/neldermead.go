// Package neldermead implements the Nelder-Mead downhill simplex method for
// minimizing an opaque objective over an N-dimensional real vector.
//
// The package has no knowledge of what the coordinates mean. Callers that
// need bounds or integer coordinates enforce them inside the objective.
package neldermead

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"github.com/iwvelando/airframe-optimizer/pkg/mathutil"
	"gonum.org/v1/gonum/floats"
)

// zeroCoordinate is the magnitude below which a coordinate is perturbed by
// an absolute offset instead of a relative one.
const zeroCoordinate = 1e-9

// Objective scores a point. Lower is better.
type Objective func(x []float64) float64

// Reason describes why a minimization stopped.
type Reason string

const (
	// ReasonConverged means the spread of objective values fell below the tolerance.
	ReasonConverged Reason = "converged"
	// ReasonMaxIterations means the iteration budget was exhausted.
	ReasonMaxIterations Reason = "max-iterations"
	// ReasonCancelled means the context was cancelled.
	ReasonCancelled Reason = "cancelled"
)

// ErrNoDimensions is returned when the starting point is empty.
var ErrNoDimensions = errors.New("neldermead: starting point has no dimensions")

// Settings are the simplex coefficients and termination limits.
type Settings struct {
	Reflection    float64
	Expansion     float64
	Contraction   float64
	Shrink        float64
	MaxIterations int
	Tolerance     float64
	// Perturbation is the relative offset of each initial vertex along its
	// axis. A coordinate that is effectively zero is set to Perturbation.
	Perturbation float64
}

// DefaultSettings returns the standard coefficients.
func DefaultSettings() Settings {
	return Settings{
		Reflection:    constants.NelderMeadReflection,
		Expansion:     constants.NelderMeadExpansion,
		Contraction:   constants.NelderMeadContraction,
		Shrink:        constants.NelderMeadShrink,
		MaxIterations: constants.NelderMeadMaxIterations,
		Tolerance:     constants.NelderMeadTolerance,
		Perturbation:  constants.NelderMeadPerturbation,
	}
}

// Result is the outcome of Minimize.
type Result struct {
	X           []float64
	F           float64
	Iterations  int
	Evaluations int
	Converged   bool
	Reason      Reason
}

type simplex struct {
	points [][]float64
	values []float64
	order  []int
}

// sortOrder orders vertex indices from best to worst. Ties keep their index order.
func (s *simplex) sortOrder() {
	for i := range s.order {
		s.order[i] = i
	}
	sort.SliceStable(s.order, func(a, b int) bool {
		return s.values[s.order[a]] < s.values[s.order[b]]
	})
}

func (s *simplex) spread() float64 {
	best := s.values[s.order[0]]
	var maxDiff float64
	for _, idx := range s.order[1:] {
		maxDiff = math.Max(maxDiff, math.Abs(s.values[idx]-best))
	}
	return maxDiff
}

func (s *simplex) best() ([]float64, float64) {
	s.sortOrder()
	idx := s.order[0]
	x := make([]float64, len(s.points[idx]))
	copy(x, s.points[idx])
	return x, s.values[idx]
}

// Minimize runs the simplex search from x0.
//
// progress, when non-nil, is called at the top of every iteration with the
// zero-based iteration number. A cancelled context stops the search at the
// next iteration boundary; the best point found so far is returned together
// with the context error.
func Minimize(ctx context.Context, f Objective, x0 []float64, s Settings, progress func(iteration int)) (Result, error) {
	n := len(x0)
	if n == 0 {
		return Result{}, ErrNoDimensions
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = constants.NelderMeadMaxIterations
	}

	res := Result{}
	eval := func(x []float64) float64 {
		res.Evaluations++
		return f(x)
	}

	sx := &simplex{
		points: make([][]float64, n+1),
		values: make([]float64, n+1),
		order:  make([]int, n+1),
	}
	sx.points[0] = append([]float64(nil), x0...)
	sx.values[0] = eval(sx.points[0])
	for i := 0; i < n; i++ {
		p := append([]float64(nil), x0...)
		if !mathutil.IsZero(p[i], zeroCoordinate) {
			p[i] *= 1 + s.Perturbation
		} else {
			p[i] = s.Perturbation
		}
		sx.points[i+1] = p
		sx.values[i+1] = eval(p)
	}

	centroid := make([]float64, n)
	diff := make([]float64, n)
	reflected := make([]float64, n)
	expanded := make([]float64, n)
	contracted := make([]float64, n)

	for iter := 0; iter < s.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			res.X, res.F = sx.best()
			res.Reason = ReasonCancelled
			return res, err
		}
		if progress != nil {
			progress(iter)
		}
		res.Iterations = iter + 1

		sx.sortOrder()
		bestIdx := sx.order[0]
		secondWorstIdx := sx.order[n-1]
		worstIdx := sx.order[n]

		if sx.spread() < s.Tolerance {
			res.X, res.F = sx.best()
			res.Converged = true
			res.Reason = ReasonConverged
			return res, nil
		}

		for i := range centroid {
			centroid[i] = 0
		}
		for j, p := range sx.points {
			if j != worstIdx {
				floats.Add(centroid, p)
			}
		}
		floats.Scale(1/float64(n), centroid)

		worst := sx.points[worstIdx]

		// reflected = c + alpha*(c - worst)
		floats.SubTo(diff, centroid, worst)
		floats.AddScaledTo(reflected, centroid, s.Reflection, diff)
		fr := eval(reflected)

		if fr >= sx.values[bestIdx] && fr < sx.values[secondWorstIdx] {
			copy(worst, reflected)
			sx.values[worstIdx] = fr
			continue
		}

		if fr < sx.values[bestIdx] {
			// expanded = c + gamma*(reflected - c)
			floats.SubTo(diff, reflected, centroid)
			floats.AddScaledTo(expanded, centroid, s.Expansion, diff)
			fe := eval(expanded)
			if fe < fr {
				copy(worst, expanded)
				sx.values[worstIdx] = fe
			} else {
				copy(worst, reflected)
				sx.values[worstIdx] = fr
			}
			continue
		}

		if fr < sx.values[worstIdx] {
			// outside: c + rho*(reflected - c)
			floats.SubTo(diff, reflected, centroid)
		} else {
			// inside: c - rho*(c - worst)
			floats.SubTo(diff, worst, centroid)
		}
		floats.AddScaledTo(contracted, centroid, s.Contraction, diff)
		fc := eval(contracted)
		if fc < sx.values[worstIdx] {
			copy(worst, contracted)
			sx.values[worstIdx] = fc
			continue
		}

		best := sx.points[bestIdx]
		for _, idx := range sx.order[1:] {
			p := sx.points[idx]
			// p = best + sigma*(p - best)
			floats.SubTo(diff, p, best)
			floats.AddScaledTo(p, best, s.Shrink, diff)
			sx.values[idx] = eval(p)
		}
	}

	res.X, res.F = sx.best()
	res.Reason = ReasonMaxIterations
	return res, nil
}
