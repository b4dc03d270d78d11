// Package flightsim integrates a one-dimensional vertical flight: powered
// ascent, coast to apogee and descent under the recovery parachutes.
package flightsim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"go.uber.org/zap"
)

const (
	gravity          = 9.80665
	seaLevelDensity  = 1.225
	scaleHeight      = 8500.0
	finEdgeCd        = 1.2
	finFrictionCd    = 0.004
	nosePressureDrag = 0.1
	// Steps between context checks.
	cancelCheckInterval = 1000
)

var (
	// ErrNoLiftoff is returned when thrust never overcomes weight.
	ErrNoLiftoff = errors.New("rocket did not lift off")
	// ErrTimeLimit is returned when the flight outlasts the configured maximum time.
	ErrTimeLimit = errors.New("simulation exceeded maximum flight time")
)

// Outcome is the result of one simulated flight.
type Outcome struct {
	Apogee   float64 `json:"apogee"`
	Duration float64 `json:"duration"`
	// MaxVelocity is the highest upward speed reached.
	MaxVelocity float64 `json:"maxVelocity"`
	Steps       int     `json:"steps"`
}

// Simulator runs flights with the options carried by the airframe.
type Simulator struct {
	logger *zap.Logger
}

// New creates a Simulator.
func New(logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{logger: logger}
}

// Simulate flies the airframe. The airframe's derived state must be current.
func (s *Simulator) Simulate(ctx context.Context, a *airframe.Airframe) (Outcome, error) {
	opts := a.Simulation
	dt := opts.TimeStep
	if dt <= 0 {
		dt = airframe.DefaultTimeStep
	}
	maxTime := opts.MaxTime
	if maxTime <= 0 {
		maxTime = airframe.DefaultMaxTime
	}

	motor := a.Motor
	m0 := a.Derived.Mass
	if m0 <= 0 || math.IsNaN(m0) {
		return Outcome{}, fmt.Errorf("invalid airframe mass %v", m0)
	}
	var massFlow float64
	if motor.BurnTime > 0 {
		massFlow = motor.PropellantMass / motor.BurnTime
	}

	baseCdA := bodyCdA(a)
	chutes := a.Parachutes()
	deployed := make([]bool, len(chutes))

	var (
		out      Outcome
		h, v, t  float64
		lifted   bool
		pastApex bool
	)

	for step := 0; ; step++ {
		if step%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Outcome{}, err
			}
		}
		if t > maxTime {
			return Outcome{}, fmt.Errorf("%w (%.0f s)", ErrTimeLimit, maxTime)
		}

		var thrust float64
		burning := t < motor.BurnTime
		if burning {
			thrust = motor.AverageThrust
		}
		m := m0 - massFlow*math.Min(t, motor.BurnTime)

		cda := baseCdA
		for i, chute := range chutes {
			if deployed[i] {
				cda += chute.Cd * math.Pi * chute.Diameter * chute.Diameter / 4
			}
		}
		rho := seaLevelDensity * math.Exp(-(opts.LaunchAltitude+h)/scaleHeight)
		drag := 0.5 * rho * v * math.Abs(v) * cda
		acc := (thrust-drag)/m - gravity

		if !lifted && h <= 0 && acc <= 0 {
			if !burning {
				return Outcome{}, ErrNoLiftoff
			}
			acc, v = 0, 0
		}

		v += acc * dt
		h += v * dt
		t += dt
		out.Steps = step + 1

		if h > 0 {
			lifted = true
		}
		if h > out.Apogee {
			out.Apogee = h
		}
		if v > out.MaxVelocity {
			out.MaxVelocity = v
		}
		if lifted && !pastApex && v <= 0 {
			pastApex = true
			for i, chute := range chutes {
				if chute.Deploy != airframe.DeployAltitude {
					deployed[i] = true
				}
			}
		}
		if pastApex {
			for i, chute := range chutes {
				if !deployed[i] && chute.Deploy == airframe.DeployAltitude && h <= chute.DeployAltitude {
					deployed[i] = true
				}
			}
		}
		if lifted && h <= 0 {
			out.Duration = t
			return out, nil
		}
	}
}

// bodyCdA is the drag area of the airframe without parachutes.
func bodyCdA(a *airframe.Airframe) float64 {
	d := a.Derived
	cd := a.Simulation.BodyCd
	if nose := a.NoseCone; nose != nil && d.ReferenceRadius > 0 {
		fineness := math.Max(nose.Length/d.Caliber(), 0.5)
		cd += nosePressureDrag / fineness
	}
	cda := cd * d.ReferenceArea()
	for _, fs := range a.FinSets() {
		n := float64(fs.Count)
		cda += n * (fs.Thickness*fs.Height*finEdgeCd + 2*fs.FinArea()*finFrictionCd)
	}
	return cda
}
