// Package gateway wraps one flight simulation with a hard deadline and a
// bounded retry policy, and reports every failure uniformly.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"github.com/iwvelando/airframe-optimizer/internal/flightsim"
	"github.com/iwvelando/airframe-optimizer/internal/metrics"
	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"go.uber.org/zap"
)

// Simulator flies an airframe.
type Simulator interface {
	Simulate(ctx context.Context, a *airframe.Airframe) (flightsim.Outcome, error)
}

// SimulatorFunc adapts a function to Simulator.
type SimulatorFunc func(ctx context.Context, a *airframe.Airframe) (flightsim.Outcome, error)

// Simulate calls f.
func (f SimulatorFunc) Simulate(ctx context.Context, a *airframe.Airframe) (flightsim.Outcome, error) {
	return f(ctx, a)
}

// FailureError reports a simulation that failed on every attempt.
type FailureError struct {
	Attempts int
	Last     error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("evaluation failed after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *FailureError) Unwrap() error {
	return e.Last
}

// Options configure the deadline and retry policy.
type Options struct {
	Timeout  time.Duration
	Attempts int
	Backoff  BackoffStrategy
}

// DefaultOptions is two attempts of 2 s each with a 100 ms pause.
func DefaultOptions() Options {
	return Options{
		Timeout:  constants.SimulationTimeout,
		Attempts: constants.SimulationAttempts,
		Backoff:  ConstantBackoff{Delay: constants.SimulationBackoff},
	}
}

// Gateway runs simulations under Options.
type Gateway struct {
	logger *zap.Logger
	sim    Simulator
	opts   Options
}

// New creates a Gateway. Zero option fields take their defaults.
func New(logger *zap.Logger, sim Simulator, opts Options) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.Backoff == nil {
		opts.Backoff = def.Backoff
	}
	return &Gateway{logger: logger, sim: sim, opts: opts}
}

// Options returns the effective options.
func (g *Gateway) Options() Options {
	return g.opts
}

// Run simulates a private copy of the airframe, so an abandoned attempt can
// never observe later mutations of a. Failures are returned as
// *FailureError; a cancelled ctx returns the context error.
func (g *Gateway) Run(ctx context.Context, a *airframe.Airframe) (flightsim.Outcome, error) {
	var last error
	for attempt := 0; attempt < g.opts.Attempts; attempt++ {
		if attempt > 0 {
			delay := g.opts.Backoff.NextDelay(attempt - 1)
			select {
			case <-ctx.Done():
				return flightsim.Outcome{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		snapshot := a.Clone()
		start := time.Now()
		out, err := RunWithDeadline(ctx, g.opts.Timeout, func(c context.Context) (flightsim.Outcome, error) {
			return g.sim.Simulate(c, snapshot)
		})
		metrics.SimulationLatency.Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.SimulationAttemptsTotal.WithLabelValues(metrics.ResultOK).Inc()
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.SimulationAttemptsTotal.WithLabelValues(metrics.ResultCancelled).Inc()
			return flightsim.Outcome{}, ctxErr
		}

		result := metrics.ResultError
		if errors.Is(err, ErrTimeout) {
			result = metrics.ResultTimeout
		}
		metrics.SimulationAttemptsTotal.WithLabelValues(result).Inc()
		g.logger.Debug("simulation attempt failed",
			zap.String("op", "gateway.Run"),
			zap.Int("attempt", attempt+1),
			zap.Int("attempts", g.opts.Attempts),
			zap.Error(err),
		)
		last = err
	}

	metrics.SimulationFailuresTotal.Inc()
	return flightsim.Outcome{}, &FailureError{Attempts: g.opts.Attempts, Last: last}
}
