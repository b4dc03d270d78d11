package optimizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/iwvelando/airframe-optimizer/internal/config"
	"github.com/iwvelando/airframe-optimizer/internal/metrics"
	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"github.com/iwvelando/airframe-optimizer/pkg/optimization"
	"go.uber.org/zap"
)

// Run searches every parachute combination and, when numeric parameters are
// enabled, the parameter space of each. It blocks until the search ends.
//
// On completion the best result is applied to the airframe. A cancelled run
// or one that never scored a design leaves the airframe at its original
// values. Setup problems are returned as errors before any evaluation.
func (o *Optimizer) Run(ctx context.Context) (optimization.Summary, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return optimization.Summary{}, ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	rc := newRunContext(runCtx)
	o.rc = rc
	o.cancel = cancel
	o.done = make(chan struct{})
	o.state = StateRunning
	done := o.done
	o.mu.Unlock()

	metrics.RunsActive.Inc()
	state := StateFailed
	defer func() {
		cancel()
		metrics.RunsActive.Dec()
		metrics.RunsTotal.WithLabelValues(string(state)).Inc()
		o.mu.Lock()
		o.state = state
		o.mu.Unlock()
		close(done)
	}()

	summary, err := o.run(rc)
	if err != nil {
		o.logger.Error("optimization failed",
			zap.String("op", "optimizer.Run"),
			zap.Error(err),
		)
		o.revert()
		return summary, err
	}
	state = State(summary.State)
	return summary, nil
}

func (o *Optimizer) run(rc *RunContext) (optimization.Summary, error) {
	summary := optimization.Summary{
		State:     string(StateCompleted),
		Algorithm: o.cfg.Algorithm,
	}

	var enabled []*parameter
	for _, p := range o.params {
		if !o.cfg.IsEnabled(p.key) {
			continue
		}
		if !validAbsoluteRange(p) {
			return summary, fmt.Errorf("%w: %s has no valid physical range [%g, %g]",
				ErrInvalidBounds, config.DisplayName(p.key), p.absMin, p.absMax)
		}
		enabled = append(enabled, p)
	}
	anyNumeric := len(enabled) > 0
	anyStage := o.stages[0].enabled || o.stages[1].enabled

	if !anyNumeric && !anyStage {
		o.log("No parameters enabled for optimization.")
		o.progress(optimization.Progress{Phase: 0, Current: 1, Total: 1, TotalPhases: 1})
		summary.Notes = append(summary.Notes, "no parameter or parachute stage enabled")
		return summary, nil
	}

	options1, options2 := o.parachuteOptions()
	combos := len(options1) * len(options2)
	if combos < 1 {
		combos = 1
	}
	perCombo := 1
	if anyNumeric {
		perCombo = constants.NelderMeadMaxIterations
	}
	total := combos * perCombo
	summary.Combos = combos

	o.logger.Info("optimization started",
		zap.String("op", "optimizer.Run"),
		zap.String("algorithm", o.cfg.Algorithm),
		zap.Int("parameters", len(enabled)),
		zap.Int("combinations", combos),
		zap.Strings("stage1Options", options1),
		zap.Strings("stage2Options", options2),
	)

	index := 0
combinations:
	for _, option1 := range options1 {
		for _, option2 := range options2 {
			if rc.Cancelled() {
				break combinations
			}
			index++
			metrics.ParachuteCombinationsTotal.Inc()
			rc.setSelection(option1, option2)
			o.applyParachutes(rc)
			s1, s2 := rc.Selection()
			o.log(fmt.Sprintf("--- Starting Optimization for Parachutes: S1=%s, S2=%s ---", s1, s2))

			switch {
			case !anyNumeric:
				o.evaluate(rc, nil, nil)
				o.progress(optimization.Progress{Phase: 0, Current: index, Total: combos, TotalPhases: 1})
			case o.cfg.Algorithm == constants.AlgorithmGrid:
				o.gridSearch(rc, enabled)
			default:
				if err := o.simplexSearch(rc, enabled, (index-1)*perCombo, total); err != nil {
					return summary, err
				}
			}

			o.log(fmt.Sprintf("--- Finished Optimization for Parachutes: S1=%s, S2=%s. Current Best Error: %.2f ---",
				s1, s2, rc.BestError()))
		}
	}

	cancelled := rc.Cancelled()
	if cancelled {
		rc.clearBest()
	} else {
		o.progress(optimization.Progress{Phase: 0, Current: total, Total: total, TotalPhases: 1})
	}

	best := rc.Best()
	summary.Evaluations = rc.Evaluations()
	summary.Best = best
	summary.Improved = best != nil
	o.logFinalResults(best)

	switch {
	case cancelled:
		summary.State = string(StateCancelled)
		o.revert()
	case best == nil:
		summary.Notes = append(summary.Notes, "no design could be scored")
		o.revert()
	default:
		if err := o.applyBest(best); err != nil {
			o.revert()
			return summary, err
		}
	}

	o.logger.Info("optimization finished",
		zap.String("op", "optimizer.Run"),
		zap.String("state", summary.State),
		zap.Int("evaluations", summary.Evaluations),
		zap.Bool("improved", summary.Improved),
	)
	return summary, nil
}

// Cancel stops the active run cooperatively and returns once the run has
// ended and the airframe has been reverted. It must not be called from a
// hook. Without an active run it does nothing.
func (o *Optimizer) Cancel() {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	rc, cancel, done := o.rc, o.cancel, o.done
	o.mu.Unlock()

	rc.Cancel()
	cancel()
	<-done
}

// logFinalResults reports the outcome of a run through the log hook.
func (o *Optimizer) logFinalResults(best *optimization.BestResult) {
	if best == nil {
		o.log("=== Optimization Complete (No improvement found or cancelled early) ===")
		return
	}

	var b strings.Builder
	b.WriteString("=== Optimization Complete ===\n")
	fmt.Fprintf(&b, "Best Total Score: %.2f\n", best.TotalScore)
	fmt.Fprintf(&b, "  Altitude Score: %.1f\n", best.AltitudeScore)
	fmt.Fprintf(&b, "  Duration Score: %.2f\n", best.DurationScore)
	b.WriteString("Simulation Results:\n")
	fmt.Fprintf(&b, "  Apogee: %.1f m\n", best.Apogee)
	fmt.Fprintf(&b, "  Duration: %.2f s\n", best.Duration)
	b.WriteString("Parameters:\n")
	for _, key := range config.ParameterKeys {
		v, ok := best.Values[key]
		if !ok {
			continue
		}
		unit := " cm"
		if config.IsIntegerParameter(key) {
			unit = ""
		}
		fmt.Fprintf(&b, "  %s: %.2f%s\n", config.DisplayName(key), v, unit)
	}
	fmt.Fprintf(&b, "  Stage 1 Parachute: %s\n", best.Stage1Parachute)
	fmt.Fprintf(&b, "  Stage 2 Parachute: %s", best.Stage2Parachute)
	o.log(b.String())

	o.logger.Info("best result",
		zap.String("op", "optimizer.logFinalResults"),
		zap.Float64("totalScore", best.TotalScore),
		zap.Float64("altitudeScore", best.AltitudeScore),
		zap.Float64("durationScore", best.DurationScore),
		zap.Float64("apogee", best.Apogee),
		zap.Float64("duration", best.Duration),
		zap.String("stage1Parachute", best.Stage1Parachute),
		zap.String("stage2Parachute", best.Stage2Parachute),
	)
}
