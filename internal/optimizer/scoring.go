package optimizer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/iwvelando/airframe-optimizer/internal/config"
	"github.com/iwvelando/airframe-optimizer/internal/metrics"
	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"github.com/iwvelando/airframe-optimizer/pkg/mathutil"
	"github.com/iwvelando/airframe-optimizer/pkg/optimization"
	"go.uber.org/zap"
)

// MaxError is the score of an evaluation that could not be completed.
const MaxError = math.MaxFloat64

// Evaluation stages reported by EvaluationError.
const (
	StageCancelled  = "cancelled"
	StageWrite      = "write"
	StageStability  = "stability"
	StageSimulation = "simulation"
)

// EvaluationError explains why one evaluation scored MaxError.
type EvaluationError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Evaluation is the outcome of scoring one candidate. Err is set when the
// candidate could not be scored; Score is then MaxError.
type Evaluation struct {
	Score     float64
	Stability float64
	Apogee    float64
	Duration  float64
	Penalized bool
	Err       *EvaluationError
}

// Value returns the score fed to the search algorithms.
func (e Evaluation) Value() float64 {
	if e.Err != nil {
		return MaxError
	}
	return e.Score
}

func failed(stage, reason string, err error) Evaluation {
	return Evaluation{Score: MaxError, Err: &EvaluationError{Stage: stage, Reason: reason, Err: err}}
}

// RunContext is the mutable state of one run. It is created by Run and
// shared by the scorer, both search algorithms and the combination driver.
type RunContext struct {
	ctx       context.Context
	cancelled atomic.Bool

	mu          sync.Mutex
	best        *optimization.BestResult
	bestError   float64
	stage1      string
	stage2      string
	evaluations int
}

func newRunContext(ctx context.Context) *RunContext {
	return &RunContext{
		ctx:       ctx,
		bestError: MaxError,
		stage1:    constants.ParachuteNone,
		stage2:    constants.ParachuteNone,
	}
}

// Cancel marks the run as cancelled. Evaluations started afterwards score
// MaxError without touching the airframe.
func (rc *RunContext) Cancel() {
	rc.cancelled.Store(true)
}

// Cancelled reports whether the run was cancelled.
func (rc *RunContext) Cancelled() bool {
	return rc.cancelled.Load() || rc.ctx.Err() != nil
}

// Best returns a copy of the best record, or nil.
func (rc *RunContext) Best() *optimization.BestResult {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.best.Clone()
}

// BestError returns the lowest total error seen, or MaxError.
func (rc *RunContext) BestError() float64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.bestError
}

// Evaluations returns the number of evaluations that reached the airframe.
func (rc *RunContext) Evaluations() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.evaluations
}

// Selection returns the parachute option of each stage under evaluation.
func (rc *RunContext) Selection() (string, string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.stage1, rc.stage2
}

func (rc *RunContext) setSelection(stage1, stage2 string) {
	rc.mu.Lock()
	rc.stage1, rc.stage2 = stage1, stage2
	rc.mu.Unlock()
}

func (rc *RunContext) countEvaluation() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.evaluations++
	return rc.evaluations
}

// clearBest drops the best record of a cancelled run.
func (rc *RunContext) clearBest() {
	rc.mu.Lock()
	rc.best = nil
	rc.bestError = MaxError
	rc.mu.Unlock()
}

// offer replaces the best record when candidate is strictly better.
func (rc *RunContext) offer(candidate *optimization.BestResult) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if candidate.TotalScore < rc.bestError {
		rc.best = candidate
		rc.bestError = candidate.TotalScore
		return true
	}
	return false
}

// RangeScore is the distance of actual outside [min, max], or 0 inside.
// Either side may be infinite.
func RangeScore(actual, min, max float64) float64 {
	return mathutil.RangeDistance(actual, min, max)
}

// DurationScore weights RangeScore by the duration weight.
func DurationScore(actual, min, max float64) float64 {
	return RangeScore(actual, min, max) * constants.DurationWeight
}

// StabilityPenalty is the score of a design whose margin lies outside the
// range, or 0 when it is inside.
func StabilityPenalty(margin, min, max float64) float64 {
	distance := mathutil.RangeDistance(margin, min, max)
	if distance == 0 {
		return 0
	}
	return constants.StabilityPenaltyBase + constants.StabilityPenaltyScale*distance
}

// evaluate applies x to the enabled parameters and scores the design.
func (o *Optimizer) evaluate(rc *RunContext, x []float64, enabled []*parameter) Evaluation {
	if rc.Cancelled() {
		metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeCancelled).Inc()
		return failed(StageCancelled, "run cancelled", nil)
	}
	evaluation := rc.countEvaluation()

	for i, p := range enabled {
		raw := p.clamp(x[i])
		p.last = raw
		if err := p.set(raw); err != nil {
			o.log(fmt.Sprintf("Error setting parameter %s to %.4f: %v", p.key, raw, err))
			metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeWriteFailed).Inc()
			return failed(StageWrite, "field write rejected", err)
		}
	}

	o.applyParachutes(rc)
	o.airframe.Recompute()

	stability := o.stability.Margin(o.airframe)
	if math.IsNaN(stability) {
		o.logCurrent(rc, o.label("Skipping"), stability, nil, "Invalid CP/Stability")
		metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeStabilityInvalid).Inc()
		ev := failed(StageStability, "invalid stability margin", nil)
		ev.Stability = stability
		return ev
	}
	stabilityRange := o.cfg.Targets.Stability
	if penalty := StabilityPenalty(stability, stabilityRange.Lower(), stabilityRange.Upper()); penalty > 0 {
		o.logCurrent(rc, o.label("Skipping"), stability, nil, "Stability out of range")
		metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeStabilityPenalty).Inc()
		return Evaluation{Score: penalty, Stability: stability, Penalized: true}
	}

	outcome, err := o.gateway.Run(rc.ctx, o.airframe)
	if err != nil && rc.Cancelled() {
		metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeCancelled).Inc()
		return failed(StageCancelled, "run cancelled during simulation", err)
	}
	if err != nil {
		o.logCurrent(rc, fmt.Sprintf("Failed (%s Sim)", o.tag()), stability, nil, "Sim Error: "+err.Error())
		metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeSimulationFailed).Inc()
		ev := failed(StageSimulation, "simulation failed", err)
		ev.Stability = stability
		return ev
	}

	var altitudeScore, durationScore float64
	if o.cfg.IsEnabled(config.KeyAltitudeScore) {
		altitudeScore = RangeScore(outcome.Apogee, o.cfg.Targets.Altitude.Lower(), o.cfg.Targets.Altitude.Upper())
	}
	if o.cfg.IsEnabled(config.KeyDurationScore) {
		durationScore = DurationScore(outcome.Duration, o.cfg.Targets.Duration.Lower(), o.cfg.Targets.Duration.Upper())
	}
	total := altitudeScore + durationScore
	metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeScored).Inc()

	stage1, stage2 := rc.Selection()
	record := &optimization.BestResult{
		Values:          o.currentValues(enabled),
		Stage1Parachute: stage1,
		Stage2Parachute: stage2,
		Apogee:          outcome.Apogee,
		Duration:        outcome.Duration,
		AltitudeScore:   altitudeScore,
		DurationScore:   durationScore,
		TotalScore:      total,
		Stability:       stability,
		Evaluation:      evaluation,
	}
	if rc.offer(record) {
		metrics.BestTotalScore.Set(total)
		o.logCurrent(rc, o.label("Best"), stability, record, "")
		o.logger.Debug("new best result",
			zap.String("op", "optimizer.evaluate"),
			zap.Int("evaluation", evaluation),
			zap.Float64("totalScore", total),
			zap.Float64("apogee", outcome.Apogee),
			zap.Float64("duration", outcome.Duration),
			zap.Float64("stability", stability),
		)
	}

	o.log(interimLine(record))
	o.status(o.statusLine(rc, enabled, total))

	return Evaluation{
		Score:     total,
		Stability: stability,
		Apogee:    outcome.Apogee,
		Duration:  outcome.Duration,
	}
}

// currentValues returns the raw value of every parameter: the last applied
// value for enabled ones and the original value for the rest.
func (o *Optimizer) currentValues(enabled []*parameter) map[string]float64 {
	values := make(map[string]float64, len(o.params))
	for _, p := range o.params {
		values[p.key] = p.original
	}
	for _, p := range enabled {
		values[p.key] = p.last
	}
	return values
}

func interimLine(r *optimization.BestResult) string {
	var b strings.Builder
	b.WriteString("INTERIM:")
	for _, key := range config.ParameterKeys {
		if v, ok := r.Values[key]; ok {
			fmt.Fprintf(&b, "%s=%.2f|", key, v)
		}
	}
	fmt.Fprintf(&b, "stage1Parachute=%s|stage2Parachute=%s|", r.Stage1Parachute, r.Stage2Parachute)
	fmt.Fprintf(&b, "apogee=%.1f|duration=%.2f|altitudeScore=%.1f|durationScore=%.2f|totalScore=%.2f",
		r.Apogee, r.Duration, r.AltitudeScore, r.DurationScore, r.TotalScore)
	return b.String()
}

func abbreviate(label string) string {
	r := []rune(label)
	if len(r) > 5 {
		r = r[:5]
	}
	return string(r)
}

func (o *Optimizer) statusLine(rc *RunContext, enabled []*parameter, total float64) string {
	var b strings.Builder
	for _, p := range enabled {
		fmt.Fprintf(&b, "%s=%.2f ", p.key, p.last)
	}
	stage1, stage2 := rc.Selection()
	if o.stages[0].enabled {
		fmt.Fprintf(&b, "S1P=%s ", abbreviate(stage1))
	}
	if o.stages[1].enabled {
		fmt.Fprintf(&b, "S2P=%s ", abbreviate(stage2))
	}
	fmt.Fprintf(&b, "Err=%.2f", total)
	return b.String()
}

// tag names the active search in log lines.
func (o *Optimizer) tag() string {
	if o.cfg.Algorithm == constants.AlgorithmGrid {
		return "Grid"
	}
	return "NM"
}

func (o *Optimizer) label(status string) string {
	return fmt.Sprintf("%s (%s)", status, o.tag())
}

// logCurrent emits one per-outcome line. record is nil when the design was
// not simulated.
func (o *Optimizer) logCurrent(rc *RunContext, label string, stability float64, record *optimization.BestResult, reason string) {
	var b strings.Builder
	b.WriteString(label + ":")
	for _, p := range o.params {
		fmt.Fprintf(&b, " %s=%.2f", p.key, p.last)
	}
	stage1, stage2 := rc.Selection()
	fmt.Fprintf(&b, " S1P=%s S2P=%s", stage1, stage2)
	if record != nil {
		fmt.Fprintf(&b, " | Apogee=%.1fm (Δ=%.1f)", record.Apogee, record.AltitudeScore)
		fmt.Fprintf(&b, " | Duration=%.2fs (Δ=%.2f)", record.Duration, record.DurationScore)
		fmt.Fprintf(&b, " | Total Score=%.2f", record.TotalScore)
	}
	if !math.IsNaN(stability) {
		fmt.Fprintf(&b, " | Stability=%.2f cal", stability)
	}
	if reason != "" {
		fmt.Fprintf(&b, " | Reason=%s", reason)
	}
	o.log(b.String())
}
