package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evaluation gateway, scoring and run-level counters.

var (
	// Gateway
	SimulationAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airframe_optimizer",
		Subsystem: "gateway",
		Name:      "simulation_attempts_total",
		Help:      "Total simulator attempts by result (ok, timeout, error, cancelled)",
	}, []string{"result"})

	SimulationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "airframe_optimizer",
		Subsystem: "gateway",
		Name:      "simulation_failures_total",
		Help:      "Total simulations that failed after retry exhaustion",
	})

	SimulationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "airframe_optimizer",
		Subsystem: "gateway",
		Name:      "simulation_duration_seconds",
		Help:      "Wall-clock duration of a single simulator attempt",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// Scoring
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airframe_optimizer",
		Subsystem: "scoring",
		Name:      "evaluations_total",
		Help:      "Total objective evaluations by outcome",
	}, []string{"outcome"})

	BestTotalScore = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "airframe_optimizer",
		Subsystem: "scoring",
		Name:      "best_total_score",
		Help:      "Total error of the most recently recorded best result",
	})

	// Runs
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airframe_optimizer",
		Subsystem: "runs",
		Name:      "finished_total",
		Help:      "Total finished optimization runs by final state",
	}, []string{"state"})

	RunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "airframe_optimizer",
		Subsystem: "runs",
		Name:      "active",
		Help:      "Optimization runs currently executing",
	})

	ParachuteCombinationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "airframe_optimizer",
		Subsystem: "runs",
		Name:      "parachute_combinations_total",
		Help:      "Total parachute combinations driven",
	})
)

// Evaluation outcome labels.
const (
	OutcomeScored           = "scored"
	OutcomeStabilityPenalty = "stability_penalty"
	OutcomeStabilityInvalid = "stability_invalid"
	OutcomeSimulationFailed = "simulation_failed"
	OutcomeWriteFailed      = "write_failed"
	OutcomeCancelled        = "cancelled"
)

// Simulation attempt result labels.
const (
	ResultOK        = "ok"
	ResultTimeout   = "timeout"
	ResultError     = "error"
	ResultCancelled = "cancelled"
)
