// Package constants provides shared constants for the airframe-optimizer application.
package constants

import "time"

// Evaluation gateway defaults
const (
	// SimulationTimeout is the hard deadline for one simulator attempt
	SimulationTimeout = 2000 * time.Millisecond

	// SimulationAttempts is the total number of attempts (first try plus retries)
	SimulationAttempts = 2

	// SimulationBackoff is the pause between two attempts
	SimulationBackoff = 100 * time.Millisecond
)

// Nelder-Mead defaults
const (
	// NelderMeadReflection is the reflection coefficient (alpha)
	NelderMeadReflection = 1.0

	// NelderMeadExpansion is the expansion coefficient (gamma)
	NelderMeadExpansion = 2.0

	// NelderMeadContraction is the contraction coefficient (rho)
	NelderMeadContraction = 0.5

	// NelderMeadShrink is the shrink coefficient (sigma)
	NelderMeadShrink = 0.5

	// NelderMeadMaxIterations caps the iterations of one simplex search
	NelderMeadMaxIterations = 100

	// NelderMeadTolerance is the spread of objective values that counts as converged
	NelderMeadTolerance = 1e-4

	// NelderMeadPerturbation is the relative offset used to build the initial simplex
	NelderMeadPerturbation = 0.05
)

// Grid search defaults
const (
	// GridPhases is the number of refinement phases of the grid search
	GridPhases = 5

	// GridStopError ends the grid search early once the best error drops below it
	GridStopError = 1.0

	// GridMaxFinCount caps fin-count enumeration
	GridMaxFinCount = 8

	// GridProgressionLength is the number of candidates tried for a half-open range
	GridProgressionLength = 5
)

// Scoring constants
const (
	// StabilityPenaltyBase is added to every out-of-range stability evaluation
	StabilityPenaltyBase = 1000.0

	// StabilityPenaltyScale multiplies the distance outside the stability range
	StabilityPenaltyScale = 100.0

	// DurationWeight weights the duration sub-score relative to altitude
	DurationWeight = 4.0
)

// Bounds constants
const (
	// MinStep is the smallest step for continuous parameters
	MinStep = 0.01

	// MinIntegerStep is the smallest step for integer parameters
	MinIntegerStep = 1.0

	// StepDivisions is the number of steps across a bounded range
	StepDivisions = 10.0

	// HalfOpenStepFraction is the step fraction used when one side is unbounded
	HalfOpenStepFraction = 0.1

	// FinHeightRadiusFactor bounds fin height relative to body-tube outer radius
	FinHeightRadiusFactor = 3.0

	// CentimetersPerMeter converts simulator meters to display centimeters
	CentimetersPerMeter = 100.0
)

// Parachute option labels
const (
	// ParachuteNone restores the stage's original parachute
	ParachuteNone = "None"

	// ParachuteDefault names a parachute component that has no preset
	ParachuteDefault = "Default Parachute"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Algorithm names
const (
	// AlgorithmNelderMead selects the simplex search
	AlgorithmNelderMead = "nelder-mead"

	// AlgorithmGrid selects the legacy phased grid search
	AlgorithmGrid = "grid"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum size of an uploaded run configuration (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// DefaultEventBuffer is the per-subscriber buffer of the run event stream
	DefaultEventBuffer = 256
)
