// Package optimizer searches airframe parameters and parachute selections
// for a design whose simulated flight lands inside the target ranges.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"github.com/iwvelando/airframe-optimizer/internal/catalog"
	"github.com/iwvelando/airframe-optimizer/internal/config"
	"github.com/iwvelando/airframe-optimizer/internal/flightsim"
	"github.com/iwvelando/airframe-optimizer/internal/gateway"
	"github.com/iwvelando/airframe-optimizer/internal/stability"
	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"github.com/iwvelando/airframe-optimizer/pkg/neldermead"
	"github.com/iwvelando/airframe-optimizer/pkg/optimization"
	"go.uber.org/zap"
)

var (
	// ErrNoFinSet is returned when the airframe carries no fin set.
	ErrNoFinSet = airframe.ErrNoFinSet
	// ErrNoNoseCone is returned when the airframe carries no nose cone.
	ErrNoNoseCone = airframe.ErrNoNoseCone
	// ErrInvalidBounds is returned for a user range with min > max.
	ErrInvalidBounds = errors.New("invalid bounds")
	// ErrRunInProgress is returned when a run is already active.
	ErrRunInProgress = errors.New("optimization run in progress")
	// ErrNoBestResult is returned by Save before any result was recorded.
	ErrNoBestResult = errors.New("no optimized result to save")
)

// Simulator flies an airframe. It may be slow or hang; every call goes
// through the evaluation gateway.
type Simulator interface {
	Simulate(ctx context.Context, a *airframe.Airframe) (flightsim.Outcome, error)
}

// StabilityCalculator returns the static margin in calibers, or NaN.
type StabilityCalculator interface {
	Margin(a *airframe.Airframe) float64
}

// PresetCatalog lists and applies parachute presets.
type PresetCatalog interface {
	Presets() []*airframe.Preset
	DisplayName(p *airframe.Preset) string
	FindByDisplayName(name string) *airframe.Preset
	Apply(chute *airframe.Parachute, p *airframe.Preset)
}

// AirframeRepository loads and stores airframe documents.
type AirframeRepository interface {
	Load(path string) (*airframe.Airframe, error)
	Save(a *airframe.Airframe, path string) error
}

// Dependencies are the collaborators of an Optimizer. Airframe and
// Simulator are required; the others have reference defaults.
type Dependencies struct {
	Airframe   *airframe.Airframe
	Repository AirframeRepository
	Simulator  Simulator
	Stability  StabilityCalculator
	Catalog    PresetCatalog
}

// Hooks receive run output. They are called synchronously on the run
// goroutine; a panicking hook is recovered and logged.
type Hooks struct {
	OnLog      func(line string)
	OnStatus   func(status string)
	OnProgress func(p optimization.Progress)
}

// State is the lifecycle state of an Optimizer.
type State string

// Run states.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithHooks registers output hooks.
func WithHooks(h Hooks) Option {
	return func(o *Optimizer) { o.hooks = h }
}

// WithSettings overrides the simplex settings.
func WithSettings(s neldermead.Settings) Option {
	return func(o *Optimizer) { o.settings = s }
}

// WithGatewayOptions overrides the simulation deadline and retry policy
// taken from the configuration.
func WithGatewayOptions(opts gateway.Options) Option {
	return func(o *Optimizer) { o.gatewayOpts = &opts }
}

// Optimizer owns one airframe and runs searches on it.
type Optimizer struct {
	logger      *zap.Logger
	cfg         *config.Configuration
	airframe    *airframe.Airframe
	repo        AirframeRepository
	stability   StabilityCalculator
	catalog     PresetCatalog
	gateway     *gateway.Gateway
	gatewayOpts *gateway.Options
	hooks       Hooks
	settings    neldermead.Settings

	params []*parameter
	byKey  map[string]*parameter
	stages [2]*stage

	mu     sync.Mutex
	state  State
	rc     *RunContext
	cancel context.CancelFunc
	done   chan struct{}
}

// New locates the tunable components of the airframe, derives their
// physical limits, captures the original values and applies the configured
// bounds. A missing fin set or nose cone is fatal.
func New(logger *zap.Logger, cfg *config.Configuration, deps Dependencies, opts ...Option) (*Optimizer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if deps.Airframe == nil {
		return nil, fmt.Errorf("airframe cannot be nil")
	}
	if deps.Simulator == nil {
		return nil, fmt.Errorf("simulator cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Optimizer{
		logger:    logger,
		cfg:       cfg,
		airframe:  deps.Airframe,
		repo:      deps.Repository,
		stability: deps.Stability,
		catalog:   deps.Catalog,
		settings:  neldermead.DefaultSettings(),
		state:     StateIdle,
	}
	if o.repo == nil {
		o.repo = airframe.NewRepository(logger)
	}
	if o.stability == nil {
		o.stability = stability.NewCalculator(logger)
	}
	if o.catalog == nil {
		o.catalog = catalog.New(nil)
	}
	for _, opt := range opts {
		opt(o)
	}

	fins, tube, err := o.airframe.LastFinSet()
	if err != nil {
		return nil, fmt.Errorf("optimizer setup failed: %w", ErrNoFinSet)
	}
	nose, err := o.airframe.Nose()
	if err != nil {
		return nil, fmt.Errorf("optimizer setup failed: %w", ErrNoNoseCone)
	}
	o.params = buildParameters(fins, tube, nose)
	o.byKey = make(map[string]*parameter, len(o.params))
	for _, p := range o.params {
		o.byKey[p.key] = p
	}

	chutes := o.airframe.Parachutes()
	var chute1, chute2 *airframe.Parachute
	if len(chutes) > 0 {
		chute1 = chutes[0]
	}
	if len(chutes) > 1 {
		chute2 = chutes[1]
	}
	o.stages[0] = newStage(config.KeyStage1Parachute, chute1, cfg.IsEnabled(config.KeyStage1Parachute), o.catalog)
	o.stages[1] = newStage(config.KeyStage2Parachute, chute2, cfg.IsEnabled(config.KeyStage2Parachute), o.catalog)

	for _, key := range config.ParameterKeys {
		r, ok := cfg.Bounds[key]
		if !ok {
			continue
		}
		if err := o.UpdateBounds(key, r.Lower(), r.Upper()); err != nil {
			return nil, err
		}
	}

	gwOpts := gateway.Options{
		Timeout:  time.Duration(cfg.Simulation.TimeoutMs) * time.Millisecond,
		Attempts: cfg.Simulation.Attempts,
		Backoff: gateway.BackoffFromConfig(cfg.Simulation.Backoff,
			time.Duration(cfg.Simulation.BackoffMs)*time.Millisecond, 0),
	}
	if o.gatewayOpts != nil {
		gwOpts = *o.gatewayOpts
	}
	o.gateway = gateway.New(logger, deps.Simulator, gwOpts)

	logger.Debug("optimizer initialized",
		zap.String("op", "optimizer.New"),
		zap.String("finSet", fins.Name),
		zap.String("bodyTube", tube.Name),
		zap.Bool("stage1Parachute", chute1 != nil),
		zap.Bool("stage2Parachute", chute2 != nil),
		zap.String("algorithm", cfg.Algorithm),
	)
	return o, nil
}

// UpdateBounds narrows the range of a parameter. Infinite sides are
// unbounded. A range outside the physical limits collapses onto the
// violated limit with a warning; only min > max is an error.
func (o *Optimizer) UpdateBounds(key string, userMin, userMax float64) error {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return ErrRunInProgress
	}
	p, ok := o.byKey[config.CanonicalKey(key)]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("unknown parameter %q", key)
	}
	warning, err := p.updateBounds(userMin, userMax)
	min, max, step := p.min, p.max, p.step
	o.mu.Unlock()

	if err != nil {
		return err
	}
	if warning != "" {
		o.warn(warning, zap.String("op", "optimizer.UpdateBounds"), zap.String("parameter", p.key))
	}
	o.logger.Debug("bounds updated",
		zap.String("op", "optimizer.UpdateBounds"),
		zap.String("parameter", p.key),
		zap.Float64("min", min),
		zap.Float64("max", max),
		zap.Float64("step", step),
	)
	return nil
}

// Bounds returns the current range and step of a parameter.
func (o *Optimizer) Bounds(key string) (min, max, step float64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.byKey[config.CanonicalKey(key)]
	if !ok {
		return 0, 0, 0, fmt.Errorf("unknown parameter %q", key)
	}
	return p.min, p.max, p.step, nil
}

// State returns the lifecycle state.
func (o *Optimizer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Airframe returns the design owned by the optimizer.
func (o *Optimizer) Airframe() *airframe.Airframe {
	return o.airframe
}

func (o *Optimizer) runContext() *RunContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rc
}

// HasBestValues reports whether the last run recorded a result.
func (o *Optimizer) HasBestValues() bool {
	return o.Best() != nil
}

// Best returns a copy of the best record of the last run, or nil.
func (o *Optimizer) Best() *optimization.BestResult {
	rc := o.runContext()
	if rc == nil {
		return nil
	}
	return rc.Best()
}

// BestValues returns the best record as one map of parameter values and
// scores, or nil.
func (o *Optimizer) BestValues() map[string]float64 {
	best := o.Best()
	if best == nil {
		return nil
	}
	return best.Flatten()
}

// BestStage1Parachute returns the stage 1 selection of the best record.
func (o *Optimizer) BestStage1Parachute() string {
	if best := o.Best(); best != nil {
		return best.Stage1Parachute
	}
	return constants.ParachuteNone
}

// BestStage2Parachute returns the stage 2 selection of the best record.
func (o *Optimizer) BestStage2Parachute() string {
	if best := o.Best(); best != nil {
		return best.Stage2Parachute
	}
	return constants.ParachuteNone
}

// HasStage1Parachute reports whether the design has a first parachute.
func (o *Optimizer) HasStage1Parachute() bool {
	return o.stages[0].chute != nil
}

// HasStage2Parachute reports whether the design has a second parachute.
func (o *Optimizer) HasStage2Parachute() bool {
	return o.stages[1].chute != nil
}

// InitialValues returns the original raw value of every parameter.
func (o *Optimizer) InitialValues() map[string]float64 {
	values := make(map[string]float64, len(o.params))
	for _, p := range o.params {
		values[p.key] = p.original
	}
	return values
}

// Revert restores every parameter and parachute to its original state.
func (o *Optimizer) Revert() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		return ErrRunInProgress
	}
	o.revert()
	return nil
}

func (o *Optimizer) revert() {
	for _, p := range o.params {
		p.restore()
		p.last = p.original
	}
	for _, s := range o.stages {
		s.restore()
	}
	o.airframe.Recompute()
}

// applyBest writes a best record into the airframe. Parameters that were
// not optimized keep their exact original value.
func (o *Optimizer) applyBest(best *optimization.BestResult) error {
	for _, p := range o.params {
		v, ok := best.Values[p.key]
		if !ok || !o.cfg.IsEnabled(p.key) {
			p.restore()
			continue
		}
		if err := p.set(v); err != nil {
			return fmt.Errorf("failed to apply %s=%g: %w", p.key, v, err)
		}
	}
	warn := func(msg string) { o.warn(msg, zap.String("op", "optimizer.applyBest")) }
	o.stages[0].apply(best.Stage1Parachute, o.catalog, warn)
	o.stages[1].apply(best.Stage2Parachute, o.catalog, warn)
	o.airframe.Recompute()
	return nil
}

// Save applies the best result and writes the airframe to path, or to the
// configured output path when path is empty.
func (o *Optimizer) Save(path string) error {
	best := o.Best()
	if best == nil {
		return ErrNoBestResult
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		return ErrRunInProgress
	}
	if path == "" {
		path = o.cfg.Airframe.OutputPath
	}
	if err := o.applyBest(best); err != nil {
		return err
	}
	if err := o.repo.Save(o.airframe, path); err != nil {
		return fmt.Errorf("failed to save optimized airframe: %w", err)
	}
	o.logger.Info("saved optimized airframe",
		zap.String("op", "optimizer.Save"),
		zap.String("path", path),
		zap.Float64("totalScore", best.TotalScore),
	)
	return nil
}

func (o *Optimizer) callHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("hook panicked",
				zap.String("op", "optimizer.callHook"),
				zap.String("hook", name),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

func (o *Optimizer) log(line string) {
	o.logger.Debug(line, zap.String("op", "optimizer"))
	if o.hooks.OnLog != nil {
		o.callHook("log", func() { o.hooks.OnLog(line) })
	}
}

func (o *Optimizer) warn(line string, fields ...zap.Field) {
	o.logger.Warn(line, fields...)
	if o.hooks.OnLog != nil {
		o.callHook("log", func() { o.hooks.OnLog(line) })
	}
}

func (o *Optimizer) status(line string) {
	if o.hooks.OnStatus != nil {
		o.callHook("status", func() { o.hooks.OnStatus(line) })
	}
}

func (o *Optimizer) progress(p optimization.Progress) {
	if o.hooks.OnProgress != nil {
		o.callHook("progress", func() { o.hooks.OnProgress(p) })
	}
}

// validAbsoluteRange reports whether a parameter's physical limits admit
// at least one value.
func validAbsoluteRange(p *parameter) bool {
	return !math.IsNaN(p.absMin) && !math.IsNaN(p.absMax) && p.absMin <= p.absMax
}
