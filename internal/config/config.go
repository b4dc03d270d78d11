// Package config defines the data structures related to configuration and
// includes functions for loading, normalizing and validating the config.
package config

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"github.com/iwvelando/airframe-optimizer/pkg/validation"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for one optimization run.
type Configuration struct {
	Airframe   AirframeConfig    `yaml:"airframe" mapstructure:"airframe"`
	Catalog    CatalogConfig     `yaml:"catalog,omitempty" mapstructure:"catalog"`
	Targets    Targets           `yaml:"targets" mapstructure:"targets"`
	Enabled    map[string]bool   `yaml:"enabled,omitempty" mapstructure:"enabled"`
	Bounds     map[string]Range  `yaml:"bounds,omitempty" mapstructure:"bounds"`
	Algorithm  string            `yaml:"algorithm,omitempty" mapstructure:"algorithm"`
	Simulation SimulationConfig  `yaml:"simulation,omitempty" mapstructure:"simulation"`
	Logging    LoggingConfig     `yaml:"logging,omitempty" mapstructure:"logging"`
	Output     OutputConfig      `yaml:"output,omitempty" mapstructure:"output"`
}

// AirframeConfig locates the design document.
type AirframeConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	OutputPath string `yaml:"outputPath,omitempty" mapstructure:"outputPath"` // defaults to Path
}

// CatalogConfig locates the parachute preset catalog.
type CatalogConfig struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// Targets are the acceptable flight characteristics.
type Targets struct {
	Altitude  Range `yaml:"altitude" mapstructure:"altitude"`   // meters
	Duration  Range `yaml:"duration" mapstructure:"duration"`   // seconds
	Stability Range `yaml:"stability" mapstructure:"stability"` // calibers
}

// SimulationConfig tunes the evaluation gateway.
type SimulationConfig struct {
	TimeoutMs int    `yaml:"timeoutMs,omitempty" mapstructure:"timeoutMs"`
	Attempts  int    `yaml:"attempts,omitempty" mapstructure:"attempts"`
	BackoffMs int    `yaml:"backoffMs,omitempty" mapstructure:"backoffMs"`
	Backoff   string `yaml:"backoff,omitempty" mapstructure:"backoff"` // constant, exponential
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv, json
}

// Range is a closed interval where a nil side means unbounded.
type Range struct {
	Min *float64 `yaml:"min,omitempty" mapstructure:"min" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" mapstructure:"max" json:"max,omitempty"`
}

// NewRange builds a Range. Infinite or NaN sides are stored as unbounded.
func NewRange(min, max float64) Range {
	var r Range
	if !math.IsInf(min, 0) && !math.IsNaN(min) {
		r.Min = &min
	}
	if !math.IsInf(max, 0) && !math.IsNaN(max) {
		r.Max = &max
	}
	return r
}

// Lower returns the minimum, or -Inf when unbounded.
func (r Range) Lower() float64 {
	if r.Min == nil {
		return math.Inf(-1)
	}
	return *r.Min
}

// Upper returns the maximum, or +Inf when unbounded.
func (r Range) Upper() float64 {
	if r.Max == nil {
		return math.Inf(1)
	}
	return *r.Max
}

// Validate rejects a range whose finite minimum exceeds its finite maximum.
func (r Range) Validate(name string) error {
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("%s minimum %g must not exceed maximum %g", name, *r.Min, *r.Max)
	}
	return nil
}

// String renders the range with unbounded sides spelled out.
func (r Range) String() string {
	lo, hi := "unbounded", "unbounded"
	if r.Min != nil {
		lo = fmt.Sprintf("%g", *r.Min)
	}
	if r.Max != nil {
		hi = fmt.Sprintf("%g", *r.Max)
	}
	return fmt.Sprintf("[%s, %s]", lo, hi)
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Relative airframe and catalog paths are resolved
// against the directory of the configuration file.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("AIRFRAME_OPTIMIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	configuration, err := decode(v)
	if err != nil {
		return nil, err
	}
	configuration.ResolvePaths(filepath.Dir(configPath))
	return configuration, nil
}

// LoadConfigurationFromReader loads a YAML configuration from r. Relative
// paths are left as they are.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading config, %s", err)
	}
	v := viper.New()
	v.SetConfigType("yml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("error reading config, %s", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	configuration.Normalize()
	return &configuration, nil
}

// ResolvePaths joins relative file references onto baseDir.
func (c *Configuration) ResolvePaths(baseDir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	c.Airframe.Path = resolve(c.Airframe.Path)
	c.Airframe.OutputPath = resolve(c.Airframe.OutputPath)
	c.Catalog.Path = resolve(c.Catalog.Path)
}

// Normalize canonicalizes keys and applies defaults. Viper lowercases map
// keys, so enabled flags and bounds are re-keyed by canonical name.
func (c *Configuration) Normalize() {
	if c.Enabled != nil {
		enabled := make(map[string]bool, len(c.Enabled))
		for k, v := range c.Enabled {
			enabled[CanonicalKey(k)] = v
		}
		c.Enabled = enabled
	}
	if c.Bounds != nil {
		bounds := make(map[string]Range, len(c.Bounds))
		for k, v := range c.Bounds {
			bounds[CanonicalKey(k)] = v
		}
		c.Bounds = bounds
	}

	c.Algorithm = strings.ToLower(strings.TrimSpace(c.Algorithm))
	if c.Algorithm == "" {
		c.Algorithm = constants.AlgorithmNelderMead
	}
	if c.Simulation.TimeoutMs <= 0 {
		c.Simulation.TimeoutMs = int(constants.SimulationTimeout / time.Millisecond)
	}
	if c.Simulation.Attempts <= 0 {
		c.Simulation.Attempts = constants.SimulationAttempts
	}
	if c.Simulation.BackoffMs <= 0 {
		c.Simulation.BackoffMs = int(constants.SimulationBackoff / time.Millisecond)
	}
	if c.Simulation.Backoff == "" {
		c.Simulation.Backoff = "constant"
	}
	if c.Output.Format == "" {
		c.Output.Format = constants.OutputFormatPretty
	}
	if c.Airframe.OutputPath == "" {
		c.Airframe.OutputPath = c.Airframe.Path
	}
}

// IsEnabled reports whether a parameter, criterion or parachute stage is
// enabled. Missing keys default to enabled.
func (c *Configuration) IsEnabled(key string) bool {
	if c.Enabled == nil {
		return true
	}
	enabled, ok := c.Enabled[CanonicalKey(key)]
	if !ok {
		return true
	}
	return enabled
}

// SetEnabled sets a flag by any accepted spelling of its key.
func (c *Configuration) SetEnabled(key string, enabled bool) {
	if c.Enabled == nil {
		c.Enabled = make(map[string]bool)
	}
	c.Enabled[CanonicalKey(key)] = enabled
}

// Validate returns an error when the configuration cannot drive a run.
func (c *Configuration) Validate() error {
	if strings.TrimSpace(c.Airframe.Path) == "" {
		return fmt.Errorf("airframe path is required")
	}
	if err := validation.ValidateAlgorithm(c.Algorithm); err != nil {
		return err
	}
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return err
	}
	if err := c.Targets.Altitude.Validate("altitude target"); err != nil {
		return err
	}
	if err := c.Targets.Duration.Validate("duration target"); err != nil {
		return err
	}
	if err := c.Targets.Stability.Validate("stability target"); err != nil {
		return err
	}
	for key := range c.Enabled {
		if !IsKnownKey(key) {
			return fmt.Errorf("enabled flag %q is not a known parameter, criterion or parachute stage", key)
		}
	}
	for key, r := range c.Bounds {
		if !IsParameterKey(key) {
			return fmt.Errorf("bounds given for unknown parameter %q", key)
		}
		if err := r.Validate(DisplayName(key) + " bounds"); err != nil {
			return err
		}
	}
	return nil
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string

	anyParam := false
	for _, key := range ParameterKeys {
		if c.IsEnabled(key) {
			anyParam = true
			break
		}
	}
	anyStage := c.IsEnabled(KeyStage1Parachute) || c.IsEnabled(KeyStage2Parachute)
	if !anyParam && !anyStage {
		warnings = append(warnings, "no parameter or parachute stage is enabled; the run will not change the airframe")
	}
	if !c.IsEnabled(KeyAltitudeScore) && !c.IsEnabled(KeyDurationScore) {
		warnings = append(warnings, "altitude and duration scores are both disabled; every stable design scores 0")
	}
	scored := map[string][2]float64{}
	if c.IsEnabled(KeyAltitudeScore) {
		scored["altitude"] = [2]float64{c.Targets.Altitude.Lower(), c.Targets.Altitude.Upper()}
	}
	if c.IsEnabled(KeyDurationScore) {
		scored["duration"] = [2]float64{c.Targets.Duration.Lower(), c.Targets.Duration.Upper()}
	}
	warnings = append(warnings, validation.ValidateTargetRanges(scored)...)
	if c.Targets.Stability.Min == nil && c.Targets.Stability.Max == nil {
		warnings = append(warnings, "stability target is unbounded; unstable designs will not be penalized")
	}
	for key, r := range c.Bounds {
		if !c.IsEnabled(key) && (r.Min != nil || r.Max != nil) {
			warnings = append(warnings, fmt.Sprintf("bounds given for %s, which is disabled", DisplayName(key)))
		}
	}
	return warnings
}
