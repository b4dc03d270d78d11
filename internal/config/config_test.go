package config

import (
	"math"
	"path/filepath"
	"strings"
	"testing"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestLoadConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		configPath string
		wantError  bool
	}{
		{
			name:       "Non-existent config file",
			configPath: "nonexistent.yaml",
			wantError:  true,
		},
		{
			name:       "Example config",
			configPath: "../../test/test_config.yaml",
			wantError:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfiguration(tt.configPath)
			if tt.wantError {
				if err == nil {
					t.Errorf("LoadConfiguration() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("LoadConfiguration() error = %v", err)
				return
			}
			if config == nil {
				t.Errorf("LoadConfiguration() returned nil config")
			}
		})
	}
}

func TestLoadConfigurationExample(t *testing.T) {
	config, err := LoadConfiguration("../../test/test_config.yaml")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if want := filepath.Join("..", "..", "test", "test_airframe.yaml"); config.Airframe.Path != want {
		t.Fatalf("Airframe.Path = %q, expected %q", config.Airframe.Path, want)
	}
	if want := filepath.Join("..", "..", "test", "test_parachutes.yaml"); config.Catalog.Path != want {
		t.Fatalf("Catalog.Path = %q, expected %q", config.Catalog.Path, want)
	}
	if config.Targets.Altitude.Lower() != 200 || config.Targets.Altitude.Upper() != 250 {
		t.Fatalf("unexpected altitude target %s", config.Targets.Altitude)
	}
	if config.Targets.Stability.Lower() != 1 || config.Targets.Stability.Upper() != 2 {
		t.Fatalf("unexpected stability target %s", config.Targets.Stability)
	}

	// Viper lowercases keys; Normalize restores canonical spelling.
	if _, ok := config.Enabled[KeyStage1Parachute]; !ok {
		t.Fatalf("expected canonical key %q in %v", KeyStage1Parachute, config.Enabled)
	}
	if config.IsEnabled(KeyFinCount) {
		t.Fatalf("finCount should be disabled")
	}
	if !config.IsEnabled(KeyHeight) || !config.IsEnabled(KeyStage1Parachute) || config.IsEnabled(KeyStage2Parachute) {
		t.Fatalf("unexpected enabled flags %v", config.Enabled)
	}

	height, ok := config.Bounds[KeyHeight]
	if !ok || height.Lower() != 2 || height.Upper() != 10 {
		t.Fatalf("unexpected height bounds %+v", config.Bounds)
	}
	chord := config.Bounds[KeyRootChord]
	if chord.Lower() != 4 || !math.IsInf(chord.Upper(), 1) {
		t.Fatalf("rootChord max should be unbounded, got %s", chord)
	}

	if config.Simulation.TimeoutMs != 2000 || config.Simulation.Attempts != 2 || config.Simulation.BackoffMs != 100 {
		t.Fatalf("unexpected simulation config %+v", config.Simulation)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadConfigurationFromReader(t *testing.T) {
	doc := `
airframe:
  path: rocket.yaml
targets:
  altitude: {min: 100}
enabled:
  "Fin Height (cm)": false
`
	config, err := LoadConfigurationFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadConfigurationFromReader() error = %v", err)
	}
	if config.Airframe.Path != "rocket.yaml" || config.Airframe.OutputPath != "rocket.yaml" {
		t.Fatalf("unexpected airframe config %+v", config.Airframe)
	}
	if config.IsEnabled(KeyHeight) {
		t.Fatal("display-name key should disable height")
	}
	if config.Algorithm != "nelder-mead" || config.Output.Format != "pretty" {
		t.Fatalf("defaults not applied: %q %q", config.Algorithm, config.Output.Format)
	}
	if !math.IsInf(config.Targets.Altitude.Upper(), 1) || !math.IsInf(config.Targets.Duration.Lower(), -1) {
		t.Fatal("missing target sides must be unbounded")
	}
}

func TestIsEnabledDefaultsToTrue(t *testing.T) {
	config := &Configuration{}
	for _, key := range append(ParameterKeys, KeyAltitudeScore, KeyStage2Parachute) {
		if !config.IsEnabled(key) {
			t.Fatalf("%s should default to enabled", key)
		}
	}
	config.SetEnabled("NOSELENGTH", false)
	if config.IsEnabled(KeyNoseLength) {
		t.Fatal("SetEnabled should canonicalize the key")
	}
}

func TestRange(t *testing.T) {
	r := NewRange(math.Inf(-1), 5)
	if r.Min != nil || r.Max == nil || *r.Max != 5 {
		t.Fatalf("unexpected range %+v", r)
	}
	if r.String() != "[unbounded, 5]" {
		t.Fatalf("String() = %q", r.String())
	}
	if err := (Range{Min: floatPtr(3), Max: floatPtr(1)}).Validate("x"); err == nil {
		t.Fatal("expected an error for min > max")
	}
	if err := (Range{Min: floatPtr(3)}).Validate("x"); err != nil {
		t.Fatalf("half-open range must validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Configuration {
		c := &Configuration{Airframe: AirframeConfig{Path: "rocket.yaml"}}
		c.Normalize()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr string
	}{
		{"valid", func(c *Configuration) {}, ""},
		{"missing airframe", func(c *Configuration) { c.Airframe.Path = "" }, "airframe path"},
		{"bad algorithm", func(c *Configuration) { c.Algorithm = "genetic" }, "expected algorithm of"},
		{"bad output", func(c *Configuration) { c.Output.Format = "xml" }, "output format"},
		{"inverted target", func(c *Configuration) {
			c.Targets.Duration = Range{Min: floatPtr(50), Max: floatPtr(40)}
		}, "duration target"},
		{"unknown flag", func(c *Configuration) { c.Enabled = map[string]bool{"wingspan": true} }, "wingspan"},
		{"unknown bound", func(c *Configuration) { c.Bounds = map[string]Range{KeyAltitudeScore: {}} }, "unknown parameter"},
		{"inverted bound", func(c *Configuration) {
			c.Bounds = map[string]Range{KeyHeight: {Min: floatPtr(5), Max: floatPtr(2)}}
		}, "Fin Height bounds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateConfigurationWarnings(t *testing.T) {
	c := &Configuration{Enabled: map[string]bool{}}
	for _, key := range ParameterKeys {
		c.Enabled[key] = false
	}
	c.Enabled[KeyStage1Parachute] = false
	c.Enabled[KeyStage2Parachute] = false
	c.Enabled[KeyAltitudeScore] = false
	c.Enabled[KeyDurationScore] = false

	warnings := c.ValidateConfiguration()
	joined := strings.Join(warnings, "\n")
	for _, want := range []string{"no parameter", "both disabled", "stability target is unbounded"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected a warning containing %q, got %v", want, warnings)
		}
	}
}
