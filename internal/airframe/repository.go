package airframe

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Simulation defaults applied when a document leaves them out.
const (
	DefaultTimeStep = 0.01
	DefaultMaxTime  = 600.0
	DefaultBodyCd   = 0.45
)

// Repository loads and stores airframe documents on disk.
type Repository struct {
	logger *zap.Logger
}

// NewRepository creates a Repository.
func NewRepository(logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{logger: logger}
}

// Load reads, validates and recomputes the design stored at path.
func (r *Repository) Load(path string) (*Airframe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open airframe %s: %w", path, err)
	}
	defer f.Close()

	a, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load airframe %s: %w", path, err)
	}
	r.logger.Debug("loaded airframe",
		zap.String("op", "airframe.Load"),
		zap.String("path", path),
		zap.String("name", a.Name),
		zap.Float64("mass", a.Derived.Mass),
	)
	return a, nil
}

// Save writes the design to path, creating parent directories as needed.
// The file is written to a temporary sibling first and renamed into place.
func (r *Repository) Save(a *Airframe, path string) error {
	data, err := Encode(a)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write airframe %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace airframe %s: %w", path, err)
	}
	r.logger.Info("saved airframe",
		zap.String("op", "airframe.Save"),
		zap.String("path", path),
	)
	return nil
}

// Decode parses a YAML airframe document.
func Decode(rd io.Reader) (*Airframe, error) {
	var a Airframe
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("error decoding airframe: %w", err)
	}
	a.applyDefaults()
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.Recompute()
	return &a, nil
}

// Encode renders the design as YAML.
func Encode(a *Airframe) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("error encoding airframe: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("error encoding airframe: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *Airframe) applyDefaults() {
	if a.Simulation.TimeStep <= 0 {
		a.Simulation.TimeStep = DefaultTimeStep
	}
	if a.Simulation.MaxTime <= 0 {
		a.Simulation.MaxTime = DefaultMaxTime
	}
	if a.Simulation.BodyCd <= 0 {
		a.Simulation.BodyCd = DefaultBodyCd
	}
	if a.NoseCone != nil && a.NoseCone.Shape == "" {
		a.NoseCone.Shape = ShapeOgive
	}
	for _, chute := range a.Parachutes() {
		if chute.Deploy == "" {
			chute.Deploy = DeployApogee
		}
	}
}
