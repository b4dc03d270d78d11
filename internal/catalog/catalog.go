// Package catalog provides the parachute preset catalog.
package catalog

import (
	"fmt"
	"io"
	"os"

	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Catalog is an ordered list of parachute presets.
type Catalog struct {
	presets []*airframe.Preset
	byName  map[string]*airframe.Preset
}

type document struct {
	Presets []airframe.Preset `yaml:"presets"`
}

// New builds a catalog from presets, dropping later duplicates by display name.
func New(presets []airframe.Preset) *Catalog {
	c := &Catalog{byName: make(map[string]*airframe.Preset, len(presets))}
	for i := range presets {
		p := presets[i]
		name := DisplayName(&p)
		if _, dup := c.byName[name]; dup {
			continue
		}
		c.presets = append(c.presets, &p)
		c.byName[name] = &p
	}
	return c
}

// Load reads a YAML preset list. An empty path yields an empty catalog.
func Load(logger *zap.Logger, path string) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return New(nil), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parachute catalog %s: %w", path, err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load parachute catalog %s: %w", path, err)
	}
	logger.Debug("loaded parachute catalog",
		zap.String("op", "catalog.Load"),
		zap.String("path", path),
		zap.Int("presets", len(c.presets)),
	)
	return c, nil
}

// Decode parses a YAML preset list.
func Decode(r io.Reader) (*Catalog, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("error decoding parachute catalog: %w", err)
	}
	for i, p := range doc.Presets {
		if p.Diameter <= 0 || p.Cd <= 0 || p.Mass < 0 {
			return nil, fmt.Errorf("preset %d (%s %s) has invalid physical properties", i, p.Manufacturer, p.PartNo)
		}
	}
	return New(doc.Presets), nil
}

// DisplayName renders a preset as "<Manufacturer> - <PartNo> (<diameter> cm)".
// A nil preset names the default parachute.
func DisplayName(p *airframe.Preset) string {
	if p == nil {
		return constants.ParachuteDefault
	}
	return fmt.Sprintf("%s - %s (%.1f cm)", p.Manufacturer, p.PartNo, p.Diameter*constants.CentimetersPerMeter)
}

// Presets lists the catalog in load order.
func (c *Catalog) Presets() []*airframe.Preset {
	out := make([]*airframe.Preset, len(c.presets))
	copy(out, c.presets)
	return out
}

// DisplayName renders a preset. It allows *Catalog to satisfy interfaces
// that carry the display policy with the catalog.
func (c *Catalog) DisplayName(p *airframe.Preset) string {
	return DisplayName(p)
}

// FindByDisplayName returns the preset with the given display name, or nil.
func (c *Catalog) FindByDisplayName(name string) *airframe.Preset {
	if name == "" || name == constants.ParachuteNone {
		return nil
	}
	return c.byName[name]
}

// Apply copies a preset onto a parachute component.
func (c *Catalog) Apply(chute *airframe.Parachute, p *airframe.Preset) {
	chute.ApplyPreset(p)
}

// Len returns the number of presets.
func (c *Catalog) Len() int {
	return len(c.presets)
}
