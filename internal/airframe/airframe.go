// Package airframe models a single-stage rocket design: a nose cone followed
// by body tubes that carry elliptical fin sets and recovery parachutes.
//
// All lengths are meters, masses kilograms and densities kg/m^3.
package airframe

import (
	"errors"
	"fmt"
	"math"
)

// Nose cone shapes.
const (
	ShapeOgive      = "ogive"
	ShapeConical    = "conical"
	ShapeElliptical = "elliptical"
)

// Parachute deployment events.
const (
	DeployApogee   = "apogee"
	DeployAltitude = "altitude"
)

var (
	// ErrInvalidValue is returned by setters for non-finite or negative values.
	ErrInvalidValue = errors.New("invalid value")
	// ErrNoFinSet is returned when the design carries no fin set.
	ErrNoFinSet = errors.New("airframe has no fin set")
	// ErrNoNoseCone is returned when the design carries no nose cone.
	ErrNoNoseCone = errors.New("airframe has no nose cone")
)

// Airframe is a loaded rocket design.
type Airframe struct {
	Name       string            `yaml:"name"`
	NoseCone   *NoseCone         `yaml:"noseCone,omitempty"`
	BodyTubes  []*BodyTube       `yaml:"bodyTubes"`
	Motor      Motor             `yaml:"motor"`
	Simulation SimulationOptions `yaml:"simulation"`

	// Derived is refreshed by Recompute.
	Derived Derived `yaml:"-"`
}

// NoseCone is the forward-most component.
type NoseCone struct {
	Shape         string  `yaml:"shape"`
	Length        float64 `yaml:"length"`
	BaseRadius    float64 `yaml:"baseRadius"`
	WallThickness float64 `yaml:"wallThickness"`
	Density       float64 `yaml:"density"`
}

// BodyTube is a cylindrical section. Tubes are stacked in document order.
type BodyTube struct {
	Name        string       `yaml:"name"`
	Length      float64      `yaml:"length"`
	OuterRadius float64      `yaml:"outerRadius"`
	Mass        float64      `yaml:"mass"`
	FinSets     []*FinSet    `yaml:"finSets,omitempty"`
	Parachutes  []*Parachute `yaml:"parachutes,omitempty"`
}

// FinSet is a set of identical elliptical fins mounted flush with the aft
// end of its body tube.
type FinSet struct {
	Name      string  `yaml:"name"`
	Count     int     `yaml:"count"`
	RootChord float64 `yaml:"rootChord"`
	Height    float64 `yaml:"height"`
	Thickness float64 `yaml:"thickness"`
	Density   float64 `yaml:"density"`
}

// Parachute is a recovery device.
type Parachute struct {
	Name           string  `yaml:"name"`
	Diameter       float64 `yaml:"diameter"`
	Cd             float64 `yaml:"cd"`
	Mass           float64 `yaml:"mass"`
	Deploy         string  `yaml:"deploy"`
	DeployAltitude float64 `yaml:"deployAltitude,omitempty"`
	Preset         *Preset `yaml:"preset,omitempty"`
}

// Preset is a catalog parachute applied to a Parachute component.
type Preset struct {
	Manufacturer string  `yaml:"manufacturer" json:"manufacturer"`
	PartNo       string  `yaml:"partNo" json:"partNo"`
	Diameter     float64 `yaml:"diameter" json:"diameter"`
	Cd           float64 `yaml:"cd" json:"cd"`
	Mass         float64 `yaml:"mass" json:"mass"`
}

// Motor is a constant-thrust motor mounted at the aft end of the last tube.
type Motor struct {
	Designation    string  `yaml:"designation"`
	AverageThrust  float64 `yaml:"averageThrust"`
	BurnTime       float64 `yaml:"burnTime"`
	TotalMass      float64 `yaml:"totalMass"`
	PropellantMass float64 `yaml:"propellantMass"`
	Length         float64 `yaml:"length"`
}

// SimulationOptions are the base options handed to the flight simulator.
type SimulationOptions struct {
	TimeStep       float64 `yaml:"timeStep"`
	MaxTime        float64 `yaml:"maxTime"`
	LaunchAltitude float64 `yaml:"launchAltitude"`
	BodyCd         float64 `yaml:"bodyCd"`
}

// Derived holds mass and geometry state computed from the components.
type Derived struct {
	Length          float64
	Mass            float64
	CG              float64
	ReferenceRadius float64
	NoseMass        float64
	FinMass         float64
}

// Caliber is the reference diameter used to normalize stability margins.
func (d Derived) Caliber() float64 {
	return 2 * d.ReferenceRadius
}

// ReferenceArea is the frontal area of the widest component.
func (d Derived) ReferenceArea() float64 {
	return math.Pi * d.ReferenceRadius * d.ReferenceRadius
}

func checkLength(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%s %v: %w", field, v, ErrInvalidValue)
	}
	return nil
}

// SetLength sets the nose cone length.
func (n *NoseCone) SetLength(v float64) error {
	if err := checkLength("nose length", v); err != nil {
		return err
	}
	n.Length = v
	return nil
}

// SetWallThickness sets the shell thickness. It cannot exceed the base radius.
func (n *NoseCone) SetWallThickness(v float64) error {
	if err := checkLength("nose wall thickness", v); err != nil {
		return err
	}
	if v > n.BaseRadius {
		return fmt.Errorf("nose wall thickness %v exceeds base radius %v: %w", v, n.BaseRadius, ErrInvalidValue)
	}
	n.WallThickness = v
	return nil
}

// SetThickness sets the fin thickness.
func (f *FinSet) SetThickness(v float64) error {
	if err := checkLength("fin thickness", v); err != nil {
		return err
	}
	f.Thickness = v
	return nil
}

// SetRootChord sets the fin root chord.
func (f *FinSet) SetRootChord(v float64) error {
	if err := checkLength("fin root chord", v); err != nil {
		return err
	}
	f.RootChord = v
	return nil
}

// SetHeight sets the fin semi-span.
func (f *FinSet) SetHeight(v float64) error {
	if err := checkLength("fin height", v); err != nil {
		return err
	}
	f.Height = v
	return nil
}

// SetCount sets the number of fins.
func (f *FinSet) SetCount(n int) error {
	if n < 1 {
		return fmt.Errorf("fin count %d: %w", n, ErrInvalidValue)
	}
	f.Count = n
	return nil
}

// Snapshot returns a copy of the parachute that shares no memory with it.
func (p *Parachute) Snapshot() Parachute {
	out := *p
	if p.Preset != nil {
		preset := *p.Preset
		out.Preset = &preset
	}
	return out
}

// Restore replaces the component state with a snapshot.
func (p *Parachute) Restore(s Parachute) {
	*p = s
	if s.Preset != nil {
		preset := *s.Preset
		p.Preset = &preset
	}
}

// ApplyPreset copies the physical properties of a preset onto the parachute.
func (p *Parachute) ApplyPreset(preset *Preset) {
	if preset == nil {
		return
	}
	cp := *preset
	p.Preset = &cp
	p.Diameter = preset.Diameter
	p.Cd = preset.Cd
	p.Mass = preset.Mass
}

// LastFinSet returns the last fin set in component order together with the
// body tube that carries it.
func (a *Airframe) LastFinSet() (*FinSet, *BodyTube, error) {
	for i := len(a.BodyTubes) - 1; i >= 0; i-- {
		tube := a.BodyTubes[i]
		if n := len(tube.FinSets); n > 0 {
			return tube.FinSets[n-1], tube, nil
		}
	}
	return nil, nil, ErrNoFinSet
}

// Nose returns the nose cone.
func (a *Airframe) Nose() (*NoseCone, error) {
	if a.NoseCone == nil {
		return nil, ErrNoNoseCone
	}
	return a.NoseCone, nil
}

// Parachutes returns every parachute in component order.
func (a *Airframe) Parachutes() []*Parachute {
	var out []*Parachute
	for _, tube := range a.BodyTubes {
		out = append(out, tube.Parachutes...)
	}
	return out
}

// FinSets returns every fin set in component order.
func (a *Airframe) FinSets() []*FinSet {
	var out []*FinSet
	for _, tube := range a.BodyTubes {
		out = append(out, tube.FinSets...)
	}
	return out
}

// Clone returns a deep copy of the design.
func (a *Airframe) Clone() *Airframe {
	out := *a
	if a.NoseCone != nil {
		nose := *a.NoseCone
		out.NoseCone = &nose
	}
	out.BodyTubes = make([]*BodyTube, len(a.BodyTubes))
	for i, tube := range a.BodyTubes {
		t := *tube
		t.FinSets = make([]*FinSet, len(tube.FinSets))
		for j, fs := range tube.FinSets {
			f := *fs
			t.FinSets[j] = &f
		}
		t.Parachutes = make([]*Parachute, len(tube.Parachutes))
		for j, chute := range tube.Parachutes {
			c := chute.Snapshot()
			t.Parachutes[j] = &c
		}
		out.BodyTubes[i] = &t
	}
	return &out
}

// Validate checks that the design can be simulated.
func (a *Airframe) Validate() error {
	if a.NoseCone == nil {
		return ErrNoNoseCone
	}
	switch a.NoseCone.Shape {
	case ShapeOgive, ShapeConical, ShapeElliptical:
	default:
		return fmt.Errorf("unknown nose cone shape %q", a.NoseCone.Shape)
	}
	if len(a.BodyTubes) == 0 {
		return errors.New("airframe has no body tube")
	}
	for _, tube := range a.BodyTubes {
		if tube.Length <= 0 || tube.OuterRadius <= 0 {
			return fmt.Errorf("body tube %q must have a positive length and radius", tube.Name)
		}
		for _, chute := range tube.Parachutes {
			switch chute.Deploy {
			case "", DeployApogee, DeployAltitude:
			default:
				return fmt.Errorf("parachute %q has unknown deploy event %q", chute.Name, chute.Deploy)
			}
		}
	}
	if a.Motor.BurnTime <= 0 || a.Motor.AverageThrust <= 0 {
		return errors.New("motor must have a positive thrust and burn time")
	}
	if a.Motor.PropellantMass > a.Motor.TotalMass {
		return errors.New("motor propellant mass exceeds total mass")
	}
	return nil
}
