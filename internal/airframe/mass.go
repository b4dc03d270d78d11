package airframe

import "math"

// Shell area correction and centroid location of a nose cone, as fractions
// of the equivalent cone surface and of the nose length.
var noseShapeFactors = map[string]struct{ area, cg float64 }{
	ShapeConical:    {area: 1.0, cg: 2.0 / 3.0},
	ShapeOgive:      {area: 1.1, cg: 0.6},
	ShapeElliptical: {area: 1.05, cg: 0.55},
}

// TubeStart returns the distance from the nose tip to the front of tube.
func (a *Airframe) TubeStart(tube *BodyTube) float64 {
	x := 0.0
	if a.NoseCone != nil {
		x = a.NoseCone.Length
	}
	for _, t := range a.BodyTubes {
		if t == tube {
			return x
		}
		x += t.Length
	}
	return math.NaN()
}

// FinLeadingEdge returns the distance from the nose tip to the root leading
// edge of a fin set carried by tube.
func (a *Airframe) FinLeadingEdge(tube *BodyTube, fs *FinSet) float64 {
	return a.TubeStart(tube) + tube.Length - fs.RootChord
}

// FinArea is the planform area of one elliptical fin.
func (f *FinSet) FinArea() float64 {
	return math.Pi / 4 * f.RootChord * f.Height
}

// ShellMass is the mass of the hollow nose cone.
func (n *NoseCone) ShellMass() float64 {
	factors, ok := noseShapeFactors[n.Shape]
	if !ok {
		factors = noseShapeFactors[ShapeOgive]
	}
	slant := math.Hypot(n.BaseRadius, n.Length)
	area := math.Pi * n.BaseRadius * slant * factors.area
	shell := area * n.WallThickness
	solid := math.Pi * n.BaseRadius * n.BaseRadius * n.Length / 3
	return math.Min(shell, solid) * n.Density
}

// CGFraction is the centroid of the shell as a fraction of its length.
func (n *NoseCone) CGFraction() float64 {
	factors, ok := noseShapeFactors[n.Shape]
	if !ok {
		factors = noseShapeFactors[ShapeOgive]
	}
	return factors.cg
}

// Recompute refreshes the mass-dependent and geometry-dependent state after
// component fields changed. The motor is included at its loaded mass.
func (a *Airframe) Recompute() {
	var d Derived
	var moment float64

	if nose := a.NoseCone; nose != nil {
		d.NoseMass = nose.ShellMass()
		d.Mass += d.NoseMass
		moment += d.NoseMass * nose.Length * nose.CGFraction()
		d.Length = nose.Length
		d.ReferenceRadius = nose.BaseRadius
	}

	for _, tube := range a.BodyTubes {
		start := d.Length
		center := start + tube.Length/2
		d.Mass += tube.Mass
		moment += tube.Mass * center
		d.ReferenceRadius = math.Max(d.ReferenceRadius, tube.OuterRadius)

		for _, fs := range tube.FinSets {
			m := float64(fs.Count) * fs.FinArea() * fs.Thickness * fs.Density
			d.FinMass += m
			d.Mass += m
			moment += m * (start + tube.Length - fs.RootChord/2)
		}
		for _, chute := range tube.Parachutes {
			d.Mass += chute.Mass
			moment += chute.Mass * center
		}
		d.Length += tube.Length
	}

	if a.Motor.TotalMass > 0 {
		d.Mass += a.Motor.TotalMass
		moment += a.Motor.TotalMass * (d.Length - a.Motor.Length/2)
	}

	if d.Mass > 0 {
		d.CG = moment / d.Mass
	} else {
		d.CG = math.NaN()
	}
	a.Derived = d
}
