package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Body is one simulated mass. Force only carries meaning between force
// evaluation and integration of a single step.
type Body struct {
	Valid   bool
	Name    string
	Mass    float64
	Density float64
	Pos     r2.Vec
	Vel     r2.Vec
	Force   r2.Vec
}

func NewBody(name string, mass, density float64, pos, vel r2.Vec) *Body {
	return &Body{
		Valid:   true,
		Name:    name,
		Mass:    mass,
		Density: density,
		Pos:     pos,
		Vel:     vel,
	}
}

// Radius of a sphere of the body's mass and density. Non-positive density
// yields 1.
func (b *Body) Radius() float64 {
	if b.Density <= 0 {
		return 1
	}
	volume := b.Mass / b.Density
	return math.Cbrt((3 * volume) / (4 * math.Pi))
}

// DensityFromRadius inverts Radius: the density a sphere of the given mass
// and radius has. A zero volume gives 0.
func DensityFromRadius(mass, radius float64) float64 {
	volume := (4.0 / 3.0) * math.Pi * radius * radius * radius
	if volume <= 0 {
		return 0
	}
	return mass / volume
}

// Momentum is m·v.
func (b *Body) Momentum() r2.Vec {
	return r2.Scale(b.Mass, b.Vel)
}

func (b *Body) Clone() *Body {
	c := *b
	return &c
}
