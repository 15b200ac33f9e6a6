package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Softening bounds the separation used in the inverse-square law so that
// coincident bodies never divide by zero.
const Softening = 1e-6

// evaluateForces accumulates the pairwise attraction of every unordered pair
// of valid bodies. It runs sequentially: different pairs write the same
// bodies.
func evaluateForces(bodies []*Body, g float64) {
	for i := 0; i < len(bodies); i++ {
		a := bodies[i]
		if !a.Valid {
			continue
		}
		for j := i + 1; j < len(bodies); j++ {
			b := bodies[j]
			if !b.Valid {
				continue
			}
			f := pairForce(a, b, g)
			a.Force = r2.Add(a.Force, f)
			b.Force = r2.Sub(b.Force, f)
		}
	}
}

// pairForce is the force b exerts on a.
func pairForce(a, b *Body, g float64) r2.Vec {
	delta := r2.Sub(b.Pos, a.Pos)
	invDist := 1 / math.Max(r2.Norm(delta), Softening)
	magnitude := g * a.Mass * b.Mass * invDist * invDist
	// delta is zero for coincident bodies, so is the force
	return r2.Scale(magnitude*invDist, delta)
}

func resetForces(bodies []*Body) {
	for _, b := range bodies {
		b.Force = r2.Vec{}
	}
}
