package physics

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// Merge describes one inelastic collision, reported after the winner has
// absorbed the loser.
type Merge struct {
	Winner string
	Loser  string
	Mass   float64
}

// MergeObserver is notified of every merge, in resolution order.
type MergeObserver func(Merge)

// resolveCollisions merges every overlapping pair of valid bodies and
// returns the number of merges. The heavier body survives; on equal mass the
// one earlier in the snapshot does. Losers stay in the slice, marked invalid.
func resolveCollisions(bodies []*Body, observe MergeObserver) int {
	merges := 0
	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			a, b := bodies[i], bodies[j]
			if !a.Valid {
				break
			}
			if !b.Valid || !overlapping(a, b) {
				continue
			}

			winner, loser := a, b
			if b.Mass > a.Mass {
				winner, loser = b, a
			}
			winnerName := winner.Name
			merge(winner, loser)
			merges++

			if observe != nil {
				observe(Merge{Winner: winnerName, Loser: loser.Name, Mass: winner.Mass})
			}
		}
	}
	return merges
}

func overlapping(a, b *Body) bool {
	return r2.Norm(r2.Sub(a.Pos, b.Pos)) <= a.Radius()+b.Radius()
}

// merge folds loser into winner conserving momentum. Density becomes the
// mass-weighted average of both.
func merge(winner, loser *Body) {
	total := winner.Mass + loser.Mass
	momentum := r2.Add(winner.Momentum(), loser.Momentum())

	winner.Vel = r2.Vec{X: momentum.X / total, Y: momentum.Y / total}
	winner.Density = (winner.Mass*winner.Density + loser.Mass*loser.Density) / total
	winner.Mass = total
	winner.Name += "+" + loser.Name

	loser.Valid = false
}

// compact drops invalid bodies in place, keeping the order of the rest.
func compact(bodies []*Body) []*Body {
	kept := bodies[:0]
	for _, b := range bodies {
		if b.Valid {
			kept = append(kept, b)
		}
	}
	clear(bodies[len(kept):])
	return kept
}
