package physics

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"
)

// integrate advances every valid body by dt from its accumulated force.
// Each body only touches its own fields, so the snapshot is split into
// contiguous chunks and processed concurrently.
func integrate(bodies []*Body, dt float64, workers int) {
	n := len(bodies)
	if n == 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers == 1 {
		for _, b := range bodies {
			advance(b, dt)
		}
		return
	}

	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(part []*Body) {
			defer wg.Done()
			for _, b := range part {
				advance(b, dt)
			}
		}(bodies[start:end])
	}
	wg.Wait()
}

// advance applies s = s0 + v0·t + a·t²/2 and then v = v0 + a·t.
func advance(b *Body, dt float64) {
	if !b.Valid || b.Mass == 0 {
		return
	}
	acc := r2.Scale(1/b.Mass, b.Force)
	b.Pos = r2.Add(r2.Add(b.Pos, r2.Scale(dt, b.Vel)), r2.Scale(dt*dt/2, acc))
	b.Vel = r2.Add(b.Vel, r2.Scale(dt, acc))
}
