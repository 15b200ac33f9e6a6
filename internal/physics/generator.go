package physics

import (
	"fmt"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r2"
)

// Densities range from water to rock and metal.
const (
	DensityMin = 1000
	DensityMax = 20000

	// velocity components are drawn from [-VelocitySpan, VelocitySpan)
	VelocitySpan = 1.0
)

type GeneratorConfig struct {
	Count   int     `json:"count"`
	XMin    float64 `json:"x_min"`
	XMax    float64 `json:"x_max"`
	YMin    float64 `json:"y_min"`
	YMax    float64 `json:"y_max"`
	MassMin float64 `json:"mass_min"`
	MassMax float64 `json:"mass_max"`
}

// Normalized returns the config with every degenerate range widened to a
// span of 1 and a negative count clamped to 0.
func (c GeneratorConfig) Normalized() GeneratorConfig {
	if c.Count < 0 {
		c.Count = 0
	}
	if c.XMax <= c.XMin {
		c.XMax = c.XMin + 1
	}
	if c.YMax <= c.YMin {
		c.YMax = c.YMin + 1
	}
	if c.MassMax <= c.MassMin {
		c.MassMax = c.MassMin + 1
	}
	return c
}

// Generator produces random universes from its own seeded source. Calls from
// several goroutines are serialized per universe.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(seed uint64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate builds cfg.Count bodies named cp0, cp1, ... with uniformly drawn
// mass, density, position and velocity.
func (g *Generator) Generate(cfg GeneratorConfig, opts ...Option) *Universe {
	cfg = cfg.Normalized()
	u := New(opts...)
	if cfg.Count == 0 {
		return u
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	u.bodies = make([]*Body, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		mass := g.uniform(cfg.MassMin, cfg.MassMax)
		density := g.uniform(DensityMin, DensityMax)
		pos := r2.Vec{
			X: g.uniform(cfg.XMin, cfg.XMax),
			Y: g.uniform(cfg.YMin, cfg.YMax),
		}
		vel := r2.Vec{
			X: g.uniform(-VelocitySpan, VelocitySpan),
			Y: g.uniform(-VelocitySpan, VelocitySpan),
		}
		u.bodies = append(u.bodies, NewBody(fmt.Sprintf("cp%d", i), mass, density, pos, vel))
	}
	return u
}

// uniform draws from [lo, hi). Callers hold g.mu.
func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rnd.Float64()*(hi-lo)
}
