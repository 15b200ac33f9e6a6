package physics

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// G is the gravitational constant in SI units.
const G = 6.67408e-11

// Universe is an ordered collection of bodies. Insertion order drives every
// pairwise pass and serialization.
//
// A Universe is not safe for concurrent use: Step owns the bodies while it
// runs, readers must only look at them between calls.
type Universe struct {
	bodies  []*Body
	g       float64
	workers int
	observe MergeObserver
}

type Option func(*Universe)

// WithWorkers bounds the integration fan-out. Zero or less uses one worker
// per CPU.
func WithWorkers(n int) Option {
	return func(u *Universe) {
		u.workers = n
	}
}

func WithMergeObserver(fn MergeObserver) Option {
	return func(u *Universe) {
		u.observe = fn
	}
}

// WithGravity overrides G, mostly useful to make small test systems move.
func WithGravity(g float64) Option {
	return func(u *Universe) {
		u.g = g
	}
}

func New(opts ...Option) *Universe {
	u := &Universe{g: G}
	u.Configure(opts...)
	return u
}

// Configure applies options to an existing universe, e.g. one returned by a
// storage backend.
func (u *Universe) Configure(opts ...Option) {
	for _, opt := range opts {
		opt(u)
	}
}

func (u *Universe) Add(bodies ...*Body) {
	u.bodies = append(u.bodies, bodies...)
}

// Bodies returns the live collection. The slice and the bodies are only
// stable until the next Step.
func (u *Universe) Bodies() []*Body {
	return u.bodies
}

func (u *Universe) Len() int {
	return len(u.bodies)
}

func (u *Universe) Gravity() float64 {
	return u.g
}

// Clone deep-copies the bodies. Options carry over.
func (u *Universe) Clone() *Universe {
	c := &Universe{
		bodies:  make([]*Body, len(u.bodies)),
		g:       u.g,
		workers: u.workers,
		observe: u.observe,
	}
	for i, b := range u.bodies {
		c.bodies[i] = b.Clone()
	}
	return c
}

func (u *Universe) TotalMass() float64 {
	var m float64
	for _, b := range u.bodies {
		if b.Valid {
			m += b.Mass
		}
	}
	return m
}

func (u *Universe) TotalMomentum() r2.Vec {
	var p r2.Vec
	for _, b := range u.bodies {
		if b.Valid {
			p = r2.Add(p, b.Momentum())
		}
	}
	return p
}

// StepStats summarizes one Step.
type StepStats struct {
	Merges  int `json:"merges"`
	Removed int `json:"removed"`
	Bodies  int `json:"bodies"`
}

// Step advances the simulation by dt. A non-positive dt does nothing.
//
// Forces and collisions are evaluated sequentially over a snapshot taken at
// the start of the step; only integration runs in parallel. After Step
// returns the collection holds valid bodies only and all forces are zero.
func (u *Universe) Step(dt float64) StepStats {
	if dt <= 0 {
		return StepStats{Bodies: len(u.bodies)}
	}

	resetForces(u.bodies)

	snapshot := make([]*Body, len(u.bodies))
	copy(snapshot, u.bodies)

	evaluateForces(snapshot, u.g)
	integrate(snapshot, dt, u.workers)
	resetForces(snapshot)

	merges := resolveCollisions(snapshot, u.observe)

	before := len(u.bodies)
	u.bodies = compact(u.bodies)

	return StepStats{
		Merges:  merges,
		Removed: before - len(u.bodies),
		Bodies:  len(u.bodies),
	}
}
