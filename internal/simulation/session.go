package simulation

import (
	"context"
	"sync"
	"time"

	"universe-server/internal/physics"
	"universe-server/internal/storage"
)

// session owns one live universe. mu guards the universe and every field
// below it; a running driver takes the write lock for one step at a time.
type session struct {
	id        int64
	name      string
	createdAt time.Time

	mu       sync.RWMutex
	universe *physics.Universe
	initial  *physics.Universe
	defaults storage.RunMeta
	runID    int64

	status      Status
	mode        Mode
	iteration   int
	completed   int
	target      int
	stepSeconds int
	merges      int
	updatedAt   time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(id int64, name string, u *physics.Universe, defaults storage.RunMeta) *session {
	now := time.Now()
	return &session{
		id:          id,
		name:        name,
		createdAt:   now,
		universe:    u,
		initial:     u.Clone(),
		defaults:    defaults,
		status:      StatusIdle,
		stepSeconds: defaults.StepSeconds,
		updatedAt:   now,
	}
}

// view must be called with mu held.
func (s *session) view() Simulation {
	return Simulation{
		ID:          s.id,
		Name:        s.name,
		RunID:       s.runID,
		Status:      s.status,
		Mode:        s.mode,
		Iteration:   s.iteration,
		Completed:   s.completed,
		Target:      s.target,
		StepSeconds: s.stepSeconds,
		Bodies:      s.universe.Len(),
		Merges:      s.merges,
		TotalMass:   s.universe.TotalMass(),
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}

func (s *session) snapshot() Simulation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view()
}

// meta is what a save records for the current state. must be called with
// mu held.
func (s *session) meta() storage.RunMeta {
	return storage.RunMeta{
		Iterations:  s.iteration,
		StepSeconds: s.stepSeconds,
	}
}
