// Package storage defines how universes are persisted. Backends live in the
// textfile, postgres and redisstore subpackages and are selected by
// configuration; the engine never depends on them.
package storage

import (
	"context"

	"universe-server/internal/physics"
)

// RunMeta is the metadata saved alongside a universe: how many iterations
// the run covers and the timestep of each, in seconds.
type RunMeta struct {
	Iterations  int `json:"iterations"`
	StepSeconds int `json:"step_seconds"`
}

// Store persists whole universes. Save methods return the locator to pass
// to LoadRun: a file path or a run id depending on the backend.
//
// LoadRun returns a not_found error when src does not exist and a
// validation error when it cannot be parsed.
type Store interface {
	SaveInitial(ctx context.Context, u *physics.Universe, dest string) (string, error)
	SaveRun(ctx context.Context, u *physics.Universe, dest string, meta RunMeta) (string, error)
	LoadRun(ctx context.Context, src string) (*physics.Universe, RunMeta, error)
}

// SnapshotStore keeps intermediate states of a persisted run, keyed by
// iteration.
type SnapshotStore interface {
	SaveIterationSnapshot(ctx context.Context, runID int64, iteration int, u *physics.Universe) error
	LoadIterationSnapshot(ctx context.Context, runID int64, iteration int) (*physics.Universe, error)
	// ListIterations returns the stored iterations in ascending order.
	ListIterations(ctx context.Context, runID int64) ([]int, error)
}
