package simulation

import (
	"time"

	"universe-server/internal/physics"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

// Mode selects how a run is driven: visual paces one step per tick, fast
// steps in a tight loop.
type Mode string

const (
	ModeFast   Mode = "fast"
	ModeVisual Mode = "visual"
)

// Simulation is a point-in-time view of a session.
type Simulation struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	RunID       int64     `json:"run_id,omitempty"`
	Status      Status    `json:"status"`
	Mode        Mode      `json:"mode,omitempty"`
	Iteration   int       `json:"iteration"`
	Completed   int       `json:"completed"`
	Target      int       `json:"target"`
	StepSeconds int       `json:"step_seconds"`
	Bodies      int       `json:"bodies"`
	Merges      int       `json:"merges"`
	TotalMass   float64   `json:"total_mass"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateRequest struct {
	Name string `json:"name"`
	// Seed makes the generated universe reproducible. Zero draws from the
	// service generator.
	Seed uint64 `json:"seed"`
	// Count takes precedence over the generator count. An explicit 0
	// creates an empty universe; nil falls back to GeneratorConfig.Count and
	// then to the configured body count.
	Count *int `json:"count"`
	physics.GeneratorConfig
}

type LoadRequest struct {
	Source string `json:"source"`
}

// RunRequest describes one run. Zero values fall back to the session
// defaults, which come from the loaded run metadata or the configuration.
type RunRequest struct {
	Iterations  int  `json:"iterations"`
	StepSeconds int  `json:"step_seconds"`
	Mode        Mode `json:"mode"`
}

type SaveRequest struct {
	Destination string `json:"destination"`
}

type SaveResult struct {
	Locator string `json:"locator"`
	Bodies  int    `json:"bodies"`
}

// BodyView is the presentation form of a body, radius included.
type BodyView struct {
	Index   int     `json:"index"`
	Name    string  `json:"name"`
	Mass    float64 `json:"mass"`
	Density float64 `json:"density"`
	Radius  float64 `json:"radius"`
	PosX    float64 `json:"pos_x"`
	PosY    float64 `json:"pos_y"`
	VelX    float64 `json:"vel_x"`
	VelY    float64 `json:"vel_y"`
}

// Progress is reported after every step of a run.
type Progress struct {
	SimulationID int64             `json:"simulation_id"`
	Iteration    int               `json:"iteration"`
	Completed    int               `json:"completed"`
	Target       int               `json:"target"`
	Step         physics.StepStats `json:"step"`
}

type ProgressFunc func(Progress)

func bodyViews(u *physics.Universe) []BodyView {
	views := make([]BodyView, 0, u.Len())
	for _, b := range u.Bodies() {
		if !b.Valid {
			continue
		}
		views = append(views, BodyView{
			Index:   len(views),
			Name:    b.Name,
			Mass:    b.Mass,
			Density: b.Density,
			Radius:  b.Radius(),
			PosX:    b.Pos.X,
			PosY:    b.Pos.Y,
			VelX:    b.Vel.X,
			VelY:    b.Vel.Y,
		})
	}
	return views
}
