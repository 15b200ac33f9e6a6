package storage

import (
	"universe-server/internal/physics"

	"gonum.org/v1/gonum/spatial/r2"
)

// BodyRecord is the JSON form of a body used by the database and cache
// backends. Density is stored as is; force is never persisted.
type BodyRecord struct {
	Index   int     `json:"index"`
	Name    string  `json:"name"`
	Mass    float64 `json:"mass"`
	Density float64 `json:"density"`
	PosX    float64 `json:"pos_x"`
	PosY    float64 `json:"pos_y"`
	VelX    float64 `json:"vel_x"`
	VelY    float64 `json:"vel_y"`
}

// Records converts the valid bodies of u, in order.
func Records(u *physics.Universe) []BodyRecord {
	records := make([]BodyRecord, 0, u.Len())
	for _, b := range u.Bodies() {
		if !b.Valid {
			continue
		}
		records = append(records, BodyRecord{
			Index:   len(records),
			Name:    b.Name,
			Mass:    b.Mass,
			Density: b.Density,
			PosX:    b.Pos.X,
			PosY:    b.Pos.Y,
			VelX:    b.Vel.X,
			VelY:    b.Vel.Y,
		})
	}
	return records
}

func (r BodyRecord) Body() *physics.Body {
	return physics.NewBody(r.Name, r.Mass, r.Density,
		r2.Vec{X: r.PosX, Y: r.PosY},
		r2.Vec{X: r.VelX, Y: r.VelY},
	)
}

// Universe rebuilds a universe from records in slice order.
func Universe(records []BodyRecord) *physics.Universe {
	u := physics.New()
	for _, r := range records {
		u.Add(r.Body())
	}
	return u
}
