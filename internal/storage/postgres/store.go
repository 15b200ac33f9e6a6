package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"universe-server/internal/physics"
	"universe-server/internal/shared/database"
	"universe-server/internal/shared/errors"
	"universe-server/internal/storage"
)

// DefaultName is used when a destination has no usable base name.
const DefaultName = "simulation"

// Store keeps simulations in PostgreSQL. Destinations name the simulation;
// sources are the numeric id returned by the save methods.
type Store struct {
	db     *database.DB
	logger *slog.Logger
}

var (
	_ storage.Store         = (*Store)(nil)
	_ storage.SnapshotStore = (*Store)(nil)
)

func NewStore(db *database.DB, logger *slog.Logger) *Store {
	logger.Debug("Initializing postgres universe store")

	return &Store{
		db:     db,
		logger: logger,
	}
}

func (s *Store) SaveInitial(ctx context.Context, u *physics.Universe, dest string) (string, error) {
	return s.SaveRun(ctx, u, dest, storage.RunMeta{})
}

// SaveRun inserts a new simulation row and its bodies in one transaction.
func (s *Store) SaveRun(ctx context.Context, u *physics.Universe, dest string, meta storage.RunMeta) (string, error) {
	name := SimulationName(dest)
	logger := s.logger.With("component", "postgres_store", "operation", "save_run", "name", name)

	records := storage.Records(u)
	bodiesJSON, err := json.Marshal(records)
	if err != nil {
		return "", errors.WrapValidation("universe cannot be encoded", err)
	}

	tx, err := s.db.BeginTxContext(ctx)
	if err != nil {
		logger.Error("Failed to begin transaction", "error", err)
		return "", errors.WrapExternal("failed to save simulation", err)
	}
	defer tx.Rollback(logger)

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO simulations (name, total_bodies, iterations, step_seconds)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		name, len(records), meta.Iterations, meta.StepSeconds,
	).Scan(&id)
	if err != nil {
		logger.Error("Failed to insert simulation", "error", err)
		return "", errors.WrapExternal("failed to save simulation", err)
	}

	if len(records) > 0 {
		if err := insertBodies(ctx, tx, id, bodiesJSON); err != nil {
			logger.Error("Failed to insert bodies", "simulation_id", id, "error", err)
			return "", errors.WrapExternal("failed to save bodies", err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("Failed to commit simulation", "simulation_id", id, "error", err)
		return "", errors.WrapExternal("failed to save simulation", err)
	}

	logger.Info("Simulation saved",
		"simulation_id", id,
		"bodies", len(records),
		"iterations", meta.Iterations,
		"step_seconds", meta.StepSeconds)
	return strconv.FormatInt(id, 10), nil
}

// insertBodies expands the JSON array server side so a run of any size is a
// single statement.
func insertBodies(ctx context.Context, exec database.Executor, simulationID int64, bodiesJSON []byte) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO bodies (simulation_id, body_index, name, mass, density, pos_x, pos_y, vel_x, vel_y)
		SELECT
			$1,
			(data->>'index')::integer,
			data->>'name',
			(data->>'mass')::double precision,
			(data->>'density')::double precision,
			(data->>'pos_x')::double precision,
			(data->>'pos_y')::double precision,
			(data->>'vel_x')::double precision,
			(data->>'vel_y')::double precision
		FROM json_array_elements($2::json) AS data`,
		simulationID, string(bodiesJSON),
	)
	return err
}

func (s *Store) LoadRun(ctx context.Context, src string) (*physics.Universe, storage.RunMeta, error) {
	id, err := ParseRunID(src)
	if err != nil {
		return nil, storage.RunMeta{}, err
	}
	logger := s.logger.With("component", "postgres_store", "operation", "load_run", "simulation_id", id)

	var meta storage.RunMeta
	err = s.db.QueryRowContext(ctx,
		`SELECT iterations, step_seconds FROM simulations WHERE id = $1`, id,
	).Scan(&meta.Iterations, &meta.StepSeconds)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.RunMeta{}, errors.NotFoundf("simulation %d not found", id)
		}
		logger.Error("Failed to load simulation", "error", err)
		return nil, storage.RunMeta{}, errors.WrapExternal("failed to load simulation", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT body_index, name, mass, density, pos_x, pos_y, vel_x, vel_y
		FROM bodies
		WHERE simulation_id = $1
		ORDER BY body_index`, id)
	if err != nil {
		logger.Error("Failed to query bodies", "error", err)
		return nil, storage.RunMeta{}, errors.WrapExternal("failed to load bodies", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("Failed to close rows", "error", err)
		}
	}()

	var records []storage.BodyRecord
	for rows.Next() {
		var r storage.BodyRecord
		if err := rows.Scan(&r.Index, &r.Name, &r.Mass, &r.Density, &r.PosX, &r.PosY, &r.VelX, &r.VelY); err != nil {
			logger.Error("Failed to scan body row", "error", err)
			return nil, storage.RunMeta{}, errors.WrapExternal("failed to load bodies", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Error during rows iteration", "error", err)
		return nil, storage.RunMeta{}, errors.WrapExternal("failed to load bodies", err)
	}

	logger.Info("Simulation loaded", "bodies", len(records), "iterations", meta.Iterations)
	return storage.Universe(records), meta, nil
}

func (s *Store) SaveIterationSnapshot(ctx context.Context, runID int64, iteration int, u *physics.Universe) error {
	logger := s.logger.With("component", "postgres_store", "operation", "save_iteration",
		"simulation_id", runID, "iteration", iteration)

	records := storage.Records(u)
	bodiesJSON, err := json.Marshal(records)
	if err != nil {
		return errors.WrapValidation("universe cannot be encoded", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulation_iterations (simulation_id, iteration, body_count, bodies)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (simulation_id, iteration)
		DO UPDATE SET body_count = EXCLUDED.body_count, bodies = EXCLUDED.bodies, created_at = NOW()`,
		runID, iteration, len(records), string(bodiesJSON),
	)
	if err != nil {
		logger.Error("Failed to save iteration snapshot", "error", err)
		return errors.WrapExternal("failed to save iteration snapshot", err)
	}

	logger.Debug("Iteration snapshot saved", "bodies", len(records))
	return nil
}

func (s *Store) LoadIterationSnapshot(ctx context.Context, runID int64, iteration int) (*physics.Universe, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT bodies FROM simulation_iterations WHERE simulation_id = $1 AND iteration = $2`,
		runID, iteration,
	).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundf("iteration %d of simulation %d not found", iteration, runID)
		}
		s.logger.Error("Failed to load iteration snapshot",
			"simulation_id", runID, "iteration", iteration, "error", err)
		return nil, errors.WrapExternal("failed to load iteration snapshot", err)
	}

	var records []storage.BodyRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, errors.WrapValidation("iteration snapshot is corrupt", err)
	}
	return storage.Universe(records), nil
}

func (s *Store) ListIterations(ctx context.Context, runID int64) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration FROM simulation_iterations WHERE simulation_id = $1 ORDER BY iteration`, runID)
	if err != nil {
		s.logger.Error("Failed to list iterations", "simulation_id", runID, "error", err)
		return nil, errors.WrapExternal("failed to list iterations", err)
	}
	defer rows.Close()

	iterations := []int{}
	for rows.Next() {
		var it int
		if err := rows.Scan(&it); err != nil {
			return nil, errors.WrapExternal("failed to list iterations", err)
		}
		iterations = append(iterations, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapExternal("failed to list iterations", err)
	}
	return iterations, nil
}

// SimulationName derives a simulation name from a destination the way a
// file name would be used: directory and extension are dropped.
func SimulationName(dest string) string {
	base := filepath.Base(strings.TrimSpace(dest))
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return DefaultName
	}
	return name
}

func ParseRunID(src string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(src), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validationf("simulation id %q must be a positive number", src)
	}
	return id, nil
}

