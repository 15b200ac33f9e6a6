package simulation

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"universe-server/internal/physics"
	"universe-server/internal/shared/config"
	"universe-server/internal/shared/errors"
	"universe-server/internal/storage"
)

type Service struct {
	store     storage.Store
	snapshots storage.SnapshotStore
	cfg       config.SimulationConfig
	generator *physics.Generator
	progress  ProgressFunc
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[int64]*session
	nextID   int64
}

type Option func(*Service)

// WithSnapshots enables iteration snapshots every cfg.SnapshotEvery steps.
func WithSnapshots(store storage.SnapshotStore) Option {
	return func(s *Service) {
		s.snapshots = store
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(s *Service) {
		s.progress = fn
	}
}

func NewService(store storage.Store, cfg config.SimulationConfig, logger *slog.Logger, opts ...Option) *Service {
	logger.Debug("Initializing simulation service",
		"workers", cfg.Workers,
		"tick_interval", cfg.TickInterval,
		"snapshot_every", cfg.SnapshotEvery)

	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	s := &Service{
		store:     store,
		cfg:       cfg,
		generator: physics.NewGenerator(seed),
		logger:    logger,
		sessions:  make(map[int64]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create generates a new universe. Range fields left at zero take the
// configured defaults.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Simulation, error) {
	logger := s.logger.With("component", "simulation_service", "operation", "create")

	gen := req.GeneratorConfig
	switch {
	case req.Count != nil:
		gen.Count = *req.Count
	case gen.Count == 0:
		gen.Count = s.cfg.BodyCount
	}
	if gen.Count < 0 {
		return nil, errors.Validationf("count must not be negative, got %d", gen.Count)
	}
	if gen.XMax == 0 {
		gen.XMax = s.cfg.XMax
	}
	if gen.YMax == 0 {
		gen.YMax = s.cfg.YMax
	}
	if gen.MassMin == 0 && gen.MassMax == 0 {
		gen.MassMin, gen.MassMax = s.cfg.MassMin, s.cfg.MassMax
	}

	generator := s.generator
	if req.Seed != 0 {
		generator = physics.NewGenerator(req.Seed)
	}
	u := generator.Generate(gen)

	sess := s.register(req.Name, u, storage.RunMeta{
		Iterations:  s.cfg.DefaultIterations,
		StepSeconds: s.cfg.DefaultStepSeconds,
	})

	logger.Info("Simulation created",
		"simulation_id", sess.id,
		"name", sess.name,
		"bodies", u.Len(),
		"seeded", req.Seed != 0)

	view := sess.snapshot()
	return &view, nil
}

// Load restores a saved run. Its metadata become the defaults of the next
// run, and a numeric locator is kept as the run id for snapshots.
func (s *Service) Load(ctx context.Context, src string) (*Simulation, error) {
	logger := s.logger.With("component", "simulation_service", "operation", "load", "source", src)

	if strings.TrimSpace(src) == "" {
		return nil, errors.Validation("source is required")
	}

	u, meta, err := s.store.LoadRun(ctx, src)
	if err != nil {
		return nil, err
	}

	defaults := meta
	if defaults.Iterations <= 0 {
		defaults.Iterations = s.cfg.DefaultIterations
	}
	if defaults.StepSeconds <= 0 {
		defaults.StepSeconds = s.cfg.DefaultStepSeconds
	}

	sess := s.register(nameFromLocator(src), u, defaults)
	if id, ok := runID(src); ok {
		sess.mu.Lock()
		sess.runID = id
		sess.mu.Unlock()
	}

	logger.Info("Simulation loaded",
		"simulation_id", sess.id,
		"bodies", u.Len(),
		"iterations", meta.Iterations,
		"step_seconds", meta.StepSeconds)

	view := sess.snapshot()
	return &view, nil
}

func (s *Service) register(name string, u *physics.Universe, defaults storage.RunMeta) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if name == "" {
		name = "simulation-" + strconv.FormatInt(id, 10)
	}

	sess := newSession(id, name, u, defaults)
	u.Configure(
		physics.WithWorkers(s.cfg.Workers),
		physics.WithMergeObserver(s.mergeLogger(id)),
	)
	s.sessions[id] = sess
	return sess
}

func (s *Service) mergeLogger(id int64) physics.MergeObserver {
	logger := s.logger.With("component", "simulation_service", "simulation_id", id)
	return func(m physics.Merge) {
		logger.Debug("Bodies merged", "winner", m.Winner, "loser", m.Loser, "mass", m.Mass)
	}
}

func (s *Service) session(id int64) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.NotFoundf("simulation %d not found", id)
	}
	return sess, nil
}

func (s *Service) Get(id int64) (*Simulation, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	view := sess.snapshot()
	return &view, nil
}

func (s *Service) List() []Simulation {
	s.mu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })

	views := make([]Simulation, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sess.snapshot())
	}
	return views
}

// Bodies returns a copy of the current bodies. It never observes a
// half-finished step.
func (s *Service) Bodies(id int64) ([]BodyView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return bodyViews(sess.universe), nil
}

// Save writes the current state with the iterations performed so far.
func (s *Service) Save(ctx context.Context, id int64, dest string) (*SaveResult, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.RLock()
	u := sess.universe.Clone()
	meta := sess.meta()
	sess.mu.RUnlock()

	return s.save(ctx, sess, dest, func(dest string) (string, error) {
		return s.store.SaveRun(ctx, u, dest, meta)
	}, u.Len())
}

// SaveInitial writes the configuration the session started from.
func (s *Service) SaveInitial(ctx context.Context, id int64, dest string) (*SaveResult, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.RLock()
	u := sess.initial.Clone()
	sess.mu.RUnlock()

	if u.Len() == 0 {
		return nil, errors.Validation("there is no initial configuration to save")
	}

	return s.save(ctx, sess, dest, func(dest string) (string, error) {
		return s.store.SaveInitial(ctx, u, dest)
	}, u.Len())
}

func (s *Service) save(ctx context.Context, sess *session, dest string, write func(string) (string, error), bodies int) (*SaveResult, error) {
	logger := s.logger.With("component", "simulation_service", "operation", "save", "simulation_id", sess.id)

	if strings.TrimSpace(dest) == "" {
		dest = sess.name
	}

	locator, err := write(dest)
	if err != nil {
		return nil, err
	}

	if id, ok := runID(locator); ok {
		sess.mu.Lock()
		sess.runID = id
		sess.mu.Unlock()
	}

	logger.Info("Simulation saved", "locator", locator, "bodies", bodies)
	return &SaveResult{Locator: locator, Bodies: bodies}, nil
}

// Delete stops a running session before dropping it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	cancel, done := sess.cancel, sess.done
	sess.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return errors.WrapInternal("timed out stopping simulation", ctx.Err())
		}
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	s.logger.Info("Simulation deleted", "component", "simulation_service", "simulation_id", id)
	return nil
}

// Iterations lists the stored iteration snapshots of a session's run.
func (s *Service) Iterations(ctx context.Context, id int64) ([]int, error) {
	sess, runID, err := s.snapshotTarget(id)
	if err != nil {
		return nil, err
	}
	if runID == 0 {
		return []int{}, nil
	}

	its, err := s.snapshots.ListIterations(ctx, runID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Listed iteration snapshots", "simulation_id", sess.id, "run_id", runID, "count", len(its))
	return its, nil
}

func (s *Service) IterationBodies(ctx context.Context, id int64, iteration int) ([]BodyView, error) {
	_, runID, err := s.snapshotTarget(id)
	if err != nil {
		return nil, err
	}
	if runID == 0 {
		return nil, errors.NotFoundf("simulation %d has no persisted run", id)
	}

	u, err := s.snapshots.LoadIterationSnapshot(ctx, runID, iteration)
	if err != nil {
		return nil, err
	}
	return bodyViews(u), nil
}

func (s *Service) snapshotTarget(id int64) (*session, int64, error) {
	if s.snapshots == nil {
		return nil, 0, errors.NotFoundf("iteration snapshots are not enabled")
	}
	sess, err := s.session(id)
	if err != nil {
		return nil, 0, err
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess, sess.runID, nil
}

// Shutdown stops every running session and waits for the drivers to exit.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	var waiting []chan struct{}
	for _, sess := range s.sessions {
		sess.mu.Lock()
		if sess.cancel != nil {
			sess.cancel()
			waiting = append(waiting, sess.done)
		}
		sess.mu.Unlock()
	}
	s.mu.RUnlock()

	for _, done := range waiting {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Info("Simulation service stopped", "component", "simulation_service", "stopped_runs", len(waiting))
	return nil
}

func nameFromLocator(src string) string {
	base := filepath.Base(strings.TrimSpace(src))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// runID reports whether a locator is a database run id.
func runID(locator string) (int64, bool) {
	id, err := strconv.ParseInt(locator, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
