package simulation

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"universe-server/internal/physics"
	"universe-server/internal/shared/config"
	"universe-server/internal/shared/errors"
	"universe-server/internal/storage"
	"universe-server/internal/storage/redisstore"
	"universe-server/internal/storage/textfile"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gonum.org/v1/gonum/spatial/r2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.SimulationConfig {
	return config.SimulationConfig{
		DefaultIterations:  10,
		DefaultStepSeconds: 1,
		TickInterval:       time.Millisecond,
		Workers:            2,
		Seed:               42,
		BodyCount:          20,
		XMax:               2000,
		YMax:               2000,
		MassMin:            1e3,
		MassMax:            1e6,
	}
}

// memStore hands out numeric locators like the database backend.
type memStore struct {
	mu    sync.Mutex
	runs  map[string]*physics.Universe
	metas map[string]storage.RunMeta
	next  int
}

func newMemStore() *memStore {
	return &memStore{runs: map[string]*physics.Universe{}, metas: map[string]storage.RunMeta{}}
}

func (m *memStore) SaveInitial(ctx context.Context, u *physics.Universe, dest string) (string, error) {
	return m.SaveRun(ctx, u, dest, storage.RunMeta{})
}

func (m *memStore) SaveRun(_ context.Context, u *physics.Universe, _ string, meta storage.RunMeta) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := strconv.Itoa(m.next)
	m.runs[id] = u.Clone()
	m.metas[id] = meta
	return id, nil
}

func (m *memStore) LoadRun(_ context.Context, src string) (*physics.Universe, storage.RunMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.runs[src]
	if !ok {
		return nil, storage.RunMeta{}, errors.NotFoundf("run %s not found", src)
	}
	return u.Clone(), m.metas[src], nil
}

func waitFor(t *testing.T, svc *Service, id int64) *Simulation {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sim, err := svc.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return sim
}

func TestCreateUsesDefaults(t *testing.T) {
	svc := NewService(newMemStore(), testConfig(), discardLogger())

	sim, err := svc.Create(context.Background(), CreateRequest{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sim.Bodies != 20 {
		t.Errorf("bodies = %d, want 20", sim.Bodies)
	}
	if sim.Status != StatusIdle {
		t.Errorf("status = %s, want idle", sim.Status)
	}
	if sim.Name != "simulation-1" {
		t.Errorf("name = %q", sim.Name)
	}

	bodies, err := svc.Bodies(sim.ID)
	if err != nil {
		t.Fatalf("Bodies: %v", err)
	}
	for _, b := range bodies {
		if b.PosX < 0 || b.PosX >= 2000 || b.Radius <= 0 {
			t.Fatalf("body out of range: %+v", b)
		}
	}
}

func TestCreateSeededIsReproducible(t *testing.T) {
	svc := NewService(newMemStore(), testConfig(), discardLogger())
	req := CreateRequest{Seed: 7, GeneratorConfig: physics.GeneratorConfig{Count: 5, XMax: 100, YMax: 100, MassMin: 1, MassMax: 2}}

	a, _ := svc.Create(context.Background(), req)
	b, _ := svc.Create(context.Background(), req)

	ba, _ := svc.Bodies(a.ID)
	bb, _ := svc.Bodies(b.ID)
	for i := range ba {
		if ba[i] != bb[i] {
			t.Fatalf("body %d differs: %+v vs %+v", i, ba[i], bb[i])
		}
	}
}

func TestCreateRejectsNegativeCount(t *testing.T) {
	svc := NewService(newMemStore(), testConfig(), discardLogger())

	_, err := svc.Create(context.Background(), CreateRequest{GeneratorConfig: physics.GeneratorConfig{Count: -1}})
	if errors.GetType(err) != errors.ErrorTypeValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestCreateExplicitZeroCount(t *testing.T) {
	svc := NewService(newMemStore(), testConfig(), discardLogger())
	ctx := context.Background()
	zero, negative := 0, -2

	sim, err := svc.Create(ctx, CreateRequest{Name: "void", Count: &zero})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sim.Bodies != 0 {
		t.Errorf("bodies = %d, want 0", sim.Bodies)
	}
	if _, err := svc.Run(ctx, sim.ID, RunRequest{Iterations: 3}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if done := waitFor(t, svc, sim.ID); done.Status != StatusCompleted || done.Bodies != 0 {
		t.Errorf("after run = %+v", done)
	}

	// without a count the configured default applies
	def, _ := svc.Create(ctx, CreateRequest{})
	if def.Bodies != testConfig().BodyCount {
		t.Errorf("default bodies = %d, want %d", def.Bodies, testConfig().BodyCount)
	}

	if _, err := svc.Create(ctx, CreateRequest{Count: &negative}); errors.GetType(err) != errors.ErrorTypeValidation {
		t.Errorf("negative count err = %v, want validation", err)
	}
}

func TestRunFastCompletes(t *testing.T) {
	var mu sync.Mutex
	var reports []Progress
	svc := NewService(newMemStore(), testConfig(), discardLogger(), WithProgress(func(p Progress) {
		mu.Lock()
		reports = append(reports, p)
		mu.Unlock()
	}))

	sim, _ := svc.Create(context.Background(), CreateRequest{})
	if _, err := svc.Run(context.Background(), sim.ID, RunRequest{Iterations: 25, StepSeconds: 2}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	done := waitFor(t, svc, sim.ID)
	if done.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
	if done.Iteration != 25 || done.Completed != 25 || done.Target != 25 {
		t.Errorf("progress = %d/%d/%d", done.Iteration, done.Completed, done.Target)
	}
	if done.StepSeconds != 2 || done.Mode != ModeFast {
		t.Errorf("step = %d mode = %s", done.StepSeconds, done.Mode)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 25 || reports[24].Iteration != 25 {
		t.Errorf("progress reports = %d", len(reports))
	}
}

func TestRunUsesSessionDefaults(t *testing.T) {
	svc := NewService(newMemStore(), testConfig(), discardLogger())

	sim, _ := svc.Create(context.Background(), CreateRequest{})
	if _, err := svc.Run(context.Background(), sim.ID, RunRequest{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	done := waitFor(t, svc, sim.ID)
	if done.Completed != 10 || done.StepSeconds != 1 {
		t.Errorf("completed = %d step = %d, want 10 and 1", done.Completed, done.StepSeconds)
	}
}

func TestRunValidation(t *testing.T) {
	svc := NewService(newMemStore(), testConfig(), discardLogger())
	sim, _ := svc.Create(context.Background(), CreateRequest{})

	bad := []RunRequest{
		{Iterations: -1},
		{StepSeconds: -5},
		{Mode: "warp"},
	}
	for _, req := range bad {
		if _, err := svc.Run(context.Background(), sim.ID, req); errors.GetType(err) != errors.ErrorTypeValidation {
			t.Errorf("Run(%+v) err = %v, want validation", req, err)
		}
	}

	if _, err := svc.Run(context.Background(), 999, RunRequest{}); !errors.IsNotFound(err) {
		t.Errorf("unknown simulation: err = %v, want not found", err)
	}
}

func TestRunVisualStopAndConflict(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 5 * time.Millisecond
	svc := NewService(newMemStore(), cfg, discardLogger())

	sim, _ := svc.Create(context.Background(), CreateRequest{})
	if _, err := svc.Run(context.Background(), sim.ID, RunRequest{Iterations: 100000, Mode: ModeVisual}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := svc.Run(context.Background(), sim.ID, RunRequest{}); errors.GetType(err) != errors.ErrorTypeConflict {
		t.Errorf("second run err = %v, want conflict", err)
	}

	time.Sleep(30 * time.Millisecond)
	stopped, err := svc.Stop(sim.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.Status != StatusStopped {
		t.Errorf("status = %s, want stopped", stopped.Status)
	}
	if stopped.Completed == 0 || stopped.Completed >= 100000 {
		t.Errorf("completed = %d, want a partial run", stopped.Completed)
	}

	if _, err := svc.Stop(sim.ID); errors.GetType(err) != errors.ErrorTypeConflict {
		t.Errorf("stop idle err = %v, want conflict", err)
	}

	// a stopped session can run again
	if _, err := svc.Run(context.Background(), sim.ID, RunRequest{Iterations: 3}); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if done := waitFor(t, svc, sim.ID); done.Status != StatusCompleted {
		t.Errorf("rerun status = %s", done.Status)
	}
}

func TestRunOutlivesRequestContext(t *testing.T) {
	svc := NewService(newMemStore(), testConfig(), discardLogger())
	sim, _ := svc.Create(context.Background(), CreateRequest{})

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := svc.Run(ctx, sim.ID, RunRequest{Iterations: 50}); err != nil {
		t.Fatal(err)
	}
	cancel()

	if done := waitFor(t, svc, sim.ID); done.Status != StatusCompleted || done.Completed != 50 {
		t.Errorf("status = %s completed = %d", done.Status, done.Completed)
	}
}

func TestSaveAndLoadTextFile(t *testing.T) {
	dir := t.TempDir()
	store := textfile.NewStore(dir, discardLogger())
	svc := NewService(store, testConfig(), discardLogger())
	ctx := context.Background()

	sim, _ := svc.Create(ctx, CreateRequest{Name: "orbit"})
	if _, err := svc.Run(ctx, sim.ID, RunRequest{Iterations: 5, StepSeconds: 3}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, svc, sim.ID)

	saved, err := svc.Save(ctx, sim.ID, "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Locator != filepath.Join(dir, "orbit.uni") {
		t.Errorf("locator = %q", saved.Locator)
	}

	initial, err := svc.SaveInitial(ctx, sim.ID, "orbit-start")
	if err != nil {
		t.Fatalf("SaveInitial: %v", err)
	}
	if initial.Bodies != 20 {
		t.Errorf("initial bodies = %d, want 20", initial.Bodies)
	}

	loaded, err := svc.Load(ctx, saved.Locator)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Name != "orbit" || loaded.Bodies != saved.Bodies || loaded.RunID != 0 {
		t.Errorf("loaded = %+v", loaded)
	}

	// the loaded metadata drive the next run
	if _, err := svc.Run(ctx, loaded.ID, RunRequest{}); err != nil {
		t.Fatal(err)
	}
	if done := waitFor(t, svc, loaded.ID); done.Completed != 5 || done.StepSeconds != 3 {
		t.Errorf("completed = %d step = %d, want 5 and 3", done.Completed, done.StepSeconds)
	}

	if _, err := svc.Load(ctx, "missing"); !errors.IsNotFound(err) {
		t.Errorf("missing load err = %v, want not found", err)
	}
}

func TestSaveInitialEmpty(t *testing.T) {
	svc := NewService(newMemStore(), testConfig(), discardLogger())
	sim, _ := svc.Create(context.Background(), CreateRequest{})
	empty := svc.register("empty", physics.New(), storage.RunMeta{Iterations: 1, StepSeconds: 1})

	if _, err := svc.SaveInitial(context.Background(), empty.id, "x"); errors.GetType(err) != errors.ErrorTypeValidation {
		t.Errorf("err = %v, want validation", err)
	}
	if _, err := svc.SaveInitial(context.Background(), sim.ID, "x"); err != nil {
		t.Errorf("SaveInitial: %v", err)
	}
}

func TestBodiesReflectMerges(t *testing.T) {
	svc := NewService(newMemStore(), testConfig(), discardLogger())
	u := physics.New()
	u.Add(
		physics.NewBody("a", 10, 1000, r2.Vec{}, r2.Vec{}),
		physics.NewBody("b", 5, 1000, r2.Vec{X: 0.01}, r2.Vec{}),
	)
	sess := svc.register("pair", u, storage.RunMeta{Iterations: 1, StepSeconds: 1})

	if _, err := svc.Run(context.Background(), sess.id, RunRequest{Iterations: 1}); err != nil {
		t.Fatal(err)
	}
	done := waitFor(t, svc, sess.id)
	if done.Merges != 1 || done.Bodies != 1 {
		t.Fatalf("merges = %d bodies = %d", done.Merges, done.Bodies)
	}
	bodies, _ := svc.Bodies(sess.id)
	if bodies[0].Name != "a+b" || bodies[0].Mass != 15 {
		t.Errorf("merged body = %+v", bodies[0])
	}
}

func TestSnapshotsAfterSave(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	snapshots := redisstore.NewStore(client, time.Hour, discardLogger())

	cfg := testConfig()
	cfg.SnapshotEvery = 5
	svc := NewService(newMemStore(), cfg, discardLogger(), WithSnapshots(snapshots))
	ctx := context.Background()

	sim, _ := svc.Create(ctx, CreateRequest{})

	// without a persisted run there is nothing to key snapshots on
	if its, err := svc.Iterations(ctx, sim.ID); err != nil || len(its) != 0 {
		t.Fatalf("iterations before save = %v, %v", its, err)
	}

	saved, err := svc.Save(ctx, sim.ID, "snap")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Locator != "1" {
		t.Fatalf("locator = %q", saved.Locator)
	}

	if _, err := svc.Run(ctx, sim.ID, RunRequest{Iterations: 12}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, svc, sim.ID)

	its, err := svc.Iterations(ctx, sim.ID)
	if err != nil {
		t.Fatalf("Iterations: %v", err)
	}
	if len(its) != 2 || its[0] != 5 || its[1] != 10 {
		t.Fatalf("iterations = %v, want [5 10]", its)
	}

	bodies, err := svc.IterationBodies(ctx, sim.ID, 10)
	if err != nil {
		t.Fatalf("IterationBodies: %v", err)
	}
	if len(bodies) == 0 {
		t.Error("snapshot has no bodies")
	}

	if _, err := svc.IterationBodies(ctx, sim.ID, 7); !errors.IsNotFound(err) {
		t.Errorf("missing iteration err = %v, want not found", err)
	}
}

func TestIterationsDisabled(t *testing.T) {
	svc := NewService(newMemStore(), testConfig(), discardLogger())
	sim, _ := svc.Create(context.Background(), CreateRequest{})

	if _, err := svc.Iterations(context.Background(), sim.ID); !errors.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestDeleteAndList(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 10 * time.Millisecond
	svc := NewService(newMemStore(), cfg, discardLogger())
	ctx := context.Background()

	a, _ := svc.Create(ctx, CreateRequest{Name: "a"})
	b, _ := svc.Create(ctx, CreateRequest{Name: "b"})

	list := svc.List()
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("list = %+v", list)
	}

	if _, err := svc.Run(ctx, a.ID, RunRequest{Iterations: 100000, Mode: ModeVisual}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete running: %v", err)
	}
	if _, err := svc.Get(a.ID); !errors.IsNotFound(err) {
		t.Errorf("deleted get err = %v", err)
	}
	if err := svc.Delete(ctx, a.ID); !errors.IsNotFound(err) {
		t.Errorf("second delete err = %v", err)
	}
	if len(svc.List()) != 1 {
		t.Errorf("list after delete = %d", len(svc.List()))
	}
}

func TestShutdownStopsRuns(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 10 * time.Millisecond
	svc := NewService(newMemStore(), cfg, discardLogger())
	ctx := context.Background()

	sim, _ := svc.Create(ctx, CreateRequest{})
	if _, err := svc.Run(ctx, sim.ID, RunRequest{Iterations: 100000, Mode: ModeVisual}); err != nil {
		t.Fatal(err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got, _ := svc.Get(sim.ID); got.Status != StatusStopped {
		t.Errorf("status = %s, want stopped", got.Status)
	}
}
