package simulation

import (
	"context"
	"log/slog"
	"time"

	"universe-server/internal/shared/errors"

	"golang.org/x/time/rate"
)

type runPlan struct {
	iterations  int
	stepSeconds int
	mode        Mode
	tick        time.Duration
}

func (s *Service) plan(sess *session, req RunRequest) (runPlan, error) {
	if req.Iterations < 0 {
		return runPlan{}, errors.Validationf("iterations must not be negative, got %d", req.Iterations)
	}
	if req.StepSeconds < 0 {
		return runPlan{}, errors.Validationf("step_seconds must not be negative, got %d", req.StepSeconds)
	}

	p := runPlan{
		iterations:  req.Iterations,
		stepSeconds: req.StepSeconds,
		mode:        req.Mode,
		tick:        s.cfg.TickInterval,
	}
	if p.iterations == 0 {
		p.iterations = sess.defaults.Iterations
	}
	if p.stepSeconds == 0 {
		p.stepSeconds = sess.defaults.StepSeconds
	}
	switch p.mode {
	case "":
		p.mode = ModeFast
	case ModeFast, ModeVisual:
	default:
		return runPlan{}, errors.Validationf("unknown mode %q", req.Mode)
	}

	if p.iterations <= 0 {
		return runPlan{}, errors.Validation("iterations must be positive")
	}
	if p.stepSeconds <= 0 {
		return runPlan{}, errors.Validation("step_seconds must be positive")
	}
	if p.mode == ModeVisual && p.tick <= 0 {
		p.tick = 20 * time.Millisecond
	}
	return p, nil
}

// Run starts a run in the background and returns immediately. The run is
// not bound to ctx; use Stop to end it early.
func (s *Service) Run(ctx context.Context, id int64, req RunRequest) (*Simulation, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.status == StatusRunning {
		return nil, errors.Conflictf("simulation %d is already running", id)
	}

	p, err := s.plan(sess, req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	sess.status = StatusRunning
	sess.mode = p.mode
	sess.completed = 0
	sess.target = p.iterations
	sess.stepSeconds = p.stepSeconds
	sess.cancel = cancel
	sess.done = done
	sess.updatedAt = time.Now()

	s.logger.Info("Simulation run started",
		"component", "simulation_service",
		"operation", "run",
		"simulation_id", id,
		"mode", p.mode,
		"iterations", p.iterations,
		"step_seconds", p.stepSeconds)

	go s.drive(runCtx, sess, p, cancel, done)

	view := sess.view()
	return &view, nil
}

func (s *Service) drive(ctx context.Context, sess *session, p runPlan, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	logger := s.logger.With("component", "simulation_service", "operation", "drive", "simulation_id", sess.id)

	var limiter *rate.Limiter
	if p.mode == ModeVisual {
		limiter = rate.NewLimiter(rate.Every(p.tick), 1)
	}

	dt := float64(p.stepSeconds)
	started := time.Now()

	for i := 0; i < p.iterations; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				s.finish(sess, StatusStopped, logger, started)
				return
			}
		} else if ctx.Err() != nil {
			s.finish(sess, StatusStopped, logger, started)
			return
		}

		sess.mu.Lock()
		stats := sess.universe.Step(dt)
		sess.iteration++
		sess.completed++
		sess.merges += stats.Merges
		sess.updatedAt = time.Now()
		progress := Progress{
			SimulationID: sess.id,
			Iteration:    sess.iteration,
			Completed:    sess.completed,
			Target:       sess.target,
			Step:         stats,
		}
		runID := sess.runID
		sess.mu.Unlock()

		s.maybeSnapshot(ctx, sess, runID, progress.Iteration, logger)

		if s.progress != nil {
			s.progress(progress)
		}
	}

	s.finish(sess, StatusCompleted, logger, started)
}

func (s *Service) finish(sess *session, status Status, logger *slog.Logger, started time.Time) {
	sess.mu.Lock()
	sess.status = status
	sess.cancel = nil
	sess.updatedAt = time.Now()
	completed, bodies := sess.completed, sess.universe.Len()
	sess.mu.Unlock()

	logger.Info("Simulation run finished",
		"status", status,
		"completed", completed,
		"bodies", bodies,
		"duration", time.Since(started))
}

func (s *Service) maybeSnapshot(ctx context.Context, sess *session, runID int64, iteration int, logger *slog.Logger) {
	if s.snapshots == nil || s.cfg.SnapshotEvery <= 0 || runID == 0 {
		return
	}
	if iteration%s.cfg.SnapshotEvery != 0 {
		return
	}

	sess.mu.RLock()
	u := sess.universe.Clone()
	sess.mu.RUnlock()

	// a failed snapshot does not stop the run
	if err := s.snapshots.SaveIterationSnapshot(ctx, runID, iteration, u); err != nil {
		logger.Warn("Failed to store iteration snapshot", "run_id", runID, "iteration", iteration, "error", err)
		return
	}
	logger.Debug("Iteration snapshot stored", "run_id", runID, "iteration", iteration)
}

// Stop cancels a running session. The driver exits before its next step.
func (s *Service) Stop(id int64) (*Simulation, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.status != StatusRunning || sess.cancel == nil {
		sess.mu.Unlock()
		return nil, errors.Conflictf("simulation %d is not running", id)
	}
	cancel, done := sess.cancel, sess.done
	sess.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("Simulation run stopped", "component", "simulation_service", "simulation_id", id)

	view := sess.snapshot()
	return &view, nil
}

// Wait blocks until the current run of a session ends or ctx is done.
func (s *Service) Wait(ctx context.Context, id int64) (*Simulation, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.RLock()
	done := sess.done
	sess.mu.RUnlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	view := sess.snapshot()
	return &view, nil
}
