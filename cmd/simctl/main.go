// Command simctl generates, runs and saves universes without the HTTP
// server, and mints admin tokens for it.
//
//	simctl generate -count 100 -out start.uni
//	simctl run -in start.uni -iterations 1000 -step 60 -out end.uni
//	simctl token -subject ops -role admin -ttl 24h
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"universe-server/internal/auth"
	"universe-server/internal/physics"
	"universe-server/internal/shared/config"
	"universe-server/internal/shared/logger"
	"universe-server/internal/simulation"
	"universe-server/internal/storage/textfile"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "simctl:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: simctl <generate|run|token> [flags]")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging, stderr)

	switch args[0] {
	case "generate":
		return generate(ctx, cfg, log, args[1:], stdout)
	case "run":
		return runFile(ctx, cfg, log, args[1:], stdout)
	case "token":
		return token(cfg, args[1:], stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func generate(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	count := fs.Int("count", cfg.Simulation.BodyCount, "number of bodies")
	xmax := fs.Float64("xmax", cfg.Simulation.XMax, "upper x bound")
	ymax := fs.Float64("ymax", cfg.Simulation.YMax, "upper y bound")
	massMin := fs.Float64("mass-min", cfg.Simulation.MassMin, "lower mass bound")
	massMax := fs.Float64("mass-max", cfg.Simulation.MassMax, "upper mass bound")
	seed := fs.Uint64("seed", uint64(cfg.Simulation.Seed), "random seed, 0 for time based")
	out := fs.String("out", "", "destination file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("generate: -out is required")
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	u := physics.NewGenerator(*seed).Generate(physics.GeneratorConfig{
		Count:   *count,
		XMax:    *xmax,
		YMax:    *ymax,
		MassMin: *massMin,
		MassMax: *massMax,
	})

	store := textfile.NewStore("", log, textfile.WithUnconfinedPaths())
	path, err := store.SaveInitial(ctx, u, *out)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "generated %d bodies (seed %d) into %s\n", u.Len(), *seed, path)
	return nil
}

func runFile(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	in := fs.String("in", "", "universe file to load")
	iterations := fs.Int("iterations", 0, "iterations to run, 0 uses the file metadata")
	step := fs.Int("step", 0, "timestep in seconds, 0 uses the file metadata")
	out := fs.String("out", "", "destination file, defaults to overwriting -in")
	every := fs.Int("progress", 0, "print progress every n iterations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("run: -in is required")
	}
	if *out == "" {
		*out = *in
	}

	var opts []simulation.Option
	if *every > 0 {
		opts = append(opts, simulation.WithProgress(func(p simulation.Progress) {
			if p.Completed%*every == 0 {
				fmt.Fprintf(stdout, "iteration %d/%d: %d bodies\n", p.Completed, p.Target, p.Step.Bodies)
			}
		}))
	}

	service := simulation.NewService(textfile.NewStore("", log, textfile.WithUnconfinedPaths()), cfg.Simulation, log, opts...)

	sim, err := service.Load(ctx, *in)
	if err != nil {
		return err
	}
	if _, err := service.Run(ctx, sim.ID, simulation.RunRequest{
		Iterations:  *iterations,
		StepSeconds: *step,
		Mode:        simulation.ModeFast,
	}); err != nil {
		return err
	}

	done, err := service.Wait(ctx, sim.ID)
	if err != nil {
		// interrupted: stop the run and keep what was computed
		if _, stopErr := service.Stop(sim.ID); stopErr != nil {
			log.Warn("Failed to stop run", "error", stopErr)
		}
		if done, err = service.Get(sim.ID); err != nil {
			return err
		}
	}

	saved, err := service.Save(context.WithoutCancel(ctx), sim.ID, *out)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s after %d iterations: %d bodies, %d merges, saved to %s\n",
		done.Status, done.Completed, done.Bodies, done.Merges, saved.Locator)
	return nil
}

func token(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "admin", "token subject")
	role := fs.String("role", auth.RoleAdmin, "token role")
	ttl := fs.Duration("ttl", cfg.Auth.TokenExpiration, "token lifetime")
	secret := fs.String("secret", cfg.Auth.JWTSecret, "signing secret, defaults to JWT_SECRET")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tok, err := auth.GenerateToken(*secret, *subject, *role, *ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, tok)
	return nil
}
