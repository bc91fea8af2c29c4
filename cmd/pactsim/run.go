package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/shadow-pacts/internal/api"
	"github.com/talgya/shadow-pacts/internal/engine"
	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/metrics"
	"github.com/talgya/shadow-pacts/internal/persistence"
	"github.com/talgya/shadow-pacts/internal/world"
)

// session is everything a command needs once the world is loaded.
type session struct {
	sim      *engine.Simulation
	db       *persistence.DB
	registry *prometheus.Registry
}

// open regenerates the world from the seed, then restores alliance state
// from the database when a snapshot exists.
func open() (*session, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(dbPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", dbPath)

	// World map is always regenerated, deterministic from seed.
	gen := world.DefaultGenConfig()
	gen.Seed = worldSeed
	w := world.Generate(gen)

	st, err := db.LoadState(slog.Default())
	if err != nil {
		db.Close()
		return nil, err
	}

	rng := entropy.NewSeeded(uint64(worldSeed))
	if len(st.RNGState) > 0 {
		if err := rng.UnmarshalBinary(st.RNGState); err != nil {
			slog.Warn("rng state unreadable, reseeding", "error", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.Repaired(st.Repaired)

	sim := engine.New(cfg, w, st.Store, engine.Options{
		Logger:   slog.Default(),
		Metrics:  m,
		Source:   rng,
		StartDay: st.Day,
		Events:   st.Events,
	})

	if st.Fresh {
		slog.Info("no saved state found, starting a new chronicle", "factions", w.FactionCount())
	} else {
		slog.Info("alliance state restored",
			"day", st.Day,
			"date", engine.DayLabel(st.Day),
			"alliances", st.Store.Len(),
			"active", st.Store.ActiveCount(),
			"repaired", st.Repaired,
		)
	}
	return &session{sim: sim, db: db, registry: reg}, nil
}

func (s *session) save() error {
	snap, err := s.sim.Snapshot()
	if err != nil {
		return err
	}
	return s.db.SaveSnapshot(snap)
}

func runBatch(cmd *cobra.Command, args []string) error {
	if runDays < 1 {
		return fmt.Errorf("--days must be positive")
	}
	s, err := open()
	if err != nil {
		return err
	}
	defer s.db.Close()

	var formed, dissolved, betrayals int
	var transferred float64
	for range runDays {
		rep := s.sim.AdvanceDay()
		formed += rep.Formed
		dissolved += rep.Dissolved
		betrayals += rep.Betrayals
		transferred += rep.Transferred
	}
	if err := s.save(); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	sum := s.sim.Summary()
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d active alliances of %d, %d coalitions, %d intel records.\n",
		sum.Date, sum.Active, sum.Alliances, sum.Groups, sum.Intel)
	fmt.Fprintf(cmd.OutOrStdout(), "Over %d days: %d formed, %d dissolved, %d betrayals, %s crowns moved in secret.\n",
		runDays, formed, dissolved, betrayals, humanize.Comma(int64(transferred)))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	interval, err := time.ParseDuration(dayEvery)
	if err != nil || interval <= 0 {
		return fmt.Errorf("--day-every %q: want a positive duration", dayEvery)
	}
	s, err := open()
	if err != nil {
		return err
	}
	defer s.db.Close()

	adminKey := os.Getenv("PACTSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("PACTSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}

	eng := engine.NewEngine(interval, slog.Default())
	eng.OnDay = func(int) {
		rep := s.sim.AdvanceDay()
		if saveEvery > 0 && rep.Day%saveEvery == 0 {
			if err := s.save(); err != nil {
				slog.Error("periodic save failed", "day", rep.Day, "error", err)
			}
		}
	}

	server := &api.Server{
		Sim:      s.sim,
		Eng:      eng,
		DB:       s.db,
		Metrics:  promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}),
		Port:     apiPort,
		AdminKey: adminKey,
		Logger:   slog.Default(),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	fmt.Fprintf(cmd.OutOrStdout(), "API: http://localhost:%d/api/v1/status\n", apiPort)
	runErr := g.Wait()

	// Final save on shutdown.
	slog.Info("final save...")
	if err := s.save(); err != nil {
		slog.Error("final save failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
