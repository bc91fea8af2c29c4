package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/talgya/shadow-pacts/internal/config"
)

// --- Global Command Variables ---
var (
	configPath string
	dbPath     string
	logFormat  string
	logLevel   string
	worldSeed  int64
	runDays    int
	apiPort    int
	dayEvery   string
	saveEvery  int

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "pactsim",
		Short: "Secret alliances between rival factions, one day at a time",
		Long: `pactsim generates a world of kingdoms and factions and lets secret
alliances form, trade, leak, betray and dissolve between them.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Advance the simulation a fixed number of days and save",
		RunE:  runBatch, // Defined in run.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation on a wall-clock timer and serve the HTTP API",
		RunE:  runServe, // Defined in run.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", os.Getenv("PACTSIM_CONFIG"), "YAML file overriding the default parameters")
	pf.StringVar(&dbPath, "db", "data/pacts.db", "SQLite database path")
	pf.StringVar(&logFormat, "log-format", "text", "log output: text or json")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.Int64Var(&worldSeed, "seed", envSeed(), "world and RNG seed (PACTSIM_SEED)")

	runCmd.Flags().IntVar(&runDays, "days", 30, "number of days to simulate")

	serveCmd.Flags().IntVar(&apiPort, "port", 8080, "HTTP API port")
	serveCmd.Flags().StringVar(&dayEvery, "day-every", "2s", "wall time per simulated day at speed 1")
	serveCmd.Flags().IntVar(&saveEvery, "save-every", 10, "save a snapshot every N days")

	rootCmd.AddCommand(runCmd, serveCmd, configCmd)
}

func envSeed() int64 {
	if v := os.Getenv("PACTSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 42
}

// setup installs the default logger and loads the configuration.
func setup(cmd *cobra.Command, args []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch logFormat {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("log format %q: want text or json", logFormat)
	}
	slog.SetDefault(slog.New(handler))

	loaded, corrections, err := config.Load(configPath)
	if err != nil {
		return err
	}
	for _, c := range corrections {
		slog.Warn("config value replaced with default", "correction", c.String())
	}
	cfg = loaded
	return nil
}
