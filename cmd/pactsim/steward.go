package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/shadow-pacts/internal/steward"
)

var (
	stewardURL      string
	stewardInterval time.Duration
	stewardMemory   string

	stewardCmd = &cobra.Command{
		Use:   "steward",
		Short: "Watch a running pactsim API and nudge it when it stalls",
		RunE:  runSteward,
	}
)

func init() {
	stewardCmd.Flags().StringVar(&stewardURL, "api-url", "http://localhost:8080", "base URL of the pactsim API")
	stewardCmd.Flags().DurationVar(&stewardInterval, "interval", 10*time.Minute, "time between cycles")
	stewardCmd.Flags().StringVar(&stewardMemory, "memory", "data/steward_memory.json", "file for the steward's recent cycles")
	rootCmd.AddCommand(stewardCmd)
}

func runSteward(cmd *cobra.Command, args []string) error {
	adminKey := os.Getenv("PACTSIM_ADMIN_KEY")
	if adminKey == "" {
		return fmt.Errorf("PACTSIM_ADMIN_KEY is required")
	}
	if stewardInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	if err := os.MkdirAll(filepath.Dir(stewardMemory), 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("steward starting", "api_url", stewardURL, "interval", stewardInterval)
	s := &steward.Steward{
		Observer:   steward.NewObserver(stewardURL),
		Actor:      steward.NewActor(stewardURL, adminKey),
		Memory:     steward.LoadMemory(stewardMemory),
		Thresholds: steward.DefaultThresholds(),
		Logger:     slog.Default(),
	}
	return s.Run(ctx, stewardInterval)
}
