package steward

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Steward runs observe → triage → decide → act cycles.
type Steward struct {
	Observer   *Observer
	Actor      *Actor
	Memory     *CycleMemory
	Thresholds Thresholds
	Logger     *slog.Logger
}

// RunCycle executes one cycle and returns the decision taken.
func (s *Steward) RunCycle(ctx context.Context) (*Decision, error) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	snap, err := s.Observer.Observe(ctx)
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	h := Triage(snap, s.Thresholds)
	log.Info("observation complete",
		"day", snap.Status.Day,
		"active", h.Active,
		"factions", h.Factions,
		"top_cohesion", fmt.Sprintf("%.2f", h.TopCohesion),
		"drama", h.RecentDrama,
		"level", h.Level,
	)

	d := Decide(snap, h, s.Memory)
	rec := CycleRecord{Day: snap.Status.Day, Action: d.Action, Level: h.Level, Rationale: d.Rationale}
	if d.Intervention != nil {
		rec.Alliance = d.Intervention.Alliance
	}
	defer func() {
		s.Memory.Record(rec)
		s.Memory.Save()
	}()

	if d.Intervention == nil {
		log.Info("steward cycle complete, no intervention", "rationale", d.Rationale)
		return d, nil
	}

	result, err := s.Actor.Act(ctx, d.Intervention)
	if Refused(err) {
		rec.Failed = true
		log.Info("intervention refused", "type", d.Intervention.Type, "alliance", d.Intervention.Alliance, "error", err)
		return d, nil
	}
	if err != nil {
		rec.Failed = true
		return d, fmt.Errorf("act: %w", err)
	}
	log.Info("intervention executed",
		"type", d.Intervention.Type,
		"alliance", d.Intervention.Alliance,
		"success", result.Success,
		"rationale", d.Rationale,
	)
	return d, nil
}

// WaitReady polls the status endpoint with exponential backoff until it
// responds or ctx ends.
func (s *Steward) WaitReady(ctx context.Context) error {
	backoff := 2 * time.Second
	const maxBackoff = 30 * time.Second
	for {
		if s.Observer.Ready(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Run waits for the API, then cycles every interval until ctx ends.
// Failed cycles are logged and do not stop the loop.
func (s *Steward) Run(ctx context.Context, interval time.Duration) error {
	if err := s.WaitReady(ctx); err != nil {
		return fmt.Errorf("api never became ready: %w", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			slog.Error("steward cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
