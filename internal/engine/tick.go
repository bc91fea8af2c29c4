// Package engine runs the secret-alliance simulation one day at a time.
// The Engine below is the wall-clock driver; Simulation holds the state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// DaysPerSeason and SeasonsPerYear define the calendar used for labels.
const (
	DaysPerSeason  = 90
	SeasonsPerYear = 4
)

// Engine drives the simulation forward on a timer.
type Engine struct {
	Interval time.Duration // wall time per sim-day at speed 1

	// OnDay runs once per simulated day. Populated during setup.
	OnDay func(day int)

	speed  atomic.Uint64 // float64 bits; 0 = paused
	days   atomic.Int64
	logger *slog.Logger
}

// NewEngine creates a driver with one sim-day per interval.
func NewEngine(interval time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{Interval: interval, logger: logger}
	e.SetSpeed(1)
	return e
}

// SetSpeed changes the multiplier. 1.0 = real interval, 0 = paused.
func (e *Engine) SetSpeed(v float64) {
	e.speed.Store(math.Float64bits(v))
}

// Speed returns the current multiplier.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// Days returns how many days this engine has driven.
func (e *Engine) Days() int {
	return int(e.days.Load())
}

// Run advances days until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("simulation engine started", "interval", e.Interval, "speed", e.Speed())
	defer e.logger.Info("simulation engine stopped", "days", e.Days())

	for {
		speed := e.Speed()
		if speed <= 0 {
			// Paused; check again shortly.
			if !sleep(ctx, 100*time.Millisecond) {
				return nil
			}
			continue
		}

		start := time.Now()
		e.step()

		target := time.Duration(float64(e.Interval) / speed)
		if elapsed := time.Since(start); elapsed < target {
			if !sleep(ctx, target-elapsed) {
				return nil
			}
		} else if ctx.Err() != nil {
			return nil
		}
	}
}

func (e *Engine) step() {
	day := int(e.days.Add(1))
	if e.OnDay != nil {
		e.OnDay(day)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// DayLabel renders a day number as a calendar date.
func DayLabel(day int) string {
	if day < 1 {
		return "before the first day"
	}
	d := day - 1
	seasonNames := [SeasonsPerYear]string{"Spring", "Summer", "Autumn", "Winter"}
	seasons := d / DaysPerSeason
	return fmt.Sprintf("%s Day %d, Year %d",
		seasonNames[seasons%SeasonsPerYear], d%DaysPerSeason+1, seasons/SeasonsPerYear+1)
}
