// Betrayal and defection.
// Evaluated before battles between allies and periodically for every pact.
package engine

import (
	"fmt"
	"math"

	"github.com/talgya/shadow-pacts/internal/config"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// BetrayalContext is what triggered an evaluation.
type BetrayalContext uint8

const (
	ContextPeriodic BetrayalContext = iota
	ContextPreBattle
)

func (c BetrayalContext) String() string {
	if c == ContextPreBattle {
		return "pre_battle"
	}
	return "periodic"
}

// Outcome is the result of one betrayal evaluation.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeNearMiss
	OutcomeBetrayal
	OutcomeSkipped // defection cooldown still running
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNearMiss:
		return "near_miss"
	case OutcomeBetrayal:
		return "betrayal"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "none"
	}
}

// Breakdown lists every factor of a betrayal probability. Total is the
// capped sum.
type Breakdown struct {
	Base        float64 `json:"base"`
	Trust       float64 `json:"trust"`
	Pressure    float64 `json:"pressure"`
	Desperation float64 `json:"desperation"`
	Escalation  float64 `json:"escalation"`
	Context     float64 `json:"context"`
	Total       float64 `json:"total"`
}

// BetrayalBreakdown computes the probability factors for an alliance. The
// desperation term grows with the military gap between the two members.
func BetrayalBreakdown(cfg config.BetrayalConfig, a *social.Alliance, fa, fb world.Faction, pressure float64, ctx BetrayalContext) Breakdown {
	b := Breakdown{
		Base:       cfg.BaseChance,
		Trust:      cfg.TrustWeight * (1 - a.Trust),
		Pressure:   cfg.PressureWeight * pressure,
		Escalation: a.BetrayalEscalation,
	}
	if hi := max(fa.MilitaryStrength, fb.MilitaryStrength); hi > 0 {
		b.Desperation = cfg.DesperationWeight * (1 - min(fa.MilitaryStrength, fb.MilitaryStrength)/hi)
	}
	if ctx == ContextPreBattle {
		b.Context = cfg.PreBattleBonus
	}
	sum := b.Base + b.Trust + b.Pressure + b.Desperation + b.Escalation + b.Context
	b.Total = math.Max(0, math.Min(sum, cfg.MaxChance))
	return b
}

// Decide classifies a roll against a breakdown.
func Decide(b Breakdown, roll, nearMissMargin float64) Outcome {
	switch {
	case roll < b.Total:
		return OutcomeBetrayal
	case roll < b.Total+nearMissMargin:
		return OutcomeNearMiss
	default:
		return OutcomeNone
	}
}

// processPeriodicBetrayal re-evaluates each alliance every period_days of its age.
func (s *Simulation) processPeriodicBetrayal(a *social.Alliance) error {
	age := a.Age(s.day)
	if age == 0 || age%s.cfg.Betrayal.PeriodDays != 0 {
		return nil
	}
	fa, fb, err := s.parties(a)
	if err != nil {
		return err
	}
	s.evaluateBetrayal(a, fa, fb, ContextPeriodic, s.rng.Float64())
	return nil
}

// evaluateBetrayal computes the breakdown, logs it, and resolves the roll.
func (s *Simulation) evaluateBetrayal(a *social.Alliance, fa, fb world.Faction, ctx BetrayalContext, roll float64) Outcome {
	bc := s.cfg.Betrayal
	if a.DefectionCooldownDays > 0 {
		s.metrics.Betrayal(ctx.String(), OutcomeSkipped.String())
		return OutcomeSkipped
	}
	b := BetrayalBreakdown(bc, a, fa, fb, s.pressure(fa, fb), ctx)
	outcome := Decide(b, roll, bc.NearMissMargin)

	s.log.Debug("betrayal evaluated",
		"alliance", a.ID,
		"context", ctx.String(),
		"base", b.Base,
		"trust", b.Trust,
		"pressure", b.Pressure,
		"desperation", b.Desperation,
		"escalation", b.Escalation,
		"context_bonus", b.Context,
		"total", b.Total,
		"roll", roll,
		"outcome", outcome.String(),
	)
	s.metrics.Betrayal(ctx.String(), outcome.String())

	switch outcome {
	case OutcomeNearMiss:
		a.BetrayalEscalation = math.Min(a.BetrayalEscalation+bc.EscalationIncrement, bc.EscalationCap)
		s.report.NearMisses++
	case OutcomeBetrayal:
		s.betray(a, fa, fb, ctx)
	}
	return outcome
}

// betray resolves an actual defection by the weaker member.
func (s *Simulation) betray(a *social.Alliance, fa, fb world.Faction, ctx BetrayalContext) {
	bc := s.cfg.Betrayal
	traitor, victim := fa, fb
	if fb.MilitaryStrength < fa.MilitaryStrength {
		traitor, victim = fb, fa
	}

	a.DefectionCooldownDays = bc.DefectionCooldownDays
	a.BetrayalEscalation = 0
	s.report.Betrayals++

	category := social.CategoryBetrayalPlot
	if ctx == ContextPeriodic && a.MilitaryPact && traitor.MilitaryStrength < victim.MilitaryStrength {
		a.CoupAttempted = true
		category = social.CategoryCoup
	}
	s.addIntel(a, &social.Intel{
		Category:    category,
		Source:      social.SourceBetrayal,
		Informer:    victim.LeaderID,
		Observer:    victim.ID,
		Reliability: s.intelReliability(),
		Severity:    s.leakSeverity(a, fa, fb),
		IsConfirmed: true,
	})

	if ctx == ContextPreBattle {
		s.addEvent("betrayal", "%s turned on %s on the eve of battle", traitor.Name, victim.Name)
		s.dissolve(a, "betrayal")
		return
	}
	a.BetrayalRevealed = true
	a.AdjustTrust(-bc.TrustPenalty)
	s.addEvent("betrayal", "%s betrayed its pact with %s", traitor.Name, victim.Name)
	s.log.Info("alliance betrayed", "alliance", a.ID, "traitor", traitor.ID, "coup", a.CoupAttempted)
}

// SignalBattle tells the core that two factions stand on opposite sides of
// the same battle. If they are secretly allied the pre-battle betrayal
// check runs. OutcomeNone is returned when they share no active alliance.
func (s *Simulation) SignalBattle(x, y world.FactionID) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.store.FindByPair(x, y)
	if err != nil || !a.Eligible() {
		return OutcomeNone, nil
	}
	fa, fb, err := s.parties(a)
	if err != nil {
		return OutcomeNone, fmt.Errorf("battle %d/%d: %w", x, y, err)
	}
	return s.evaluateBetrayal(a, fa, fb, ContextPreBattle, s.rng.Float64()), nil
}
