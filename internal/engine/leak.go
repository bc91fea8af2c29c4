// Leaks: secret alliances slowly give themselves away.
package engine

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/talgya/shadow-pacts/internal/config"
	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// LeakInput is the alliance state the leak curve depends on.
type LeakInput struct {
	Secrecy      float64
	Trust        float64
	Members      int
	TradePact    bool
	MilitaryPact bool
	CrossWar     bool
	AgeDays      int
	Attempts     int
	CounterIntel float64 // active protection buff, 0 when none
}

// LeakExposure builds the raw exposure value fed into the logistic curve.
func LeakExposure(cfg config.LeakConfig, in LeakInput) float64 {
	x := cfg.BaseChance +
		cfg.SecrecyWeight*(1-in.Secrecy) +
		cfg.MemberWeight*float64(max(0, in.Members-2)) +
		cfg.TrustWeight*(1-in.Trust)
	if in.CrossWar {
		x += cfg.WarRisk
	}
	if in.TradePact {
		x *= 1 + cfg.TradeSurcharge
	}
	if in.MilitaryPact {
		x *= 1 + cfg.MilitarySurcharge
	}
	tenure := math.Min(float64(in.AgeDays)/float64(cfg.TenureDays), 1)
	x -= cfg.TenureDiscount * tenure
	x += math.Min(float64(in.Attempts)*cfg.AttemptEscalation, cfg.EscalationCap)
	x -= in.CounterIntel
	return x
}

// LeakProbability maps exposure through a logistic curve scaled to
// max_chance. It is strictly decreasing in secrecy and in trust.
func LeakProbability(cfg config.LeakConfig, in LeakInput) float64 {
	x := LeakExposure(cfg, in)
	return cfg.MaxChance / (1 + math.Exp(-cfg.Steepness*(x-cfg.Midpoint)))
}

func (s *Simulation) leakInput(a *social.Alliance) LeakInput {
	in := LeakInput{
		Secrecy:      a.Secrecy,
		Trust:        a.Trust,
		Members:      memberCount(a),
		TradePact:    a.TradePact,
		MilitaryPact: a.MilitaryPact,
		CrossWar:     a.CrossWar,
		AgeDays:      a.Age(s.day),
		Attempts:     a.LeakAttempts,
	}
	if s.day < a.CounterIntelUntilDay {
		in.CounterIntel = s.cfg.Operations.CounterIntelBuff
	}
	return in
}

// processLeak rolls the daily leak check for a still-secret alliance.
func (s *Simulation) processLeak(a *social.Alliance) error {
	if a.Revealed {
		return nil
	}
	fa, fb, err := s.parties(a)
	if err != nil {
		return err
	}
	p := LeakProbability(s.cfg.Leak, s.leakInput(a))
	a.LeakAttempts++
	if !entropy.Chance(s.rng, p) {
		return nil
	}
	s.leak(a, fa, fb, social.SourceLeak)
	return nil
}

// leak exposes the alliance: one member talks, an intel record is created
// and secrecy drops.
func (s *Simulation) leak(a *social.Alliance, fa, fb world.Faction, source social.Source) {
	lc := s.cfg.Leak
	leaker := s.pickLeaker(fa, fb)

	category := social.CategorySecretMeeting
	switch {
	case a.MilitaryPact:
		category = social.CategoryMilitaryCoordination
	case a.TradePact:
		category = social.CategoryTradeEvidence
	}

	s.addIntel(a, &social.Intel{
		Category:    category,
		Source:      source,
		Informer:    leaker.LeaderID,
		Reliability: s.intelReliability(),
		Severity:    s.leakSeverity(a, fa, fb),
	})

	a.AdjustSecrecy(-lc.SecrecyLoss)
	a.SuspicionLevel = social.Clamp01(a.SuspicionLevel + lc.SuspicionGain)
	a.DaysWithoutLeak = 0

	s.report.Leaks++
	s.metrics.Leak(string(source))
	s.addEvent("leak", "rumors spread of a pact between %s and %s", fa.Name, fb.Name)
	s.log.Debug("alliance leaked", "alliance", a.ID, "source", source, "leaker", leaker.ID)
}

// pickLeaker chooses who talks, weighted by each leader's propensity:
// dishonest leaders talk more, calculating ones less.
func (s *Simulation) pickLeaker(fa, fb world.Faction) world.Faction {
	weights := []float64{s.propensity(fa), s.propensity(fb)}
	if entropy.Weighted(s.rng, weights) == 1 {
		return fb
	}
	return fa
}

func (s *Simulation) propensity(f world.Faction) float64 {
	lc := s.cfg.Leak
	l, err := s.world.Leader(f.LeaderID)
	if err != nil {
		return 1
	}
	p := 1 - lc.HonorWeight*float64(l.Traits.Honor) - lc.CalculatingWeight*float64(l.Traits.Calculating)
	return math.Max(lc.MinPropensity, p)
}

// leakSeverity grows with strength, distrust and the number of parties,
// and jumps when the members' kingdoms are different or at war.
func (s *Simulation) leakSeverity(a *social.Alliance, fa, fb world.Faction) float64 {
	lc := s.cfg.Leak
	sev := lc.SeverityBase +
		lc.SeverityStrength*a.Strength +
		lc.SeverityDistrust*(1-a.Trust) +
		lc.MemberWeight*float64(memberCount(a)-2)
	switch {
	case world.Hostile(s.world, fa, fb):
		sev += lc.WarSeverity
	case fa.Kingdom != fb.Kingdom:
		sev += lc.CrossKingdomSeverity
	}
	return social.Clamp01(sev)
}

func (s *Simulation) intelReliability() float64 {
	return entropy.Uniform(s.rng, s.cfg.Intel.ReliabilityMin, s.cfg.Intel.ReliabilityMax)
}

// addIntel stamps a record with the alliance and today's date and stores it.
func (s *Simulation) addIntel(a *social.Alliance, r *social.Intel) {
	if a != nil {
		r.AllianceID = a.ID
		r.Pair = a.Members()
	}
	r.CreatedDay = s.day
	s.store.AddIntel(r)
}

// ForceLeak exposes an alliance immediately. Debug entry point.
func (s *Simulation) ForceLeak(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if !a.Eligible() {
		return fmt.Errorf("leak %s: %w", id, ErrInactive)
	}
	fa, fb, err := s.parties(a)
	if err != nil {
		return err
	}
	s.leak(a, fa, fb, social.SourceLeak)
	return nil
}
