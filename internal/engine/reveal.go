package engine

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/talgya/shadow-pacts/internal/config"
	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// RevealProbability is the daily chance that an alliance too strong and too
// exposed to stay hidden is revealed. Zero unless strength is above the
// threshold and secrecy below it.
func RevealProbability(cfg config.RevealConfig, strength, secrecy float64) float64 {
	if strength <= cfg.StrengthThreshold || secrecy >= cfg.SecrecyThreshold {
		return 0
	}
	return social.Clamp01(cfg.Scale * (strength - cfg.StrengthThreshold) * (cfg.SecrecyThreshold - secrecy + cfg.Epsilon))
}

func (s *Simulation) processReveal(a *social.Alliance) error {
	if a.Revealed {
		return nil
	}
	p := RevealProbability(s.cfg.Reveal, a.Strength, a.Secrecy)
	if p == 0 || !entropy.Chance(s.rng, p) {
		return nil
	}
	fa, fb, err := s.parties(a)
	if err != nil {
		return err
	}
	s.reveal(a, fa, fb)
	return nil
}

// reveal exposes the alliance to everyone in the members' kingdoms.
func (s *Simulation) reveal(a *social.Alliance, fa, fb world.Faction) {
	rc := s.cfg.Reveal
	a.Revealed = true

	var kingdoms []world.KingdomID
	for _, k := range []world.KingdomID{fa.Kingdom, fb.Kingdom} {
		if k != 0 && !slices.Contains(kingdoms, k) {
			kingdoms = append(kingdoms, k)
		}
	}
	s.addIntel(a, &social.Intel{
		Category:    social.CategoryGeneralRumor,
		Source:      social.SourceReveal,
		Reliability: 1,
		Severity:    social.Clamp01(a.Strength),
		IsConfirmed: true,
		Broadcast:   true,
		Kingdoms:    kingdoms,
	})

	a.AdjustSecrecy(-rc.SecrecyPenalty)
	a.AdjustTrust(-rc.TrustPenalty)

	s.report.Reveals++
	s.metrics.Reveal()
	s.addEvent("reveal", "the pact between %s and %s is now common knowledge", fa.Name, fb.Name)
	s.log.Info("alliance revealed", "alliance", a.ID, "strength", a.Strength, "trust", a.Trust)

	if a.Trust < rc.DissolveTrust {
		s.dissolve(a, "revealed")
	}
}

// ForceReveal exposes an alliance immediately. Debug entry point.
func (s *Simulation) ForceReveal(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if !a.Eligible() {
		return fmt.Errorf("reveal %s: %w", id, ErrInactive)
	}
	if a.Revealed {
		return nil
	}
	fa, fb, err := s.parties(a)
	if err != nil {
		return err
	}
	s.reveal(a, fa, fb)
	return nil
}
