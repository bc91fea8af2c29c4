package engine

import (
	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/social"
)

// processDynamics applies organic daily change: secrecy erodes, strength
// grows, and coalition cohesion scales both. Counters tick and neglected
// old alliances may fade away.
func (s *Simulation) processDynamics(a *social.Alliance) error {
	dc := s.cfg.Dynamics
	decay, growth := dc.SecrecyDecay, dc.StrengthGrowth

	if c, ok := s.cohesion(a); ok {
		switch {
		case c < s.cfg.Coalition.LowCohesion:
			decay *= dc.LowCohesionDecayMult
		case c > s.cfg.Coalition.HighCohesion:
			decay *= dc.HighCohesionDecayMult
			growth *= dc.HighCohesionGrowthMult
		}
	}

	a.AdjustSecrecy(-decay)
	a.AdjustStrength(growth)
	a.SuspicionLevel = social.Clamp01(a.SuspicionLevel - dc.SuspicionDecay)
	a.DaysWithoutLeak++
	if a.CooldownDays > 0 {
		a.CooldownDays--
	}
	if a.DefectionCooldownDays > 0 {
		a.DefectionCooldownDays--
	}

	if a.Age(s.day) > dc.AgingDays && a.Strength < dc.AgingStrengthFloor && a.Trust < dc.AgingTrustFloor {
		if entropy.Chance(s.rng, dc.AgingDissolveChance) {
			s.dissolve(a, "neglect")
		}
	}
	return nil
}
