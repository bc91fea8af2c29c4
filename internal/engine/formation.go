// Formation of new secret alliances.
// Each day a bounded sample of unallied faction pairs is scored and rolled.
package engine

import (
	"fmt"
	"math"

	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// FormationScore is the daily chance that two factions form an alliance.
// Mutual enemies, economic disparity, military imbalance and political
// pressure all add to the base chance; the sum is capped at max_chance.
func (s *Simulation) FormationScore(fa, fb world.Faction) float64 {
	fc := s.cfg.Formation
	score := fc.BaseChance
	if s.mutualEnemies(fa, fb) > 0 {
		score += fc.MutualEnemyWeight
	}
	if hi := max(fa.Wealth, fb.Wealth); hi > 0 {
		score += fc.EconomicWeight * math.Abs(fa.Wealth-fb.Wealth) / hi
	}
	if hi := max(fa.MilitaryStrength, fb.MilitaryStrength); hi > 0 {
		score += fc.MilitaryWeight * (1 - min(fa.MilitaryStrength, fb.MilitaryStrength)/hi)
	}
	score += fc.PressureWeight * s.pressure(fa, fb)
	return math.Max(0, math.Min(score, fc.MaxChance))
}

// mutualEnemies counts kingdoms at war with both factions' kingdoms.
func (s *Simulation) mutualEnemies(fa, fb world.Faction) int {
	if fa.Kingdom == 0 || fb.Kingdom == 0 {
		return 0
	}
	enemies := make(map[world.KingdomID]bool)
	for _, k := range s.world.Wars(fa.Kingdom) {
		enemies[k] = true
	}
	n := 0
	for _, k := range s.world.Wars(fb.Kingdom) {
		if enemies[k] && k != fa.Kingdom && k != fb.Kingdom {
			n++
		}
	}
	return n
}

// candidatePairs lists every eligible unordered pair in ascending order.
func (s *Simulation) candidatePairs() [][2]world.Faction {
	var live []world.Faction
	for _, id := range s.world.FactionIDs() {
		f, err := s.resolve(id)
		if err != nil {
			continue
		}
		live = append(live, f)
	}
	var pairs [][2]world.Faction
	for i := range live {
		for j := i + 1; j < len(live); j++ {
			a, b := live[i], live[j]
			if s.store.HasActivePair(a.ID, b.ID) || s.store.Rejected(a.ID, b.ID, s.day) {
				continue
			}
			pairs = append(pairs, [2]world.Faction{a, b})
		}
	}
	return pairs
}

// processFormation samples candidate pairs and creates alliances, up to the
// daily cap. A failed roll puts the pair on a rejection cooldown.
func (s *Simulation) processFormation() {
	fc := s.cfg.Formation
	if fc.MaxPerDay == 0 {
		return
	}
	pairs := s.candidatePairs()

	// Partial Fisher-Yates: only the sampled prefix is shuffled.
	n := min(fc.CandidatesPerDay, len(pairs))
	for i := 0; i < n; i++ {
		j := i + s.rng.IntN(len(pairs)-i)
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}

	formed := 0
	for _, p := range pairs[:n] {
		if formed >= fc.MaxPerDay {
			break
		}
		fa, fb := p[0], p[1]
		if entropy.Chance(s.rng, s.FormationScore(fa, fb)) {
			if _, err := s.createAlliance(fa, fb, FormOptions{Origin: "organic"}, true); err != nil {
				s.log.Warn("alliance formation failed", "initiator", fa.ID, "target", fb.ID, "err", err)
				continue
			}
			formed++
			continue
		}
		s.store.SetRejection(fa.ID, fb.ID, s.day+fc.RejectionCooldownDays)
	}
}

// FormOptions control an externally triggered alliance.
type FormOptions struct {
	TradePact    bool
	MilitaryPact bool
	// Origin labels the trigger, e.g. "bribe" or "negotiation".
	Origin string
}

// createAlliance builds and stores a new alliance. When rollPacts is set
// the pact flags are rolled from configuration instead of taken from opts.
func (s *Simulation) createAlliance(fa, fb world.Faction, opts FormOptions, rollPacts bool) (*social.Alliance, error) {
	fc := s.cfg.Formation
	a := &social.Alliance{
		ID:                 s.store.NewID(),
		Initiator:          fa.ID,
		Target:             fb.ID,
		Strength:           entropy.Uniform(s.rng, fc.InitialStrengthMin, fc.InitialStrengthMax),
		Secrecy:            entropy.Uniform(s.rng, fc.InitialSecrecyMin, fc.InitialSecrecyMax),
		Trust:              fc.InitialTrust,
		TradePact:          opts.TradePact,
		MilitaryPact:       opts.MilitaryPact,
		IsActive:           true,
		CrossWar:           world.Hostile(s.world, fa, fb),
		CreatedDay:         s.day,
		LastInteractionDay: s.day,
		LastOperationDay:   s.day,
		CooldownDays:       fc.InteractionCooldown,
	}
	if rollPacts {
		a.TradePact = entropy.Chance(s.rng, fc.TradePactChance)
		a.MilitaryPact = entropy.Chance(s.rng, fc.MilitaryPactChance)
	}
	a.BeginDay(s.day, s.cfg.Dynamics.MaxDailyDelta)
	if err := s.store.Add(a); err != nil {
		return nil, fmt.Errorf("store new alliance: %w", err)
	}

	origin := opts.Origin
	if origin == "" {
		origin = "organic"
	}
	s.report.Formed++
	s.metrics.Formed(origin)
	s.addEvent("formation", "%s and %s formed a secret alliance", fa.Name, fb.Name)
	s.log.Info("alliance formed",
		"alliance", a.ID,
		"initiator", fa.ID,
		"target", fb.ID,
		"origin", origin,
		"cross_war", a.CrossWar,
		"trade_pact", a.TradePact,
		"military_pact", a.MilitaryPact,
	)
	return a, nil
}

// FormAlliance creates an alliance on an external trigger such as a bribe
// or a negotiated pact. Rejection cooldowns do not apply.
func (s *Simulation) FormAlliance(a, b world.FactionID, opts FormOptions) (*social.Alliance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a == b {
		return nil, fmt.Errorf("faction %d cannot ally with itself", a)
	}
	fa, err := s.resolve(a)
	if err != nil {
		return nil, err
	}
	fb, err := s.resolve(b)
	if err != nil {
		return nil, err
	}
	if s.store.HasActivePair(a, b) {
		return nil, fmt.Errorf("%d/%d: %w", a, b, ErrAlreadyAllied)
	}
	if opts.Origin == "" {
		opts.Origin = "external"
	}
	al, err := s.createAlliance(fa, fb, opts, false)
	if err != nil {
		return nil, err
	}
	return al.Clone(), nil
}
