package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

func drawLeakInput(t *rapid.T) LeakInput {
	return LeakInput{
		Secrecy:      rapid.Float64Range(0, 1).Draw(t, "secrecy"),
		Trust:        rapid.Float64Range(0, 1).Draw(t, "trust"),
		Members:      rapid.IntRange(2, 8).Draw(t, "members"),
		TradePact:    rapid.Bool().Draw(t, "trade"),
		MilitaryPact: rapid.Bool().Draw(t, "military"),
		CrossWar:     rapid.Bool().Draw(t, "crossWar"),
		AgeDays:      rapid.IntRange(0, 1000).Draw(t, "age"),
		Attempts:     rapid.IntRange(0, 500).Draw(t, "attempts"),
	}
}

func TestLeakProbabilityDecreasesWithSecrecy(t *testing.T) {
	cfg := testConfig().Leak
	rapid.Check(t, func(t *rapid.T) {
		in := drawLeakInput(t)
		in.Secrecy = rapid.Float64Range(0, 0.98).Draw(t, "low")
		higher := in
		higher.Secrecy = in.Secrecy + rapid.Float64Range(0.01, 1-in.Secrecy).Draw(t, "step")

		if LeakProbability(cfg, higher) >= LeakProbability(cfg, in) {
			t.Fatalf("secrecy %v -> %v did not lower leak probability", in.Secrecy, higher.Secrecy)
		}
	})
}

func TestLeakProbabilityDecreasesWithTrust(t *testing.T) {
	cfg := testConfig().Leak
	rapid.Check(t, func(t *rapid.T) {
		in := drawLeakInput(t)
		in.Trust = rapid.Float64Range(0, 0.98).Draw(t, "low")
		higher := in
		higher.Trust = in.Trust + rapid.Float64Range(0.01, 1-in.Trust).Draw(t, "step")

		if LeakProbability(cfg, higher) >= LeakProbability(cfg, in) {
			t.Fatalf("trust %v -> %v did not lower leak probability", in.Trust, higher.Trust)
		}
	})
}

func TestLeakProbabilityBounded(t *testing.T) {
	cfg := testConfig().Leak
	rapid.Check(t, func(t *rapid.T) {
		p := LeakProbability(cfg, drawLeakInput(t))
		if p <= 0 || p >= cfg.MaxChance {
			t.Fatalf("probability %v outside (0, %v)", p, cfg.MaxChance)
		}
	})
}

func TestCounterIntelLowersExposure(t *testing.T) {
	cfg := testConfig().Leak
	in := LeakInput{Secrecy: 0.5, Trust: 0.5, Members: 2}
	shielded := in
	shielded.CounterIntel = 0.15
	assert.Less(t, LeakProbability(cfg, shielded), LeakProbability(cfg, in))
}

func TestLeakCreatesIntelAndCostsSecrecy(t *testing.T) {
	s := newSim(twoKingdoms(), entropy.Always(0))
	s.day = 5
	a := seedAlliance(t, s, 1, 2, 0.4, 0.6, 0.5)
	a.MilitaryPact = true
	a.DaysWithoutLeak = 12

	require.NoError(t, s.processLeak(a))

	assert.Equal(t, 1, a.LeakAttempts)
	assert.Zero(t, a.DaysWithoutLeak)
	assert.InDelta(t, 0.6-s.cfg.Leak.SecrecyLoss, a.Secrecy, 1e-12)
	assert.InDelta(t, s.cfg.Leak.SuspicionGain, a.SuspicionLevel, 1e-12)

	records := s.store.IntelFor(a.ID)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, social.CategoryMilitaryCoordination, r.Category)
	assert.Equal(t, social.SourceLeak, r.Source)
	assert.Equal(t, 5, r.CreatedDay)
	assert.InDelta(t, s.cfg.Intel.ReliabilityMin, r.Reliability, 1e-12)
	assert.Greater(t, r.Severity, 0.0)
}

func TestRevealedAllianceNoLongerLeaks(t *testing.T) {
	s := newSim(twoKingdoms(), entropy.Always(0))
	a := seedAlliance(t, s, 1, 2, 0.4, 0.6, 0.5)
	a.Revealed = true

	require.NoError(t, s.processLeak(a))
	assert.Zero(t, a.LeakAttempts)
	assert.Empty(t, s.store.Intel())
}

func TestPropensityFollowsLeaderTraits(t *testing.T) {
	w := world.NewStatic()
	w.AddFaction(world.Faction{ID: 1, Kingdom: 1, LeaderID: 11}, world.Leader{ID: 11, Traits: world.Traits{Honor: 2, Calculating: 2}})
	w.AddFaction(world.Faction{ID: 4, Kingdom: 4, LeaderID: 14}, world.Leader{ID: 14, Traits: world.Traits{Honor: 2, Calculating: 2}})
	w.AddFaction(world.Faction{ID: 2, Kingdom: 2, LeaderID: 12}, world.Leader{ID: 12, Traits: world.Traits{Honor: -2, Calculating: -1}})
	w.AddFaction(world.Faction{ID: 3, Kingdom: 3, LeaderID: 99}, world.Leader{})
	s := newSim(w, entropy.Always(0.5))

	honest := s.propensity(faction(t, w, 1))
	sly := s.propensity(faction(t, w, 2))
	assert.Greater(t, sly, honest)
	assert.InDelta(t, 1-0.25*2-0.15*2, honest, 1e-12)
	s.cfg.Leak.HonorWeight = 0.5
	assert.Equal(t, s.cfg.Leak.MinPropensity, s.propensity(faction(t, w, 4)))
	s.cfg.Leak.HonorWeight = 0.25
	// A leader that cannot be resolved talks at the neutral rate.
	assert.Equal(t, 1.0, s.propensity(faction(t, w, 3)))

	// The dishonest side is picked for any roll past the honest share.
	assert.Equal(t, world.FactionID(2), s.pickLeaker(faction(t, w, 1), faction(t, w, 2)).ID)
}
