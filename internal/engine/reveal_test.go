package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

func TestRevealProbability(t *testing.T) {
	rc := testConfig().Reveal
	assert.Zero(t, RevealProbability(rc, 0.8, 0.1))
	assert.Zero(t, RevealProbability(rc, 0.95, 0.2))
	assert.InDelta(t, 4*0.15*0.15, RevealProbability(rc, 0.95, 0.1), 1e-12)
	rc.Scale = 100
	assert.Equal(t, 1.0, RevealProbability(rc, 1, 0))
}

func TestOvergrownAllianceIsEventuallyRevealed(t *testing.T) {
	w := world.NewStatic()
	addFaction(w, 1, 1, 20000, 500)
	addFaction(w, 2, 2, 20000, 500)
	addFaction(w, 3, 1, 20000, 500)
	rng := entropy.Always(0.99)
	s := newSim(w, rng)
	a := seedAlliance(t, s, 1, 2, 0.95, 0.1, 0.5)

	for i := 0; i < 10; i++ {
		s.AdvanceDay()
		cur, err := s.FindAlliance(1, 2)
		require.NoError(t, err)
		require.True(t, cur.IsActive)
		require.False(t, cur.Revealed, "day %d", s.Day())
		assert.Greater(t, RevealProbability(s.cfg.Reveal, cur.Strength, cur.Secrecy), 0.0, "day %d", s.Day())
	}

	s.rng = entropy.Always(0)
	r := s.AdvanceDay()
	require.Equal(t, 1, r.Reveals)

	cur, err := s.FindAlliance(1, 2)
	require.NoError(t, err)
	assert.True(t, cur.Revealed)
	assert.True(t, cur.IsActive)
	assert.InDelta(t, 0.5-s.cfg.Reveal.TrustPenalty, cur.Trust, 1e-12)

	var broadcast *social.Intel
	for _, rec := range s.store.IntelFor(a.ID) {
		if rec.Source == social.SourceReveal {
			broadcast = rec
		}
	}
	require.NotNil(t, broadcast)
	assert.True(t, broadcast.Broadcast)
	assert.True(t, broadcast.IsConfirmed)
	assert.ElementsMatch(t, []world.KingdomID{1, 2}, broadcast.Kingdoms)

	// Faction 3 shares kingdom 1 and learns of it.
	var seen bool
	for _, ri := range s.IntelFor(3, 0) {
		if ri.Intel.ID == broadcast.ID {
			seen = true
		}
	}
	assert.True(t, seen)

	// Revealed alliances are not revealed twice.
	require.NoError(t, s.ForceReveal(a.ID))
	assert.Equal(t, 1, countSource(s.store.IntelFor(a.ID), social.SourceReveal))
}

func TestRevealDissolvesDistrustfulAlliance(t *testing.T) {
	s := newSim(twoKingdoms(), entropy.Always(0.5))
	a := seedAlliance(t, s, 1, 2, 0.9, 0.1, 0.17)

	require.NoError(t, s.ForceReveal(a.ID))
	assert.True(t, a.Revealed)
	assert.False(t, a.IsActive)
	assert.Equal(t, "revealed", a.DissolveReason)

	assert.ErrorIs(t, s.ForceReveal(a.ID), ErrInactive)
}

func countSource(records []*social.Intel, src social.Source) int {
	n := 0
	for _, r := range records {
		if r.Source == src {
			n++
		}
	}
	return n
}
