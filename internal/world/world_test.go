package world

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticLookups(t *testing.T) {
	w := NewStatic()
	w.AddFaction(Faction{ID: 2, Kingdom: 1, Wealth: 100, LeaderID: 20}, Leader{ID: 20})
	w.AddFaction(Faction{ID: 1, Kingdom: 2, Wealth: 50, LeaderID: 10}, Leader{ID: 10})
	w.SetWar(2, 1, true)

	assert.Equal(t, []FactionID{1, 2}, w.FactionIDs())
	assert.True(t, w.AtWar(1, 2))
	assert.False(t, w.AtWar(1, 1))
	assert.Equal(t, []KingdomID{2}, w.Wars(1))
	assert.Equal(t, []FactionID{2}, w.KingdomFactions(1))

	_, err := w.Faction(9)
	assert.True(t, errors.Is(err, ErrUnknownFaction))
	_, err = w.Leader(9)
	assert.True(t, errors.Is(err, ErrUnknownAgent))
}

func TestEffectApplyMovesWealth(t *testing.T) {
	w := NewStatic()
	w.AddFaction(Faction{ID: 1, Wealth: 100, LeaderID: 10}, Leader{ID: 10})
	w.AddFaction(Faction{ID: 2, Wealth: 10, LeaderID: 20}, Leader{ID: 20})

	e := Effect{Kind: EffectWealth, From: 1, To: 2, Amount: 30}
	require.NoError(t, e.Apply(w))

	a, _ := w.Faction(1)
	b, _ := w.Faction(2)
	assert.Equal(t, 70.0, a.Wealth)
	assert.Equal(t, 40.0, b.Wealth)

	rel := Effect{Kind: EffectRelation, Agents: [2]AgentID{10, 20}, Amount: -150}
	require.NoError(t, rel.Apply(w))
	assert.Equal(t, -100.0, w.Relation(20, 10))
}

func TestEffectApplyUnknownFaction(t *testing.T) {
	w := NewStatic()
	e := Effect{Kind: EffectWealth, From: 1, To: 2, Amount: 1}
	assert.ErrorIs(t, e.Apply(w), ErrUnknownFaction)
}

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	a := Generate(cfg)
	b := Generate(cfg)

	want := cfg.Kingdoms*cfg.FactionsPerKingdom + cfg.Independents
	require.Equal(t, want, a.FactionCount())

	for _, id := range a.FactionIDs() {
		fa, err := a.Faction(id)
		require.NoError(t, err)
		fb, err := b.Faction(id)
		require.NoError(t, err)
		assert.Equal(t, fa, fb)

		l, err := a.Leader(fa.LeaderID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, l.Traits.Honor, -2)
		assert.LessOrEqual(t, l.Traits.Honor, 2)
		assert.Greater(t, fa.Wealth, 0.0)
	}
}
