package engine

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/talgya/shadow-pacts/internal/config"
	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/metrics"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Sanitize()
	return cfg
}

func newSim(w world.Model, src entropy.Source) *Simulation {
	return New(testConfig(), w, social.NewStore(), Options{Logger: quietLogger(), Source: src})
}

// addFaction places a faction whose leader ID is 100 + the faction ID.
func addFaction(w *world.Static, id world.FactionID, kingdom world.KingdomID, wealth, military float64) {
	leader := world.AgentID(100 + id)
	w.AddFaction(
		world.Faction{ID: id, Name: fmt.Sprintf("House %d", id), Kingdom: kingdom, Wealth: wealth, MilitaryStrength: military, LeaderID: leader},
		world.Leader{ID: leader, Name: fmt.Sprintf("Lord %d", id), Skills: world.Skills{Leadership: 100, Tactics: 100, Roguery: 100}},
	)
}

// twoKingdoms has factions 1 and 2 in kingdoms 1 and 2, both at war with
// kingdom 3.
func twoKingdoms() *world.Static {
	w := world.NewStatic()
	addFaction(w, 1, 1, 20000, 500)
	addFaction(w, 2, 2, 20000, 500)
	w.SetWar(1, 3, true)
	w.SetWar(2, 3, true)
	return w
}

func seedAlliance(t *testing.T, s *Simulation, a, b world.FactionID, strength, secrecy, trust float64) *social.Alliance {
	t.Helper()
	al := &social.Alliance{
		ID:         social.NewAllianceID(),
		Initiator:  a,
		Target:     b,
		Strength:   strength,
		Secrecy:    secrecy,
		Trust:      trust,
		IsActive:   true,
		CreatedDay: s.day,
	}
	require.NoError(t, s.store.Add(al))
	return al
}

func faction(t *testing.T, w world.Model, id world.FactionID) world.Faction {
	t.Helper()
	f, err := w.Faction(id)
	require.NoError(t, err)
	return f
}

func TestAdvanceDayWithoutCandidatesIsIdempotent(t *testing.T) {
	w := world.NewStatic()
	addFaction(w, 1, 1, 10000, 100)
	addFaction(w, 2, 2, 10000, 100)
	w.Eliminate(2)
	s := newSim(w, entropy.NewSeeded(7))

	for i := 1; i <= 5; i++ {
		r := s.AdvanceDay()
		assert.Equal(t, i, r.Day)
		assert.Zero(t, r.Active)
		assert.Zero(t, r.Formed)
	}
	assert.Zero(t, s.store.Len())
	assert.Empty(t, s.store.Intel())
	assert.Empty(t, s.store.Rejections())
	assert.Equal(t, 10000.0, faction(t, w, 1).Wealth)
	assert.Equal(t, 5, s.Day())
}

func TestGuardIsolatesFailingAlliance(t *testing.T) {
	w := world.NewStatic()
	addFaction(w, 1, 1, 50000, 100)
	addFaction(w, 2, 2, 5000, 100)
	addFaction(w, 3, 3, 5000, 100)
	s := newSim(w, entropy.Always(0.99))

	good := seedAlliance(t, s, 1, 2, 0.3, 0.8, 0.5)
	good.TradePact = true
	broken := seedAlliance(t, s, 1, 3, 0.3, 0.8, 0.5)
	broken.TradePact = true
	w.Remove(3)

	r := s.AdvanceDay()

	assert.Len(t, good.Transfers, 1)
	assert.Empty(t, broken.Transfers)
	assert.True(t, broken.IsActive)
	assert.Equal(t, 1, r.Day)
	assert.Greater(t, faction(t, w, 2).Wealth, 5000.0)

	assert.NotPanics(t, func() {
		s.guard("test", good, func() error { panic("boom") })
	})
}

func TestTradeConservesWealth(t *testing.T) {
	w := twoKingdoms()
	addFaction(w, 3, 1, 4000, 100)
	s := newSim(w, entropy.Always(0.99))
	a := seedAlliance(t, s, 1, 3, 0.3, 0.8, 0.5)
	a.TradePact = true

	before := faction(t, w, 1).Wealth + faction(t, w, 3).Wealth
	r := s.AdvanceDay()
	after := faction(t, w, 1).Wealth + faction(t, w, 3).Wealth

	require.Greater(t, r.Transferred, 0.0)
	assert.InDelta(t, before, after, 1e-6)
	assert.Less(t, faction(t, w, 1).Wealth, 20000.0)
	assert.InDelta(t, 4000+r.Transferred, faction(t, w, 3).Wealth, 1e-6)
	assert.Greater(t, a.Trust, 0.5)
	assert.Equal(t, 1, r.Effects)
}

// TestDailyPassProperties runs random seeded worlds and checks, day by day,
// that scalars stay in [0, 1] and within the daily band, that no operation
// runs before its kind's cooldown has ended, and that intel reliability never
// goes up.
func TestSeededRunsAreReproducible(t *testing.T) {
	run := func() ([]DayReport, Snapshot) {
		cfg := testConfig()
		cfg.Formation.BaseChance = 0.2
		cfg.Formation.MaxChance = 0.6
		cfg.Operations.LaunchChance = 0.6
		cfg.Operations.MinInterval = 3

		s := New(cfg, world.Generate(world.SmallTestConfig()), social.NewStore(), Options{
			Logger: quietLogger(),
			Source: entropy.NewSeeded(42),
		})
		var reports []DayReport
		for range 120 {
			reports = append(reports, s.AdvanceDay())
		}
		snap, err := s.Snapshot()
		require.NoError(t, err)
		return reports, snap
	}

	reports, snap := run()
	require.NotEmpty(t, snap.Alliances)
	for range 3 {
		again, againSnap := run()
		assert.Equal(t, reports, again)
		assert.Equal(t, snap.Alliances, againSnap.Alliances)
		assert.Equal(t, snap.Intel, againSnap.Intel)
		assert.Equal(t, snap.Rejections, againSnap.Rejections)
		assert.Equal(t, snap.Events, againSnap.Events)
		assert.Equal(t, snap.RNGState, againSnap.RNGState)
	}
}

func TestNewSanitizesConfig(t *testing.T) {
	cfg := config.Config{}
	cfg.Intel.CategoryWeights = map[string]float64{"coup": -1}
	s := New(cfg, twoKingdoms(), nil, Options{Logger: quietLogger(), Source: entropy.Always(0.999)})

	assert.Equal(t, config.Default().Betrayal.PeriodDays, s.cfg.Betrayal.PeriodDays)
	assert.Equal(t, config.Default().Dynamics.MaxDailyDelta, s.cfg.Dynamics.MaxDailyDelta)
	assert.Zero(t, cfg.Betrayal.PeriodDays)
	assert.Contains(t, cfg.Intel.CategoryWeights, "coup")
	assert.NotContains(t, s.cfg.Intel.CategoryWeights, "coup")

	// A week-old alliance reaches the periodic betrayal check without dividing by zero.
	al := seedAlliance(t, s, 1, 2, 0.5, 0.9, 0.9)
	al.CreatedDay = -7
	var err error
	assert.NotPanics(t, func() { err = s.processPeriodicBetrayal(al) })
	assert.NoError(t, err)
}

func TestDailyPassProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		days := rapid.IntRange(20, 60).Draw(rt, "days")

		gen := world.SmallTestConfig()
		gen.Seed = int64(seed%1000) + 1
		w := world.Generate(gen)

		cfg := testConfig()
		// Busier than the defaults so short runs exercise every stage.
		cfg.Formation.BaseChance = 0.2
		cfg.Formation.MaxChance = 0.6
		cfg.Operations.LaunchChance = 0.6
		cfg.Operations.MinInterval = 3

		s := New(cfg, w, social.NewStore(), Options{
			Logger:  quietLogger(),
			Metrics: metrics.New(prometheus.NewRegistry()),
			Source:  entropy.NewSeeded(seed),
		})
		maxDelta := cfg.Dynamics.MaxDailyDelta

		type scalars struct{ strength, secrecy, trust float64 }
		cooldowns := make(map[uuid.UUID][social.NumOperations]int)
		reliability := make(map[uuid.UUID]float64)

		for d := 0; d < days; d++ {
			before := make(map[uuid.UUID]scalars)
			for _, a := range s.store.Active() {
				before[a.ID] = scalars{a.Strength, a.Secrecy, a.Trust}
			}

			r := s.AdvanceDay()

			for _, a := range s.store.All() {
				for _, v := range []float64{a.Strength, a.Secrecy, a.Trust} {
					if v < 0 || v > 1 || math.IsNaN(v) {
						rt.Fatalf("alliance %s scalar %v out of range on day %d", a.ID, v, r.Day)
					}
				}
				if b, ok := before[a.ID]; ok {
					for i, pair := range [][2]float64{{b.strength, a.Strength}, {b.secrecy, a.Secrecy}, {b.trust, a.Trust}} {
						if math.Abs(pair[1]-pair[0]) > maxDelta+1e-9 {
							rt.Fatalf("alliance %s scalar %d moved %v on day %d", a.ID, i, pair[1]-pair[0], r.Day)
						}
					}
				}

				prev, seen := cooldowns[a.ID]
				for k, end := range a.OpCooldownEnd {
					if !seen || end == prev[k] {
						continue
					}
					if r.Day < prev[k] {
						rt.Fatalf("operation %d of %s ran on day %d, cooldown ended day %d", k, a.ID, r.Day, prev[k])
					}
				}
				cooldowns[a.ID] = a.OpCooldownEnd
			}

			for _, rec := range s.store.Intel() {
				if old, ok := reliability[rec.ID]; ok && rec.Reliability > old+1e-12 {
					rt.Fatalf("intel %s reliability rose from %v to %v", rec.ID, old, rec.Reliability)
				}
				reliability[rec.ID] = rec.Reliability
			}
		}
	})
}

func TestRecentEventsReturnsTail(t *testing.T) {
	s := newSim(twoKingdoms(), entropy.Always(0.5))
	for i := 0; i < 5; i++ {
		s.addEvent("formation", "event %d", i)
	}
	got := s.RecentEvents(2)
	require.Len(t, got, 2)
	assert.Equal(t, "event 3", got[0].Description)
	assert.Equal(t, "event 4", got[1].Description)
	assert.Len(t, s.RecentEvents(0), 5)
}

func TestSnapshotCapturesSeededState(t *testing.T) {
	s := newSim(twoKingdoms(), entropy.NewSeeded(3))
	seedAlliance(t, s, 1, 2, 0.3, 0.8, 0.5)
	s.AdvanceDay()

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Day)
	assert.Len(t, snap.Alliances, 1)
	assert.NotEmpty(t, snap.RNGState)

	// The snapshot is a copy.
	snap.Alliances[0].Trust = 0
	a, err := s.FindAlliance(1, 2)
	require.NoError(t, err)
	assert.NotZero(t, a.Trust)
}

func TestActiveAlliancesFilters(t *testing.T) {
	w := twoKingdoms()
	addFaction(w, 3, 1, 20000, 500)
	s := newSim(w, entropy.Always(0.5))
	a := seedAlliance(t, s, 1, 2, 0.3, 0.8, 0.5)
	a.GroupID = 4
	seedAlliance(t, s, 2, 3, 0.3, 0.8, 0.5)
	gone := seedAlliance(t, s, 1, 3, 0.3, 0.8, 0.5)
	gone.Dissolve(0, "test")

	assert.Len(t, s.ActiveAlliances(Filter{}), 2)
	assert.Len(t, s.ActiveAlliances(Filter{Faction: 1}), 1)
	assert.Len(t, s.ActiveAlliances(Filter{Faction: 2}), 2)
	byGroup := s.ActiveAlliances(Filter{Group: 4})
	require.Len(t, byGroup, 1)
	assert.Equal(t, a.ID, byGroup[0].ID)
}
