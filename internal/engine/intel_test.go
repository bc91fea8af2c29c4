package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// intelWorld: factions 1..6 where 1 and 3 and 6 share kingdom 1.
// Alliances 1-2 and 3-4 share coalition group 7; 5 and 6 are outsiders.
func intelWorld(t *testing.T) (*Simulation, map[string]uuid.UUID) {
	t.Helper()
	w := world.NewStatic()
	addFaction(w, 1, 1, 20000, 500)
	addFaction(w, 2, 2, 20000, 500)
	addFaction(w, 3, 1, 20000, 500)
	addFaction(w, 4, 4, 20000, 500)
	addFaction(w, 5, 5, 20000, 500)
	addFaction(w, 6, 1, 20000, 500)
	s := newSim(w, entropy.Always(0.5))

	a12 := seedAlliance(t, s, 1, 2, 0.4, 0.8, 0.5)
	a12.GroupID = 7
	a34 := seedAlliance(t, s, 3, 4, 0.4, 0.8, 0.5)
	a34.GroupID = 7

	ids := make(map[string]uuid.UUID)
	add := func(name string, r *social.Intel) {
		r.AllianceID = a12.ID
		r.Pair = a12.Members()
		s.store.AddIntel(r)
		ids[name] = r.ID
	}
	add("quiet", &social.Intel{Category: social.CategorySecretMeeting, Reliability: 0.3, Severity: 0.2})
	add("loud", &social.Intel{Category: social.CategoryMilitaryCoordination, Reliability: 0.9, Severity: 0.8})
	add("broadcast", &social.Intel{Category: social.CategoryGeneralRumor, Reliability: 0.3, Severity: 0.3, Broadcast: true, Kingdoms: []world.KingdomID{1}})

	probe := &social.Intel{Pair: [2]world.FactionID{2, 0}, Observer: 5, Category: social.CategoryMilitary, Reliability: 0.5, Severity: 0.4}
	s.store.AddIntel(probe)
	ids["probe"] = probe.ID
	return s, ids
}

func visibleIDs(ranked []RankedIntel) []uuid.UUID {
	out := make([]uuid.UUID, len(ranked))
	for i, r := range ranked {
		out[i] = r.Intel.ID
	}
	return out
}

func TestIntelVisibility(t *testing.T) {
	s, ids := intelWorld(t)

	// Members see everything about their alliance plus the probe about 2.
	assert.ElementsMatch(t, []uuid.UUID{ids["quiet"], ids["loud"], ids["broadcast"]}, visibleIDs(s.IntelFor(1, 0)))
	assert.ElementsMatch(t, []uuid.UUID{ids["quiet"], ids["loud"], ids["broadcast"], ids["probe"]}, visibleIDs(s.IntelFor(2, 0)))

	// Coalition partners see the group's records.
	assert.ElementsMatch(t, []uuid.UUID{ids["quiet"], ids["loud"], ids["broadcast"]}, visibleIDs(s.IntelFor(4, 0)))

	// Kingdom 1 hears the broadcast; common knowledge reaches everyone.
	assert.ElementsMatch(t, []uuid.UUID{ids["loud"], ids["broadcast"]}, visibleIDs(s.IntelFor(6, 0)))

	// The gatherer keeps its own report.
	assert.ElementsMatch(t, []uuid.UUID{ids["loud"], ids["probe"]}, visibleIDs(s.IntelFor(5, 0)))

	assert.Nil(t, s.IntelFor(0, 0))
}

func TestIntelRankingAndLimit(t *testing.T) {
	s, ids := intelWorld(t)

	ranked := s.IntelFor(1, 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, ids["loud"], ranked[0].Intel.ID)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}

	top := s.IntelFor(1, 1)
	require.Len(t, top, 1)
	assert.Equal(t, ids["loud"], top[0].Intel.ID)

	// Results are copies.
	top[0].Intel.Reliability = 0
	assert.Equal(t, ids["loud"], s.IntelFor(1, 1)[0].Intel.ID)
}

func TestIntelRankingPrefersNewerOnTies(t *testing.T) {
	s := newSim(twoKingdoms(), entropy.Always(0.5))
	a := seedAlliance(t, s, 1, 2, 0.4, 0.8, 0.5)
	old := &social.Intel{AllianceID: a.ID, Pair: a.Members(), Category: social.CategoryCoup, Reliability: 0.5, Severity: 0.5, CreatedDay: 3}
	fresh := &social.Intel{AllianceID: a.ID, Pair: a.Members(), Category: social.CategoryCoup, Reliability: 0.5, Severity: 0.5, CreatedDay: 9}
	s.store.AddIntel(old)
	s.store.AddIntel(fresh)

	ranked := s.IntelFor(1, 0)
	require.Len(t, ranked, 2)
	assert.Equal(t, fresh.ID, ranked[0].Intel.ID)
}

func TestMaintainPurgesWeakIntel(t *testing.T) {
	s := newSim(twoKingdoms(), entropy.Always(0.5))
	a := seedAlliance(t, s, 1, 2, 0.4, 0.8, 0.5)
	s.store.AddIntel(&social.Intel{AllianceID: a.ID, Pair: a.Members(), Reliability: 0.051, Severity: 0.5})
	s.store.AddIntel(&social.Intel{AllianceID: a.ID, Pair: a.Members(), Reliability: 0.9, Severity: 0.5})
	s.store.SetRejection(1, 2, 1)

	s.day = 1
	s.maintain()

	require.Len(t, s.store.Intel(), 1)
	assert.Equal(t, 1, s.report.IntelPurged)
	assert.Equal(t, 1, s.store.Intel()[0].DaysOld)
	assert.Empty(t, s.store.Rejections())
}
