package engine

import (
	"cmp"
	"slices"

	"github.com/talgya/shadow-pacts/internal/config"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// GroupMetrics is the aggregate state of one coalition.
type GroupMetrics struct {
	Group       uint64  `json:"group"`
	Alliances   int     `json:"alliances"`
	Members     int     `json:"members"`
	AvgStrength float64 `json:"avg_strength"`
	AvgSecrecy  float64 `json:"avg_secrecy"`
	Cohesion    float64 `json:"cohesion"`
}

// Cohesion weighs average strength and secrecy into one value.
func Cohesion(cfg config.CoalitionConfig, avgStrength, avgSecrecy float64) float64 {
	return social.Clamp01(cfg.StrengthWeight*avgStrength + cfg.SecrecyWeight*avgSecrecy)
}

// aggregateCoalitions recomputes per-group metrics and caches them on
// every member alliance. Ungrouped alliances have their cache cleared.
func (s *Simulation) aggregateCoalitions() {
	type acc struct {
		strength, secrecy float64
		alliances         []*social.Alliance
		members           map[world.FactionID]struct{}
	}
	byGroup := make(map[uint64]*acc)

	for _, a := range s.store.Active() {
		if a.GroupID == 0 {
			a.GroupStrength, a.GroupSecrecy, a.GroupMembers = 0, 0, 0
			continue
		}
		g := byGroup[a.GroupID]
		if g == nil {
			g = &acc{members: make(map[world.FactionID]struct{})}
			byGroup[a.GroupID] = g
		}
		g.strength += a.Strength
		g.secrecy += a.Secrecy
		g.alliances = append(g.alliances, a)
		g.members[a.Initiator] = struct{}{}
		g.members[a.Target] = struct{}{}
	}

	s.groups = make(map[uint64]GroupMetrics, len(byGroup))
	for id, g := range byGroup {
		n := float64(len(g.alliances))
		m := GroupMetrics{
			Group:       id,
			Alliances:   len(g.alliances),
			Members:     len(g.members),
			AvgStrength: g.strength / n,
			AvgSecrecy:  g.secrecy / n,
		}
		m.Cohesion = Cohesion(s.cfg.Coalition, m.AvgStrength, m.AvgSecrecy)
		s.groups[id] = m
		for _, a := range g.alliances {
			a.GroupStrength = m.AvgStrength
			a.GroupSecrecy = m.AvgSecrecy
			a.GroupMembers = m.Members
		}
	}
}

// cohesion returns the cached cohesion for an alliance's group.
func (s *Simulation) cohesion(a *social.Alliance) (float64, bool) {
	if a.GroupID == 0 {
		return 0, false
	}
	return Cohesion(s.cfg.Coalition, a.GroupStrength, a.GroupSecrecy), true
}

// memberCount is the number of distinct factions sharing the alliance's secret.
func memberCount(a *social.Alliance) int {
	return max(2, a.GroupMembers)
}

func (s *Simulation) sortedGroups() []GroupMetrics {
	out := make([]GroupMetrics, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	slices.SortFunc(out, func(x, y GroupMetrics) int { return cmp.Compare(x.Group, y.Group) })
	return out
}
