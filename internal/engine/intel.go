package engine

import (
	"bytes"
	"cmp"
	"slices"

	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// RankedIntel is an intel record with its surfacing score.
type RankedIntel struct {
	Intel *social.Intel `json:"intel"`
	Score float64       `json:"score"`
}

// IntelFor returns the records observer may see, best first. A faction sees
// records about its own alliances and its coalitions, records it gathered,
// broadcasts in its kingdom, and anything reliable and severe enough to be
// common knowledge. limit <= 0 returns everything visible.
func (s *Simulation) IntelFor(observer world.FactionID, limit int) []RankedIntel {
	if observer == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var kingdom world.KingdomID
	if f, err := s.world.Faction(observer); err == nil {
		kingdom = f.Kingdom
	}
	groups := make(map[uint64]bool)
	for _, a := range s.store.ActiveByFaction(observer) {
		if a.GroupID != 0 {
			groups[a.GroupID] = true
		}
	}

	ic := s.cfg.Intel
	var out []RankedIntel
	for _, r := range s.store.Intel() {
		if !s.visible(r, observer, kingdom, groups) {
			continue
		}
		out = append(out, RankedIntel{
			Intel: r.Clone(),
			Score: r.Score(s.weights, ic.RetentionDays, ic.RecencyFloor),
		})
	}

	slices.SortStableFunc(out, func(x, y RankedIntel) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(y.Intel.CreatedDay, x.Intel.CreatedDay); c != 0 {
			return c
		}
		return bytes.Compare(x.Intel.ID[:], y.Intel.ID[:])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Simulation) visible(r *social.Intel, observer world.FactionID, kingdom world.KingdomID, groups map[uint64]bool) bool {
	if r.About(observer) || r.Observer == observer {
		return true
	}
	if len(groups) > 0 {
		if a, err := s.store.Get(r.AllianceID); err == nil && groups[a.GroupID] {
			return true
		}
	}
	if r.Broadcast && kingdom != 0 && slices.Contains(r.Kingdoms, kingdom) {
		return true
	}
	ic := s.cfg.Intel
	return r.Reliability >= ic.VisibleReliability && r.Severity >= ic.VisibleSeverity
}
