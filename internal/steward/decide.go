package steward

import (
	"cmp"
	"fmt"
	"slices"
)

// Decision is the steward's recommended action.
type Decision struct {
	Action       string        `json:"action"` // "none" or an intervention type
	Rationale    string        `json:"rationale"`
	Intervention *Intervention `json:"intervention"`
}

// Intervention is the payload for POST /api/v1/intervention.
type Intervention struct {
	Type      string `json:"type"`
	Alliance  string `json:"alliance,omitempty"`
	Operation string `json:"operation,omitempty"`
	A         uint64 `json:"a,omitempty"`
	B         uint64 `json:"b,omitempty"`
	TradePact bool   `json:"trade_pact,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

// Decide maps a triaged snapshot to at most one intervention. Alliances
// touched in the remembered cycles are skipped so the steward does not
// hammer one target.
func Decide(snap *Snapshot, h *Health, mem *CycleMemory) *Decision {
	none := func(why string) *Decision {
		return &Decision{Action: "none", Rationale: why}
	}

	switch h.Level {
	case LevelDormant:
		a, b, ok := strangers(snap)
		if !ok {
			return none("world is dormant but every eligible pair is already allied")
		}
		return &Decision{
			Action:    "form",
			Rationale: fmt.Sprintf("only %d active alliances among %d factions", h.Active, h.Factions),
			Intervention: &Intervention{
				Type: "form", A: a, B: b, TradePact: true, Origin: "steward",
			},
		}

	case LevelEntrenched:
		// Expose the most secret member of the tightest coalition.
		var members []Alliance
		for _, al := range snap.Alliances {
			if al.GroupID == h.TopGroup && !mem.Touched(al.ID) {
				members = append(members, al)
			}
		}
		if len(members) == 0 {
			return none("entrenched coalition already pressed recently")
		}
		target := slices.MaxFunc(members, func(x, y Alliance) int { return cmp.Compare(x.Secrecy, y.Secrecy) })
		return &Decision{
			Action:       "leak",
			Rationale:    fmt.Sprintf("coalition %d holds %d members at cohesion %.2f", h.TopGroup, h.TopMembers, h.TopCohesion),
			Intervention: &Intervention{Type: "leak", Alliance: target.ID},
		}

	case LevelQuiet:
		// Stir the strongest alliance into probing its rivals.
		var candidates []Alliance
		for _, al := range snap.Alliances {
			if !mem.Touched(al.ID) {
				candidates = append(candidates, al)
			}
		}
		if len(candidates) == 0 {
			return none("quiet, but every alliance was touched recently")
		}
		target := slices.MaxFunc(candidates, func(x, y Alliance) int { return cmp.Compare(x.Strength, y.Strength) })
		return &Decision{
			Action:       "operation",
			Rationale:    "no leaks, betrayals or reveals in the recent window",
			Intervention: &Intervention{Type: "operation", Alliance: target.ID, Operation: "spy_probe"},
		}
	}
	return none("world is healthy")
}

// strangers picks the first pair of factions from different kingdoms that
// share no active alliance, scanning in ID order.
func strangers(snap *Snapshot) (uint64, uint64, bool) {
	allied := make(map[[2]uint64]bool, len(snap.Alliances))
	for _, al := range snap.Alliances {
		allied[pairKey(al.Initiator, al.Target)] = true
	}
	factions := slices.SortedFunc(slices.Values(snap.Factions), func(x, y Faction) int { return cmp.Compare(x.ID, y.ID) })
	for i, fa := range factions {
		for _, fb := range factions[i+1:] {
			if fa.Kingdom == fb.Kingdom && fa.Kingdom != 0 {
				continue
			}
			if !allied[pairKey(fa.ID, fb.ID)] {
				return fa.ID, fb.ID, true
			}
		}
	}
	return 0, 0, false
}

func pairKey(a, b uint64) [2]uint64 {
	if a > b {
		a, b = b, a
	}
	return [2]uint64{a, b}
}
