package engine

import (
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// pressure derives the political pressure on a faction pair from the world:
// open wars of either kingdom, hostility between the two leaders, and
// poverty of the poorer side.
func (s *Simulation) pressure(fa, fb world.Faction) float64 {
	pc := s.cfg.Pressure
	wars := 0
	if fa.Kingdom != 0 {
		wars += len(s.world.Wars(fa.Kingdom))
	}
	if fb.Kingdom != 0 && fb.Kingdom != fa.Kingdom {
		wars += len(s.world.Wars(fb.Kingdom))
	}
	p := pc.PerWar * float64(wars)

	if fa.LeaderID != 0 && fb.LeaderID != 0 {
		if rel := s.world.Relation(fa.LeaderID, fb.LeaderID); rel < 0 {
			p += pc.HostileRelation * -rel / 100
		}
	}
	if min(s.wealth(fa), s.wealth(fb)) < pc.PovertyWealth {
		p += pc.Poverty
	}
	return social.Clamp01(p)
}
