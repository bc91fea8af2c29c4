package steward

// Health levels, most urgent first.
const (
	LevelDormant    = "DORMANT"    // too few alliances for anything to happen
	LevelEntrenched = "ENTRENCHED" // one coalition has grown too tight
	LevelQuiet      = "QUIET"      // nothing dramatic in the recent window
	LevelHealthy    = "HEALTHY"
)

// Thresholds tune Triage.
type Thresholds struct {
	// MinActivePerFaction is the active-alliance floor as a share of factions.
	MinActivePerFaction float64
	// EntrenchedCohesion and EntrenchedMembers mark a coalition as too tight.
	EntrenchedCohesion float64
	EntrenchedMembers  int
	// QuietDays is how far back Triage looks for drama.
	QuietDays int
}

// DefaultThresholds returns the values the steward command uses.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinActivePerFaction: 0.1,
		EntrenchedCohesion:  0.8,
		EntrenchedMembers:   4,
		QuietDays:           30,
	}
}

// dramatic event categories reset the quiet clock.
var dramatic = map[string]bool{
	"leak":     true,
	"betrayal": true,
	"reveal":   true,
}

// Health holds derived diagnostic signals computed from a Snapshot.
type Health struct {
	Active       int
	Factions     int
	TopGroup     uint64
	TopCohesion  float64
	TopMembers   int
	RecentDrama  int // dramatic events within QuietDays
	RecentFormed int
	Level        string
}

// Triage computes Health from the snapshot's data.
func Triage(snap *Snapshot, th Thresholds) *Health {
	h := &Health{
		Active:   snap.Status.Active,
		Factions: len(snap.Factions),
	}

	for _, g := range snap.Groups {
		if g.Cohesion > h.TopCohesion {
			h.TopGroup, h.TopCohesion, h.TopMembers = g.Group, g.Cohesion, g.Members
		}
	}

	since := snap.Status.Day - th.QuietDays
	for _, e := range snap.Events {
		if e.Day <= since {
			continue
		}
		if dramatic[e.Category] {
			h.RecentDrama++
		}
		if e.Category == "formation" {
			h.RecentFormed++
		}
	}

	h.Level = LevelHealthy
	switch {
	case h.Factions >= 2 && float64(h.Active) < th.MinActivePerFaction*float64(h.Factions):
		h.Level = LevelDormant
	case h.TopCohesion >= th.EntrenchedCohesion && h.TopMembers >= th.EntrenchedMembers:
		h.Level = LevelEntrenched
	case snap.Status.Day > th.QuietDays && h.RecentDrama == 0 && h.Active > 0:
		h.Level = LevelQuiet
	}
	return h
}
