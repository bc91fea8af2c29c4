// Factions, kingdoms and leaders as the simulation core sees them.
// The core never computes any of this; it only reads it through Model.
package world

import (
	"errors"
	"fmt"
)

// FactionID is a unique identifier for a faction (a clan-level political entity).
type FactionID uint64

// KingdomID identifies a top-level faction. Zero means independent.
type KingdomID uint64

// AgentID identifies a character, usually a faction leader.
type AgentID uint64

var (
	// ErrUnknownFaction is returned when a faction ID no longer resolves.
	ErrUnknownFaction = errors.New("unknown faction")
	// ErrUnknownAgent is returned when an agent ID no longer resolves.
	ErrUnknownAgent = errors.New("unknown agent")
)

// Faction is a read-only snapshot of one faction.
type Faction struct {
	ID               FactionID `json:"id"`
	Name             string    `json:"name"`
	Kingdom          KingdomID `json:"kingdom"`
	Wealth           float64   `json:"wealth"`
	MilitaryStrength float64   `json:"military_strength"`
	LeaderID         AgentID   `json:"leader_id"`
	Eliminated       bool      `json:"eliminated"`
}

// Traits are leader personality levels, each in [-2, 2].
type Traits struct {
	Honor       int `json:"honor"`
	Calculating int `json:"calculating"`
	Generosity  int `json:"generosity"`
	Mercy       int `json:"mercy"`
}

// Skills are leader skill levels, roughly 0 to 300.
type Skills struct {
	Leadership int `json:"leadership"`
	Tactics    int `json:"tactics"`
	Roguery    int `json:"roguery"`
}

// Skill selects one of the leader skills.
type Skill uint8

const (
	SkillLeadership Skill = iota
	SkillTactics
	SkillRoguery
)

// Level returns the value of the selected skill.
func (s Skills) Level(k Skill) int {
	switch k {
	case SkillTactics:
		return s.Tactics
	case SkillRoguery:
		return s.Roguery
	default:
		return s.Leadership
	}
}

// Leader is a read-only snapshot of a faction leader.
type Leader struct {
	ID     AgentID `json:"id"`
	Name   string  `json:"name"`
	Traits Traits  `json:"traits"`
	Skills Skills  `json:"skills"`
}

// Model is the read-only view of the world consumed by the core.
type Model interface {
	// Faction returns the faction snapshot or ErrUnknownFaction.
	Faction(id FactionID) (Faction, error)
	// FactionIDs lists every known faction in ascending ID order.
	FactionIDs() []FactionID
	// Leader returns the agent snapshot or ErrUnknownAgent.
	Leader(id AgentID) (Leader, error)
	// AtWar reports whether two kingdoms are at open war.
	AtWar(a, b KingdomID) bool
	// Wars lists the kingdoms a kingdom is at war with.
	Wars(k KingdomID) []KingdomID
	// Relation returns the relationship value between two agents (-100 to +100).
	Relation(a, b AgentID) float64
	// KingdomFactions lists the factions that belong to a kingdom.
	KingdomFactions(k KingdomID) []FactionID
}

// Mutator applies effects the core asks for. The host owns the world, so
// effects are queued during a day and applied after the pass completes.
type Mutator interface {
	AdjustWealth(id FactionID, delta float64) error
	AdjustRelation(a, b AgentID, delta float64) error
}

// EffectKind distinguishes queued world effects.
type EffectKind uint8

const (
	EffectWealth EffectKind = iota
	EffectRelation
)

// Effect is a requested change to the world.
type Effect struct {
	Kind   EffectKind `json:"kind"`
	Day    int        `json:"day"`
	From   FactionID  `json:"from"`
	To     FactionID  `json:"to"`
	Agents [2]AgentID `json:"agents"`
	Amount float64    `json:"amount"`
	Reason string     `json:"reason"`
}

// Apply performs the effect against a mutator.
func (e Effect) Apply(m Mutator) error {
	switch e.Kind {
	case EffectWealth:
		if err := m.AdjustWealth(e.From, -e.Amount); err != nil {
			return fmt.Errorf("debit %d: %w", e.From, err)
		}
		if err := m.AdjustWealth(e.To, e.Amount); err != nil {
			return fmt.Errorf("credit %d: %w", e.To, err)
		}
	case EffectRelation:
		if err := m.AdjustRelation(e.Agents[0], e.Agents[1], e.Amount); err != nil {
			return fmt.Errorf("relation %d/%d: %w", e.Agents[0], e.Agents[1], err)
		}
	}
	return nil
}

// SameKingdom reports whether two factions share a non-zero kingdom.
func SameKingdom(a, b Faction) bool {
	return a.Kingdom != 0 && a.Kingdom == b.Kingdom
}

// Hostile reports whether two factions belong to kingdoms at war.
func Hostile(m Model, a, b Faction) bool {
	if a.Kingdom == 0 || b.Kingdom == 0 || a.Kingdom == b.Kingdom {
		return false
	}
	return m.AtWar(a.Kingdom, b.Kingdom)
}
