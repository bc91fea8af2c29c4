// Secret alliances between factions.
// An alliance is a bilateral pact with strength, secrecy and trust in [0, 1].
package social

import (
	"github.com/google/uuid"

	"github.com/talgya/shadow-pacts/internal/world"
)

// OperationKind enumerates the covert operations an alliance can run.
type OperationKind uint8

const (
	OpCovertAid OperationKind = iota
	OpSpyProbe
	OpRecruitmentFeelers
	OpSabotageRaid
	OpCounterIntelSweep

	NumOperations = 5
)

var operationNames = [NumOperations]string{
	"covert_aid", "spy_probe", "recruitment_feelers", "sabotage_raid", "counter_intel_sweep",
}

func (k OperationKind) String() string {
	if int(k) < NumOperations {
		return operationNames[k]
	}
	return "unknown"
}

// ParseOperation resolves an operation name.
func ParseOperation(name string) (OperationKind, bool) {
	for i, n := range operationNames {
		if n == name {
			return OperationKind(i), true
		}
	}
	return 0, false
}

// AllOperations lists every kind in index order.
func AllOperations() []OperationKind {
	return []OperationKind{OpCovertAid, OpSpyProbe, OpRecruitmentFeelers, OpSabotageRaid, OpCounterIntelSweep}
}

// Transfer is one entry in an alliance's trade history.
type Transfer struct {
	Day        int     `json:"day"`
	Amount     float64 `json:"amount"`
	Percentile float64 `json:"percentile"`
	High       bool    `json:"high"`
}

// Alliance is a secret bilateral relationship between two factions.
type Alliance struct {
	ID        uuid.UUID       `json:"id"`
	Initiator world.FactionID `json:"initiator"`
	Target    world.FactionID `json:"target"`

	Strength float64 `json:"strength"`
	Secrecy  float64 `json:"secrecy"`
	Trust    float64 `json:"trust"`

	TradePact        bool `json:"trade_pact"`
	MilitaryPact     bool `json:"military_pact"`
	IsActive         bool `json:"is_active"`
	BetrayalRevealed bool `json:"betrayal_revealed"`
	CoupAttempted    bool `json:"coup_attempted"`
	Revealed         bool `json:"revealed"`
	CrossWar         bool `json:"cross_war"` // members' kingdoms were at war at formation

	// Coalition linkage. Group* fields are written only by the aggregator.
	GroupID       uint64  `json:"group_id"`
	GroupStrength float64 `json:"group_strength"`
	GroupSecrecy  float64 `json:"group_secrecy"`
	GroupMembers  int     `json:"group_members"`

	CreatedDay         int                `json:"created_day"`
	LastInteractionDay int                `json:"last_interaction_day"`
	CooldownDays       int                `json:"cooldown_days"`
	LastOperationDay   int                `json:"last_operation_day"`
	OpCooldownEnd      [NumOperations]int `json:"op_cooldown_end"`

	SuccessfulOperations  int     `json:"successful_operations"`
	LeakAttempts          int     `json:"leak_attempts"`
	DaysWithoutLeak       int     `json:"days_without_leak"`
	BetrayalEscalation    float64 `json:"betrayal_escalation"`
	DefectionCooldownDays int     `json:"defection_cooldown_days"`
	SuspicionLevel        float64 `json:"suspicion_level"`
	CounterIntelUntilDay  int     `json:"counter_intel_until_day"`

	Transfers          []Transfer `json:"transfers,omitempty"`
	CumulativeTransfer float64    `json:"cumulative_transfer"`

	DissolvedDay   int    `json:"dissolved_day,omitempty"`
	DissolveReason string `json:"dissolve_reason,omitempty"`

	base baseline
}

// baseline is the start-of-day snapshot every scalar write is clamped against.
type baseline struct {
	set      bool
	day      int
	maxDelta float64
	strength float64
	secrecy  float64
	trust    float64
}

// Members returns both faction IDs.
func (a *Alliance) Members() [2]world.FactionID {
	return [2]world.FactionID{a.Initiator, a.Target}
}

// Involves reports whether f is one of the two parties.
func (a *Alliance) Involves(f world.FactionID) bool {
	return a.Initiator == f || a.Target == f
}

// Other returns the party that is not f.
func (a *Alliance) Other(f world.FactionID) world.FactionID {
	if a.Initiator == f {
		return a.Target
	}
	return a.Initiator
}

// Age returns the alliance age in days.
func (a *Alliance) Age(day int) int {
	return max(0, day-a.CreatedDay)
}

// BeginDay records today's baseline. From now until the next BeginDay no
// scalar may move more than maxDelta away from it.
func (a *Alliance) BeginDay(day int, maxDelta float64) {
	a.base = baseline{
		set:      true,
		day:      day,
		maxDelta: maxDelta,
		strength: a.Strength,
		secrecy:  a.Secrecy,
		trust:    a.Trust,
	}
}

// AdjustStrength adds delta to strength within the daily band and [0, 1].
// It returns the change actually applied.
func (a *Alliance) AdjustStrength(delta float64) float64 {
	return a.adjust(&a.Strength, a.base.strength, delta)
}

// AdjustSecrecy adds delta to secrecy within the daily band and [0, 1].
func (a *Alliance) AdjustSecrecy(delta float64) float64 {
	return a.adjust(&a.Secrecy, a.base.secrecy, delta)
}

// AdjustTrust adds delta to trust within the daily band and [0, 1].
func (a *Alliance) AdjustTrust(delta float64) float64 {
	return a.adjust(&a.Trust, a.base.trust, delta)
}

func (a *Alliance) adjust(field *float64, start, delta float64) float64 {
	before := *field
	next := Clamp01(before + delta)
	if a.base.set {
		next = max(next, start-a.base.maxDelta)
		next = min(next, start+a.base.maxDelta)
		next = Clamp01(next)
	}
	*field = next
	return next - before
}

// Clone returns a deep copy safe to hand outside the store.
func (a *Alliance) Clone() *Alliance {
	c := *a
	c.Transfers = append([]Transfer(nil), a.Transfers...)
	return &c
}

// Normalize clamps every scalar into range. Used after loading.
func (a *Alliance) Normalize() {
	a.Strength = Clamp01(a.Strength)
	a.Secrecy = Clamp01(a.Secrecy)
	a.Trust = Clamp01(a.Trust)
	a.SuspicionLevel = Clamp01(a.SuspicionLevel)
	a.GroupStrength = Clamp01(a.GroupStrength)
	a.GroupSecrecy = Clamp01(a.GroupSecrecy)
	if a.BetrayalEscalation < 0 {
		a.BetrayalEscalation = 0
	}
	if a.DefectionCooldownDays < 0 {
		a.DefectionCooldownDays = 0
	}
	if a.CooldownDays < 0 {
		a.CooldownDays = 0
	}
}

// Dissolve deactivates the alliance. It stays in the store for history.
func (a *Alliance) Dissolve(day int, reason string) {
	if !a.IsActive {
		return
	}
	a.IsActive = false
	a.DissolvedDay = day
	a.DissolveReason = reason
}

// OnCooldown reports whether an operation kind is still cooling down.
func (a *Alliance) OnCooldown(k OperationKind, day int) bool {
	return day < a.OpCooldownEnd[k]
}

// Eligible reports whether the alliance takes part in daily processing.
func (a *Alliance) Eligible() bool {
	return a.IsActive && a.ID != uuid.Nil && a.Initiator != 0 && a.Target != 0 && a.Initiator != a.Target
}

// Clamp01 limits v to [0, 1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
