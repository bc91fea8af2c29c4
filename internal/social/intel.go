// Intelligence records: rumors and evidence about alliances.
package social

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/shadow-pacts/internal/world"
)

// Category classifies an intelligence record.
type Category uint8

const (
	CategoryGeneralRumor Category = iota
	CategoryTradeEvidence
	CategoryMilitaryCoordination
	CategorySecretMeeting
	CategoryBetrayalPlot
	CategoryFinancial
	CategoryRecruitment
	CategoryCoup
	CategoryTrade
	CategoryMilitary

	numCategories = 10
)

var categoryNames = [numCategories]string{
	"general_rumor", "trade_evidence", "military_coordination", "secret_meeting",
	"betrayal_plot", "financial", "recruitment", "coup", "trade", "military",
}

// defaultCategoryWeights ranks coup and betrayal material highest.
var defaultCategoryWeights = [numCategories]float64{
	0.5, 0.7, 0.9, 0.8, 1.0, 0.7, 0.6, 1.0, 0.6, 0.85,
}

func (c Category) String() string {
	if int(c) < numCategories {
		return categoryNames[c]
	}
	return "unknown"
}

// ParseCategory resolves a category name.
func ParseCategory(name string) (Category, bool) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	if int(c) >= numCategories {
		return nil, fmt.Errorf("category %d out of range", c)
	}
	return []byte(categoryNames[c]), nil
}

// UnmarshalText decodes a category name.
func (c *Category) UnmarshalText(b []byte) error {
	v, ok := ParseCategory(string(b))
	if !ok {
		return fmt.Errorf("unknown category %q", b)
	}
	*c = v
	return nil
}

// CategoryWeights maps each category to its ranking weight.
type CategoryWeights [numCategories]float64

// NewCategoryWeights starts from the built-in table and applies overrides
// keyed by category name. Unknown names are returned so callers can log them.
func NewCategoryWeights(overrides map[string]float64) (CategoryWeights, []string) {
	w := CategoryWeights(defaultCategoryWeights)
	var unknown []string
	for name, v := range overrides {
		c, ok := ParseCategory(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		w[c] = v
	}
	return w, unknown
}

// Of returns the weight for a category.
func (w CategoryWeights) Of(c Category) float64 {
	if int(c) < numCategories {
		return w[c]
	}
	return 0
}

// Source records which subsystem produced a record.
type Source string

const (
	SourceLeak         Source = "leak"
	SourceSpyProbe     Source = "spy_probe"
	SourceSabotage     Source = "sabotage"
	SourceCounterIntel Source = "counter_intel"
	SourceReveal       Source = "reveal"
	SourceBetrayal     Source = "betrayal"
	SourceTrade        Source = "trade"
	SourceRecruitment  Source = "recruitment"
)

// Intel is one piece of rumor or evidence about an alliance.
type Intel struct {
	ID         uuid.UUID          `json:"id"`
	AllianceID uuid.UUID          `json:"alliance_id"`
	Pair       [2]world.FactionID `json:"pair"`
	Informer   world.AgentID      `json:"informer"`
	Observer   world.FactionID    `json:"observer,omitempty"` // faction that gathered it, if any
	Category   Category           `json:"category"`
	Source     Source             `json:"source"`

	Reliability float64 `json:"reliability"`
	Severity    float64 `json:"severity"`
	DaysOld     int     `json:"days_old"`
	CreatedDay  int     `json:"created_day"`
	IsConfirmed bool    `json:"is_confirmed"`

	// Broadcast records are visible to every faction of the listed kingdoms.
	Broadcast bool              `json:"broadcast"`
	Kingdoms  []world.KingdomID `json:"kingdoms,omitempty"`
}

// About reports whether the record concerns faction f.
func (r *Intel) About(f world.FactionID) bool {
	return r.Pair[0] == f || r.Pair[1] == f
}

// Clone returns a deep copy.
func (r *Intel) Clone() *Intel {
	c := *r
	c.Kingdoms = append([]world.KingdomID(nil), r.Kingdoms...)
	return &c
}

// Recency decays linearly with age and never drops below floor.
func Recency(daysOld, retentionDays int, floor float64) float64 {
	if retentionDays <= 0 {
		return floor
	}
	return max(floor, 1-float64(daysOld)/float64(retentionDays))
}

// Score ranks a record for rumor surfacing:
// reliability × recency × category weight.
func (r *Intel) Score(weights CategoryWeights, retentionDays int, recencyFloor float64) float64 {
	return r.Reliability * Recency(r.DaysOld, retentionDays, recencyFloor) * weights.Of(r.Category)
}

// Age advances the record by one day and decays its reliability.
func (r *Intel) Age(decay float64) {
	r.DaysOld++
	r.Reliability = Clamp01(r.Reliability - decay)
}
