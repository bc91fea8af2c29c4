package social

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/talgya/shadow-pacts/internal/world"
)

// ErrNotFound is returned when an alliance lookup fails.
var ErrNotFound = errors.New("alliance not found")

// repairNamespace seeds deterministic surrogate IDs for alliances that
// were saved without one.
var repairNamespace = uuid.MustParse("6f1c8f0e-6a3b-4f5e-9d8e-5e2a7b4c1d00")

// PairKey is an unordered faction pair.
type PairKey [2]world.FactionID

// NewPairKey orders the pair so (a, b) and (b, a) map to the same key.
func NewPairKey(a, b world.FactionID) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{a, b}
}

// Rejection is a pair that may not form an alliance before UntilDay.
type Rejection struct {
	Pair     PairKey `json:"pair"`
	UntilDay int     `json:"until_day"`
}

// Store exclusively owns every alliance and intelligence record.
type Store struct {
	alliances  map[uuid.UUID]*Alliance
	intel      []*Intel
	rejections map[PairKey]int
	nextGroup  uint64
	ids        io.Reader
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		alliances:  make(map[uuid.UUID]*Alliance),
		rejections: make(map[PairKey]int),
		nextGroup:  1,
	}
}

// NewAllianceID returns a fresh, never-nil alliance identifier.
func NewAllianceID() uuid.UUID {
	return uuid.New()
}

// SetIDSource makes NewID draw its bytes from r. A seeded reader keeps
// identifiers, and so the stable iteration order, reproducible.
func (s *Store) SetIDSource(r io.Reader) {
	s.ids = r
}

// NewID returns a fresh random identifier from the store's ID source.
func (s *Store) NewID() uuid.UUID {
	if s.ids != nil {
		if id, err := uuid.NewRandomFromReader(s.ids); err == nil {
			return id
		}
	}
	return uuid.New()
}

// Add inserts an alliance. A nil ID is replaced before insertion.
func (s *Store) Add(a *Alliance) error {
	if a.ID == uuid.Nil {
		a.ID = s.NewID()
	}
	if _, exists := s.alliances[a.ID]; exists {
		return fmt.Errorf("alliance %s already stored", a.ID)
	}
	s.alliances[a.ID] = a
	if a.GroupID >= s.nextGroup {
		s.nextGroup = a.GroupID + 1
	}
	return nil
}

// Get returns an alliance by ID.
func (s *Store) Get(id uuid.UUID) (*Alliance, error) {
	a, ok := s.alliances[id]
	if !ok {
		return nil, fmt.Errorf("alliance %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// FindByPair returns the alliance between two factions, preferring an
// active one. Order of a and b does not matter.
func (s *Store) FindByPair(a, b world.FactionID) (*Alliance, error) {
	key := NewPairKey(a, b)
	var inactive *Alliance
	for _, al := range s.All() {
		if NewPairKey(al.Initiator, al.Target) != key {
			continue
		}
		if al.IsActive {
			return al, nil
		}
		if inactive == nil {
			inactive = al
		}
	}
	if inactive != nil {
		return inactive, nil
	}
	return nil, fmt.Errorf("pair %d/%d: %w", a, b, ErrNotFound)
}

// HasActivePair reports whether two factions are currently allied.
func (s *Store) HasActivePair(a, b world.FactionID) bool {
	key := NewPairKey(a, b)
	for _, al := range s.alliances {
		if al.IsActive && NewPairKey(al.Initiator, al.Target) == key {
			return true
		}
	}
	return false
}

// All returns every alliance in stable ID order, inactive ones included.
func (s *Store) All() []*Alliance {
	out := make([]*Alliance, 0, len(s.alliances))
	for _, a := range s.alliances {
		out = append(out, a)
	}
	slices.SortFunc(out, func(x, y *Alliance) int {
		return bytes.Compare(x.ID[:], y.ID[:])
	})
	return out
}

// Active returns alliances eligible for daily processing, in ID order.
func (s *Store) Active() []*Alliance {
	var out []*Alliance
	for _, a := range s.All() {
		if a.Eligible() {
			out = append(out, a)
		}
	}
	return out
}

// ActiveByFaction returns active alliances involving f.
func (s *Store) ActiveByFaction(f world.FactionID) []*Alliance {
	var out []*Alliance
	for _, a := range s.Active() {
		if a.Involves(f) {
			out = append(out, a)
		}
	}
	return out
}

// ActiveByGroup returns active members of a coalition group.
func (s *Store) ActiveByGroup(group uint64) []*Alliance {
	if group == 0 {
		return nil
	}
	var out []*Alliance
	for _, a := range s.Active() {
		if a.GroupID == group {
			out = append(out, a)
		}
	}
	return out
}

// ActiveCount returns the number of active alliances.
func (s *Store) ActiveCount() int {
	n := 0
	for _, a := range s.alliances {
		if a.Eligible() {
			n++
		}
	}
	return n
}

// Len returns the number of alliances, inactive included.
func (s *Store) Len() int { return len(s.alliances) }

// NextGroupID allocates a new coalition group identifier.
func (s *Store) NextGroupID() uint64 {
	id := s.nextGroup
	s.nextGroup++
	return id
}

// SetRejection blocks the pair from forming until untilDay.
func (s *Store) SetRejection(a, b world.FactionID, untilDay int) {
	s.rejections[NewPairKey(a, b)] = untilDay
}

// Rejected reports whether the pair is still on rejection cooldown.
func (s *Store) Rejected(a, b world.FactionID, day int) bool {
	until, ok := s.rejections[NewPairKey(a, b)]
	return ok && day < until
}

// ExpireRejections drops cooldowns that have run out.
func (s *Store) ExpireRejections(day int) {
	for k, until := range s.rejections {
		if day >= until {
			delete(s.rejections, k)
		}
	}
}

// Rejections lists current rejection cooldowns in pair order.
func (s *Store) Rejections() []Rejection {
	out := make([]Rejection, 0, len(s.rejections))
	for k, until := range s.rejections {
		out = append(out, Rejection{Pair: k, UntilDay: until})
	}
	slices.SortFunc(out, func(x, y Rejection) int {
		if c := cmp.Compare(x.Pair[0], y.Pair[0]); c != 0 {
			return c
		}
		return cmp.Compare(x.Pair[1], y.Pair[1])
	})
	return out
}

// AddIntel stores a record, filling in a missing ID.
func (s *Store) AddIntel(r *Intel) {
	if r.ID == uuid.Nil {
		r.ID = s.NewID()
	}
	r.Reliability = Clamp01(r.Reliability)
	r.Severity = Clamp01(r.Severity)
	s.intel = append(s.intel, r)
}

// Intel returns every record in insertion order.
func (s *Store) Intel() []*Intel {
	return slices.Clone(s.intel)
}

// IntelFor returns records about one alliance in insertion order.
func (s *Store) IntelFor(id uuid.UUID) []*Intel {
	var out []*Intel
	for _, r := range s.intel {
		if r.AllianceID == id {
			out = append(out, r)
		}
	}
	return out
}

// AgeIntel advances every record by one day.
func (s *Store) AgeIntel(decay float64) {
	for _, r := range s.intel {
		r.Age(decay)
	}
}

// PurgeIntel removes records below the reliability floor or past retention.
// It returns the number removed.
func (s *Store) PurgeIntel(floor float64, retentionDays int) int {
	before := len(s.intel)
	s.intel = slices.DeleteFunc(s.intel, func(r *Intel) bool {
		return r.Reliability < floor || r.DaysOld > retentionDays
	})
	return before - len(s.intel)
}

// capKey groups intel for capping: by alliance, or by the faction pair
// for records that are about no particular alliance.
type capKey struct {
	alliance uuid.UUID
	pair     [2]world.FactionID
}

func capKeyOf(r *Intel) capKey {
	if r.AllianceID != uuid.Nil {
		return capKey{alliance: r.AllianceID}
	}
	return capKey{pair: r.Pair}
}

// CapIntel keeps at most perAlliance records per alliance (or per faction
// pair for unattached records), evicting the least reliable first and the
// oldest among equals.
func (s *Store) CapIntel(perAlliance int) int {
	byAlliance := make(map[capKey][]*Intel)
	for _, r := range s.intel {
		k := capKeyOf(r)
		byAlliance[k] = append(byAlliance[k], r)
	}

	evict := make(map[uuid.UUID]bool)
	for _, records := range byAlliance {
		if len(records) <= perAlliance {
			continue
		}
		ranked := slices.Clone(records)
		slices.SortStableFunc(ranked, func(x, y *Intel) int {
			switch {
			case x.Reliability < y.Reliability:
				return -1
			case x.Reliability > y.Reliability:
				return 1
			}
			return y.DaysOld - x.DaysOld
		})
		for _, r := range ranked[:len(ranked)-perAlliance] {
			evict[r.ID] = true
		}
	}
	if len(evict) == 0 {
		return 0
	}
	s.intel = slices.DeleteFunc(s.intel, func(r *Intel) bool { return evict[r.ID] })
	return len(evict)
}

// RepairIDs gives every alliance saved with a nil ID a deterministic
// surrogate derived from its initiator, target and creation day, and points
// orphaned intel records at it.
func (s *Store) RepairIDs(logger *slog.Logger) int {
	var broken []*Alliance
	for id, a := range s.alliances {
		if id == uuid.Nil || a.ID == uuid.Nil {
			broken = append(broken, a)
			delete(s.alliances, id)
		}
	}
	slices.SortFunc(broken, func(x, y *Alliance) int {
		if c := cmp.Compare(x.Initiator, y.Initiator); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Target, y.Target); c != 0 {
			return c
		}
		return cmp.Compare(x.CreatedDay, y.CreatedDay)
	})

	for _, a := range broken {
		id := SurrogateID(a.Initiator, a.Target, a.CreatedDay)
		for n := 1; s.alliances[id] != nil; n++ {
			id = uuid.NewSHA1(repairNamespace, []byte(id.String()+"#"+strconv.Itoa(n)))
		}
		for _, r := range s.intel {
			if r.AllianceID == uuid.Nil && NewPairKey(r.Pair[0], r.Pair[1]) == NewPairKey(a.Initiator, a.Target) {
				r.AllianceID = id
			}
		}
		a.ID = id
		s.alliances[id] = a
		logger.Warn("repaired alliance identifier",
			"alliance", id,
			"initiator", a.Initiator,
			"target", a.Target,
			"created_day", a.CreatedDay,
		)
	}
	return len(broken)
}

// SurrogateID derives the deterministic repair identifier for an alliance.
func SurrogateID(initiator, target world.FactionID, createdDay int) uuid.UUID {
	name := fmt.Sprintf("%d|%d|%d", initiator, target, createdDay)
	return uuid.NewSHA1(repairNamespace, []byte(name))
}

// Snapshot deep-copies the full store contents for persistence.
func (s *Store) Snapshot() ([]*Alliance, []*Intel, []Rejection) {
	all := s.All()
	alliances := make([]*Alliance, len(all))
	for i, a := range all {
		alliances[i] = a.Clone()
	}
	records := make([]*Intel, len(s.intel))
	for i, r := range s.intel {
		records[i] = r.Clone()
	}
	return alliances, records, s.Rejections()
}

// Restore rebuilds a store from persisted state.
func Restore(alliances []*Alliance, records []*Intel, rejections []Rejection) *Store {
	s := NewStore()
	for i, a := range alliances {
		a.Normalize()
		key := a.ID
		if key == uuid.Nil {
			// Keep nil-ID alliances apart until RepairIDs runs.
			key = uuid.NewSHA1(repairNamespace, []byte("pending|"+strconv.Itoa(i)))
			s.alliances[key] = a
			a.ID = uuid.Nil
		} else {
			s.alliances[key] = a
		}
		if a.GroupID >= s.nextGroup {
			s.nextGroup = a.GroupID + 1
		}
	}
	for _, r := range records {
		s.AddIntel(r)
	}
	for _, r := range rejections {
		s.rejections[r.Pair] = r.UntilDay
	}
	return s
}
