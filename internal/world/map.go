package world

import (
	"fmt"
	"slices"
	"sync"
)

// Static is an in-memory Model and Mutator. The demo world and the tests
// use it; a game host would implement Model over its own state instead.
type Static struct {
	mu        sync.RWMutex
	factions  map[FactionID]*Faction
	leaders   map[AgentID]*Leader
	wars      map[[2]KingdomID]bool
	relations map[[2]AgentID]float64
}

// NewStatic creates an empty world.
func NewStatic() *Static {
	return &Static{
		factions:  make(map[FactionID]*Faction),
		leaders:   make(map[AgentID]*Leader),
		wars:      make(map[[2]KingdomID]bool),
		relations: make(map[[2]AgentID]float64),
	}
}

// AddFaction places a faction (and optionally its leader) in the world.
func (w *Static) AddFaction(f Faction, l Leader) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fc := f
	w.factions[f.ID] = &fc
	if l.ID != 0 {
		lc := l
		w.leaders[l.ID] = &lc
	}
}

// SetWar declares or ends open war between two kingdoms.
func (w *Static) SetWar(a, b KingdomID, atWar bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wars[kingdomKey(a, b)] = atWar
}

// SetRelation sets the symmetric relation between two agents.
func (w *Static) SetRelation(a, b AgentID, value float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.relations[agentKey(a, b)] = clampRelation(value)
}

// Eliminate marks a faction as destroyed.
func (w *Static) Eliminate(id FactionID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if f, ok := w.factions[id]; ok {
		f.Eliminated = true
	}
}

// Remove deletes a faction entirely, so lookups fail.
func (w *Static) Remove(id FactionID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.factions, id)
}

func (w *Static) Faction(id FactionID) (Faction, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	f, ok := w.factions[id]
	if !ok {
		return Faction{}, fmt.Errorf("faction %d: %w", id, ErrUnknownFaction)
	}
	return *f, nil
}

func (w *Static) FactionIDs() []FactionID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]FactionID, 0, len(w.factions))
	for id := range w.factions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (w *Static) Leader(id AgentID) (Leader, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	l, ok := w.leaders[id]
	if !ok {
		return Leader{}, fmt.Errorf("agent %d: %w", id, ErrUnknownAgent)
	}
	return *l, nil
}

func (w *Static) AtWar(a, b KingdomID) bool {
	if a == 0 || b == 0 || a == b {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.wars[kingdomKey(a, b)]
}

func (w *Static) Wars(k KingdomID) []KingdomID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []KingdomID
	for key, atWar := range w.wars {
		if !atWar {
			continue
		}
		switch k {
		case key[0]:
			out = append(out, key[1])
		case key[1]:
			out = append(out, key[0])
		}
	}
	slices.Sort(out)
	return out
}

func (w *Static) Relation(a, b AgentID) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.relations[agentKey(a, b)]
}

func (w *Static) KingdomFactions(k KingdomID) []FactionID {
	if k == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []FactionID
	for id, f := range w.factions {
		if f.Kingdom == k {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// AdjustWealth adds delta to a faction's wealth, never below zero.
func (w *Static) AdjustWealth(id FactionID, delta float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.factions[id]
	if !ok {
		return fmt.Errorf("faction %d: %w", id, ErrUnknownFaction)
	}
	f.Wealth += delta
	if f.Wealth < 0 {
		f.Wealth = 0
	}
	return nil
}

// AdjustRelation shifts the relation between two agents.
func (w *Static) AdjustRelation(a, b AgentID, delta float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.leaders[a]; !ok {
		return fmt.Errorf("agent %d: %w", a, ErrUnknownAgent)
	}
	if _, ok := w.leaders[b]; !ok {
		return fmt.Errorf("agent %d: %w", b, ErrUnknownAgent)
	}
	key := agentKey(a, b)
	w.relations[key] = clampRelation(w.relations[key] + delta)
	return nil
}

// FactionCount returns the number of factions, eliminated ones included.
func (w *Static) FactionCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.factions)
}

// String returns a summary of the world.
func (w *Static) String() string {
	return fmt.Sprintf("World(factions=%d, leaders=%d)", w.FactionCount(), len(w.leaders))
}

func kingdomKey(a, b KingdomID) [2]KingdomID {
	if a > b {
		a, b = b, a
	}
	return [2]KingdomID{a, b}
}

func agentKey(a, b AgentID) [2]AgentID {
	if a > b {
		a, b = b, a
	}
	return [2]AgentID{a, b}
}

func clampRelation(v float64) float64 {
	return max(-100, min(100, v))
}
