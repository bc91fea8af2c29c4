// Simulation ties the alliance subsystems together and runs them once per day.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/shadow-pacts/internal/config"
	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/metrics"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

var (
	// ErrOperationCooldown is returned when a forced operation is still cooling down.
	ErrOperationCooldown = errors.New("operation on cooldown")
	// ErrInactive is returned when a hook targets a dissolved alliance.
	ErrInactive = errors.New("alliance inactive")
	// ErrAlreadyAllied is returned when two factions already share an active alliance.
	ErrAlreadyAllied = errors.New("factions already allied")
)

// Event is a notable occurrence in the alliance world.
type Event struct {
	Day         int    `json:"day"`
	Description string `json:"description"`
	Category    string `json:"category"` // "formation", "dissolution", "leak", "operation", "betrayal", "reveal", "trade"
}

// DayReport summarizes one daily pass.
type DayReport struct {
	Day         int     `json:"day"`
	Active      int     `json:"active"`
	Formed      int     `json:"formed"`
	Dissolved   int     `json:"dissolved"`
	Leaks       int     `json:"leaks"`
	Operations  int     `json:"operations"`
	Betrayals   int     `json:"betrayals"`
	NearMisses  int     `json:"near_misses"`
	Reveals     int     `json:"reveals"`
	Transferred float64 `json:"transferred"`
	Throttled   int     `json:"throttled"`
	IntelPurged int     `json:"intel_purged"`
	Intel       int     `json:"intel"`
	Effects     int     `json:"effects"`
}

// Options carries the optional collaborators of a Simulation.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Mutator receives queued world effects after each pass. When nil the
	// world model is used if it implements world.Mutator.
	Mutator world.Mutator
	// Source drives every roll. Defaults to entropy.Crypto.
	Source   entropy.Source
	StartDay int
	Events   []Event
}

// Simulation holds the alliance store and runs the daily pass over it.
type Simulation struct {
	mu sync.Mutex

	cfg     config.Config
	world   world.Model
	mutator world.Mutator
	store   *social.Store
	rng     entropy.Source
	log     *slog.Logger
	metrics *metrics.Metrics
	weights social.CategoryWeights

	day    int
	events []Event
	groups map[uint64]GroupMetrics

	// Per-pass scratch state.
	pending     []world.Effect
	wealthDelta map[world.FactionID]float64
	report      DayReport
}

// New wires a simulation. cfg is copied and sanitized; out-of-range values
// fall back to their defaults with a warning.
func New(cfg config.Config, model world.Model, store *social.Store, opts Options) *Simulation {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Source == nil {
		opts.Source = entropy.Crypto{}
	}
	if store == nil {
		store = social.NewStore()
	}
	store.SetIDSource(entropy.IDReader(opts.Source))
	cfg.Intel.CategoryWeights = maps.Clone(cfg.Intel.CategoryWeights)
	for _, c := range cfg.Sanitize() {
		opts.Logger.Warn("config corrected", "field", c.Field, "got", c.Got, "using", c.Default)
	}
	mut := opts.Mutator
	if mut == nil {
		if m, ok := model.(world.Mutator); ok {
			mut = m
		}
	}

	weights, unknown := social.NewCategoryWeights(cfg.Intel.CategoryWeights)
	for _, name := range unknown {
		opts.Logger.Warn("ignoring unknown intel category weight", "category", name)
	}

	s := &Simulation{
		cfg:         cfg,
		world:       model,
		mutator:     mut,
		store:       store,
		rng:         opts.Source,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		weights:     weights,
		day:         opts.StartDay,
		events:      append([]Event(nil), opts.Events...),
		groups:      make(map[uint64]GroupMetrics),
		wealthDelta: make(map[world.FactionID]float64),
	}
	s.aggregateCoalitions()
	return s
}

// Day returns the most recently completed day.
func (s *Simulation) Day() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.day
}

// Config returns the configuration the simulation runs with.
func (s *Simulation) Config() config.Config {
	return s.cfg
}

// AdvanceDay runs the full daily pass and applies the queued world effects.
func (s *Simulation) AdvanceDay() DayReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.day++
	s.report = DayReport{Day: s.day}
	clear(s.wealthDelta)

	for _, a := range s.store.Active() {
		a.BeginDay(s.day, s.cfg.Dynamics.MaxDailyDelta)
	}

	s.aggregateCoalitions()
	s.forEachActive("dynamics", s.processDynamics)
	s.forEachActive("trade", s.processTrade)
	s.processFormation()
	s.forEachActive("leak", s.processLeak)
	s.forEachActive("operations", s.processOperations)
	s.forEachActive("betrayal", s.processPeriodicBetrayal)
	s.forEachActive("reveal", s.processReveal)
	s.maintain()
	s.applyEffects()

	s.report.Active = s.store.ActiveCount()
	s.report.Intel = len(s.store.Intel())
	s.metrics.Observe(s.day, s.report.Active, s.report.Intel, time.Since(start).Seconds())

	s.log.Info("daily report",
		"day", s.day,
		"date", DayLabel(s.day),
		"active", s.report.Active,
		"formed", s.report.Formed,
		"dissolved", s.report.Dissolved,
		"leaks", s.report.Leaks,
		"operations", s.report.Operations,
		"betrayals", s.report.Betrayals,
		"near_misses", s.report.NearMisses,
		"reveals", s.report.Reveals,
		"transferred", humanize.Commaf(float64(int64(s.report.Transferred))),
		"throttled", s.report.Throttled,
		"intel", s.report.Intel,
		"intel_purged", s.report.IntelPurged,
	)
	return s.report
}

// forEachActive runs fn over every active alliance in ID order. An alliance
// dissolved earlier in the same stage is skipped.
func (s *Simulation) forEachActive(stage string, fn func(a *social.Alliance) error) {
	for _, a := range s.store.Active() {
		if !a.Eligible() {
			continue
		}
		s.guard(stage, a, func() error { return fn(a) })
	}
}

// guard isolates one alliance's stage work: errors and panics are logged
// and the pass continues with the next alliance.
func (s *Simulation) guard(stage string, a *social.Alliance, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("alliance stage panicked", "stage", stage, "alliance", a.ID, "panic", r)
		}
	}()
	err := fn()
	switch {
	case err == nil:
	case errors.Is(err, world.ErrUnknownFaction), errors.Is(err, world.ErrUnknownAgent):
		s.log.Debug("skipping alliance for today", "stage", stage, "alliance", a.ID, "err", err)
	default:
		s.log.Warn("alliance stage failed", "stage", stage, "alliance", a.ID, "err", err)
	}
}

// parties resolves both members. Eliminated factions count as unresolvable.
func (s *Simulation) parties(a *social.Alliance) (world.Faction, world.Faction, error) {
	fa, err := s.resolve(a.Initiator)
	if err != nil {
		return world.Faction{}, world.Faction{}, err
	}
	fb, err := s.resolve(a.Target)
	if err != nil {
		return world.Faction{}, world.Faction{}, err
	}
	return fa, fb, nil
}

func (s *Simulation) resolve(id world.FactionID) (world.Faction, error) {
	f, err := s.world.Faction(id)
	if err != nil {
		return world.Faction{}, err
	}
	if f.Eliminated {
		return world.Faction{}, fmt.Errorf("faction %d eliminated: %w", id, world.ErrUnknownFaction)
	}
	return f, nil
}

// wealth returns a faction's wealth including transfers queued today.
func (s *Simulation) wealth(f world.Faction) float64 {
	return f.Wealth + s.wealthDelta[f.ID]
}

func (s *Simulation) queue(e world.Effect) {
	e.Day = s.day
	s.pending = append(s.pending, e)
}

// applyEffects hands every queued effect to the mutator and empties the queue.
func (s *Simulation) applyEffects() {
	if len(s.pending) == 0 {
		return
	}
	pending := s.pending
	s.pending = nil
	if s.mutator == nil {
		s.log.Debug("dropping world effects, no mutator", "count", len(pending))
		return
	}
	for _, e := range pending {
		if err := e.Apply(s.mutator); err != nil {
			s.log.Warn("world effect failed", "reason", e.Reason, "err", err)
			continue
		}
		s.report.Effects++
	}
}

func (s *Simulation) addEvent(category, format string, args ...any) {
	s.events = append(s.events, Event{
		Day:         s.day,
		Description: fmt.Sprintf(format, args...),
		Category:    category,
	})
}

func (s *Simulation) dissolve(a *social.Alliance, reason string) {
	if !a.IsActive {
		return
	}
	a.Dissolve(s.day, reason)
	s.report.Dissolved++
	s.metrics.Dissolved(reason)
	s.addEvent("dissolution", "alliance between %d and %d dissolved (%s)", a.Initiator, a.Target, reason)
	s.log.Info("alliance dissolved", "alliance", a.ID, "reason", reason, "day", s.day)
}

// maintain ages and trims intel, expires rejections, and bounds the event log.
func (s *Simulation) maintain() {
	ic := s.cfg.Intel
	s.store.AgeIntel(ic.DecayRate)
	s.report.IntelPurged += s.store.PurgeIntel(ic.ReliabilityFloor, ic.RetentionDays)
	s.report.IntelPurged += s.store.CapIntel(ic.MaxPerAlliance)
	s.store.ExpireRejections(s.day)
	if len(s.events) > maxEvents {
		s.events = append([]Event(nil), s.events[len(s.events)-maxEvents:]...)
	}
}

// Filter narrows ActiveAlliances. Zero fields match everything.
type Filter struct {
	Faction world.FactionID
	Group   uint64
}

// ActiveAlliances returns copies of the active alliances matching f.
func (s *Simulation) ActiveAlliances(f Filter) []*social.Alliance {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*social.Alliance
	for _, a := range s.store.Active() {
		if f.Faction != 0 && !a.Involves(f.Faction) {
			continue
		}
		if f.Group != 0 && a.GroupID != f.Group {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

// FindAlliance returns a copy of the alliance between two factions.
func (s *Simulation) FindAlliance(a, b world.FactionID) (*social.Alliance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	al, err := s.store.FindByPair(a, b)
	if err != nil {
		return nil, err
	}
	return al.Clone(), nil
}

// Alliance returns a copy of one alliance by ID.
func (s *Simulation) Alliance(id uuid.UUID) (*social.Alliance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	al, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return al.Clone(), nil
}

// Groups returns the coalition metrics computed at the start of the last pass.
func (s *Simulation) Groups() []GroupMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedGroups()
}

// RecentEvents returns up to n of the latest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.events) {
		n = len(s.events)
	}
	return append([]Event(nil), s.events[len(s.events)-n:]...)
}

// Snapshot is a consistent copy of everything the simulation persists.
type Snapshot struct {
	Day        int
	Alliances  []*social.Alliance
	Intel      []*social.Intel
	Rejections []social.Rejection
	Events     []Event
	RNGState   []byte // nil unless the source supports MarshalBinary
}

// Snapshot copies the simulation state under the lock.
func (s *Simulation) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alliances, records, rejections := s.store.Snapshot()
	snap := Snapshot{
		Day:        s.day,
		Alliances:  alliances,
		Intel:      records,
		Rejections: rejections,
		Events:     append([]Event(nil), s.events...),
	}
	if m, ok := s.rng.(interface{ MarshalBinary() ([]byte, error) }); ok {
		state, err := m.MarshalBinary()
		if err != nil {
			return snap, fmt.Errorf("marshal rng: %w", err)
		}
		snap.RNGState = state
	}
	return snap, nil
}

// Summary is a point-in-time count of the simulation state.
type Summary struct {
	Day        int    `json:"day"`
	Date       string `json:"date"`
	Active     int    `json:"active"`
	Alliances  int    `json:"alliances"`
	Groups     int    `json:"groups"`
	Intel      int    `json:"intel"`
	Rejections int    `json:"rejections"`
	Events     int    `json:"events"`
}

// Summary counts what the store currently holds.
func (s *Simulation) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Day:        s.day,
		Date:       DayLabel(s.day),
		Active:     s.store.ActiveCount(),
		Alliances:  s.store.Len(),
		Groups:     len(s.groups),
		Intel:      len(s.store.Intel()),
		Rejections: len(s.store.Rejections()),
		Events:     len(s.events),
	}
}

// Factions lists the world's factions that still stand, in ID order.
func (s *Simulation) Factions() []world.Faction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []world.Faction
	for _, id := range s.world.FactionIDs() {
		f, err := s.world.Faction(id)
		if err != nil || f.Eliminated {
			continue
		}
		out = append(out, f)
	}
	return out
}
