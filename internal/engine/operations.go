// Covert operations: scheduling, success rolls and per-kind effects.
// Each alliance has one cooldown per operation kind plus an adaptive
// minimum interval between any two operations.
package engine

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/talgya/shadow-pacts/internal/config"
	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// operationSkill is the leader skill each kind leans on.
var operationSkill = [social.NumOperations]world.Skill{
	social.OpCovertAid:          world.SkillLeadership,
	social.OpSpyProbe:           world.SkillRoguery,
	social.OpRecruitmentFeelers: world.SkillLeadership,
	social.OpSabotageRaid:       world.SkillTactics,
	social.OpCounterIntelSweep:  world.SkillRoguery,
}

// AdaptiveInterval is the minimum number of days between two operations of
// any kind. High pressure and high trust both shorten it.
func AdaptiveInterval(cfg config.OperationsConfig, pressure, trust float64) int {
	iv := float64(cfg.MinInterval)
	if pressure > cfg.PressureThreshold {
		iv *= cfg.PressureIntervalMult
	}
	if trust > cfg.TrustThreshold {
		iv *= cfg.TrustIntervalMult
	}
	return max(cfg.IntervalFloor, int(math.Round(iv)))
}

// SuccessChance weighs trust, strength and leader skill against difficulty.
func SuccessChance(cfg config.OperationsConfig, op config.OperationConfig, trust, strength, skill float64) float64 {
	p := 0.5 + cfg.TrustWeight*trust + cfg.StrengthWeight*strength + cfg.SkillWeight*skill - op.Difficulty
	return math.Max(cfg.MinSuccess, math.Min(cfg.MaxSuccess, p))
}

// meetsPreconditions checks the kind's minimum alliance state.
func meetsPreconditions(a *social.Alliance, op config.OperationConfig) bool {
	return a.Strength >= op.MinStrength && a.Secrecy >= op.MinSecrecy && a.Trust >= op.MinTrust
}

// eligibleOperations lists the kinds the alliance may launch today.
func (s *Simulation) eligibleOperations(a *social.Alliance, pressure float64) []social.OperationKind {
	oc := s.cfg.Operations
	if s.day-a.LastOperationDay < AdaptiveInterval(oc, pressure, a.Trust) {
		return nil
	}
	var kinds []social.OperationKind
	for _, k := range social.AllOperations() {
		if a.OnCooldown(k, s.day) {
			continue
		}
		if !meetsPreconditions(a, oc.Operation(int(k))) {
			continue
		}
		kinds = append(kinds, k)
	}
	return kinds
}

// processOperations makes one launch roll per alliance and, on success,
// picks a kind weighted among the eligible ones.
func (s *Simulation) processOperations(a *social.Alliance) error {
	if a.CooldownDays > 0 {
		return nil
	}
	fa, fb, err := s.parties(a)
	if err != nil {
		return err
	}
	kinds := s.eligibleOperations(a, s.pressure(fa, fb))
	if len(kinds) == 0 {
		return nil
	}
	if !entropy.Chance(s.rng, s.cfg.Operations.LaunchChance) {
		return nil
	}
	weights := make([]float64, len(kinds))
	for i, k := range kinds {
		weights[i] = s.cfg.Operations.Operation(int(k)).Weight
	}
	i := entropy.Weighted(s.rng, weights)
	if i < 0 {
		return nil
	}
	s.executeOperation(a, fa, fb, kinds[i])
	return nil
}

// executeOperation rolls and resolves one operation, then starts its cooldown.
func (s *Simulation) executeOperation(a *social.Alliance, fa, fb world.Faction, k social.OperationKind) bool {
	oc := s.cfg.Operations
	op := oc.Operation(int(k))
	skill := s.leaderSkill(fa, fb, operationSkill[k]) / oc.SkillScale
	chance := SuccessChance(oc, op, a.Trust, a.Strength, skill)
	success := entropy.Chance(s.rng, chance)

	switch k {
	case social.OpCovertAid:
		s.covertAid(a, success)
	case social.OpSpyProbe:
		s.spyProbe(a, fa, fb, success)
	case social.OpRecruitmentFeelers:
		s.recruitmentFeelers(a, fa, fb, success)
	case social.OpSabotageRaid:
		s.sabotageRaid(a, fa, fb, success)
	case social.OpCounterIntelSweep:
		s.counterIntelSweep(a, success)
	}

	a.OpCooldownEnd[k] = s.day + op.CooldownDays
	a.LastOperationDay = s.day
	a.LastInteractionDay = s.day
	if success {
		a.SuccessfulOperations++
	}

	s.report.Operations++
	s.metrics.Operation(k.String(), success)
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	s.addEvent("operation", "%s by %s and %s %s", k, fa.Name, fb.Name, outcome)
	s.log.Debug("operation resolved",
		"alliance", a.ID,
		"kind", k.String(),
		"chance", chance,
		"success", success,
		"cooldown_end", a.OpCooldownEnd[k],
	)
	return success
}

// leaderSkill averages the chosen skill over the leaders that resolve.
func (s *Simulation) leaderSkill(fa, fb world.Faction, skill world.Skill) float64 {
	total, n := 0.0, 0
	for _, f := range []world.Faction{fa, fb} {
		l, err := s.world.Leader(f.LeaderID)
		if err != nil {
			continue
		}
		total += float64(l.Skills.Level(skill))
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func (s *Simulation) covertAid(a *social.Alliance, success bool) {
	if !success {
		return
	}
	oc := s.cfg.Operations
	a.AdjustStrength(oc.AidStrength)
	a.AdjustTrust(oc.AidTrust)
	a.AdjustSecrecy(-oc.AidSecrecyCost)
}

func (s *Simulation) spyProbe(a *social.Alliance, fa, fb world.Faction, success bool) {
	oc := s.cfg.Operations
	if success {
		if target, ok := s.enemyOf(a, fa, fb); ok {
			s.intelOnThirdParty(a, fa, target, social.SourceSpyProbe, oc.ProbeSeverity)
		}
		return
	}
	if entropy.Chance(s.rng, oc.ProbeExposureChance) {
		a.AdjustSecrecy(-oc.ProbeExposureLoss)
		a.SuspicionLevel = social.Clamp01(a.SuspicionLevel + s.cfg.Leak.SuspicionGain)
	}
}

func (s *Simulation) sabotageRaid(a *social.Alliance, fa, fb world.Faction, success bool) {
	oc := s.cfg.Operations
	if success {
		if target, ok := s.enemyOf(a, fa, fb); ok {
			s.intelOnThirdParty(a, fa, target, social.SourceSabotage, oc.SabotageSeverity)
		}
		return
	}
	a.AdjustSecrecy(-oc.SabotageSecrecyLoss)
	if entropy.Chance(s.rng, oc.SabotageLeakChance) {
		s.leak(a, fa, fb, social.SourceSabotage)
	}
}

// counterIntelSweep discredits existing intel about the alliance and
// shields it from leaks for a while.
func (s *Simulation) counterIntelSweep(a *social.Alliance, success bool) {
	if !success {
		return
	}
	oc := s.cfg.Operations
	for _, r := range s.store.IntelFor(a.ID) {
		r.Reliability = social.Clamp01(r.Reliability * (1 - oc.CounterIntelReduction))
	}
	a.CounterIntelUntilDay = s.day + oc.CounterIntelBuffDays
}

// recruitmentFeelers tries to pull a friendly outsider into the coalition.
// Success links an existing alliance or forms a new one under the shared
// group; failure sours the relationship and the target may talk.
func (s *Simulation) recruitmentFeelers(a *social.Alliance, fa, fb world.Faction, success bool) {
	target, ok := s.recruitTarget(a, fa, fb)
	if !ok {
		return
	}
	if !success {
		s.queue(world.Effect{
			Kind:   world.EffectRelation,
			Agents: [2]world.AgentID{fa.LeaderID, target.LeaderID},
			Amount: -s.cfg.Operations.RecruitRelationCost,
			Reason: "rebuffed recruitment",
		})
		s.addIntel(a, &social.Intel{
			Category:    social.CategoryRecruitment,
			Source:      social.SourceRecruitment,
			Informer:    target.LeaderID,
			Observer:    target.ID,
			Reliability: s.intelReliability(),
			Severity:    s.leakSeverity(a, fa, fb),
		})
		return
	}

	if a.GroupID == 0 {
		a.GroupID = s.store.NextGroupID()
	}
	if existing, err := s.store.FindByPair(fa.ID, target.ID); err == nil && existing.IsActive {
		existing.GroupID = a.GroupID
		s.addEvent("operation", "%s drew %s into a wider coalition", fa.Name, target.Name)
		return
	}
	recruit, err := s.createAlliance(fa, target, FormOptions{Origin: "recruitment"}, false)
	if err != nil {
		s.log.Warn("recruitment failed to form alliance", "alliance", a.ID, "target", target.ID, "err", err)
		return
	}
	recruit.GroupID = a.GroupID
}

// recruitTarget picks the outsider whose leader likes fa's leader best.
func (s *Simulation) recruitTarget(a *social.Alliance, fa, fb world.Faction) (world.Faction, bool) {
	inside := map[world.FactionID]bool{fa.ID: true, fb.ID: true}
	for _, g := range s.store.ActiveByGroup(a.GroupID) {
		inside[g.Initiator] = true
		inside[g.Target] = true
	}

	var best world.Faction
	bestRel, found := math.Inf(-1), false
	for _, id := range s.world.FactionIDs() {
		if inside[id] {
			continue
		}
		f, err := s.resolve(id)
		if err != nil || world.Hostile(s.world, fa, f) {
			continue
		}
		rel := s.world.Relation(fa.LeaderID, f.LeaderID)
		if rel > bestRel {
			best, bestRel, found = f, rel, true
		}
	}
	return best, found
}

// enemyOf picks a third party hostile to either member: its kingdom is at
// war with theirs or its leader dislikes one of theirs.
func (s *Simulation) enemyOf(a *social.Alliance, fa, fb world.Faction) (world.Faction, bool) {
	var enemies []world.Faction
	for _, id := range s.world.FactionIDs() {
		if a.Involves(id) {
			continue
		}
		f, err := s.resolve(id)
		if err != nil {
			continue
		}
		if world.Hostile(s.world, fa, f) || world.Hostile(s.world, fb, f) ||
			s.world.Relation(fa.LeaderID, f.LeaderID) < 0 || s.world.Relation(fb.LeaderID, f.LeaderID) < 0 {
			enemies = append(enemies, f)
		}
	}
	if len(enemies) == 0 {
		return world.Faction{}, false
	}
	return enemies[s.rng.IntN(len(enemies))], true
}

// intelOnThirdParty records military intelligence gathered by observer about
// target. It is attached to one of target's alliances when it has any.
func (s *Simulation) intelOnThirdParty(a *social.Alliance, observer, target world.Faction, source social.Source, severity float64) {
	r := &social.Intel{
		Pair:        [2]world.FactionID{target.ID, 0},
		Informer:    observer.LeaderID,
		Observer:    observer.ID,
		Category:    social.CategoryMilitary,
		Source:      source,
		Reliability: s.intelReliability(),
		Severity:    severity,
		CreatedDay:  s.day,
	}
	for _, other := range s.store.ActiveByFaction(target.ID) {
		if other.ID == a.ID {
			continue
		}
		r.AllianceID = other.ID
		r.Pair = other.Members()
		break
	}
	s.store.AddIntel(r)
}

// ForceOperation runs an operation now, skipping the launch roll and the
// adaptive interval. Per-kind cooldowns still apply. Debug entry point.
func (s *Simulation) ForceOperation(id uuid.UUID, k social.OperationKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(k) >= social.NumOperations {
		return false, fmt.Errorf("unknown operation kind %d", k)
	}
	a, err := s.store.Get(id)
	if err != nil {
		return false, err
	}
	if !a.Eligible() {
		return false, fmt.Errorf("operation %s on %s: %w", k, id, ErrInactive)
	}
	if a.OnCooldown(k, s.day) {
		return false, fmt.Errorf("%s until day %d: %w", k, a.OpCooldownEnd[k], ErrOperationCooldown)
	}
	fa, fb, err := s.parties(a)
	if err != nil {
		return false, err
	}
	success := s.executeOperation(a, fa, fb, k)
	s.applyEffects()
	return success, nil
}
