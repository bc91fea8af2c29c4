package config

import (
	"fmt"
	"math"
	"sort"
)

// Correction records one parameter that failed validation and was reset.
type Correction struct {
	Field   string
	Got     float64
	Default float64
}

func (c Correction) String() string {
	return fmt.Sprintf("%s=%g out of range, using %g", c.Field, c.Got, c.Default)
}

type floatParam struct {
	name     string
	ptr      *float64
	min, max float64
	def      float64
}

type intParam struct {
	name     string
	ptr      *int
	min, max int
	def      int
}

// Sanitize replaces every missing or out-of-range parameter with its
// default and reports what it changed. It never fails.
func (c *Config) Sanitize() []Correction {
	d := Default()
	floats, ints := c.params(&d)

	var out []Correction
	for _, p := range floats {
		v := *p.ptr
		if math.IsNaN(v) || math.IsInf(v, 0) || v < p.min || v > p.max {
			out = append(out, Correction{Field: p.name, Got: v, Default: p.def})
			*p.ptr = p.def
		}
	}
	for _, p := range ints {
		v := *p.ptr
		if v < p.min || v > p.max {
			out = append(out, Correction{Field: p.name, Got: float64(v), Default: float64(p.def)})
			*p.ptr = p.def
		}
	}

	out = append(out, c.sanitizePairs(&d)...)
	out = append(out, c.sanitizeCategoryWeights()...)
	return out
}

// params is the explicit validation table: every tunable with its range
// and documented default.
func (c *Config) params(d *Config) ([]floatParam, []intParam) {
	f, dm, co, t := &c.Formation, &c.Dynamics, &c.Coalition, &c.Trade
	l, in, op, b, r, p := &c.Leak, &c.Intel, &c.Operations, &c.Betrayal, &c.Reveal, &c.Pressure

	floats := []floatParam{
		{"formation.base_chance", &f.BaseChance, 0, 1, d.Formation.BaseChance},
		{"formation.mutual_enemy_weight", &f.MutualEnemyWeight, 0, 1, d.Formation.MutualEnemyWeight},
		{"formation.economic_weight", &f.EconomicWeight, 0, 1, d.Formation.EconomicWeight},
		{"formation.military_weight", &f.MilitaryWeight, 0, 1, d.Formation.MilitaryWeight},
		{"formation.pressure_weight", &f.PressureWeight, 0, 1, d.Formation.PressureWeight},
		{"formation.max_chance", &f.MaxChance, 0, 1, d.Formation.MaxChance},
		{"formation.initial_strength_min", &f.InitialStrengthMin, 0, 1, d.Formation.InitialStrengthMin},
		{"formation.initial_strength_max", &f.InitialStrengthMax, 0, 1, d.Formation.InitialStrengthMax},
		{"formation.initial_secrecy_min", &f.InitialSecrecyMin, 0, 1, d.Formation.InitialSecrecyMin},
		{"formation.initial_secrecy_max", &f.InitialSecrecyMax, 0, 1, d.Formation.InitialSecrecyMax},
		{"formation.initial_trust", &f.InitialTrust, 0, 1, d.Formation.InitialTrust},
		{"formation.trade_pact_chance", &f.TradePactChance, 0, 1, d.Formation.TradePactChance},
		{"formation.military_pact_chance", &f.MilitaryPactChance, 0, 1, d.Formation.MilitaryPactChance},

		{"dynamics.secrecy_decay", &dm.SecrecyDecay, 0, 0.2, d.Dynamics.SecrecyDecay},
		{"dynamics.strength_growth", &dm.StrengthGrowth, 0, 0.2, d.Dynamics.StrengthGrowth},
		{"dynamics.low_cohesion_decay_mult", &dm.LowCohesionDecayMult, 0, 10, d.Dynamics.LowCohesionDecayMult},
		{"dynamics.high_cohesion_decay_mult", &dm.HighCohesionDecayMult, 0, 10, d.Dynamics.HighCohesionDecayMult},
		{"dynamics.high_cohesion_growth_mult", &dm.HighCohesionGrowthMult, 0, 10, d.Dynamics.HighCohesionGrowthMult},
		{"dynamics.max_daily_delta", &dm.MaxDailyDelta, 0.001, 1, d.Dynamics.MaxDailyDelta},
		{"dynamics.suspicion_decay", &dm.SuspicionDecay, 0, 1, d.Dynamics.SuspicionDecay},
		{"dynamics.aging_strength_floor", &dm.AgingStrengthFloor, 0, 1, d.Dynamics.AgingStrengthFloor},
		{"dynamics.aging_trust_floor", &dm.AgingTrustFloor, 0, 1, d.Dynamics.AgingTrustFloor},
		{"dynamics.aging_dissolve_chance", &dm.AgingDissolveChance, 0, 1, d.Dynamics.AgingDissolveChance},

		{"coalition.strength_weight", &co.StrengthWeight, 0, 1, d.Coalition.StrengthWeight},
		{"coalition.secrecy_weight", &co.SecrecyWeight, 0, 1, d.Coalition.SecrecyWeight},
		{"coalition.low_cohesion", &co.LowCohesion, 0, 1, d.Coalition.LowCohesion},
		{"coalition.high_cohesion", &co.HighCohesion, 0, 1, d.Coalition.HighCohesion},

		{"trade.transfer_rate", &t.TransferRate, 0, 1, d.Trade.TransferRate},
		{"trade.max_gap_fraction", &t.MaxGapFraction, 0, 0.5, d.Trade.MaxGapFraction},
		{"trade.volatility_band", &t.VolatilityBand, 0, 0.9, d.Trade.VolatilityBand},
		{"trade.reserve_floor", &t.ReserveFloor, 0, 1e9, d.Trade.ReserveFloor},
		{"trade.min_transfer", &t.MinTransfer, 0, 1e6, d.Trade.MinTransfer},
		{"trade.high_percentile", &t.HighPercentile, 0, 1, d.Trade.HighPercentile},
		{"trade.intel_percentile", &t.IntelPercentile, 0, 1, d.Trade.IntelPercentile},
		{"trade.trust_gain", &t.TrustGain, 0, 0.5, d.Trade.TrustGain},
		{"trade.trust_saturation", &t.TrustSaturation, 1, 1e12, d.Trade.TrustSaturation},
		{"trade.secrecy_cost", &t.SecrecyCost, 0, 0.5, d.Trade.SecrecyCost},

		{"leak.base_chance", &l.BaseChance, 0, 1, d.Leak.BaseChance},
		{"leak.secrecy_weight", &l.SecrecyWeight, 0.001, 5, d.Leak.SecrecyWeight},
		{"leak.member_weight", &l.MemberWeight, 0, 5, d.Leak.MemberWeight},
		{"leak.trust_weight", &l.TrustWeight, 0.001, 5, d.Leak.TrustWeight},
		{"leak.trade_surcharge", &l.TradeSurcharge, 0, 2, d.Leak.TradeSurcharge},
		{"leak.military_surcharge", &l.MilitarySurcharge, 0, 2, d.Leak.MilitarySurcharge},
		{"leak.war_risk", &l.WarRisk, 0, 5, d.Leak.WarRisk},
		{"leak.tenure_discount", &l.TenureDiscount, 0, 5, d.Leak.TenureDiscount},
		{"leak.attempt_escalation", &l.AttemptEscalation, 0, 1, d.Leak.AttemptEscalation},
		{"leak.escalation_cap", &l.EscalationCap, 0, 5, d.Leak.EscalationCap},
		{"leak.steepness", &l.Steepness, 0.1, 100, d.Leak.Steepness},
		{"leak.midpoint", &l.Midpoint, -5, 5, d.Leak.Midpoint},
		{"leak.max_chance", &l.MaxChance, 0.001, 1, d.Leak.MaxChance},
		{"leak.secrecy_loss", &l.SecrecyLoss, 0, 1, d.Leak.SecrecyLoss},
		{"leak.suspicion_gain", &l.SuspicionGain, 0, 1, d.Leak.SuspicionGain},
		{"leak.honor_weight", &l.HonorWeight, 0, 1, d.Leak.HonorWeight},
		{"leak.calculating_weight", &l.CalculatingWeight, 0, 1, d.Leak.CalculatingWeight},
		{"leak.min_propensity", &l.MinPropensity, 0.001, 1, d.Leak.MinPropensity},
		{"leak.severity_base", &l.SeverityBase, 0, 1, d.Leak.SeverityBase},
		{"leak.severity_strength", &l.SeverityStrength, 0, 1, d.Leak.SeverityStrength},
		{"leak.severity_distrust", &l.SeverityDistrust, 0, 1, d.Leak.SeverityDistrust},
		{"leak.war_severity", &l.WarSeverity, 0, 1, d.Leak.WarSeverity},
		{"leak.cross_kingdom_severity", &l.CrossKingdomSeverity, 0, 1, d.Leak.CrossKingdomSeverity},

		{"intel.reliability_min", &in.ReliabilityMin, 0, 1, d.Intel.ReliabilityMin},
		{"intel.reliability_max", &in.ReliabilityMax, 0, 1, d.Intel.ReliabilityMax},
		{"intel.decay_rate", &in.DecayRate, 0, 1, d.Intel.DecayRate},
		{"intel.reliability_floor", &in.ReliabilityFloor, 0, 1, d.Intel.ReliabilityFloor},
		{"intel.recency_floor", &in.RecencyFloor, 0.001, 1, d.Intel.RecencyFloor},
		{"intel.visible_reliability", &in.VisibleReliability, 0, 1, d.Intel.VisibleReliability},
		{"intel.visible_severity", &in.VisibleSeverity, 0, 1, d.Intel.VisibleSeverity},

		{"operations.launch_chance", &op.LaunchChance, 0, 1, d.Operations.LaunchChance},
		{"operations.pressure_threshold", &op.PressureThreshold, 0, 1, d.Operations.PressureThreshold},
		{"operations.pressure_interval_mult", &op.PressureIntervalMult, 0, 1, d.Operations.PressureIntervalMult},
		{"operations.trust_threshold", &op.TrustThreshold, 0, 1, d.Operations.TrustThreshold},
		{"operations.trust_interval_mult", &op.TrustIntervalMult, 0, 1, d.Operations.TrustIntervalMult},
		{"operations.trust_weight", &op.TrustWeight, 0, 2, d.Operations.TrustWeight},
		{"operations.strength_weight", &op.StrengthWeight, 0, 2, d.Operations.StrengthWeight},
		{"operations.skill_weight", &op.SkillWeight, 0, 2, d.Operations.SkillWeight},
		{"operations.skill_scale", &op.SkillScale, 1, 10000, d.Operations.SkillScale},
		{"operations.min_success", &op.MinSuccess, 0, 1, d.Operations.MinSuccess},
		{"operations.max_success", &op.MaxSuccess, 0, 1, d.Operations.MaxSuccess},
		{"operations.aid_strength", &op.AidStrength, 0, 1, d.Operations.AidStrength},
		{"operations.aid_trust", &op.AidTrust, 0, 1, d.Operations.AidTrust},
		{"operations.aid_secrecy_cost", &op.AidSecrecyCost, 0, 1, d.Operations.AidSecrecyCost},
		{"operations.probe_exposure_chance", &op.ProbeExposureChance, 0, 1, d.Operations.ProbeExposureChance},
		{"operations.probe_exposure_loss", &op.ProbeExposureLoss, 0, 1, d.Operations.ProbeExposureLoss},
		{"operations.probe_severity", &op.ProbeSeverity, 0, 1, d.Operations.ProbeSeverity},
		{"operations.recruit_relation_cost", &op.RecruitRelationCost, 0, 200, d.Operations.RecruitRelationCost},
		{"operations.sabotage_severity", &op.SabotageSeverity, 0, 1, d.Operations.SabotageSeverity},
		{"operations.sabotage_secrecy_loss", &op.SabotageSecrecyLoss, 0, 1, d.Operations.SabotageSecrecyLoss},
		{"operations.sabotage_leak_chance", &op.SabotageLeakChance, 0, 1, d.Operations.SabotageLeakChance},
		{"operations.counter_intel_reduction", &op.CounterIntelReduction, 0, 1, d.Operations.CounterIntelReduction},
		{"operations.counter_intel_buff", &op.CounterIntelBuff, 0, 5, d.Operations.CounterIntelBuff},

		{"betrayal.base_chance", &b.BaseChance, 0, 1, d.Betrayal.BaseChance},
		{"betrayal.trust_weight", &b.TrustWeight, 0, 1, d.Betrayal.TrustWeight},
		{"betrayal.pressure_weight", &b.PressureWeight, 0, 1, d.Betrayal.PressureWeight},
		{"betrayal.desperation_weight", &b.DesperationWeight, 0, 1, d.Betrayal.DesperationWeight},
		{"betrayal.pre_battle_bonus", &b.PreBattleBonus, 0, 1, d.Betrayal.PreBattleBonus},
		{"betrayal.max_chance", &b.MaxChance, 0, 1, d.Betrayal.MaxChance},
		{"betrayal.near_miss_margin", &b.NearMissMargin, 0, 1, d.Betrayal.NearMissMargin},
		{"betrayal.escalation_increment", &b.EscalationIncrement, 0, 1, d.Betrayal.EscalationIncrement},
		{"betrayal.escalation_cap", &b.EscalationCap, 0, 1, d.Betrayal.EscalationCap},
		{"betrayal.trust_penalty", &b.TrustPenalty, 0, 1, d.Betrayal.TrustPenalty},

		{"reveal.strength_threshold", &r.StrengthThreshold, 0, 1, d.Reveal.StrengthThreshold},
		{"reveal.secrecy_threshold", &r.SecrecyThreshold, 0, 1, d.Reveal.SecrecyThreshold},
		{"reveal.epsilon", &r.Epsilon, 0, 1, d.Reveal.Epsilon},
		{"reveal.scale", &r.Scale, 0, 100, d.Reveal.Scale},
		{"reveal.secrecy_penalty", &r.SecrecyPenalty, 0, 1, d.Reveal.SecrecyPenalty},
		{"reveal.trust_penalty", &r.TrustPenalty, 0, 1, d.Reveal.TrustPenalty},
		{"reveal.dissolve_trust", &r.DissolveTrust, 0, 1, d.Reveal.DissolveTrust},

		{"pressure.per_war", &p.PerWar, 0, 1, d.Pressure.PerWar},
		{"pressure.hostile_relation", &p.HostileRelation, 0, 1, d.Pressure.HostileRelation},
		{"pressure.poverty", &p.Poverty, 0, 1, d.Pressure.Poverty},
		{"pressure.poverty_wealth", &p.PovertyWealth, 1, 1e9, d.Pressure.PovertyWealth},
	}

	ints := []intParam{
		{"formation.candidates_per_day", &f.CandidatesPerDay, 1, 10000, d.Formation.CandidatesPerDay},
		{"formation.max_per_day", &f.MaxPerDay, 0, 100, d.Formation.MaxPerDay},
		{"formation.rejection_cooldown_days", &f.RejectionCooldownDays, 0, 3650, d.Formation.RejectionCooldownDays},
		{"formation.interaction_cooldown_days", &f.InteractionCooldown, 0, 365, d.Formation.InteractionCooldown},
		{"dynamics.aging_days", &dm.AgingDays, 1, 36500, d.Dynamics.AgingDays},
		{"trade.history_window", &t.HistoryWindow, 1, 1000, d.Trade.HistoryWindow},
		{"trade.throttle_window_days", &t.ThrottleWindowDays, 1, 365, d.Trade.ThrottleWindowDays},
		{"trade.throttle_count", &t.ThrottleCount, 1, 1000, d.Trade.ThrottleCount},
		{"leak.tenure_days", &l.TenureDays, 1, 36500, d.Leak.TenureDays},
		{"intel.retention_days", &in.RetentionDays, 1, 36500, d.Intel.RetentionDays},
		{"intel.max_per_alliance", &in.MaxPerAlliance, 1, 10000, d.Intel.MaxPerAlliance},
		{"operations.min_interval_days", &op.MinInterval, 0, 365, d.Operations.MinInterval},
		{"operations.interval_floor_days", &op.IntervalFloor, 0, 365, d.Operations.IntervalFloor},
		{"operations.counter_intel_buff_days", &op.CounterIntelBuffDays, 0, 365, d.Operations.CounterIntelBuffDays},
		{"betrayal.period_days", &b.PeriodDays, 1, 365, d.Betrayal.PeriodDays},
		{"betrayal.defection_cooldown_days", &b.DefectionCooldownDays, 0, 3650, d.Betrayal.DefectionCooldownDays},
	}

	ops := []struct {
		name string
		cur  *OperationConfig
		def  OperationConfig
	}{
		{"covert_aid", &op.CovertAid, d.Operations.CovertAid},
		{"spy_probe", &op.SpyProbe, d.Operations.SpyProbe},
		{"recruitment_feelers", &op.RecruitmentFeelers, d.Operations.RecruitmentFeelers},
		{"sabotage_raid", &op.SabotageRaid, d.Operations.SabotageRaid},
		{"counter_intel_sweep", &op.CounterIntelSweep, d.Operations.CounterIntelSweep},
	}
	for _, o := range ops {
		prefix := "operations." + o.name + "."
		floats = append(floats,
			floatParam{prefix + "difficulty", &o.cur.Difficulty, 0, 1, o.def.Difficulty},
			floatParam{prefix + "min_strength", &o.cur.MinStrength, 0, 1, o.def.MinStrength},
			floatParam{prefix + "min_secrecy", &o.cur.MinSecrecy, 0, 1, o.def.MinSecrecy},
			floatParam{prefix + "min_trust", &o.cur.MinTrust, 0, 1, o.def.MinTrust},
			floatParam{prefix + "weight", &o.cur.Weight, 0, 100, o.def.Weight},
		)
		ints = append(ints, intParam{prefix + "cooldown_days", &o.cur.CooldownDays, 0, 3650, o.def.CooldownDays})
	}

	return floats, ints
}

// sanitizePairs resets ordered pairs whose bounds cross.
func (c *Config) sanitizePairs(d *Config) []Correction {
	var out []Correction
	type pair struct {
		name       string
		lo, hi     *float64
		defLo, dHi float64
	}
	pairs := []pair{
		{"formation.initial_strength", &c.Formation.InitialStrengthMin, &c.Formation.InitialStrengthMax, d.Formation.InitialStrengthMin, d.Formation.InitialStrengthMax},
		{"formation.initial_secrecy", &c.Formation.InitialSecrecyMin, &c.Formation.InitialSecrecyMax, d.Formation.InitialSecrecyMin, d.Formation.InitialSecrecyMax},
		{"coalition.cohesion", &c.Coalition.LowCohesion, &c.Coalition.HighCohesion, d.Coalition.LowCohesion, d.Coalition.HighCohesion},
		{"intel.reliability", &c.Intel.ReliabilityMin, &c.Intel.ReliabilityMax, d.Intel.ReliabilityMin, d.Intel.ReliabilityMax},
		{"operations.success", &c.Operations.MinSuccess, &c.Operations.MaxSuccess, d.Operations.MinSuccess, d.Operations.MaxSuccess},
	}
	for _, p := range pairs {
		if *p.lo > *p.hi {
			out = append(out, Correction{Field: p.name + "_min", Got: *p.lo, Default: p.defLo})
			*p.lo, *p.hi = p.defLo, p.dHi
		}
	}
	if c.Operations.IntervalFloor > c.Operations.MinInterval {
		out = append(out, Correction{
			Field:   "operations.interval_floor_days",
			Got:     float64(c.Operations.IntervalFloor),
			Default: float64(c.Operations.MinInterval),
		})
		c.Operations.IntervalFloor = c.Operations.MinInterval
	}
	return out
}

func (c *Config) sanitizeCategoryWeights() []Correction {
	var out []Correction
	names := make([]string, 0, len(c.Intel.CategoryWeights))
	for name := range c.Intel.CategoryWeights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w := c.Intel.CategoryWeights[name]
		if math.IsNaN(w) || w < 0 || w > 10 {
			out = append(out, Correction{Field: "intel.category_weights." + name, Got: w})
			delete(c.Intel.CategoryWeights, name)
		}
	}
	return out
}
