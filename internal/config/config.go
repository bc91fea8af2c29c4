// Package config holds every tunable number of the alliance simulation.
//
// A Config is built once (defaults, then an optional YAML file), sanitized,
// and handed to the engine by value. Nothing mutates it afterwards.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete parameter set, grouped by subsystem.
type Config struct {
	Formation  FormationConfig  `yaml:"formation"`
	Dynamics   DynamicsConfig   `yaml:"dynamics"`
	Coalition  CoalitionConfig  `yaml:"coalition"`
	Trade      TradeConfig      `yaml:"trade"`
	Leak       LeakConfig       `yaml:"leak"`
	Intel      IntelConfig      `yaml:"intel"`
	Operations OperationsConfig `yaml:"operations"`
	Betrayal   BetrayalConfig   `yaml:"betrayal"`
	Reveal     RevealConfig     `yaml:"reveal"`
	Pressure   PressureConfig   `yaml:"pressure"`
}

// FormationConfig governs daily creation of new alliances.
type FormationConfig struct {
	BaseChance            float64 `yaml:"base_chance"`
	MutualEnemyWeight     float64 `yaml:"mutual_enemy_weight"`
	EconomicWeight        float64 `yaml:"economic_weight"`
	MilitaryWeight        float64 `yaml:"military_weight"`
	PressureWeight        float64 `yaml:"pressure_weight"`
	MaxChance             float64 `yaml:"max_chance"`
	CandidatesPerDay      int     `yaml:"candidates_per_day"`
	MaxPerDay             int     `yaml:"max_per_day"`
	RejectionCooldownDays int     `yaml:"rejection_cooldown_days"`
	InitialStrengthMin    float64 `yaml:"initial_strength_min"`
	InitialStrengthMax    float64 `yaml:"initial_strength_max"`
	InitialSecrecyMin     float64 `yaml:"initial_secrecy_min"`
	InitialSecrecyMax     float64 `yaml:"initial_secrecy_max"`
	InitialTrust          float64 `yaml:"initial_trust"`
	TradePactChance       float64 `yaml:"trade_pact_chance"`
	MilitaryPactChance    float64 `yaml:"military_pact_chance"`
	InteractionCooldown   int     `yaml:"interaction_cooldown_days"`
}

// DynamicsConfig governs organic daily change.
type DynamicsConfig struct {
	SecrecyDecay           float64 `yaml:"secrecy_decay"`
	StrengthGrowth         float64 `yaml:"strength_growth"`
	LowCohesionDecayMult   float64 `yaml:"low_cohesion_decay_mult"`
	HighCohesionDecayMult  float64 `yaml:"high_cohesion_decay_mult"`
	HighCohesionGrowthMult float64 `yaml:"high_cohesion_growth_mult"`
	MaxDailyDelta          float64 `yaml:"max_daily_delta"`
	SuspicionDecay         float64 `yaml:"suspicion_decay"`
	AgingDays              int     `yaml:"aging_days"`
	AgingStrengthFloor     float64 `yaml:"aging_strength_floor"`
	AgingTrustFloor        float64 `yaml:"aging_trust_floor"`
	AgingDissolveChance    float64 `yaml:"aging_dissolve_chance"`
}

// CoalitionConfig governs coalition cohesion.
type CoalitionConfig struct {
	StrengthWeight float64 `yaml:"strength_weight"`
	SecrecyWeight  float64 `yaml:"secrecy_weight"`
	LowCohesion    float64 `yaml:"low_cohesion"`
	HighCohesion   float64 `yaml:"high_cohesion"`
}

// TradeConfig governs wealth transfers between allied factions.
type TradeConfig struct {
	TransferRate       float64 `yaml:"transfer_rate"`
	MaxGapFraction     float64 `yaml:"max_gap_fraction"`
	VolatilityBand     float64 `yaml:"volatility_band"`
	ReserveFloor       float64 `yaml:"reserve_floor"`
	MinTransfer        float64 `yaml:"min_transfer"`
	HistoryWindow      int     `yaml:"history_window"`
	ThrottleWindowDays int     `yaml:"throttle_window_days"`
	ThrottleCount      int     `yaml:"throttle_count"`
	HighPercentile     float64 `yaml:"high_percentile"`
	IntelPercentile    float64 `yaml:"intel_percentile"`
	TrustGain          float64 `yaml:"trust_gain"`
	TrustSaturation    float64 `yaml:"trust_saturation"`
	SecrecyCost        float64 `yaml:"secrecy_cost"`
}

// LeakConfig governs the daily leak roll.
type LeakConfig struct {
	BaseChance           float64 `yaml:"base_chance"`
	SecrecyWeight        float64 `yaml:"secrecy_weight"`
	MemberWeight         float64 `yaml:"member_weight"`
	TrustWeight          float64 `yaml:"trust_weight"`
	TradeSurcharge       float64 `yaml:"trade_surcharge"`
	MilitarySurcharge    float64 `yaml:"military_surcharge"`
	WarRisk              float64 `yaml:"war_risk"`
	TenureDays           int     `yaml:"tenure_days"`
	TenureDiscount       float64 `yaml:"tenure_discount"`
	AttemptEscalation    float64 `yaml:"attempt_escalation"`
	EscalationCap        float64 `yaml:"escalation_cap"`
	Steepness            float64 `yaml:"steepness"`
	Midpoint             float64 `yaml:"midpoint"`
	MaxChance            float64 `yaml:"max_chance"`
	SecrecyLoss          float64 `yaml:"secrecy_loss"`
	SuspicionGain        float64 `yaml:"suspicion_gain"`
	HonorWeight          float64 `yaml:"honor_weight"`
	CalculatingWeight    float64 `yaml:"calculating_weight"`
	MinPropensity        float64 `yaml:"min_propensity"`
	SeverityBase         float64 `yaml:"severity_base"`
	SeverityStrength     float64 `yaml:"severity_strength"`
	SeverityDistrust     float64 `yaml:"severity_distrust"`
	WarSeverity          float64 `yaml:"war_severity"`
	CrossKingdomSeverity float64 `yaml:"cross_kingdom_severity"`
}

// IntelConfig governs intelligence records.
type IntelConfig struct {
	ReliabilityMin     float64            `yaml:"reliability_min"`
	ReliabilityMax     float64            `yaml:"reliability_max"`
	DecayRate          float64            `yaml:"decay_rate"`
	ReliabilityFloor   float64            `yaml:"reliability_floor"`
	RetentionDays      int                `yaml:"retention_days"`
	RecencyFloor       float64            `yaml:"recency_floor"`
	MaxPerAlliance     int                `yaml:"max_per_alliance"`
	VisibleReliability float64            `yaml:"visible_reliability"`
	VisibleSeverity    float64            `yaml:"visible_severity"`
	CategoryWeights    map[string]float64 `yaml:"category_weights"`
}

// OperationConfig describes one covert operation kind.
type OperationConfig struct {
	CooldownDays int     `yaml:"cooldown_days"`
	Difficulty   float64 `yaml:"difficulty"`
	MinStrength  float64 `yaml:"min_strength"`
	MinSecrecy   float64 `yaml:"min_secrecy"`
	MinTrust     float64 `yaml:"min_trust"`
	Weight       float64 `yaml:"weight"`
}

// OperationsConfig governs the scheduler and the five operation kinds.
type OperationsConfig struct {
	LaunchChance          float64 `yaml:"launch_chance"`
	MinInterval           int     `yaml:"min_interval_days"`
	IntervalFloor         int     `yaml:"interval_floor_days"`
	PressureThreshold     float64 `yaml:"pressure_threshold"`
	PressureIntervalMult  float64 `yaml:"pressure_interval_mult"`
	TrustThreshold        float64 `yaml:"trust_threshold"`
	TrustIntervalMult     float64 `yaml:"trust_interval_mult"`
	TrustWeight           float64 `yaml:"trust_weight"`
	StrengthWeight        float64 `yaml:"strength_weight"`
	SkillWeight           float64 `yaml:"skill_weight"`
	SkillScale            float64 `yaml:"skill_scale"`
	MinSuccess            float64 `yaml:"min_success"`
	MaxSuccess            float64 `yaml:"max_success"`
	AidStrength           float64 `yaml:"aid_strength"`
	AidTrust              float64 `yaml:"aid_trust"`
	AidSecrecyCost        float64 `yaml:"aid_secrecy_cost"`
	ProbeExposureChance   float64 `yaml:"probe_exposure_chance"`
	ProbeExposureLoss     float64 `yaml:"probe_exposure_loss"`
	ProbeSeverity         float64 `yaml:"probe_severity"`
	RecruitRelationCost   float64 `yaml:"recruit_relation_cost"`
	SabotageSeverity      float64 `yaml:"sabotage_severity"`
	SabotageSecrecyLoss   float64 `yaml:"sabotage_secrecy_loss"`
	SabotageLeakChance    float64 `yaml:"sabotage_leak_chance"`
	CounterIntelReduction float64 `yaml:"counter_intel_reduction"`
	CounterIntelBuff      float64 `yaml:"counter_intel_buff"`
	CounterIntelBuffDays  int     `yaml:"counter_intel_buff_days"`

	CovertAid          OperationConfig `yaml:"covert_aid"`
	SpyProbe           OperationConfig `yaml:"spy_probe"`
	RecruitmentFeelers OperationConfig `yaml:"recruitment_feelers"`
	SabotageRaid       OperationConfig `yaml:"sabotage_raid"`
	CounterIntelSweep  OperationConfig `yaml:"counter_intel_sweep"`
}

// BetrayalConfig governs defection evaluation.
type BetrayalConfig struct {
	PeriodDays            int     `yaml:"period_days"`
	BaseChance            float64 `yaml:"base_chance"`
	TrustWeight           float64 `yaml:"trust_weight"`
	PressureWeight        float64 `yaml:"pressure_weight"`
	DesperationWeight     float64 `yaml:"desperation_weight"`
	PreBattleBonus        float64 `yaml:"pre_battle_bonus"`
	MaxChance             float64 `yaml:"max_chance"`
	NearMissMargin        float64 `yaml:"near_miss_margin"`
	EscalationIncrement   float64 `yaml:"escalation_increment"`
	EscalationCap         float64 `yaml:"escalation_cap"`
	DefectionCooldownDays int     `yaml:"defection_cooldown_days"`
	TrustPenalty          float64 `yaml:"trust_penalty"`
}

// RevealConfig governs the forced reveal of overgrown alliances.
type RevealConfig struct {
	StrengthThreshold float64 `yaml:"strength_threshold"`
	SecrecyThreshold  float64 `yaml:"secrecy_threshold"`
	Epsilon           float64 `yaml:"epsilon"`
	Scale             float64 `yaml:"scale"`
	SecrecyPenalty    float64 `yaml:"secrecy_penalty"`
	TrustPenalty      float64 `yaml:"trust_penalty"`
	DissolveTrust     float64 `yaml:"dissolve_trust"`
}

// PressureConfig turns world state into a political pressure value in [0, 1].
type PressureConfig struct {
	PerWar          float64 `yaml:"per_war"`
	HostileRelation float64 `yaml:"hostile_relation"`
	Poverty         float64 `yaml:"poverty"`
	PovertyWealth   float64 `yaml:"poverty_wealth"`
}

// Default returns the documented safe defaults.
func Default() Config {
	return Config{
		Formation: FormationConfig{
			BaseChance:            0.02,
			MutualEnemyWeight:     0.10,
			EconomicWeight:        0.05,
			MilitaryWeight:        0.05,
			PressureWeight:        0.06,
			MaxChance:             0.30,
			CandidatesPerDay:      40,
			MaxPerDay:             3,
			RejectionCooldownDays: 30,
			InitialStrengthMin:    0.10,
			InitialStrengthMax:    0.30,
			InitialSecrecyMin:     0.75,
			InitialSecrecyMax:     0.95,
			InitialTrust:          0.50,
			TradePactChance:       0.50,
			MilitaryPactChance:    0.30,
			InteractionCooldown:   3,
		},
		Dynamics: DynamicsConfig{
			SecrecyDecay:           0.004,
			StrengthGrowth:         0.003,
			LowCohesionDecayMult:   1.5,
			HighCohesionDecayMult:  0.5,
			HighCohesionGrowthMult: 1.5,
			MaxDailyDelta:          0.05,
			SuspicionDecay:         0.01,
			AgingDays:              540,
			AgingStrengthFloor:     0.2,
			AgingTrustFloor:        0.2,
			AgingDissolveChance:    0.02,
		},
		Coalition: CoalitionConfig{
			StrengthWeight: 0.6,
			SecrecyWeight:  0.4,
			LowCohesion:    0.35,
			HighCohesion:   0.65,
		},
		Trade: TradeConfig{
			TransferRate:       0.02,
			MaxGapFraction:     0.10,
			VolatilityBand:     0.25,
			ReserveFloor:       2000,
			MinTransfer:        1,
			HistoryWindow:      20,
			ThrottleWindowDays: 10,
			ThrottleCount:      3,
			HighPercentile:     0.80,
			IntelPercentile:    0.60,
			TrustGain:          0.01,
			TrustSaturation:    50000,
			SecrecyCost:        0.01,
		},
		Leak: LeakConfig{
			BaseChance:           0.02,
			SecrecyWeight:        0.6,
			MemberWeight:         0.05,
			TrustWeight:          0.3,
			TradeSurcharge:       0.10,
			MilitarySurcharge:    0.15,
			WarRisk:              0.10,
			TenureDays:           360,
			TenureDiscount:       0.05,
			AttemptEscalation:    0.0005,
			EscalationCap:        0.15,
			Steepness:            8,
			Midpoint:             0.6,
			MaxChance:            0.35,
			SecrecyLoss:          0.04,
			SuspicionGain:        0.15,
			HonorWeight:          0.25,
			CalculatingWeight:    0.15,
			MinPropensity:        0.1,
			SeverityBase:         0.1,
			SeverityStrength:     0.4,
			SeverityDistrust:     0.2,
			WarSeverity:          0.30,
			CrossKingdomSeverity: 0.15,
		},
		Intel: IntelConfig{
			ReliabilityMin:     0.4,
			ReliabilityMax:     0.9,
			DecayRate:          0.005,
			ReliabilityFloor:   0.05,
			RetentionDays:      180,
			RecencyFloor:       0.1,
			MaxPerAlliance:     25,
			VisibleReliability: 0.6,
			VisibleSeverity:    0.5,
		},
		Operations: OperationsConfig{
			LaunchChance:          0.15,
			MinInterval:           10,
			IntervalFloor:         3,
			PressureThreshold:     0.6,
			PressureIntervalMult:  0.5,
			TrustThreshold:        0.7,
			TrustIntervalMult:     0.75,
			TrustWeight:           0.3,
			StrengthWeight:        0.2,
			SkillWeight:           0.2,
			SkillScale:            300,
			MinSuccess:            0.05,
			MaxSuccess:            0.95,
			AidStrength:           0.03,
			AidTrust:              0.02,
			AidSecrecyCost:        0.01,
			ProbeExposureChance:   0.4,
			ProbeExposureLoss:     0.03,
			ProbeSeverity:         0.5,
			RecruitRelationCost:   10,
			SabotageSeverity:      0.85,
			SabotageSecrecyLoss:   0.08,
			SabotageLeakChance:    0.5,
			CounterIntelReduction: 0.5,
			CounterIntelBuff:      0.15,
			CounterIntelBuffDays:  14,
			CovertAid:             OperationConfig{CooldownDays: 15, Difficulty: 0.30, MinStrength: 0.05, MinSecrecy: 0.20, MinTrust: 0.30, Weight: 3},
			SpyProbe:              OperationConfig{CooldownDays: 20, Difficulty: 0.45, MinStrength: 0.20, MinSecrecy: 0.40, MinTrust: 0.30, Weight: 2},
			RecruitmentFeelers:    OperationConfig{CooldownDays: 30, Difficulty: 0.50, MinStrength: 0.30, MinSecrecy: 0.40, MinTrust: 0.50, Weight: 1.5},
			SabotageRaid:          OperationConfig{CooldownDays: 45, Difficulty: 0.65, MinStrength: 0.50, MinSecrecy: 0.50, MinTrust: 0.40, Weight: 1},
			CounterIntelSweep:     OperationConfig{CooldownDays: 25, Difficulty: 0.40, MinStrength: 0.15, MinSecrecy: 0.00, MinTrust: 0.25, Weight: 2},
		},
		Betrayal: BetrayalConfig{
			PeriodDays:            7,
			BaseChance:            0.01,
			TrustWeight:           0.10,
			PressureWeight:        0.05,
			DesperationWeight:     0.05,
			PreBattleBonus:        0.10,
			MaxChance:             0.60,
			NearMissMargin:        0.05,
			EscalationIncrement:   0.02,
			EscalationCap:         0.06,
			DefectionCooldownDays: 30,
			TrustPenalty:          0.05,
		},
		Reveal: RevealConfig{
			StrengthThreshold: 0.8,
			SecrecyThreshold:  0.2,
			Epsilon:           0.05,
			Scale:             4,
			SecrecyPenalty:    0.05,
			TrustPenalty:      0.05,
			DissolveTrust:     0.15,
		},
		Pressure: PressureConfig{
			PerWar:          0.25,
			HostileRelation: 0.3,
			Poverty:         0.2,
			PovertyWealth:   5000,
		},
	}
}

// Load reads a YAML file over the defaults and sanitizes the result.
// A missing file is not an error. The corrections list names every
// parameter that was replaced by its default.
func Load(path string) (Config, []Correction, error) {
	cfg := Default()
	if path == "" {
		corrections := cfg.Sanitize()
		return cfg, corrections, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Sanitize(), nil
		}
		return cfg, nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Sanitize(), nil
}

// Parse decodes YAML bytes over the defaults and sanitizes the result.
func Parse(data []byte) (Config, []Correction, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Sanitize(), nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Operation returns the per-kind settings by index, in the order
// CovertAid, SpyProbe, RecruitmentFeelers, SabotageRaid, CounterIntelSweep.
func (c OperationsConfig) Operation(i int) OperationConfig {
	switch i {
	case 0:
		return c.CovertAid
	case 1:
		return c.SpyProbe
	case 2:
		return c.RecruitmentFeelers
	case 3:
		return c.SabotageRaid
	default:
		return c.CounterIntelSweep
	}
}
