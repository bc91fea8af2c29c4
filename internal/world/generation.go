// World generation using layered simplex noise.
// Lays kingdoms and their factions out on a spiral, samples wealth, military
// strength and leader personality from independent noise layers, then derives
// wars and leader relations from kingdom proximity.
package world

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// growthAngle spaces factions on the spiral (phyllotaxis) so neighbours differ.
const growthAngle = 137.5077 * math.Pi / 180

// GenConfig holds world generation parameters.
type GenConfig struct {
	Seed               int64   // Random seed (0 = random)
	Kingdoms           int     // Number of kingdoms
	FactionsPerKingdom int     // Factions inside each kingdom
	Independents       int     // Factions with no kingdom
	BaseWealth         float64 // Median faction wealth
	WarThreshold       float64 // Noise level above which neighbouring kingdoms fight (0.0–1.0)
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Kingdoms:           5,
		FactionsPerKingdom: 6,
		Independents:       4,
		BaseWealth:         20000,
		WarThreshold:       0.55,
	}
}

// SmallTestConfig returns a tiny world for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Seed:               42,
		Kingdoms:           2,
		FactionsPerKingdom: 3,
		Independents:       1,
		BaseWealth:         10000,
		WarThreshold:       0.4,
	}
}

var factionNames = []string{
	"Ashwood", "Brightwater", "Coldmere", "Dunmarch", "Emberfall", "Frosthold",
	"Greyhelm", "Hollowmere", "Ironvale", "Jadecrest", "Kestrel", "Longbarrow",
	"Mistfen", "Northwatch", "Oakhaven", "Pinecrag", "Quillmoor", "Ravenmoor",
	"Stonebridge", "Thornfield", "Umberlee", "Valewind", "Westreach", "Yarrow",
}

// Generate creates a complete world of kingdoms, factions and leaders.
func Generate(cfg GenConfig) *Static {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	// Independent noise generators per layer.
	wealthNoise := opensimplex.NewNormalized(seed)
	militaryNoise := opensimplex.NewNormalized(seed + 1)
	traitNoise := opensimplex.NewNormalized(seed + 2)
	skillNoise := opensimplex.NewNormalized(seed + 3)
	warNoise := opensimplex.NewNormalized(seed + 4)

	w := NewStatic()

	type placed struct {
		faction Faction
		x, y    float64
	}
	var all []placed

	nextID := FactionID(1)
	addFaction := func(kingdom KingdomID, kx, ky float64, idx int) {
		id := nextID
		nextID++

		// Factions cluster around their kingdom's seat.
		angle := float64(id) * growthAngle
		x := kx + math.Cos(angle)*1.5*float64(idx+1)/float64(cfg.FactionsPerKingdom+1)
		y := ky + math.Sin(angle)*1.5*float64(idx+1)/float64(cfg.FactionsPerKingdom+1)

		wealth := octaveNoise(wealthNoise, x, y, 3, 0.3, 0.5)
		military := octaveNoise(militaryNoise, x, y, 3, 0.3, 0.5)

		name := factionNames[int(id-1)%len(factionNames)]
		if int(id) > len(factionNames) {
			name = fmt.Sprintf("%s %d", name, int(id-1)/len(factionNames)+1)
		}

		leaderID := AgentID(1000 + uint64(id))
		f := Faction{
			ID:               id,
			Name:             name,
			Kingdom:          kingdom,
			Wealth:           math.Round(cfg.BaseWealth * (0.25 + 1.5*wealth)),
			MilitaryStrength: math.Round(100 + 900*military),
			LeaderID:         leaderID,
		}
		leader := Leader{
			ID:   leaderID,
			Name: fmt.Sprintf("Lord of %s", name),
			Traits: Traits{
				Honor:       traitLevel(traitNoise, x, y, 0),
				Calculating: traitLevel(traitNoise, x, y, 10),
				Generosity:  traitLevel(traitNoise, x, y, 20),
				Mercy:       traitLevel(traitNoise, x, y, 30),
			},
			Skills: Skills{
				Leadership: skillLevel(skillNoise, x, y, 0),
				Tactics:    skillLevel(skillNoise, x, y, 10),
				Roguery:    skillLevel(skillNoise, x, y, 20),
			},
		}
		w.AddFaction(f, leader)
		all = append(all, placed{faction: f, x: x, y: y})
	}

	seats := make([][2]float64, cfg.Kingdoms)
	for k := range cfg.Kingdoms {
		angle := float64(k+1) * growthAngle
		r := 3 * math.Sqrt(float64(k+1))
		seats[k] = [2]float64{math.Cos(angle) * r, math.Sin(angle) * r}
		for i := range cfg.FactionsPerKingdom {
			addFaction(KingdomID(k+1), seats[k][0], seats[k][1], i)
		}
	}
	for i := range cfg.Independents {
		angle := float64(i+1) * growthAngle * 3
		addFaction(0, math.Cos(angle)*8, math.Sin(angle)*8, i)
	}

	// Wars: nearby kingdoms with high friction noise fight.
	for a := range cfg.Kingdoms {
		for b := a + 1; b < cfg.Kingdoms; b++ {
			mx := (seats[a][0] + seats[b][0]) / 2
			my := (seats[a][1] + seats[b][1]) / 2
			dist := math.Hypot(seats[a][0]-seats[b][0], seats[a][1]-seats[b][1])
			friction := warNoise.Eval2(mx*0.4, my*0.4) + 0.2/(1+dist)
			if friction > cfg.WarThreshold {
				w.SetWar(KingdomID(a+1), KingdomID(b+1), true)
			}
		}
	}

	// Leader relations: fellow subjects lean friendly, enemies hostile.
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			fa, fb := all[i].faction, all[j].faction
			base := (warNoise.Eval2(all[i].x+all[j].y, all[i].y-all[j].x) - 0.5) * 60
			switch {
			case SameKingdom(fa, fb):
				base += 25
			case Hostile(w, fa, fb):
				base -= 40
			}
			w.SetRelation(fa.LeaderID, fb.LeaderID, math.Round(base))
		}
	}

	return w
}

// octaveNoise sums several noise octaves and normalizes back to [0, 1).
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for range octaves {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// traitLevel maps a noise sample to a trait level in [-2, 2].
func traitLevel(noise opensimplex.Noise, x, y, offset float64) int {
	v := noise.Eval2(x+offset, y-offset)
	return int(math.Round(v*4)) - 2
}

// skillLevel maps a noise sample to a skill level in [10, 300].
func skillLevel(noise opensimplex.Noise, x, y, offset float64) int {
	v := noise.Eval2(x*0.7+offset, y*0.7+offset)
	return 10 + int(v*290)
}
