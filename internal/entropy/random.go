// Package entropy provides the single random source every stochastic roll
// in the simulation draws from. Seeded sources make a run reproducible;
// the crypto source is for hosts that do not care.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	mrand "math/rand/v2"
)

// Source is the random stream shared by all stages of a daily pass.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n). n must be positive.
	IntN(n int) int
}

// Seeded is a deterministic PCG stream whose state can be saved and restored.
type Seeded struct {
	pcg *mrand.PCG
	rng *mrand.Rand
}

// NewSeeded creates a deterministic source from a seed.
func NewSeeded(seed uint64) *Seeded {
	pcg := mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Seeded{pcg: pcg, rng: mrand.New(pcg)}
}

func (s *Seeded) Float64() float64 { return s.rng.Float64() }

func (s *Seeded) IntN(n int) int { return s.rng.IntN(n) }

// Read fills p from the same stream as the rolls, so identifiers drawn
// through it follow the seed and the saved stream position.
func (s *Seeded) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += 8 {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], s.rng.Uint64())
		copy(p[i:], buf[:])
	}
	return len(p), nil
}

// MarshalBinary captures the stream position for persistence.
func (s *Seeded) MarshalBinary() ([]byte, error) {
	return s.pcg.MarshalBinary()
}

// UnmarshalBinary restores a stream position saved by MarshalBinary.
func (s *Seeded) UnmarshalBinary(data []byte) error {
	if err := s.pcg.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("restore pcg state: %w", err)
	}
	return nil
}

// Scripted replays a fixed list of floats, then repeats the last one.
// Tests use it to force a roll to succeed or fail.
type Scripted struct {
	values []float64
	pos    int
}

// NewScripted creates a source that yields values in order.
func NewScripted(values ...float64) *Scripted {
	if len(values) == 0 {
		values = []float64{0.5}
	}
	return &Scripted{values: values}
}

// Always returns a source that yields v forever. Always(0) makes every
// chance-based roll succeed; Always(0.999) makes them fail.
func Always(v float64) *Scripted {
	return NewScripted(v)
}

// Push appends further values to the script.
func (s *Scripted) Push(values ...float64) {
	s.values = append(s.values, values...)
}

func (s *Scripted) Float64() float64 {
	v := s.values[min(s.pos, len(s.values)-1)]
	s.pos++
	return v
}

func (s *Scripted) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return min(int(s.Float64()*float64(n)), n-1)
}

// Drawn reports how many values have been consumed.
func (s *Scripted) Drawn() int { return s.pos }

// Crypto draws from crypto/rand. It is not reproducible.
type Crypto struct{}

func (Crypto) Float64() float64 { return cryptoRandFloat() }

func (Crypto) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return min(int(cryptoRandFloat()*float64(n)), n-1)
}

// IDReader returns the byte stream identifiers should be drawn from.
// Sources that can produce bytes themselves are used directly; scripted
// and crypto sources fall back to crypto/rand so scripts are not consumed.
func IDReader(src Source) io.Reader {
	if r, ok := src.(io.Reader); ok {
		return r
	}
	return rand.Reader
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Uniform returns a value in [lo, hi) drawn from src.
func Uniform(src Source, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + src.Float64()*(hi-lo)
}

// Chance reports whether a roll against probability p succeeds.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

// Weighted picks an index with probability proportional to weights.
// Non-positive weights are never picked; returns -1 if all are.
func Weighted(src Source, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	r := src.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if r < w {
			return i
		}
		r -= w
	}
	return last
}
