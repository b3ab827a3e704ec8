package production

import (
	"math/rand/v2"
	"sync"
)

// RNG is the randomness source for chance rolls. Float64 returns a value in [0, 1).
type RNG interface {
	Float64() float64
}

// NewRNG returns a goroutine-safe RNG seeded from seed.
func NewRNG(seed uint64) RNG {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Fixed always returns the same roll. Tests use Fixed(0.99) to make every
// reasonable chance fail and Fixed(0) to make every positive chance succeed.
type Fixed float64

func (f Fixed) Float64() float64 { return float64(f) }

// Sequence replays rolls in order, repeating the last one when exhausted.
type Sequence struct {
	mu    sync.Mutex
	rolls []float64
	i     int
}

func NewSequence(rolls ...float64) *Sequence { return &Sequence{rolls: rolls} }

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rolls) == 0 {
		return 0
	}
	if s.i >= len(s.rolls) {
		return s.rolls[len(s.rolls)-1]
	}
	v := s.rolls[s.i]
	s.i++
	return v
}
