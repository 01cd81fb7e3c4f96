package random

import (
	"math"

	"pgregory.net/rand"
)

// DefaultJitter is the fractional spread applied around the nominal interval.
const DefaultJitter = 0.05

// Source is the subset of a generator the Engine draws from.
// *rand.Rand from pgregory.net/rand satisfies it.
type Source interface {
	Float64() float64
	Int63n(n int64) int64
}

// Engine supplies the uniform draws used for scheduling and loss simulation.
type Engine struct {
	src Source
}

// New returns an Engine seeded from a non-deterministic source.
func New() *Engine {
	return &Engine{src: rand.New()}
}

// NewSeeded returns a reproducible Engine.
func NewSeeded(seed uint64) *Engine {
	return &Engine{src: rand.New(seed)}
}

// FromSource wraps an arbitrary Source.
func FromSource(src Source) *Engine {
	return &Engine{src: src}
}

// Between returns a uniform integer in [lo, hi]. If hi < lo it returns lo.
func (e *Engine) Between(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + e.src.Int63n(hi-lo+1)
}

// Jitter returns a uniform integer in
// [ceil(interval*(1-jitter)), floor(interval*(1+jitter))].
func (e *Engine) Jitter(interval int64, jitter float64) int64 {
	lo, hi := JitterBounds(interval, jitter)
	return e.Between(lo, hi)
}

// Float64 returns a uniform value in [0, 1).
func (e *Engine) Float64() float64 {
	return e.src.Float64()
}

// JitterBounds computes the inclusive integer range used by Jitter. Bounds
// are rounded inwards so every draw stays within the real-valued window.
func JitterBounds(interval int64, jitter float64) (int64, int64) {
	lo := int64(math.Ceil(float64(interval) * (1 - jitter)))
	hi := int64(math.Floor(float64(interval) * (1 + jitter)))
	if hi < lo {
		return interval, interval
	}
	return lo, hi
}
