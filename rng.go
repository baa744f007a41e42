package qnetsim

import "math/rand"

// RNG is a seeded pseudo-random source threaded explicitly through the
// simulator and into every component that needs randomness (heralding loss
// draws, swap-success draws). There is no package-level global: every
// simulation run owns its own handle, so two runs with the same seed are
// reproducible regardless of what else is running in the process.
type RNG struct {
	r *rand.Rand
}

// NewRNG seeds a new RNG handle.
func NewRNG(seed int64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a pseudo-random number in [0,1).
func (g *RNG) Float64() float64 {
	return g.r.Float64()
}

// Bernoulli reports success with probability p (p is clamped to [0,1]).
func (g *RNG) Bernoulli(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return g.r.Float64() < p
}

// Geometric draws a sample from a Geometric(p) distribution (number of
// attempts, minimum 1, until the first success), used by tests and analytic
// tooling that wants to cross-check the LL's attempt loop against the
// closed-form success probability.
func (g *RNG) Geometric(p float64) int {
	if p <= 0 {
		return 1
	}
	if p >= 1 {
		return 1
	}
	k := 1
	for !g.Bernoulli(p) {
		k++
	}
	return k
}
