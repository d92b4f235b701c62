package rand

import (
	exprand "golang.org/x/exp/rand"
)

// Random is the only source of randomness used by the simulated network,
// so a seed fully determines a simulation run.
type Random interface {
	// Generates a boolean with probability `p` of it being true.
	GenBool(p float64) bool

	// Generates a number in [min, max). Returns min when the range is empty.
	GenBetween(min, max uint64) uint64

	// Generates a float in [min, max).
	GenFloat64Between(min, max float64) float64
}

type DefaultRandom struct {
	seed uint64
	rand *exprand.Rand
}

func NewRand(seed uint64) *DefaultRandom {
	return &DefaultRandom{
		seed: seed,
		rand: exprand.New(exprand.NewSource(seed)),
	}
}

func (rand *DefaultRandom) Seed() uint64 {
	return rand.seed
}

// Generates a boolean with probability `p` of it being true.
func (rand *DefaultRandom) GenBool(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rand.rand.Float64() < p
}

func (rand *DefaultRandom) GenBetween(min, max uint64) uint64 {
	if max <= min {
		return min
	}
	return min + rand.rand.Uint64n(max-min)
}

func (rand *DefaultRandom) GenFloat64Between(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rand.rand.Float64()*(max-min)
}

// Picks a random element of xs. Returns false when xs is empty.
func Choose[T any](rand Random, xs []T) (T, bool) {
	if len(xs) == 0 {
		var zeroValue T
		return zeroValue, false
	}

	index := rand.GenBetween(0, uint64(len(xs)))

	return xs[int(index)], true
}
