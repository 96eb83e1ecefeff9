package evo

import (
	"math/rand"

	"github.com/google/uuid"
)

// newGenomeID derives a v4 UUID from the engine's random source so that ids are
// reproducible for a given seed.
func newGenomeID(rng *rand.Rand) string {
	return uuid.Must(uuid.NewRandomFromReader(rng)).String()
}

func clamp(v, lo, hi float64) float64 {
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampUnit(v float64) float64 {
	return clamp(v, 0, 1)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
