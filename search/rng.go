package search

// Package search - RNG utilities for deterministic beam-trim dropout.
//
// Goals:
//   - Determinism: same seed => identical dropout decisions across runs.
//   - No time-based sources: every randomized decision traces back to
//     Config.RandomSeed.

import "math/rand"

// defaultRNGSeed is the fixed "zero" seed used when Config.RandomSeed==0.
const defaultRNGSeed int64 = 1

// rngFromSeed returns a deterministic *rand.Rand. seed==0 selects
// defaultRNGSeed rather than an unseeded (time-based) source.
func rngFromSeed(seed int64) *rand.Rand {
	s := seed
	if s == 0 {
		s = defaultRNGSeed
	}
	return rand.New(rand.NewSource(s))
}
