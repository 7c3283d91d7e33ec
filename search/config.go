package search

import "time"

// DefaultBeamSize is the beam width used when Config.BeamSize is unset
// (spec §6: "BEAM_SIZE (default 20)").
const DefaultBeamSize = 20

// DefaultTimeLimit bounds a full iterative-widening search when
// Config.AutoScheduleTimeLimit is unset.
const DefaultTimeLimit = 5 * time.Second

// Config governs the beam search (spec §6's four environment-configurable
// knobs), threaded explicitly through Driver rather than read from a
// package-level global.
type Config struct {
	// RandomDropout is the percent (0-100) chance a non-best candidate is
	// discarded from the beam during trimming.
	RandomDropout int

	// RandomSeed seeds the dropout RNG; 0 selects a fixed default stream
	// rather than a time-based one.
	RandomSeed int64

	// BeamSize caps the number of states carried between expansion rounds.
	BeamSize int

	// AutoScheduleTimeLimit bounds the overall iterative-widening search.
	AutoScheduleTimeLimit time.Duration
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		RandomDropout:         1,
		RandomSeed:            0,
		BeamSize:              DefaultBeamSize,
		AutoScheduleTimeLimit: DefaultTimeLimit,
	}
}
