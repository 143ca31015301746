package ports

import (
	"math/rand/v2"
)

// StreamPurpose separates the random consumers inside one stage
type StreamPurpose uint64

const (
	StreamAllocation StreamPurpose = iota + 1
	StreamOutcomes
	StreamPosterior
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream returns the stream for one stage and purpose. The stage seed is
	// baseSeed + stage, so equal inputs always replay the same draws.
	Stream(baseSeed int64, stage int, purpose StreamPurpose) *rand.Rand

	// AmbientSeed draws a fresh base seed when the caller supplied none
	AmbientSeed() int64
}
