package rng

import (
	"math/rand/v2"

	"gotrial/ports"
)

// PCGAdapter implements ports.RNGPort with PCG streams
type PCGAdapter struct{}

// NewPCGAdapter creates the default RNG adapter
func NewPCGAdapter() *PCGAdapter {
	return &PCGAdapter{}
}

// Stream seeds PCG with (baseSeed+stage, purpose), so two purposes of the same
// stage never share a sequence.
func (a *PCGAdapter) Stream(baseSeed int64, stage int, purpose ports.StreamPurpose) *rand.Rand {
	stageSeed := uint64(baseSeed + int64(stage))
	return rand.New(rand.NewPCG(stageSeed, mix(uint64(purpose))))
}

// AmbientSeed draws a seed from the runtime-seeded global source
func (a *PCGAdapter) AmbientSeed() int64 {
	return rand.Int64()
}

// mix is the splitmix64 finalizer; it spreads small purpose tags over the word.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
