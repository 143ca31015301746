package posterior

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// SampleBeta draws numSamples values from each count's posterior into the
// columns of a numSamples x len(counts) matrix. Columns are filled in order,
// so a fixed source always yields the same matrix.
func SampleBeta(counts []Count, numSamples int, src rand.Source) *mat.Dense {
	m := mat.NewDense(numSamples, len(counts), nil)
	for j, c := range counts {
		dist := distuv.Beta{Alpha: c.Alpha(), Beta: c.Beta(), Src: src}
		for i := 0; i < numSamples; i++ {
			m.Set(i, j, dist.Rand())
		}
	}
	return m
}
