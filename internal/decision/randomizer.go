package decision

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"gotrial/domain/core"
	"gotrial/domain/trial"
)

// UniformAllocation spreads a stage evenly over all doses
func UniformAllocation(numDoses int) []float64 {
	alloc := make([]float64, numDoses)
	for i := range alloc {
		alloc[i] = 1 / float64(numDoses)
	}
	return alloc
}

// Allocate turns admissible utilities into next-stage probabilities:
// U(d)/sum over the admissible set, zero elsewhere, uniform over the set when
// every utility is zero. An empty set yields all zeros.
func Allocate(admissible trial.AdmissibleSet, utilities []float64, numDoses int) ([]float64, error) {
	if len(utilities) != numDoses {
		return nil, fmt.Errorf("%w: %d utilities for %d doses", core.ErrDimensionMismatch, len(utilities), numDoses)
	}
	alloc := make([]float64, numDoses)
	if admissible.IsEmpty() {
		return alloc, nil
	}

	for _, d := range admissible {
		if !d.Valid(numDoses) {
			return nil, core.NewValidationError("admissible", fmt.Sprintf("dose %d out of range", int(d)))
		}
		u := utilities[d.Index()]
		if u < 0 || math.IsNaN(u) || math.IsInf(u, 0) {
			return nil, fmt.Errorf("%w: utility %g at dose %d", core.ErrNumericFault, u, int(d))
		}
		alloc[d.Index()] = u
	}

	total := floats.Sum(alloc)
	if total <= 0 {
		for _, d := range admissible {
			alloc[d.Index()] = 1 / float64(len(admissible))
		}
		return alloc, nil
	}
	floats.Scale(1/total, alloc)
	return alloc, nil
}

// AssignCohort randomizes n patients to doses with a multinomial draw from
// alloc and returns the per-dose counts.
func AssignCohort(alloc []float64, n int, rng *rand.Rand) ([]int, error) {
	if n < 0 {
		return nil, core.NewValidationError("cohort", fmt.Sprintf("negative cohort size %d", n))
	}
	if floats.Sum(alloc) <= 0 {
		return nil, fmt.Errorf("%w: allocation has no mass", core.ErrEmptyAdmissible)
	}

	var src rand.Source
	if rng != nil {
		src = rng
	}
	dist := distuv.NewCategorical(alloc, src)
	counts := make([]int, len(alloc))
	for i := 0; i < n; i++ {
		counts[int(dist.Rand())]++
	}
	return counts, nil
}
