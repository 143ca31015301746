package posterior

import (
	"gotrial/domain/trial"
)

// Beta(1,1) prior pseudo-counts
const (
	PriorAlpha = 1.0
	PriorBeta  = 1.0
)

// Count is the success/trial tally of one dose or dose x group cell
type Count struct {
	Dose      trial.DoseLevel
	Group     int
	Successes int
	Trials    int
}

// Alpha is the posterior Beta shape r+1
func (c Count) Alpha() float64 { return float64(c.Successes) + PriorAlpha }

// Beta is the posterior Beta shape n-r+1
func (c Count) Beta() float64 { return float64(c.Trials-c.Successes) + PriorBeta }

// Mean is the closed-form posterior mean
func (c Count) Mean() float64 {
	a, b := c.Alpha(), c.Beta()
	return a / (a + b)
}

// Variance is the closed-form posterior variance
func (c Count) Variance() float64 {
	a, b := c.Alpha(), c.Beta()
	s := a + b
	return a * b / (s * s * (s + 1))
}

// Aggregate tallies an endpoint per dose. Doses without patients keep zero
// counts and fall back to the prior.
func Aggregate(data []trial.PatientOutcome, numDoses int, field trial.Endpoint) []Count {
	counts := make([]Count, numDoses)
	for d := range counts {
		counts[d] = Count{Dose: trial.DoseAt(d), Group: trial.NoGroup}
	}
	for _, p := range data {
		if !p.Dose.Valid(numDoses) {
			continue
		}
		c := &counts[p.Dose.Index()]
		c.Trials++
		c.Successes += p.Indicator(field)
	}
	return counts
}

// AggregateByGroup tallies an endpoint per dose x immune group, grouping
// patients by their observed immune indicator.
func AggregateByGroup(data []trial.PatientOutcome, numDoses int, field trial.Endpoint) [][]Count {
	counts := make([][]Count, numDoses)
	for d := range counts {
		counts[d] = make([]Count, trial.NumImmuneGroups)
		for g := range counts[d] {
			counts[d][g] = Count{Dose: trial.DoseAt(d), Group: g}
		}
	}
	for _, p := range data {
		if !p.Dose.Valid(numDoses) || p.Immune < 0 || p.Immune >= trial.NumImmuneGroups {
			continue
		}
		c := &counts[p.Dose.Index()][p.Immune]
		c.Trials++
		c.Successes += p.Indicator(field)
	}
	return counts
}

// GroupColumn extracts one immune group's counts across doses
func GroupColumn(counts [][]Count, group int) []Count {
	col := make([]Count, len(counts))
	for d := range counts {
		col[d] = counts[d][group]
	}
	return col
}

// InverseVariance returns 1/variance weights for the isotonic projection
func InverseVariance(counts []Count) []float64 {
	w := make([]float64, len(counts))
	for i, c := range counts {
		w[i] = 1 / c.Variance()
	}
	return w
}
