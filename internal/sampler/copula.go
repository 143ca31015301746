package sampler

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"gotrial/domain/core"
)

// Joint cells are indexed by 2*toxicity + efficacy.
const (
	Cell00 = iota // no toxicity, no efficacy
	Cell01        // no toxicity, efficacy
	Cell10        // toxicity, no efficacy
	Cell11        // toxicity and efficacy
)

// JointCells returns the four (toxicity, efficacy) cell probabilities of the
// copula with marginals tox, eff and strength c:
//
//	k = t*e*(1-t)*(1-e) * (e^c-1)/(e^c+1)
//
// (e^c-1)/(e^c+1) is evaluated as tanh(c/2) so large |c| cannot overflow.
func JointCells(tox, eff, c float64) ([4]float64, error) {
	var cells [4]float64
	if !validProbability(tox) {
		return cells, core.NewProbabilityError("toxicity", tox)
	}
	if !validProbability(eff) {
		return cells, core.NewProbabilityError("efficacy", eff)
	}
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return cells, core.NewScenarioError("copula", fmt.Sprintf("strength %g must be finite", c))
	}

	k := tox * eff * (1 - tox) * (1 - eff) * math.Tanh(c/2)

	cells[Cell00] = (1-tox)*(1-eff) + k
	cells[Cell01] = (1-tox)*eff - k
	cells[Cell10] = tox*(1-eff) - k
	cells[Cell11] = tox*eff + k

	for i, p := range cells {
		if p < 0 {
			cells[i] = 0
		}
	}
	total := floats.Sum(cells[:])
	if total <= 0 {
		return cells, core.NewScenarioError("copula", "joint cells have no mass")
	}
	floats.Scale(1/total, cells[:])
	return cells, nil
}

// CellIndicators maps a cell index to (toxicity, efficacy)
func CellIndicators(cell int) (toxicity, efficacy int) {
	return cell / 2, cell % 2
}

func validProbability(p float64) bool {
	return p >= 0 && p <= 1 && !math.IsNaN(p)
}
