package decision

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gotrial/domain/core"
	"gotrial/domain/trial"
)

// PairwiseComparison is Pr(Pi(d) < delta * Pi(best)) for one competitor
type PairwiseComparison struct {
	Dose        trial.DoseLevel `json:"dose"`
	Probability float64         `json:"probability"`
}

// PoCResult is the outcome of the final selection gate
type PoCResult struct {
	BestDose    trial.DoseLevel      `json:"best_dose"`
	BestUtility float64              `json:"best_utility"`
	Probability float64              `json:"probability"`
	Validated   bool                 `json:"validated"`
	Pairwise    []PairwiseComparison `json:"pairwise,omitempty"`
}

// SelectedDose is the best dose when the gate passed, NoDose otherwise
func (r PoCResult) SelectedDose() trial.DoseLevel {
	if r.Validated {
		return r.BestDose
	}
	return trial.NoDose
}

// BestAdmissible is the admissible dose of highest utility; ties go to the
// lower dose.
func BestAdmissible(admissible trial.AdmissibleSet, utilities []float64) (trial.DoseLevel, float64, error) {
	if admissible.IsEmpty() {
		return trial.NoDose, 0, core.ErrEmptyAdmissible
	}
	best := trial.NoDose
	bestU := 0.0
	for _, d := range admissible {
		if !d.Valid(len(utilities)) {
			return trial.NoDose, 0, core.NewValidationError("admissible", fmt.Sprintf("dose %d out of range", int(d)))
		}
		if u := utilities[d.Index()]; best == trial.NoDose || u > bestU {
			best, bestU = d, u
		}
	}
	return best, bestU, nil
}

// ValidatePoC gates the final selection. effMarginal holds the per-draw
// efficacy marginals Pi(d) = pI*Pe(d|1) + (1-pI)*Pe(d|0). PoC is the smallest
// fraction of paired draws with Pi(d) < delta*Pi(best) over all competitors,
// and 1 when the best dose has none.
func ValidatePoC(admissible trial.AdmissibleSet, utilities []float64, effMarginal *mat.Dense, params trial.PoCParams) (PoCResult, error) {
	best, bestU, err := BestAdmissible(admissible, utilities)
	if err != nil {
		return PoCResult{}, err
	}
	rows, cols := effMarginal.Dims()
	if cols != len(utilities) {
		return PoCResult{}, fmt.Errorf("%w: %d marginal columns for %d utilities", core.ErrDimensionMismatch, cols, len(utilities))
	}

	res := PoCResult{BestDose: best, BestUtility: bestU, Probability: 1}
	for _, d := range admissible {
		if d == best {
			continue
		}
		hits := 0
		for s := 0; s < rows; s++ {
			if effMarginal.At(s, d.Index()) < params.Delta*effMarginal.At(s, best.Index()) {
				hits++
			}
		}
		p := 0.0
		if rows > 0 {
			p = float64(hits) / float64(rows)
		}
		res.Pairwise = append(res.Pairwise, PairwiseComparison{Dose: d, Probability: p})
		if p < res.Probability {
			res.Probability = p
		}
	}
	res.Validated = res.Probability >= params.Credibility
	return res, nil
}
