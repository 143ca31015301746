package sampler

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"gotrial/domain/core"
	"gotrial/domain/trial"
)

// CopulaSampler draws (immune, toxicity, efficacy) triples. Immune status is
// Bernoulli per dose; toxicity and efficacy are drawn jointly from the copula
// cells of the patient's immune stratum.
type CopulaSampler struct{}

// NewCopulaSampler creates the default outcome sampler
func NewCopulaSampler() *CopulaSampler {
	return &CopulaSampler{}
}

// Sample draws counts[d] patients at each dose, in dose then patient order.
// A nil rng consumes gonum's global source.
func (s *CopulaSampler) Sample(scenario *trial.Scenario, counts []int, stage int, rng *rand.Rand) ([]trial.PatientOutcome, error) {
	if len(counts) != scenario.NumDoses() {
		return nil, fmt.Errorf("%w: %d allocation counts for %d doses", core.ErrDimensionMismatch, len(counts), scenario.NumDoses())
	}

	total := 0
	for d, n := range counts {
		if n < 0 {
			return nil, core.NewScenarioError("counts", fmt.Sprintf("negative count %d at dose %d", n, d+1))
		}
		total += n
	}

	var src rand.Source
	if rng != nil {
		src = rng
	}

	outcomes := make([]trial.PatientOutcome, 0, total)
	for d, n := range counts {
		if n == 0 {
			continue
		}

		pImmune := scenario.Immune[d]
		if !validProbability(pImmune) {
			return nil, core.NewProbabilityError(fmt.Sprintf("immune[%d]", d), pImmune)
		}
		immune := distuv.Bernoulli{P: pImmune, Src: src}

		var strata [trial.NumImmuneGroups]distuv.Categorical
		for g := 0; g < trial.NumImmuneGroups; g++ {
			cells, err := JointCells(scenario.Toxicity[d][g], scenario.Efficacy[d][g], scenario.Copula[g])
			if err != nil {
				return nil, fmt.Errorf("dose %d group %d: %w", d+1, g, err)
			}
			strata[g] = distuv.NewCategorical(cells[:], src)
		}

		for i := 0; i < n; i++ {
			group := int(immune.Rand())
			tox, eff := CellIndicators(int(strata[group].Rand()))
			outcomes = append(outcomes, trial.PatientOutcome{
				Dose:     trial.DoseAt(d),
				Stage:    stage,
				Immune:   group,
				Toxicity: tox,
				Efficacy: eff,
			})
		}
	}

	return outcomes, nil
}
