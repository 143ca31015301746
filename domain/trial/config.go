package trial

import (
	"fmt"
	"math"

	"gotrial/domain/core"
)

// Threshold pairs a probability cutoff phi with a credibility cutoff c
type Threshold struct {
	Cutoff      float64 `json:"cutoff" yaml:"cutoff"`
	Credibility float64 `json:"credibility" yaml:"credibility"`
}

// Thresholds holds the three admissibility criteria
type Thresholds struct {
	Toxicity Threshold `json:"toxicity" yaml:"toxicity"` // Pr(tox < phi_T) > c_T
	Efficacy Threshold `json:"efficacy" yaml:"efficacy"` // Pr(eff > phi_E) > c_E
	Immune   Threshold `json:"immune" yaml:"immune"`     // Pr(immune > phi_I) > c_I
}

// PoCParams gates the final selection
type PoCParams struct {
	Credibility float64 `json:"credibility" yaml:"credibility"` // c_poc
	Delta       float64 `json:"delta" yaml:"delta"`             // delta_poc
}

// UtilityTable holds w[e][t][i] for efficacy e, toxicity t and immune status i
type UtilityTable [2][2][2]float64

// At returns w(e,t,i)
func (u UtilityTable) At(efficacy, toxicity, immune int) float64 {
	return u[efficacy][toxicity][immune]
}

// Configuration is the trial design. Treat a shared value as read only and
// customize a Clone.
type Configuration struct {
	DoseLabels       []string     `json:"dose_labels,omitempty"`
	NumDoses         int          `json:"num_doses"`
	NumStages        int          `json:"num_stages"`
	CohortSize       int          `json:"cohort_size"`
	CohortSizes      []int        `json:"cohort_sizes,omitempty"` // optional per-stage override
	Thresholds       Thresholds   `json:"thresholds"`
	PoC              PoCParams    `json:"poc"`
	EarlyTermination bool         `json:"early_termination"`
	Utility          UtilityTable `json:"utility"`
	NumSamples       int          `json:"num_samples"`
	BaseSeed         *int64       `json:"base_seed,omitempty"`
}

// StageCohort returns the number of patients enrolled at stage k (1-based)
func (c *Configuration) StageCohort(stage int) int {
	if len(c.CohortSizes) >= stage && stage >= 1 {
		return c.CohortSizes[stage-1]
	}
	return c.CohortSize
}

// MaxSampleSize is the number of patients if every stage runs
func (c *Configuration) MaxSampleSize() int {
	total := 0
	for k := 1; k <= c.NumStages; k++ {
		total += c.StageCohort(k)
	}
	return total
}

// Label returns the display label of a dose
func (c *Configuration) Label(d DoseLevel) string {
	if d.Valid(len(c.DoseLabels)) {
		return c.DoseLabels[d.Index()]
	}
	return fmt.Sprintf("dose %d", int(d))
}

// Validate fails fast on a malformed design
func (c *Configuration) Validate() error {
	if c.NumDoses < 1 {
		return core.NewValidationError("num_doses", "must be at least 1")
	}
	if len(c.DoseLabels) > 0 && len(c.DoseLabels) != c.NumDoses {
		return core.NewValidationError("dose_labels", fmt.Sprintf("have %d labels for %d doses", len(c.DoseLabels), c.NumDoses))
	}
	if c.NumStages < 1 {
		return core.NewValidationError("num_stages", "must be at least 1")
	}
	if len(c.CohortSizes) > 0 && len(c.CohortSizes) != c.NumStages {
		return core.NewValidationError("cohort_sizes", fmt.Sprintf("have %d sizes for %d stages", len(c.CohortSizes), c.NumStages))
	}
	for k := 1; k <= c.NumStages; k++ {
		if c.StageCohort(k) < 1 {
			return core.NewValidationError("cohort_size", fmt.Sprintf("stage %d enrolls no patients", k))
		}
	}
	if c.NumSamples < 1 {
		return core.NewValidationError("num_samples", "must be positive")
	}

	probabilities := map[string]float64{
		"thresholds.toxicity.cutoff":      c.Thresholds.Toxicity.Cutoff,
		"thresholds.toxicity.credibility": c.Thresholds.Toxicity.Credibility,
		"thresholds.efficacy.cutoff":      c.Thresholds.Efficacy.Cutoff,
		"thresholds.efficacy.credibility": c.Thresholds.Efficacy.Credibility,
		"thresholds.immune.cutoff":        c.Thresholds.Immune.Cutoff,
		"thresholds.immune.credibility":   c.Thresholds.Immune.Credibility,
		"poc.credibility":                 c.PoC.Credibility,
	}
	for field, v := range probabilities {
		if !isProbability(v) {
			return core.NewValidationError(field, fmt.Sprintf("%g outside [0,1]", v))
		}
	}
	if c.PoC.Delta <= 0 || math.IsNaN(c.PoC.Delta) || math.IsInf(c.PoC.Delta, 0) {
		return core.NewValidationError("poc.delta", "must be a positive finite number")
	}

	for e := 0; e < 2; e++ {
		for t := 0; t < 2; t++ {
			for i := 0; i < 2; i++ {
				w := c.Utility[e][t][i]
				if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
					return core.NewValidationError("utility", fmt.Sprintf("w(%d,%d,%d)=%g must be finite and non-negative", e, t, i, w))
				}
			}
		}
	}
	return nil
}

// Clone returns a deep copy
func (c Configuration) Clone() Configuration {
	out := c
	if c.DoseLabels != nil {
		out.DoseLabels = append([]string(nil), c.DoseLabels...)
	}
	if c.CohortSizes != nil {
		out.CohortSizes = append([]int(nil), c.CohortSizes...)
	}
	if c.BaseSeed != nil {
		seed := *c.BaseSeed
		out.BaseSeed = &seed
	}
	return out
}

func isProbability(v float64) bool {
	return v >= 0 && v <= 1 && !math.IsNaN(v)
}
