package trial

import (
	"fmt"
	"math"

	"gotrial/domain/core"
)

// Scenario holds the true outcome-generating parameters of a simulation
type Scenario struct {
	Name     string                     `json:"name,omitempty"`
	Immune   []float64                  `json:"immune"`   // [dose]
	Toxicity [][NumImmuneGroups]float64 `json:"toxicity"` // [dose][group]
	Efficacy [][NumImmuneGroups]float64 `json:"efficacy"` // [dose][group]
	Copula   [NumImmuneGroups]float64   `json:"copula"`   // per immune group
}

// NumDoses returns the number of doses the scenario describes
func (s *Scenario) NumDoses() int { return len(s.Immune) }

// Validate checks probabilities and dimensions against the design
func (s *Scenario) Validate(numDoses int) error {
	if len(s.Immune) != numDoses {
		return fmt.Errorf("%w: immune has %d doses, design has %d", core.ErrDimensionMismatch, len(s.Immune), numDoses)
	}
	if len(s.Toxicity) != numDoses {
		return fmt.Errorf("%w: toxicity has %d doses, design has %d", core.ErrDimensionMismatch, len(s.Toxicity), numDoses)
	}
	if len(s.Efficacy) != numDoses {
		return fmt.Errorf("%w: efficacy has %d doses, design has %d", core.ErrDimensionMismatch, len(s.Efficacy), numDoses)
	}

	for d := 0; d < numDoses; d++ {
		if !isProbability(s.Immune[d]) {
			return core.NewProbabilityError(fmt.Sprintf("immune[%d]", d), s.Immune[d])
		}
		for g := 0; g < NumImmuneGroups; g++ {
			if !isProbability(s.Toxicity[d][g]) {
				return core.NewProbabilityError(fmt.Sprintf("toxicity[%d][%d]", d, g), s.Toxicity[d][g])
			}
			if !isProbability(s.Efficacy[d][g]) {
				return core.NewProbabilityError(fmt.Sprintf("efficacy[%d][%d]", d, g), s.Efficacy[d][g])
			}
		}
	}
	for g, c := range s.Copula {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return core.NewScenarioError(fmt.Sprintf("copula[%d]", g), "must be finite")
		}
	}
	return nil
}

// Clone returns a deep copy
func (s Scenario) Clone() Scenario {
	out := s
	out.Immune = append([]float64(nil), s.Immune...)
	out.Toxicity = append([][NumImmuneGroups]float64(nil), s.Toxicity...)
	out.Efficacy = append([][NumImmuneGroups]float64(nil), s.Efficacy...)
	return out
}

// Flat builds a scenario where every dose shares the same marginals
func Flat(name string, numDoses int, immune, toxicity, efficacy float64, copula [NumImmuneGroups]float64) Scenario {
	s := Scenario{
		Name:     name,
		Immune:   make([]float64, numDoses),
		Toxicity: make([][NumImmuneGroups]float64, numDoses),
		Efficacy: make([][NumImmuneGroups]float64, numDoses),
		Copula:   copula,
	}
	for d := 0; d < numDoses; d++ {
		s.Immune[d] = immune
		s.Toxicity[d] = [NumImmuneGroups]float64{toxicity, toxicity}
		s.Efficacy[d] = [NumImmuneGroups]float64{efficacy, efficacy}
	}
	return s
}
