package trial

import (
	"fmt"

	"gotrial/domain/core"
)

// DoseLevel is an ordinal dose index in 1..J. NoDose marks an absent selection.
type DoseLevel int

const NoDose DoseLevel = 0

// Index returns the zero-based slice index of the dose
func (d DoseLevel) Index() int { return int(d) - 1 }

// Valid reports whether d names one of numDoses doses
func (d DoseLevel) Valid(numDoses int) bool { return d >= 1 && int(d) <= numDoses }

// DoseAt converts a zero-based index to a DoseLevel
func DoseAt(index int) DoseLevel { return DoseLevel(index + 1) }

// Endpoint names one of the three patient-level binary outcomes
type Endpoint int

const (
	EndpointImmune Endpoint = iota
	EndpointToxicity
	EndpointEfficacy
)

func (e Endpoint) String() string {
	switch e {
	case EndpointImmune:
		return "immune"
	case EndpointToxicity:
		return "toxicity"
	case EndpointEfficacy:
		return "efficacy"
	default:
		return fmt.Sprintf("endpoint(%d)", int(e))
	}
}

// Immune strata. Group 0 is no immune response, group 1 is immune response.
const (
	GroupNoImmune   = 0
	GroupImmune     = 1
	NumImmuneGroups = 2

	// NoGroup marks a univariate (per dose) posterior summary
	NoGroup = -1
)

// PatientOutcome is one enrolled patient. Never mutated after creation.
type PatientOutcome struct {
	Dose     DoseLevel `json:"dose"`
	Stage    int       `json:"stage"`
	Immune   int       `json:"immune"`
	Toxicity int       `json:"toxicity"`
	Efficacy int       `json:"efficacy"`
}

// Indicator returns the 0/1 value of an endpoint
func (p PatientOutcome) Indicator(e Endpoint) int {
	switch e {
	case EndpointImmune:
		return p.Immune
	case EndpointToxicity:
		return p.Toxicity
	default:
		return p.Efficacy
	}
}

// PosteriorSummary is the Beta posterior of one dose (Group == NoGroup) or
// one dose x immune group cell.
type PosteriorSummary struct {
	Dose            DoseLevel `json:"dose"`
	Group           int       `json:"group"`
	Successes       int       `json:"successes"`
	Trials          int       `json:"trials"`
	Alpha           float64   `json:"alpha"`
	Beta            float64   `json:"beta"`
	Mean            float64   `json:"mean"`
	Variance        float64   `json:"variance"`
	Samples         []float64 `json:"samples,omitempty"`
	AdjustedSamples []float64 `json:"adjusted_samples,omitempty"`
	AdjustedMean    float64   `json:"adjusted_mean"`
	CILower         float64   `json:"ci_lower"`
	CIUpper         float64   `json:"ci_upper"`
}

// PosteriorSummaries groups every summary of one analysis
type PosteriorSummaries struct {
	Immune   []PosteriorSummary   `json:"immune"`   // [dose]
	Toxicity [][]PosteriorSummary `json:"toxicity"` // [dose][group]
	Efficacy [][]PosteriorSummary `json:"efficacy"` // [dose][group]
}

// AdmissibleSet is the ordered list of doses passing every screening criterion
type AdmissibleSet []DoseLevel

func (a AdmissibleSet) IsEmpty() bool { return len(a) == 0 }

func (a AdmissibleSet) Contains(d DoseLevel) bool {
	for _, x := range a {
		if x == d {
			return true
		}
	}
	return false
}

// DoseProbabilities are the Monte Carlo screening probabilities of one dose
type DoseProbabilities struct {
	Dose        DoseLevel `json:"dose"`
	Safety      float64   `json:"safety"`   // Pr(tox < phi_T)
	Efficacy    float64   `json:"efficacy"` // Pr(eff > phi_E)
	Activity    float64   `json:"activity"` // Pr(immune > phi_I)
	Safe        bool      `json:"safe"`
	Efficacious bool      `json:"efficacious"`
	Active      bool      `json:"active"`
}

// Admissible reports whether all three criteria hold
func (p DoseProbabilities) Admissible() bool { return p.Safe && p.Efficacious && p.Active }

// StageRecord is the per-stage debug information returned with a result
type StageRecord struct {
	Stage          int                 `json:"stage"`
	Allocation     []float64           `json:"allocation"`
	Enrolled       []int               `json:"enrolled"`
	Admissible     AdmissibleSet       `json:"admissible"`
	Probabilities  []DoseProbabilities `json:"probabilities"`
	Utilities      []float64           `json:"utilities,omitempty"`
	NextAllocation []float64           `json:"next_allocation,omitempty"`
}

// Status is the terminal classification of a trial
type Status string

const (
	StatusTerminatedEarly      Status = "terminated_early"
	StatusCompletedWithDose    Status = "completed_with_dose"
	StatusCompletedWithoutDose Status = "completed_without_dose"
)

// Reasons attached to a result
const (
	ReasonEmptyAdmissible     = "empty admissible set"
	ReasonPoCNotMet           = "PoC threshold not met"
	ReasonNoAdmissibleAtFinal = "no admissible dose at final analysis"
	ReasonSelected            = "dose selected"
)

// TrialResult is the complete output of one simulated trial
type TrialResult struct {
	Status            Status              `json:"status"`
	Reason            string              `json:"reason"`
	FinalDose         DoseLevel           `json:"final_dose"`
	TerminatedEarly   bool                `json:"terminated_early"`
	TerminationStage  int                 `json:"termination_stage,omitempty"`
	PoCValidated      bool                `json:"poc_validated"`
	PoCProbability    float64             `json:"poc_probability"`
	BestDose          DoseLevel           `json:"best_dose,omitempty"`
	BestUtility       float64             `json:"best_utility,omitempty"`
	Outcomes          []PatientOutcome    `json:"outcomes"`
	AllocationHistory [][]float64         `json:"allocation_history"`
	Stages            []StageRecord       `json:"stages"`
	FinalPosterior    *PosteriorSummaries `json:"final_posterior,omitempty"`
	Seed              int64               `json:"seed"`
	Fingerprint       core.Hash           `json:"fingerprint"`
}

// HasDose reports whether a final dose was selected
func (r *TrialResult) HasDose() bool { return r.FinalDose != NoDose }

// Detected reports whether the trial declared a dose with a validated PoC
func (r *TrialResult) Detected() bool {
	return r.Status == StatusCompletedWithDose && r.PoCValidated
}

// PatientsPerDose counts enrolled patients by dose
func (r *TrialResult) PatientsPerDose(numDoses int) []int {
	counts := make([]int, numDoses)
	for _, p := range r.Outcomes {
		if p.Dose.Valid(numDoses) {
			counts[p.Dose.Index()]++
		}
	}
	return counts
}

// Validate checks that the result names exactly one terminal outcome
func (r *TrialResult) Validate() error {
	switch r.Status {
	case StatusTerminatedEarly:
		if !r.TerminatedEarly || r.TerminationStage < 1 || r.HasDose() || r.PoCValidated {
			return fmt.Errorf("inconsistent early termination result (stage=%d dose=%d)", r.TerminationStage, r.FinalDose)
		}
	case StatusCompletedWithDose:
		if r.TerminatedEarly || !r.HasDose() || !r.PoCValidated {
			return fmt.Errorf("inconsistent completed result with dose %d", r.FinalDose)
		}
	case StatusCompletedWithoutDose:
		if r.TerminatedEarly || r.HasDose() {
			return fmt.Errorf("inconsistent completed result without dose")
		}
	default:
		return fmt.Errorf("unknown trial status %q", r.Status)
	}
	return nil
}
