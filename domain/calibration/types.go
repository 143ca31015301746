package calibration

import (
	"fmt"
	"math"
	"time"

	"gotrial/domain/core"
	"gotrial/domain/trial"
)

// Kind selects the operating characteristic being calibrated
type Kind string

const (
	// KindFalsePositive calibrates under a null scenario: the rate is the
	// fraction of runs declaring a dose, and must stay at or below target.
	KindFalsePositive Kind = "false_positive"
	// KindFutility calibrates under an unfavorable scenario: the rate is the
	// fraction of runs stopping early, and must reach the target.
	KindFutility Kind = "futility"
)

// ParseKind accepts the CLI spellings of a kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "false_positive", "false-positive", "fp":
		return KindFalsePositive, nil
	case "futility":
		return KindFutility, nil
	default:
		return "", fmt.Errorf("unknown calibration kind %q", s)
	}
}

// Selection is the rule that picks one qualifying candidate
type Selection string

const (
	// SelectConservative picks the most stringent qualifying candidate
	SelectConservative Selection = "conservative"
	// SelectClosest picks the qualifying candidate whose rate is closest to
	// the target, preferring the more stringent one on ties
	SelectClosest Selection = "closest"
)

// ParseSelection accepts a selection rule name; empty means conservative
func ParseSelection(s string) (Selection, error) {
	switch sel := Selection(s); sel {
	case "":
		return SelectConservative, nil
	case SelectConservative, SelectClosest:
		return sel, nil
	default:
		return "", fmt.Errorf("unknown selection rule %q", s)
	}
}

// Parameter names the credibility cutoff varied across candidates. Larger
// values are always more stringent.
type Parameter string

const (
	ParamPoC      Parameter = "poc"      // c_poc
	ParamSafety   Parameter = "safety"   // c_T
	ParamEfficacy Parameter = "efficacy" // c_E
	ParamActivity Parameter = "activity" // c_I
)

// ParseParameter validates a parameter name
func ParseParameter(s string) (Parameter, error) {
	switch p := Parameter(s); p {
	case ParamPoC, ParamSafety, ParamEfficacy, ParamActivity:
		return p, nil
	default:
		return "", fmt.Errorf("unknown calibration parameter %q", s)
	}
}

// Apply writes the candidate value into a configuration copy
func (p Parameter) Apply(cfg *trial.Configuration, value float64) error {
	if value < 0 || value > 1 || math.IsNaN(value) {
		return core.NewValidationError(string(p), fmt.Sprintf("candidate %g outside [0,1]", value))
	}
	switch p {
	case ParamPoC:
		cfg.PoC.Credibility = value
	case ParamSafety:
		cfg.Thresholds.Toxicity.Credibility = value
	case ParamEfficacy:
		cfg.Thresholds.Efficacy.Credibility = value
	case ParamActivity:
		cfg.Thresholds.Immune.Credibility = value
	default:
		return core.NewValidationError("parameter", fmt.Sprintf("unknown parameter %q", p))
	}
	return nil
}

// SimulationOutcome is the per-simulation record aggregated by the search.
// A failed simulation is recorded conservatively as terminated, not detected.
type SimulationOutcome struct {
	Index           int             `json:"index"`
	Seed            int64           `json:"seed"`
	Status          trial.Status    `json:"status"`
	FinalDose       trial.DoseLevel `json:"final_dose"`
	Detected        bool            `json:"detected"`
	TerminatedEarly bool            `json:"terminated_early"`
	Completed       bool            `json:"completed"`
	PoCProbability  float64         `json:"poc_probability"`
	SampleSize      int             `json:"sample_size"`
	Enrolled        []int           `json:"enrolled,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Failed          bool            `json:"failed"`
	Note            string          `json:"note,omitempty"`
}

// FailedOutcome builds the conservative record of a faulted simulation
func FailedOutcome(index int, seed int64, err error) SimulationOutcome {
	return SimulationOutcome{
		Index:           index,
		Seed:            seed,
		Status:          trial.StatusTerminatedEarly,
		TerminatedEarly: true,
		Failed:          true,
		Note:            err.Error(),
	}
}

// OutcomeOf summarizes a trial result of a numDoses design
func OutcomeOf(index int, seed int64, numDoses int, r *trial.TrialResult) SimulationOutcome {
	return SimulationOutcome{
		Index:           index,
		Seed:            seed,
		Status:          r.Status,
		FinalDose:       r.FinalDose,
		Detected:        r.Detected(),
		TerminatedEarly: r.TerminatedEarly,
		Completed:       !r.TerminatedEarly,
		PoCProbability:  r.PoCProbability,
		SampleSize:      len(r.Outcomes),
		Enrolled:        r.PatientsPerDose(numDoses),
		Reason:          r.Reason,
	}
}

// Point is the aggregated result of one candidate threshold
type Point struct {
	Candidate       float64  `json:"candidate"`
	Rate            float64  `json:"rate"` // detection rate or termination rate, per Kind
	CILower         float64  `json:"ci_lower"`
	CIUpper         float64  `json:"ci_upper"`
	DetectionRate   float64  `json:"detection_rate"`
	TerminationRate float64  `json:"termination_rate"`
	CompletionRate  float64  `json:"completion_rate"`
	Simulations     int      `json:"simulations"`
	Failures        int      `json:"failures"`
	Qualifies       bool     `json:"qualifies"`
	Notes           []string `json:"notes,omitempty"`
}

// Result is the outcome of a calibration search
type Result struct {
	ID              core.CalibrationID `json:"id"`
	Kind            Kind               `json:"kind"`
	Parameter       Parameter          `json:"parameter"`
	Selection       Selection          `json:"selection"`
	Target          float64            `json:"target"`
	Confidence      float64            `json:"confidence"`
	Points          []Point            `json:"points"`
	Selected        float64            `json:"selected"`
	SelectedIndex   int                `json:"selected_index"`
	ControlAchieved bool               `json:"control_achieved"`
	Partial         bool               `json:"partial"`
	Duration        time.Duration      `json:"duration"`
}

// Qualifies reports whether a rate meets the target for the kind
func (k Kind) Qualifies(rate, target float64) bool {
	if k == KindFutility {
		return rate >= target
	}
	return rate <= target
}
