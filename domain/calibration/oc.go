package calibration

import (
	"time"

	"gotrial/domain/core"
	"gotrial/domain/trial"
)

// OperatingCharacteristics summarizes a batch of trials of one design under
// one scenario.
type OperatingCharacteristics struct {
	ID                  core.BatchID  `json:"id"`
	Scenario            string        `json:"scenario,omitempty"`
	Trials              int           `json:"trials"`
	Failures            int           `json:"failures"`
	SelectionFrequency  []float64     `json:"selection_frequency"` // [dose]
	NoSelectionRate     float64       `json:"no_selection_rate"`
	DetectionRate       float64       `json:"detection_rate"`
	EarlyTermination    float64       `json:"early_termination_rate"`
	PoCNotMetRate       float64       `json:"poc_not_met_rate"`
	NoAdmissibleRate    float64       `json:"no_admissible_rate"`
	MeanSampleSize      float64       `json:"mean_sample_size"`
	MedianSampleSize    float64       `json:"median_sample_size"`
	MeanPatientsPerDose []float64     `json:"mean_patients_per_dose"`
	MeanPoC             float64       `json:"mean_poc"`
	PoCQuartiles        [3]float64    `json:"poc_quartiles"`
	Partial             bool          `json:"partial"`
	Duration            time.Duration `json:"duration"`
}

// ModalDose is the most frequently selected dose, NoDose if none was selected
func (oc *OperatingCharacteristics) ModalDose() trial.DoseLevel {
	best, bestF := trial.NoDose, 0.0
	for d, f := range oc.SelectionFrequency {
		if f > bestF {
			best, bestF = trial.DoseAt(d), f
		}
	}
	return best
}
