package app

import (
	"context"
	"time"

	"github.com/montanaflynn/stats"

	"gotrial/domain/calibration"
	"gotrial/domain/core"
	"gotrial/domain/trial"
)

// OperatingCharacteristicsRequest defines one batch of trials
type OperatingCharacteristicsRequest struct {
	Config   *trial.Configuration
	Scenario *trial.Scenario
	Trials   int // zero uses the service default
	BaseSeed int64
}

// OperatingCharacteristics simulates a design repeatedly under one scenario
// and summarizes selection, termination and sample size.
func (s *CalibrationService) OperatingCharacteristics(ctx context.Context, req OperatingCharacteristicsRequest) (*calibration.OperatingCharacteristics, error) {
	startTime := time.Now()

	if req.Config == nil || req.Scenario == nil {
		return nil, classify(core.NewValidationError("request", "design and scenario are required"), "invalid batch request")
	}
	if err := req.Config.Validate(); err != nil {
		return nil, classify(err, "invalid batch request")
	}
	if err := req.Scenario.Validate(req.Config.NumDoses); err != nil {
		return nil, classify(err, "invalid batch request")
	}
	if req.Trials == 0 {
		req.Trials = s.settings.Simulations
	}
	if req.Trials < 1 {
		return nil, classify(core.NewValidationError("trials", "must be positive"), "invalid batch request")
	}

	cfg := req.Config.Clone()
	outcomes, complete := s.runBatch(ctx, &cfg, req.Scenario, SeedFamily(req.BaseSeed, req.Trials))

	oc := SummarizeOutcomes(cfg.NumDoses, outcomes)
	oc.ID = core.NewBatchID()
	oc.Scenario = req.Scenario.Name
	oc.Partial = !complete
	oc.Duration = time.Since(startTime)

	s.logger.Info("batch %s: %d trials of %q, detection %.3f, early stop %.3f, modal dose %d",
		oc.ID, oc.Trials, oc.Scenario, oc.DetectionRate, oc.EarlyTermination, int(oc.ModalDose()))
	return oc, nil
}

// SummarizeOutcomes aggregates simulation outcomes of a numDoses design
func SummarizeOutcomes(numDoses int, outcomes []calibration.SimulationOutcome) *calibration.OperatingCharacteristics {
	oc := &calibration.OperatingCharacteristics{
		Trials:              len(outcomes),
		SelectionFrequency:  make([]float64, numDoses),
		MeanPatientsPerDose: make([]float64, numDoses),
	}
	if len(outcomes) == 0 {
		return oc
	}

	var sizes, pocs []float64
	var detected, terminated, pocNotMet, noAdmissible, noSelection int
	for _, o := range outcomes {
		if o.Failed {
			oc.Failures++
		}
		if o.FinalDose.Valid(numDoses) {
			oc.SelectionFrequency[o.FinalDose.Index()]++
		} else {
			noSelection++
		}
		if o.Detected {
			detected++
		}
		if o.TerminatedEarly {
			terminated++
		}
		switch o.Reason {
		case trial.ReasonPoCNotMet:
			pocNotMet++
		case trial.ReasonNoAdmissibleAtFinal:
			noAdmissible++
		}
		for d, n := range o.Enrolled {
			if d < numDoses {
				oc.MeanPatientsPerDose[d] += float64(n)
			}
		}
		sizes = append(sizes, float64(o.SampleSize))
		// PoC is only defined for trials that reached the selection gate
		if o.Reason == trial.ReasonSelected || o.Reason == trial.ReasonPoCNotMet {
			pocs = append(pocs, o.PoCProbability)
		}
	}

	n := float64(len(outcomes))
	for d := range oc.SelectionFrequency {
		oc.SelectionFrequency[d] /= n
		oc.MeanPatientsPerDose[d] /= n
	}
	oc.NoSelectionRate = float64(noSelection) / n
	oc.DetectionRate = float64(detected) / n
	oc.EarlyTermination = float64(terminated) / n
	oc.PoCNotMetRate = float64(pocNotMet) / n
	oc.NoAdmissibleRate = float64(noAdmissible) / n

	oc.MeanSampleSize, _ = stats.Mean(sizes)
	oc.MedianSampleSize, _ = stats.Median(sizes)
	if len(pocs) > 0 {
		oc.MeanPoC, _ = stats.Mean(pocs)
		if q, err := stats.Quartile(pocs); err == nil {
			oc.PoCQuartiles = [3]float64{q.Q1, q.Q2, q.Q3}
		}
	}
	return oc
}
