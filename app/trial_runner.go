package app

import (
	"fmt"

	"gotrial/domain/core"
	"gotrial/domain/trial"
	"gotrial/internal"
	"gotrial/internal/decision"
	"gotrial/internal/posterior"
	"gotrial/ports"
)

// RunState is the position of a trial in its stage loop
type RunState int

const (
	StateRunning RunState = iota
	StateTerminatedEarly
	StateCompleted
	StateFinalized
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTerminatedEarly:
		return "terminated_early"
	case StateCompleted:
		return "completed"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TrialRunner composes the sampler, posterior engine and decision rules into
// the stage-by-stage trial. It holds no per-trial state and is safe for
// concurrent use.
type TrialRunner struct {
	sampler ports.OutcomeSampler
	rngPort ports.RNGPort
	engine  *posterior.Engine
	logger  *internal.Logger
}

// NewTrialRunner creates a trial runner
func NewTrialRunner(sampler ports.OutcomeSampler, rngPort ports.RNGPort, engine *posterior.Engine, logger *internal.Logger) *TrialRunner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &TrialRunner{
		sampler: sampler,
		rngPort: rngPort,
		engine:  engine,
		logger:  logger.With("trial"),
	}
}

// Simulate runs one trial from start to final selection. cfg and scenario are
// copied, never mutated. A nil seed falls back to cfg.BaseSeed, then to a
// fresh ambient seed recorded in the result.
func (r *TrialRunner) Simulate(cfg *trial.Configuration, scenario *trial.Scenario, seed *int64) (*trial.TrialResult, error) {
	run, err := r.Start(cfg, scenario, seed)
	if err != nil {
		return nil, err
	}
	for run.State() == StateRunning {
		if err := run.Step(); err != nil {
			return nil, err
		}
	}
	return run.Finalize()
}

// Start validates the inputs and returns a trial positioned before stage 1
func (r *TrialRunner) Start(cfg *trial.Configuration, scenario *trial.Scenario, seed *int64) (*TrialRun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, classify(err, "invalid trial configuration")
	}
	if err := scenario.Validate(cfg.NumDoses); err != nil {
		return nil, classify(err, "invalid scenario")
	}

	var base int64
	switch {
	case seed != nil:
		base = *seed
	case cfg.BaseSeed != nil:
		base = *cfg.BaseSeed
	default:
		base = r.rngPort.AmbientSeed()
	}

	return &TrialRun{
		runner:     r,
		cfg:        cfg.Clone(),
		scenario:   scenario.Clone(),
		seed:       base,
		state:      StateRunning,
		allocation: decision.UniformAllocation(cfg.NumDoses),
	}, nil
}

// TrialRun is the state machine of one trial:
//
//	Running(k) -> Running(k+1) | TerminatedEarly | Completed
//	TerminatedEarly | Completed -> Finalized
//
// Step advances one stage; Finalize runs the PoC gate exactly once.
type TrialRun struct {
	runner   *TrialRunner
	cfg      trial.Configuration
	scenario trial.Scenario
	seed     int64

	state      RunState
	stage      int
	allocation []float64

	outcomes   []trial.PatientOutcome
	history    [][]float64
	records    []trial.StageRecord
	post       *posterior.Posterior
	admissible trial.AdmissibleSet
	utilities  []float64

	terminationStage int
	result           *trial.TrialResult
}

// State returns the current state
func (t *TrialRun) State() RunState { return t.state }

// Stage returns the last completed stage, 0 before the first
func (t *TrialRun) Stage() int { return t.stage }

// Seed returns the base seed in use
func (t *TrialRun) Seed() int64 { return t.seed }

// Outcomes returns the cumulative patient outcomes so far
func (t *TrialRun) Outcomes() []trial.PatientOutcome {
	return append([]trial.PatientOutcome(nil), t.outcomes...)
}

// Records returns the stage records so far
func (t *TrialRun) Records() []trial.StageRecord {
	return append([]trial.StageRecord(nil), t.records...)
}

// Step runs the next stage: enroll, update posteriors, screen, then either
// stop early, randomize the next stage, or complete.
func (t *TrialRun) Step() error {
	if t.state != StateRunning {
		return core.NewOrderingError("step", t.state.String())
	}

	r := t.runner
	k := t.stage + 1
	numDoses := t.cfg.NumDoses

	alloc := t.allocation
	t.history = append(t.history, alloc)

	counts, err := decision.AssignCohort(alloc, t.cfg.StageCohort(k), r.rngPort.Stream(t.seed, k, ports.StreamAllocation))
	if err != nil {
		return t.fail(err, k, "randomization failed")
	}
	enrolled, err := r.sampler.Sample(&t.scenario, counts, k, r.rngPort.Stream(t.seed, k, ports.StreamOutcomes))
	if err != nil {
		return t.fail(err, k, "outcome sampling failed")
	}
	t.outcomes = append(t.outcomes, enrolled...)

	// posteriors are recomputed from the full cumulative data set every stage
	post, err := r.engine.Update(t.outcomes, numDoses, t.cfg.NumSamples, k, r.rngPort.Stream(t.seed, k, ports.StreamPosterior))
	if err != nil {
		return t.fail(err, k, "posterior update failed")
	}
	t.post = post

	screening := decision.Screen(post, t.cfg.Thresholds)
	t.admissible = screening.Admissible
	record := trial.StageRecord{
		Stage:         k,
		Allocation:    alloc,
		Enrolled:      counts,
		Admissible:    screening.Admissible,
		Probabilities: screening.Probabilities,
	}
	t.stage = k

	// the termination check always precedes next-stage randomization
	if decision.ShouldTerminate(t.cfg.EarlyTermination, screening.Admissible) {
		t.records = append(t.records, record)
		t.state = StateTerminatedEarly
		t.terminationStage = k
		r.logger.Debug("seed %d: stage %d terminated early, no admissible dose", t.seed, k)
		return nil
	}

	t.utilities = decision.Utilities(post, t.cfg.Utility)
	record.Utilities = t.utilities

	if k == t.cfg.NumStages {
		t.records = append(t.records, record)
		t.state = StateCompleted
		r.logger.Debug("seed %d: stage loop completed, admissible=%v", t.seed, screening.Admissible)
		return nil
	}

	next, err := decision.Allocate(screening.Admissible, t.utilities, numDoses)
	if err != nil {
		return t.fail(err, k, "allocation failed")
	}
	if screening.Admissible.IsEmpty() {
		// monitoring is off; keep enrolling across all doses
		next = decision.UniformAllocation(numDoses)
	}
	record.NextAllocation = next
	t.records = append(t.records, record)
	t.allocation = next

	r.logger.Trace("seed %d: stage %d admissible=%v next=%v", t.seed, k, screening.Admissible, next)
	return nil
}

func (t *TrialRun) fail(err error, stage int, message string) error {
	t.state = StateFailed
	return classify(err, fmt.Sprintf("stage %d: %s", stage, message))
}

// Finalize produces the trial result. It is only legal once the stage loop has
// ended, and only once.
func (t *TrialRun) Finalize() (*trial.TrialResult, error) {
	if t.state != StateTerminatedEarly && t.state != StateCompleted {
		return nil, core.NewOrderingError("finalize", t.state.String())
	}

	res := &trial.TrialResult{
		Outcomes:          t.outcomes,
		AllocationHistory: t.history,
		Stages:            t.records,
		Seed:              t.seed,
	}
	if t.post != nil {
		summaries := t.post.Summaries
		res.FinalPosterior = &summaries
	}

	switch {
	case t.state == StateTerminatedEarly:
		res.Status = trial.StatusTerminatedEarly
		res.Reason = trial.ReasonEmptyAdmissible
		res.TerminatedEarly = true
		res.TerminationStage = t.terminationStage

	case t.admissible.IsEmpty():
		res.Status = trial.StatusCompletedWithoutDose
		res.Reason = trial.ReasonNoAdmissibleAtFinal

	default:
		poc, err := decision.ValidatePoC(t.admissible, t.utilities, t.post.EffMarginal, t.cfg.PoC)
		if err != nil {
			t.state = StateFailed
			return nil, classify(err, "PoC validation failed")
		}
		res.BestDose = poc.BestDose
		res.BestUtility = poc.BestUtility
		res.PoCProbability = poc.Probability
		res.PoCValidated = poc.Validated
		res.FinalDose = poc.SelectedDose()
		if poc.Validated {
			res.Status = trial.StatusCompletedWithDose
			res.Reason = trial.ReasonSelected
		} else {
			res.Status = trial.StatusCompletedWithoutDose
			res.Reason = trial.ReasonPoCNotMet
		}
	}

	fp, err := core.HashJSON(t.cfg, t.scenario, t.seed)
	if err != nil {
		return nil, classify(err, "fingerprint failed")
	}
	res.Fingerprint = fp

	if err := res.Validate(); err != nil {
		t.state = StateFailed
		return nil, classify(fmt.Errorf("%w: %v", core.ErrSimulationFailure, err), "inconsistent trial result")
	}

	t.state = StateFinalized
	t.result = res
	t.runner.logger.Debug("seed %d: %s (%s) dose=%d poc=%.3f", t.seed, res.Status, res.Reason, int(res.FinalDose), res.PoCProbability)
	return res, nil
}

// Result returns the finalized result, or nil before Finalize
func (t *TrialRun) Result() *trial.TrialResult { return t.result }
