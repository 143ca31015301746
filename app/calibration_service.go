package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"gotrial/domain/calibration"
	"gotrial/domain/core"
	"gotrial/domain/trial"
	"gotrial/internal"
	"gotrial/internal/config"
	"gotrial/ports"
)

// SeedStride separates the seeds of consecutive simulations. Stage seeds are
// base+stage, so the stride keeps the stage streams of different simulations
// apart.
const SeedStride = 1000

// CalibrationRequest defines one threshold search
type CalibrationRequest struct {
	Kind        calibration.Kind
	Parameter   calibration.Parameter
	Selection   calibration.Selection // empty selects the most stringent qualifier
	Candidates  []float64
	Target      float64
	Simulations int     // per candidate; zero uses the service default
	Confidence  float64 // zero uses the service default
	BaseSeed    int64
	Config      *trial.Configuration
	Scenario    *trial.Scenario
}

// CalibrationService runs the Monte Carlo threshold search. Simulations of a
// batch are independent, so they run as a bounded parallel map.
type CalibrationService struct {
	simulator ports.TrialSimulator
	settings  config.CalibrationConfig
	logger    *internal.Logger
}

// NewCalibrationService creates a calibration service
func NewCalibrationService(simulator ports.TrialSimulator, settings config.CalibrationConfig, logger *internal.Logger) *CalibrationService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	return &CalibrationService{
		simulator: simulator,
		settings:  settings,
		logger:    logger.With("calibration"),
	}
}

// Calibrate evaluates every candidate on the same family of seeds and selects
// one qualifying candidate by the request's selection rule. A cancelled
// context returns the simulations finished so far with Partial set.
func (s *CalibrationService) Calibrate(ctx context.Context, req CalibrationRequest) (*calibration.Result, error) {
	startTime := time.Now()

	if err := s.validate(&req); err != nil {
		return nil, classify(err, "invalid calibration request")
	}

	candidates := append([]float64(nil), req.Candidates...)
	sort.Float64s(candidates)

	// each candidate customizes its own copy of the base design
	configs := make([]trial.Configuration, len(candidates))
	for i, c := range candidates {
		configs[i] = req.Config.Clone()
		if err := req.Parameter.Apply(&configs[i], c); err != nil {
			return nil, classify(err, "invalid candidate")
		}
	}

	seeds := SeedFamily(req.BaseSeed, req.Simulations)
	result := &calibration.Result{
		ID:         core.NewCalibrationID(),
		Kind:       req.Kind,
		Parameter:  req.Parameter,
		Selection:  req.Selection,
		Target:     req.Target,
		Confidence: req.Confidence,
		Points:     make([]calibration.Point, len(candidates)),
	}

	s.logger.Info("calibration %s: %s over %d candidates, %d simulations each, %d workers",
		result.ID, req.Parameter, len(candidates), req.Simulations, s.settings.Workers)

	partial := false
	for i, c := range candidates {
		outcomes, complete := s.runBatch(ctx, &configs[i], req.Scenario, seeds)
		point := AggregatePoint(req.Kind, c, req.Target, req.Confidence, outcomes)
		result.Points[i] = point
		s.logger.Info("candidate %.4f: rate %.4f [%.4f, %.4f] over %d runs (%d failed)",
			c, point.Rate, point.CILower, point.CIUpper, point.Simulations, point.Failures)
		if !complete {
			partial = true
			// later candidates never started; keep their points empty but present
			for j := i + 1; j < len(candidates); j++ {
				result.Points[j] = AggregatePoint(req.Kind, candidates[j], req.Target, req.Confidence, nil)
			}
			break
		}
	}

	result.SelectedIndex, result.ControlAchieved = SelectCandidate(result.Points, req.Target, req.Kind, req.Selection)
	result.Selected = result.Points[result.SelectedIndex].Candidate
	result.Partial = partial
	result.Duration = time.Since(startTime)

	if partial {
		s.logger.Warn("calibration %s cancelled; returning partial result", result.ID)
	}
	if !result.ControlAchieved {
		s.logger.Warn("calibration %s: no candidate meets target %.4f, falling back to %.4f",
			result.ID, req.Target, result.Selected)
	}
	return result, nil
}

func (s *CalibrationService) validate(req *CalibrationRequest) error {
	if len(req.Candidates) == 0 {
		return core.ErrNoCandidates
	}
	if req.Config == nil || req.Scenario == nil {
		return core.NewValidationError("request", "design and scenario are required")
	}
	if _, err := calibration.ParseKind(string(req.Kind)); err != nil {
		return core.NewValidationError("kind", err.Error())
	}
	if _, err := calibration.ParseParameter(string(req.Parameter)); err != nil {
		return core.NewValidationError("parameter", err.Error())
	}
	sel, err := calibration.ParseSelection(string(req.Selection))
	if err != nil {
		return core.NewValidationError("selection", err.Error())
	}
	req.Selection = sel
	if req.Target < 0 || req.Target > 1 || math.IsNaN(req.Target) {
		return core.NewValidationError("target", fmt.Sprintf("%g outside [0,1]", req.Target))
	}
	if req.Simulations == 0 {
		req.Simulations = s.settings.Simulations
	}
	if req.Simulations < 1 {
		return core.NewValidationError("simulations", "must be positive")
	}
	if req.Confidence == 0 {
		req.Confidence = s.settings.Confidence
	}
	if req.Confidence <= 0 || req.Confidence >= 1 {
		return core.NewValidationError("confidence", fmt.Sprintf("%g outside (0,1)", req.Confidence))
	}
	for _, c := range req.Candidates {
		if c < 0 || c > 1 || math.IsNaN(c) {
			return core.NewValidationError("candidates", fmt.Sprintf("%g outside [0,1]", c))
		}
	}
	if err := req.Config.Validate(); err != nil {
		return err
	}
	return req.Scenario.Validate(req.Config.NumDoses)
}

// SeedFamily returns the seeds base + i*SeedStride for i in [0,n)
func SeedFamily(base int64, n int) []int64 {
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = base + int64(i)*SeedStride
	}
	return seeds
}

// runBatch simulates one design over every seed. It reports false when the
// context was cancelled before every simulation ran; the returned slice then
// holds only the finished ones, in seed order.
func (s *CalibrationService) runBatch(ctx context.Context, cfg *trial.Configuration, scenario *trial.Scenario, seeds []int64) ([]calibration.SimulationOutcome, bool) {
	outcomes := make([]calibration.SimulationOutcome, len(seeds))
	done := make([]bool, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Workers)
	for i, seed := range seeds {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcomes[i] = s.simulate(i, seed, cfg, scenario)
			done[i] = true
			return nil
		})
	}
	_ = g.Wait() // per-simulation errors live in the outcomes

	finished := outcomes[:0]
	for i := range outcomes {
		if done[i] {
			finished = append(finished, outcomes[i])
		}
	}
	return finished, len(finished) == len(seeds)
}

// simulate runs one trial, isolating errors and panics into a conservative outcome
func (s *CalibrationService) simulate(index int, seed int64, cfg *trial.Configuration, scenario *trial.Scenario) (out calibration.SimulationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic: %v", core.ErrSimulationFailure, r)
			s.logger.Warn("simulation %d (seed %d) panicked: %v", index, seed, r)
			out = calibration.FailedOutcome(index, seed, err)
		}
	}()

	res, err := s.simulator.Simulate(cfg, scenario, &seed)
	if err != nil {
		s.logger.Warn("simulation %d (seed %d) failed: %v", index, seed, err)
		return calibration.FailedOutcome(index, seed, err)
	}
	return calibration.OutcomeOf(index, seed, cfg.NumDoses, res)
}

// AggregatePoint turns the outcomes of one candidate into a calibration point
func AggregatePoint(kind calibration.Kind, candidate, target, confidence float64, outcomes []calibration.SimulationOutcome) calibration.Point {
	p := calibration.Point{Candidate: candidate, Simulations: len(outcomes)}
	if len(outcomes) == 0 {
		p.CILower, p.CIUpper = 0, 1
		p.Notes = append(p.Notes, "no simulations completed")
		return p
	}

	var detected, terminated, completed int
	for _, o := range outcomes {
		if o.Detected {
			detected++
		}
		if o.TerminatedEarly {
			terminated++
		} else {
			completed++
		}
		if o.Failed {
			p.Failures++
			p.Notes = append(p.Notes, fmt.Sprintf("seed %d: %s", o.Seed, o.Note))
		}
	}

	n := float64(len(outcomes))
	p.DetectionRate = float64(detected) / n
	p.TerminationRate = float64(terminated) / n
	p.CompletionRate = float64(completed) / n

	hits := detected
	if kind == calibration.KindFutility {
		hits = terminated
	}
	p.Rate = float64(hits) / n
	p.CILower, p.CIUpper = ClopperPearson(hits, len(outcomes), confidence)
	p.Qualifies = kind.Qualifies(p.Rate, target)
	return p
}

// SelectCandidate picks one qualifying point among those with simulations.
// SelectConservative takes the most stringent qualifier; SelectClosest takes
// the qualifier whose rate is closest to the target, preferring the more
// stringent candidate on ties. Without a qualifier it falls back to the most
// stringent candidate that ran and reports false. Points must be sorted by
// candidate.
func SelectCandidate(points []calibration.Point, target float64, kind calibration.Kind, sel calibration.Selection) (int, bool) {
	best := -1
	bestGap := math.Inf(1)
	fallback := -1
	for i, p := range points {
		if p.Simulations == 0 {
			continue
		}
		fallback = i
		if !kind.Qualifies(p.Rate, target) {
			continue
		}
		if sel != calibration.SelectClosest {
			best = i
			continue
		}
		// iterating upward, <= moves ties to the more stringent candidate
		if gap := math.Abs(p.Rate - target); gap <= bestGap {
			best, bestGap = i, gap
		}
	}
	if best >= 0 {
		return best, true
	}
	if fallback < 0 {
		fallback = len(points) - 1
	}
	return fallback, false
}

// ClopperPearson is the exact binomial interval for k successes in n trials
func ClopperPearson(k, n int, confidence float64) (lower, upper float64) {
	if n <= 0 {
		return 0, 1
	}
	alpha := 1 - confidence
	lower, upper = 0, 1
	if k > 0 {
		lower = distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}.Quantile(alpha / 2)
	}
	if k < n {
		upper = distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}.Quantile(1 - alpha/2)
	}
	return lower, upper
}
