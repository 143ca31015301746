package app

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotrial/domain/calibration"
	"gotrial/domain/core"
	"gotrial/domain/trial"
	"gotrial/internal/config"
	"gotrial/internal/testkit"
)

// ladderSimulator detects a dose when the simulation's position in the seed
// family, taken mod 10 and scaled to [0, 0.9], exceeds c_poc.
type ladderSimulator struct {
	base int64
}

func (l ladderSimulator) Simulate(cfg *trial.Configuration, _ *trial.Scenario, seed *int64) (*trial.TrialResult, error) {
	u := float64(((*seed-l.base)/SeedStride)%10) / 10
	res := &trial.TrialResult{Seed: *seed, PoCProbability: u, BestDose: 1}
	if u > cfg.PoC.Credibility {
		res.Status = trial.StatusCompletedWithDose
		res.Reason = trial.ReasonSelected
		res.FinalDose = 1
		res.PoCValidated = true
	} else {
		res.Status = trial.StatusCompletedWithoutDose
		res.Reason = trial.ReasonPoCNotMet
	}
	return res, nil
}

func testSettings() config.CalibrationConfig {
	return config.CalibrationConfig{Workers: 4, Simulations: 50, Confidence: 0.95}
}

func ladderRequest(cfg *trial.Configuration) CalibrationRequest {
	return CalibrationRequest{
		Kind:        calibration.KindFalsePositive,
		Parameter:   calibration.ParamPoC,
		Candidates:  []float64{0.95, 0.5, 0.85},
		Target:      0.1,
		Simulations: 100,
		BaseSeed:    17,
		Config:      cfg,
		Scenario:    testkit.Scenario("flat"),
	}
}

func TestCalibrateSelectsMostStringentQualifier(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := NewCalibrationService(ladderSimulator{base: 17}, testSettings(), kit.Logger())
	cfg := testkit.Design("default", 100)
	original := cfg.Clone()

	res, err := svc.Calibrate(context.Background(), ladderRequest(&cfg))
	require.NoError(t, err)

	require.Len(t, res.Points, 3)
	assert.Equal(t, []float64{0.5, 0.85, 0.95}, []float64{res.Points[0].Candidate, res.Points[1].Candidate, res.Points[2].Candidate})
	assert.InDelta(t, 0.4, res.Points[0].Rate, 1e-12)
	assert.InDelta(t, 0.1, res.Points[1].Rate, 1e-12)
	assert.InDelta(t, 0.0, res.Points[2].Rate, 1e-12)

	// 0.85 and 0.95 both keep the rate at or below 0.1
	assert.True(t, res.ControlAchieved)
	assert.Equal(t, 0.95, res.Selected)
	assert.Equal(t, 2, res.SelectedIndex)
	assert.Equal(t, calibration.SelectConservative, res.Selection)
	assert.False(t, res.Partial)
	assert.False(t, res.ID.String() == "")
	assert.Equal(t, 0.95, res.Confidence)

	for _, p := range res.Points {
		assert.Equal(t, 100, p.Simulations)
		assert.LessOrEqual(t, p.CILower, p.Rate)
		assert.GreaterOrEqual(t, p.CIUpper, p.Rate)
		assert.InDelta(t, 1.0, p.CompletionRate, 1e-12)
	}

	// the shared design is never customized in place
	assert.Equal(t, original, cfg)
}

func TestCalibrateSelectsClosestWhenRequested(t *testing.T) {
	svc := NewCalibrationService(ladderSimulator{base: 17}, testSettings(), testkit.NewTestKit().Logger())
	cfg := testkit.Design("default", 100)
	req := ladderRequest(&cfg)
	req.Selection = calibration.SelectClosest

	res, err := svc.Calibrate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.ControlAchieved)
	assert.Equal(t, 0.85, res.Selected)
	assert.Equal(t, 1, res.SelectedIndex)
	assert.Equal(t, calibration.SelectClosest, res.Selection)
}

func TestCalibrateNoCandidateQualifies(t *testing.T) {
	svc := NewCalibrationService(ladderSimulator{base: 17}, testSettings(), testkit.NewTestKit().Logger())
	cfg := testkit.Design("default", 100)
	req := ladderRequest(&cfg)
	req.Candidates = []float64{0.1, 0.3}

	res, err := svc.Calibrate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.ControlAchieved)
	assert.Equal(t, 0.3, res.Selected)
	assert.Equal(t, 1, res.SelectedIndex)
}

func TestCalibrateIsolatesFailures(t *testing.T) {
	for _, panics := range []bool{false, true} {
		flaky := &testkit.FlakySimulator{Inner: ladderSimulator{base: 17}, Every: 5, Panic: panics}
		svc := NewCalibrationService(flaky, testSettings(), testkit.NewTestKit().Logger())
		cfg := testkit.Design("default", 100)
		req := ladderRequest(&cfg)
		req.Candidates = []float64{0.5}
		req.Simulations = 20

		res, err := svc.Calibrate(context.Background(), req)
		require.NoError(t, err)
		p := res.Points[0]
		assert.Equal(t, 20, p.Simulations)
		assert.Equal(t, 4, p.Failures)
		assert.Len(t, p.Notes, 4)
		assert.InDelta(t, 0.2, p.TerminationRate, 1e-12)
	}
}

func TestCalibrateCancelled(t *testing.T) {
	svc := NewCalibrationService(ladderSimulator{base: 17}, testSettings(), testkit.NewTestKit().Logger())
	cfg := testkit.Design("default", 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Calibrate(ctx, ladderRequest(&cfg))
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.False(t, res.ControlAchieved)
	for _, p := range res.Points {
		assert.Zero(t, p.Simulations)
	}
}

func TestCalibrateValidation(t *testing.T) {
	svc := NewCalibrationService(ladderSimulator{}, testSettings(), testkit.NewTestKit().Logger())
	cfg := testkit.Design("default", 100)

	req := ladderRequest(&cfg)
	req.Candidates = nil
	_, err := svc.Calibrate(context.Background(), req)
	assert.True(t, errors.Is(err, core.ErrNoCandidates))

	req = ladderRequest(&cfg)
	req.Candidates = []float64{0.5, 1.2}
	_, err = svc.Calibrate(context.Background(), req)
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))

	req = ladderRequest(&cfg)
	req.Kind = "bogus"
	_, err = svc.Calibrate(context.Background(), req)
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))

	req = ladderRequest(&cfg)
	req.Selection = "nearest"
	_, err = svc.Calibrate(context.Background(), req)
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))

	req = ladderRequest(&cfg)
	req.Target = -0.1
	_, err = svc.Calibrate(context.Background(), req)
	assert.Error(t, err)
}

func TestCalibrateUsesServiceDefaults(t *testing.T) {
	svc := NewCalibrationService(ladderSimulator{base: 17}, testSettings(), testkit.NewTestKit().Logger())
	cfg := testkit.Design("default", 100)
	req := ladderRequest(&cfg)
	req.Simulations = 0
	req.Confidence = 0

	res, err := svc.Calibrate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Points[0].Simulations)
	assert.Equal(t, 0.95, res.Confidence)
}

// Raising c_poc never raises the null detection rate: with common seeds the
// trajectories are identical and only the final gate tightens.
func TestCalibrationMonotoneInCredibility(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := NewCalibrationService(newRunner(kit), testSettings(), kit.Logger())
	cfg := testkit.Design("default", 150)
	cfg.NumStages = 3

	res, err := svc.Calibrate(context.Background(), CalibrationRequest{
		Kind:        calibration.KindFalsePositive,
		Parameter:   calibration.ParamPoC,
		Candidates:  []float64{0, 0.3, 0.6, 0.9},
		Target:      0.1,
		Simulations: 16,
		BaseSeed:    2024,
		Config:      &cfg,
		Scenario:    testkit.Scenario("flat"),
	})
	require.NoError(t, err)

	for i := 1; i < len(res.Points); i++ {
		assert.LessOrEqual(t, res.Points[i].DetectionRate, res.Points[i-1].DetectionRate)
		assert.Zero(t, res.Points[i].Failures)
	}
}

// Under the null scenario the selected c_poc holds the detection rate at or
// below the target.
func TestCalibrateFlatScenarioControlsDetection(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := NewCalibrationService(newRunner(kit), testSettings(), kit.Logger())
	cfg := testkit.Design("default", 150)
	cfg.NumStages = 3

	res, err := svc.Calibrate(context.Background(), CalibrationRequest{
		Kind:        calibration.KindFalsePositive,
		Parameter:   calibration.ParamPoC,
		Candidates:  []float64{0.6, 0.8, 0.9, 0.95},
		Target:      0.1,
		Simulations: 50,
		BaseSeed:    31,
		Config:      &cfg,
		Scenario:    testkit.Scenario("flat"),
	})
	require.NoError(t, err)
	require.True(t, res.ControlAchieved)

	sel := res.Points[res.SelectedIndex]
	assert.Equal(t, res.Selected, sel.Candidate)
	assert.Equal(t, 50, sel.Simulations)
	assert.Zero(t, sel.Failures)
	assert.LessOrEqual(t, sel.DetectionRate, 0.1)
	assert.LessOrEqual(t, sel.CILower, 0.1)
	assert.LessOrEqual(t, sel.DetectionRate, res.Points[0].DetectionRate)
	for _, p := range res.Points[res.SelectedIndex+1:] {
		assert.False(t, p.Qualifies)
	}
}

// Under uniformly toxic doses a c_T search reaches the futility target.
func TestCalibrateUnsafeScenarioReachesFutility(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := NewCalibrationService(newRunner(kit), testSettings(), kit.Logger())
	cfg := testkit.Design("default", 150)
	cfg.NumStages = 3

	res, err := svc.Calibrate(context.Background(), CalibrationRequest{
		Kind:        calibration.KindFutility,
		Parameter:   calibration.ParamSafety,
		Candidates:  []float64{0.2, 0.3, 0.5},
		Target:      0.8,
		Simulations: 50,
		BaseSeed:    41,
		Config:      &cfg,
		Scenario:    testkit.Scenario("unsafe"),
	})
	require.NoError(t, err)
	require.True(t, res.ControlAchieved)
	assert.False(t, res.Partial)

	sel := res.Points[res.SelectedIndex]
	assert.Equal(t, 50, sel.Simulations)
	assert.Zero(t, sel.Failures)
	assert.GreaterOrEqual(t, sel.TerminationRate, 0.8)
	assert.Equal(t, sel.TerminationRate, sel.Rate)
}

func TestSeedFamily(t *testing.T) {
	assert.Equal(t, []int64{5, 1005, 2005}, SeedFamily(5, 3))
	assert.Empty(t, SeedFamily(5, 0))
}

func TestSelectCandidate(t *testing.T) {
	points := func(rates ...float64) []calibration.Point {
		out := make([]calibration.Point, len(rates))
		for i, r := range rates {
			out[i] = calibration.Point{Candidate: float64(i), Rate: r, Simulations: 10}
		}
		return out
	}
	// the last two candidates never ran
	cancelled := points(0.3, 0.2, 0, 0)
	cancelled[2].Simulations = 0
	cancelled[3].Simulations = 0

	tests := []struct {
		name    string
		kind    calibration.Kind
		sel     calibration.Selection
		target  float64
		points  []calibration.Point
		want    int
		control bool
	}{
		{"most stringent qualifier", calibration.KindFalsePositive, calibration.SelectConservative, 0.1, points(0.3, 0.12, 0.09, 0.05), 3, true},
		{"empty rule is conservative", calibration.KindFalsePositive, "", 0.1, points(0.3, 0.08, 0.12), 1, true},
		{"closest qualifier", calibration.KindFalsePositive, calibration.SelectClosest, 0.1, points(0.3, 0.12, 0.09, 0.05), 2, true},
		{"closest tie goes stringent", calibration.KindFalsePositive, calibration.SelectClosest, 0.1, points(0.2, 0.08, 0.08), 2, true},
		{"none qualify", calibration.KindFalsePositive, calibration.SelectConservative, 0.1, points(0.5, 0.4), 1, false},
		{"futility most stringent", calibration.KindFutility, calibration.SelectConservative, 0.8, points(0.5, 0.85, 0.95), 2, true},
		{"futility closest", calibration.KindFutility, calibration.SelectClosest, 0.8, points(0.5, 0.85, 0.95), 1, true},
		{"skips points without runs", calibration.KindFalsePositive, calibration.SelectConservative, 0.1, cancelled, 1, false},
		{"nothing ran", calibration.KindFalsePositive, calibration.SelectConservative, 0.1, []calibration.Point{{Candidate: 0.5}, {Candidate: 0.9}}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, control := SelectCandidate(tt.points, tt.target, tt.kind, tt.sel)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.control, control)
		})
	}
}

func TestAggregatePoint(t *testing.T) {
	outcomes := []calibration.SimulationOutcome{
		{Detected: true, Completed: true},
		{TerminatedEarly: true},
		{TerminatedEarly: true, Failed: true, Seed: 3, Note: "boom"},
		{Completed: true},
	}

	fp := AggregatePoint(calibration.KindFalsePositive, 0.5, 0.1, 0.95, outcomes)
	assert.Equal(t, 0.25, fp.Rate)
	assert.Equal(t, 0.25, fp.DetectionRate)
	assert.Equal(t, 0.5, fp.TerminationRate)
	assert.Equal(t, 0.5, fp.CompletionRate)
	assert.Equal(t, 1, fp.Failures)
	assert.Equal(t, []string{"seed 3: boom"}, fp.Notes)
	assert.False(t, fp.Qualifies)

	fut := AggregatePoint(calibration.KindFutility, 0.5, 0.5, 0.95, outcomes)
	assert.Equal(t, 0.5, fut.Rate)
	assert.True(t, fut.Qualifies)

	empty := AggregatePoint(calibration.KindFutility, 0.5, 0.5, 0.95, nil)
	assert.Zero(t, empty.Simulations)
	assert.Equal(t, 1.0, empty.CIUpper)
	assert.False(t, empty.Qualifies)
}

func TestClopperPearson(t *testing.T) {
	lo, hi := ClopperPearson(0, 10, 0.95)
	assert.Equal(t, 0.0, lo)
	assert.InDelta(t, 1-math.Pow(0.025, 0.1), hi, 1e-9)

	lo, hi = ClopperPearson(10, 10, 0.95)
	assert.InDelta(t, math.Pow(0.025, 0.1), lo, 1e-9)
	assert.Equal(t, 1.0, hi)

	lo, hi = ClopperPearson(5, 10, 0.95)
	assert.InDelta(t, 0.187, lo, 1e-3)
	assert.InDelta(t, 0.813, hi, 1e-3)

	lo, hi = ClopperPearson(0, 0, 0.95)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)
}
