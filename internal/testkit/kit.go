package testkit

import (
	"fmt"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"gotrial/adapters/rng"
	"gotrial/domain/trial"
	"gotrial/internal"
	"gotrial/internal/posterior"
	"gotrial/internal/sampler"
	"gotrial/internal/scenarios"
	"gotrial/ports"
)

// TestKit provides adapters and fixtures for package tests
type TestKit struct {
	rng     ports.RNGPort
	sampler ports.OutcomeSampler
	logger  *internal.Logger
}

// NewTestKit creates a kit wired with the production adapters and a quiet logger
func NewTestKit() *TestKit {
	return &TestKit{
		rng:     rng.NewPCGAdapter(),
		sampler: sampler.NewCopulaSampler(),
		logger:  internal.NewLogger(internal.LogLevelError),
	}
}

func (k *TestKit) RNGAdapter() ports.RNGPort { return k.rng }
func (k *TestKit) Sampler() ports.OutcomeSampler { return k.sampler }
func (k *TestKit) Logger() *internal.Logger { return k.logger }
func (k *TestKit) Engine() *posterior.Engine { return posterior.NewEngine() }

// Seed returns a pointer to v
func Seed(v int64) *int64 { return &v }

// Design loads a preset design with a reduced posterior sample count
func Design(name string, numSamples int) trial.Configuration {
	cfg, err := scenarios.LoadDesign(name)
	if err != nil {
		panic(fmt.Sprintf("testkit: %v", err))
	}
	if numSamples > 0 {
		cfg.NumSamples = numSamples
	}
	return *cfg
}

// Scenario loads a preset scenario
func Scenario(name string) *trial.Scenario {
	s, err := scenarios.LoadScenario(name)
	if err != nil {
		panic(fmt.Sprintf("testkit: %v", err))
	}
	return s
}

// ConstantPosterior builds a posterior whose draws all equal the given
// probabilities, with tox and eff indexed [dose][group].
func ConstantPosterior(immune []float64, tox, eff [][trial.NumImmuneGroups]float64, numSamples int) *posterior.Posterior {
	j := len(immune)
	post := &posterior.Posterior{
		NumDoses:   j,
		NumSamples: numSamples,
		Immune:     constantDraws(numSamples, immune),
		Toxicity:   make([]*mat.Dense, trial.NumImmuneGroups),
		Efficacy:   make([]*mat.Dense, trial.NumImmuneGroups),
	}
	for g := 0; g < trial.NumImmuneGroups; g++ {
		post.Toxicity[g] = constantDraws(numSamples, column(tox, g))
		post.Efficacy[g] = constantDraws(numSamples, column(eff, g))
	}
	var err error
	if post.ToxMarginal, err = posterior.Marginalize(post.Toxicity, post.Immune); err != nil {
		panic(err)
	}
	if post.EffMarginal, err = posterior.Marginalize(post.Efficacy, post.Immune); err != nil {
		panic(err)
	}

	post.Summaries.Immune = make([]trial.PosteriorSummary, j)
	post.Summaries.Toxicity = make([][]trial.PosteriorSummary, j)
	post.Summaries.Efficacy = make([][]trial.PosteriorSummary, j)
	for d := 0; d < j; d++ {
		post.Summaries.Immune[d] = pointSummary(d, trial.NoGroup, immune[d])
		post.Summaries.Toxicity[d] = make([]trial.PosteriorSummary, trial.NumImmuneGroups)
		post.Summaries.Efficacy[d] = make([]trial.PosteriorSummary, trial.NumImmuneGroups)
		for g := 0; g < trial.NumImmuneGroups; g++ {
			post.Summaries.Toxicity[d][g] = pointSummary(d, g, tox[d][g])
			post.Summaries.Efficacy[d][g] = pointSummary(d, g, eff[d][g])
		}
	}
	return post
}

// SingleAdmissiblePosterior is a hand-built posterior in which only dose
// `admissible` passes screening under the default design: lower doses lack
// efficacy and higher doses are toxic.
func SingleAdmissiblePosterior(numDoses int, admissible trial.DoseLevel, numSamples int) *posterior.Posterior {
	immune := make([]float64, numDoses)
	tox := make([][trial.NumImmuneGroups]float64, numDoses)
	eff := make([][trial.NumImmuneGroups]float64, numDoses)
	for d := 0; d < numDoses; d++ {
		immune[d] = 0.6
		switch dose := trial.DoseAt(d); {
		case dose < admissible:
			tox[d] = [2]float64{0.05, 0.05}
			eff[d] = [2]float64{0.05, 0.10}
		case dose == admissible:
			tox[d] = [2]float64{0.05, 0.10}
			eff[d] = [2]float64{0.50, 0.60}
		default:
			tox[d] = [2]float64{0.85, 0.90}
			eff[d] = [2]float64{0.60, 0.70}
		}
	}
	return ConstantPosterior(immune, tox, eff, numSamples)
}

func constantDraws(rows int, values []float64) *mat.Dense {
	m := mat.NewDense(rows, len(values), nil)
	for s := 0; s < rows; s++ {
		copy(m.RawRowView(s), values)
	}
	return m
}

func column(x [][trial.NumImmuneGroups]float64, g int) []float64 {
	out := make([]float64, len(x))
	for d := range x {
		out[d] = x[d][g]
	}
	return out
}

func pointSummary(d, g int, p float64) trial.PosteriorSummary {
	return trial.PosteriorSummary{
		Dose:         trial.DoseAt(d),
		Group:        g,
		Mean:         p,
		AdjustedMean: p,
		CILower:      p,
		CIUpper:      p,
	}
}

// FlakySimulator fails every Nth call and delegates the rest
type FlakySimulator struct {
	Inner ports.TrialSimulator
	Every int64
	Panic bool

	calls atomic.Int64
}

func (f *FlakySimulator) Simulate(cfg *trial.Configuration, scenario *trial.Scenario, seed *int64) (*trial.TrialResult, error) {
	n := f.calls.Add(1)
	if f.Every > 0 && n%f.Every == 0 {
		if f.Panic {
			panic(fmt.Sprintf("flaky simulator call %d", n))
		}
		return nil, fmt.Errorf("flaky simulator call %d", n)
	}
	return f.Inner.Simulate(cfg, scenario, seed)
}
