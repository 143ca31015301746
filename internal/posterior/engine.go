package posterior

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gotrial/domain/core"
	"gotrial/domain/trial"
)

// Posterior is the full posterior state of one analysis. Draw matrices are
// numSamples x J; the adjusted ones are already monotone.
type Posterior struct {
	NumDoses   int
	NumSamples int

	Immune   *mat.Dense   // adjusted immune draws
	Toxicity []*mat.Dense // adjusted toxicity draws per immune group
	Efficacy []*mat.Dense // adjusted efficacy draws per immune group

	ToxMarginal *mat.Dense
	EffMarginal *mat.Dense

	Summaries trial.PosteriorSummaries
}

// ImmuneMean is the adjusted posterior mean response rate at dose index d
func (p *Posterior) ImmuneMean(d int) float64 {
	return p.Summaries.Immune[d].AdjustedMean
}

// ToxicityMean is the adjusted posterior mean toxicity at dose index d, group g
func (p *Posterior) ToxicityMean(d, g int) float64 {
	return p.Summaries.Toxicity[d][g].AdjustedMean
}

// EfficacyMean is the adjusted posterior mean efficacy at dose index d, group g
func (p *Posterior) EfficacyMean(d, g int) float64 {
	return p.Summaries.Efficacy[d][g].AdjustedMean
}

// Engine recomputes posteriors from the full cumulative data set
type Engine struct {
	// RetainDraws keeps per-draw samples in the summaries
	RetainDraws bool
}

// NewEngine creates a posterior engine that keeps draws in its summaries
func NewEngine() *Engine {
	return &Engine{RetainDraws: true}
}

// Update recomputes every posterior from scratch. Draws are taken from rng in
// a fixed order (immune, toxicity by group, efficacy by group) so a seeded
// stream replays exactly. A nil rng consumes gonum's global source.
func (e *Engine) Update(data []trial.PatientOutcome, numDoses, numSamples, stage int, rng *rand.Rand) (*Posterior, error) {
	if numDoses < 1 || numSamples < 1 {
		return nil, core.NewValidationError("posterior", fmt.Sprintf("need positive doses and samples, got %d and %d", numDoses, numSamples))
	}

	var src rand.Source
	if rng != nil {
		src = rng
	}

	immuneCounts := Aggregate(data, numDoses, trial.EndpointImmune)
	toxCounts := AggregateByGroup(data, numDoses, trial.EndpointToxicity)
	effCounts := AggregateByGroup(data, numDoses, trial.EndpointEfficacy)

	immuneRaw := SampleBeta(immuneCounts, numSamples, src)
	toxRaw := make([]*mat.Dense, trial.NumImmuneGroups)
	for g := range toxRaw {
		toxRaw[g] = SampleBeta(GroupColumn(toxCounts, g), numSamples, src)
	}
	effRaw := make([]*mat.Dense, trial.NumImmuneGroups)
	for g := range effRaw {
		effRaw[g] = SampleBeta(GroupColumn(effCounts, g), numSamples, src)
	}

	immune := EnforceMonotoneUnivariate(immuneRaw, InverseVariance(immuneCounts))
	tox := EnforceMonotoneBivariate(toxRaw, gridWeights(toxCounts))
	eff := EnforceMonotoneBivariate(effRaw, gridWeights(effCounts))

	toxMarginal, err := Marginalize(tox, immune)
	if err != nil {
		return nil, err
	}
	effMarginal, err := Marginalize(eff, immune)
	if err != nil {
		return nil, err
	}

	checks := []struct {
		name string
		m    *mat.Dense
	}{
		{"immune draws", immune},
		{"toxicity draws (group 0)", tox[0]},
		{"toxicity draws (group 1)", tox[1]},
		{"efficacy draws (group 0)", eff[0]},
		{"efficacy draws (group 1)", eff[1]},
		{"toxicity marginal", toxMarginal},
		{"efficacy marginal", effMarginal},
	}
	for _, c := range checks {
		if !finite(c.m) {
			return nil, core.NewNumericFaultError(c.name, stage)
		}
	}

	post := &Posterior{
		NumDoses:    numDoses,
		NumSamples:  numSamples,
		Immune:      immune,
		Toxicity:    tox,
		Efficacy:    eff,
		ToxMarginal: toxMarginal,
		EffMarginal: effMarginal,
	}

	post.Summaries.Immune = make([]trial.PosteriorSummary, numDoses)
	post.Summaries.Toxicity = make([][]trial.PosteriorSummary, numDoses)
	post.Summaries.Efficacy = make([][]trial.PosteriorSummary, numDoses)
	for d := 0; d < numDoses; d++ {
		post.Summaries.Immune[d] = e.summarize(immuneCounts[d], immuneRaw, immune, d)
		post.Summaries.Toxicity[d] = make([]trial.PosteriorSummary, trial.NumImmuneGroups)
		post.Summaries.Efficacy[d] = make([]trial.PosteriorSummary, trial.NumImmuneGroups)
		for g := 0; g < trial.NumImmuneGroups; g++ {
			post.Summaries.Toxicity[d][g] = e.summarize(toxCounts[d][g], toxRaw[g], tox[g], d)
			post.Summaries.Efficacy[d][g] = e.summarize(effCounts[d][g], effRaw[g], eff[g], d)
		}
	}

	return post, nil
}

func (e *Engine) summarize(c Count, raw, adjusted *mat.Dense, d int) trial.PosteriorSummary {
	samples := mat.Col(nil, d, raw)
	adj := mat.Col(nil, d, adjusted)

	mean, err := stats.Mean(adj)
	if err != nil {
		mean = c.Mean()
	}

	sorted := append([]float64(nil), adj...)
	sort.Float64s(sorted)

	s := trial.PosteriorSummary{
		Dose:         c.Dose,
		Group:        c.Group,
		Successes:    c.Successes,
		Trials:       c.Trials,
		Alpha:        c.Alpha(),
		Beta:         c.Beta(),
		Mean:         c.Mean(),
		Variance:     c.Variance(),
		AdjustedMean: mean,
		CILower:      stat.Quantile(0.025, stat.Empirical, sorted, nil),
		CIUpper:      stat.Quantile(0.975, stat.Empirical, sorted, nil),
	}
	if e.RetainDraws {
		s.Samples = samples
		s.AdjustedSamples = adj
	}
	return s
}

// Compact returns a copy of the summaries without per-draw samples
func Compact(s trial.PosteriorSummaries) trial.PosteriorSummaries {
	out := trial.PosteriorSummaries{
		Immune:   make([]trial.PosteriorSummary, len(s.Immune)),
		Toxicity: make([][]trial.PosteriorSummary, len(s.Toxicity)),
		Efficacy: make([][]trial.PosteriorSummary, len(s.Efficacy)),
	}
	for d, sum := range s.Immune {
		sum.Samples, sum.AdjustedSamples = nil, nil
		out.Immune[d] = sum
	}
	strip := func(dst, src [][]trial.PosteriorSummary) {
		for d := range src {
			dst[d] = make([]trial.PosteriorSummary, len(src[d]))
			for g, sum := range src[d] {
				sum.Samples, sum.AdjustedSamples = nil, nil
				dst[d][g] = sum
			}
		}
	}
	strip(out.Toxicity, s.Toxicity)
	strip(out.Efficacy, s.Efficacy)
	return out
}

func gridWeights(counts [][]Count) [][]float64 {
	w := make([][]float64, len(counts))
	for d := range counts {
		w[d] = InverseVariance(counts[d])
	}
	return w
}

func finite(m *mat.Dense) bool {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		for _, v := range m.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
