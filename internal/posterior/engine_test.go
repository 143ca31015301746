package posterior

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gotrial/domain/core"
	"gotrial/domain/trial"
)

func outcome(dose, immune, tox, eff int) trial.PatientOutcome {
	return trial.PatientOutcome{Dose: trial.DoseLevel(dose), Stage: 1, Immune: immune, Toxicity: tox, Efficacy: eff}
}

func sampleData() []trial.PatientOutcome {
	return []trial.PatientOutcome{
		outcome(1, 0, 0, 0),
		outcome(1, 1, 0, 1),
		outcome(1, 0, 1, 0),
		outcome(2, 1, 0, 1),
		outcome(2, 1, 1, 1),
		outcome(2, 0, 0, 0),
		outcome(3, 1, 0, 1),
		outcome(3, 1, 1, 1),
	}
}

func TestAggregate(t *testing.T) {
	counts := Aggregate(sampleData(), 4, trial.EndpointImmune)
	require.Len(t, counts, 4)
	assert.Equal(t, Count{Dose: 1, Group: trial.NoGroup, Successes: 1, Trials: 3}, counts[0])
	assert.Equal(t, Count{Dose: 2, Group: trial.NoGroup, Successes: 2, Trials: 3}, counts[1])
	assert.Equal(t, Count{Dose: 3, Group: trial.NoGroup, Successes: 2, Trials: 2}, counts[2])
	assert.Equal(t, 0, counts[3].Trials)
	assert.InDelta(t, 0.5, counts[3].Mean(), 1e-12)

	grouped := AggregateByGroup(sampleData(), 4, trial.EndpointToxicity)
	assert.Equal(t, 2, grouped[0][trial.GroupNoImmune].Trials)
	assert.Equal(t, 1, grouped[0][trial.GroupNoImmune].Successes)
	assert.Equal(t, 1, grouped[0][trial.GroupImmune].Trials)
	assert.Equal(t, 2, grouped[2][trial.GroupImmune].Trials)
	assert.Equal(t, 0, grouped[2][trial.GroupNoImmune].Trials)
}

func TestCountMoments(t *testing.T) {
	c := Count{Successes: 3, Trials: 10}
	assert.Equal(t, 4.0, c.Alpha())
	assert.Equal(t, 8.0, c.Beta())
	assert.InDelta(t, 4.0/12.0, c.Mean(), 1e-12)
	assert.InDelta(t, 4.0*8.0/(144.0*13.0), c.Variance(), 1e-12)
}

func TestSampleBetaMoments(t *testing.T) {
	counts := []Count{{Successes: 0, Trials: 0}, {Successes: 8, Trials: 10}}
	m := SampleBeta(counts, 20000, rand.New(rand.NewPCG(1, 2)))
	rows, cols := m.Dims()
	require.Equal(t, 20000, rows)
	require.Equal(t, 2, cols)

	for j, c := range counts {
		col := mat.Col(nil, j, m)
		sum := 0.0
		for _, v := range col {
			sum += v
		}
		assert.InDelta(t, c.Mean(), sum/float64(rows), 0.01)
	}
}

func TestEngineUpdatePriorOnly(t *testing.T) {
	post, err := NewEngine().Update(nil, 3, 400, 1, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)

	for d := 0; d < 3; d++ {
		s := post.Summaries.Immune[d]
		assert.Equal(t, 0, s.Trials)
		assert.InDelta(t, 0.5, s.Mean, 1e-12)
		assert.Len(t, s.Samples, 400)
		assert.Len(t, s.AdjustedSamples, 400)
		assert.LessOrEqual(t, s.CILower, s.AdjustedMean)
		assert.GreaterOrEqual(t, s.CIUpper, s.AdjustedMean)
	}
	assertMonotoneDraws(t, post)
}

func TestEngineUpdateMonotoneDraws(t *testing.T) {
	post, err := NewEngine().Update(sampleData(), 4, 300, 2, rand.New(rand.NewPCG(8, 9)))
	require.NoError(t, err)
	assertMonotoneDraws(t, post)

	// adjusted means inherit the ordering of the draws
	for d := 1; d < 4; d++ {
		assert.GreaterOrEqual(t, post.ImmuneMean(d)+1e-12, post.ImmuneMean(d-1))
		for g := 0; g < trial.NumImmuneGroups; g++ {
			assert.GreaterOrEqual(t, post.ToxicityMean(d, g)+1e-12, post.ToxicityMean(d-1, g))
			assert.GreaterOrEqual(t, post.EfficacyMean(d, g)+1e-12, post.EfficacyMean(d-1, g))
		}
	}
}

func TestEngineUpdateReproducible(t *testing.T) {
	a, err := NewEngine().Update(sampleData(), 4, 250, 3, rand.New(rand.NewPCG(42, 1)))
	require.NoError(t, err)
	b, err := NewEngine().Update(sampleData(), 4, 250, 3, rand.New(rand.NewPCG(42, 1)))
	require.NoError(t, err)

	assert.True(t, mat.Equal(a.Immune, b.Immune))
	assert.True(t, mat.Equal(a.ToxMarginal, b.ToxMarginal))
	assert.True(t, mat.Equal(a.EffMarginal, b.EffMarginal))
	assert.Equal(t, a.Summaries, b.Summaries)
}

func TestEngineMarginals(t *testing.T) {
	post, err := NewEngine().Update(sampleData(), 4, 50, 1, rand.New(rand.NewPCG(2, 3)))
	require.NoError(t, err)

	for s := 0; s < 50; s++ {
		for d := 0; d < 4; d++ {
			pI := post.Immune.At(s, d)
			wantTox := (1-pI)*post.Toxicity[0].At(s, d) + pI*post.Toxicity[1].At(s, d)
			wantEff := (1-pI)*post.Efficacy[0].At(s, d) + pI*post.Efficacy[1].At(s, d)
			assert.InDelta(t, wantTox, post.ToxMarginal.At(s, d), 1e-15)
			assert.InDelta(t, wantEff, post.EffMarginal.At(s, d), 1e-15)
		}
	}
}

func TestEngineWithoutDraws(t *testing.T) {
	e := &Engine{}
	post, err := e.Update(sampleData(), 4, 50, 1, rand.New(rand.NewPCG(2, 3)))
	require.NoError(t, err)
	assert.Nil(t, post.Summaries.Immune[0].Samples)
	assert.Nil(t, post.Summaries.Toxicity[0][1].AdjustedSamples)
}

func TestEngineRejectsBadDimensions(t *testing.T) {
	_, err := NewEngine().Update(nil, 0, 10, 1, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))
}

func TestCompact(t *testing.T) {
	post, err := NewEngine().Update(sampleData(), 4, 20, 1, rand.New(rand.NewPCG(2, 3)))
	require.NoError(t, err)

	compact := Compact(post.Summaries)
	assert.Nil(t, compact.Immune[2].Samples)
	assert.Nil(t, compact.Efficacy[1][0].AdjustedSamples)
	assert.Equal(t, post.Summaries.Efficacy[1][0].AdjustedMean, compact.Efficacy[1][0].AdjustedMean)
	assert.NotNil(t, post.Summaries.Efficacy[1][0].AdjustedSamples)
}

func TestMarginalizeDimensionMismatch(t *testing.T) {
	immune := mat.NewDense(3, 2, nil)
	_, err := Marginalize([]*mat.Dense{mat.NewDense(3, 2, nil)}, immune)
	assert.True(t, errors.Is(err, core.ErrDimensionMismatch))

	_, err = Marginalize([]*mat.Dense{mat.NewDense(3, 2, nil), mat.NewDense(2, 2, nil)}, immune)
	assert.True(t, errors.Is(err, core.ErrDimensionMismatch))
}

func TestFinite(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{0.1, 0.2, 0.3, 0.4})
	assert.True(t, finite(m))
	m.Set(1, 0, math.NaN())
	assert.False(t, finite(m))
	m.Set(1, 0, math.Inf(1))
	assert.False(t, finite(m))
}

func assertMonotoneDraws(t *testing.T, post *Posterior) {
	t.Helper()
	for s := 0; s < post.NumSamples; s++ {
		require.True(t, IsNonDecreasing(post.Immune.RawRowView(s)), "immune draw %d", s)
		for _, groups := range [][]*mat.Dense{post.Toxicity, post.Efficacy} {
			grid := make([][]float64, post.NumDoses)
			for d := range grid {
				grid[d] = []float64{groups[0].At(s, d), groups[1].At(s, d)}
			}
			require.True(t, IsMonotone2D(grid), "grouped draw %d: %v", s, grid)
		}
	}
}
