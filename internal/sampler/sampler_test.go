package sampler

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotrial/domain/core"
	"gotrial/domain/trial"
	"gotrial/ports"
)

var _ ports.OutcomeSampler = (*CopulaSampler)(nil)

func TestJointCells(t *testing.T) {
	tests := []struct {
		name     string
		tox, eff float64
		c        float64
	}{
		{"independent", 0.2, 0.4, 0},
		{"positive dependence", 0.3, 0.5, 2},
		{"negative dependence", 0.3, 0.5, -2},
		{"degenerate toxicity", 0, 0.6, 1},
		{"certain efficacy", 0.25, 1, 5},
		{"huge strength", 0.5, 0.5, 800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells, err := JointCells(tt.tox, tt.eff, tt.c)
			require.NoError(t, err)

			sum := 0.0
			for _, p := range cells {
				assert.GreaterOrEqual(t, p, 0.0)
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-12)

			// marginals are preserved by construction
			assert.InDelta(t, tt.tox, cells[Cell10]+cells[Cell11], 1e-12)
			assert.InDelta(t, tt.eff, cells[Cell01]+cells[Cell11], 1e-12)
		})
	}
}

func TestJointCellsDependence(t *testing.T) {
	indep, err := JointCells(0.3, 0.5, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.15, indep[Cell11], 1e-12)

	pos, err := JointCells(0.3, 0.5, 2)
	require.NoError(t, err)
	k := 0.3 * 0.5 * 0.7 * 0.5 * (math.Exp(2) - 1) / (math.Exp(2) + 1)
	assert.InDelta(t, 0.15+k, pos[Cell11], 1e-12)
	assert.InDelta(t, 0.35-k, pos[Cell01], 1e-12)
}

func TestJointCellsRejectsInvalid(t *testing.T) {
	_, err := JointCells(1.2, 0.5, 0)
	assert.True(t, errors.Is(err, core.ErrInvalidProbability))

	_, err = JointCells(0.2, -0.1, 0)
	assert.True(t, errors.Is(err, core.ErrInvalidProbability))

	_, err = JointCells(0.2, 0.1, math.NaN())
	assert.True(t, errors.Is(err, core.ErrInvalidScenario))
}

func TestCellIndicators(t *testing.T) {
	tox, eff := CellIndicators(Cell01)
	assert.Equal(t, 0, tox)
	assert.Equal(t, 1, eff)
	tox, eff = CellIndicators(Cell10)
	assert.Equal(t, 1, tox)
	assert.Equal(t, 0, eff)
}

func testScenario() trial.Scenario {
	return trial.Scenario{
		Immune:   []float64{0.1, 0.6},
		Toxicity: [][trial.NumImmuneGroups]float64{{0.05, 0.1}, {0.2, 0.4}},
		Efficacy: [][trial.NumImmuneGroups]float64{{0.2, 0.3}, {0.3, 0.7}},
		Copula:   [trial.NumImmuneGroups]float64{0.5, 1.5},
	}
}

func TestSampleReproducible(t *testing.T) {
	s := NewCopulaSampler()
	scenario := testScenario()

	a, err := s.Sample(&scenario, []int{7, 5}, 2, rand.New(rand.NewPCG(9, 1)))
	require.NoError(t, err)
	b, err := s.Sample(&scenario, []int{7, 5}, 2, rand.New(rand.NewPCG(9, 1)))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	require.Len(t, a, 12)
	for i, p := range a {
		assert.Equal(t, 2, p.Stage)
		if i < 7 {
			assert.Equal(t, trial.DoseLevel(1), p.Dose)
		} else {
			assert.Equal(t, trial.DoseLevel(2), p.Dose)
		}
	}
}

func TestSampleFrequencies(t *testing.T) {
	s := NewCopulaSampler()
	scenario := testScenario()
	const n = 40000

	out, err := s.Sample(&scenario, []int{0, n}, 1, rand.New(rand.NewPCG(123, 456)))
	require.NoError(t, err)
	require.Len(t, out, n)

	var immune, toxImmune, effImmune, nImmune int
	for _, p := range out {
		immune += p.Immune
		if p.Immune == 1 {
			nImmune++
			toxImmune += p.Toxicity
			effImmune += p.Efficacy
		}
	}

	assert.InDelta(t, 0.6, float64(immune)/n, 0.015)
	assert.InDelta(t, 0.4, float64(toxImmune)/float64(nImmune), 0.015)
	assert.InDelta(t, 0.7, float64(effImmune)/float64(nImmune), 0.015)
}

func TestSampleValidatesInput(t *testing.T) {
	s := NewCopulaSampler()
	scenario := testScenario()

	_, err := s.Sample(&scenario, []int{1}, 1, nil)
	assert.True(t, errors.Is(err, core.ErrDimensionMismatch))

	_, err = s.Sample(&scenario, []int{1, -1}, 1, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidScenario))

	scenario.Efficacy[0][1] = 1.5
	_, err = s.Sample(&scenario, []int{3, 0}, 1, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidProbability))

	// zero patients never touches the invalid cell
	out, err := s.Sample(&scenario, []int{0, 2}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
