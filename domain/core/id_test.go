package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestParseCalibrationID(t *testing.T) {
	_, err := ParseCalibrationID("  ")
	assert.Error(t, err)

	id, err := ParseCalibrationID("cal-1")
	require.NoError(t, err)
	assert.Equal(t, "cal-1", id.String())
}

func TestHashJSONDeterministic(t *testing.T) {
	type payload struct {
		Doses []float64
		Seed  int64
	}

	h1, err := HashJSON(payload{Doses: []float64{0.1, 0.2}, Seed: 7}, "x")
	require.NoError(t, err)
	h2, err := HashJSON(payload{Doses: []float64{0.1, 0.2}, Seed: 7}, "x")
	require.NoError(t, err)
	h3, err := HashJSON(payload{Doses: []float64{0.1, 0.2}, Seed: 8}, "x")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1.Short(), 12)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsValidationError(NewValidationError("stages", "must be positive")))
	assert.True(t, IsValidationError(NewProbabilityError("toxicity[1][0]", 1.2)))
	assert.True(t, errors.Is(NewProbabilityError("p", -1), ErrInvalidScenario))
	assert.True(t, IsSimulationError(NewNumericFaultError("utility", 2)))
	assert.True(t, IsOrderingError(NewOrderingError("Finalize", "running")))
	assert.False(t, IsOrderingError(ErrNumericFault))
}
