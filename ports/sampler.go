package ports

import (
	"math/rand/v2"

	"gotrial/domain/trial"
)

// OutcomeSampler draws per-patient outcomes for one stage
type OutcomeSampler interface {
	// Sample draws counts[d] patients at dose d+1 and tags them with stage
	Sample(scenario *trial.Scenario, counts []int, stage int, rng *rand.Rand) ([]trial.PatientOutcome, error)
}
