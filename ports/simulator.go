package ports

import (
	"gotrial/domain/trial"
)

// TrialSimulator runs one complete trial. Implementations must be safe for
// concurrent use and must not mutate cfg or scenario.
type TrialSimulator interface {
	Simulate(cfg *trial.Configuration, scenario *trial.Scenario, seed *int64) (*trial.TrialResult, error)
}
