package decision

import "gotrial/domain/trial"

// ShouldTerminate stops the trial when monitoring is on and no dose is admissible
func ShouldTerminate(enabled bool, admissible trial.AdmissibleSet) bool {
	return enabled && admissible.IsEmpty()
}
