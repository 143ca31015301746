package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Validation errors
	ErrInvalidConfiguration = errors.New("invalid trial configuration")
	ErrInvalidScenario      = errors.New("invalid scenario parameters")
	ErrInvalidProbability   = fmt.Errorf("%w: probability outside [0,1]", ErrInvalidScenario)
	ErrDimensionMismatch    = fmt.Errorf("%w: dimension mismatch", ErrInvalidScenario)

	// Simulation errors
	ErrSimulationFailure = errors.New("simulation failure")
	ErrNumericFault      = fmt.Errorf("%w: numeric fault", ErrSimulationFailure)
	ErrEmptyAdmissible   = errors.New("admissible set is empty")

	// Contract errors
	ErrOrderingViolation = errors.New("ordering contract violated")
	ErrNoCandidates      = errors.New("no calibration candidates")
)

// NewValidationError reports an invalid configuration field
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfiguration, field, reason)
}

// NewScenarioError reports an invalid scenario field
func NewScenarioError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidScenario, field, reason)
}

// NewProbabilityError reports a probability outside [0,1]
func NewProbabilityError(field string, value float64) error {
	return fmt.Errorf("%w: %s=%g", ErrInvalidProbability, field, value)
}

// NewNumericFaultError reports a NaN or Inf found in a derived quantity
func NewNumericFaultError(quantity string, stage int) error {
	return fmt.Errorf("%w: %s at stage %d", ErrNumericFault, quantity, stage)
}

// NewOrderingError reports an operation invoked in the wrong trial state
func NewOrderingError(operation, state string) error {
	return fmt.Errorf("%w: %s not allowed in state %s", ErrOrderingViolation, operation, state)
}

// Error checking helpers
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrInvalidScenario)
}

func IsSimulationError(err error) bool {
	return errors.Is(err, ErrSimulationFailure)
}

func IsOrderingError(err error) bool {
	return errors.Is(err, ErrOrderingViolation)
}
