package app

import (
	"errors"

	"gotrial/domain/core"
	apperrors "gotrial/internal/errors"
)

// codeFor maps a domain error onto an application error code
func codeFor(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidConfiguration):
		return apperrors.CodeConfigInvalid
	case errors.Is(err, core.ErrInvalidScenario):
		return apperrors.CodeScenarioInvalid
	case errors.Is(err, core.ErrNumericFault):
		return apperrors.CodeNumericFault
	case errors.Is(err, core.ErrSimulationFailure):
		return apperrors.CodeSimulationFailure
	case errors.Is(err, core.ErrOrderingViolation):
		return apperrors.CodeOrderingViolation
	case errors.Is(err, core.ErrNoCandidates):
		return apperrors.CodeInvalidInput
	default:
		return apperrors.CodeInternalError
	}
}

// classify wraps err with context and the code of its domain sentinel
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	return apperrors.WithCode(codeFor(err), apperrors.Wrap(err, message))
}
