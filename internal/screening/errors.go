package screening

import "errors"

// Contract violations. Callers recover by correcting their usage.
var (
	// ErrInvalidPhase is returned when an operation is not valid in the current phase.
	ErrInvalidPhase = errors.New("operation not valid in current phase")
	// ErrInvalidChoice is returned when a choice is not an option of the active instrument.
	ErrInvalidChoice = errors.New("choice not valid for active instrument")
	// ErrCorruptSession is returned by Session.Validate for inconsistent state.
	ErrCorruptSession = errors.New("corrupt session state")
)
