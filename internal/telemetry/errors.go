package telemetry

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes commit-layer errors.
type ErrorCode string

const (
	// ErrCodeUnknownModel means the measurement kind has no registered table.
	ErrCodeUnknownModel ErrorCode = "UNKNOWN_MODEL"

	// ErrCodeShapeMismatch means a scalar was sent to a vector table, a vector
	// to a scalar table, or a vector had the wrong number of channels.
	ErrCodeShapeMismatch ErrorCode = "SHAPE_MISMATCH"

	// ErrCodeInvalid means the measurement or its context is malformed.
	ErrCodeInvalid ErrorCode = "INVALID_MEASUREMENT"

	// ErrCodePersistence means the store was unreachable or rejected a write.
	ErrCodePersistence ErrorCode = "PERSISTENCE"

	// ErrCodeDuplicateExperiment means a strict create hit an existing
	// (name, run date) pair.
	ErrCodeDuplicateExperiment ErrorCode = "DUPLICATE_EXPERIMENT"

	// ErrCodeNotFound means a referenced experiment does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is the error type returned across the commit layer.
type Error struct {
	Code       ErrorCode
	Message    string
	Kind       string
	Experiment string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Kind != "" {
		msg += fmt.Sprintf(" (kind=%s)", e.Kind)
	}
	if e.Experiment != "" {
		msg += fmt.Sprintf(" (experiment=%s)", e.Experiment)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewUnknownModel reports a kind missing from the registry.
func NewUnknownModel(kind string) *Error {
	return &Error{Code: ErrCodeUnknownModel, Message: "no table registered for kind", Kind: kind}
}

// NewShapeMismatch reports a value shape that disagrees with the table contract.
func NewShapeMismatch(kind, message string) *Error {
	return &Error{Code: ErrCodeShapeMismatch, Message: message, Kind: kind}
}

// NewInvalid reports a malformed measurement or context.
func NewInvalid(message string) *Error {
	return &Error{Code: ErrCodeInvalid, Message: message}
}

// NewPersistence wraps a storage failure.
func NewPersistence(op string, err error) *Error {
	return &Error{Code: ErrCodePersistence, Message: op, Err: err}
}

// NewDuplicateExperiment reports a strict create colliding with an existing row.
func NewDuplicateExperiment(name string, err error) *Error {
	return &Error{Code: ErrCodeDuplicateExperiment, Message: "experiment already exists for this run date", Experiment: name, Err: err}
}

// NewNotFound reports a missing experiment.
func NewNotFound(what string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: what}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsUnknownModel reports whether err carries ErrCodeUnknownModel.
func IsUnknownModel(err error) bool { return hasCode(err, ErrCodeUnknownModel) }

// IsShapeMismatch reports whether err carries ErrCodeShapeMismatch.
func IsShapeMismatch(err error) bool { return hasCode(err, ErrCodeShapeMismatch) }

// IsInvalid reports whether err carries ErrCodeInvalid.
func IsInvalid(err error) bool { return hasCode(err, ErrCodeInvalid) }

// IsPersistence reports whether err carries ErrCodePersistence.
func IsPersistence(err error) bool { return hasCode(err, ErrCodePersistence) }

// IsDuplicateExperiment reports whether err carries ErrCodeDuplicateExperiment.
func IsDuplicateExperiment(err error) bool { return hasCode(err, ErrCodeDuplicateExperiment) }

// IsNotFound reports whether err carries ErrCodeNotFound.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsValidation reports whether err was produced before reaching storage.
func IsValidation(err error) bool {
	return IsUnknownModel(err) || IsShapeMismatch(err) || IsInvalid(err)
}
