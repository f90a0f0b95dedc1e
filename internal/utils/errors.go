package utils

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an AppError for callers that map errors onto
// transport responses or process exit behaviour.
type ErrorCode string

const (
	// CodeConfiguration marks fatal startup problems: missing artifacts,
	// invalid thresholds, unreadable config files.
	CodeConfiguration ErrorCode = "configuration"
	// CodeValidation marks per-request input problems. Recoverable; the
	// offending call is rejected without mutating state.
	CodeValidation ErrorCode = "validation"
	// CodeTrainingData marks degenerate training inputs (single-class
	// detector set, zero faulty samples for the diagnostician).
	CodeTrainingData ErrorCode = "training_data"
	// CodeSessionNotFound marks operations against unknown stream sessions.
	CodeSessionNotFound ErrorCode = "session_not_found"
)

// AppError wraps an operation, classification code, human-facing message,
// and underlying error.
type AppError struct {
	Code ErrorCode
	Op   string
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ConfigurationError constructs a fatal configuration AppError.
func ConfigurationError(op, msg string, err error) error {
	return &AppError{Code: CodeConfiguration, Op: op, Msg: msg, Err: err}
}

// ValidationError constructs a recoverable per-request AppError.
func ValidationError(op, msg string, err error) error {
	return &AppError{Code: CodeValidation, Op: op, Msg: msg, Err: err}
}

// TrainingDataError constructs a fatal offline-training AppError.
func TrainingDataError(op, msg string, err error) error {
	return &AppError{Code: CodeTrainingData, Op: op, Msg: msg, Err: err}
}

// SessionNotFoundError constructs an AppError for unknown session ids.
func SessionNotFoundError(op, sessionID string) error {
	return &AppError{Code: CodeSessionNotFound, Op: op, Msg: "unknown session " + sessionID}
}

// CodeOf extracts the ErrorCode from an error chain, or "" when the chain
// contains no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether the error chain carries an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
