package orchestrator

import (
	"fmt"
	"time"
)

// validationError marks malformed caller input. Rejected at the boundary;
// never reaches the routing or retrieval internals.
type validationError struct{ msg string }

func (e validationError) Error() string { return "validation: " + e.msg }

// ErrValidation constructs a validationError.
func ErrValidation(msg string) error { return validationError{msg: msg} }

// IsValidation reports whether err is a caller-input error (400 mapping).
func IsValidation(err error) bool {
	_, ok := err.(validationError)
	return ok
}

// modelUnavailableError signals that a directly-named model exists but
// cannot serve right now.
type modelUnavailableError struct {
	modelID string
	reason  string
}

func (e modelUnavailableError) Error() string {
	return fmt.Sprintf("model %q unavailable: %s", e.modelID, e.reason)
}

// ErrModelUnavailable constructs a modelUnavailableError.
func ErrModelUnavailable(modelID, reason string) error {
	return modelUnavailableError{modelID: modelID, reason: reason}
}

// IsModelUnavailable reports whether err indicates a degraded named model
// (503 mapping).
func IsModelUnavailable(err error) bool {
	_, ok := err.(modelUnavailableError)
	return ok
}

// queryTimeoutError signals that generation exceeded its deadline. Always
// carries the model id and the timeout for observability.
type queryTimeoutError struct {
	modelID string
	timeout time.Duration
}

func (e queryTimeoutError) Error() string {
	return fmt.Sprintf("query to model %q timed out after %s", e.modelID, e.timeout)
}

// ErrQueryTimeout constructs a queryTimeoutError.
func ErrQueryTimeout(modelID string, timeout time.Duration) error {
	return queryTimeoutError{modelID: modelID, timeout: timeout}
}

// IsQueryTimeout reports whether err is a generation deadline failure
// (504 mapping).
func IsQueryTimeout(err error) bool {
	_, ok := err.(queryTimeoutError)
	return ok
}
