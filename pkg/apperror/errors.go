// Package apperror declares the error taxonomy shared by the gate components.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationInProgress is returned when a deployment validation is already running.
	// Callers should retry later.
	ErrValidationInProgress = errors.New("deployment validation already in progress")

	// ErrValidationTimeout is returned when the overall gate run exceeded its deadline.
	ErrValidationTimeout = errors.New("deployment validation timed out")

	// ErrCollectionInProgress is returned when evidence collection is already running.
	ErrCollectionInProgress = errors.New("evidence collection already in progress")

	ErrChannelUnavailable = errors.New("alert channel unavailable")
	ErrChannelSendFailed  = errors.New("alert channel send failed")

	// ErrCriticalProbeFailure marks a failed critical functionality probe.
	ErrCriticalProbeFailure = errors.New("critical probe failure")

	ErrSystemInitialization = errors.New("system initialization failed")

	ErrNotFound = errors.New("not found")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
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

// New constructs an AppError.
func New(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
