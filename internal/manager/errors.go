package manager

import (
	"errors"
	"fmt"

	"llamactx/internal/llm"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ target string }

func (e tooBusyError) Error() string { return "too busy: " + e.target }

// ErrTooBusy constructs a backpressure error for target.
func ErrTooBusy(target string) error { return tooBusyError{target: target} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error when a requested model id is not present in the registry.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

type sessionNotFoundError struct{ id string }

func (e sessionNotFoundError) Error() string { return "session not found: " + e.id }

// ErrSessionNotFound is returned for unknown, expired or closed sessions.
func ErrSessionNotFound(id string) error { return sessionNotFoundError{id: id} }

// IsSessionNotFound reports whether err names a missing session.
func IsSessionNotFound(err error) bool {
	var e sessionNotFoundError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing runtime dependency (e.g. a
// backend compiled out of this binary) so the HTTP layer can return 503.
type dependencyUnavailableError struct {
	msg   string
	cause error
}

func (e dependencyUnavailableError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e dependencyUnavailableError) Unwrap() error { return e.cause }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e) || errors.Is(err, llm.ErrBackendUnavailable) || errors.Is(err, llm.ErrUnknownBackend)
}

type budgetExceededError struct{ requiredMB, freeMB int }

func (e budgetExceededError) Error() string {
	return fmt.Sprintf("vram budget exceeded: need %d MB, %d MB available", e.requiredMB, e.freeMB)
}

// IsBudgetExceeded reports whether the model cannot fit even after eviction.
func IsBudgetExceeded(err error) bool {
	var e budgetExceededError
	return errors.As(err, &e)
}

// ErrSnapshotsDisabled is returned by snapshot operations without a state dir.
var ErrSnapshotsDisabled = errors.New("snapshots disabled: no state dir configured")
