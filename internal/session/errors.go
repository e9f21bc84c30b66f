package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyGenerating rejects a second generation while one is in flight.
	ErrAlreadyGenerating = errors.New("generation already in progress")
	// ErrNotReady is returned when no model is loaded or the controller is in error.
	ErrNotReady = errors.New("session not ready")
	// ErrSessionUnavailable is reported when session creation failed after retry.
	ErrSessionUnavailable = errors.New("session unavailable")
	// ErrInvalidState rejects lifecycle calls made in the wrong state.
	ErrInvalidState = errors.New("invalid controller state")
	// ErrInvalidConfig wraps ModelConfig validation failures.
	ErrInvalidConfig = errors.New("invalid model config")
)

func invalidConfigf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, a...))
}

// LoadErrorKind classifies model load failures.
type LoadErrorKind string

const (
	FileMissing    LoadErrorKind = "file_missing"
	FileTooSmall   LoadErrorKind = "file_too_small"
	EngineRejected LoadErrorKind = "engine_rejected"
)

// LoadError is returned by LoadModel. Load failures are never retried.
type LoadError struct {
	Kind LoadErrorKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	switch e.Kind {
	case FileMissing:
		return "model file missing: " + e.Path
	case FileTooSmall:
		return "model file too small (partial download?): " + e.Path
	default:
		if e.Err != nil {
			return fmt.Sprintf("engine rejected model %s: %v", e.Path, e.Err)
		}
		return "engine rejected model " + e.Path
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

func isLoadKind(err error, k LoadErrorKind) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Kind == k
}

// IsFileMissing reports whether err is a LoadError for a missing file.
func IsFileMissing(err error) bool { return isLoadKind(err, FileMissing) }

// IsFileTooSmall reports whether err is a LoadError for an undersized file.
func IsFileTooSmall(err error) bool { return isLoadKind(err, FileTooSmall) }

// IsEngineRejected reports whether the engine refused the model or session.
func IsEngineRejected(err error) bool { return isLoadKind(err, EngineRejected) }

// SessionError wraps a session handle creation failure.
type SessionError struct {
	Attempts int
	Err      error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", ErrSessionUnavailable, e.Attempts, e.Err)
}

func (e *SessionError) Unwrap() []error { return []error{ErrSessionUnavailable, e.Err} }

// dependencyUnavailableError signals an engine that was not compiled in or
// cannot be reached, so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}
