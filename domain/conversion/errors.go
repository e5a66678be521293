package conversion

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when a job is started while another is active
	ErrAlreadyRunning = errors.New("a conversion is already running")

	// ErrEngineUnavailable is returned when the transcoding engine fails to load
	ErrEngineUnavailable = errors.New("transcoding engine unavailable")

	// ErrTranscodeFailed is returned when an engine command or file operation fails
	ErrTranscodeFailed = errors.New("transcode failed")

	// ErrCanceled is returned when a cancel request is observed at a stage boundary
	ErrCanceled = errors.New("conversion canceled")

	// ErrCleanupFailed marks a virtual file that could not be removed.
	// It is logged and never returned to callers.
	ErrCleanupFailed = errors.New("cleanup failed")

	// ErrFileNotFound is returned by engines when a virtual file does not exist
	ErrFileNotFound = errors.New("virtual file not found")

	// ErrNoSource is returned when a job is started without input bytes
	ErrNoSource = errors.New("source file is empty")
)

// EngineUnavailableError wraps the reason the engine could not be loaded
type EngineUnavailableError struct {
	Err error
}

func (e *EngineUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrEngineUnavailable, e.Err)
}

func (e *EngineUnavailableError) Unwrap() []error {
	return []error{ErrEngineUnavailable, e.Err}
}

// TranscodeError carries the engine's message for a failed stage
type TranscodeError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *TranscodeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s during %s: %s", ErrTranscodeFailed, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s during %s: %v", ErrTranscodeFailed, e.Stage, e.Err)
}

func (e *TranscodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTranscodeFailed}
	}
	return []error{ErrTranscodeFailed, e.Err}
}

// CleanupError records a virtual file removal that failed
type CleanupError struct {
	Name string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("%s: remove %s: %v", ErrCleanupFailed, e.Name, e.Err)
}

func (e *CleanupError) Unwrap() []error {
	return []error{ErrCleanupFailed, e.Err}
}

// UserMessage turns a job outcome into a single line for display
func UserMessage(err error) string {
	switch {
	case err == nil:
		return "Conversion complete."
	case errors.Is(err, ErrCanceled):
		return "Conversion canceled."
	case errors.Is(err, ErrAlreadyRunning):
		return "A conversion is already running; wait for it to finish or cancel it."
	case errors.Is(err, ErrEngineUnavailable):
		return "Error loading transcoder: " + unwrapMessage(err)
	default:
		return "Error during conversion: " + unwrapMessage(err)
	}
}

// unwrapMessage returns the innermost useful message of err
func unwrapMessage(err error) string {
	var te *TranscodeError
	if errors.As(err, &te) {
		if te.Message != "" {
			return te.Message
		}
		if te.Err != nil {
			return te.Err.Error()
		}
	}
	var ee *EngineUnavailableError
	if errors.As(err, &ee) && ee.Err != nil {
		return ee.Err.Error()
	}
	return err.Error()
}

func isCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
