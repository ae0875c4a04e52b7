package runner

import "errors"

var (
	// ErrRunnerClosed is returned by Submit after Shutdown has been called.
	// This is programming-level misuse, never expected in normal operation.
	ErrRunnerClosed = errors.New("task runner closed")

	// ErrTaskPanic wraps a panic recovered from a task's work function.
	ErrTaskPanic = errors.New("task panicked")
)
