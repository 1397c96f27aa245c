package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrQuit signals that the application should exit normally.
	ErrQuit = errors.New("quit requested")

	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrShutdownTimeout indicates the script consumer did not exit in time.
	ErrShutdownTimeout = errors.New("shutdown timed out")

	// ErrNotEvaluated indicates the script session ended before it
	// processed the script passed to Eval.
	ErrNotEvaluated = errors.New("script session ended before the script ran")
)

// InitError reports a component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
