package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for the bridge.
var (
	// ErrNilRuntime is returned by Init when the bridge has no runtime.
	ErrNilRuntime = errors.New("bridge: runtime is nil")

	// ErrConsumerPanic wraps a panic recovered from the runtime.
	ErrConsumerPanic = errors.New("bridge: consumer panicked")
)

// PanicError carries a value recovered from the consumer goroutine.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("bridge: consumer panicked: %v", e.Value)
}

// Is allows errors.Is to match PanicError with ErrConsumerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrConsumerPanic
}
