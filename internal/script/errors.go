package script

import (
	"errors"
	"fmt"
)

var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrNoMemory is raised to scripts that touch memory when no guest
	// memory is attached.
	ErrNoMemory = errors.New("guest memory not attached")
)

// BootError is returned by Runtime.Run when the boot chunk or the main
// module fails.
type BootError struct {
	Module string
	Err    error
}

func (e *BootError) Error() string {
	return fmt.Sprintf("script library %q: %v", e.Module, e.Err)
}

func (e *BootError) Unwrap() error {
	return e.Err
}
