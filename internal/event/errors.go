package event

import "errors"

// Sentinel errors for event handling.
var (
	// ErrUnknownKind is returned when a kind name or number cannot be parsed.
	ErrUnknownKind = errors.New("unknown event kind")
)
