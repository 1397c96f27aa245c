package event

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the shape of an event.
type Kind uint16

const (
	// KindStop asks the script loop to exit.
	KindStop Kind = 0

	// KindEvaluate carries script text to run.
	KindEvaluate Kind = 1

	// KindFrame is posted once per simulated frame.
	KindFrame Kind = 2

	// KindNone is the sentinel: no event, and the exclusive upper bound of
	// the kind universe.
	KindNone Kind = 256
)

// Valid reports whether k lies inside the kind universe.
func (k Kind) Valid() bool {
	return k < KindNone
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindStop:
		return "stop"
	case KindEvaluate:
		return "evaluate"
	case KindFrame:
		return "frame"
	case KindNone:
		return "none"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind parses a kind name or number.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stop":
		return KindStop, nil
	case "evaluate", "eval":
		return KindEvaluate, nil
	case "frame":
		return KindFrame, nil
	case "none":
		return KindNone, nil
	}

	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil || Kind(n) > KindNone {
		return KindNone, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return Kind(n), nil
}
