package event

// Event is a tagged union over the event kinds. Only the fields belonging to
// Kind are meaningful; the evaluate variant owns Script, the others own
// nothing.
//
// Events are values. Producers build a fresh one per post, so the consumer
// never shares payload memory with a producer.
type Event struct {
	// Kind is the discriminant.
	Kind Kind

	// Script is the text carried by a KindEvaluate event.
	Script string

	// Seq is the position assigned when the event entered a queue.
	// Zero means the event was never queued.
	Seq uint64
}

// Stop returns a termination event.
func Stop() Event {
	return Event{Kind: KindStop}
}

// Evaluate returns an event that asks the consumer to run script.
func Evaluate(script string) Event {
	return Event{Kind: KindEvaluate, Script: script}
}

// Frame returns a frame tick event.
func Frame() Event {
	return Event{Kind: KindFrame}
}

// None returns the empty result.
func None() Event {
	return Event{Kind: KindNone}
}

// IsNone reports whether e is the empty result.
func (e Event) IsNone() bool {
	return e.Kind == KindNone
}

// HasPayload reports whether the event's kind carries data.
func (e Event) HasPayload() bool {
	switch e.Kind {
	case KindEvaluate:
		return true
	case KindStop, KindFrame, KindNone:
		return false
	default:
		return false
	}
}

// String returns a short description for logs.
func (e Event) String() string {
	if e.Kind == KindEvaluate {
		return e.Kind.String() + "(" + truncate(e.Script, 32) + ")"
	}
	return e.Kind.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
