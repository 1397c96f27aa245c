package event

import (
	"math/bits"
	"sync/atomic"
)

const (
	wordBits  = 64
	maskWords = int(KindNone+wordBits-1) / wordBits
)

// Mask is the registry of kinds with an interested consumer.
//
// Each word is read and written atomically; nothing is atomic across words
// or across a check followed by a post. A listener may unregister between a
// producer's IsEnabled and its post. The consumer then receives one event
// nobody listens to, which it must deliver to zero listeners.
//
// The zero Mask has every kind disabled. Use NewMask or Reset to get the
// always-enabled minimum.
type Mask struct {
	words [maskWords]atomic.Uint64
}

// AlwaysEnabled lists the kinds that can never be disabled.
var AlwaysEnabled = []Kind{KindStop, KindEvaluate}

// NewMask returns a mask holding only the always-enabled kinds.
func NewMask() *Mask {
	m := &Mask{}
	m.Reset()
	return m
}

// Reset clears every bit and re-enables the always-enabled kinds.
func (m *Mask) Reset() {
	for i := range m.words {
		m.words[i].Store(0)
	}
	for _, k := range AlwaysEnabled {
		m.Enable(k)
	}
}

// Enable sets the bit for k. Kinds at or above KindNone are ignored.
func (m *Mask) Enable(k Kind) {
	if !k.Valid() {
		return
	}
	w, bit := locate(k)
	m.words[w].Or(bit)
}

// Disable clears the bit for k. Kinds at or above KindNone and the
// always-enabled kinds are ignored.
func (m *Mask) Disable(k Kind) {
	if !k.Valid() || isPinned(k) {
		return
	}
	w, bit := locate(k)
	m.words[w].And(^bit)
}

// IsEnabled reports whether k currently has a listener.
func (m *Mask) IsEnabled(k Kind) bool {
	if !k.Valid() {
		return false
	}
	w, bit := locate(k)
	return m.words[w].Load()&bit != 0
}

// Enabled returns the enabled kinds in ascending order.
func (m *Mask) Enabled() []Kind {
	var kinds []Kind
	for i := range m.words {
		word := m.words[i].Load()
		for word != 0 {
			n := bits.TrailingZeros64(word)
			kinds = append(kinds, Kind(i*wordBits+n))
			word &^= 1 << n
		}
	}
	return kinds
}

func locate(k Kind) (int, uint64) {
	return int(k) / wordBits, 1 << (uint(k) % wordBits)
}

func isPinned(k Kind) bool {
	for _, p := range AlwaysEnabled {
		if k == p {
			return true
		}
	}
	return false
}
