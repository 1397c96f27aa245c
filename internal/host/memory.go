package host

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// Memory is the guest memory surface exposed to scripts. Values are
// big-endian, as on the emulated console.
type Memory interface {
	IsRAMAddress(addr uint32) bool

	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Read64(addr uint32) uint64

	Write8(value uint8, addr uint32)
	Write16(value uint16, addr uint32)
	Write32(value uint32, addr uint32)
	Write64(value uint64, addr uint32)

	// InvalidateICache drops any cached translation of [addr, addr+size).
	InvalidateICache(addr, size uint32, forced bool)
}

// Address space layout.
const (
	CachedBase     uint32 = 0x80000000
	UncachedBase   uint32 = 0xC0000000
	DefaultRAMSize uint32 = 24 * 1024 * 1024
)

// RAM is a Memory backed by a byte slice, mirrored at the cached and
// uncached bases. Accesses that fall outside RAM read as zero and are
// dropped on write.
type RAM struct {
	mu   sync.RWMutex
	data []byte

	invalidations atomic.Uint64
	onInvalidate  func(addr, size uint32, forced bool)
}

// RAMOption configures a RAM.
type RAMOption func(*RAM)

// WithInvalidateHook is called on every InvalidateICache.
func WithInvalidateHook(fn func(addr, size uint32, forced bool)) RAMOption {
	return func(r *RAM) {
		r.onInvalidate = fn
	}
}

// NewRAM allocates size bytes of guest RAM. A zero size uses DefaultRAMSize.
func NewRAM(size uint32, opts ...RAMOption) *RAM {
	if size == 0 {
		size = DefaultRAMSize
	}
	r := &RAM{data: make([]byte, size)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Size returns the RAM size in bytes.
func (r *RAM) Size() uint32 {
	return uint32(len(r.data))
}

// IsRAMAddress reports whether addr maps into RAM.
func (r *RAM) IsRAMAddress(addr uint32) bool {
	_, ok := r.offset(addr, 1)
	return ok
}

// offset translates a guest address to an index into data for an access of
// n bytes.
func (r *RAM) offset(addr, n uint32) (uint32, bool) {
	var off uint32
	switch {
	case addr >= UncachedBase:
		off = addr - UncachedBase
	case addr >= CachedBase:
		off = addr - CachedBase
	default:
		return 0, false
	}
	if uint64(off)+uint64(n) > uint64(len(r.data)) {
		return 0, false
	}
	return off, true
}

func (r *RAM) read(addr, n uint32) []byte {
	off, ok := r.offset(addr, n)
	if !ok {
		return nil
	}
	return r.data[off : off+n]
}

// Read8 reads one byte.
func (r *RAM) Read8(addr uint32) uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b := r.read(addr, 1); b != nil {
		return b[0]
	}
	return 0
}

// Read16 reads a big-endian halfword.
func (r *RAM) Read16(addr uint32) uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b := r.read(addr, 2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

// Read32 reads a big-endian word.
func (r *RAM) Read32(addr uint32) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b := r.read(addr, 4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

// Read64 reads a big-endian doubleword.
func (r *RAM) Read64(addr uint32) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b := r.read(addr, 8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// Write8 writes one byte.
func (r *RAM) Write8(value uint8, addr uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.read(addr, 1); b != nil {
		b[0] = value
	}
}

// Write16 writes a big-endian halfword.
func (r *RAM) Write16(value uint16, addr uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.read(addr, 2); b != nil {
		binary.BigEndian.PutUint16(b, value)
	}
}

// Write32 writes a big-endian word.
func (r *RAM) Write32(value uint32, addr uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.read(addr, 4); b != nil {
		binary.BigEndian.PutUint32(b, value)
	}
}

// Write64 writes a big-endian doubleword.
func (r *RAM) Write64(value uint64, addr uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.read(addr, 8); b != nil {
		binary.BigEndian.PutUint64(b, value)
	}
}

// InvalidateICache records the invalidation and forwards it to the hook.
func (r *RAM) InvalidateICache(addr, size uint32, forced bool) {
	r.invalidations.Add(1)
	if r.onInvalidate != nil {
		r.onInvalidate(addr, size, forced)
	}
}

// Invalidations returns the number of InvalidateICache calls.
func (r *RAM) Invalidations() uint64 {
	return r.invalidations.Load()
}
