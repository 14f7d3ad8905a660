package inference

import (
	"unsafe"

	"github.com/pkg/errors"
)

// arenaAlign is the address alignment of every arena allocation, wide enough for float32 and
// int32 views.
const arenaAlign = 8

// Arena is a bump allocator over a fixed buffer. Reset releases every allocation at once.
type Arena struct {
	buf []byte
	off int
}

// NewArena wraps buf.
func NewArena(buf []byte) *Arena {
	return &Arena{buf: buf}
}

// Alloc carves n zeroed bytes out of the arena.
//
// Arguments:
//   - n: The number of bytes.
//
// Returns:
//   - []byte: The allocation, aligned to 8 bytes.
//   - error: ErrOutOfMemory when the arena cannot fit n more bytes.
func (a *Arena) Alloc(n int) ([]byte, error) {
	start := a.off + a.padding(a.off)
	if n < 0 || start+n > len(a.buf) {
		return nil, errors.Wrapf(ErrOutOfMemory, "arena: need %d bytes, %d free", n, a.Free())
	}
	out := a.buf[start : start+n : start+n]
	clear(out)
	a.off = start + n
	return out, nil
}

// padding is the byte count that moves buf[off] up to the next aligned address. The buffer
// itself may start anywhere, so alignment follows the address rather than the offset.
func (a *Arena) padding(off int) int {
	if len(a.buf) == 0 {
		return 0
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(a.buf))) + uintptr(off)
	return int(-addr & (arenaAlign - 1))
}

// Free returns the number of unallocated bytes.
func (a *Arena) Free() int {
	return max(0, len(a.buf)-a.off)
}

// Used returns the number of allocated bytes, including alignment padding.
func (a *Arena) Used() int {
	return a.off
}

// Reset drops every allocation.
func (a *Arena) Reset() {
	a.off = 0
}
