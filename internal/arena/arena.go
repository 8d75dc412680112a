// Package arena provides the bump allocator backing a JIT compile task.
//
// A compile task allocates all of its intermediate state from one Arena.
// While the task waits in a worklist the arena is frozen read-only; only the
// goroutine executing the task, or a tracing pass holding the coordinator
// lock, flips it back to read-write. On unix the toggle is enforced with page
// protection, elsewhere it is a checked flag.
package arena

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrReadOnly is returned by Alloc while the arena is frozen.
	ErrReadOnly = errors.New("arena: allocation from read-only arena")
	// ErrExhausted is returned by Alloc when the arena has no room left.
	ErrExhausted = errors.New("arena: exhausted")
	// ErrReleased is returned by operations on a released arena.
	ErrReleased = errors.New("arena: released")
)

// Arena is a fixed-capacity bump allocator with a read-only toggle.
//
// An Arena is not safe for concurrent allocation; ownership follows the task
// that holds it.
type Arena struct {
	buf      []byte
	off      int
	readOnly atomic.Bool
	released bool
	region   region
}

// New maps an arena of at least size bytes. The capacity is rounded up to a
// whole number of pages.
func New(size int) (*Arena, error) {
	if size <= 0 {
		size = 1
	}
	r, err := mapRegion(size)
	if err != nil {
		return nil, err
	}
	return &Arena{buf: r.bytes(), region: r}, nil
}

// Alloc returns n zeroed bytes from the arena.
func (a *Arena) Alloc(n int) ([]byte, error) {
	switch {
	case a.released:
		return nil, ErrReleased
	case a.readOnly.Load():
		return nil, ErrReadOnly
	case n < 0 || a.off+n > len(a.buf):
		return nil, ErrExhausted
	}
	b := a.buf[a.off : a.off+n : a.off+n]
	a.off += n
	return b, nil
}

// SetReadOnly freezes the arena. Further writes through slices previously
// returned by Alloc fault on platforms with page protection.
func (a *Arena) SetReadOnly() {
	if a.released || a.readOnly.Swap(true) {
		return
	}
	if err := a.region.protect(true); err != nil {
		panic("arena: " + err.Error())
	}
}

// SetReadWrite thaws the arena.
func (a *Arena) SetReadWrite() {
	if a.released || !a.readOnly.Swap(false) {
		return
	}
	if err := a.region.protect(false); err != nil {
		panic("arena: " + err.Error())
	}
}

// ReadOnly reports whether the arena is frozen.
func (a *Arena) ReadOnly() bool { return a.readOnly.Load() }

// Used returns the number of bytes handed out.
func (a *Arena) Used() int { return a.off }

// Cap returns the arena capacity in bytes.
func (a *Arena) Cap() int { return len(a.buf) }

// Release unmaps the arena. Slices returned by Alloc must not be used
// afterwards. Releasing twice is a no-op.
func (a *Arena) Release() error {
	if a.released {
		return nil
	}
	a.released = true
	a.readOnly.Store(false)
	a.buf = nil
	return a.region.unmap()
}
