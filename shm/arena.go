package shm

import (
	"fmt"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/wippyai/hal-runtime/errors"
)

// Arena is one process's view of a shared region.
type Arena struct {
	mem     []byte
	base    unsafe.Pointer
	hdr     *Header
	name    string
	release func() error
	owner   bool
	closed  bool
}

// NewHeap creates a private arena backed by ordinary memory.
func NewHeap(size int) (*Arena, error) {
	if err := checkSize(uint64(size)); err != nil {
		return nil, err
	}
	// []uint64 guarantees 8-byte alignment for the atomics inside records
	words := make([]uint64, (size+7)/8)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
	a := newArena(mem, "", nil)
	a.owner = true
	a.hdr.format(uint64(len(mem)), uuid.New())
	return a, nil
}

func newArena(mem []byte, name string, release func() error) *Arena {
	base := unsafe.Pointer(&mem[0])
	return &Arena{
		mem:     mem,
		base:    base,
		hdr:     (*Header)(base),
		name:    name,
		release: release,
	}
}

func checkSize(size uint64) error {
	if size < MinSize || size > MaxSize {
		return errors.New(errors.PhaseAttach, errors.KindInvalidInput).
			Value(size).
			Detail("arena size %d outside [%d, %d]", size, MinSize, uint64(MaxSize)).
			Build()
	}
	return nil
}

// validate checks a mapped header before it is trusted.
func validate(mem []byte) error {
	if len(mem) < HeaderSize {
		return errors.InvalidInput(errors.PhaseAttach, fmt.Sprintf("segment too small: %d bytes", len(mem)))
	}
	h := (*Header)(unsafe.Pointer(&mem[0]))
	if string(h.magic[:]) != Magic {
		return errors.New(errors.PhaseAttach, errors.KindInvalidInput).
			Detail("bad magic %q", h.magic[:]).
			Build()
	}
	if h.version != Version {
		return errors.VersionMismatch(Version, h.version)
	}
	if h.size != uint64(len(mem)) {
		return errors.New(errors.PhaseAttach, errors.KindInvalidInput).
			Detail("header size %d does not match mapping %d", h.size, len(mem)).
			Build()
	}
	return nil
}

// Alloc reserves size bytes aligned to align and returns their offset.
// Fresh arena memory is zero. Allocation either succeeds completely or
// fails with a no_memory error and leaves the arena unchanged.
func (a *Arena) Alloc(size, align uintptr) (Offset, error) {
	if align == 0 {
		align = DefaultAlign
	}
	if align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseAlloc, fmt.Sprintf("alignment %d is not a power of two", align))
	}
	if size == 0 {
		return 0, errors.InvalidInput(errors.PhaseAlloc, "zero-sized allocation")
	}
	for {
		top := a.hdr.top.Load()
		start := alignUp(top, uint64(align))
		end := start + uint64(size)
		if end > a.hdr.size {
			return 0, errors.NoMemory(errors.PhaseAlloc, uint64(size), a.hdr.size-top)
		}
		if a.hdr.top.CompareAndSwap(top, end) {
			return Offset(start), nil
		}
	}
}

// New allocates a zeroed T inside the arena.
func New[T any](a *Arena) (Offset, *T, error) {
	var zero T
	off, err := a.Alloc(unsafe.Sizeof(zero), unsafe.Alignof(zero))
	if err != nil {
		return 0, nil, err
	}
	return off, Ptr[T](a, off), nil
}

// Ptr resolves off to a *T inside this arena's mapping. Offsets from a
// different arena, or ones that would run past the end, panic.
func Ptr[T any](a *Arena, off Offset) *T {
	var zero T
	if off == 0 || uint64(off)+uint64(unsafe.Sizeof(zero)) > uint64(len(a.mem)) {
		panic(fmt.Sprintf("shm: offset %#x out of range", uint32(off)))
	}
	return (*T)(unsafe.Add(a.base, off))
}

// Bytes returns the n bytes starting at off.
func (a *Arena) Bytes(off Offset, n int) []byte {
	return a.mem[off : int(off)+n : int(off)+n]
}

// Zero clears n bytes starting at off.
func (a *Arena) Zero(off Offset, n int) {
	clear(a.Bytes(off, n))
}

// OffsetOf converts a pointer into this arena back into an offset.
func (a *Arena) OffsetOf(p unsafe.Pointer) Offset {
	d := uintptr(p) - uintptr(a.base)
	if d == 0 || d >= uintptr(len(a.mem)) {
		panic(fmt.Sprintf("shm: pointer %p outside arena", p))
	}
	return Offset(d)
}

// Base returns the start of the mapping. Callers that cache it must not
// outlive the arena.
func (a *Arena) Base() unsafe.Pointer { return a.base }

// Root returns the offset of the directory root record.
func (a *Arena) Root() Offset { return Offset(a.hdr.root.Load()) }

// SetRoot publishes the directory root record.
func (a *Arena) SetRoot(off Offset) { a.hdr.root.Store(uint32(off)) }

// Mutex returns the setup lock stored in the header.
func (a *Arena) Mutex() *Mutex { return &a.hdr.lock }

// Session returns the id stamped into the header at creation.
func (a *Arena) Session() uuid.UUID { return uuid.UUID(a.hdr.session) }

// CreatorPID returns the pid of the process that formatted the arena.
func (a *Arena) CreatorPID() int { return int(a.hdr.pid) }

// Name returns the segment name, empty for heap arenas.
func (a *Arena) Name() string { return a.name }

// Owner reports whether this process created the arena.
func (a *Arena) Owner() bool { return a.owner }

// Capacity returns the total size of the arena.
func (a *Arena) Capacity() uint64 { return a.hdr.size }

// Used returns the bytes consumed so far, header included.
func (a *Arena) Used() uint64 { return a.hdr.top.Load() }

// Available returns the bytes left for allocation.
func (a *Arena) Available() uint64 { return a.hdr.size - a.hdr.top.Load() }

// Close releases this process's mapping. The owner of a shared segment
// also removes it. Offsets and pointers obtained from the arena are
// invalid afterwards.
func (a *Arena) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var err error
	if a.release != nil {
		err = multierr.Append(err, a.release())
	}
	if a.owner && a.name != "" {
		err = multierr.Append(err, Remove(a.name))
	}
	return err
}
