package ring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// Layout constants
const (
	// HeaderSize is the control block that precedes the data area
	HeaderSize = 192

	// MinCapacity is the smallest data area accepted
	MinCapacity = 64

	recordHeader = 8
	wrapMarker   = ^uint32(0)
	magic        = uint32(0x52494e47) // "RING"
)

var (
	ErrFull          = errors.New("ring full")
	ErrEmpty         = errors.New("ring empty")
	ErrTooLarge      = errors.New("record larger than ring allows")
	ErrNoReservation = errors.New("write_end without write_begin")
	ErrCorrupt       = errors.New("record length exceeds the ring bounds")
)

// header is shared between producer and consumer. Cursors sit on separate
// cache lines.
type header struct {
	capacity uint64
	magic    uint32
	_        uint32
	_        [48]byte
	head     atomic.Uint64 // consumer cursor
	_        [56]byte
	tail     atomic.Uint64 // producer cursor
	_        [56]byte
}

var (
	_ [HeaderSize - unsafe.Sizeof(header{})]byte
	_ [unsafe.Sizeof(header{}) - HeaderSize]byte
)

// State is a snapshot of ring counters for diagnostics
type State struct {
	Capacity uint64
	Head     uint64
	Tail     uint64
	Used     uint64
}

// Ring is one side's view of a ring. Producer and consumer bookkeeping
// are kept apart so one view may serve both sides from two goroutines.
type Ring struct {
	hdr      *header
	data     []byte
	capacity uint64
	mask     uint64

	// producer
	wstart   uint64
	wcap     int
	wpending bool

	// consumer
	rnext uint64
	rhave bool
}

// Size returns the number of bytes needed for a ring whose data area holds
// at least capacity bytes.
func Size(capacity int) int {
	return HeaderSize + int(roundPow2(uint64(max(capacity, MinCapacity))))
}

// Init formats mem as an empty ring and returns a view on it. The data
// area is the largest power of two that fits after the header.
func Init(mem []byte) (*Ring, error) {
	if err := checkMem(mem); err != nil {
		return nil, err
	}
	avail := uint64(len(mem) - HeaderSize)
	capacity := uint64(1) << (63 - bits.LeadingZeros64(avail))
	if capacity < MinCapacity {
		return nil, fmt.Errorf("ring: %d bytes leave no room for data", len(mem))
	}
	h := (*header)(unsafe.Pointer(&mem[0]))
	h.capacity = capacity
	h.head.Store(0)
	h.tail.Store(0)
	h.magic = magic
	return view(mem, h), nil
}

// Attach returns a view on a ring previously formatted with Init.
func Attach(mem []byte) (*Ring, error) {
	if err := checkMem(mem); err != nil {
		return nil, err
	}
	h := (*header)(unsafe.Pointer(&mem[0]))
	if h.magic != magic {
		return nil, fmt.Errorf("ring: bad magic %#x", h.magic)
	}
	if h.capacity < MinCapacity || h.capacity&(h.capacity-1) != 0 || HeaderSize+h.capacity > uint64(len(mem)) {
		return nil, fmt.Errorf("ring: capacity %d does not fit %d bytes", h.capacity, len(mem))
	}
	return view(mem, h), nil
}

func checkMem(mem []byte) error {
	if len(mem) < HeaderSize+MinCapacity {
		return fmt.Errorf("ring: need at least %d bytes, got %d", HeaderSize+MinCapacity, len(mem))
	}
	if uintptr(unsafe.Pointer(&mem[0]))%8 != 0 {
		return fmt.Errorf("ring: memory is not 8-byte aligned")
	}
	return nil
}

func view(mem []byte, h *header) *Ring {
	return &Ring{
		hdr:      h,
		data:     mem[HeaderSize : HeaderSize+h.capacity],
		capacity: h.capacity,
		mask:     h.capacity - 1,
	}
}

func roundPow2(v uint64) uint64 {
	if v&(v-1) == 0 {
		return v
	}
	return 1 << (64 - bits.LeadingZeros64(v))
}

func recordSize(n int) uint64 {
	return recordHeader + (uint64(n)+7)&^7
}

// Capacity returns the size of the data area
func (r *Ring) Capacity() uint64 { return r.capacity }

// MaxRecord returns the largest payload accepted. It is bounded so that a
// record always fits once the ring drains, wherever the cursor stands.
func (r *Ring) MaxRecord() int { return int(r.capacity/2) - recordHeader }

// WriteBegin reserves room for an n-byte record and returns the slice to
// fill. It returns ErrFull when the consumer has not freed enough space.
// A second WriteBegin replaces an uncommitted reservation.
func (r *Ring) WriteBegin(n int) ([]byte, error) {
	if n < 0 || n > r.MaxRecord() {
		return nil, ErrTooLarge
	}
	need := recordSize(n)
	tail := r.hdr.tail.Load()
	head := r.hdr.head.Load()
	free := r.capacity - (tail - head)
	pos := tail & r.mask
	contig := r.capacity - pos

	start := tail
	if need > contig {
		if contig+need > free {
			return nil, ErrFull
		}
		start = tail + contig
	} else if need > free {
		return nil, ErrFull
	}

	r.wstart = start
	r.wcap = n
	r.wpending = true
	p := start & r.mask
	return r.data[p+recordHeader : p+recordHeader+uint64(n) : p+recordHeader+uint64(n)], nil
}

// WriteEnd publishes the reserved record. rec is the slice returned by
// WriteBegin, optionally shortened.
func (r *Ring) WriteEnd(rec []byte) error {
	if !r.wpending {
		return ErrNoReservation
	}
	if len(rec) > r.wcap {
		return ErrTooLarge
	}
	tail := r.hdr.tail.Load()
	if r.wstart != tail {
		binary.LittleEndian.PutUint32(r.data[tail&r.mask:], wrapMarker)
	}
	p := r.wstart & r.mask
	binary.LittleEndian.PutUint32(r.data[p:], uint32(len(rec)))
	binary.LittleEndian.PutUint32(r.data[p+4:], 0)
	r.wpending = false
	r.hdr.tail.Store(r.wstart + recordSize(len(rec)))
	return nil
}

// Write copies p into the ring as one record.
func (r *Ring) Write(p []byte) error {
	rec, err := r.WriteBegin(len(p))
	if err != nil {
		return err
	}
	copy(rec, p)
	return r.WriteEnd(rec)
}

// Read returns the oldest record without removing it. The slice aliases
// ring memory and stays valid until Shift.
func (r *Ring) Read() ([]byte, error) {
	head := r.hdr.head.Load()
	tail := r.hdr.tail.Load()
	if head == tail {
		return nil, ErrEmpty
	}
	p := head & r.mask
	n := binary.LittleEndian.Uint32(r.data[p:])
	if n == wrapMarker {
		head += r.capacity - p
		p = 0
		n = binary.LittleEndian.Uint32(r.data[0:])
	}
	if int(n) > r.MaxRecord() || head+recordSize(int(n)) > tail {
		r.rhave = false
		return nil, ErrCorrupt
	}
	r.rnext = head + recordSize(int(n))
	r.rhave = true
	end := p + recordHeader + uint64(n)
	return r.data[p+recordHeader : end : end], nil
}

// Shift releases the oldest record back to the producer.
func (r *Ring) Shift() error {
	if !r.rhave {
		if _, err := r.Read(); err != nil {
			return err
		}
	}
	r.rhave = false
	r.hdr.head.Store(r.rnext)
	return nil
}

// Used returns the bytes held by unread records, framing included.
func (r *Ring) Used() uint64 {
	return r.hdr.tail.Load() - r.hdr.head.Load()
}

// Empty reports whether no records are pending.
func (r *Ring) Empty() bool {
	return r.hdr.tail.Load() == r.hdr.head.Load()
}

// State returns a snapshot of the cursors.
func (r *Ring) State() State {
	head := r.hdr.head.Load()
	tail := r.hdr.tail.Load()
	return State{Capacity: r.capacity, Head: head, Tail: tail, Used: tail - head}
}
