package shm

import (
	"os"
	"sync/atomic"
	"unsafe"
)

// Memory layout constants
const (
	// Magic identifies a HAL segment
	Magic = "HALSHM\x00\x00"

	// Version is bumped on any change to record layouts. Attach refuses
	// segments written by a different layout.
	Version = uint32(1)

	// HeaderSize is the reserved size of the segment header
	HeaderSize = 256

	// MinSize is the smallest arena accepted
	MinSize = 4096

	// MaxSize keeps every offset representable in 32 bits
	MaxSize = 1<<32 - 8

	// DefaultSize is used when no size is configured
	DefaultSize = 1 << 20

	// DefaultAlign is the alignment of every record
	DefaultAlign = 8
)

// Offset addresses a byte inside an arena. Zero is the header and doubles
// as the nil offset.
type Offset uint32

// IsNil reports whether the offset refers to nothing
func (o Offset) IsNil() bool { return o == 0 }

// Header is the segment header at offset 0.
type Header struct {
	magic   [8]byte       // 0x00
	version uint32        // 0x08
	flags   uint32        // 0x0C
	size    uint64        // 0x10 total arena bytes
	top     atomic.Uint64 // 0x18 bump pointer
	root    atomic.Uint32 // 0x20 directory root record
	pid     uint32        // 0x24 creator pid
	session [16]byte      // 0x28
	lock    Mutex         // 0x38
	_       [192]byte     // 0x40-0xFF reserved
}

var (
	_ [HeaderSize - unsafe.Sizeof(Header{})]byte
	_ [unsafe.Sizeof(Header{}) - HeaderSize]byte
)

var pid = int32(os.Getpid())

func (h *Header) format(size uint64, session [16]byte) {
	copy(h.magic[:], Magic)
	h.version = Version
	h.size = size
	h.pid = uint32(pid)
	h.session = session
	h.root.Store(0)
	h.top.Store(HeaderSize)
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
