package hal

import (
	"bytes"
	"sync/atomic"
	"unicode"
	"unsafe"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

// NameLen bounds every object name, terminator included.
const NameLen = 48

// objHeader starts every directory record so list code can treat records
// of all kinds alike.
type objHeader struct {
	next shm.Offset
	id   int32
	name [NameLen]byte
}

func (o *objHeader) Name() string {
	n := bytes.IndexByte(o.name[:], 0)
	if n < 0 {
		n = NameLen
	}
	return string(o.name[:n])
}

func (o *objHeader) setName(s string) {
	o.name = [NameLen]byte{}
	copy(o.name[:], s)
}

type listID int

const (
	listComps listID = iota
	listInsts
	listPins
	listSignals
	listFuncts
	listThreads
	listRings
	listParams
	numLists
)

var listNames = [numLists]string{"component", "instance", "pin", "signal", "funct", "thread", "ring", "param"}

// dirRoot anchors the directory. Plain fields change only under the
// segment mutex.
type dirRoot struct {
	heads       [numLists]shm.Offset
	free        [numLists]shm.Offset
	freeEntries shm.Offset
	freeBlocks  shm.Offset
	nextID      int32
	_           int32
	freeBytes   uint64
	reusedBytes uint64
	running     atomic.Uint32
	lock        atomic.Uint32 // LockLevel
}

type compRecord struct {
	objHeader
	kind   CompKind
	state  CompState
	ctor   bool
	_      uint8
	pid    int32
	insts  int32
	data   shm.Offset
	size   uint32
}

type instRecord struct {
	objHeader
	comp  shm.Offset
	data  shm.Offset
	size  uint32
	state atomic.Uint32
}

type pinRecord struct {
	objHeader
	owner  shm.Offset
	signal shm.Offset
	data   atomic.Uint32 // offset of the cell in use
	flags  atomic.Uint32 // effective barriers
	typ    Type
	dir    Dir
	own    uint8 // barriers requested at creation
	_      uint8
	dummy  Cell
}

type signalRecord struct {
	objHeader
	typ     Type
	_       [3]byte
	readers int32
	writers int32
	bidirs  int32
	flags   uint32
	_       uint32
	value   Cell
}

type functRecord struct {
	objHeader
	owner     shm.Offset
	users     atomic.Int32
	usesFP    bool
	reentrant bool
	_         [6]byte
	runtime   atomic.Int64
	maxtime   atomic.Int64
}

type threadRecord struct {
	objHeader
	period  int64
	usesFP  bool
	_       [3]byte
	head    atomic.Uint32 // first functEntry
	seq     atomic.Uint64 // odd while a pass is running
	passes  atomic.Uint64
	runtime atomic.Int64
	maxtime atomic.Int64
}

// functEntry places a funct in a thread. Links are atomic because RT
// threads walk them while setup code edits the list.
type functEntry struct {
	next  atomic.Uint32
	funct shm.Offset
}

type ringRecord struct {
	objHeader
	ring shm.Offset
	size uint32
}

// paramRecord is a value owned by an instance that functs read but do
// not link. It lives in its own cell like an unlinked pin.
type paramRecord struct {
	objHeader
	owner shm.Offset
	typ   Type
	dir   ParamDir
	_     [2]byte
	value Cell
}

type freeBlock struct {
	next shm.Offset
	size uint32
}

var (
	pinDummyOffset   = unsafe.Offsetof(pinRecord{}.dummy)
	signalCellOffset = unsafe.Offsetof(signalRecord{}.value)
)

func checkName(phase errors.Phase, what, name string) error {
	if name == "" {
		return errors.InvalidInput(phase, what+" name is empty")
	}
	if len(name) >= NameLen {
		return errors.New(phase, errors.KindInvalidInput).
			Path(name).
			Detail("%s name longer than %d bytes", what, NameLen-1).
			Build()
	}
	for _, r := range name {
		if r == 0 || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return errors.New(phase, errors.KindInvalidInput).
				Path(name).
				Detail("%s name contains %q", what, r).
				Build()
		}
	}
	return nil
}
