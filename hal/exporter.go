package hal

import (
	"fmt"
	"reflect"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/ring"
	"github.com/wippyai/hal-runtime/shm"
)

// dataAlign keeps instance blocks on their own cache lines.
const dataAlign = 64

// Exporter creates the objects that belong to one instance, or to a
// singleton component. Names given to it are prefixed with the owner's
// name and a dot. Inside a Constructor the segment mutex is already held,
// so the constructor must use the exporter rather than HAL methods.
type Exporter struct {
	h      *HAL
	owner  shm.Offset
	inst   *instRecord
	comp   *compRecord
	prefix string
	args   []string
	held   bool
	done   bool

	data   shm.Offset
	size   uint32
	pins   []shm.Offset
	params []shm.Offset
	functs []shm.Offset
}

// Name returns the instance (or singleton component) name.
func (x *Exporter) Name() string { return x.prefix }

// Args returns the instantiation arguments.
func (x *Exporter) Args() []string { return x.args }

// Arena returns the arena the instance lives in.
func (x *Exporter) Arena() *shm.Arena { return x.h.arena }

// Logger returns the handle's logger.
func (x *Exporter) Logger() *zap.Logger { return x.h.log }

func (x *Exporter) do(fn func() error) error {
	if x.done {
		return errors.State(errors.PhaseExport, x.prefix, "constructing", "finished")
	}
	if x.held {
		return fn()
	}
	if err := x.h.acquire(errors.PhaseExport); err != nil {
		return err
	}
	defer x.h.mu.Unlock()
	return fn()
}

func (x *Exporter) full(suffix string) string {
	return x.prefix + "." + suffix
}

// Alloc reserves the instance's private data block. Each instance gets at
// most one block; it is zeroed and freed with the instance.
func (x *Exporter) Alloc(size int) (shm.Offset, []byte, error) {
	var (
		off shm.Offset
		n   uint32
	)
	err := x.do(func() error {
		if !x.data.IsNil() {
			return errors.State(errors.PhaseExport, x.prefix, "no data block", "data block allocated")
		}
		if size <= 0 {
			return errors.InvalidInput(errors.PhaseExport, fmt.Sprintf("data block size %d", size))
		}
		var err error
		off, n, err = x.h.allocBlock(uint32(size), dataAlign)
		if err != nil {
			return err
		}
		x.data, x.size = off, n
		if x.inst != nil {
			x.inst.data, x.inst.size = off, n
		} else {
			x.comp.data, x.comp.size = off, n
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return off, x.h.arena.Bytes(off, size), nil
}

// AllocData reserves the instance's private block sized for T. T must
// be pointer-free; use atomics for fields shared between functs running
// in different threads.
func AllocData[T any](x *Exporter) (*T, error) {
	var zero T
	rt := reflect.TypeOf(zero)
	if rt == nil || hasPointers(rt) {
		return nil, errors.New(errors.PhaseExport, errors.KindInvalidInput).
			Path(x.prefix).
			Got(fmt.Sprint(rt)).
			Detail("instance data must be pointer-free").
			Build()
	}
	off, _, err := x.Alloc(int(unsafe.Sizeof(zero)))
	if err != nil {
		return nil, err
	}
	return shm.Ptr[T](x.h.arena, off), nil
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.String, reflect.Interface,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// Pin creates a pin named <owner>.<suffix> with default value def.
func (x *Exporter) Pin(t Type, d Dir, suffix string, def Value, opts ...PinOption) (Pin, error) {
	var off shm.Offset
	err := x.do(func() error {
		var err error
		off, err = x.h.newPin(x.owner, x.full(suffix), t, d, def, opts)
		if err == nil {
			x.pins = append(x.pins, off)
		}
		return err
	})
	if err != nil {
		return Pin{}, err
	}
	return Pin{x.h.handle(off)}, nil
}

func (x *Exporter) BitPin(d Dir, suffix string, def bool, opts ...PinOption) (BitPin, error) {
	p, err := x.Pin(TypeBit, d, suffix, BitValue(def), opts...)
	return BitPin{p.pinHandle}, err
}

func (x *Exporter) FloatPin(d Dir, suffix string, def float64, opts ...PinOption) (FloatPin, error) {
	p, err := x.Pin(TypeFloat, d, suffix, FloatValue(def), opts...)
	return FloatPin{p.pinHandle}, err
}

func (x *Exporter) S32Pin(d Dir, suffix string, def int32, opts ...PinOption) (S32Pin, error) {
	p, err := x.Pin(TypeS32, d, suffix, S32Value(def), opts...)
	return S32Pin{p.pinHandle}, err
}

func (x *Exporter) U32Pin(d Dir, suffix string, def uint32, opts ...PinOption) (U32Pin, error) {
	p, err := x.Pin(TypeU32, d, suffix, U32Value(def), opts...)
	return U32Pin{p.pinHandle}, err
}

func (x *Exporter) S64Pin(d Dir, suffix string, def int64, opts ...PinOption) (S64Pin, error) {
	p, err := x.Pin(TypeS64, d, suffix, S64Value(def), opts...)
	return S64Pin{p.pinHandle}, err
}

func (x *Exporter) U64Pin(d Dir, suffix string, def uint64, opts ...PinOption) (U64Pin, error) {
	p, err := x.Pin(TypeU64, d, suffix, U64Value(def), opts...)
	return U64Pin{p.pinHandle}, err
}

// Param creates a parameter named <owner>.<suffix> holding def. Its type
// is the type of def.
func (x *Exporter) Param(d ParamDir, suffix string, def Value) (Param, error) {
	var off shm.Offset
	err := x.do(func() error {
		var err error
		off, err = x.h.newParam(x.owner, x.full(suffix), d, def)
		if err == nil {
			x.params = append(x.params, off)
		}
		return err
	})
	if err != nil {
		return Param{}, err
	}
	return Param{x.h.param(off)}, nil
}

// ExportFunct publishes fn as <owner>.<suffix>. arg is passed to every
// call.
func (x *Exporter) ExportFunct(suffix string, fn FunctFunc, arg any, opts FunctOptions) error {
	return x.do(func() error {
		off, err := x.h.newFunct(x.owner, x.full(suffix), fn, arg, opts)
		if err == nil {
			x.functs = append(x.functs, off)
		}
		return err
	})
}

// Ring opens a view on a named ring. The ring is not owned by the
// instance and outlives it.
func (x *Exporter) Ring(name string) (*ring.Ring, error) {
	var r *ring.Ring
	err := x.do(func() error {
		var err error
		r, err = x.h.openRing(name)
		return err
	})
	return r, err
}

// rollback withdraws everything exported so far. Nothing is in a thread
// yet, so no quiescence is needed. Caller holds the mutex.
func (x *Exporter) rollback() {
	x.h.freeFuncts(x.functs)
	for _, p := range x.pins {
		x.h.freePin(p)
	}
	for _, p := range x.params {
		x.h.freeParam(p)
	}
	x.h.freeBlock(x.data, x.size)
	x.functs, x.pins, x.params, x.data, x.size = nil, nil, nil, 0, 0
}
