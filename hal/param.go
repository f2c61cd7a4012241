package hal

import (
	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

// newParam creates a parameter owned by owner. Caller holds the mutex.
func (h *HAL) newParam(owner shm.Offset, name string, d ParamDir, def Value) (shm.Offset, error) {
	if err := checkName(errors.PhaseExport, "param", name); err != nil {
		return 0, err
	}
	if !def.Type().Valid() {
		return 0, errors.New(errors.PhaseExport, errors.KindInvalidInput).Path(name).Detail("invalid type %d", uint8(def.Type())).Build()
	}
	if !d.Valid() {
		return 0, errors.New(errors.PhaseExport, errors.KindInvalidInput).Path(name).Detail("invalid direction %d", uint8(d)).Build()
	}
	if !h.find(listParams, name).IsNil() {
		return 0, errors.Duplicate(errors.PhaseExport, "param", name)
	}

	off, rec, err := newRecord[paramRecord](h, listParams)
	if err != nil {
		return 0, err
	}
	rec.id = h.nextID()
	rec.setName(name)
	rec.owner = owner
	rec.typ = def.Type()
	rec.dir = d
	rec.value.v.Store(def.raw())
	h.insert(listParams, off)
	return off, nil
}

func (h *HAL) freeParam(off shm.Offset) {
	h.remove(listParams, off)
	h.freeRecord(listParams, off)
}

func (h *HAL) param(off shm.Offset) *paramRecord { return shm.Ptr[paramRecord](h.arena, off) }

// Param is a handle on a parameter. Functs read it without locking;
// its owner may also write it from a funct.
type Param struct {
	rec *paramRecord
}

// Name returns the full parameter name.
func (p Param) Name() string { return p.rec.Name() }

// Type returns the parameter's data type.
func (p Param) Type() Type { return p.rec.typ }

// Dir returns RO or RW.
func (p Param) Dir() ParamDir { return p.rec.dir }

// Valid reports whether the handle refers to a parameter.
func (p Param) Valid() bool { return p.rec != nil }

// Get returns the current value.
func (p Param) Get() Value { return rawValue(p.rec.typ, p.rec.value.v.Load()) }

// Set stores v. v must have the parameter's type.
func (p Param) Set(v Value) {
	v.want(p.rec.typ)
	p.rec.value.v.Store(v.raw())
}

// Param returns a handle on the named parameter.
func (h *HAL) Param(name string) (Param, error) {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return Param{}, err
	}
	defer h.mu.Unlock()

	off := h.find(listParams, name)
	if off.IsNil() {
		return Param{}, errors.NotFound(errors.PhaseLink, "param", name)
	}
	return Param{h.param(off)}, nil
}

// GetParam reads the named parameter.
func (h *HAL) GetParam(name string) (Value, error) {
	p, err := h.Param(name)
	if err != nil {
		return Value{}, err
	}
	return p.Get(), nil
}

// SetParam writes the named RW parameter.
func (h *HAL) SetParam(name string, v Value) error {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseLink, LockParams, "set param"); err != nil {
		return err
	}
	off := h.find(listParams, name)
	if off.IsNil() {
		return errors.NotFound(errors.PhaseLink, "param", name)
	}
	rec := h.param(off)
	if rec.dir != ParamRW {
		return errors.New(errors.PhaseLink, errors.KindInvalidInput).Path(name).Detail("parameter is read-only").Build()
	}
	if v.Type() != rec.typ {
		return errors.TypeMismatch(errors.PhaseLink, []string{name}, rec.typ.String(), v.Type().String())
	}
	Param{rec}.Set(v)
	h.log.Debug("param set", zap.String("param", name), zap.Stringer("value", v))
	return nil
}
