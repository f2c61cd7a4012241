package hal

import (
	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

type pinOptions struct {
	barriers uint32
}

// PinOption adjusts a pin at creation.
type PinOption func(*pinOptions)

// WithBarriers requests a full fence before each read and/or after each
// write of the pin. Linking to a signal can add the signal's barriers.
func WithBarriers(read, write bool) PinOption {
	return func(o *pinOptions) {
		if read {
			o.barriers |= ReadBarrier
		}
		if write {
			o.barriers |= WriteBarrier
		}
	}
}

// newPin creates a pin owned by owner. Caller holds the mutex.
func (h *HAL) newPin(owner shm.Offset, name string, t Type, d Dir, def Value, opts []PinOption) (shm.Offset, error) {
	if err := checkName(errors.PhaseExport, "pin", name); err != nil {
		return 0, err
	}
	if !t.Valid() {
		return 0, errors.New(errors.PhaseExport, errors.KindInvalidInput).Path(name).Detail("invalid type %d", uint8(t)).Build()
	}
	if !d.Valid() {
		return 0, errors.New(errors.PhaseExport, errors.KindInvalidInput).Path(name).Detail("invalid direction %d", uint8(d)).Build()
	}
	if def.Type() != t {
		return 0, errors.TypeMismatch(errors.PhaseExport, []string{name}, t.String(), def.Type().String())
	}
	if !h.find(listPins, name).IsNil() {
		return 0, errors.Duplicate(errors.PhaseExport, "pin", name)
	}

	var o pinOptions
	for _, opt := range opts {
		opt(&o)
	}

	off, rec, err := newRecord[pinRecord](h, listPins)
	if err != nil {
		return 0, err
	}
	rec.id = h.nextID()
	rec.setName(name)
	rec.owner = owner
	rec.typ = t
	rec.dir = d
	rec.own = uint8(o.barriers)
	rec.flags.Store(o.barriers)
	rec.dummy.v.Store(def.raw())
	rec.data.Store(uint32(off) + uint32(pinDummyOffset))
	h.insert(listPins, off)
	return off, nil
}

// freePin unlinks and releases a pin. Caller holds the mutex.
func (h *HAL) freePin(off shm.Offset) {
	rec := h.pin(off)
	if !rec.signal.IsNil() {
		h.unlinkPin(rec)
	}
	h.remove(listPins, off)
	h.freeRecord(listPins, off)
}

func (h *HAL) handle(off shm.Offset) pinHandle {
	return pinHandle{rec: h.pin(off), base: h.arena.Base()}
}

// Pin returns an untyped handle on the named pin.
func (h *HAL) Pin(name string) (Pin, error) {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return Pin{}, err
	}
	defer h.mu.Unlock()

	off := h.find(listPins, name)
	if off.IsNil() {
		return Pin{}, errors.NotFound(errors.PhaseLink, "pin", name)
	}
	return Pin{h.handle(off)}, nil
}

// GetPin reads the named pin.
func (h *HAL) GetPin(name string) (Value, error) {
	p, err := h.Pin(name)
	if err != nil {
		return Value{}, err
	}
	return p.Get(), nil
}

// SetPin writes the named pin. Only unlinked input pins can be set this
// way; a linked pin takes its value from the signal.
func (h *HAL) SetPin(name string, v Value) error {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseLink, LockParams, "set pin"); err != nil {
		return err
	}

	off := h.find(listPins, name)
	if off.IsNil() {
		return errors.NotFound(errors.PhaseLink, "pin", name)
	}
	rec := h.pin(off)
	if rec.dir == Out {
		return errors.New(errors.PhaseLink, errors.KindInvalidInput).Path(name).Detail("pin is an output").Build()
	}
	if !rec.signal.IsNil() {
		return errors.Busy(errors.PhaseLink, "pin", name, "is linked to signal "+h.obj(rec.signal).Name())
	}
	if v.Type() != rec.typ {
		return errors.TypeMismatch(errors.PhaseLink, []string{name}, rec.typ.String(), v.Type().String())
	}
	Pin{h.handle(off)}.Set(v)
	return nil
}

// Link connects a pin to a signal. The pin then reads and writes the
// signal's cell. A signal takes at most one OUT pin, and no OUT pin when
// it already has an I/O pin. The first pin linked to a signal seeds the
// signal with the pin's current value.
func (h *HAL) Link(pinName, sigName string) error {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseLink, LockConfig, "link"); err != nil {
		return err
	}

	pinOff := h.find(listPins, pinName)
	if pinOff.IsNil() {
		return errors.NotFound(errors.PhaseLink, "pin", pinName)
	}
	sigOff := h.find(listSignals, sigName)
	if sigOff.IsNil() {
		return errors.NotFound(errors.PhaseLink, "signal", sigName)
	}
	pin, sig := h.pin(pinOff), h.signal(sigOff)

	if pin.signal == sigOff {
		return nil
	}
	if !pin.signal.IsNil() {
		return errors.Busy(errors.PhaseLink, "pin", pinName, "is already linked to "+h.obj(pin.signal).Name())
	}
	if pin.typ != sig.typ {
		return errors.New(errors.PhaseLink, errors.KindTypeMismatch).
			Path(pinName).
			Want(sig.typ.String()).
			Got(pin.typ.String()).
			Detail("signal %q", sigName).
			Build()
	}
	if pin.dir == Out && (sig.writers > 0 || sig.bidirs > 0) {
		return errors.Busy(errors.PhaseLink, "signal", sigName, "already has a writer")
	}
	if pin.dir == IO && sig.writers > 0 {
		return errors.Busy(errors.PhaseLink, "signal", sigName, "already has an output")
	}

	if sig.readers == 0 && sig.writers == 0 && sig.bidirs == 0 {
		sig.value.v.Store(pin.dummy.v.Load())
	}
	switch pin.dir {
	case In:
		sig.readers++
	case Out:
		sig.writers++
	case IO:
		sig.bidirs++
	}
	pin.signal = sigOff
	pin.flags.Store(uint32(pin.own) | sig.flags)
	pin.data.Store(uint32(sigOff) + uint32(signalCellOffset))

	h.log.Debug("linked", zap.String("pin", pinName), zap.String("signal", sigName))
	return nil
}

// Unlink disconnects a pin. The pin keeps the signal's last value in its
// own cell.
func (h *HAL) Unlink(pinName string) error {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseLink, LockConfig, "unlink"); err != nil {
		return err
	}

	off := h.find(listPins, pinName)
	if off.IsNil() {
		return errors.NotFound(errors.PhaseLink, "pin", pinName)
	}
	rec := h.pin(off)
	if rec.signal.IsNil() {
		return nil
	}
	h.unlinkPin(rec)
	h.log.Debug("unlinked", zap.String("pin", pinName))
	return nil
}

func (h *HAL) unlinkPin(pin *pinRecord) {
	sig := h.signal(pin.signal)
	pin.dummy.v.Store(sig.value.v.Load())
	pin.data.Store(uint32(h.arena.OffsetOf(unsafePointer(&pin.dummy))))
	pin.flags.Store(uint32(pin.own))
	switch pin.dir {
	case In:
		sig.readers--
	case Out:
		sig.writers--
	case IO:
		sig.bidirs--
	}
	pin.signal = 0
}
