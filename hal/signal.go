package hal

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

func unsafePointer[T any](p *T) unsafe.Pointer { return unsafe.Pointer(p) }

// NewSignal creates an unlinked signal of type t with a zero value.
func (h *HAL) NewSignal(name string, t Type) error {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseLink, LockConfig, "create signal"); err != nil {
		return err
	}

	if err := checkName(errors.PhaseLink, "signal", name); err != nil {
		return err
	}
	if !t.Valid() {
		return errors.New(errors.PhaseLink, errors.KindInvalidInput).Path(name).Detail("invalid type %d", uint8(t)).Build()
	}
	if !h.find(listSignals, name).IsNil() {
		return errors.Duplicate(errors.PhaseLink, "signal", name)
	}
	off, rec, err := newRecord[signalRecord](h, listSignals)
	if err != nil {
		return err
	}
	rec.id = h.nextID()
	rec.setName(name)
	rec.typ = t
	h.insert(listSignals, off)
	h.log.Debug("signal created", zap.String("signal", name), zap.Stringer("type", t))
	return nil
}

// DeleteSignal unlinks every pin from the signal and removes it.
func (h *HAL) DeleteSignal(name string) error {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseLink, LockConfig, "delete signal"); err != nil {
		return err
	}

	off := h.find(listSignals, name)
	if off.IsNil() {
		return errors.NotFound(errors.PhaseLink, "signal", name)
	}
	for _, p := range h.linkedPins(off) {
		h.unlinkPin(h.pin(p))
	}
	h.remove(listSignals, off)
	h.freeRecord(listSignals, off)
	h.log.Debug("signal deleted", zap.String("signal", name))
	return nil
}

func (h *HAL) linkedPins(sig shm.Offset) []shm.Offset {
	return h.collect(listPins, func(off shm.Offset) bool {
		return h.pin(off).signal == sig
	})
}

// SetSignalBarriers sets the signal's fences and applies them to every
// linked pin, in addition to the pin's own.
func (h *HAL) SetSignalBarriers(name string, read, write bool) error {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseLink, LockConfig, "set barriers"); err != nil {
		return err
	}

	off := h.find(listSignals, name)
	if off.IsNil() {
		return errors.NotFound(errors.PhaseLink, "signal", name)
	}
	sig := h.signal(off)
	sig.flags = 0
	if read {
		sig.flags |= ReadBarrier
	}
	if write {
		sig.flags |= WriteBarrier
	}
	for _, p := range h.linkedPins(off) {
		pin := h.pin(p)
		pin.flags.Store(uint32(pin.own) | sig.flags)
	}
	return nil
}

// GetSignal reads the named signal.
func (h *HAL) GetSignal(name string) (Value, error) {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return Value{}, err
	}
	defer h.mu.Unlock()

	off := h.find(listSignals, name)
	if off.IsNil() {
		return Value{}, errors.NotFound(errors.PhaseLink, "signal", name)
	}
	sig := h.signal(off)
	return rawValue(sig.typ, sig.value.load(sig.flags)), nil
}

// SetSignal writes the named signal. Signals driven by an OUT pin
// cannot be set.
func (h *HAL) SetSignal(name string, v Value) error {
	if err := h.acquire(errors.PhaseLink); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseLink, LockParams, "set signal"); err != nil {
		return err
	}

	off := h.find(listSignals, name)
	if off.IsNil() {
		return errors.NotFound(errors.PhaseLink, "signal", name)
	}
	sig := h.signal(off)
	if sig.writers > 0 {
		return errors.Busy(errors.PhaseLink, "signal", name, "has a writer")
	}
	if v.Type() != sig.typ {
		return errors.TypeMismatch(errors.PhaseLink, []string{name}, sig.typ.String(), v.Type().String())
	}
	sig.value.store(sig.flags, v.raw())
	return nil
}
