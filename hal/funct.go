package hal

import (
	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

// FunctFunc is the code behind an exported funct. arg is the value given
// at export; period is the calling thread's period in nanoseconds.
// Functs must not block, sleep or allocate from the arena.
type FunctFunc func(arg any, period int64)

// FunctOptions describes how a funct may be scheduled.
type FunctOptions struct {
	// UsesFP restricts the funct to threads that allow floating point.
	UsesFP bool
	// Reentrant allows the funct in more than one thread at a time.
	Reentrant bool
}

// newFunct creates a funct record and publishes its callback. Caller
// holds the mutex.
func (h *HAL) newFunct(owner shm.Offset, name string, fn FunctFunc, arg any, opts FunctOptions) (shm.Offset, error) {
	if err := checkName(errors.PhaseExport, "funct", name); err != nil {
		return 0, err
	}
	if fn == nil {
		return 0, errors.New(errors.PhaseExport, errors.KindInvalidInput).Path(name).Detail("nil funct").Build()
	}
	if !h.find(listFuncts, name).IsNil() {
		return 0, errors.Duplicate(errors.PhaseExport, "funct", name)
	}
	off, rec, err := newRecord[functRecord](h, listFuncts)
	if err != nil {
		return 0, err
	}
	rec.id = h.nextID()
	rec.setName(name)
	rec.owner = owner
	rec.usesFP = opts.UsesFP
	rec.reentrant = opts.Reentrant
	h.insert(listFuncts, off)
	h.local.setFunct(off, &functImpl{fn: fn, arg: arg})
	return off, nil
}

// freeFuncts releases funct records. They must already be out of every
// thread and past quiescence. Caller holds the mutex.
func (h *HAL) freeFuncts(offs []shm.Offset) {
	h.local.dropFuncts(offs...)
	for _, off := range offs {
		h.remove(listFuncts, off)
		h.freeRecord(listFuncts, off)
	}
}

func (h *HAL) ownedBy(list listID, owner shm.Offset) []shm.Offset {
	return h.collect(list, func(off shm.Offset) bool {
		switch list {
		case listPins:
			return h.pin(off).owner == owner
		case listFuncts:
			return h.funct(off).owner == owner
		case listParams:
			return h.param(off).owner == owner
		}
		return false
	})
}
