package hal

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

// Instantiate creates an instance of comp named name. The component's
// constructor runs with the segment mutex held. If it fails, every pin,
// funct and data block it created is withdrawn and the error is returned.
func (h *HAL) Instantiate(comp, name string, args []string) (int, error) {
	if err := h.acquire(errors.PhaseExport); err != nil {
		return 0, err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseExport, LockLoad, "instantiate"); err != nil {
		return 0, err
	}

	c := h.local.comps[comp]
	if c == nil {
		if !h.find(listComps, comp).IsNil() {
			return 0, errors.New(errors.PhaseExport, errors.KindNotFound).
				Path(comp).
				Detail("component is not loaded in this process").
				Build()
		}
		return 0, errors.NotFound(errors.PhaseExport, "component", comp)
	}
	crec := h.comp(c.off)
	if !crec.ctor {
		return 0, errors.InvalidInput(errors.PhaseExport, "component "+comp+" is not instantiable")
	}
	if err := checkName(errors.PhaseExport, "instance", name); err != nil {
		return 0, err
	}
	if !h.find(listInsts, name).IsNil() {
		return 0, errors.Duplicate(errors.PhaseExport, "instance", name)
	}

	off, inst, err := newRecord[instRecord](h, listInsts)
	if err != nil {
		return 0, err
	}
	inst.id = h.nextID()
	inst.setName(name)
	inst.comp = c.off
	inst.state.Store(uint32(InstCreated))
	h.insert(listInsts, off)

	x := &Exporter{
		h:      h,
		owner:  off,
		inst:   inst,
		comp:   crec,
		prefix: name,
		args:   append([]string(nil), args...),
		held:   true,
	}
	inst.state.Store(uint32(InstExporting))
	state, err := c.ctor(x)
	x.done = true
	if err != nil {
		x.rollback()
		h.remove(listInsts, off)
		h.freeRecord(listInsts, off)
		h.log.Debug("instantiation failed", zap.String("component", comp), zap.String("instance", name), zap.Error(err))
		return 0, errors.Instantiation(comp, name, err)
	}

	h.local.insts[off] = state
	crec.insts++
	inst.state.Store(uint32(InstActive))
	h.log.Debug("instance created",
		zap.String("component", comp),
		zap.String("instance", name),
		zap.Int("pins", len(x.pins)),
		zap.Int("params", len(x.params)),
		zap.Int("functs", len(x.functs)),
		zap.Uint32("data", x.size))
	return int(inst.id), nil
}

// DeleteInstance removes an instance. Its functs leave every thread
// first; the call then waits until no thread can still be running them,
// runs the destructor and frees pins, functs and data. If ctx ends while
// waiting, the instance stays in the deleting state and the call can be
// repeated.
func (h *HAL) DeleteInstance(ctx context.Context, name string) error {
	if err := h.acquire(errors.PhaseDelete); err != nil {
		return err
	}
	defer h.mu.Unlock()

	off := h.find(listInsts, name)
	if off.IsNil() {
		return errors.NotFound(errors.PhaseDelete, "instance", name)
	}
	if st := InstState(h.inst(off).state.Load()); st != InstActive && st != InstDeleting {
		return errors.State(errors.PhaseDelete, name, InstActive.String(), st.String())
	}
	return h.deleteInstance(ctx, off)
}

func (h *HAL) deleteInstance(ctx context.Context, off shm.Offset) error {
	inst := h.inst(off)
	name := inst.Name()
	inst.state.Store(uint32(InstDeleting))

	functs := h.ownedBy(listFuncts, off)
	entries := h.detachFuncts(functs)
	if err := h.quiesce(ctx); err != nil {
		return err
	}
	h.recycleEntries(entries)

	crec := h.comp(inst.comp)
	if c := h.local.comps[crec.Name()]; c != nil {
		if c.dtor != nil {
			c.dtor(name, h.local.insts[off])
		}
	} else {
		h.log.Warn("deleting instance of a component loaded elsewhere", zap.String("instance", name))
	}
	delete(h.local.insts, off)

	h.freeFuncts(functs)
	for _, p := range h.ownedBy(listPins, off) {
		h.freePin(p)
	}
	for _, p := range h.ownedBy(listParams, off) {
		h.freeParam(p)
	}
	h.freeBlock(inst.data, inst.size)
	crec.insts--

	inst.state.Store(uint32(InstFreed))
	h.remove(listInsts, off)
	h.freeRecord(listInsts, off)
	h.log.Debug("instance deleted", zap.String("instance", name), zap.Int("functs", len(functs)))
	return nil
}

// InstanceState returns the lifecycle state of the named instance.
// Unknown names report InstUnregistered.
func (h *HAL) InstanceState(name string) (InstState, error) {
	if err := h.acquire(errors.PhaseExport); err != nil {
		return 0, err
	}
	defer h.mu.Unlock()

	off := h.find(listInsts, name)
	if off.IsNil() {
		return InstUnregistered, nil
	}
	return InstState(h.inst(off).state.Load()), nil
}

// InstanceData returns the Go-side state the constructor returned for an
// instance created through this handle.
func (h *HAL) InstanceData(name string) (any, error) {
	if err := h.acquire(errors.PhaseExport); err != nil {
		return nil, err
	}
	defer h.mu.Unlock()

	off := h.find(listInsts, name)
	if off.IsNil() {
		return nil, errors.NotFound(errors.PhaseExport, "instance", name)
	}
	return h.local.insts[off], nil
}
