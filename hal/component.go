package hal

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

// Constructor builds one instance. It exports pins and functs through x
// and returns the Go-side state passed back to the Destructor. If it
// returns an error, everything it exported is withdrawn.
type Constructor func(x *Exporter) (any, error)

// Destructor releases an instance's Go-side state. It runs after the
// instance's functs are out of every thread and before its pins and data
// are freed.
type Destructor func(name string, state any)

// Xinit registers a component. A non-nil ctor makes it instantiable;
// otherwise it is a singleton that exports through ComponentExporter and
// then calls Ready. The callbacks stay private to this handle.
func (h *HAL) Xinit(kind CompKind, name string, ctor Constructor, dtor Destructor) (int, error) {
	if err := h.acquire(errors.PhaseRegister); err != nil {
		return 0, err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseRegister, LockLoad, "register component"); err != nil {
		return 0, err
	}

	if err := checkName(errors.PhaseRegister, "component", name); err != nil {
		return 0, err
	}
	if kind != CompRT && kind != CompUser {
		return 0, errors.New(errors.PhaseRegister, errors.KindInvalidInput).Path(name).Detail("invalid kind %d", uint8(kind)).Build()
	}
	if !h.find(listComps, name).IsNil() {
		return 0, errors.Duplicate(errors.PhaseRegister, "component", name)
	}

	off, rec, err := newRecord[compRecord](h, listComps)
	if err != nil {
		return 0, err
	}
	rec.id = h.nextID()
	rec.setName(name)
	rec.kind = kind
	rec.ctor = ctor != nil
	rec.pid = int32(os.Getpid())
	rec.state = CompInitializing
	if rec.ctor {
		rec.state = CompReady
	}
	h.insert(listComps, off)
	h.local.addComp(name, &component{kind: kind, ctor: ctor, dtor: dtor, off: off})

	h.log.Debug("component registered",
		zap.String("component", name),
		zap.Stringer("kind", kind),
		zap.Bool("instantiable", rec.ctor))
	return int(rec.id), nil
}

// ComponentExporter returns the exporter of a singleton component that
// has not called Ready yet. Repeated calls return the same exporter; it
// refuses further exports once Ready is called.
func (h *HAL) ComponentExporter(name string) (*Exporter, error) {
	if err := h.acquire(errors.PhaseExport); err != nil {
		return nil, err
	}
	defer h.mu.Unlock()

	c := h.local.comps[name]
	if c == nil {
		return nil, errors.NotFound(errors.PhaseExport, "component", name)
	}
	rec := h.comp(c.off)
	if rec.ctor {
		return nil, errors.InvalidInput(errors.PhaseExport, "component "+name+" is instantiable; use Instantiate")
	}
	if rec.state != CompInitializing {
		return nil, errors.State(errors.PhaseExport, name, CompInitializing.String(), rec.state.String())
	}
	if c.exp == nil {
		c.exp = &Exporter{h: h, owner: c.off, comp: rec, prefix: name}
	}
	return c.exp, nil
}

// Ready marks a singleton component as fully exported.
func (h *HAL) Ready(name string) error {
	if err := h.acquire(errors.PhaseRegister); err != nil {
		return err
	}
	defer h.mu.Unlock()

	off := h.find(listComps, name)
	if off.IsNil() {
		return errors.NotFound(errors.PhaseRegister, "component", name)
	}
	rec := h.comp(off)
	if rec.state == CompReady {
		return errors.State(errors.PhaseRegister, name, CompInitializing.String(), rec.state.String())
	}
	rec.state = CompReady
	if c := h.local.comps[name]; c != nil && c.exp != nil {
		c.exp.done = true
	}
	return nil
}

// Exit unloads a component registered through this handle: every
// instance is deleted, then the component's own exports, then the
// component itself.
func (h *HAL) Exit(ctx context.Context, name string) error {
	if err := h.acquire(errors.PhaseDelete); err != nil {
		return err
	}
	defer h.mu.Unlock()
	return h.exit(ctx, name)
}

func (h *HAL) exit(ctx context.Context, name string) error {
	c := h.local.comps[name]
	if c == nil {
		return errors.NotFound(errors.PhaseDelete, "component", name)
	}

	insts := h.collect(listInsts, func(off shm.Offset) bool { return h.inst(off).comp == c.off })
	for _, off := range insts {
		if err := h.deleteInstance(ctx, off); err != nil {
			return err
		}
	}

	rec := h.comp(c.off)
	functs := h.ownedBy(listFuncts, c.off)
	entries := h.detachFuncts(functs)
	if err := h.quiesce(ctx); err != nil {
		return err
	}
	h.recycleEntries(entries)
	if !rec.ctor && c.dtor != nil {
		c.dtor(name, nil)
	}
	h.freeFuncts(functs)
	for _, p := range h.ownedBy(listPins, c.off) {
		h.freePin(p)
	}
	for _, p := range h.ownedBy(listParams, c.off) {
		h.freeParam(p)
	}
	h.freeBlock(rec.data, rec.size)

	h.remove(listComps, c.off)
	h.freeRecord(listComps, c.off)
	h.local.dropComp(name)
	h.log.Debug("component unloaded", zap.String("component", name), zap.Int("instances", len(insts)))
	return nil
}
