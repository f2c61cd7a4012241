package hal

import (
	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/ring"
)

// NewRing allocates a named record ring whose data area holds at least
// size bytes.
func (h *HAL) NewRing(name string, size int) error {
	if err := h.acquire(errors.PhaseRing); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseRing, LockConfig, "create ring"); err != nil {
		return err
	}

	if err := checkName(errors.PhaseRing, "ring", name); err != nil {
		return err
	}
	if size <= 0 {
		return errors.New(errors.PhaseRing, errors.KindInvalidInput).Path(name).Detail("size %d", size).Build()
	}
	if !h.find(listRings, name).IsNil() {
		return errors.Duplicate(errors.PhaseRing, "ring", name)
	}

	total := ring.Size(size)
	block, n, err := h.allocBlock(uint32(total), dataAlign)
	if err != nil {
		return err
	}
	if _, err := ring.Init(h.arena.Bytes(block, total)); err != nil {
		h.freeBlock(block, n)
		return errors.Wrap(errors.PhaseRing, errors.KindInvalidInput, err, "format ring "+name)
	}
	off, rec, err := newRecord[ringRecord](h, listRings)
	if err != nil {
		h.freeBlock(block, n)
		return err
	}
	rec.id = h.nextID()
	rec.setName(name)
	rec.ring = block
	rec.size = n
	h.insert(listRings, off)
	h.log.Debug("ring created", zap.String("ring", name), zap.Int("bytes", total))
	return nil
}

// Ring returns a new view on the named ring. Use one view per side.
func (h *HAL) Ring(name string) (*ring.Ring, error) {
	if err := h.acquire(errors.PhaseRing); err != nil {
		return nil, err
	}
	defer h.mu.Unlock()
	return h.openRing(name)
}

func (h *HAL) openRing(name string) (*ring.Ring, error) {
	off := h.find(listRings, name)
	if off.IsNil() {
		return nil, errors.NotFound(errors.PhaseRing, "ring", name)
	}
	rec := h.ringRec(off)
	r, err := ring.Attach(h.arena.Bytes(rec.ring, int(rec.size)))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRing, errors.KindInvalidInput, err, "attach ring "+name)
	}
	return r, nil
}

// DeleteRing frees a named ring. Views still held on it must not be used.
func (h *HAL) DeleteRing(name string) error {
	if err := h.acquire(errors.PhaseRing); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseRing, LockConfig, "delete ring"); err != nil {
		return err
	}

	off := h.find(listRings, name)
	if off.IsNil() {
		return errors.NotFound(errors.PhaseRing, "ring", name)
	}
	rec := h.ringRec(off)
	h.freeBlock(rec.ring, rec.size)
	h.remove(listRings, off)
	h.freeRecord(listRings, off)
	return nil
}

