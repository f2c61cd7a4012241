package hal

import (
	"bytes"
	"unsafe"

	"github.com/wippyai/hal-runtime/shm"
)

func (h *HAL) obj(off shm.Offset) *objHeader {
	return shm.Ptr[objHeader](h.arena, off)
}

// newRecord takes a record of type T from the kind's free list, or
// allocates a fresh one. The record comes back zeroed.
func newRecord[T any](h *HAL, list listID) (shm.Offset, *T, error) {
	if off := h.root.free[list]; !off.IsNil() {
		h.root.free[list] = h.obj(off).next
		var zero T
		h.arena.Zero(off, int(unsafe.Sizeof(zero)))
		return off, shm.Ptr[T](h.arena, off), nil
	}
	return shm.New[T](h.arena)
}

func (h *HAL) freeRecord(list listID, off shm.Offset) {
	o := h.obj(off)
	*o = objHeader{}
	o.next = h.root.free[list]
	h.root.free[list] = off
}

// insert links off into list keeping names in ascending order.
func (h *HAL) insert(list listID, off shm.Offset) {
	name := h.obj(off).name
	prev := &h.root.heads[list]
	for !prev.IsNil() {
		cur := h.obj(*prev)
		if bytes.Compare(cur.name[:], name[:]) > 0 {
			break
		}
		prev = &cur.next
	}
	h.obj(off).next = *prev
	*prev = off
}

// remove unlinks off from list. It reports whether off was present.
func (h *HAL) remove(list listID, off shm.Offset) bool {
	prev := &h.root.heads[list]
	for !prev.IsNil() {
		if *prev == off {
			*prev = h.obj(off).next
			h.obj(off).next = 0
			return true
		}
		prev = &h.obj(*prev).next
	}
	return false
}

// find returns the record named name, or 0.
func (h *HAL) find(list listID, name string) shm.Offset {
	var key [NameLen]byte
	copy(key[:], name)
	for off := h.root.heads[list]; !off.IsNil(); off = h.obj(off).next {
		switch bytes.Compare(h.obj(off).name[:], key[:]) {
		case 0:
			return off
		case 1:
			return 0
		}
	}
	return 0
}

// each calls fn for every record in list, in name order, until fn
// returns false. fn may not modify the list.
func (h *HAL) each(list listID, fn func(off shm.Offset) bool) {
	for off := h.root.heads[list]; !off.IsNil(); {
		next := h.obj(off).next
		if !fn(off) {
			return
		}
		off = next
	}
}

// collect returns every record offset in list for which keep returns true.
func (h *HAL) collect(list listID, keep func(off shm.Offset) bool) []shm.Offset {
	var out []shm.Offset
	h.each(list, func(off shm.Offset) bool {
		if keep == nil || keep(off) {
			out = append(out, off)
		}
		return true
	})
	return out
}

func (h *HAL) pin(off shm.Offset) *pinRecord       { return shm.Ptr[pinRecord](h.arena, off) }
func (h *HAL) signal(off shm.Offset) *signalRecord { return shm.Ptr[signalRecord](h.arena, off) }
func (h *HAL) funct(off shm.Offset) *functRecord   { return shm.Ptr[functRecord](h.arena, off) }
func (h *HAL) thread(off shm.Offset) *threadRecord { return shm.Ptr[threadRecord](h.arena, off) }
func (h *HAL) comp(off shm.Offset) *compRecord     { return shm.Ptr[compRecord](h.arena, off) }
func (h *HAL) inst(off shm.Offset) *instRecord     { return shm.Ptr[instRecord](h.arena, off) }
func (h *HAL) ringRec(off shm.Offset) *ringRecord  { return shm.Ptr[ringRecord](h.arena, off) }

// allocBlock returns a zeroed block of at least size bytes, reusing a
// freed block of the same size when one exists.
func (h *HAL) allocBlock(size uint32, align uintptr) (shm.Offset, uint32, error) {
	size = max((size+7)&^7, uint32(unsafe.Sizeof(freeBlock{})))
	prev := &h.root.freeBlocks
	for !prev.IsNil() {
		b := shm.Ptr[freeBlock](h.arena, *prev)
		if b.size == size && uintptr(*prev)%align == 0 {
			off := *prev
			*prev = b.next
			h.root.freeBytes -= uint64(size)
			h.root.reusedBytes += uint64(size)
			h.arena.Zero(off, int(size))
			return off, size, nil
		}
		prev = &b.next
	}
	off, err := h.arena.Alloc(uintptr(size), align)
	return off, size, err
}

func (h *HAL) freeBlock(off shm.Offset, size uint32) {
	if off.IsNil() {
		return
	}
	b := shm.Ptr[freeBlock](h.arena, off)
	b.next = h.root.freeBlocks
	b.size = size
	h.root.freeBlocks = off
	h.root.freeBytes += uint64(size)
}
