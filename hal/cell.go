package hal

import (
	"math"
	"sync/atomic"

	"github.com/wippyai/hal-runtime/shm"
)

// Cell is the storage behind every pin and signal. All six types share
// one 64-bit word; 32-bit types use the low half and ignore the rest, so
// a 32-bit increment can be a single atomic add.
type Cell struct {
	v atomic.Uint64
}

func (c *Cell) load(flags uint32) uint64 {
	if flags&ReadBarrier != 0 {
		shm.Fence()
	}
	return c.v.Load()
}

func (c *Cell) store(flags uint32, v uint64) {
	c.v.Store(v)
	if flags&WriteBarrier != 0 {
		shm.Fence()
	}
}

func (c *Cell) add(flags uint32, delta uint64) uint64 {
	if flags&ReadBarrier != 0 {
		shm.Fence()
	}
	n := c.v.Add(delta)
	if flags&WriteBarrier != 0 {
		shm.Fence()
	}
	return n
}

func (c *Cell) addFloat(flags uint32, delta float64) float64 {
	if flags&ReadBarrier != 0 {
		shm.Fence()
	}
	for {
		old := c.v.Load()
		n := math.Float64frombits(old) + delta
		if c.v.CompareAndSwap(old, math.Float64bits(n)) {
			if flags&WriteBarrier != 0 {
				shm.Fence()
			}
			return n
		}
	}
}

func (c *Cell) addBit(flags uint32, delta int32) bool {
	if flags&ReadBarrier != 0 {
		shm.Fence()
	}
	for {
		old := c.v.Load()
		n := (old + uint64(uint32(delta))) & 1
		if c.v.CompareAndSwap(old, n) {
			if flags&WriteBarrier != 0 {
				shm.Fence()
			}
			return n != 0
		}
	}
}
