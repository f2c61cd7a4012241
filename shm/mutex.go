package shm

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Mutex is a spin lock that lives inside the arena and therefore works
// across processes. It guards setup-time directory changes only; RT code
// never takes it.
type Mutex struct {
	state  atomic.Uint32
	holder atomic.Int32
}

// Lock acquires the mutex, yielding and then sleeping while it is contended.
func (m *Mutex) Lock() {
	for spins := 0; !m.state.CompareAndSwap(0, 1); spins++ {
		backoff(spins)
	}
	m.holder.Store(pid)
}

// TryLock acquires the mutex if it is free.
func (m *Mutex) TryLock() bool {
	if !m.state.CompareAndSwap(0, 1) {
		return false
	}
	m.holder.Store(pid)
	return true
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() {
	m.holder.Store(0)
	if m.state.Swap(0) == 0 {
		panic("shm: unlock of unlocked mutex")
	}
}

// Holder returns the pid of the process holding the lock, or 0.
func (m *Mutex) Holder() int32 {
	return m.holder.Load()
}

func backoff(spins int) {
	switch {
	case spins < 16:
	case spins < 64:
		runtime.Gosched()
	default:
		shift := min(spins-64, 10)
		time.Sleep(time.Microsecond << shift)
	}
}

// fenceWord sits on its own cache line so fences do not false-share with
// arena data.
var fenceWord struct {
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

// Fence issues a full memory barrier. Go exposes no standalone fence; an
// atomic read-modify-write is sequentially consistent and orders every
// earlier load and store against every later one.
func Fence() {
	fenceWord.v.Add(1)
}
