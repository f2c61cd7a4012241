// Package handoff implements the lock-free double buffer that carries
// events from a fast producer funct to a slower consumer funct.
//
// The producer brackets each pass with Begin and End. Begin marks the
// pair as being written and returns the record selected by the active
// index; the selection is never cached across passes. The consumer flips
// the index with a compare-and-swap that only succeeds while no write is
// in progress, fences, and then owns the record it just vacated until its
// next flip. A flip that meets a write in progress is skipped and the
// events stay in place for the next consumer pass, so a record is never
// written after the consumer has taken it. Neither side waits.
//
// The consumer must run no more often than the producer. A consumer that
// flips twice between two producer passes finds an empty record; nothing
// is lost and nothing is delivered twice.
package handoff

import (
	"sync/atomic"

	"github.com/wippyai/hal-runtime/shm"
)

const (
	activeBit  = 1
	writingBit = 2
)

// Pair holds the two event records and the state word: the active index
// in bit 0 and the producer's write-in-progress mark in bit 1. It is
// pointer-free when R is, so it can live inside an instance's arena block.
type Pair[R any] struct {
	state atomic.Uint32
	_     uint32
	buf   [2]R
}

// Begin marks a write in progress and returns the record the producer
// must write this pass. Every Begin must be followed by End.
func (p *Pair[R]) Begin() *R {
	s := p.state.Or(writingBit)
	return &p.buf[s&activeBit]
}

// End publishes the producer's writes and allows the next flip.
func (p *Pair[R]) End() {
	p.state.And(^uint32(writingBit))
}

// Swap hands the active record to the consumer and redirects the producer
// to the other one. The returned record is exclusively the consumer's
// until the next Swap. Swap returns nil when the producer is between
// Begin and End; the consumer treats that as no event this pass.
func (p *Pair[R]) Swap() *R {
	s := p.state.Load()
	if s&writingBit != 0 || !p.state.CompareAndSwap(s, s^activeBit) {
		return nil
	}
	shm.Fence()
	return &p.buf[s&activeBit]
}

// Active returns the index the producer writes into.
func (p *Pair[R]) Active() uint32 {
	return p.state.Load() & activeBit
}

// Writing reports whether the producer is between Begin and End.
func (p *Pair[R]) Writing() bool {
	return p.state.Load()&writingBit != 0
}

// Flag is an event-detected marker. The producer raises it after filling
// in the event payload; the consumer takes it, which reads and clears it.
type Flag struct {
	v atomic.Uint32
}

// Raise marks the event as present.
func (f *Flag) Raise() { f.v.Store(1) }

// Take reports whether the event was present and clears it.
func (f *Flag) Take() bool { return f.v.Swap(0) != 0 }

// Raised reports the flag without clearing it.
func (f *Flag) Raised() bool { return f.v.Load() != 0 }
