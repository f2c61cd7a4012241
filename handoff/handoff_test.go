package handoff

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hal-runtime/shm"
)

type event struct {
	detected Flag
	count    atomic.Int32
	pending  atomic.Uint64
}

// produce writes one event the way a producer pass does.
func produce(p *Pair[event], count int32) {
	ev := p.Begin()
	ev.count.Store(count)
	ev.detected.Raise()
	p.End()
}

func TestSwapAlternatesBuffers(t *testing.T) {
	var p Pair[event]

	first := p.Begin()
	p.End()
	assert.Equal(t, uint32(0), p.Active())

	got := p.Swap()
	assert.Same(t, first, got)
	assert.Equal(t, uint32(1), p.Active())
	second := p.Begin()
	p.End()
	assert.NotSame(t, first, second)

	assert.Same(t, second, p.Swap())
	assert.Same(t, first, p.Begin())
	p.End()
}

func TestEventObservedOnce(t *testing.T) {
	var p Pair[event]
	produce(&p, 42)

	got := p.Swap()
	require.True(t, got.detected.Take())
	assert.Equal(t, int32(42), got.count.Load())
	assert.False(t, got.detected.Take())

	// consumer running twice without a producer pass drains nothing
	again := p.Swap()
	assert.False(t, again.detected.Take())
	assert.False(t, p.Swap().detected.Take())
}

func TestLatestEventWinsWithinPeriod(t *testing.T) {
	var p Pair[event]
	for i := int32(1); i <= 5; i++ {
		produce(&p, i)
	}
	got := p.Swap()
	require.True(t, got.detected.Take())
	assert.Equal(t, int32(5), got.count.Load())
}

func TestSwapDuringWriteIsSkipped(t *testing.T) {
	var p Pair[event]

	ev := p.Begin()
	assert.True(t, p.Writing())
	assert.Nil(t, p.Swap())
	assert.Equal(t, uint32(0), p.Active())
	ev.count.Store(10)
	ev.detected.Raise()
	p.End()

	produce(&p, 11)

	got := p.Swap()
	require.NotNil(t, got)
	require.True(t, got.detected.Take())
	assert.Equal(t, int32(11), got.count.Load())

	for range 2 {
		got = p.Swap()
		require.NotNil(t, got)
		assert.False(t, got.detected.Take(), "older event delivered after a newer one")
	}
}

func TestPairInArena(t *testing.T) {
	a, err := shm.NewHeap(shm.MinSize)
	require.NoError(t, err)

	off, p, err := shm.New[Pair[event]](a)
	require.NoError(t, err)
	p.Begin().detected.Raise()
	p.End()

	view := shm.Ptr[Pair[event]](a, off)
	assert.True(t, view.Swap().detected.Raised())
}

func TestConcurrentNoLoss(t *testing.T) {
	var p Pair[event]
	const produced = 200000

	var stop atomic.Bool
	var wg sync.WaitGroup
	var consumed uint64

	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			if ev := p.Swap(); ev != nil {
				consumed += ev.pending.Swap(0)
			}
		}
	}()

	for i := 0; i < produced; i++ {
		p.Begin().pending.Add(1)
		p.End()
	}
	stop.Store(true)
	wg.Wait()

	consumed += p.Swap().pending.Swap(0)
	consumed += p.Swap().pending.Swap(0)
	assert.Equal(t, uint64(produced), consumed)
}

func TestConcurrentEventsInOrder(t *testing.T) {
	var p Pair[event]
	const last = 100000

	var stop atomic.Bool
	var wg sync.WaitGroup
	var seen []int32

	wg.Add(1)
	go func() {
		defer wg.Done()
		drain := func() {
			if ev := p.Swap(); ev != nil && ev.detected.Take() {
				seen = append(seen, ev.count.Load())
			}
		}
		for !stop.Load() {
			drain()
		}
		drain()
		drain()
	}()

	for i := int32(1); i <= last; i++ {
		produce(&p, i)
	}
	stop.Store(true)
	wg.Wait()

	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		require.Greater(t, seen[i], seen[i-1], "event %d arrived after %d", seen[i], seen[i-1])
	}
	assert.Equal(t, int32(last), seen[len(seen)-1])
}
