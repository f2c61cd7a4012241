// Package encoder is a software quadrature counter split across two
// functs: update-counters samples the phase inputs in a fast thread
// without floating point, and capture-position turns the accumulated
// counts into position and velocity in a slower floating point thread.
// The two exchange events through a handoff.Pair in the instance's arena
// block.
package encoder

import (
	"math"
	"sync/atomic"

	"github.com/wippyai/hal-runtime/components/quad"
	"github.com/wippyai/hal-runtime/hal"
	"github.com/wippyai/hal-runtime/handoff"
)

// Name is the component name used for registration.
const Name = "encoder"

// event is what one fast period hands to the slow funct.
type event struct {
	count      handoff.Flag
	rawCount   atomic.Int32
	timestamp  atomic.Uint64
	index      handoff.Flag
	indexCount atomic.Int32
	latch      handoff.Flag
	latchCount atomic.Int32
}

type state struct {
	events handoff.Pair[event]
	idle   event

	// update-counters
	quad     uint8
	oldZ     bool
	oldLatch bool
	rawCount int32
	timebase atomic.Uint64

	// capture-position
	lastRaw      int32
	lastStamp    uint64
	indexCount   int32
	sinceTimeout int32
	scale        float64
	oldScale     float64
}

type encoder struct {
	st *state

	phaseA, phaseB, phaseZ hal.BitPin
	indexEnable            hal.BitPin
	reset                  hal.BitPin
	latchIn                hal.BitPin
	latchRising            hal.BitPin
	latchFalling           hal.BitPin
	x4Mode                 hal.BitPin
	counterMode            hal.BitPin

	rawCounts     hal.S32Pin
	count         hal.S32Pin
	countLatched  hal.S32Pin
	position      hal.FloatPin
	posLatched    hal.FloatPin
	posInterp     hal.FloatPin
	velocity      hal.FloatPin
	positionScale hal.FloatPin
	minSpeed      hal.FloatPin
}

// Register loads the encoder component into h.
func Register(h *hal.HAL) error {
	_, err := h.Xinit(hal.CompRT, Name, newEncoder, nil)
	return err
}

func newEncoder(x *hal.Exporter) (any, error) {
	e := &encoder{}
	var err error
	if e.st, err = hal.AllocData[state](x); err != nil {
		return nil, err
	}
	e.st.scale, e.st.oldScale = 1, 1

	bits := []struct {
		pin  *hal.BitPin
		dir  hal.Dir
		name string
		def  bool
	}{
		{&e.phaseA, hal.In, "phase-A", false},
		{&e.phaseB, hal.In, "phase-B", false},
		{&e.phaseZ, hal.In, "phase-Z", false},
		{&e.indexEnable, hal.IO, "index-enable", false},
		{&e.reset, hal.In, "reset", false},
		{&e.latchIn, hal.In, "latch-input", false},
		{&e.latchRising, hal.In, "latch-rising", true},
		{&e.latchFalling, hal.In, "latch-falling", true},
		{&e.x4Mode, hal.In, "x4-mode", true},
		{&e.counterMode, hal.In, "counter-mode", false},
	}
	for _, b := range bits {
		if *b.pin, err = x.BitPin(b.dir, b.name, b.def); err != nil {
			return nil, err
		}
	}

	s32s := []struct {
		pin  *hal.S32Pin
		name string
	}{
		{&e.rawCounts, "raw-counts"},
		{&e.count, "count"},
		{&e.countLatched, "count-latched"},
	}
	for _, p := range s32s {
		if *p.pin, err = x.S32Pin(hal.Out, p.name, 0); err != nil {
			return nil, err
		}
	}

	floats := []struct {
		pin  *hal.FloatPin
		dir  hal.Dir
		name string
		def  float64
	}{
		{&e.position, hal.Out, "position", 0},
		{&e.posLatched, hal.Out, "position-latched", 0},
		{&e.posInterp, hal.Out, "position-interpolated", 0},
		{&e.velocity, hal.Out, "velocity", 0},
		{&e.positionScale, hal.IO, "position-scale", 1},
		{&e.minSpeed, hal.In, "min-speed-estimate", 1},
	}
	for _, f := range floats {
		if *f.pin, err = x.FloatPin(f.dir, f.name, f.def); err != nil {
			return nil, err
		}
	}

	if err := x.ExportFunct("update-counters", update, e, hal.FunctOptions{}); err != nil {
		return nil, err
	}
	if err := x.ExportFunct("capture-position", capture, e, hal.FunctOptions{UsesFP: true}); err != nil {
		return nil, err
	}
	return e, nil
}

// update samples the inputs once. It is integer only.
func update(arg any, period int64) {
	e := arg.(*encoder)
	st := e.st
	ev := st.events.Begin()
	defer st.events.End()
	now := st.timebase.Add(uint64(period))

	table := &quad.X1
	switch {
	case e.counterMode.Get():
		table = &quad.Counter
	case e.x4Mode.Get():
		table = &quad.X4
	}
	var delta int32
	st.quad, delta = quad.Step(table, st.quad, e.phaseA.Get(), e.phaseB.Get())
	if delta != 0 {
		st.rawCount += delta
		e.rawCounts.Set(st.rawCount)
		ev.rawCount.Store(st.rawCount)
		ev.timestamp.Store(now)
		ev.count.Raise()
	}

	z := e.phaseZ.Get()
	if z && !st.oldZ && e.indexEnable.Get() {
		ev.indexCount.Store(st.rawCount)
		ev.index.Raise()
	}
	st.oldZ = z

	l := e.latchIn.Get()
	if (l && !st.oldLatch && e.latchRising.Get()) || (!l && st.oldLatch && e.latchFalling.Get()) {
		ev.latchCount.Store(st.rawCount)
		ev.latch.Raise()
	}
	st.oldLatch = l
}

// capture converts counts to position and estimates velocity.
func capture(arg any, _ int64) {
	e := arg.(*encoder)
	st := e.st
	ev := st.events.Swap()
	if ev == nil {
		// update-counters is mid-pass; its events stay for the next capture
		ev = &st.idle
	}
	now := st.timebase.Load()

	if ev.index.Take() {
		st.indexCount = ev.indexCount.Load()
		e.indexEnable.Set(false)
	}
	latched := ev.latch.Take()
	latchCount := ev.latchCount.Load()

	if ps := e.positionScale.Get(); ps != st.oldScale {
		st.oldScale = ps
		if math.Abs(ps) < 1e-20 {
			ps = 1
			e.positionScale.Set(ps)
		}
		st.scale = 1 / ps
	}

	counted := ev.count.Take()
	stamp := ev.timestamp.Load()
	if counted && stamp < st.lastStamp {
		counted = false
	}
	if counted {
		raw := ev.rawCount.Load()
		dt := float64(stamp - st.lastStamp)
		dc := float64(raw - st.lastRaw)
		st.lastRaw, st.lastStamp = raw, stamp
		if st.sinceTimeout < 2 {
			st.sinceTimeout++
		} else if dt > 0 {
			e.velocity.Set(dc * st.scale / (dt * 1e-9))
		}
	} else if st.sinceTimeout > 0 {
		dt := float64(now - st.lastStamp)
		if dt < 1e9/math.Abs(e.minSpeed.Get()*st.scale) {
			// no count this period: the speed can be at most one count
			// per elapsed time; keep the previous sign
			if dt > 0 {
				vel := math.Abs(st.scale / (dt * 1e-9))
				cur := e.velocity.Get()
				if vel < cur {
					e.velocity.Set(vel)
				} else if -vel > cur {
					e.velocity.Set(-vel)
				}
			}
		} else {
			st.sinceTimeout = 0
			e.velocity.Set(0)
		}
	} else {
		e.velocity.Set(0)
	}

	if e.reset.Get() {
		// raw counts are never reset; count follows from the index offset
		st.indexCount = st.lastRaw
	}

	count := st.lastRaw - st.indexCount
	e.count.Set(count)
	pos := float64(count) * st.scale
	e.position.Set(pos)
	e.posInterp.Set(pos + e.velocity.Get()*float64(now-st.lastStamp)*1e-9)

	if latched {
		cl := latchCount - st.indexCount
		e.countLatched.Set(cl)
		e.posLatched.Set(float64(cl) * st.scale)
	}
}
