package hal

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessorRoundTripDummy(t *testing.T) {
	h := newTestHAL(t)
	loadGauge(t, h, "p0")
	p := gaugeOf(t, h, "p0")

	p.bit.Set(true)
	assert.True(t, p.bit.Get())
	p.flt.Set(-1.5)
	assert.Equal(t, -1.5, p.flt.Get())
	p.s32.Set(math.MinInt32)
	assert.Equal(t, int32(math.MinInt32), p.s32.Get())
	p.u32.Set(math.MaxUint32)
	assert.Equal(t, uint32(math.MaxUint32), p.u32.Get())
	p.s64.Set(math.MinInt64)
	assert.Equal(t, int64(math.MinInt64), p.s64.Get())
	p.u64.Set(math.MaxUint64)
	assert.Equal(t, uint64(math.MaxUint64), p.u64.Get())

	for _, pin := range []pinHandle{p.bit.pinHandle, p.flt.pinHandle, p.s32.pinHandle} {
		assert.False(t, pin.Linked())
	}
}

func TestAccessorIncr(t *testing.T) {
	h := newTestHAL(t)
	loadGauge(t, h, "p0")
	p := gaugeOf(t, h, "p0")

	assert.True(t, p.bit.Incr(1))
	assert.False(t, p.bit.Incr(1))
	assert.False(t, p.bit.Incr(2))
	assert.True(t, p.bit.Incr(-1))

	p.s32.Set(math.MaxInt32)
	assert.Equal(t, int32(math.MinInt32), p.s32.Incr(1))
	assert.Equal(t, int32(math.MinInt32), p.s32.Get())
	assert.Equal(t, int32(math.MaxInt32), p.s32.Incr(-1))

	p.u32.Set(math.MaxUint32)
	assert.Equal(t, uint32(0), p.u32.Incr(1))
	assert.Equal(t, uint32(0), p.u32.Get())

	p.s64.Set(-5)
	assert.Equal(t, int64(5), p.s64.Incr(10))
	assert.Equal(t, uint64(3), p.u64.Incr(3))

	p.flt.Set(1)
	assert.Equal(t, 3.5, p.flt.Incr(2.5))
	assert.Equal(t, 3.5, p.flt.Get())

	// the untyped view sees the same normalized values
	pin, err := h.Pin("p0.u32")
	require.NoError(t, err)
	assert.Equal(t, U32Value(0), pin.Get())
}

func TestAccessorRoundTripLinked(t *testing.T) {
	h := newTestHAL(t)
	loadGauge(t, h, "p0", "p1")
	src, dst := gaugeOf(t, h, "p0"), gaugeOf(t, h, "p1")

	require.NoError(t, h.NewSignal("count", TypeS32))
	require.NoError(t, h.Link("p0.s32", "count"))
	require.NoError(t, h.Link("p1.in", "count"))

	assert.True(t, src.s32.Linked())
	assert.True(t, dst.in.Linked())

	src.s32.Set(-42)
	assert.Equal(t, int32(-42), dst.in.Get())
	src.s32.Incr(2)
	assert.Equal(t, int32(-40), dst.in.Get())

	v, err := h.GetSignal("count")
	require.NoError(t, err)
	assert.Equal(t, S32Value(-40), v)
}

// loadSink registers a component with one IN pin per type, named after
// the type, so each gauge output has a reader of its own type.
func loadSink(t *testing.T, h *HAL, insts ...string) {
	t.Helper()
	_, err := h.Xinit(CompRT, "sink", func(x *Exporter) (any, error) {
		for typ := TypeBit; typ <= TypeU64; typ++ {
			if _, err := x.Pin(typ, In, typ.String(), ZeroValue(typ)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, nil)
	require.NoError(t, err)
	for _, name := range insts {
		_, err := h.Instantiate("sink", name, nil)
		require.NoError(t, err)
	}
}

func TestAccessorRoundTripLinkedAllTypes(t *testing.T) {
	h := newTestHAL(t)
	loadGauge(t, h, "p0")
	loadSink(t, h, "k0")
	src := gaugeOf(t, h, "p0")

	tests := []struct {
		typ   Type
		write func()
		read  func(Pin) any
		want  any
	}{
		{TypeBit, func() { src.bit.Set(true) }, func(p Pin) any { return p.Bit().Get() }, true},
		{TypeFloat, func() { src.flt.Set(-1.5) }, func(p Pin) any { return p.Float().Get() }, -1.5},
		{TypeS32, func() { src.s32.Set(math.MinInt32) }, func(p Pin) any { return p.S32().Get() }, int32(math.MinInt32)},
		{TypeU32, func() { src.u32.Set(math.MaxUint32) }, func(p Pin) any { return p.U32().Get() }, uint32(math.MaxUint32)},
		{TypeS64, func() { src.s64.Set(math.MinInt64) }, func(p Pin) any { return p.S64().Get() }, int64(math.MinInt64)},
		{TypeU64, func() { src.u64.Set(math.MaxUint64) }, func(p Pin) any { return p.U64().Get() }, uint64(math.MaxUint64)},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			sig := "sig-" + tt.typ.String()
			require.NoError(t, h.NewSignal(sig, tt.typ))
			require.NoError(t, h.Link("p0."+tt.typ.String(), sig))
			require.NoError(t, h.Link("k0."+tt.typ.String(), sig))

			reader, err := h.Pin("k0." + tt.typ.String())
			require.NoError(t, err)
			require.True(t, reader.Linked())

			tt.write()
			assert.Equal(t, tt.want, tt.read(reader))

			v, err := h.GetSignal(sig)
			require.NoError(t, err)
			assert.Equal(t, reader.Get(), v)
			assert.Equal(t, tt.typ, v.Type())
		})
	}
}

func TestAccessorTypeCheckPanics(t *testing.T) {
	if !typeCheck {
		t.Skip("type checks compiled out")
	}
	h := newTestHAL(t)
	loadGauge(t, h, "p0")

	pin, err := h.Pin("p0.bit")
	require.NoError(t, err)
	assert.Panics(t, func() { pin.Float() })
	assert.Panics(t, func() { pin.Set(S32Value(1)) })
	assert.NotPanics(t, func() { pin.Set(BitValue(true)) })
	assert.True(t, pin.Bit().Get())

	// a handle whose record changed type underneath it is caught
	stale := FloatPin{pin.pinHandle}
	assert.PanicsWithValue(t, `hal: pin "p0.bit" is bit, accessed as float`, func() { stale.Get() })
}

func TestAccessorBarriers(t *testing.T) {
	h := newTestHAL(t)
	var fenced FloatPin
	_, err := h.Xinit(CompRT, "fenced", func(x *Exporter) (any, error) {
		var err error
		fenced, err = x.FloatPin(Out, "out", 0, WithBarriers(false, true))
		if err != nil {
			return nil, err
		}
		_, err = x.FloatPin(In, "in", 0)
		return nil, err
	}, nil)
	require.NoError(t, err)
	_, err = h.Instantiate("fenced", "f0", nil)
	require.NoError(t, err)

	assert.Equal(t, WriteBarrier, fenced.rec.flags.Load())

	require.NoError(t, h.NewSignal("pos", TypeFloat))
	require.NoError(t, h.SetSignalBarriers("pos", true, false))
	require.NoError(t, h.Link("f0.out", "pos"))
	require.NoError(t, h.Link("f0.in", "pos"))
	assert.Equal(t, WriteBarrier|ReadBarrier, fenced.rec.flags.Load())

	in, err := h.Pin("f0.in")
	require.NoError(t, err)
	assert.Equal(t, ReadBarrier, in.rec.flags.Load())

	fenced.Set(2.25)
	assert.Equal(t, 2.25, in.Float().Get())

	require.NoError(t, h.SetSignalBarriers("pos", false, false))
	assert.Equal(t, uint32(0), in.rec.flags.Load())
	require.NoError(t, h.Unlink("f0.out"))
	assert.Equal(t, WriteBarrier, fenced.rec.flags.Load())
}

func TestAccessorConcurrentIncr(t *testing.T) {
	h := newTestHAL(t)
	loadGauge(t, h, "p0")
	p := gaugeOf(t, h, "p0")

	const workers, per = 8, 5000
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				p.s64.Incr(1)
				p.u32.Incr(1)
				p.flt.Incr(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers*per), p.s64.Get())
	assert.Equal(t, uint32(workers*per), p.u32.Get())
	assert.Equal(t, float64(workers*per), p.flt.Get())
}
