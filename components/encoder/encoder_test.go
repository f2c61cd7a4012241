package encoder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hal-runtime/hal"
)

type rig struct {
	t     *testing.T
	h     *hal.HAL
	base  *hal.Thread
	servo *hal.Thread
}

func newRig(t *testing.T) *rig {
	t.Helper()
	h, err := hal.New(hal.Config{Size: 128 * 1024})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, h.Close(context.Background())) })

	require.NoError(t, Register(h))
	_, err = h.Instantiate(Name, "enc0", nil)
	require.NoError(t, err)

	_, err = h.CreateThread("base", time.Millisecond, false)
	require.NoError(t, err)
	_, err = h.CreateThread("servo", time.Millisecond, true)
	require.NoError(t, err)
	require.NoError(t, h.AddFunct("enc0.update-counters", "base", -1))
	require.NoError(t, h.AddFunct("enc0.capture-position", "servo", -1))

	r := &rig{t: t, h: h}
	r.base, err = h.Thread("base")
	require.NoError(t, err)
	r.servo, err = h.Thread("servo")
	require.NoError(t, err)
	require.NoError(t, h.StartThreads())
	return r
}

func (r *rig) set(pin string, v hal.Value) {
	r.t.Helper()
	require.NoError(r.t, r.h.SetPin("enc0."+pin, v))
}

func (r *rig) get(pin string) hal.Value {
	r.t.Helper()
	v, err := r.h.GetPin("enc0." + pin)
	require.NoError(r.t, err)
	return v
}

// step drives A/B and runs one fast pass.
func (r *rig) step(a, b bool) {
	r.set("phase-A", hal.BitValue(a))
	r.set("phase-B", hal.BitValue(b))
	r.base.RunPass()
}

func (r *rig) forward() {
	r.step(true, false)
	r.step(true, true)
	r.step(false, true)
	r.step(false, false)
}

func (r *rig) backward() {
	r.step(false, true)
	r.step(true, true)
	r.step(true, false)
	r.step(false, false)
}

func TestX4CountsFourPerCycle(t *testing.T) {
	r := newRig(t)

	r.forward()
	r.servo.RunPass()
	assert.Equal(t, int32(4), r.get("count").S32())
	assert.Equal(t, int32(4), r.get("raw-counts").S32())
	assert.Equal(t, 4.0, r.get("position").Float())

	r.backward()
	r.backward()
	r.servo.RunPass()
	assert.Equal(t, int32(-4), r.get("count").S32())
	assert.Equal(t, -4.0, r.get("position").Float())
}

func TestX1AndScale(t *testing.T) {
	r := newRig(t)
	r.set("x4-mode", hal.BitValue(false))
	r.set("position-scale", hal.FloatValue(100))

	r.forward()
	r.forward()
	r.servo.RunPass()
	assert.Equal(t, int32(2), r.get("count").S32())
	assert.InDelta(t, 0.02, r.get("position").Float(), 1e-12)

	// a zero scale falls back to one
	r.set("position-scale", hal.FloatValue(0))
	r.servo.RunPass()
	assert.Equal(t, 1.0, r.get("position-scale").Float())
	assert.Equal(t, 2.0, r.get("position").Float())
}

func TestCounterMode(t *testing.T) {
	r := newRig(t)
	r.set("counter-mode", hal.BitValue(true))
	for i := 0; i < 3; i++ {
		r.step(true, i%2 == 0)
		r.step(false, false)
	}
	r.servo.RunPass()
	assert.Equal(t, int32(3), r.get("count").S32())
}

func TestIndexResetsCount(t *testing.T) {
	r := newRig(t)
	r.forward()
	r.set("index-enable", hal.BitValue(true))
	r.set("phase-Z", hal.BitValue(true))
	r.base.RunPass()
	r.set("phase-Z", hal.BitValue(false))
	r.forward()
	r.servo.RunPass()

	assert.Equal(t, int32(4), r.get("count").S32(), "counts after the index")
	assert.Equal(t, int32(8), r.get("raw-counts").S32())
	assert.False(t, r.get("index-enable").Bit())

	// Z without index-enable is ignored
	r.set("phase-Z", hal.BitValue(true))
	r.base.RunPass()
	r.servo.RunPass()
	assert.Equal(t, int32(4), r.get("count").S32())
}

func TestResetAndLatch(t *testing.T) {
	r := newRig(t)
	r.forward()
	r.set("latch-input", hal.BitValue(true))
	r.base.RunPass()
	r.forward()
	r.servo.RunPass()
	assert.Equal(t, int32(4), r.get("count-latched").S32())
	assert.Equal(t, 4.0, r.get("position-latched").Float())
	assert.Equal(t, int32(8), r.get("count").S32())

	r.set("reset", hal.BitValue(true))
	r.servo.RunPass()
	assert.Equal(t, int32(0), r.get("count").S32())
	assert.Equal(t, int32(8), r.get("raw-counts").S32(), "raw counts keep running")

	r.set("reset", hal.BitValue(false))
	r.forward()
	r.servo.RunPass()
	assert.Equal(t, int32(4), r.get("count").S32())
}

func TestVelocityEstimate(t *testing.T) {
	r := newRig(t)
	steps := [][2]bool{{true, false}, {true, true}, {false, true}, {false, false}}
	for i := 0; i < 8; i++ {
		s := steps[i%4]
		r.step(s[0], s[1])
		r.servo.RunPass()
	}
	// one count per 1ms base period
	assert.InDelta(t, 1000, r.get("velocity").Float(), 1e-6)

	for i := 0; i < 10; i++ {
		r.base.RunPass()
	}
	r.servo.RunPass()
	assert.InDelta(t, 100, r.get("velocity").Float(), 1e-6)
	assert.Greater(t, r.get("position-interpolated").Float(), r.get("position").Float())
}

func (r *rig) state() *state {
	r.t.Helper()
	data, err := r.h.InstanceData("enc0")
	require.NoError(r.t, err)
	return data.(*encoder).st
}

func TestCaptureDuringUpdateKeepsEvents(t *testing.T) {
	r := newRig(t)
	st := r.state()

	r.forward()
	// capture lands while update-counters is between Begin and End
	st.events.Begin()
	r.servo.RunPass()
	st.events.End()
	assert.Equal(t, int32(0), r.get("count").S32())

	r.servo.RunPass()
	assert.Equal(t, int32(4), r.get("count").S32())

	r.forward()
	r.servo.RunPass()
	assert.Equal(t, int32(8), r.get("count").S32())
	r.servo.RunPass()
	assert.Equal(t, int32(8), r.get("count").S32())
}

func TestCaptureDropsOlderEvent(t *testing.T) {
	r := newRig(t)
	st := r.state()

	r.forward()
	r.forward()
	r.servo.RunPass()
	require.Equal(t, int32(8), r.get("count").S32())
	stamp := st.lastStamp
	require.NotZero(t, stamp)

	ev := st.events.Begin()
	ev.rawCount.Store(3)
	ev.timestamp.Store(stamp - 1)
	ev.count.Raise()
	st.events.End()

	r.servo.RunPass()
	assert.Equal(t, int32(8), r.get("count").S32())
	assert.Equal(t, stamp, st.lastStamp)
}
