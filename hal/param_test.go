package hal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hal-runtime/errors"
)

type gain struct {
	k     Param
	count Param
	in    FloatPin
	out   FloatPin
}

// loadGain registers a component scaling in by an RW parameter and
// counting calls in an RO one.
func loadGain(t *testing.T, h *HAL, insts ...string) {
	t.Helper()
	_, err := h.Xinit(CompRT, "gain", func(x *Exporter) (any, error) {
		g := &gain{}
		var err error
		if g.k, err = x.Param(ParamRW, "k", FloatValue(2)); err != nil {
			return nil, err
		}
		if g.count, err = x.Param(ParamRO, "count", U32Value(0)); err != nil {
			return nil, err
		}
		if g.in, err = x.FloatPin(In, "in", 0); err != nil {
			return nil, err
		}
		if g.out, err = x.FloatPin(Out, "out", 0); err != nil {
			return nil, err
		}
		if len(x.Args()) > 0 {
			return nil, errors.InvalidInput(errors.PhaseExport, "no args")
		}
		return g, x.ExportFunct("run", func(arg any, _ int64) {
			g := arg.(*gain)
			g.out.Set(g.in.Get() * g.k.Get().Float())
			g.count.Set(U32Value(g.count.Get().U32() + 1))
		}, g, FunctOptions{UsesFP: true})
	}, nil)
	require.NoError(t, err)
	for _, name := range insts {
		_, err := h.Instantiate("gain", name, nil)
		require.NoError(t, err)
	}
}

func TestParams(t *testing.T) {
	h := newTestHAL(t)
	loadGain(t, h, "g0")

	_, err := h.CreateThread("servo", time.Millisecond, true)
	require.NoError(t, err)
	require.NoError(t, h.AddFunct("g0.run", "servo", -1))
	th, err := h.Thread("servo")
	require.NoError(t, err)
	require.NoError(t, h.StartThreads())

	require.NoError(t, h.SetPin("g0.in", FloatValue(1.5)))
	th.RunPass()
	out, err := h.GetPin("g0.out")
	require.NoError(t, err)
	assert.Equal(t, 3.0, out.Float())

	require.NoError(t, h.SetParam("g0.k", FloatValue(-4)))
	th.RunPass()
	out, err = h.GetPin("g0.out")
	require.NoError(t, err)
	assert.Equal(t, -6.0, out.Float())

	v, err := h.GetParam("g0.count")
	require.NoError(t, err)
	assert.Equal(t, U32Value(2), v)

	assert.ErrorIs(t, h.SetParam("g0.count", U32Value(0)), errors.OfKind(errors.KindInvalidInput))
	assert.ErrorIs(t, h.SetParam("g0.k", S32Value(1)), errors.OfKind(errors.KindTypeMismatch))
	assert.ErrorIs(t, h.SetParam("g0.none", FloatValue(1)), errors.OfKind(errors.KindNotFound))

	// parameters are not pins
	_, err = h.Pin("g0.k")
	assert.ErrorIs(t, err, errors.OfKind(errors.KindNotFound))
	assert.Error(t, h.Link("g0.k", "anything"))

	params, err := h.Params("g0.")
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, ParamInfo{ID: params[0].ID, Name: "g0.count", Owner: "g0", Type: TypeU32, Dir: ParamRO, Value: U32Value(2)}, params[0])
	assert.Equal(t, "g0.k", params[1].Name)
	assert.Equal(t, FloatValue(-4), params[1].Value)
}

func TestParamsFollowInstanceLifecycle(t *testing.T) {
	h := newTestHAL(t)
	loadGain(t, h, "g0", "g1")

	_, err := h.Instantiate("gain", "g2", []string{"bad"})
	assert.ErrorIs(t, err, errors.OfKind(errors.KindInstantiation))
	_, err = h.GetParam("g2.k")
	assert.ErrorIs(t, err, errors.OfKind(errors.KindNotFound), "rollback withdraws parameters")

	require.NoError(t, h.DeleteInstance(context.Background(), "g0"))
	params, err := h.Params("")
	require.NoError(t, err)
	var names []string
	for _, p := range params {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"g1.count", "g1.k"}, names)

	// the name is free again
	_, err = h.Instantiate("gain", "g0", nil)
	require.NoError(t, err)
	v, err := h.GetParam("g0.k")
	require.NoError(t, err)
	assert.Equal(t, FloatValue(2), v)

	require.NoError(t, h.Exit(context.Background(), "gain"))
	params, err = h.Params("")
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestExporterParamRules(t *testing.T) {
	h := newTestHAL(t)
	_, err := h.Xinit(CompRT, "strict", func(x *Exporter) (any, error) {
		_, err := x.Param(ParamDir(1), "bad", S32Value(0))
		assert.ErrorIs(t, err, errors.OfKind(errors.KindInvalidInput))
		_, err = x.Param(ParamRW, "zero", Value{})
		assert.ErrorIs(t, err, errors.OfKind(errors.KindInvalidInput))
		_, err = x.Param(ParamRW, "p", S32Value(1))
		require.NoError(t, err)
		_, err = x.Param(ParamRO, "p", S32Value(1))
		assert.ErrorIs(t, err, errors.OfKind(errors.KindDuplicate))
		return nil, nil
	}, nil)
	require.NoError(t, err)
	_, err = h.Instantiate("strict", "s0", nil)
	require.NoError(t, err)

	p, err := h.Param("s0.p")
	require.NoError(t, err)
	assert.True(t, p.Valid())
	assert.Equal(t, TypeS32, p.Type())
	assert.Equal(t, ParamRW, p.Dir())
	assert.Panics(t, func() { p.Set(FloatValue(1)) })
}

func TestLockLevels(t *testing.T) {
	h := newTestHAL(t)
	loadGain(t, h, "g0")
	require.NoError(t, h.NewSignal("x", TypeFloat))
	_, err := h.CreateThread("servo", time.Millisecond, true)
	require.NoError(t, err)

	locked := errors.OfKind(errors.KindLocked)
	assert.Equal(t, LockNone, h.LockLevel())

	require.NoError(t, h.SetLock(LockLoad))
	_, err = h.Instantiate("gain", "g1", nil)
	assert.ErrorIs(t, err, locked)
	_, err = h.Xinit(CompRT, "other", newGauge, nil)
	assert.ErrorIs(t, err, locked)
	require.NoError(t, h.Link("g0.in", "x"), "load lock leaves wiring open")

	require.NoError(t, h.SetLock(LockTune))
	assert.ErrorIs(t, h.Unlink("g0.in"), locked)
	assert.ErrorIs(t, h.Link("g0.out", "x"), locked)
	assert.ErrorIs(t, h.NewSignal("y", TypeBit), locked)
	assert.ErrorIs(t, h.DeleteSignal("x"), locked)
	assert.ErrorIs(t, h.SetSignalBarriers("x", true, true), locked)
	assert.ErrorIs(t, h.AddFunct("g0.run", "servo", -1), locked)
	_, err = h.CreateThread("base", time.Millisecond, false)
	assert.ErrorIs(t, err, locked)
	assert.ErrorIs(t, h.NewRing("log", 64), locked)
	// tuning stays possible
	require.NoError(t, h.SetParam("g0.k", FloatValue(3)))
	require.NoError(t, h.SetSignal("x", FloatValue(1)))
	require.NoError(t, h.StartThreads())

	require.NoError(t, h.SetLock(LockParams|LockRun))
	assert.ErrorIs(t, h.SetParam("g0.k", FloatValue(1)), locked)
	assert.ErrorIs(t, h.SetSignal("x", FloatValue(2)), locked)
	assert.ErrorIs(t, h.SetPin("g0.out", FloatValue(2)), locked)
	assert.ErrorIs(t, h.StopThreads(), locked)
	assert.True(t, h.Running())

	var e *errors.Error
	require.ErrorAs(t, h.SetParam("g0.k", FloatValue(1)), &e)
	assert.Equal(t, "params", e.Got)

	info, err := h.ArenaInfo()
	require.NoError(t, err)
	assert.Equal(t, LockParams|LockRun, info.Lock)

	assert.ErrorIs(t, h.SetLock(LockLevel(1<<9)), errors.OfKind(errors.KindInvalidInput))
	require.NoError(t, h.SetLock(LockNone))
	require.NoError(t, h.StopThreads())
	require.NoError(t, h.SetParam("g0.k", FloatValue(1)))

	// teardown ignores the lock
	require.NoError(t, h.SetLock(LockAll))
	require.NoError(t, h.DeleteInstance(context.Background(), "g0"))
}
