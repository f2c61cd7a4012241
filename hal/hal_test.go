package hal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestHAL(t *testing.T) *HAL {
	t.Helper()
	h, err := New(Config{Size: 256 * 1024})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.Close(ctx))
	})
	return h
}

type gaugeData struct {
	calls atomic.Uint64
	fp    atomic.Uint64
}

// gauge is a small component exposing one pin of each type and two functs.
type gauge struct {
	data *gaugeData
	bit  BitPin
	flt  FloatPin
	s32  S32Pin
	u32  U32Pin
	s64  S64Pin
	u64  U64Pin
	in   S32Pin
}

func newGauge(x *Exporter) (any, error) {
	p := &gauge{}
	var err error
	if p.data, err = AllocData[gaugeData](x); err != nil {
		return nil, err
	}
	if p.bit, err = x.BitPin(Out, "bit", false); err != nil {
		return nil, err
	}
	if p.flt, err = x.FloatPin(Out, "float", 0); err != nil {
		return nil, err
	}
	if p.s32, err = x.S32Pin(Out, "s32", 0); err != nil {
		return nil, err
	}
	if p.u32, err = x.U32Pin(Out, "u32", 0); err != nil {
		return nil, err
	}
	if p.s64, err = x.S64Pin(Out, "s64", 0); err != nil {
		return nil, err
	}
	if p.u64, err = x.U64Pin(Out, "u64", 0); err != nil {
		return nil, err
	}
	if p.in, err = x.S32Pin(In, "in", 0); err != nil {
		return nil, err
	}
	if err := x.ExportFunct("tick", gaugeTick, p, FunctOptions{}); err != nil {
		return nil, err
	}
	if err := x.ExportFunct("fp", gaugeFP, p, FunctOptions{UsesFP: true}); err != nil {
		return nil, err
	}
	return p, nil
}

func gaugeTick(arg any, period int64) {
	p := arg.(*gauge)
	p.data.calls.Add(1)
	p.s32.Set(p.in.Get() + 1)
}

func gaugeFP(arg any, period int64) {
	p := arg.(*gauge)
	p.data.fp.Add(1)
	p.flt.Incr(0.5)
}

func loadGauge(t *testing.T, h *HAL, insts ...string) {
	t.Helper()
	_, err := h.Xinit(CompRT, "gauge", newGauge, nil)
	require.NoError(t, err)
	for _, name := range insts {
		_, err := h.Instantiate("gauge", name, nil)
		require.NoError(t, err)
	}
}

func gaugeOf(t *testing.T, h *HAL, name string) *gauge {
	t.Helper()
	state, err := h.InstanceData(name)
	require.NoError(t, err)
	return state.(*gauge)
}
