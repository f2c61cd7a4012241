package wasmfn

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/hal"
)

// mathModule exports add(f64, f64) f64 and boom() f64, which traps.
var mathModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (f64 f64) -> f64, () -> f64
	0x01, 0x0b, 0x02, 0x60, 0x02, 0x7c, 0x7c, 0x01, 0x7c, 0x60, 0x00, 0x01, 0x7c,
	// functions
	0x03, 0x03, 0x02, 0x00, 0x01,
	// exports
	0x07, 0x0e, 0x02,
	0x03, 'a', 'd', 'd', 0x00, 0x00,
	0x04, 'b', 'o', 'o', 'm', 0x00, 0x01,
	// code
	0x0a, 0x0d, 0x02,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0xa0, 0x0b,
	0x03, 0x00, 0x00, 0x0b,
}

func writeModule(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "math.wasm")
	require.NoError(t, os.WriteFile(path, mathModule, 0o600))
	return path
}

func newHAL(t *testing.T) (*hal.HAL, *hal.Thread) {
	t.Helper()
	h, err := hal.New(hal.Config{Size: 64 * 1024})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, h.Close(context.Background())) })
	require.NoError(t, Register(h))
	_, err = h.CreateThread("slow", 10*time.Millisecond, true)
	require.NoError(t, err)
	th, err := h.Thread("slow")
	require.NoError(t, err)
	require.NoError(t, h.StartThreads())
	return h, th
}

func TestAdd(t *testing.T) {
	h, th := newHAL(t)
	_, err := h.Instantiate(Name, "sum", []string{"module=" + writeModule(t), "func=add"})
	require.NoError(t, err)
	require.NoError(t, h.AddFunct("sum.call", "slow", -1))

	require.NoError(t, h.SetPin("sum.in-0", hal.FloatValue(1.25)))
	require.NoError(t, h.SetPin("sum.in-1", hal.FloatValue(2.5)))
	th.RunPass()

	v, err := h.GetPin("sum.out")
	require.NoError(t, err)
	assert.Equal(t, 3.75, v.Float())

	pins, err := h.Pins("sum.")
	require.NoError(t, err)
	assert.Len(t, pins, 4)
}

func TestTrapCountsErrors(t *testing.T) {
	h, th := newHAL(t)
	_, err := h.Instantiate(Name, "bad", []string{"module=" + writeModule(t), "func=boom"})
	require.NoError(t, err)
	require.NoError(t, h.AddFunct("bad.call", "slow", -1))

	th.RunPass()
	th.RunPass()
	v, err := h.GetPin("bad.errors")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v.U32())
	out, err := h.GetPin("bad.out")
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Float())

	require.NoError(t, h.DeleteInstance(context.Background(), "bad"))
}

func TestInstantiateErrors(t *testing.T) {
	h, _ := newHAL(t)
	path := writeModule(t)
	garbage := filepath.Join(t.TempDir(), "junk.wasm")
	require.NoError(t, os.WriteFile(garbage, []byte("not wasm"), 0o600))

	tests := []struct {
		name string
		args []string
		kind errors.Kind
	}{
		{"missing module", []string{"func=add"}, errors.KindInvalidInput},
		{"missing file", []string{"module=" + filepath.Join(t.TempDir(), "nope.wasm"), "func=add"}, errors.KindIO},
		{"bad bytes", []string{"module=" + garbage, "func=add"}, errors.KindInvalidInput},
		{"unknown export", []string{"module=" + path, "func=mul"}, errors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Instantiate(Name, "w", tt.args)
			assert.ErrorIs(t, err, errors.OfKind(tt.kind))
		})
	}
	pins, err := h.Pins("w.")
	require.NoError(t, err)
	assert.Empty(t, pins)
}
