package hal

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hal-runtime/errors"
)

// dumpFixture builds a small fixed configuration so IDs and values in the
// listings are stable.
func dumpFixture(t *testing.T) *HAL {
	t.Helper()
	h := newTestHAL(t)
	loadGauge(t, h, "p0")
	require.NoError(t, h.NewSignal("count", TypeS32))
	require.NoError(t, h.Link("p0.s32", "count"))
	require.NoError(t, h.Link("p0.in", "count"))

	p := gaugeOf(t, h, "p0")
	p.s32.Set(-7)
	p.flt.Set(2.5)
	p.bit.Set(true)
	p.u64.Set(1 << 40)

	_, err := h.CreateThread("servo", time.Millisecond, true)
	require.NoError(t, err)
	require.NoError(t, h.AddFunct("p0.tick", "servo", -1))
	require.NoError(t, h.AddFunct("p0.fp", "servo", -1))

	require.NoError(t, h.NewRing("log", 1024))
	r, err := h.Ring("log")
	require.NoError(t, err)
	require.NoError(t, r.Write([]byte("0123456789")))
	return h
}

func TestDumpGolden(t *testing.T) {
	h := dumpFixture(t)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	var buf bytes.Buffer
	for _, s := range DumpSections {
		// the arena section carries a random session id
		if s == "mem" {
			continue
		}
		require.NoError(t, h.Dump(&buf, s, ""))
	}
	g.Assert(t, "dump_all", buf.Bytes())

	buf.Reset()
	require.NoError(t, h.Dump(&buf, "pin", "p0.s"))
	g.Assert(t, "dump_pins_prefix", buf.Bytes())
}

func TestDumpMem(t *testing.T) {
	h := dumpFixture(t)
	var buf bytes.Buffer
	require.NoError(t, h.Dump(&buf, "mem", ""))
	out := buf.String()
	assert.Contains(t, out, "Arena:\n")
	assert.Contains(t, out, "  session    "+h.Arena().Session().String()+"\n")
	assert.Contains(t, out, "  running    NO\n")

	buf.Reset()
	require.NoError(t, h.Dump(&buf, "all", ""))
	assert.Contains(t, buf.String(), "Loaded HAL Components:")
	assert.Contains(t, buf.String(), "Arena:")

	err := h.Dump(&buf, "bogus", "")
	assert.ErrorIs(t, err, errors.OfKind(errors.KindInvalidInput))
}

func TestInfoListings(t *testing.T) {
	h := dumpFixture(t)

	pins, err := h.Pins("p0.in")
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, PinInfo{
		ID:     9,
		Name:   "p0.in",
		Owner:  "p0",
		Type:   TypeS32,
		Dir:    In,
		Value:  S32Value(-7),
		Signal: "count",
	}, pins[0])

	rings, err := h.Rings()
	require.NoError(t, err)
	assert.Equal(t, []RingInfo{{ID: 14, Name: "log", Capacity: 1024, Used: 24}}, rings)

	var reader ValueReader = h
	v, err := reader.GetSignal("count")
	require.NoError(t, err)
	assert.Equal(t, int32(-7), v.S32())
}
