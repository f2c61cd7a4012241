//go:build unix

package hal

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

func TestAttachSharesDirectory(t *testing.T) {
	name := fmt.Sprintf("haltest_%d_%d", os.Getpid(), time.Now().UnixNano())
	h1, err := New(Config{Segment: name, Size: 256 * 1024})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, h1.Close(context.Background()))
		_, err := os.Stat(shm.SegmentPath(name))
		assert.True(t, os.IsNotExist(err), "creator removes the segment")
	}()

	loadGauge(t, h1, "p0")

	h2, err := Attach(Config{Segment: name})
	require.NoError(t, err)
	defer func() { require.NoError(t, h2.Close(context.Background())) }()
	assert.Equal(t, h1.Arena().Session(), h2.Arena().Session())
	assert.Equal(t, os.Getpid(), h2.Arena().CreatorPID())

	comps, err := h2.Components()
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, "gauge", comps[0].Name)
	assert.Equal(t, 1, comps[0].Instances)

	// objects made through the second handle are visible to the first
	require.NoError(t, h2.NewSignal("shared", TypeS32))
	require.NoError(t, h2.Link("p0.s32", "shared"))
	require.NoError(t, h2.Link("p0.in", "shared"))
	gaugeOf(t, h1, "p0").s32.Set(17)
	v, err := h2.GetPin("p0.in")
	require.NoError(t, err)
	assert.Equal(t, S32Value(17), v)

	// callbacks stay with the process that registered them
	_, err = h2.Instantiate("gauge", "p1", nil)
	assert.ErrorIs(t, err, errors.OfKind(errors.KindNotFound))
	_, err = h2.InstanceData("p0")
	require.NoError(t, err)

	_, err = h2.CreateThread("servo", time.Millisecond, false)
	require.NoError(t, err)
	require.NoError(t, h2.AddFunct("p0.tick", "servo", -1))
	require.NoError(t, h2.StartThreads())
	assert.True(t, h1.Running())

	remote, err := h2.Thread("servo")
	require.NoError(t, err)
	require.True(t, remote.RunPass())
	assert.Equal(t, uint64(0), gaugeOf(t, h1, "p0").data.calls.Load())

	local, err := h1.Thread("servo")
	require.NoError(t, err)
	require.True(t, local.RunPass())
	assert.Equal(t, uint64(1), gaugeOf(t, h1, "p0").data.calls.Load())
	assert.Equal(t, uint64(2), local.Passes())
	assert.Equal(t, int32(18), gaugeOf(t, h1, "p0").s32.Get())

	// the lock level lives in the segment
	require.NoError(t, h1.SetLock(LockConfig))
	assert.Equal(t, LockConfig, h2.LockLevel())
	assert.ErrorIs(t, h2.Unlink("p0.in"), errors.OfKind(errors.KindLocked))
	require.NoError(t, h2.SetLock(LockNone))
}

func TestAttachErrors(t *testing.T) {
	_, err := Attach(Config{})
	assert.ErrorIs(t, err, errors.OfKind(errors.KindInvalidInput))

	_, err = Attach(Config{Segment: fmt.Sprintf("haltest_missing_%d", os.Getpid())})
	assert.ErrorIs(t, err, errors.OfKind(errors.KindNotFound))
}
