package ring

import (
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRing(t *testing.T, capacity int) (*Ring, []byte) {
	t.Helper()
	words := make([]uint64, Size(capacity)/8)
	mem := unsafeBytes(words)
	r, err := Init(mem)
	require.NoError(t, err)
	return r, mem
}

func TestSizeRoundsToPowerOfTwo(t *testing.T) {
	assert.Equal(t, HeaderSize+64, Size(1))
	assert.Equal(t, HeaderSize+128, Size(100))
	assert.Equal(t, HeaderSize+4096, Size(4096))
}

func TestInitRejectsSmallMemory(t *testing.T) {
	_, err := Init(make([]byte, HeaderSize))
	assert.Error(t, err)
}

func TestFIFO(t *testing.T) {
	r, _ := newRing(t, 256)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Write([]byte(fmt.Sprintf("rec-%d", i))))
	}
	for i := 0; i < 5; i++ {
		rec, err := r.Read()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("rec-%d", i), string(rec))
		require.NoError(t, r.Shift())
	}
	_, err := r.Read()
	assert.ErrorIs(t, err, ErrEmpty)
	assert.ErrorIs(t, r.Shift(), ErrEmpty)
	assert.True(t, r.Empty())
}

func TestFullAtCapacity(t *testing.T) {
	r, _ := newRing(t, 64)
	require.Equal(t, uint64(64), r.Capacity())

	payload := make([]byte, 8)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(payload, uint64(i))
		require.NoError(t, r.Write(payload), "record %d", i)
	}
	assert.ErrorIs(t, r.Write(payload), ErrFull)
	assert.Equal(t, uint64(64), r.Used())

	// the failed write leaves the contents intact
	for i := 0; i < 4; i++ {
		rec, err := r.Read()
		require.NoError(t, err)
		assert.Equal(t, uint64(i), binary.LittleEndian.Uint64(rec))
		require.NoError(t, r.Shift())
	}
}

func TestReadDoesNotConsume(t *testing.T) {
	r, _ := newRing(t, 64)
	require.NoError(t, r.Write([]byte("one")))
	require.NoError(t, r.Write([]byte("two")))

	a, err := r.Read()
	require.NoError(t, err)
	b, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "one", string(a))
	assert.Equal(t, "one", string(b))
}

func TestReadRejectsCorruptFraming(t *testing.T) {
	r, mem := newRing(t, 128)
	require.NoError(t, r.Write([]byte("abc")))

	// a length that runs past the producer cursor
	binary.LittleEndian.PutUint32(mem[HeaderSize:], 40)
	_, err := r.Read()
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.ErrorIs(t, r.Shift(), ErrCorrupt, "nothing was read, so nothing is released")
	assert.Equal(t, uint64(16), r.Used())

	binary.LittleEndian.PutUint32(mem[HeaderSize:], 3)
	rec, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(rec))
	require.NoError(t, r.Shift())
	assert.ErrorIs(t, r.Shift(), ErrEmpty)
}

func TestUnshiftedRecordNotOverwritten(t *testing.T) {
	r, _ := newRing(t, 128)
	require.NoError(t, r.Write([]byte("keep-me")))

	held, err := r.Read()
	require.NoError(t, err)

	// fill every remaining byte; none of these may land on held
	for {
		if err := r.Write([]byte("XXXXXXXXXXXXXXXX")); err != nil {
			assert.ErrorIs(t, err, ErrFull)
			break
		}
	}
	assert.Equal(t, "keep-me", string(held))

	require.NoError(t, r.Shift())
	rec, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "XXXXXXXXXXXXXXXX", string(rec))
}

func TestWrapAround(t *testing.T) {
	r, _ := newRing(t, 128)

	// records of varying size force wrap markers at different offsets
	for i := 0; i < 500; i++ {
		n := 1 + i%r.MaxRecord()
		rec, err := r.WriteBegin(n)
		require.NoError(t, err, "iteration %d", i)
		for j := range rec {
			rec[j] = byte(i)
		}
		require.NoError(t, r.WriteEnd(rec))

		got, err := r.Read()
		require.NoError(t, err)
		require.Len(t, got, n)
		assert.Equal(t, byte(i), got[0])
		assert.Equal(t, byte(i), got[n-1])
		require.NoError(t, r.Shift())
	}
	assert.True(t, r.Empty())
}

func TestWriteEndShorterRecord(t *testing.T) {
	r, _ := newRing(t, 64)
	rec, err := r.WriteBegin(16)
	require.NoError(t, err)
	n := copy(rec, "abc")
	require.NoError(t, r.WriteEnd(rec[:n]))

	got, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, uint64(16), r.Used())
}

func TestWriteErrors(t *testing.T) {
	r, _ := newRing(t, 64)

	_, err := r.WriteBegin(r.MaxRecord() + 1)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, r.WriteEnd(nil), ErrNoReservation)

	rec, err := r.WriteBegin(4)
	require.NoError(t, err)
	assert.ErrorIs(t, r.WriteEnd(append(rec, 1)), ErrTooLarge)
	require.NoError(t, r.WriteEnd(rec))
	assert.ErrorIs(t, r.WriteEnd(rec), ErrNoReservation)
}

func TestAttachSharesState(t *testing.T) {
	producer, mem := newRing(t, 256)
	consumer, err := Attach(mem)
	require.NoError(t, err)

	require.NoError(t, producer.Write([]byte("hello")))
	rec, err := consumer.Read()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(rec))
	require.NoError(t, consumer.Shift())
	assert.True(t, producer.Empty())

	_, err = Attach(make([]byte, len(mem)))
	assert.Error(t, err)
}

func TestConcurrentProducerConsumer(t *testing.T) {
	r, mem := newRing(t, 1024)
	consumer, err := Attach(mem)
	require.NoError(t, err)

	const total = 20000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 8)
		for i := uint64(0); i < total; {
			binary.LittleEndian.PutUint64(buf, i)
			n := 8 + int(i%24)
			rec, err := r.WriteBegin(n)
			if err != nil {
				continue
			}
			copy(rec, buf)
			if err := r.WriteEnd(rec); err != nil {
				t.Error(err)
				return
			}
			i++
		}
	}()

	for want := uint64(0); want < total; {
		rec, err := consumer.Read()
		if err == ErrEmpty {
			continue
		}
		require.NoError(t, err)
		require.Equal(t, want, binary.LittleEndian.Uint64(rec))
		require.Len(t, rec, 8+int(want%24))
		require.NoError(t, consumer.Shift())
		want++
	}
	wg.Wait()
	assert.True(t, consumer.Empty())
}
