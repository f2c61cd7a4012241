// Package ringdemo provides a matched pair of components that exercise a
// named ring: ringwrite pushes sequence-numbered records every period and
// ringread drains them.
package ringdemo

import (
	"encoding/binary"
	"errors"

	"github.com/wippyai/hal-runtime/components/internal/args"
	"github.com/wippyai/hal-runtime/hal"
	"github.com/wippyai/hal-runtime/ring"
)

const (
	WriterName = "ringwrite"
	ReaderName = "ringread"

	// seqLen is the sequence number that starts every record.
	seqLen = 8
)

// Register loads both components into h.
func Register(h *hal.HAL) error {
	if _, err := h.Xinit(hal.CompRT, WriterName, newWriter, nil); err != nil {
		return err
	}
	_, err := h.Xinit(hal.CompRT, ReaderName, newReader, nil)
	return err
}

type writerState struct {
	seq uint64
}

type writer struct {
	r     *ring.Ring
	st    *writerState
	size  int
	count int

	enable   hal.BitPin
	written  hal.U32Pin
	overruns hal.U32Pin
}

func newWriter(x *hal.Exporter) (any, error) {
	a, err := args.Parse(x.Args(), "ring", "size", "count")
	if err != nil {
		return nil, err
	}
	name, err := a.String("ring", true)
	if err != nil {
		return nil, err
	}
	w := &writer{}
	if w.r, err = x.Ring(name); err != nil {
		return nil, err
	}
	if w.size, err = a.Int("size", seqLen, seqLen, w.r.MaxRecord()); err != nil {
		return nil, err
	}
	if w.count, err = a.Int("count", 1, 1, 1024); err != nil {
		return nil, err
	}
	if w.st, err = hal.AllocData[writerState](x); err != nil {
		return nil, err
	}
	if w.enable, err = x.BitPin(hal.In, "enable", true); err != nil {
		return nil, err
	}
	if w.written, err = x.U32Pin(hal.Out, "written", 0); err != nil {
		return nil, err
	}
	if w.overruns, err = x.U32Pin(hal.Out, "overruns", 0); err != nil {
		return nil, err
	}
	return w, x.ExportFunct("write", write, w, hal.FunctOptions{})
}

func write(arg any, _ int64) {
	w := arg.(*writer)
	if !w.enable.Get() {
		return
	}
	for i := 0; i < w.count; i++ {
		rec, err := w.r.WriteBegin(w.size)
		if err != nil {
			w.overruns.Incr(1)
			return
		}
		w.st.seq++
		binary.LittleEndian.PutUint64(rec, w.st.seq)
		for j := seqLen; j < len(rec); j++ {
			rec[j] = byte(w.st.seq)
		}
		if err := w.r.WriteEnd(rec); err != nil {
			w.overruns.Incr(1)
			return
		}
		w.written.Incr(1)
	}
}

type reader struct {
	r *ring.Ring

	received     hal.U32Pin
	lastSequence hal.U32Pin
	bytes        hal.U64Pin
	maxPerPeriod hal.U32Pin
	gaps         hal.U32Pin
	readErrors   hal.U32Pin
}

func newReader(x *hal.Exporter) (any, error) {
	a, err := args.Parse(x.Args(), "ring")
	if err != nil {
		return nil, err
	}
	name, err := a.String("ring", true)
	if err != nil {
		return nil, err
	}
	rd := &reader{}
	if rd.r, err = x.Ring(name); err != nil {
		return nil, err
	}
	if rd.received, err = x.U32Pin(hal.Out, "received", 0); err != nil {
		return nil, err
	}
	if rd.lastSequence, err = x.U32Pin(hal.Out, "last-sequence", 0); err != nil {
		return nil, err
	}
	if rd.bytes, err = x.U64Pin(hal.Out, "bytes", 0); err != nil {
		return nil, err
	}
	if rd.maxPerPeriod, err = x.U32Pin(hal.Out, "max-per-period", 0); err != nil {
		return nil, err
	}
	if rd.gaps, err = x.U32Pin(hal.Out, "gaps", 0); err != nil {
		return nil, err
	}
	if rd.readErrors, err = x.U32Pin(hal.Out, "read-errors", 0); err != nil {
		return nil, err
	}
	return rd, x.ExportFunct("read", read, rd, hal.FunctOptions{})
}

func read(arg any, _ int64) {
	rd := arg.(*reader)
	var n uint32
	for {
		rec, err := rd.r.Read()
		if err != nil {
			if !errors.Is(err, ring.ErrEmpty) {
				rd.readErrors.Incr(1)
			}
			break
		}
		if len(rec) >= seqLen {
			seq := uint32(binary.LittleEndian.Uint64(rec))
			if last := rd.lastSequence.Get(); last != 0 && seq != last+1 {
				rd.gaps.Incr(1)
			}
			rd.lastSequence.Set(seq)
		}
		rd.bytes.Incr(uint64(len(rec)))
		rd.received.Incr(1)
		n++
		if err := rd.r.Shift(); err != nil {
			rd.readErrors.Incr(1)
			break
		}
	}
	if n > rd.maxPerPeriod.Get() {
		rd.maxPerPeriod.Set(n)
	}
}
