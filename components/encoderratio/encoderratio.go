// Package encoderratio tracks how far a slave shaft is from where a
// geared master shaft says it should be. Both shafts are read from
// quadrature encoders in a fast integer-only funct; a slower funct scales
// the accumulated error to revolutions of the slave.
package encoderratio

import (
	"sync/atomic"

	"github.com/wippyai/hal-runtime/components/quad"
	"github.com/wippyai/hal-runtime/hal"
)

// Name is the component name used for registration.
const Name = "encoderratio"

// state is shared by the two functs. rawError is written by update only;
// the increments are written by sample only.
type state struct {
	masterQuad uint8
	slaveQuad  uint8
	_          [6]byte

	rawError        atomic.Int64
	masterIncrement atomic.Int64
	slaveIncrement  atomic.Int64
}

type ratio struct {
	st *state

	masterA, masterB hal.BitPin
	slaveA, slaveB   hal.BitPin
	enable           hal.BitPin
	errorOut         hal.FloatPin

	masterPPR, slavePPR     hal.Param
	masterTeeth, slaveTeeth hal.Param
}

// Register loads the encoderratio component into h.
func Register(h *hal.HAL) error {
	_, err := h.Xinit(hal.CompRT, Name, newRatio, nil)
	return err
}

func newRatio(x *hal.Exporter) (any, error) {
	r := &ratio{}
	var err error
	if r.st, err = hal.AllocData[state](x); err != nil {
		return nil, err
	}
	for _, b := range []struct {
		pin  *hal.BitPin
		name string
	}{
		{&r.masterA, "master-A"},
		{&r.masterB, "master-B"},
		{&r.slaveA, "slave-A"},
		{&r.slaveB, "slave-B"},
		{&r.enable, "enable"},
	} {
		if *b.pin, err = x.BitPin(hal.In, b.name, false); err != nil {
			return nil, err
		}
	}
	if r.errorOut, err = x.FloatPin(hal.Out, "error", 0); err != nil {
		return nil, err
	}
	for _, u := range []struct {
		param *hal.Param
		name  string
	}{
		{&r.masterPPR, "master-ppr"},
		{&r.slavePPR, "slave-ppr"},
		{&r.masterTeeth, "master-teeth"},
		{&r.slaveTeeth, "slave-teeth"},
	} {
		if *u.param, err = x.Param(hal.ParamRW, u.name, hal.U32Value(1)); err != nil {
			return nil, err
		}
	}
	r.recalc()

	if err := x.ExportFunct("update", update, r, hal.FunctOptions{}); err != nil {
		return nil, err
	}
	if err := x.ExportFunct("sample", sample, r, hal.FunctOptions{UsesFP: true}); err != nil {
		return nil, err
	}
	return r, nil
}

// recalc derives the per-count increments. One slave count weighs
// master_ppr*slave_teeth and one master count slave_ppr*master_teeth, so
// the raw error is the slave position minus the geared master position
// in a common integer unit. The scale is computed in float64 since the
// four-way product does not fit an int64.
func (r *ratio) recalc() float64 {
	mp, sp := int64(r.masterPPR.Get().U32()), int64(r.slavePPR.Get().U32())
	mt, st := int64(r.masterTeeth.Get().U32()), int64(r.slaveTeeth.Get().U32())
	r.st.masterIncrement.Store(mt * sp)
	r.st.slaveIncrement.Store(st * mp)
	if sp == 0 || mp == 0 || st == 0 {
		return 0
	}
	return 1 / (4 * float64(sp) * float64(mp) * float64(st))
}

func update(arg any, _ int64) {
	r := arg.(*ratio)
	st := r.st

	var dm, ds int32
	st.masterQuad, dm = quad.Step(&quad.X4, st.masterQuad, r.masterA.Get(), r.masterB.Get())
	st.slaveQuad, ds = quad.Step(&quad.X4, st.slaveQuad, r.slaveA.Get(), r.slaveB.Get())

	if !r.enable.Get() {
		st.rawError.Store(0)
		return
	}
	if d := int64(ds)*st.slaveIncrement.Load() - int64(dm)*st.masterIncrement.Load(); d != 0 {
		st.rawError.Add(d)
	}
}

func sample(arg any, _ int64) {
	r := arg.(*ratio)
	scale := r.recalc()
	r.errorOut.Set(float64(r.st.rawError.Load()) * scale)
}
