// Package lutn is an arbitrary combinational function of up to five bit
// inputs, given as a truth table.
//
// Bit i of the function parameter is the output for the input combination
// whose value, reading in-0 as the least significant bit, is i. AND of
// two inputs is 0x8, OR is 0xe, XOR is 0x6.
package lutn

import (
	"fmt"

	"github.com/wippyai/hal-runtime/components/internal/args"
	"github.com/wippyai/hal-runtime/hal"
)

// Name is the component name used for registration.
const Name = "lutn"

// MaxInputs bounds the inputs argument; the table is one u32.
const MaxInputs = 5

type lut struct {
	in       []hal.BitPin
	out      hal.BitPin
	function hal.Param
}

// Register loads the lutn component into h.
func Register(h *hal.HAL) error {
	_, err := h.Xinit(hal.CompRT, Name, newLUT, nil)
	return err
}

func newLUT(x *hal.Exporter) (any, error) {
	a, err := args.Parse(x.Args(), "inputs")
	if err != nil {
		return nil, err
	}
	n, err := a.Int("inputs", 2, 1, MaxInputs)
	if err != nil {
		return nil, err
	}

	l := &lut{in: make([]hal.BitPin, n)}
	for i := range l.in {
		if l.in[i], err = x.BitPin(hal.In, fmt.Sprintf("in-%d", i), false); err != nil {
			return nil, err
		}
	}
	if l.out, err = x.BitPin(hal.Out, "out", false); err != nil {
		return nil, err
	}
	if l.function, err = x.Param(hal.ParamRW, "function", hal.U32Value(0)); err != nil {
		return nil, err
	}
	return l, x.ExportFunct("funct", run, l, hal.FunctOptions{})
}

func run(arg any, _ int64) {
	l := arg.(*lut)
	var idx uint32
	for i, p := range l.in {
		if p.Get() {
			idx |= 1 << i
		}
	}
	l.out.Set(l.function.Get().U32()&(1<<idx) != 0)
}
