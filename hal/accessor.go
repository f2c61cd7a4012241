package hal

import (
	"fmt"
	"math"
	"unsafe"
)

// pinHandle resolves a pin's current cell on every access, so a pin that
// is linked or unlinked at setup time is followed without re-fetching the
// handle.
type pinHandle struct {
	rec  *pinRecord
	base unsafe.Pointer
}

func (p pinHandle) cell() *Cell {
	return (*Cell)(unsafe.Add(p.base, p.rec.data.Load()))
}

func (p pinHandle) check(t Type) {
	if typeCheck && p.rec.typ != t {
		panic(fmt.Sprintf("hal: pin %q is %s, accessed as %s", p.rec.Name(), p.rec.typ, t))
	}
}

func (p pinHandle) load() uint64 {
	return p.cell().load(p.rec.flags.Load())
}

func (p pinHandle) store(v uint64) {
	p.cell().store(p.rec.flags.Load(), v)
}

// Name returns the full pin name.
func (p pinHandle) Name() string { return p.rec.Name() }

// Type returns the pin's data type.
func (p pinHandle) Type() Type { return p.rec.typ }

// Dir returns the pin's direction.
func (p pinHandle) Dir() Dir { return p.rec.dir }

// Valid reports whether the handle refers to a pin.
func (p pinHandle) Valid() bool { return p.rec != nil }

// Linked reports whether the pin currently reads through a signal.
func (p pinHandle) Linked() bool {
	return uintptr(p.rec.data.Load()) != uintptr(unsafe.Pointer(&p.rec.dummy))-uintptr(p.base)
}

// Pin is an untyped handle. Typed handles are obtained from it with the
// conversion methods, which panic when the pin has a different type.
type Pin struct{ pinHandle }

// Get returns the current value.
func (p Pin) Get() Value {
	return rawValue(p.rec.typ, p.load())
}

// Set stores v. v must have the pin's type.
func (p Pin) Set(v Value) {
	p.check(v.Type())
	p.store(v.raw())
}

func (p Pin) Bit() BitPin {
	p.check(TypeBit)
	return BitPin{p.pinHandle}
}

func (p Pin) Float() FloatPin {
	p.check(TypeFloat)
	return FloatPin{p.pinHandle}
}

func (p Pin) S32() S32Pin {
	p.check(TypeS32)
	return S32Pin{p.pinHandle}
}

func (p Pin) U32() U32Pin {
	p.check(TypeU32)
	return U32Pin{p.pinHandle}
}

func (p Pin) S64() S64Pin {
	p.check(TypeS64)
	return S64Pin{p.pinHandle}
}

func (p Pin) U64() U64Pin {
	p.check(TypeU64)
	return U64Pin{p.pinHandle}
}

// BitPin accesses a bit pin.
type BitPin struct{ pinHandle }

func (p BitPin) Get() bool {
	p.check(TypeBit)
	return p.load()&1 != 0
}

func (p BitPin) Set(v bool) {
	p.check(TypeBit)
	p.store(boolBits(v))
}

// Incr adds delta modulo 2 and returns the new value.
func (p BitPin) Incr(delta int32) bool {
	p.check(TypeBit)
	return p.cell().addBit(p.rec.flags.Load(), delta)
}

// FloatPin accesses a float pin.
type FloatPin struct{ pinHandle }

func (p FloatPin) Get() float64 {
	p.check(TypeFloat)
	return math.Float64frombits(p.load())
}

func (p FloatPin) Set(v float64) {
	p.check(TypeFloat)
	p.store(math.Float64bits(v))
}

// Incr adds delta with a compare-and-swap loop and returns the new value.
func (p FloatPin) Incr(delta float64) float64 {
	p.check(TypeFloat)
	return p.cell().addFloat(p.rec.flags.Load(), delta)
}

// S32Pin accesses a signed 32-bit pin.
type S32Pin struct{ pinHandle }

func (p S32Pin) Get() int32 {
	p.check(TypeS32)
	return int32(uint32(p.load()))
}

func (p S32Pin) Set(v int32) {
	p.check(TypeS32)
	p.store(uint64(uint32(v)))
}

// Incr adds delta, wrapping at 32 bits, and returns the new value.
func (p S32Pin) Incr(delta int32) int32 {
	p.check(TypeS32)
	return int32(uint32(p.cell().add(p.rec.flags.Load(), uint64(uint32(delta)))))
}

// U32Pin accesses an unsigned 32-bit pin.
type U32Pin struct{ pinHandle }

func (p U32Pin) Get() uint32 {
	p.check(TypeU32)
	return uint32(p.load())
}

func (p U32Pin) Set(v uint32) {
	p.check(TypeU32)
	p.store(uint64(v))
}

func (p U32Pin) Incr(delta uint32) uint32 {
	p.check(TypeU32)
	return uint32(p.cell().add(p.rec.flags.Load(), uint64(delta)))
}

// S64Pin accesses a signed 64-bit pin.
type S64Pin struct{ pinHandle }

func (p S64Pin) Get() int64 {
	p.check(TypeS64)
	return int64(p.load())
}

func (p S64Pin) Set(v int64) {
	p.check(TypeS64)
	p.store(uint64(v))
}

func (p S64Pin) Incr(delta int64) int64 {
	p.check(TypeS64)
	return int64(p.cell().add(p.rec.flags.Load(), uint64(delta)))
}

// U64Pin accesses an unsigned 64-bit pin.
type U64Pin struct{ pinHandle }

func (p U64Pin) Get() uint64 {
	p.check(TypeU64)
	return p.load()
}

func (p U64Pin) Set(v uint64) {
	p.check(TypeU64)
	p.store(v)
}

func (p U64Pin) Incr(delta uint64) uint64 {
	p.check(TypeU64)
	return p.cell().add(p.rec.flags.Load(), delta)
}
