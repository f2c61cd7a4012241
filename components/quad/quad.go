// Package quad holds the quadrature decoding state machine shared by the
// encoder components.
//
// A state byte keeps the previous A/B levels in bits 2-3. The caller ORs
// the current levels into bits 0-1 and looks the low nibble up in one of
// the tables; the result carries the next state and a count flag.
package quad

const (
	PhaseA = 0x01
	PhaseB = 0x02

	lookupMask = 0x0F
	countUp    = 0x40
	countDown  = 0x80
)

// X4 counts every edge of both phases: four counts per cycle.
var X4 = [16]uint8{
	0x00, 0x44, 0x88, 0x0C, 0x80, 0x04, 0x08, 0x4C,
	0x40, 0x04, 0x08, 0x8C, 0x00, 0x84, 0x48, 0x0C,
}

// X1 counts once per full cycle, on the rising edge of A.
var X1 = [16]uint8{
	0x00, 0x44, 0x08, 0x0C, 0x80, 0x04, 0x08, 0x0C,
	0x00, 0x04, 0x08, 0x0C, 0x00, 0x04, 0x08, 0x0C,
}

// Counter treats A as a pulse input and B as ignored: one count per
// rising edge of A.
var Counter = [16]uint8{
	0x00, 0x44, 0x00, 0x44, 0x00, 0x04, 0x00, 0x04,
	0x00, 0x44, 0x00, 0x44, 0x00, 0x04, 0x00, 0x04,
}

// Step advances state with the current phase levels and returns the next
// state and the count delta (-1, 0 or +1).
func Step(table *[16]uint8, state uint8, a, b bool) (uint8, int32) {
	state &^= PhaseA | PhaseB
	if a {
		state |= PhaseA
	}
	if b {
		state |= PhaseB
	}
	next := table[state&lookupMask]
	switch {
	case next&countUp != 0:
		return next &^ (countUp | countDown), 1
	case next&countDown != 0:
		return next &^ (countUp | countDown), -1
	}
	return next, 0
}
