package hal

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/hal-runtime/errors"
)

// Type is the data type of a pin or signal.
type Type uint8

const (
	TypeBit   Type = 1
	TypeFloat Type = 2
	TypeS32   Type = 3
	TypeU32   Type = 4
	TypeS64   Type = 5
	TypeU64   Type = 6
)

var typeNames = [...]string{
	TypeBit:   "bit",
	TypeFloat: "float",
	TypeS32:   "s32",
	TypeU32:   "u32",
	TypeS64:   "s64",
	TypeU64:   "u64",
}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Valid reports whether t is one of the six HAL types.
func (t Type) Valid() bool {
	return t >= TypeBit && t <= TypeU64
}

// ParseType converts a type name such as "float" or "s32".
func ParseType(s string) (Type, error) {
	for t := TypeBit; t <= TypeU64; t++ {
		if strings.EqualFold(s, typeNames[t]) {
			return t, nil
		}
	}
	return 0, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown type %q", s))
}

// Dir is the direction of a pin as seen from its owning component.
type Dir uint8

const (
	In  Dir = 16
	Out Dir = 32
	IO  Dir = In | Out
)

func (d Dir) String() string {
	switch d {
	case In:
		return "IN"
	case Out:
		return "OUT"
	case IO:
		return "I/O"
	}
	return fmt.Sprintf("dir(%d)", uint8(d))
}

// Valid reports whether d is IN, OUT or IO.
func (d Dir) Valid() bool {
	return d == In || d == Out || d == IO
}

// ParseDir converts "in", "out" or "io".
func ParseDir(s string) (Dir, error) {
	switch strings.ToLower(s) {
	case "in":
		return In, nil
	case "out":
		return Out, nil
	case "io", "i/o":
		return IO, nil
	}
	return 0, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown direction %q", s))
}

// ParamDir says whether a parameter's owner or its users may write it.
type ParamDir uint8

const (
	// ParamRO parameters are written only by their owner
	ParamRO ParamDir = 64
	// ParamRW parameters can also be set from setup code
	ParamRW ParamDir = 192
)

func (d ParamDir) String() string {
	switch d {
	case ParamRO:
		return "RO"
	case ParamRW:
		return "RW"
	}
	return fmt.Sprintf("param_dir(%d)", uint8(d))
}

// Valid reports whether d is RO or RW.
func (d ParamDir) Valid() bool { return d == ParamRO || d == ParamRW }

// ParseParamDir converts "ro" or "rw".
func ParseParamDir(s string) (ParamDir, error) {
	switch strings.ToLower(s) {
	case "ro":
		return ParamRO, nil
	case "rw":
		return ParamRW, nil
	}
	return 0, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown parameter direction %q", s))
}

// LockLevel is a set of setup operations refused until unlocked. It
// protects a running machine from a stray configuration command.
type LockLevel uint32

const (
	LockNone LockLevel = 0
	// LockLoad refuses component registration and instantiation
	LockLoad LockLevel = 1 << 0
	// LockConfig refuses signal, link, thread and funct placement changes
	LockConfig LockLevel = 1 << 1
	// LockParams refuses setting parameters, pins and signals
	LockParams LockLevel = 1 << 2
	// LockRun refuses starting and stopping threads
	LockRun LockLevel = 1 << 3
	// LockTune leaves parameters and run control open
	LockTune = LockLoad | LockConfig
	LockAll  = LockLoad | LockConfig | LockParams | LockRun
)

var lockNames = []struct {
	l    LockLevel
	name string
}{
	{LockLoad, "load"},
	{LockConfig, "config"},
	{LockParams, "params"},
	{LockRun, "run"},
}

func (l LockLevel) String() string {
	switch l {
	case LockNone:
		return "none"
	case LockTune:
		return "tune"
	case LockAll:
		return "all"
	}
	var parts []string
	for _, n := range lockNames {
		if l&n.l != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := l &^ LockAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseLockLevel converts "none", "tune", "all" or a list of
// "load", "config", "params" and "run" joined with '|' or ','.
func ParseLockLevel(s string) (LockLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return LockNone, nil
	case "tune":
		return LockTune, nil
	case "all":
		return LockAll, nil
	}
	var l LockLevel
	for _, part := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.TrimSpace(part)
		found := false
		for _, n := range lockNames {
			if part == n.name {
				l |= n.l
				found = true
			}
		}
		if !found {
			return 0, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown lock level %q", part))
		}
	}
	return l, nil
}

// Barrier flags select fences around cell access.
const (
	ReadBarrier  uint32 = 1 << 0
	WriteBarrier uint32 = 1 << 1
)

// CompKind is the closed set of component kinds.
type CompKind uint8

const (
	// CompRT components export functs that run in periodic threads
	CompRT CompKind = iota + 1
	// CompUser components run non-realtime code in their own process
	CompUser
)

func (k CompKind) String() string {
	switch k {
	case CompRT:
		return "RT"
	case CompUser:
		return "User"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// CompState tracks a component through loading.
type CompState uint8

const (
	CompInitializing CompState = iota + 1
	CompReady
)

func (s CompState) String() string {
	switch s {
	case CompInitializing:
		return "initializing"
	case CompReady:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// InstState tracks an instance through its lifecycle.
type InstState uint32

const (
	InstUnregistered InstState = iota
	InstCreated
	InstExporting
	InstActive
	InstDeleting
	InstFreed
)

var instStateNames = [...]string{
	InstUnregistered: "unregistered",
	InstCreated:      "created",
	InstExporting:    "exporting",
	InstActive:       "active",
	InstDeleting:     "deleting",
	InstFreed:        "freed",
}

func (s InstState) String() string {
	if int(s) < len(instStateNames) {
		return instStateNames[s]
	}
	return fmt.Sprintf("inst_state(%d)", uint32(s))
}

// Value is a typed HAL value. Accessing it as the wrong type panics.
type Value struct {
	t    Type
	bits uint64
}

// Constructors for each type.

func BitValue(v bool) Value { return Value{TypeBit, boolBits(v)} }
func FloatValue(v float64) Value { return Value{TypeFloat, math.Float64bits(v)} }
func S32Value(v int32) Value { return Value{TypeS32, uint64(uint32(v))} }
func U32Value(v uint32) Value { return Value{TypeU32, uint64(v)} }
func S64Value(v int64) Value { return Value{TypeS64, uint64(v)} }
func U64Value(v uint64) Value { return Value{TypeU64, v} }
func ZeroValue(t Type) Value { return Value{t: t} }

func rawValue(t Type, raw uint64) Value {
	switch t {
	case TypeBit:
		raw &= 1
	case TypeS32, TypeU32:
		raw = uint64(uint32(raw))
	}
	return Value{t, raw}
}

func boolBits(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// Type returns the value's type
func (v Value) Type() Type { return v.t }

func (v Value) want(t Type) {
	if v.t != t {
		panic(fmt.Sprintf("hal: %s value read as %s", v.t, t))
	}
}

// Bit returns the value of a bit. The accessors below panic when the
// value holds a different type.
func (v Value) Bit() bool {
	v.want(TypeBit)
	return v.bits != 0
}

func (v Value) Float() float64 {
	v.want(TypeFloat)
	return math.Float64frombits(v.bits)
}

func (v Value) S32() int32 {
	v.want(TypeS32)
	return int32(uint32(v.bits))
}

func (v Value) U32() uint32 {
	v.want(TypeU32)
	return uint32(v.bits)
}

func (v Value) S64() int64 {
	v.want(TypeS64)
	return int64(v.bits)
}

func (v Value) U64() uint64 {
	v.want(TypeU64)
	return v.bits
}

func (v Value) raw() uint64 { return v.bits }

// IsZero reports whether the value is zero, FALSE or 0.0
func (v Value) IsZero() bool { return v.bits == 0 }

func (v Value) String() string {
	switch v.t {
	case TypeBit:
		if v.bits != 0 {
			return "TRUE"
		}
		return "FALSE"
	case TypeFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case TypeS32:
		return strconv.FormatInt(int64(v.S32()), 10)
	case TypeU32:
		return strconv.FormatUint(uint64(v.U32()), 10)
	case TypeS64:
		return strconv.FormatInt(v.S64(), 10)
	case TypeU64:
		return strconv.FormatUint(v.U64(), 10)
	}
	return "?"
}

// ParseValue parses s as a value of type t. Bits accept 0/1, true/false
// and TRUE/FALSE; integers accept any base prefix strconv understands.
func ParseValue(t Type, s string) (Value, error) {
	s = strings.TrimSpace(s)
	var err error
	switch t {
	case TypeBit:
		var b bool
		if b, err = strconv.ParseBool(s); err == nil {
			return BitValue(b), nil
		}
	case TypeFloat:
		var f float64
		if f, err = strconv.ParseFloat(s, 64); err == nil {
			return FloatValue(f), nil
		}
	case TypeS32:
		var n int64
		if n, err = strconv.ParseInt(s, 0, 32); err == nil {
			return S32Value(int32(n)), nil
		}
	case TypeU32:
		var n uint64
		if n, err = strconv.ParseUint(s, 0, 32); err == nil {
			return U32Value(uint32(n)), nil
		}
	case TypeS64:
		var n int64
		if n, err = strconv.ParseInt(s, 0, 64); err == nil {
			return S64Value(n), nil
		}
	case TypeU64:
		var n uint64
		if n, err = strconv.ParseUint(s, 0, 64); err == nil {
			return U64Value(n), nil
		}
	default:
		return Value{}, errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("invalid type %d", uint8(t)))
	}
	return Value{}, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
		Want(t.String()).
		Value(s).
		Cause(err).
		Detail("cannot parse %q", s).
		Build()
}
