package hal

import (
	"strings"
	"time"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

// ValueReader is the read-only surface offered to collaborators such as
// kinematics or task modules.
type ValueReader interface {
	GetPin(name string) (Value, error)
	GetSignal(name string) (Value, error)
}

var _ ValueReader = (*HAL)(nil)

// ComponentInfo describes a registered component.
type ComponentInfo struct {
	ID           int
	Name         string
	Kind         CompKind
	State        CompState
	Instantiable bool
	Instances    int
	PID          int
}

// InstanceInfo describes an instance and the component it came from.
type InstanceInfo struct {
	ID        int
	Name      string
	Component string
	State     InstState
	DataSize  int
}

// PinInfo is a snapshot of a pin. Signal is empty for an unlinked pin.
type PinInfo struct {
	ID       int
	Name     string
	Owner    string
	Type     Type
	Dir      Dir
	Value    Value
	Signal   string
	Barriers uint32
}

// ParamInfo is a snapshot of a parameter.
type ParamInfo struct {
	ID    int
	Name  string
	Owner string
	Type  Type
	Dir   ParamDir
	Value Value
}

// SignalInfo is a snapshot of a signal with its linked pin counts.
type SignalInfo struct {
	ID       int
	Name     string
	Type     Type
	Value    Value
	Readers  int
	Writers  int
	Bidirs   int
	Barriers uint32
}

// FunctInfo describes an exported funct and its timing.
type FunctInfo struct {
	ID        int
	Name      string
	Owner     string
	Users     int
	UsesFP    bool
	Reentrant bool
	Runtime   time.Duration
	Maxtime   time.Duration
}

// ThreadInfo describes a thread. Functs are in execution order.
type ThreadInfo struct {
	ID      int
	Name    string
	Period  time.Duration
	UsesFP  bool
	Functs  []string
	Passes  uint64
	Runtime time.Duration
	Maxtime time.Duration
}

// RingInfo reports the size and fill of a named ring.
type RingInfo struct {
	ID       int
	Name     string
	Capacity uint64
	Used     uint64
}

// ArenaInfo summarizes arena usage.
type ArenaInfo struct {
	Segment     string
	Session     string
	Capacity    uint64
	Used        uint64
	Available   uint64
	FreeBytes   uint64
	ReusedBytes uint64
	Running     bool
	Lock        LockLevel
}

func (h *HAL) ownerName(off shm.Offset) string {
	if off.IsNil() {
		return ""
	}
	return h.obj(off).Name()
}

func (h *HAL) snapshot(phase errors.Phase, fn func()) error {
	if err := h.acquire(phase); err != nil {
		return err
	}
	defer h.mu.Unlock()
	fn()
	return nil
}

// Components lists registered components in name order.
func (h *HAL) Components() ([]ComponentInfo, error) {
	var out []ComponentInfo
	err := h.snapshot(errors.PhaseRuntime, func() {
		h.each(listComps, func(off shm.Offset) bool {
			c := h.comp(off)
			out = append(out, ComponentInfo{
				ID:           int(c.id),
				Name:         c.Name(),
				Kind:         c.kind,
				State:        c.state,
				Instantiable: c.ctor,
				Instances:    int(c.insts),
				PID:          int(c.pid),
			})
			return true
		})
	})
	return out, err
}

// Instances lists instances in name order.
func (h *HAL) Instances() ([]InstanceInfo, error) {
	var out []InstanceInfo
	err := h.snapshot(errors.PhaseRuntime, func() {
		h.each(listInsts, func(off shm.Offset) bool {
			i := h.inst(off)
			out = append(out, InstanceInfo{
				ID:        int(i.id),
				Name:      i.Name(),
				Component: h.ownerName(i.comp),
				State:     InstState(i.state.Load()),
				DataSize:  int(i.size),
			})
			return true
		})
	})
	return out, err
}

// Pins lists pins whose name starts with prefix.
func (h *HAL) Pins(prefix string) ([]PinInfo, error) {
	var out []PinInfo
	err := h.snapshot(errors.PhaseRuntime, func() {
		h.each(listPins, func(off shm.Offset) bool {
			p := h.pin(off)
			name := p.Name()
			if !strings.HasPrefix(name, prefix) {
				return true
			}
			out = append(out, PinInfo{
				ID:       int(p.id),
				Name:     name,
				Owner:    h.ownerName(p.owner),
				Type:     p.typ,
				Dir:      p.dir,
				Value:    Pin{h.handle(off)}.Get(),
				Signal:   h.ownerName(p.signal),
				Barriers: p.flags.Load(),
			})
			return true
		})
	})
	return out, err
}

// Params lists parameters whose name starts with prefix.
func (h *HAL) Params(prefix string) ([]ParamInfo, error) {
	var out []ParamInfo
	err := h.snapshot(errors.PhaseRuntime, func() {
		h.each(listParams, func(off shm.Offset) bool {
			p := h.param(off)
			name := p.Name()
			if !strings.HasPrefix(name, prefix) {
				return true
			}
			out = append(out, ParamInfo{
				ID:    int(p.id),
				Name:  name,
				Owner: h.ownerName(p.owner),
				Type:  p.typ,
				Dir:   p.dir,
				Value: Param{p}.Get(),
			})
			return true
		})
	})
	return out, err
}

// Signals lists signals whose name starts with prefix.
func (h *HAL) Signals(prefix string) ([]SignalInfo, error) {
	var out []SignalInfo
	err := h.snapshot(errors.PhaseRuntime, func() {
		h.each(listSignals, func(off shm.Offset) bool {
			s := h.signal(off)
			name := s.Name()
			if !strings.HasPrefix(name, prefix) {
				return true
			}
			out = append(out, SignalInfo{
				ID:       int(s.id),
				Name:     name,
				Type:     s.typ,
				Value:    rawValue(s.typ, s.value.v.Load()),
				Readers:  int(s.readers),
				Writers:  int(s.writers),
				Bidirs:   int(s.bidirs),
				Barriers: s.flags,
			})
			return true
		})
	})
	return out, err
}

// Functs lists exported functs in name order.
func (h *HAL) Functs() ([]FunctInfo, error) {
	var out []FunctInfo
	err := h.snapshot(errors.PhaseRuntime, func() {
		h.each(listFuncts, func(off shm.Offset) bool {
			f := h.funct(off)
			out = append(out, FunctInfo{
				ID:        int(f.id),
				Name:      f.Name(),
				Owner:     h.ownerName(f.owner),
				Users:     int(f.users.Load()),
				UsesFP:    f.usesFP,
				Reentrant: f.reentrant,
				Runtime:   time.Duration(f.runtime.Load()),
				Maxtime:   time.Duration(f.maxtime.Load()),
			})
			return true
		})
	})
	return out, err
}

// Threads lists threads with their functs in execution order.
func (h *HAL) Threads() ([]ThreadInfo, error) {
	var out []ThreadInfo
	err := h.snapshot(errors.PhaseRuntime, func() {
		h.each(listThreads, func(off shm.Offset) bool {
			t := h.thread(off)
			info := ThreadInfo{
				ID:      int(t.id),
				Name:    t.Name(),
				Period:  time.Duration(t.period),
				UsesFP:  t.usesFP,
				Passes:  t.passes.Load(),
				Runtime: time.Duration(t.runtime.Load()),
				Maxtime: time.Duration(t.maxtime.Load()),
			}
			for e := shm.Offset(t.head.Load()); !e.IsNil(); {
				ent := h.entry(e)
				info.Functs = append(info.Functs, h.ownerName(ent.funct))
				e = shm.Offset(ent.next.Load())
			}
			out = append(out, info)
			return true
		})
	})
	return out, err
}

// Rings lists named rings.
func (h *HAL) Rings() ([]RingInfo, error) {
	var out []RingInfo
	err := h.snapshot(errors.PhaseRuntime, func() {
		h.each(listRings, func(off shm.Offset) bool {
			rec := h.ringRec(off)
			info := RingInfo{ID: int(rec.id), Name: rec.Name()}
			if r, err := h.openRing(info.Name); err == nil {
				st := r.State()
				info.Capacity, info.Used = st.Capacity, st.Used
			}
			out = append(out, info)
			return true
		})
	})
	return out, err
}

// ArenaInfo reports arena usage.
func (h *HAL) ArenaInfo() (ArenaInfo, error) {
	var out ArenaInfo
	err := h.snapshot(errors.PhaseRuntime, func() {
		out = ArenaInfo{
			Segment:     h.arena.Name(),
			Session:     h.arena.Session().String(),
			Capacity:    h.arena.Capacity(),
			Used:        h.arena.Used(),
			Available:   h.arena.Available(),
			FreeBytes:   h.root.freeBytes,
			ReusedBytes: h.root.reusedBytes,
			Running:     h.Running(),
			Lock:        h.LockLevel(),
		}
	})
	return out, err
}
