package hal

import (
	"sync/atomic"

	"github.com/wippyai/hal-runtime/shm"
)

// registry is the process-private half of the directory: callbacks and Go
// state that cannot be placed in shared memory. It is mutated under the
// segment mutex; the funct table is additionally published copy-on-write
// so RT threads can read it without locks.
type registry struct {
	comps  map[string]*component
	order  []string
	insts  map[shm.Offset]any
	functs atomic.Pointer[functTable]
}

type component struct {
	kind CompKind
	ctor Constructor
	dtor Destructor
	off  shm.Offset
	exp  *Exporter // singleton exporter, finished by Ready
}

type functImpl struct {
	fn  FunctFunc
	arg any
}

type functTable map[shm.Offset]*functImpl

func newRegistry() *registry {
	r := &registry{
		comps: make(map[string]*component),
		insts: make(map[shm.Offset]any),
	}
	empty := make(functTable)
	r.functs.Store(&empty)
	return r
}

func (r *registry) setFunct(off shm.Offset, impl *functImpl) {
	old := *r.functs.Load()
	next := make(functTable, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[off] = impl
	r.functs.Store(&next)
}

func (r *registry) dropFuncts(offs ...shm.Offset) {
	if len(offs) == 0 {
		return
	}
	old := *r.functs.Load()
	next := make(functTable, len(old))
	for k, v := range old {
		next[k] = v
	}
	for _, off := range offs {
		delete(next, off)
	}
	r.functs.Store(&next)
}

func (r *registry) addComp(name string, c *component) {
	r.comps[name] = c
	r.order = append(r.order, name)
}

func (r *registry) dropComp(name string) {
	delete(r.comps, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}
