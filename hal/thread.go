package hal

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

// quiescePoll is how often a deleter rechecks a thread that is mid-pass.
const quiescePoll = 20 * time.Microsecond

// CreateThread declares a periodic thread. Nothing runs it until a
// scheduler calls RunPass on its handle.
func (h *HAL) CreateThread(name string, period time.Duration, usesFP bool) (int, error) {
	if err := h.acquire(errors.PhaseThread); err != nil {
		return 0, err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseThread, LockConfig, "create thread"); err != nil {
		return 0, err
	}

	if err := checkName(errors.PhaseThread, "thread", name); err != nil {
		return 0, err
	}
	if period <= 0 {
		return 0, errors.New(errors.PhaseThread, errors.KindInvalidInput).Path(name).Detail("period must be positive, got %s", period).Build()
	}
	if !h.find(listThreads, name).IsNil() {
		return 0, errors.Duplicate(errors.PhaseThread, "thread", name)
	}
	off, rec, err := newRecord[threadRecord](h, listThreads)
	if err != nil {
		return 0, err
	}
	rec.id = h.nextID()
	rec.setName(name)
	rec.period = int64(period)
	rec.usesFP = usesFP
	h.insert(listThreads, off)
	h.log.Debug("thread created", zap.String("thread", name), zap.Duration("period", period), zap.Bool("fp", usesFP))
	return int(rec.id), nil
}

// DeleteThread empties the thread and removes it. Schedulers must stop
// calling RunPass on the thread first.
func (h *HAL) DeleteThread(ctx context.Context, name string) error {
	if err := h.acquire(errors.PhaseThread); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseThread, LockConfig, "delete thread"); err != nil {
		return err
	}

	off := h.find(listThreads, name)
	if off.IsNil() {
		return errors.NotFound(errors.PhaseThread, "thread", name)
	}
	t := h.thread(off)
	var entries []shm.Offset
	for e := shm.Offset(t.head.Load()); !e.IsNil(); {
		ent := h.entry(e)
		h.funct(ent.funct).users.Add(-1)
		entries = append(entries, e)
		e = shm.Offset(ent.next.Load())
	}
	t.head.Store(0)
	if err := h.quiesce(ctx); err != nil {
		return err
	}
	h.recycleEntries(entries)
	h.remove(listThreads, off)
	h.freeRecord(listThreads, off)
	h.log.Debug("thread deleted", zap.String("thread", name))
	return nil
}

func (h *HAL) entry(off shm.Offset) *functEntry {
	return shm.Ptr[functEntry](h.arena, off)
}

// AddFunct appends or inserts a funct into a thread. position counts from
// 1 at the front; negative values count from the back, so -1 appends.
// Zero is rejected.
func (h *HAL) AddFunct(funct, thread string, position int) error {
	if err := h.acquire(errors.PhaseThread); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseThread, LockConfig, "add funct"); err != nil {
		return err
	}

	if position == 0 {
		return errors.InvalidInput(errors.PhaseThread, "funct position 0 is invalid")
	}
	fOff := h.find(listFuncts, funct)
	if fOff.IsNil() {
		return errors.NotFound(errors.PhaseThread, "funct", funct)
	}
	tOff := h.find(listThreads, thread)
	if tOff.IsNil() {
		return errors.NotFound(errors.PhaseThread, "thread", thread)
	}
	f, t := h.funct(fOff), h.thread(tOff)
	if f.users.Load() > 0 && !f.reentrant {
		return errors.New(errors.PhaseThread, errors.KindNotReentrant).
			Path(funct).
			Detail("funct is not reentrant and already in a thread").
			Build()
	}
	if f.usesFP && !t.usesFP {
		return errors.New(errors.PhaseThread, errors.KindNeedsFP).
			Path(funct).
			Detail("thread %q does not allow floating point", thread).
			Build()
	}

	eOff, err := h.newEntry()
	if err != nil {
		return err
	}
	ent := h.entry(eOff)
	ent.funct = fOff

	n := 0
	for e := shm.Offset(t.head.Load()); !e.IsNil(); e = shm.Offset(h.entry(e).next.Load()) {
		n++
	}
	idx := position - 1
	if position < 0 {
		idx = n + position + 1
	}
	idx = max(0, min(idx, n))

	// walk to the link that will point at the new entry
	link := &t.head
	for i := 0; i < idx; i++ {
		link = &h.entry(shm.Offset(link.Load())).next
	}
	ent.next.Store(link.Load())
	link.Store(uint32(eOff))
	f.users.Add(1)

	h.log.Debug("funct added", zap.String("funct", funct), zap.String("thread", thread), zap.Int("index", idx))
	return nil
}

// DelFunct removes a funct from a thread and waits until the thread can
// no longer be running it.
func (h *HAL) DelFunct(ctx context.Context, funct, thread string) error {
	if err := h.acquire(errors.PhaseThread); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if err := h.checkLock(errors.PhaseThread, LockConfig, "remove funct"); err != nil {
		return err
	}

	fOff := h.find(listFuncts, funct)
	if fOff.IsNil() {
		return errors.NotFound(errors.PhaseThread, "funct", funct)
	}
	tOff := h.find(listThreads, thread)
	if tOff.IsNil() {
		return errors.NotFound(errors.PhaseThread, "thread", thread)
	}
	f := h.funct(fOff)
	if f.users.Load() == 0 {
		return errors.State(errors.PhaseThread, funct, "in a thread", "unused")
	}
	removed := h.unlinkEntries(h.thread(tOff), func(e *functEntry) bool { return e.funct == fOff })
	if len(removed) == 0 {
		return errors.New(errors.PhaseThread, errors.KindNotFound).
			Path(funct).
			Detail("funct is not in thread %q", thread).
			Build()
	}
	if err := h.quiesce(ctx); err != nil {
		return err
	}
	h.recycleEntries(removed)
	h.log.Debug("funct removed", zap.String("funct", funct), zap.String("thread", thread))
	return nil
}

// unlinkEntries removes matching entries from t. RT threads already past
// an entry keep following its next link, which stays intact until the
// entry is recycled.
func (h *HAL) unlinkEntries(t *threadRecord, match func(*functEntry) bool) []shm.Offset {
	var removed []shm.Offset
	link := &t.head
	for e := shm.Offset(link.Load()); !e.IsNil(); e = shm.Offset(link.Load()) {
		ent := h.entry(e)
		if match(ent) {
			link.Store(ent.next.Load())
			h.funct(ent.funct).users.Add(-1)
			removed = append(removed, e)
			continue
		}
		link = &ent.next
	}
	return removed
}

// detachFuncts removes every entry for the given functs from every thread.
func (h *HAL) detachFuncts(functs []shm.Offset) []shm.Offset {
	if len(functs) == 0 {
		return nil
	}
	set := make(map[shm.Offset]bool, len(functs))
	for _, f := range functs {
		set[f] = true
	}
	var removed []shm.Offset
	h.each(listThreads, func(off shm.Offset) bool {
		removed = append(removed, h.unlinkEntries(h.thread(off), func(e *functEntry) bool { return set[e.funct] })...)
		return true
	})
	return removed
}

func (h *HAL) newEntry() (shm.Offset, error) {
	if off := h.root.freeEntries; !off.IsNil() {
		ent := h.entry(off)
		h.root.freeEntries = shm.Offset(ent.next.Load())
		ent.next.Store(0)
		ent.funct = 0
		return off, nil
	}
	off, _, err := shm.New[functEntry](h.arena)
	return off, err
}

func (h *HAL) recycleEntries(entries []shm.Offset) {
	for _, off := range entries {
		ent := h.entry(off)
		ent.funct = 0
		ent.next.Store(uint32(h.root.freeEntries))
		h.root.freeEntries = off
	}
}

// quiesce waits until every thread that was mid-pass when it was called
// has finished that pass. Entries unlinked before the call are then
// unreachable from every thread.
func (h *HAL) quiesce(ctx context.Context) error {
	type pending struct {
		t   *threadRecord
		seq uint64
	}
	var busy []pending
	h.each(listThreads, func(off shm.Offset) bool {
		t := h.thread(off)
		if s := t.seq.Load(); s&1 == 1 {
			busy = append(busy, pending{t, s})
		}
		return true
	})

	for _, p := range busy {
		for p.t.seq.Load() == p.seq {
			select {
			case <-ctx.Done():
				return errors.Wrap(errors.PhaseDelete, errors.KindBusy, ctx.Err(),
					"thread "+p.t.Name()+" did not finish its pass")
			case <-time.After(quiescePoll):
			}
		}
	}
	return nil
}

// Thread is a scheduler's handle on one thread.
type Thread struct {
	h      *HAL
	rec    *threadRecord
	name   string
	period time.Duration
}

// Thread returns a handle for running the named thread.
func (h *HAL) Thread(name string) (*Thread, error) {
	if err := h.acquire(errors.PhaseThread); err != nil {
		return nil, err
	}
	defer h.mu.Unlock()

	off := h.find(listThreads, name)
	if off.IsNil() {
		return nil, errors.NotFound(errors.PhaseThread, "thread", name)
	}
	rec := h.thread(off)
	return &Thread{h: h, rec: rec, name: name, period: time.Duration(rec.period)}, nil
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Period returns the thread period.
func (t *Thread) Period() time.Duration { return t.period }

// Passes returns the number of completed passes.
func (t *Thread) Passes() uint64 { return t.rec.passes.Load() }

// RunPass calls every funct in the thread once, in list order. It
// returns false without running anything while threads are stopped.
// Functs exported by other processes are skipped.
func (t *Thread) RunPass() bool {
	h := t.h
	if h.root.running.Load() == 0 {
		return false
	}
	rec := t.rec
	rec.seq.Add(1)

	start := time.Now()
	table := *h.local.functs.Load()
	for e := shm.Offset(rec.head.Load()); !e.IsNil(); {
		ent := h.entry(e)
		if impl := table[ent.funct]; impl != nil {
			fs := time.Now()
			impl.fn(impl.arg, rec.period)
			f := h.funct(ent.funct)
			d := int64(time.Since(fs))
			f.runtime.Store(d)
			storeMax(&f.maxtime, d)
		}
		e = shm.Offset(ent.next.Load())
	}
	d := int64(time.Since(start))
	rec.runtime.Store(d)
	storeMax(&rec.maxtime, d)
	rec.passes.Add(1)

	rec.seq.Add(1)
	return true
}

func storeMax(v *atomic.Int64, d int64) {
	for {
		old := v.Load()
		if d <= old || v.CompareAndSwap(old, d) {
			return
		}
	}
}
