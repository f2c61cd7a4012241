package hal

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/shm"
)

// Config selects the arena a HAL handle creates.
type Config struct {
	// Segment names a shared segment. Empty creates a private heap arena.
	Segment string
	// Size is the arena capacity in bytes; zero selects shm.DefaultSize.
	Size int
	// Logger overrides the package logger for this handle.
	Logger *zap.Logger
}

// HAL is a process's handle on one arena. Setup methods serialize on the
// mutex stored in the segment, so several handles, in one process or
// many, can configure the same arena. Callbacks and instance state live in
// this handle only.
type HAL struct {
	arena  *shm.Arena
	root   *dirRoot
	mu     *shm.Mutex
	local  *registry
	log    *zap.Logger
	closed atomic.Bool
}

// New creates a fresh arena and an empty directory in it.
func New(cfg Config) (*HAL, error) {
	size := cfg.Size
	if size == 0 {
		size = shm.DefaultSize
	}

	var (
		arena *shm.Arena
		err   error
	)
	if cfg.Segment == "" {
		arena, err = shm.NewHeap(size)
	} else {
		arena, err = shm.Create(cfg.Segment, size)
	}
	if err != nil {
		return nil, err
	}

	off, root, err := shm.New[dirRoot](arena)
	if err != nil {
		_ = arena.Close()
		return nil, err
	}
	root.nextID = 1
	arena.SetRoot(off)

	h := newHAL(arena, root, cfg.Logger)
	h.log.Debug("arena created",
		zap.String("segment", cfg.Segment),
		zap.Uint64("capacity", arena.Capacity()),
		zap.Stringer("session", arena.Session()))
	return h, nil
}

// Attach opens an existing named segment created by another process.
func Attach(cfg Config) (*HAL, error) {
	if cfg.Segment == "" {
		return nil, errors.InvalidInput(errors.PhaseAttach, "attach needs a segment name")
	}
	arena, err := shm.Open(cfg.Segment)
	if err != nil {
		return nil, err
	}
	if arena.Root().IsNil() {
		_ = arena.Close()
		return nil, errors.New(errors.PhaseAttach, errors.KindState).
			Path(cfg.Segment).
			Detail("segment has no directory").
			Build()
	}
	h := newHAL(arena, shm.Ptr[dirRoot](arena, arena.Root()), cfg.Logger)
	h.log.Debug("arena attached",
		zap.String("segment", cfg.Segment),
		zap.Int("creator_pid", arena.CreatorPID()),
		zap.Stringer("session", arena.Session()))
	return h, nil
}

func newHAL(arena *shm.Arena, root *dirRoot, log *zap.Logger) *HAL {
	if log == nil {
		log = Logger()
	}
	return &HAL{
		arena: arena,
		root:  root,
		mu:    arena.Mutex(),
		local: newRegistry(),
		log:   log.With(zap.String("segment", arena.Name())),
	}
}

// Arena exposes the underlying arena for diagnostics.
func (h *HAL) Arena() *shm.Arena { return h.arena }

func (h *HAL) acquire(phase errors.Phase) error {
	if h.closed.Load() {
		return errors.Closed(phase, "hal")
	}
	h.mu.Lock()
	return nil
}

func (h *HAL) nextID() int32 {
	id := h.root.nextID
	h.root.nextID++
	return id
}

// StartThreads lets every thread run its functs.
func (h *HAL) StartThreads() error {
	if err := h.checkLock(errors.PhaseThread, LockRun, "start threads"); err != nil {
		return err
	}
	h.root.running.Store(1)
	h.log.Debug("threads started")
	return nil
}

// StopThreads makes every thread skip its passes. A pass already running
// completes.
func (h *HAL) StopThreads() error {
	if err := h.checkLock(errors.PhaseThread, LockRun, "stop threads"); err != nil {
		return err
	}
	h.root.running.Store(0)
	h.log.Debug("threads stopped")
	return nil
}

// SetLock replaces the lock level of the arena. It is shared by every
// handle attached to the segment. Lowering the level is always allowed.
func (h *HAL) SetLock(l LockLevel) error {
	if err := h.acquire(errors.PhaseRuntime); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if l&^LockAll != 0 {
		return errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("unknown lock bits 0x%x", uint32(l&^LockAll)))
	}
	prev := LockLevel(h.root.lock.Swap(uint32(l)))
	h.log.Info("lock level changed", zap.Stringer("from", prev), zap.Stringer("to", l))
	return nil
}

// LockLevel returns the current lock level.
func (h *HAL) LockLevel() LockLevel { return LockLevel(h.root.lock.Load()) }

func (h *HAL) checkLock(phase errors.Phase, l LockLevel, op string) error {
	if held := h.LockLevel() & l; held != 0 {
		return errors.Locked(phase, op, held.String())
	}
	return nil
}

// Running reports whether threads are started.
func (h *HAL) Running() bool { return h.root.running.Load() != 0 }

// Close unloads every component this handle registered, in reverse order,
// and releases the mapping. The creator of a named segment also removes it.
func (h *HAL) Close(ctx context.Context) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	h.mu.Lock()
	names := h.local.order
	for i := len(names) - 1; i >= 0; i-- {
		if e := h.exit(ctx, names[i]); e != nil {
			h.log.Warn("unload failed", zap.String("component", names[i]), zap.Error(e))
			err = multierr.Append(err, e)
		}
	}
	h.mu.Unlock()

	if e := h.arena.Close(); e != nil {
		err = multierr.Append(err, e)
	}
	return err
}
