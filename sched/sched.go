// Package sched runs HAL threads on goroutines with Go tickers. It stands
// in for a real-time scheduler in tests, demos and soft real-time setups:
// each thread gets its own locked OS thread, but nothing bounds latency.
package sched

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/hal-runtime/hal"
)

// Runner drives a set of threads until its context ends.
type Runner struct {
	h       *hal.HAL
	log     *zap.Logger
	loops   []*loop
	running atomic.Bool
}

type loop struct {
	th   *hal.Thread
	late atomic.Uint64
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// New prepares a runner for the named threads, or for every thread in
// the directory when names is empty.
func New(h *hal.HAL, names []string, opts ...Option) (*Runner, error) {
	r := &Runner{h: h, log: hal.Logger()}
	for _, o := range opts {
		o(r)
	}
	if len(names) == 0 {
		threads, err := h.Threads()
		if err != nil {
			return nil, err
		}
		for _, t := range threads {
			names = append(names, t.Name)
		}
	}
	for _, n := range names {
		th, err := h.Thread(n)
		if err != nil {
			return nil, err
		}
		r.loops = append(r.loops, &loop{th: th})
	}
	return r, nil
}

// Run starts the threads unless they already run, and blocks until ctx
// ends. Threads are left started; callers stop them with StopThreads
// before tearing down.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}
	defer r.running.Store(false)

	if !r.h.Running() {
		if err := r.h.StartThreads(); err != nil {
			return err
		}
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range r.loops {
		g.Go(func() error {
			l.run(ctx)
			return nil
		})
	}
	r.log.Info("threads running", zap.Int("threads", len(r.loops)))
	err := g.Wait()
	for _, l := range r.loops {
		if n := l.late.Load(); n > 0 {
			r.log.Warn("thread missed periods", zap.String("thread", l.th.Name()), zap.Uint64("late", n))
		}
	}
	return err
}

func (l *loop) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	period := l.th.Period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(last) > 2*period {
				l.late.Add(1)
			}
			last = now
			l.th.RunPass()
		}
	}
}

// Late returns how many ticks of the named thread arrived more than one
// period late.
func (r *Runner) Late(name string) uint64 {
	for _, l := range r.loops {
		if l.th.Name() == name {
			return l.late.Load()
		}
	}
	return 0
}

// Threads returns the names of the threads the runner drives.
func (r *Runner) Threads() []string {
	out := make([]string, len(r.loops))
	for i, l := range r.loops {
		out[i] = l.th.Name()
	}
	return out
}
