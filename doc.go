// Package halruntime is a shared-memory hardware abstraction layer for
// machine control.
//
// Components publish typed pins into one arena, pins are wired together
// through signals, and the functions components export run in periodic
// threads. Fast producers and slow consumers exchange state without locks
// and without torn values.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	halruntime/          Root package, documentation only
//	├── shm/             Segment header, bump arena, offsets, cross-process mutex
//	├── hal/             Object directory, pins, signals, components, threads
//	├── handoff/         Double-buffered handoff between threads of different rates
//	├── ring/            Single-producer single-consumer record ring
//	├── components/      Bundled components (encoder, encoderratio, lutn, ...)
//	├── sched/           Goroutine runner for threads
//	├── config/          YAML startup configuration
//	├── errors/          Structured error types
//	└── cmd/halrun/      CLI: run, show, watch
//
// # Quick Start
//
// Create an arena, load a component, wire it and run a thread:
//
//	h, err := hal.New(hal.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close(ctx)
//
//	components.Load(h, "lutn")
//	h.Instantiate("lutn", "and0", []string{"inputs=2"})
//	h.SetParam("and0.function", hal.U32Value(0x8))
//	h.NewSignal("ready", hal.TypeBit)
//	h.Link("and0.out", "ready")
//
//	h.CreateThread("servo", time.Millisecond, true)
//	h.AddFunct("and0.funct", "servo", -1)
//
//	runner, _ := sched.New(h, nil)
//	runner.Run(ctx)
//
// # Writing Components
//
// A component registers a constructor with Xinit. The constructor exports
// pins and functs through the Exporter it receives, and everything it
// exports is rolled back if it fails:
//
//	h.Xinit(hal.CompRT, "blink", func(x *hal.Exporter) (any, error) {
//	    out, err := x.BitPin(hal.Out, "out", false)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return nil, x.ExportFunct("toggle", func(any, int64) {
//	        out.Set(!out.Get())
//	    }, nil, hal.FunctOptions{})
//	}, nil)
//
// State that other processes must see goes in the arena via AllocData.
//
// # Thread Safety
//
// Setup calls serialize on a mutex stored in the arena and may be made
// from any goroutine or process attached to it. Pin accessors are atomic
// and safe from any thread. Functs must not block or call setup methods.
//
// # Teardown
//
// DeleteInstance removes an instance's functs from every thread, waits
// for passes already running to finish, runs the destructor and only then
// frees its pins. A context bounds the wait.
package halruntime
