// Package hal implements the object model that components share through an
// arena: pins, parameters, signals, components, instances, functs and
// threads.
//
// A HAL handle owns one arena (see package shm). Components register with
// Xinit and are instantiated with Instantiate; their constructors receive an
// Exporter through which they allocate private data, create typed pins and
// parameters, and export functs. Parameters hold tuning values; they are
// set from setup code but never linked. Pins are wired together by linking them to signals, and
// functs are placed into threads with AddFunct. A scheduler (see package
// sched) calls Thread.RunPass at each thread's period.
//
// Realtime code touches only typed pin handles, the double buffers in its
// own data block and rings; every one of those accesses is a plain atomic
// load, store or read-modify-write. Everything else is setup-time and takes
// the segment mutex.
//
// SetLock raises a lock level stored in the arena. Each level refuses a
// group of setup calls (loading, wiring, setting values, run control) for
// every handle attached to the segment; teardown is never refused.
//
// Deleting an instance removes its functs from every thread and then waits
// for each thread that might still be running one of them to finish its
// current pass before any memory is released.
package hal
