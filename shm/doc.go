// Package shm implements the fixed-capacity memory arena shared by every
// HAL participant.
//
// An arena is a single byte region laid out as
//
//	+----------------+ 0x000
//	| Header (256B)  |  magic, layout version, bump pointer, root offset,
//	|                |  creator pid, session id, setup mutex
//	+----------------+ 0x100
//	| records ...    |  bump-allocated, never compacted
//	+----------------+ top
//	| free           |
//	+----------------+ size
//
// The region is backed either by a POSIX shared memory file mapped with
// MAP_SHARED (Create/Open) or by a heap block (NewHeap) for single-process
// use and tests. Everything stored inside is addressed by Offset, never by
// pointer, so each process resolves offsets against its own mapping.
//
// Records placed in the arena must be pointer-free. Fields touched by more
// than one goroutine or process use sync/atomic types.
package shm
