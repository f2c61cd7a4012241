// Package ring implements a single-producer single-consumer record ring
// that lives in arena memory.
//
// Each record is framed by an 8-byte header holding its length; payloads
// are padded to 8 bytes. A record that does not fit contiguously before
// the end of the data area is placed at the start and the skipped tail is
// marked with a wrap header. Read and write cursors are monotonic 64-bit
// counters, so used space is simply tail - head.
//
// The producer side (WriteBegin/WriteEnd) and the consumer side
// (Read/Shift) may run in different goroutines or processes, each holding
// its own Ring view of the same bytes. Neither side ever blocks: a full
// ring returns ErrFull and an empty one returns ErrEmpty. A record
// returned by Read is not touched by the producer until Shift releases it.
package ring
