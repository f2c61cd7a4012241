//go:build !unix

package shm

import "github.com/wippyai/hal-runtime/errors"

// SegmentPath returns an empty path; named segments need a unix host.
func SegmentPath(name string) string { return "" }

// Create is unavailable on this platform. Use NewHeap.
func Create(name string, size int) (*Arena, error) {
	return nil, errors.InvalidInput(errors.PhaseAttach, "shared segments require a unix host")
}

// Open is unavailable on this platform.
func Open(name string) (*Arena, error) {
	return nil, errors.InvalidInput(errors.PhaseAttach, "shared segments require a unix host")
}

// Remove is a no-op on this platform.
func Remove(name string) error { return nil }
