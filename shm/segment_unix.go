//go:build unix

package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/wippyai/hal-runtime/errors"
)

const segmentPrefix = "hal_"

// SegmentPath returns the file backing the named segment. /dev/shm is
// preferred; systems without it fall back to the temp directory.
func SegmentPath(name string) string {
	if st, err := os.Stat("/dev/shm"); err == nil && st.IsDir() {
		return filepath.Join("/dev/shm", segmentPrefix+name)
	}
	return filepath.Join(os.TempDir(), segmentPrefix+name)
}

// Create makes a new named segment of the given size and formats its
// header. It fails if the segment already exists.
func Create(name string, size int) (*Arena, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseAttach, "segment name is empty")
	}
	if err := checkSize(uint64(size)); err != nil {
		return nil, err
	}
	size = int(alignUp(uint64(size), DefaultAlign))
	path := SegmentPath(name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Duplicate(errors.PhaseAttach, "segment", name)
		}
		return nil, errors.Wrap(errors.PhaseAttach, errors.KindIO, err, "create "+path)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, errors.Wrap(errors.PhaseAttach, errors.KindIO, err, "resize segment")
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, errors.Wrap(errors.PhaseAttach, errors.KindIO, err, "map segment")
	}

	a := newArena(mem, name, func() error {
		return multierr.Combine(unix.Munmap(mem), file.Close())
	})
	a.owner = true
	a.hdr.format(uint64(size), uuid.New())
	return a, nil
}

// Open attaches to an existing named segment. Segments written with a
// different layout version are rejected.
func Open(name string) (*Arena, error) {
	path := SegmentPath(name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(errors.PhaseAttach, "segment", name)
		}
		return nil, errors.Wrap(errors.PhaseAttach, errors.KindIO, err, "open "+path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrap(errors.PhaseAttach, errors.KindIO, err, "stat segment")
	}
	size := info.Size()
	if size < HeaderSize || size > MaxSize {
		file.Close()
		return nil, errors.InvalidInput(errors.PhaseAttach, fmt.Sprintf("segment file has %d bytes", size))
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, errors.Wrap(errors.PhaseAttach, errors.KindIO, err, "map segment")
	}

	if err := validate(mem); err != nil {
		_ = multierr.Combine(unix.Munmap(mem), file.Close())
		return nil, err
	}

	return newArena(mem, name, func() error {
		return multierr.Combine(unix.Munmap(mem), file.Close())
	}), nil
}

// Remove deletes the named segment file. Existing mappings stay valid
// until they are closed.
func Remove(name string) error {
	if err := os.Remove(SegmentPath(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.PhaseAttach, errors.KindIO, err, "remove segment "+name)
	}
	return nil
}
