// Package shm implements the shared-memory region service (spec 4.1): named,
// page-aligned memory mappings with header-based magic/version validation and
// process-exit lifetime.
package shm

import "errors"

// ErrOutOfBounds is returned when an access would read or write past the end of
// the backing buffer.
var ErrOutOfBounds = errors.New("shm: access out of bounds")

// ErrMisaligned is returned when an atomic access offset is not a multiple of
// the access width.
var ErrMisaligned = errors.New("shm: misaligned atomic access")

// Provider abstracts the backing store for a shared-memory region so the region
// header/payload logic can run unmodified against a real mmap, an in-memory test
// buffer, or (eventually) a platform-specific backend.
type Provider interface {
	Size() uint32
	ReadAt(offset uint32, dest []byte) error
	WriteAt(offset uint32, src []byte) error
	AtomicLoad32(offset uint32) (uint32, error)
	AtomicStore32(offset uint32, val uint32) error
	AtomicAdd32(offset uint32, delta uint32) (uint32, error)
	AtomicLoad64(offset uint32) (uint64, error)
	AtomicStore64(offset uint32, val uint64) error
	AtomicAdd64(offset uint32, delta uint64) (uint64, error)
	AtomicCAS32(offset uint32, old, new uint32) (bool, error)
	AtomicCAS64(offset uint32, old, new uint64) (bool, error)
	Close() error
}
