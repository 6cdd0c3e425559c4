package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/horus-rt/horus/internal/herr"
)

// PathFor builds the deterministic path for a named shared-memory object under
// category (e.g. "topics", "pod", "cuda", "heartbeats") per the external
// filesystem layout in spec section 6. "/" in name maps to subdirectories.
func PathFor(category, name string) string {
	return filepath.Join(BaseDir(), category, name)
}

// Region is a page-aligned memory mapping shared by cooperating processes.
// OpenRegion writes and validates no header of its own; the packages built on
// it (pod, tensorpool, heartbeat) write and check their own magic fields.
type Region struct {
	Provider Provider
	OwnerPID uint32
	path     string
}

// OpenRegionOpts configures OpenRegion.
type OpenRegionOpts struct {
	Path        string
	Size        uint32
	Create      bool
	Exec        bool
	UseProvider Provider // if non-nil, bypass the filesystem (unit tests)
}

// OpenRegion creates or attaches a region. Attaching with a size smaller than
// the existing mapping fails; a larger size extends it.
func OpenRegion(opts OpenRegionOpts) (*Region, error) {
	if opts.Size == 0 {
		return nil, herr.ConfigErr("shm.OpenRegion", "size must be non-zero")
	}
	if opts.UseProvider != nil {
		return &Region{Provider: opts.UseProvider, OwnerPID: uint32(os.Getpid()), path: opts.Path}, nil
	}

	np, err := Open(Options{
		Path:   opts.Path,
		Size:   opts.Size,
		Create: opts.Create,
		Exec:   opts.Exec,
	})
	if err != nil {
		return nil, herr.IoErr("shm.OpenRegion", err)
	}
	return &Region{Provider: np, OwnerPID: uint32(os.Getpid()), path: opts.Path}, nil
}

// Close unmaps the region's backing store.
func (r *Region) Close() error {
	return r.Provider.Close()
}

// IsProcessAlive reports whether pid refers to a currently running process, by
// sending the null signal per POSIX convention.
func IsProcessAlive(pid uint32) bool {
	if pid == 0 {
		return false
	}
	return unix.Kill(int(pid), 0) == nil
}

// RemoveStaleFile deletes the backing file at path if the owning PID recorded in
// it is no longer alive. Used by the repair routine referenced in spec 4.1: "A
// repair routine removes regions whose last writer PID is dead."
func RemoveStaleFile(path string, ownerPID uint32) error {
	if IsProcessAlive(ownerPID) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shm: remove stale region %s: %w", path, err)
	}
	return nil
}
