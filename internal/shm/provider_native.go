//go:build !js

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// NativeProvider maps an OS-backed shared-memory file with mmap, giving all
// processes that open the same path a view onto the same physical pages.
type NativeProvider struct {
	file *os.File
	data []byte
}

// Options configure the creation or attachment of a native shared-memory
// mapping.
type Options struct {
	// Path is the filesystem path backing the mapping (usually under BaseDir()).
	Path string
	// Size is the mapping size in bytes. On attach, a size smaller than the
	// existing file is rejected; a larger size extends the backing file.
	Size uint32
	// Create allows creating the file if it does not already exist.
	Create bool
	// Exec requests an executable mapping (PROT_EXEC), used only by the JIT
	// compiler's code pages.
	Exec bool
}

// BaseDir returns the root directory for HORUS shared-memory objects: the
// HORUS_SHM_DIR environment variable if set, else /dev/shm if present, else the
// OS temp directory.
func BaseDir() string {
	if v := os.Getenv("HORUS_SHM_DIR"); v != "" {
		return v
	}
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Open creates or attaches a native shared-memory mapping per opts.
func Open(opts Options) (*NativeProvider, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("shm: mkdir: %w", err)
	}

	flags := os.O_RDWR
	if opts.Create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(opts.Path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", opts.Path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: stat: %w", err)
	}
	if info.Size() < int64(opts.Size) {
		if err := f.Truncate(int64(opts.Size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("shm: truncate: %w", err)
		}
	}
	mapSize := opts.Size
	if uint64(info.Size()) > uint64(mapSize) {
		mapSize = uint32(info.Size())
	}

	prot := unix.PROT_READ | unix.PROT_WRITE
	if opts.Exec {
		prot |= unix.PROT_EXEC
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(mapSize), prot, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}

	return &NativeProvider{file: f, data: data}, nil
}

func (p *NativeProvider) Size() uint32 { return uint32(len(p.data)) }

func (p *NativeProvider) ReadAt(offset uint32, dest []byte) error {
	if uint64(offset)+uint64(len(dest)) > uint64(len(p.data)) {
		return ErrOutOfBounds
	}
	copy(dest, p.data[offset:offset+uint32(len(dest))])
	return nil
}

func (p *NativeProvider) WriteAt(offset uint32, src []byte) error {
	if uint64(offset)+uint64(len(src)) > uint64(len(p.data)) {
		return ErrOutOfBounds
	}
	copy(p.data[offset:offset+uint32(len(src))], src)
	return nil
}

func (p *NativeProvider) ptr32At(offset uint32) (unsafe.Pointer, error) {
	if offset+4 > uint32(len(p.data)) {
		return nil, ErrOutOfBounds
	}
	if offset%4 != 0 {
		return nil, ErrMisaligned
	}
	return unsafe.Pointer(&p.data[offset]), nil
}

func (p *NativeProvider) ptr64At(offset uint32) (unsafe.Pointer, error) {
	if offset+8 > uint32(len(p.data)) {
		return nil, ErrOutOfBounds
	}
	if offset%8 != 0 {
		return nil, ErrMisaligned
	}
	return unsafe.Pointer(&p.data[offset]), nil
}

func (p *NativeProvider) AtomicLoad32(offset uint32) (uint32, error) {
	ptr, err := p.ptr32At(offset)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32((*uint32)(ptr)), nil
}

func (p *NativeProvider) AtomicStore32(offset uint32, val uint32) error {
	ptr, err := p.ptr32At(offset)
	if err != nil {
		return err
	}
	atomic.StoreUint32((*uint32)(ptr), val)
	return nil
}

func (p *NativeProvider) AtomicAdd32(offset uint32, delta uint32) (uint32, error) {
	ptr, err := p.ptr32At(offset)
	if err != nil {
		return 0, err
	}
	return atomic.AddUint32((*uint32)(ptr), delta), nil
}

func (p *NativeProvider) AtomicCAS32(offset uint32, old, new uint32) (bool, error) {
	ptr, err := p.ptr32At(offset)
	if err != nil {
		return false, err
	}
	return atomic.CompareAndSwapUint32((*uint32)(ptr), old, new), nil
}

func (p *NativeProvider) AtomicLoad64(offset uint32) (uint64, error) {
	ptr, err := p.ptr64At(offset)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint64((*uint64)(ptr)), nil
}

func (p *NativeProvider) AtomicStore64(offset uint32, val uint64) error {
	ptr, err := p.ptr64At(offset)
	if err != nil {
		return err
	}
	atomic.StoreUint64((*uint64)(ptr), val)
	return nil
}

func (p *NativeProvider) AtomicAdd64(offset uint32, delta uint64) (uint64, error) {
	ptr, err := p.ptr64At(offset)
	if err != nil {
		return 0, err
	}
	return atomic.AddUint64((*uint64)(ptr), delta), nil
}

func (p *NativeProvider) AtomicCAS64(offset uint32, old, new uint64) (bool, error) {
	ptr, err := p.ptr64At(offset)
	if err != nil {
		return false, err
	}
	return atomic.CompareAndSwapUint64((*uint64)(ptr), old, new), nil
}

// Close unmaps the region and closes the backing file descriptor.
func (p *NativeProvider) Close() error {
	if p.data != nil {
		if err := unix.Munmap(p.data); err != nil {
			return err
		}
		p.data = nil
	}
	return p.file.Close()
}
