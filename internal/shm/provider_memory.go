package shm

import (
	"sync/atomic"
	"unsafe"
)

// MemoryProvider stores region data in a local byte slice. It implements the
// same Provider contract as the mmap-backed provider so region/POD/tensor-pool
// logic can be unit tested without touching the filesystem.
type MemoryProvider struct {
	data []byte
}

// NewMemoryProvider creates an in-memory provider of the requested size.
func NewMemoryProvider(size uint32) *MemoryProvider {
	return &MemoryProvider{data: make([]byte, size)}
}

func (m *MemoryProvider) Size() uint32 { return uint32(len(m.data)) }

func (m *MemoryProvider) ReadAt(offset uint32, dest []byte) error {
	if uint64(offset)+uint64(len(dest)) > uint64(len(m.data)) {
		return ErrOutOfBounds
	}
	copy(dest, m.data[offset:offset+uint32(len(dest))])
	return nil
}

func (m *MemoryProvider) WriteAt(offset uint32, src []byte) error {
	if uint64(offset)+uint64(len(src)) > uint64(len(m.data)) {
		return ErrOutOfBounds
	}
	copy(m.data[offset:offset+uint32(len(src))], src)
	return nil
}

func (m *MemoryProvider) ptr32At(offset uint32) (unsafe.Pointer, error) {
	if offset+4 > uint32(len(m.data)) {
		return nil, ErrOutOfBounds
	}
	if offset%4 != 0 {
		return nil, ErrMisaligned
	}
	return unsafe.Pointer(&m.data[offset]), nil
}

func (m *MemoryProvider) ptr64At(offset uint32) (unsafe.Pointer, error) {
	if offset+8 > uint32(len(m.data)) {
		return nil, ErrOutOfBounds
	}
	if offset%8 != 0 {
		return nil, ErrMisaligned
	}
	return unsafe.Pointer(&m.data[offset]), nil
}

func (m *MemoryProvider) AtomicLoad32(offset uint32) (uint32, error) {
	p, err := m.ptr32At(offset)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32((*uint32)(p)), nil
}

func (m *MemoryProvider) AtomicStore32(offset uint32, val uint32) error {
	p, err := m.ptr32At(offset)
	if err != nil {
		return err
	}
	atomic.StoreUint32((*uint32)(p), val)
	return nil
}

func (m *MemoryProvider) AtomicAdd32(offset uint32, delta uint32) (uint32, error) {
	p, err := m.ptr32At(offset)
	if err != nil {
		return 0, err
	}
	return atomic.AddUint32((*uint32)(p), delta), nil
}

func (m *MemoryProvider) AtomicCAS32(offset uint32, old, new uint32) (bool, error) {
	p, err := m.ptr32At(offset)
	if err != nil {
		return false, err
	}
	return atomic.CompareAndSwapUint32((*uint32)(p), old, new), nil
}

func (m *MemoryProvider) AtomicLoad64(offset uint32) (uint64, error) {
	p, err := m.ptr64At(offset)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint64((*uint64)(p)), nil
}

func (m *MemoryProvider) AtomicStore64(offset uint32, val uint64) error {
	p, err := m.ptr64At(offset)
	if err != nil {
		return err
	}
	atomic.StoreUint64((*uint64)(p), val)
	return nil
}

func (m *MemoryProvider) AtomicAdd64(offset uint32, delta uint64) (uint64, error) {
	p, err := m.ptr64At(offset)
	if err != nil {
		return 0, err
	}
	return atomic.AddUint64((*uint64)(p), delta), nil
}

func (m *MemoryProvider) AtomicCAS64(offset uint32, old, new uint64) (bool, error) {
	p, err := m.ptr64At(offset)
	if err != nil {
		return false, err
	}
	return atomic.CompareAndSwapUint64((*uint64)(p), old, new), nil
}

func (m *MemoryProvider) Close() error {
	m.data = nil
	return nil
}
