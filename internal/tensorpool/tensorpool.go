// Package tensorpool implements the tensor pool (spec 4.3): a CAS-based slot
// table of tensor descriptors shared across processes, with GPU allocations
// plumbed through inter-process IPC handles when a device backend is present.
package tensorpool

import (
	"github.com/horus-rt/horus/internal/herr"
	"github.com/horus-rt/horus/internal/shm"
)

// MaxDims bounds the shape array carried in each slot and in TensorRef.
const MaxDims = 8

// IPCHandleSize is the fixed width reserved for a device IPC handle, mirroring
// a CUDA IPC memory handle's 64-byte wire size.
const IPCHandleSize = 64

// Slot states.
const (
	SlotFree      uint32 = 0
	SlotAllocated uint32 = 1
)

// Pool header layout, 64-byte aligned, per spec section 6:
//
//	{magic: u64, version: u32, pool_id: u32, device_id: u32, max_slots: u32,
//	 allocated_count: atomic u32, reserved}
const (
	Magic   uint64 = 0x484F525553435544 // "HORUSCUD"
	Version uint32 = 1

	offMagic          uint32 = 0
	offVersion        uint32 = 8
	offPoolID         uint32 = 12
	offDeviceID       uint32 = 16
	offMaxSlots       uint32 = 20
	offAllocatedCount uint32 = 24
	HeaderSize        uint32 = 64
)

// Slot layout, >=256 bytes each, per spec section 6:
//
//	{ipc_handle_bytes, device_ptr: atomic u64, size, numel, shape[N], ndim,
//	 dtype, state: atomic u32, refcount: atomic u32, generation: atomic u32,
//	 reserved}
const (
	slotOffIPCHandle uint32 = 0
	slotOffDevicePtr uint32 = IPCHandleSize
	slotOffSize      uint32 = slotOffDevicePtr + 8
	slotOffNumel     uint32 = slotOffSize + 8
	slotOffShape     uint32 = slotOffNumel + 8
	// ndim and dtype are packed into one 4-byte word (ndim in the low byte,
	// dtype in the next) so every field after the shape array stays
	// 4-byte-aligned for atomic access.
	slotOffNdimDtype  uint32 = slotOffShape + 8*MaxDims
	slotOffState      uint32 = slotOffNdimDtype + 4
	slotOffRefcount   uint32 = slotOffState + 4
	slotOffGeneration uint32 = slotOffRefcount + 4
	SlotSize          uint32 = 256
)

// Dtype enumerates the tensor element types a pool can describe.
type Dtype uint8

const (
	DtypeF32 Dtype = iota
	DtypeF64
	DtypeI32
	DtypeI64
	DtypeU8
	DtypeBool
)

// Device abstracts the GPU backend used by a pool.
type Device interface {
	Available() bool
	SetDevice(id int) error
	Malloc(size uint64) (devicePtr uint64, err error)
	Free(devicePtr uint64) error
	IPCGetHandle(devicePtr uint64) ([]byte, error)
	IPCOpenHandle(handle []byte) (devicePtr uint64, err error)
	IPCCloseHandle(devicePtr uint64) error
}

// AbsentDevice is the build-time default when no GPU backend is compiled in:
// every operation surfaces NotAvailable, per spec 4.3.
type AbsentDevice struct{}

func (AbsentDevice) Available() bool { return false }
func (AbsentDevice) SetDevice(int) error {
	return herr.NotAvailableErr("tensorpool.SetDevice", "GPU device backend")
}
func (AbsentDevice) Malloc(uint64) (uint64, error) {
	return 0, herr.NotAvailableErr("tensorpool.Malloc", "GPU device backend")
}
func (AbsentDevice) Free(uint64) error {
	return herr.NotAvailableErr("tensorpool.Free", "GPU device backend")
}
func (AbsentDevice) IPCGetHandle(uint64) ([]byte, error) {
	return nil, herr.NotAvailableErr("tensorpool.IPCGetHandle", "GPU device backend")
}
func (AbsentDevice) IPCOpenHandle([]byte) (uint64, error) {
	return 0, herr.NotAvailableErr("tensorpool.IPCOpenHandle", "GPU device backend")
}
func (AbsentDevice) IPCCloseHandle(uint64) error {
	return herr.NotAvailableErr("tensorpool.IPCCloseHandle", "GPU device backend")
}

// TensorRef is an opaque handle returned by Alloc/Import; callers pass it back
// into Release/Retain/DevicePtr. A SlotID of ImportedSlot marks a tensor
// imported via IPC rather than owned by this pool's slot table.
type TensorRef struct {
	PoolID     uint32
	SlotID     uint32
	Generation uint32
	Size       uint64
	Numel      uint64
	Shape      [MaxDims]uint64
	Ndim       uint8
	Dtype      Dtype
	IPCHandle  [IPCHandleSize]byte
}

// ImportedSlot marks a TensorRef obtained via Import rather than Alloc.
const ImportedSlot uint32 = 0xFFFFFFFF

// Pool is an open tensor pool: a fixed slot table in a shared-memory region,
// backed by a Device for GPU-resident pools or AbsentDevice for CPU-only use.
type Pool struct {
	region   *shm.Region
	device   Device
	poolID   uint32
	deviceID uint32
	maxSlots uint32
}

// Options configures Open.
type Options struct {
	PoolID   uint32
	DeviceID uint32
	MaxSlots uint32
	Device   Device       // nil defaults to AbsentDevice
	Provider shm.Provider // if non-nil, bypass the filesystem (unit tests)
}

// Open creates or attaches a tensor pool. The first opener initializes the
// header and marks every slot FREE; later openers validate an exact
// magic/version match.
func Open(opts Options) (*Pool, error) {
	if opts.MaxSlots == 0 {
		opts.MaxSlots = 256
	}
	if opts.Device == nil {
		opts.Device = AbsentDevice{}
	}

	name := pathName(opts.PoolID, opts.DeviceID)
	totalSize := HeaderSize + opts.MaxSlots*SlotSize
	region, err := shm.OpenRegion(shm.OpenRegionOpts{
		Path:        shm.PathFor("cuda", name),
		Size:        totalSize,
		Create:      true,
		UseProvider: opts.Provider,
	})
	if err != nil {
		return nil, err
	}

	pool := &Pool{region: region, device: opts.Device, poolID: opts.PoolID, deviceID: opts.DeviceID, maxSlots: opts.MaxSlots}

	existingMagic, _ := region.Provider.AtomicLoad64(offMagic)
	if existingMagic == 0 {
		if err := pool.initHeader(); err != nil {
			region.Close()
			return nil, err
		}
		return pool, nil
	}

	if existingMagic != Magic {
		region.Close()
		return nil, herr.MismatchErr("tensorpool.Open", "magic", Magic, existingMagic)
	}
	existingVersion, _ := region.Provider.AtomicLoad32(offVersion)
	if existingVersion != Version {
		region.Close()
		return nil, herr.MismatchErr("tensorpool.Open", "version", Version, existingVersion)
	}
	existingMaxSlots, _ := region.Provider.AtomicLoad32(offMaxSlots)
	pool.maxSlots = existingMaxSlots

	return pool, nil
}

func pathName(poolID, deviceID uint32) string {
	return "cuda_pool_" + itoa(poolID) + "_" + itoa(deviceID)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func (p *Pool) initHeader() error {
	prov := p.region.Provider
	if err := prov.AtomicStore32(offVersion, Version); err != nil {
		return herr.IoErr("tensorpool.initHeader", err)
	}
	if err := prov.AtomicStore32(offPoolID, p.poolID); err != nil {
		return herr.IoErr("tensorpool.initHeader", err)
	}
	if err := prov.AtomicStore32(offDeviceID, p.deviceID); err != nil {
		return herr.IoErr("tensorpool.initHeader", err)
	}
	if err := prov.AtomicStore32(offMaxSlots, p.maxSlots); err != nil {
		return herr.IoErr("tensorpool.initHeader", err)
	}
	if err := prov.AtomicStore32(offAllocatedCount, 0); err != nil {
		return herr.IoErr("tensorpool.initHeader", err)
	}
	for i := uint32(0); i < p.maxSlots; i++ {
		base := p.slotOffset(i)
		if err := prov.AtomicStore32(base+slotOffState, SlotFree); err != nil {
			return herr.IoErr("tensorpool.initHeader", err)
		}
		if err := prov.AtomicStore32(base+slotOffRefcount, 0); err != nil {
			return herr.IoErr("tensorpool.initHeader", err)
		}
		if err := prov.AtomicStore32(base+slotOffGeneration, 0); err != nil {
			return herr.IoErr("tensorpool.initHeader", err)
		}
	}
	// Magic written last so concurrent openers only see a fully-initialized
	// header once it is safe to read.
	if err := prov.AtomicStore64(offMagic, Magic); err != nil {
		return herr.IoErr("tensorpool.initHeader", err)
	}
	return nil
}

func (p *Pool) slotOffset(slotID uint32) uint32 {
	return HeaderSize + slotID*SlotSize
}

// Close detaches from the pool's backing region. It does not free slots; a
// pool's lifetime is process-exit, per spec 4.1.
func (p *Pool) Close() error {
	return p.region.Close()
}

// Stats reports the pool's capacity and current live-slot count.
type Stats struct {
	PoolID         uint32
	DeviceID       uint32
	MaxSlots       uint32
	AllocatedSlots uint32
}

func (p *Pool) Stats() Stats {
	count, _ := p.region.Provider.AtomicLoad32(offAllocatedCount)
	return Stats{PoolID: p.poolID, DeviceID: p.deviceID, MaxSlots: p.maxSlots, AllocatedSlots: count}
}

// Alloc scans the slot table for a FREE slot, wins it via CAS to ALLOCATED,
// performs the device allocation, and returns a TensorRef at generation+1
// with refcount 1.
func (p *Pool) Alloc(shape []uint64, dtype Dtype) (TensorRef, error) {
	var numel uint64 = 1
	for _, d := range shape {
		numel *= d
	}
	size := numel * elementSize(dtype)

	slotID, err := p.findFreeSlot()
	if err != nil {
		return TensorRef{}, err
	}

	prov := p.region.Provider
	base := p.slotOffset(slotID)

	var devicePtr uint64
	var ipcHandle [IPCHandleSize]byte
	if p.device.Available() {
		devicePtr, err = p.device.Malloc(size)
		if err != nil {
			prov.AtomicStore32(base+slotOffState, SlotFree)
			return TensorRef{}, herr.Wrap(herr.Io, "tensorpool.Alloc", "device malloc failed", err)
		}
		handle, err := p.device.IPCGetHandle(devicePtr)
		if err != nil {
			p.device.Free(devicePtr)
			prov.AtomicStore32(base+slotOffState, SlotFree)
			return TensorRef{}, herr.Wrap(herr.Io, "tensorpool.Alloc", "ipc handle failed", err)
		}
		copy(ipcHandle[:], handle)
	}

	prov.AtomicStore64(base+slotOffDevicePtr, devicePtr)
	prov.AtomicStore64(base+slotOffSize, size)
	prov.AtomicStore64(base+slotOffNumel, numel)
	prov.AtomicStore32(base+slotOffNdimDtype, uint32(len(shape))|uint32(dtype)<<8)

	var shapeArr [MaxDims]uint64
	for i, d := range shape {
		if i >= MaxDims {
			break
		}
		shapeArr[i] = d
		prov.AtomicStore64(base+slotOffShape+uint32(i)*8, d)
	}

	generation, err := prov.AtomicAdd32(base+slotOffGeneration, 1)
	if err != nil {
		return TensorRef{}, herr.IoErr("tensorpool.Alloc", err)
	}
	prov.AtomicStore32(base+slotOffRefcount, 1)
	prov.AtomicAdd32(offAllocatedCount, 1)

	ref := TensorRef{
		PoolID:     p.poolID,
		SlotID:     slotID,
		Generation: generation,
		Size:       size,
		Numel:      numel,
		Shape:      shapeArr,
		Ndim:       uint8(len(shape)),
		Dtype:      dtype,
		IPCHandle:  ipcHandle,
	}
	return ref, nil
}

func elementSize(dtype Dtype) uint64 {
	switch dtype {
	case DtypeF64, DtypeI64:
		return 8
	case DtypeF32, DtypeI32:
		return 4
	case DtypeU8, DtypeBool:
		return 1
	default:
		return 4
	}
}

func (p *Pool) findFreeSlot() (uint32, error) {
	prov := p.region.Provider
	for i := uint32(0); i < p.maxSlots; i++ {
		base := p.slotOffset(i)
		ok, err := prov.AtomicCAS32(base+slotOffState, SlotFree, SlotAllocated)
		if err != nil {
			return 0, herr.IoErr("tensorpool.findFreeSlot", err)
		}
		if ok {
			return i, nil
		}
	}
	return 0, herr.ExhaustedErr("tensorpool.Alloc", int(p.maxSlots))
}

// Release decrements the slot's refcount if ref.Generation matches the slot's
// current generation. On the 1->0 transition it frees the device allocation
// and returns the slot to FREE.
func (p *Pool) Release(ref TensorRef) error {
	if ref.PoolID != p.poolID || ref.SlotID == ImportedSlot {
		return nil
	}
	prov := p.region.Provider
	base := p.slotOffset(ref.SlotID)

	gen, err := prov.AtomicLoad32(base + slotOffGeneration)
	if err != nil {
		return herr.IoErr("tensorpool.Release", err)
	}
	if gen != ref.Generation {
		return nil // stale reference
	}

	// fetch-sub via two's-complement add(-1); AtomicAdd32 returns the value
	// after the decrement, so newRefcount == 0 means this call took it 1 -> 0.
	newRefcount, err := prov.AtomicAdd32(base+slotOffRefcount, ^uint32(0))
	if err != nil {
		return herr.IoErr("tensorpool.Release", err)
	}
	if newRefcount == 0 {
		if p.device.Available() {
			devicePtr, _ := prov.AtomicLoad64(base + slotOffDevicePtr)
			if devicePtr != 0 {
				if err := p.device.Free(devicePtr); err != nil {
					return herr.Wrap(herr.Io, "tensorpool.Release", "device free failed", err)
				}
			}
		}
		if err := prov.AtomicStore32(base+slotOffState, SlotFree); err != nil {
			return herr.IoErr("tensorpool.Release", err)
		}
		prov.AtomicAdd32(offAllocatedCount, ^uint32(0))
	}
	return nil
}

// Retain increments the slot's refcount, guarded by a generation check so a
// stale TensorRef cannot resurrect a recycled slot.
func (p *Pool) Retain(ref TensorRef) error {
	if ref.PoolID != p.poolID || ref.SlotID == ImportedSlot {
		return nil
	}
	prov := p.region.Provider
	base := p.slotOffset(ref.SlotID)
	gen, err := prov.AtomicLoad32(base + slotOffGeneration)
	if err != nil {
		return herr.IoErr("tensorpool.Retain", err)
	}
	if gen != ref.Generation {
		return nil
	}
	_, err = prov.AtomicAdd32(base+slotOffRefcount, 1)
	return err
}

// DevicePtr returns the slot's device pointer, or (0, false) if the
// generations disagree (the reference is stale).
func (p *Pool) DevicePtr(ref TensorRef) (uint64, bool) {
	if ref.PoolID != p.poolID || ref.SlotID == ImportedSlot {
		return 0, false
	}
	prov := p.region.Provider
	base := p.slotOffset(ref.SlotID)
	gen, err := prov.AtomicLoad32(base + slotOffGeneration)
	if err != nil || gen != ref.Generation {
		return 0, false
	}
	ptr, err := prov.AtomicLoad64(base + slotOffDevicePtr)
	if err != nil {
		return 0, false
	}
	return ptr, true
}

// Import opens a GPU-resident tensor from a remote process's IPC handle. The
// returned TensorRef has SlotID == ImportedSlot; callers must call
// CloseImport explicitly rather than Release.
func (p *Pool) Import(handleBytes []byte, shape []uint64, dtype Dtype) (uint64, TensorRef, error) {
	if len(handleBytes) != IPCHandleSize {
		return 0, TensorRef{}, herr.ValidationErr("tensorpool.Import", "invalid IPC handle size")
	}
	devicePtr, err := p.device.IPCOpenHandle(handleBytes)
	if err != nil {
		return 0, TensorRef{}, herr.Wrap(herr.Io, "tensorpool.Import", "ipc open failed", err)
	}

	var numel uint64 = 1
	for _, d := range shape {
		numel *= d
	}

	var shapeArr [MaxDims]uint64
	for i, d := range shape {
		if i >= MaxDims {
			break
		}
		shapeArr[i] = d
	}
	var handleArr [IPCHandleSize]byte
	copy(handleArr[:], handleBytes)

	ref := TensorRef{
		PoolID:     p.poolID,
		SlotID:     ImportedSlot,
		Generation: 0,
		Size:       numel * elementSize(dtype),
		Numel:      numel,
		Shape:      shapeArr,
		Ndim:       uint8(len(shape)),
		Dtype:      dtype,
		IPCHandle:  handleArr,
	}
	return devicePtr, ref, nil
}

// CloseImport releases an imported IPC mapping obtained via Import.
func (p *Pool) CloseImport(devicePtr uint64) error {
	return p.device.IPCCloseHandle(devicePtr)
}
