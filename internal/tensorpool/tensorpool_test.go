package tensorpool

import (
	"testing"

	"github.com/horus-rt/horus/internal/shm"
)

func newTestPool(t *testing.T, maxSlots uint32) *Pool {
	t.Helper()
	size := HeaderSize + maxSlots*SlotSize
	provider := shm.NewMemoryProvider(size)
	pool, err := Open(Options{PoolID: 1, DeviceID: 0, MaxSlots: maxSlots, Provider: provider})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return pool
}

func TestAllocReleaseRoundTrip(t *testing.T) {
	pool := newTestPool(t, 4)

	ref, err := pool.Alloc([]uint64{2, 3}, DtypeF32)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if ref.Numel != 6 {
		t.Fatalf("Numel = %d, want 6", ref.Numel)
	}
	if ref.Generation == 0 {
		t.Fatal("expected non-zero generation after first allocation")
	}

	stats := pool.Stats()
	if stats.AllocatedSlots != 1 {
		t.Fatalf("AllocatedSlots = %d, want 1", stats.AllocatedSlots)
	}

	if err := pool.Release(ref); err != nil {
		t.Fatalf("Release: %v", err)
	}
	stats = pool.Stats()
	if stats.AllocatedSlots != 0 {
		t.Fatalf("AllocatedSlots after release = %d, want 0", stats.AllocatedSlots)
	}

	// The slot should be reusable.
	ref2, err := pool.Alloc([]uint64{4}, DtypeI32)
	if err != nil {
		t.Fatalf("Alloc after release: %v", err)
	}
	if ref2.SlotID != ref.SlotID {
		t.Fatalf("expected slot reuse, got slot %d want %d", ref2.SlotID, ref.SlotID)
	}
	if ref2.Generation <= ref.Generation {
		t.Fatalf("generation did not advance on reuse: %d -> %d", ref.Generation, ref2.Generation)
	}
}

func TestExhaustion(t *testing.T) {
	pool := newTestPool(t, 2)

	if _, err := pool.Alloc([]uint64{1}, DtypeF32); err != nil {
		t.Fatalf("Alloc 1: %v", err)
	}
	if _, err := pool.Alloc([]uint64{1}, DtypeF32); err != nil {
		t.Fatalf("Alloc 2: %v", err)
	}
	if _, err := pool.Alloc([]uint64{1}, DtypeF32); err == nil {
		t.Fatal("expected Exhausted error on third allocation")
	}
}

func TestStaleGenerationRejected(t *testing.T) {
	pool := newTestPool(t, 2)

	ref, err := pool.Alloc([]uint64{1}, DtypeF32)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := pool.Release(ref); err != nil {
		t.Fatalf("Release: %v", err)
	}
	// Reallocating the freed slot advances its generation past ref's.
	if _, err := pool.Alloc([]uint64{1}, DtypeF32); err != nil {
		t.Fatalf("Alloc after release: %v", err)
	}

	// ref is now stale: releasing or retaining it again must be a silent no-op,
	// never touching a slot that may have been reallocated.
	if err := pool.Release(ref); err != nil {
		t.Fatalf("stale Release should be a no-op, got error: %v", err)
	}
	if err := pool.Retain(ref); err != nil {
		t.Fatalf("stale Retain should be a no-op, got error: %v", err)
	}
	if _, ok := pool.DevicePtr(ref); ok {
		t.Fatal("DevicePtr should reject a stale generation")
	}
}

func TestRetainKeepsSlotAlive(t *testing.T) {
	pool := newTestPool(t, 2)

	ref, err := pool.Alloc([]uint64{1}, DtypeF32)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := pool.Retain(ref); err != nil {
		t.Fatalf("Retain: %v", err)
	}
	// refcount is now 2; one Release must not free the slot.
	if err := pool.Release(ref); err != nil {
		t.Fatalf("Release 1: %v", err)
	}
	if pool.Stats().AllocatedSlots != 1 {
		t.Fatal("slot freed after only one of two releases")
	}
	if err := pool.Release(ref); err != nil {
		t.Fatalf("Release 2: %v", err)
	}
	if pool.Stats().AllocatedSlots != 0 {
		t.Fatal("slot not freed after matching releases")
	}
}
