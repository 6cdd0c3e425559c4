package heartbeat

import (
	"testing"
	"time"

	"github.com/horus-rt/horus/internal/shm"
)

func newTestBeacon(t *testing.T) *Beacon {
	t.Helper()
	b, err := OpenWithProvider(shm.NewMemoryProvider(HeaderSize))
	if err != nil {
		t.Fatalf("OpenWithProvider: %v", err)
	}
	return b
}

func TestBeatThenReadRoundTrip(t *testing.T) {
	b := newTestBeacon(t)
	if err := b.Beat(StateRunning, HealthHealthy, 42, 3, 99.5); err != nil {
		t.Fatalf("Beat: %v", err)
	}
	rec, err := b.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.State != StateRunning || rec.Health != HealthHealthy {
		t.Fatalf("state/health = %v/%v, want Running/Healthy", rec.State, rec.Health)
	}
	if rec.TickCount != 42 || rec.ErrorCount != 3 {
		t.Fatalf("tick/error count = %d/%d, want 42/3", rec.TickCount, rec.ErrorCount)
	}
	if rec.ActualRateHz != 99.5 {
		t.Fatalf("actual rate = %v, want 99.5", rec.ActualRateHz)
	}
}

func TestFreshnessWindow(t *testing.T) {
	b := newTestBeacon(t)
	if err := b.Beat(StateRunning, HealthHealthy, 1, 0, 10); err != nil {
		t.Fatalf("Beat: %v", err)
	}
	rec, err := b.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	now := time.UnixMicro(int64(rec.LastUpdateUs)).Add(time.Second)
	if !rec.IsFresh(now, DefaultFreshnessWindow) {
		t.Fatal("a one-second-old heartbeat should be fresh under the default 60s window")
	}

	stale := time.UnixMicro(int64(rec.LastUpdateUs)).Add(2 * time.Minute)
	if rec.IsFresh(stale, DefaultFreshnessWindow) {
		t.Fatal("a two-minute-old heartbeat should not be fresh under the default 60s window")
	}
}

func TestReadRejectsWrongMagic(t *testing.T) {
	p := shm.NewMemoryProvider(HeaderSize)
	b := &Beacon{region: &shm.Region{Provider: p}}
	if _, err := b.Read(); err == nil {
		t.Fatal("Read on an un-initialized region should fail the magic check")
	}
}

func TestStateStringValues(t *testing.T) {
	// Sanity check the enum doesn't silently collide across iota blocks.
	states := map[State]bool{
		StateUninitialized: true, StateInitializing: true, StateRunning: true,
		StatePaused: true, StateStopping: true, StateStopped: true,
		StateError: true, StateCrashed: true,
	}
	if len(states) != 8 {
		t.Fatalf("expected 8 distinct state values, got %d", len(states))
	}
}
