// Package heartbeat implements the fixed-layout liveness record (spec
// section 3/6): one shared-memory region per node under "heartbeats/",
// written by the owning node on every tick and read by any process without
// coordination, fresh iff updated within a bounded window.
package heartbeat

import (
	"time"

	"github.com/horus-rt/horus/internal/herr"
	"github.com/horus-rt/horus/internal/shm"
)

// Header layout (packed, 64-byte aligned), per spec section 6:
//
//	{state_tag, health_tag, tick_count, error_count, actual_rate_hz, last_update_unix_us}
const (
	Magic uint64 = 0x484F525553484254 // "HORUSHBT"

	offMagic        uint32 = 0
	offStateTag     uint32 = 8
	offHealthTag    uint32 = 12
	offTickCount    uint32 = 16
	offErrorCount   uint32 = 24
	offActualRateHz uint32 = 32
	offLastUpdateUs uint32 = 40
	HeaderSize      uint32 = 64

	// DefaultFreshnessWindow is the "~60 s" staleness bound from spec section 3.
	DefaultFreshnessWindow = 60 * time.Second
)

// State mirrors the node lifecycle states that are externally visible via a
// heartbeat; it is a narrower, stable-wire-format twin of scheduler.State so
// this package has no import dependency on internal/scheduler.
type State uint32

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StatePaused
	StateStopping
	StateStopped
	StateError
	StateCrashed
)

// Health is a coarse liveness classification independent of State: a node can
// be Running yet Degraded (elevated error rate, missed deadlines).
type Health uint32

const (
	HealthHealthy Health = iota
	HealthDegraded
	HealthUnhealthy
)

// Beacon is one node's open heartbeat region.
type Beacon struct {
	region *shm.Region
}

// Open creates or attaches the named node's heartbeat region.
func Open(nodeName string) (*Beacon, error) {
	region, err := shm.OpenRegion(shm.OpenRegionOpts{
		Path:   shm.PathFor("heartbeats", nodeName),
		Size:   HeaderSize,
		Create: true,
	})
	if err != nil {
		return nil, err
	}
	if err := region.Provider.AtomicStore64(offMagic, Magic); err != nil {
		region.Close()
		return nil, herr.IoErr("heartbeat.Open", err)
	}
	return &Beacon{region: region}, nil
}

// OpenWithProvider wires a beacon directly onto a caller-supplied provider,
// bypassing the filesystem (unit tests).
func OpenWithProvider(p shm.Provider) (*Beacon, error) {
	if err := p.AtomicStore64(offMagic, Magic); err != nil {
		return nil, herr.IoErr("heartbeat.OpenWithProvider", err)
	}
	return &Beacon{region: &shm.Region{Provider: p}}, nil
}

// Close releases the beacon's backing region without clearing its content:
// the last-written record remains for readers until the owning PID is
// recognized dead and the region is reclaimed.
func (b *Beacon) Close() error { return b.region.Close() }

// Beat writes one heartbeat record. rateHz is the node's measured tick rate
// over a recent window, supplied by the caller (scheduler or node).
func (b *Beacon) Beat(state State, health Health, tickCount, errorCount uint64, rateHz float64) error {
	p := b.region.Provider
	if err := p.AtomicStore32(offStateTag, uint32(state)); err != nil {
		return herr.IoErr("heartbeat.Beat", err)
	}
	if err := p.AtomicStore32(offHealthTag, uint32(health)); err != nil {
		return herr.IoErr("heartbeat.Beat", err)
	}
	if err := p.AtomicStore64(offTickCount, tickCount); err != nil {
		return herr.IoErr("heartbeat.Beat", err)
	}
	if err := p.AtomicStore64(offErrorCount, errorCount); err != nil {
		return herr.IoErr("heartbeat.Beat", err)
	}
	if err := p.AtomicStore64(offActualRateHz, uint64(rateHz*1000)); err != nil { // fixed-point, 3 decimal places
		return herr.IoErr("heartbeat.Beat", err)
	}
	if err := p.AtomicStore64(offLastUpdateUs, uint64(time.Now().UnixMicro())); err != nil {
		return herr.IoErr("heartbeat.Beat", err)
	}
	return nil
}

// Record is a snapshot read from a Beacon, for a reader process.
type Record struct {
	State        State
	Health       Health
	TickCount    uint64
	ErrorCount   uint64
	ActualRateHz float64
	LastUpdateUs uint64
}

// Read snapshots the current record.
func (b *Beacon) Read() (Record, error) {
	p := b.region.Provider
	var rec Record

	existingMagic, err := p.AtomicLoad64(offMagic)
	if err != nil {
		return rec, herr.IoErr("heartbeat.Read", err)
	}
	if existingMagic != Magic {
		return rec, herr.MismatchErr("heartbeat.Read", "magic", Magic, existingMagic)
	}

	stateTag, err := p.AtomicLoad32(offStateTag)
	if err != nil {
		return rec, herr.IoErr("heartbeat.Read", err)
	}
	healthTag, err := p.AtomicLoad32(offHealthTag)
	if err != nil {
		return rec, herr.IoErr("heartbeat.Read", err)
	}
	tickCount, err := p.AtomicLoad64(offTickCount)
	if err != nil {
		return rec, herr.IoErr("heartbeat.Read", err)
	}
	errorCount, err := p.AtomicLoad64(offErrorCount)
	if err != nil {
		return rec, herr.IoErr("heartbeat.Read", err)
	}
	rateFixed, err := p.AtomicLoad64(offActualRateHz)
	if err != nil {
		return rec, herr.IoErr("heartbeat.Read", err)
	}
	lastUpdateUs, err := p.AtomicLoad64(offLastUpdateUs)
	if err != nil {
		return rec, herr.IoErr("heartbeat.Read", err)
	}

	rec.State = State(stateTag)
	rec.Health = Health(healthTag)
	rec.TickCount = tickCount
	rec.ErrorCount = errorCount
	rec.ActualRateHz = float64(rateFixed) / 1000
	rec.LastUpdateUs = lastUpdateUs
	return rec, nil
}

// IsFresh reports whether rec was written within window of now.
func (rec Record) IsFresh(now time.Time, window time.Duration) bool {
	age := now.UnixMicro() - int64(rec.LastUpdateUs)
	return age >= 0 && time.Duration(age)*time.Microsecond <= window
}
