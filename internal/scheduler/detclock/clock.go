// Package detclock implements the deterministic clock (spec 4.5): a virtual
// time source and seeded PRNG whose output sequence depends only on call
// order, never wall-clock time, so replays reproduce byte-identical results.
package detclock

import (
	"sync/atomic"
	"time"
)

// Config configures a Clock.
type Config struct {
	// Seed initializes the PRNG and is restored by Reset.
	Seed uint64
	// VirtualTime runs the clock on a synthetic counter advanced only by
	// AdvanceTick, ignoring the wall clock entirely.
	VirtualTime bool
	// TickDurationNs is added to the virtual-time counter on each AdvanceTick
	// when VirtualTime is set.
	TickDurationNs uint64
}

// DefaultConfig mirrors the scheduler's default tick cadence: 1ms ticks,
// virtual time on, a fixed seed.
func DefaultConfig() Config {
	return Config{
		Seed:           42,
		VirtualTime:    true,
		TickDurationNs: 1_000_000,
	}
}

// Clock provides now_ns, tick, advance_tick, set_tick, random_u64, random_f64,
// and reset, per spec 4.5. All fields are accessed only through atomics so a
// Clock may be shared across goroutines without a lock.
type Clock struct {
	virtualTimeNs  atomic.Uint64
	tick           atomic.Uint64
	rngState       atomic.Uint64
	tickDurationNs uint64
	virtualTime    bool
	seed           uint64
	realStart      time.Time
}

// New creates a Clock from cfg.
func New(cfg Config) *Clock {
	c := &Clock{
		tickDurationNs: cfg.TickDurationNs,
		virtualTime:    cfg.VirtualTime,
		seed:           cfg.Seed,
		realStart:      time.Now(),
	}
	c.rngState.Store(cfg.Seed)
	return c
}

// NowNs returns the current time in nanoseconds: the virtual-time counter in
// virtual mode, or wall-clock elapsed time since the clock was created.
func (c *Clock) NowNs() uint64 {
	if c.virtualTime {
		return c.virtualTimeNs.Load()
	}
	return uint64(time.Since(c.realStart).Nanoseconds())
}

// Tick returns the current tick number.
func (c *Clock) Tick() uint64 {
	return c.tick.Load()
}

// AdvanceTick increments the tick counter and, in virtual mode, adds the
// configured tick duration to the virtual-time counter. Returns the new tick
// number.
func (c *Clock) AdvanceTick() uint64 {
	newTick := c.tick.Add(1)
	if c.virtualTime {
		c.virtualTimeNs.Add(c.tickDurationNs)
	}
	return newTick
}

// SetTick jumps directly to tick, recomputing virtual time from it. Used by
// the replayer to seek.
func (c *Clock) SetTick(tick uint64) {
	c.tick.Store(tick)
	if c.virtualTime {
		c.virtualTimeNs.Store(tick * c.tickDurationNs)
	}
}

// RandomU64 draws the next value from the xorshift64 sequence. The shift
// amounts (13, 7, 17) are fixed: changing them would change every replay's
// output and break byte-identical reproduction against existing recordings.
func (c *Clock) RandomU64() uint64 {
	state := c.rngState.Load()
	state ^= state << 13
	state ^= state >> 7
	state ^= state << 17
	c.rngState.Store(state)
	return state
}

// RandomF64 returns a deterministic draw in [0, 1]: the next RandomU64 value
// divided by the largest uint64, so the largest draws round to exactly 1.0.
func (c *Clock) RandomF64() float64 {
	return float64(c.RandomU64()) / float64(^uint64(0))
}

// Reset restores tick, virtual time, and RNG state to their initial values.
func (c *Clock) Reset() {
	c.tick.Store(0)
	c.virtualTimeNs.Store(0)
	c.rngState.Store(c.seed)
}

// Seed returns the seed the clock was constructed with.
func (c *Clock) Seed() uint64 {
	return c.seed
}
