// Package trace implements execution tracing and divergence detection (spec
// 4.6): an append-only log of per-node tick events, folded into a per-tick
// hash for cheap run-to-run comparison.
package trace

import (
	"encoding/gob"
	"hash/fnv"
	"os"
	"sync"
)

// EntryKind identifies what a trace entry records.
type EntryKind uint8

const (
	TickStart EntryKind = iota
	TickEnd
	Input
	Output
	StateChange
	Error
	Custom
)

// Entry is one recorded event: {tick, node_index, event_kind,
// virtual_timestamp, elapsed_ns, optional input hash, optional output hash},
// per spec section 3.
type Entry struct {
	Tick          uint64
	NodeIndex     int
	NodeName      string
	Kind          EntryKind
	VirtualTimeNs uint64
	ElapsedNs     uint64
	InputHash     uint64
	HasInputHash  bool
	OutputHash    uint64
	HasOutputHash bool
}

// Trace is an ordered sequence of entries plus the per-tick hashes folded
// from them, appended under a mutex held only for the append itself.
type Trace struct {
	mu         sync.Mutex
	entries    []Entry
	tickHashes []uint64
	TotalTicks uint64
}

// New creates an empty trace.
func New() *Trace {
	return &Trace{}
}

// Append adds an entry to the trace.
func (t *Trace) Append(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
}

// FinalizeTick folds every entry recorded for tick into a single 64-bit hash
// and appends it to the tick-hash array.
func (t *Trace) FinalizeTick(tick uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := fnv.New64a()
	var buf [32]byte
	for _, e := range t.entries {
		if e.Tick != tick {
			continue
		}
		putUint64(buf[0:8], e.Tick)
		putUint64(buf[8:16], uint64(e.NodeIndex))
		buf[16] = byte(e.Kind)
		if e.HasOutputHash {
			putUint64(buf[17:25], e.OutputHash)
			h.Write(buf[:25])
		} else {
			h.Write(buf[:17])
		}
	}
	t.tickHashes = append(t.tickHashes, h.Sum64())
	t.TotalTicks = tick + 1
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Entries returns a snapshot copy of all recorded entries.
func (t *Trace) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// TickHashes returns a snapshot copy of the per-tick hash array.
func (t *Trace) TickHashes() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, len(t.tickHashes))
	copy(out, t.tickHashes)
	return out
}

// Divergence describes where two traces' per-tick hash sequences first
// disagree.
type Divergence struct {
	Tick            uint64
	SelfHash        uint64
	OtherHash       uint64
	SelfEntryCount  int
	OtherEntryCount int
	Message         string
}

// Compare walks both traces' per-tick hash arrays in lockstep and reports the
// first index where they disagree, or where one trace has more ticks than
// the other.
func (t *Trace) Compare(other *Trace) *Divergence {
	selfHashes := t.TickHashes()
	otherHashes := other.TickHashes()
	selfEntries := t.Entries()
	otherEntries := other.Entries()

	minTicks := len(selfHashes)
	if len(otherHashes) < minTicks {
		minTicks = len(otherHashes)
	}

	for i := 0; i < minTicks; i++ {
		if selfHashes[i] != otherHashes[i] {
			tick := uint64(i)
			selfCount := countAtTick(selfEntries, tick)
			otherCount := countAtTick(otherEntries, tick)
			return &Divergence{
				Tick:            tick,
				SelfHash:        selfHashes[i],
				OtherHash:       otherHashes[i],
				SelfEntryCount:  selfCount,
				OtherEntryCount: otherCount,
				Message:         "tick hash mismatch",
			}
		}
	}

	if len(selfHashes) != len(otherHashes) {
		return &Divergence{
			Tick:            uint64(minTicks),
			SelfEntryCount:  len(selfHashes),
			OtherEntryCount: len(otherHashes),
			Message:         "different number of ticks recorded",
		}
	}

	return nil
}

func countAtTick(entries []Entry, tick uint64) int {
	n := 0
	for _, e := range entries {
		if e.Tick == tick {
			n++
		}
	}
	return n
}

// file is the on-disk representation of a Trace, used by Save/Load.
type file struct {
	Entries    []Entry
	TickHashes []uint64
	TotalTicks uint64
}

// Save persists the trace to path as a single gob-encoded file.
func (t *Trace) Save(path string) error {
	t.mu.Lock()
	f := file{Entries: t.entries, TickHashes: t.tickHashes, TotalTicks: t.TotalTicks}
	t.mu.Unlock()

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return gob.NewEncoder(out).Encode(f)
}

// Load reads a trace previously written by Save, for later comparison.
func Load(path string) (*Trace, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var f file
	if err := gob.NewDecoder(in).Decode(&f); err != nil {
		return nil, err
	}
	return &Trace{entries: f.Entries, tickHashes: f.TickHashes, TotalTicks: f.TotalTicks}, nil
}
