package trace

import "testing"

func TestIdenticalTracesDoNotDiverge(t *testing.T) {
	a := New()
	b := New()

	for tick := uint64(0); tick < 3; tick++ {
		for _, tr := range []*Trace{a, b} {
			tr.Append(Entry{Tick: tick, NodeIndex: 0, Kind: TickStart})
			tr.Append(Entry{Tick: tick, NodeIndex: 0, Kind: TickEnd, OutputHash: tick + 1, HasOutputHash: true})
			tr.FinalizeTick(tick)
		}
	}

	if d := a.Compare(b); d != nil {
		t.Fatalf("expected no divergence, got %+v", d)
	}
}

func TestDivergenceDetectedAtFirstMismatch(t *testing.T) {
	a := New()
	b := New()

	for tick := uint64(0); tick < 2; tick++ {
		a.Append(Entry{Tick: tick, NodeIndex: 0, Kind: TickEnd, OutputHash: 1, HasOutputHash: true})
		a.FinalizeTick(tick)
		b.Append(Entry{Tick: tick, NodeIndex: 0, Kind: TickEnd, OutputHash: 1, HasOutputHash: true})
		b.FinalizeTick(tick)
	}

	a.Append(Entry{Tick: 2, NodeIndex: 0, Kind: TickEnd, OutputHash: 100, HasOutputHash: true})
	a.FinalizeTick(2)
	b.Append(Entry{Tick: 2, NodeIndex: 0, Kind: TickEnd, OutputHash: 200, HasOutputHash: true})
	b.FinalizeTick(2)

	d := a.Compare(b)
	if d == nil {
		t.Fatal("expected divergence at tick 2")
	}
	if d.Tick != 2 {
		t.Fatalf("divergence tick = %d, want 2", d.Tick)
	}
}

func TestDivergenceOnDifferentTickCounts(t *testing.T) {
	a := New()
	b := New()

	a.Append(Entry{Tick: 0, Kind: TickEnd})
	a.FinalizeTick(0)
	a.Append(Entry{Tick: 1, Kind: TickEnd})
	a.FinalizeTick(1)

	b.Append(Entry{Tick: 0, Kind: TickEnd})
	b.FinalizeTick(0)

	d := a.Compare(b)
	if d == nil {
		t.Fatal("expected divergence when tick counts differ")
	}
	if d.SelfEntryCount != 2 || d.OtherEntryCount != 1 {
		t.Fatalf("entry counts = %d/%d, want 2/1", d.SelfEntryCount, d.OtherEntryCount)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tr := New()
	tr.Append(Entry{Tick: 0, NodeIndex: 0, NodeName: "n", Kind: TickEnd, OutputHash: 7, HasOutputHash: true})
	tr.FinalizeTick(0)

	path := t.TempDir() + "/trace.horus"
	if err := tr.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Entries()) != 1 {
		t.Fatalf("loaded %d entries, want 1", len(loaded.Entries()))
	}
	if d := tr.Compare(loaded); d != nil {
		t.Fatalf("round-tripped trace diverged: %+v", d)
	}
}
