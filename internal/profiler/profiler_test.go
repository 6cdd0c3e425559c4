package profiler

import (
	"testing"
	"time"
)

func TestClassifyDeterministicJITNode(t *testing.T) {
	p := New("test", 10, 0)
	for i := 0; i < 100; i++ {
		p.Record("pid_controller", 500*time.Nanosecond)
		p.Tick()
	}
	profile := p.Finalize()

	np := profile.Nodes["pid_controller"]
	if np == nil {
		t.Fatal("expected a profile for pid_controller")
	}
	if !np.IsDeterministic {
		t.Fatalf("expected deterministic classification, cv=%f", np.StddevUs/np.AvgUs)
	}
	if np.Tier != TierJIT {
		t.Fatalf("Tier = %v, want JIT", np.Tier)
	}
}

func TestClassifyBackgroundNode(t *testing.T) {
	p := New("test", 1, 0)
	for i := 0; i < 20; i++ {
		p.Record("logger", 200*time.Microsecond)
	}
	profile := p.Finalize()

	np := profile.Nodes["logger"]
	if np.Tier != TierBackground {
		t.Fatalf("Tier = %v, want Background (avg=%f)", np.Tier, np.AvgUs)
	}
}

func TestClassifyIOHeavyNode(t *testing.T) {
	p := New("test", 1, 0)
	// High variance with an outlier: most calls fast, some very slow.
	for i := 0; i < 9; i++ {
		p.Record("network", 10*time.Microsecond)
	}
	p.Record("network", 500*time.Microsecond)
	profile := p.Finalize()

	np := profile.Nodes["network"]
	if !np.IsIOHeavy {
		t.Fatalf("expected I/O-heavy classification, cv=%f max=%f mean=%f", np.StddevUs/np.AvgUs, np.MaxUs, np.AvgUs)
	}
	if np.Tier != TierAsyncIO {
		t.Fatalf("Tier = %v, want AsyncIO", np.Tier)
	}
}

func TestIsCompleteAndProgress(t *testing.T) {
	p := New("test", 4, 0)
	if p.IsComplete() {
		t.Fatal("should not be complete before any ticks")
	}
	for i := 0; i < 4; i++ {
		p.Tick()
	}
	if !p.IsComplete() {
		t.Fatal("should be complete after target ticks")
	}
	if p.Progress() != 1 {
		t.Fatalf("Progress() = %f, want 1", p.Progress())
	}
}

func TestSaveLoadTextRoundTrip(t *testing.T) {
	p := New("roundtrip", 1, 1234)
	p.Record("n1", time.Microsecond)
	profile := p.Finalize()

	path := t.TempDir() + "/profile.json"
	if err := profile.SaveText(path); err != nil {
		t.Fatalf("SaveText: %v", err)
	}
	loaded, err := LoadAny(path)
	if err != nil {
		t.Fatalf("LoadAny: %v", err)
	}
	if loaded.Name != "roundtrip" {
		t.Fatalf("Name = %q, want roundtrip", loaded.Name)
	}
	if _, ok := loaded.Nodes["n1"]; !ok {
		t.Fatal("expected node n1 in loaded profile")
	}
}

func TestSaveLoadBinaryRoundTrip(t *testing.T) {
	p := New("roundtrip-bin", 1, 1234)
	p.Record("n1", time.Microsecond)
	profile := p.Finalize()

	path := t.TempDir() + "/profile.bin"
	if err := profile.SaveBinary(path); err != nil {
		t.Fatalf("SaveBinary: %v", err)
	}
	loaded, err := LoadAny(path)
	if err != nil {
		t.Fatalf("LoadAny: %v", err)
	}
	if loaded.Name != "roundtrip-bin" {
		t.Fatalf("Name = %q, want roundtrip-bin", loaded.Name)
	}
}

func TestCompatibilityWarnsOnCoreCountMismatch(t *testing.T) {
	profile := NewProfile("test", 0)
	profile.Hardware.CPUCores = profile.Hardware.CPUCores + 1000 // force mismatch

	warnings := profile.CheckCompatibility()
	if len(warnings) == 0 {
		t.Fatal("expected a compatibility warning on core count mismatch")
	}
}

func TestUnprofiledNodeDefaultsToFast(t *testing.T) {
	profile := NewProfile("test", 0)
	if profile.Tier("never-seen") != TierFast {
		t.Fatal("expected default tier Fast for an unprofiled node")
	}
}
