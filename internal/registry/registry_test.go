package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRegistryWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if filepath.Dir(reg.Path()) != dir {
		t.Fatalf("registry path %q not under %q", reg.Path(), dir)
	}

	entry := BuildEntry("test-scheduler", []NodeSpec{
		{
			Name:        "pid_controller",
			Priority:    10,
			RateHz:      100,
			Publishers:  []TopicRef{{Topic: "pid.cmd", Type: "Command"}},
			Subscribers: []TopicRef{{Topic: "sensor.imu", Type: "Imu"}},
		},
	})
	entry.PID = uint32(os.Getpid())

	if err := reg.Write(entry); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Load(reg.Path())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SchedulerName != "test-scheduler" {
		t.Fatalf("scheduler name = %q, want test-scheduler", loaded.SchedulerName)
	}
	if len(loaded.Nodes) != 1 || loaded.Nodes[0].Name != "pid_controller" {
		t.Fatalf("nodes = %+v", loaded.Nodes)
	}
	if len(loaded.Nodes[0].Publishers) != 1 || loaded.Nodes[0].Publishers[0].Topic != "pid.cmd" {
		t.Fatalf("publishers = %+v", loaded.Nodes[0].Publishers)
	}

	if err := reg.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(reg.Path()); !os.IsNotExist(err) {
		t.Fatalf("registry file still exists after Remove")
	}
}

func TestTwoRegistriesInSameDirDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	if err != nil {
		t.Fatalf("New a: %v", err)
	}
	b, err := New(dir)
	if err != nil {
		t.Fatalf("New b: %v", err)
	}
	if a.Path() == b.Path() {
		t.Fatalf("two registries in the same dir collided on %q", a.Path())
	}
}

func TestDiscoverFindsLiveAndRemovesStale(t *testing.T) {
	dir := t.TempDir()

	live, err := New(dir)
	if err != nil {
		t.Fatalf("New live: %v", err)
	}
	liveEntry := BuildEntry("live-scheduler", nil)
	liveEntry.PID = uint32(os.Getpid())
	if err := live.Write(liveEntry); err != nil {
		t.Fatalf("Write live: %v", err)
	}

	stale, err := New(dir)
	if err != nil {
		t.Fatalf("New stale: %v", err)
	}
	staleEntry := BuildEntry("stale-scheduler", nil)
	staleEntry.PID = 0 // IsProcessAlive treats pid 0 as never alive
	if err := stale.Write(staleEntry); err != nil {
		t.Fatalf("Write stale: %v", err)
	}

	found, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(found) != 1 || found[0].SchedulerName != "live-scheduler" {
		t.Fatalf("Discover = %+v, want only live-scheduler", found)
	}

	if _, err := os.Stat(stale.Path()); !os.IsNotExist(err) {
		t.Fatal("stale registry file should have been garbage-collected")
	}
	if _, err := os.Stat(live.Path()); err != nil {
		t.Fatal("live registry file should still exist")
	}
}

func TestDiscoverIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "not_a_registry.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	found, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("Discover = %+v, want none", found)
	}
}

func TestDiscoverSkipsMalformedRegistryFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FilePrefix+"_bad"+FileSuffix)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	found, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("Discover = %+v, want none (malformed file skipped)", found)
	}
}

func TestDiscoverOnMissingDirReturnsEmpty(t *testing.T) {
	found, err := Discover(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if found != nil {
		t.Fatalf("Discover = %+v, want nil", found)
	}
}

func TestBuildEntryStampsPIDAndTime(t *testing.T) {
	before := time.Now().UTC()
	entry := BuildEntry("sched", nil)
	if entry.PID != uint32(os.Getpid()) {
		t.Fatalf("PID = %d, want %d", entry.PID, os.Getpid())
	}
	if entry.StartedAt.Before(before) {
		t.Fatalf("StartedAt %v is before test start %v", entry.StartedAt, before)
	}
}
