package replay

import (
	"path/filepath"
	"testing"

	"github.com/horus-rt/horus/internal/replay/recordpb"
)

func testConfig(t *testing.T) RecorderConfig {
	t.Helper()
	cfg := DefaultRecorderConfig()
	cfg.BaseDir = t.TempDir()
	cfg.SessionName = "test-session"
	return cfg
}

func TestRecorderBasicFlow(t *testing.T) {
	cfg := testConfig(t)
	rec := NewNodeRecorder("pid_controller", "node-1", cfg)

	rec.BeginTick(0)
	rec.RecordInput("sensor.imu", []byte{1, 2})
	rec.RecordOutput("pid.cmd", []byte{3, 4})
	rec.EndTick(1000)

	rec.BeginTick(1)
	rec.RecordInput("sensor.imu", []byte{5, 6})
	rec.RecordOutput("pid.cmd", []byte{7, 8})
	rec.EndTick(2000)

	if rec.Recording().FirstTick != 0 || rec.Recording().LastTick != 1 {
		t.Fatalf("tick range = [%d, %d], want [0, 1]", rec.Recording().FirstTick, rec.Recording().LastTick)
	}

	path, err := rec.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if filepath.Base(path) != "pid_controller@node-1.horus" {
		t.Fatalf("path = %q, want pid_controller@node-1.horus suffix", path)
	}

	loaded, err := LoadNodeRecording(path)
	if err != nil {
		t.Fatalf("LoadNodeRecording: %v", err)
	}
	if len(loaded.Snapshots) != 2 {
		t.Fatalf("loaded %d snapshots, want 2", len(loaded.Snapshots))
	}
}

func TestRecorderIntervalSkipsTicks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interval = 2
	rec := NewNodeRecorder("n", "id", cfg)

	for tick := uint64(0); tick < 4; tick++ {
		rec.BeginTick(tick)
		rec.RecordOutput("x", []byte{byte(tick)})
		rec.EndTick(1)
	}
	if len(rec.Recording().Snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2 (ticks 0 and 2)", len(rec.Recording().Snapshots))
	}
}

func TestShouldRecordNodeFilters(t *testing.T) {
	cfg := RecorderConfig{}
	if !cfg.ShouldRecordNode("anything") {
		t.Fatal("empty filters should record every node")
	}

	cfg.ExcludeNodes = []string{"logger"}
	if cfg.ShouldRecordNode("logger") {
		t.Fatal("excluded node should not record")
	}
	if !cfg.ShouldRecordNode("pid_controller") {
		t.Fatal("non-excluded node should still record")
	}

	cfg.IncludeNodes = []string{"pid_controller"}
	if cfg.ShouldRecordNode("other") {
		t.Fatal("include list should exclude nodes not listed")
	}
	if !cfg.ShouldRecordNode("pid_controller") {
		t.Fatal("included node should record")
	}
}

func TestReplayerAdvanceSeekReset(t *testing.T) {
	rec := recordpb.NodeRecording{
		FirstTick: 0, LastTick: 2,
		Snapshots: []recordpb.NodeTickSnapshot{
			{Tick: 0, Outputs: map[string][]byte{"x": {1}}},
			{Tick: 1, Outputs: map[string][]byte{"x": {2}}},
			{Tick: 2, Outputs: map[string][]byte{"x": {3}}},
		},
	}
	p := NewNodeReplayer(rec)
	if p.IsFinished() {
		t.Fatal("a fresh replayer should not be finished")
	}
	out, ok := p.GetOutput("x")
	if !ok || out[0] != 1 {
		t.Fatalf("GetOutput at tick 0 = %v, %v", out, ok)
	}

	if !p.Advance() {
		t.Fatal("Advance should succeed from tick 0")
	}
	if p.CurrentTick() != 1 {
		t.Fatalf("CurrentTick() = %d, want 1", p.CurrentTick())
	}

	if !p.Seek(2) {
		t.Fatal("Seek(2) should find the last snapshot")
	}
	out, _ = p.GetOutput("x")
	if out[0] != 3 {
		t.Fatalf("GetOutput after Seek(2) = %v, want [3]", out)
	}

	if p.Advance() {
		t.Fatal("Advance past the last snapshot should return false")
	}
	if !p.IsFinished() {
		t.Fatal("replayer should report finished once Advance returns false a final time")
	}

	p.Reset()
	if p.CurrentTick() != 0 {
		t.Fatalf("CurrentTick() after Reset = %d, want 0", p.CurrentTick())
	}
}

func TestDiffRecordingsOutputDifference(t *testing.T) {
	a := &recordpb.NodeRecording{
		FirstTick: 0, LastTick: 500,
		Snapshots: []recordpb.NodeTickSnapshot{
			{Tick: 237, Outputs: map[string][]byte{"pid.cmd": {1, 2, 3}}},
		},
	}
	b := &recordpb.NodeRecording{
		FirstTick: 0, LastTick: 500,
		Snapshots: []recordpb.NodeTickSnapshot{
			{Tick: 237, Outputs: map[string][]byte{"pid.cmd": {9, 9, 9}}},
		},
	}
	diffs := DiffRecordings(a, b)
	if len(diffs) != 1 {
		t.Fatalf("got %d diffs, want exactly 1: %+v", len(diffs), diffs)
	}
	if diffs[0].Kind != OutputDifference || diffs[0].Tick != 237 || diffs[0].Topic != "pid.cmd" {
		t.Fatalf("diff = %+v, want OutputDifference at tick 237 on pid.cmd", diffs[0])
	}
}

func TestDiffRecordingsMissingTickAndOutput(t *testing.T) {
	a := &recordpb.NodeRecording{
		FirstTick: 0, LastTick: 1,
		Snapshots: []recordpb.NodeTickSnapshot{
			{Tick: 0, Outputs: map[string][]byte{"x": {1}, "y": {2}}},
			{Tick: 1, Outputs: map[string][]byte{"x": {1}}},
		},
	}
	b := &recordpb.NodeRecording{
		FirstTick: 0, LastTick: 1,
		Snapshots: []recordpb.NodeTickSnapshot{
			{Tick: 0, Outputs: map[string][]byte{"x": {1}}},
		},
	}
	diffs := DiffRecordings(a, b)

	var sawMissingOutput, sawMissingTick bool
	for _, d := range diffs {
		if d.Kind == MissingOutput && d.Tick == 0 && d.Topic == "y" {
			sawMissingOutput = true
		}
		if d.Kind == MissingTick && d.Tick == 1 {
			sawMissingTick = true
		}
	}
	if !sawMissingOutput {
		t.Fatalf("expected a MissingOutput for tick 0 topic y, got %+v", diffs)
	}
	if !sawMissingTick {
		t.Fatalf("expected a MissingTick for tick 1, got %+v", diffs)
	}
}

func TestSessionManagerLifecycle(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(t)
	cfg.BaseDir = base
	cfg.SessionName = "session-x"

	rec := NewNodeRecorder("n", "id", cfg)
	rec.BeginTick(0)
	rec.RecordOutput("x", []byte{1})
	rec.EndTick(1)
	if _, err := rec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	mgr := NewSessionManager(base)
	sessions, err := mgr.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0] != "session-x" {
		t.Fatalf("sessions = %v, want [session-x]", sessions)
	}

	paths, err := mgr.SessionRecordings("session-x")
	if err != nil {
		t.Fatalf("SessionRecordings: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d recording files, want 1", len(paths))
	}

	size, err := mgr.TotalSize()
	if err != nil {
		t.Fatalf("TotalSize: %v", err)
	}
	if size == 0 {
		t.Fatal("expected a non-zero total size")
	}

	if err := mgr.DeleteSession("session-x"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	sessions, err = mgr.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions after delete: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("sessions after delete = %v, want none", sessions)
	}
}

func TestSchedulerRecorderFinish(t *testing.T) {
	cfg := testConfig(t)
	sr := NewSchedulerRecorder("sched-1", cfg)
	sr.AddNodeRecording("node-1", "pid_controller@node-1.horus")
	sr.RecordExecutionOrder([]string{"pid_controller", "logger"})
	sr.RecordExecutionOrder([]string{"logger", "pid_controller"})

	path, err := sr.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	loaded, err := LoadSchedulerRecording(path)
	if err != nil {
		t.Fatalf("LoadSchedulerRecording: %v", err)
	}
	if loaded.TotalTicks != 2 {
		t.Fatalf("TotalTicks = %d, want 2", loaded.TotalTicks)
	}
	if loaded.NodeRecordings["node-1"] != "pid_controller@node-1.horus" {
		t.Fatalf("node recordings = %v", loaded.NodeRecordings)
	}
}
