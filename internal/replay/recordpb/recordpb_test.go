package recordpb

import "testing"

func TestNodeTickSnapshotRoundTrip(t *testing.T) {
	want := NodeTickSnapshot{
		Tick:        42,
		TimestampUs: 1234567,
		Inputs:      map[string][]byte{"sensor.imu": {1, 2, 3}},
		Outputs:     map[string][]byte{"pid.cmd": {4, 5, 6, 7}},
		State:       []byte{9, 9},
		DurationNs:  555,
	}
	var got NodeTickSnapshot
	if err := got.Unmarshal(want.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Tick != want.Tick || got.TimestampUs != want.TimestampUs || got.DurationNs != want.DurationNs {
		t.Fatalf("scalar fields mismatch: got %+v, want %+v", got, want)
	}
	if string(got.Inputs["sensor.imu"]) != string(want.Inputs["sensor.imu"]) {
		t.Fatalf("inputs mismatch: got %v", got.Inputs)
	}
	if string(got.Outputs["pid.cmd"]) != string(want.Outputs["pid.cmd"]) {
		t.Fatalf("outputs mismatch: got %v", got.Outputs)
	}
	if string(got.State) != string(want.State) {
		t.Fatalf("state mismatch: got %v, want %v", got.State, want.State)
	}
}

func TestNodeTickSnapshotNoState(t *testing.T) {
	want := NodeTickSnapshot{Tick: 1, Inputs: map[string][]byte{}, Outputs: map[string][]byte{}}
	var got NodeTickSnapshot
	if err := got.Unmarshal(want.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.State != nil {
		t.Fatalf("expected nil state, got %v", got.State)
	}
}

func TestNodeRecordingRoundTrip(t *testing.T) {
	want := NodeRecording{
		NodeID:      "node-1",
		NodeName:    "pid_controller",
		SessionName: "session-a",
		StartedAtUs: 1000,
		EndedAtUs:   2000,
		HasEndedAt:  true,
		FirstTick:   0,
		LastTick:    1,
		Snapshots: []NodeTickSnapshot{
			{Tick: 0, Inputs: map[string][]byte{"a": {1}}, Outputs: map[string][]byte{"b": {2}}},
			{Tick: 1, Inputs: map[string][]byte{"a": {3}}, Outputs: map[string][]byte{"b": {4}}},
		},
		Config: `{"gain":1.5}`,
	}
	var got NodeRecording
	if err := got.Unmarshal(want.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.NodeID != want.NodeID || got.NodeName != want.NodeName || got.SessionName != want.SessionName {
		t.Fatalf("identity fields mismatch: got %+v", got)
	}
	if got.FirstTick != want.FirstTick || got.LastTick != want.LastTick {
		t.Fatalf("tick range mismatch: got first=%d last=%d", got.FirstTick, got.LastTick)
	}
	if !got.HasEndedAt || got.EndedAtUs != want.EndedAtUs {
		t.Fatalf("ended-at fields mismatch: got %+v", got)
	}
	if len(got.Snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(got.Snapshots))
	}
	if got.Config != want.Config {
		t.Fatalf("config mismatch: got %q, want %q", got.Config, want.Config)
	}
}

func TestEstimatedSizeIncludesOverhead(t *testing.T) {
	rec := NodeRecording{
		Snapshots: []NodeTickSnapshot{
			{Inputs: map[string][]byte{"a": make([]byte, 10)}, Outputs: map[string][]byte{"b": make([]byte, 20)}},
		},
	}
	got := rec.EstimatedSize()
	want := 10 + 20 + 100
	if got != want {
		t.Fatalf("EstimatedSize() = %d, want %d", got, want)
	}
}

func TestSchedulerRecordingRoundTrip(t *testing.T) {
	want := SchedulerRecording{
		SchedulerID:    "sched-1",
		SessionName:    "session-a",
		StartedAtUs:    10,
		TotalTicks:     2,
		NodeRecordings: map[string]string{"node-1": "pid_controller@node-1.horus"},
		ExecutionOrder: [][]string{{"pid_controller", "logger"}, {"logger", "pid_controller"}},
		Config:         "cfg",
	}
	var got SchedulerRecording
	if err := got.Unmarshal(want.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.SchedulerID != want.SchedulerID || got.SessionName != want.SessionName {
		t.Fatalf("identity mismatch: got %+v", got)
	}
	if got.NodeRecordings["node-1"] != want.NodeRecordings["node-1"] {
		t.Fatalf("node recordings mismatch: got %v", got.NodeRecordings)
	}
	if len(got.ExecutionOrder) != 2 || got.ExecutionOrder[0][0] != "pid_controller" || got.ExecutionOrder[1][0] != "logger" {
		t.Fatalf("execution order mismatch: got %v", got.ExecutionOrder)
	}
}
