// Package replay implements per-node record/replay (spec 4.7): a scheduler
// wrapper captures each tick's inputs, outputs, optional state, and
// duration into a NodeRecording; a replayer later substitutes those
// recorded values for live inputs, and a diff walks two recordings of the
// same node to locate where they first disagree.
package replay

import (
	"os"
	"path/filepath"
	"time"

	"github.com/horus-rt/horus/internal/herr"
	"github.com/horus-rt/horus/internal/replay/recordpb"
)

const (
	// DefaultRecordingsDirName is appended to the user's home directory (or
	// the current directory, if that can't be determined) to form the
	// default recordings root, matching the original's ".horus/recordings".
	DefaultRecordingsDirName = ".horus/recordings"
	// RecordingExt is the file extension for a session's per-node and
	// per-scheduler manifest files.
	RecordingExt = "horus"
	// DefaultMaxRecordingSize is the per-node recording size cap (100 MiB).
	DefaultMaxRecordingSize = 100 * 1024 * 1024
)

// RecorderConfig configures a session's recording behavior, mirroring the
// original's RecordingConfig.
type RecorderConfig struct {
	SessionName string
	BaseDir     string
	MaxSize     int
	// Compress gzip-wraps the on-disk bytes; the in-memory wire format is
	// unaffected either way.
	Compress bool
	// Interval records every Nth tick; 1 records every tick.
	Interval uint64
	// IncludeNodes, if non-empty, restricts recording to exactly these
	// nodes. ExcludeNodes always wins over IncludeNodes.
	IncludeNodes []string
	ExcludeNodes []string
}

// DefaultRecorderConfig returns a RecorderConfig with the original's
// defaults: a timestamped session name, compression on, recording every tick.
func DefaultRecorderConfig() RecorderConfig {
	base := DefaultRecordingsDirName
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, DefaultRecordingsDirName)
	}
	return RecorderConfig{
		SessionName: "recording_" + time.Now().UTC().Format("20060102T150405Z"),
		BaseDir:     base,
		MaxSize:     DefaultMaxRecordingSize,
		Compress:    true,
		Interval:    1,
	}
}

// ShouldRecordNode applies the include/exclude filters, matching the
// original's should_record_node: exclude wins, then include (if non-empty)
// is the sole allowlist, else every node is recorded.
func (c RecorderConfig) ShouldRecordNode(nodeName string) bool {
	for _, n := range c.ExcludeNodes {
		if n == nodeName {
			return false
		}
	}
	if len(c.IncludeNodes) > 0 {
		for _, n := range c.IncludeNodes {
			if n == nodeName {
				return true
			}
		}
		return false
	}
	return true
}

// SessionDir returns the directory holding this session's recording files.
func (c RecorderConfig) SessionDir() string {
	return filepath.Join(c.BaseDir, c.SessionName)
}

// NodePath returns the path for one node's recording file.
func (c RecorderConfig) NodePath(nodeName, nodeID string) string {
	return filepath.Join(c.SessionDir(), nodeName+"@"+nodeID+"."+RecordingExt)
}

// SchedulerPath returns the path for the session's scheduler manifest.
func (c RecorderConfig) SchedulerPath(schedulerID string) string {
	return filepath.Join(c.SessionDir(), "scheduler@"+schedulerID+"."+RecordingExt)
}

// NodeRecorder captures one node's tick-by-tick I/O into a NodeRecording,
// matching the original's NodeRecorder's begin_tick/record_input/
// record_output/record_state/end_tick sequencing.
type NodeRecorder struct {
	recording recordpb.NodeRecording
	cfg       RecorderConfig
	current   *recordpb.NodeTickSnapshot
	enabled   bool
}

// NewNodeRecorder creates a recorder for one node within a session.
func NewNodeRecorder(nodeName, nodeID string, cfg RecorderConfig) *NodeRecorder {
	now := uint64(time.Now().UnixMicro())
	return &NodeRecorder{
		recording: recordpb.NodeRecording{
			NodeID:      nodeID,
			NodeName:    nodeName,
			SessionName: cfg.SessionName,
			StartedAtUs: now,
		},
		cfg:     cfg,
		enabled: true,
	}
}

// BeginTick opens a new in-progress snapshot for tick, or none at all if
// recording is disabled or this tick falls outside the configured interval.
func (r *NodeRecorder) BeginTick(tick uint64) {
	if !r.enabled {
		return
	}
	interval := r.cfg.Interval
	if interval == 0 {
		interval = 1
	}
	if tick%interval != 0 {
		r.current = nil
		return
	}
	r.current = &recordpb.NodeTickSnapshot{
		Tick:        tick,
		TimestampUs: uint64(time.Now().UnixMicro()),
		Inputs:      map[string][]byte{},
		Outputs:     map[string][]byte{},
	}
}

// RecordInput records one input the node's body consumed this tick.
func (r *NodeRecorder) RecordInput(topic string, data []byte) {
	if r.current != nil {
		r.current.Inputs[topic] = data
	}
}

// RecordOutput records one output the node's body produced this tick.
func (r *NodeRecorder) RecordOutput(topic string, data []byte) {
	if r.current != nil {
		r.current.Outputs[topic] = data
	}
}

// RecordState records an internal state snapshot for this tick.
func (r *NodeRecorder) RecordState(state []byte) {
	if r.current != nil {
		r.current.State = state
	}
}

// EndTick closes the in-progress snapshot, attaching the measured tick
// duration and appending it to the recording.
func (r *NodeRecorder) EndTick(durationNs uint64) {
	if r.current == nil {
		return
	}
	r.current.DurationNs = durationNs
	if len(r.recording.Snapshots) == 0 {
		r.recording.FirstTick = r.current.Tick
	}
	r.recording.LastTick = r.current.Tick
	r.recording.Snapshots = append(r.recording.Snapshots, *r.current)
	r.current = nil
}

// ShouldStop reports whether the recording has reached its configured size
// cap and further ticks should stop being recorded.
func (r *NodeRecorder) ShouldStop() bool {
	maxSize := r.cfg.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxRecordingSize
	}
	return r.recording.EstimatedSize() >= maxSize
}

// Finish marks the recording ended, disables further recording, and saves it
// to its session file, returning the path written.
func (r *NodeRecorder) Finish() (string, error) {
	r.recording.EndedAtUs = uint64(time.Now().UnixMicro())
	r.recording.HasEndedAt = true
	r.enabled = false

	path := r.cfg.NodePath(r.recording.NodeName, r.recording.NodeID)
	if err := saveRecording(path, &r.recording, r.cfg.Compress); err != nil {
		return "", herr.IoErr("replay.NodeRecorder.Finish", err)
	}
	return path, nil
}

// Recording exposes the in-progress recording for inspection.
func (r *NodeRecorder) Recording() *recordpb.NodeRecording { return &r.recording }

// SetEnabled toggles recording without discarding what has already been
// captured.
func (r *NodeRecorder) SetEnabled(enabled bool) { r.enabled = enabled }
