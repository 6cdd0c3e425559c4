package replay

import (
	"time"

	"github.com/horus-rt/horus/internal/herr"
	"github.com/horus-rt/horus/internal/replay/recordpb"
)

// SchedulerRecorder assembles the session-level manifest: which node files
// belong to this session, and the per-tick execution order, matching the
// original's SchedulerRecording add_node_recording/record_execution_order/
// finish sequence.
type SchedulerRecorder struct {
	manifest recordpb.SchedulerRecording
	cfg      RecorderConfig
}

// NewSchedulerRecorder creates a manifest recorder for one scheduler
// instance within a session.
func NewSchedulerRecorder(schedulerID string, cfg RecorderConfig) *SchedulerRecorder {
	return &SchedulerRecorder{
		manifest: recordpb.SchedulerRecording{
			SchedulerID:    schedulerID,
			SessionName:    cfg.SessionName,
			StartedAtUs:    uint64(time.Now().UnixMicro()),
			NodeRecordings: map[string]string{},
		},
		cfg: cfg,
	}
}

// AddNodeRecording registers a node's recording file, relative to the
// session directory, under the manifest.
func (r *SchedulerRecorder) AddNodeRecording(nodeID, relativePath string) {
	r.manifest.NodeRecordings[nodeID] = relativePath
}

// RecordExecutionOrder appends one tick's node execution order.
func (r *SchedulerRecorder) RecordExecutionOrder(order []string) {
	r.manifest.ExecutionOrder = append(r.manifest.ExecutionOrder, order)
	r.manifest.TotalTicks++
}

// Finish marks the manifest ended and saves it to the session directory.
func (r *SchedulerRecorder) Finish() (string, error) {
	r.manifest.EndedAtUs = uint64(time.Now().UnixMicro())
	r.manifest.HasEndedAt = true

	path := r.cfg.SchedulerPath(r.manifest.SchedulerID)
	if err := SaveSchedulerRecording(path, &r.manifest, r.cfg.Compress); err != nil {
		return "", herr.IoErr("replay.SchedulerRecorder.Finish", err)
	}
	return path, nil
}

// Manifest exposes the in-progress manifest for inspection.
func (r *SchedulerRecorder) Manifest() *recordpb.SchedulerRecording { return &r.manifest }
