package replay

import (
	"github.com/horus-rt/horus/internal/herr"
	"github.com/horus-rt/horus/internal/replay/recordpb"
)

// NodeReplayer steps through a previously recorded NodeRecording, matching
// the original's NodeReplayer: current_snapshot/get_output/advance/seek/
// reset/is_finished.
type NodeReplayer struct {
	recording   recordpb.NodeRecording
	index       int
	currentTick uint64
}

// LoadNodeReplayer loads a recording file and returns a replayer positioned
// at its first snapshot.
func LoadNodeReplayer(path string) (*NodeReplayer, error) {
	rec, err := LoadNodeRecording(path)
	if err != nil {
		return nil, herr.IoErr("replay.LoadNodeReplayer", err)
	}
	return NewNodeReplayer(*rec), nil
}

// NewNodeReplayer wraps an already-loaded recording.
func NewNodeReplayer(rec recordpb.NodeRecording) *NodeReplayer {
	p := &NodeReplayer{recording: rec}
	if len(rec.Snapshots) > 0 {
		p.currentTick = rec.Snapshots[0].Tick
	}
	return p
}

// CurrentSnapshot returns the snapshot at the replayer's current position, or
// nil once replay is finished.
func (p *NodeReplayer) CurrentSnapshot() *recordpb.NodeTickSnapshot {
	if p.IsFinished() {
		return nil
	}
	return &p.recording.Snapshots[p.index]
}

// GetOutput returns one output's recorded bytes for the current tick.
func (p *NodeReplayer) GetOutput(topic string) ([]byte, bool) {
	snap := p.CurrentSnapshot()
	if snap == nil {
		return nil, false
	}
	v, ok := snap.Outputs[topic]
	return v, ok
}

// Advance moves to the next recorded tick, returning false once there are no
// more snapshots.
func (p *NodeReplayer) Advance() bool {
	if p.index+1 >= len(p.recording.Snapshots) {
		p.index = len(p.recording.Snapshots)
		return false
	}
	p.index++
	p.currentTick = p.recording.Snapshots[p.index].Tick
	return true
}

// Seek jumps to the first snapshot whose tick is >= tick, for spec 4.7's
// "time travel to specific ticks". Linear, as the recordings are expected to
// be dense enough for this to be cheap (spec's own characterization).
func (p *NodeReplayer) Seek(tick uint64) bool {
	for i, snap := range p.recording.Snapshots {
		if snap.Tick >= tick {
			p.index = i
			p.currentTick = snap.Tick
			return true
		}
	}
	return false
}

// Reset returns the replayer to its first snapshot.
func (p *NodeReplayer) Reset() {
	p.index = 0
	p.currentTick = p.recording.FirstTick
}

// IsFinished reports whether the replayer has advanced past the last
// snapshot.
func (p *NodeReplayer) IsFinished() bool {
	return p.index >= len(p.recording.Snapshots)
}

// Recording exposes the underlying recording.
func (p *NodeReplayer) Recording() *recordpb.NodeRecording { return &p.recording }

// CurrentTick returns the tick number at the replayer's current position.
func (p *NodeReplayer) CurrentTick() uint64 { return p.currentTick }

// TotalTicks returns the number of snapshots in the recording (not the tick
// span, which may have gaps per RecorderConfig.Interval).
func (p *NodeReplayer) TotalTicks() int { return len(p.recording.Snapshots) }
