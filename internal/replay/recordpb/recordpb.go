// Package recordpb defines the wire-stable binary encoding for node and
// scheduler recordings (spec 4.7's ".horus" files). It has no .proto
// sibling to generate bindings from, so the messages below are hand-encoded
// directly on google.golang.org/protobuf's low-level wire primitives
// (protowire) rather than protoc-generated structs — the on-disk bytes
// still follow protobuf's tag/varint/length-delimited wire conventions,
// matching the teacher's own choice of protobuf as its serialization idiom
// for durable records (its kernel/gen/system package is itself generated
// protobuf code).
package recordpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for NodeTickSnapshot.
const (
	snapFieldTick        = 1
	snapFieldTimestampUs = 2
	snapFieldInputs      = 3
	snapFieldOutputs     = 4
	snapFieldState       = 5
	snapFieldDurationNs  = 6
)

// Field numbers for the Inputs/Outputs map entry submessage.
const (
	entryFieldKey   = 1
	entryFieldValue = 2
)

// Field numbers for NodeRecording.
const (
	recFieldNodeID      = 1
	recFieldNodeName    = 2
	recFieldSessionName = 3
	recFieldStartedAtUs = 4
	recFieldEndedAtUs   = 5
	recFieldHasEndedAt  = 6
	recFieldFirstTick   = 7
	recFieldLastTick    = 8
	recFieldSnapshots   = 9
	recFieldConfig      = 10
)

// Field numbers for SchedulerRecording.
const (
	schedFieldID              = 1
	schedFieldSessionName     = 2
	schedFieldStartedAtUs     = 3
	schedFieldEndedAtUs       = 4
	schedFieldHasEndedAt      = 5
	schedFieldTotalTicks      = 6
	schedFieldNodeRecordings  = 7
	schedFieldExecutionOrder  = 8
	schedFieldConfig          = 9
	orderListFieldNodeName    = 1
)

// NodeTickSnapshot mirrors the original's NodeTickSnapshot: one tick's
// recorded inputs, outputs, optional state, and duration.
type NodeTickSnapshot struct {
	Tick        uint64
	TimestampUs uint64
	Inputs      map[string][]byte
	Outputs     map[string][]byte
	State       []byte // nil means no state was captured this tick
	DurationNs  uint64
}

func appendMapEntry(b []byte, fieldNum protowire.Number, key string, value []byte) []byte {
	var entry []byte
	entry = protowire.AppendTag(entry, entryFieldKey, protowire.BytesType)
	entry = protowire.AppendString(entry, key)
	entry = protowire.AppendTag(entry, entryFieldValue, protowire.BytesType)
	entry = protowire.AppendBytes(entry, value)

	b = protowire.AppendTag(b, fieldNum, protowire.BytesType)
	b = protowire.AppendBytes(b, entry)
	return b
}

func consumeMapEntry(b []byte) (key string, value []byte, n int, err error) {
	off := 0
	for off < len(b) {
		num, typ, tagLen := protowire.ConsumeTag(b[off:])
		if tagLen < 0 {
			return "", nil, 0, protowire.ParseError(tagLen)
		}
		off += tagLen
		switch {
		case num == entryFieldKey && typ == protowire.BytesType:
			s, l := protowire.ConsumeString(b[off:])
			if l < 0 {
				return "", nil, 0, protowire.ParseError(l)
			}
			key = s
			off += l
		case num == entryFieldValue && typ == protowire.BytesType:
			v, l := protowire.ConsumeBytes(b[off:])
			if l < 0 {
				return "", nil, 0, protowire.ParseError(l)
			}
			value = append([]byte(nil), v...)
			off += l
		default:
			l := protowire.ConsumeFieldValue(num, typ, b[off:])
			if l < 0 {
				return "", nil, 0, protowire.ParseError(l)
			}
			off += l
		}
	}
	return key, value, off, nil
}

// Marshal encodes s in the wire format described above.
func (s *NodeTickSnapshot) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, snapFieldTick, protowire.VarintType)
	b = protowire.AppendVarint(b, s.Tick)
	b = protowire.AppendTag(b, snapFieldTimestampUs, protowire.VarintType)
	b = protowire.AppendVarint(b, s.TimestampUs)
	for k, v := range s.Inputs {
		b = appendMapEntry(b, snapFieldInputs, k, v)
	}
	for k, v := range s.Outputs {
		b = appendMapEntry(b, snapFieldOutputs, k, v)
	}
	if s.State != nil {
		b = protowire.AppendTag(b, snapFieldState, protowire.BytesType)
		b = protowire.AppendBytes(b, s.State)
	}
	b = protowire.AppendTag(b, snapFieldDurationNs, protowire.VarintType)
	b = protowire.AppendVarint(b, s.DurationNs)
	return b
}

// Unmarshal decodes b into s, replacing its contents.
func (s *NodeTickSnapshot) Unmarshal(b []byte) error {
	*s = NodeTickSnapshot{Inputs: map[string][]byte{}, Outputs: map[string][]byte{}}
	off := 0
	for off < len(b) {
		num, typ, tagLen := protowire.ConsumeTag(b[off:])
		if tagLen < 0 {
			return fmt.Errorf("recordpb: bad tag in NodeTickSnapshot: %w", protowire.ParseError(tagLen))
		}
		off += tagLen
		switch num {
		case snapFieldTick:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return fmt.Errorf("recordpb: bad tick varint: %w", protowire.ParseError(l))
			}
			s.Tick = v
			off += l
		case snapFieldTimestampUs:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return fmt.Errorf("recordpb: bad timestamp varint: %w", protowire.ParseError(l))
			}
			s.TimestampUs = v
			off += l
		case snapFieldInputs, snapFieldOutputs:
			entryBytes, l := protowire.ConsumeBytes(b[off:])
			if l < 0 {
				return fmt.Errorf("recordpb: bad map entry: %w", protowire.ParseError(l))
			}
			key, val, _, err := consumeMapEntry(entryBytes)
			if err != nil {
				return err
			}
			if num == snapFieldInputs {
				s.Inputs[key] = val
			} else {
				s.Outputs[key] = val
			}
			off += l
		case snapFieldState:
			v, l := protowire.ConsumeBytes(b[off:])
			if l < 0 {
				return fmt.Errorf("recordpb: bad state bytes: %w", protowire.ParseError(l))
			}
			s.State = append([]byte(nil), v...)
			off += l
		case snapFieldDurationNs:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return fmt.Errorf("recordpb: bad duration varint: %w", protowire.ParseError(l))
			}
			s.DurationNs = v
			off += l
		default:
			l := protowire.ConsumeFieldValue(num, typ, b[off:])
			if l < 0 {
				return fmt.Errorf("recordpb: bad unknown field: %w", protowire.ParseError(l))
			}
			off += l
		}
	}
	return nil
}

// NodeRecording mirrors the original's NodeRecording: the ordered sequence
// of tick snapshots for one node, bounded by a size cap at the recorder
// layer.
type NodeRecording struct {
	NodeID      string
	NodeName    string
	SessionName string
	StartedAtUs uint64
	EndedAtUs   uint64
	HasEndedAt  bool
	FirstTick   uint64
	LastTick    uint64
	Snapshots   []NodeTickSnapshot
	Config      string
}

// EstimatedSize sums the byte length of every recorded input, output, and
// state snapshot, plus a fixed per-snapshot overhead, matching the original's
// "+100" overhead constant so a size cap can be enforced without a full
// re-serialization pass on every tick.
func (r *NodeRecording) EstimatedSize() int {
	const perSnapshotOverhead = 100
	total := 0
	for _, snap := range r.Snapshots {
		for _, v := range snap.Inputs {
			total += len(v)
		}
		for _, v := range snap.Outputs {
			total += len(v)
		}
		total += len(snap.State)
		total += perSnapshotOverhead
	}
	return total
}

// Marshal encodes r in the wire format described above.
func (r *NodeRecording) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, recFieldNodeID, protowire.BytesType)
	b = protowire.AppendString(b, r.NodeID)
	b = protowire.AppendTag(b, recFieldNodeName, protowire.BytesType)
	b = protowire.AppendString(b, r.NodeName)
	b = protowire.AppendTag(b, recFieldSessionName, protowire.BytesType)
	b = protowire.AppendString(b, r.SessionName)
	b = protowire.AppendTag(b, recFieldStartedAtUs, protowire.VarintType)
	b = protowire.AppendVarint(b, r.StartedAtUs)
	b = protowire.AppendTag(b, recFieldEndedAtUs, protowire.VarintType)
	b = protowire.AppendVarint(b, r.EndedAtUs)
	b = protowire.AppendTag(b, recFieldHasEndedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, boolVarint(r.HasEndedAt))
	b = protowire.AppendTag(b, recFieldFirstTick, protowire.VarintType)
	b = protowire.AppendVarint(b, r.FirstTick)
	b = protowire.AppendTag(b, recFieldLastTick, protowire.VarintType)
	b = protowire.AppendVarint(b, r.LastTick)
	for i := range r.Snapshots {
		b = protowire.AppendTag(b, recFieldSnapshots, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Snapshots[i].Marshal())
	}
	b = protowire.AppendTag(b, recFieldConfig, protowire.BytesType)
	b = protowire.AppendString(b, r.Config)
	return b
}

// Unmarshal decodes b into r, replacing its contents.
func (r *NodeRecording) Unmarshal(b []byte) error {
	*r = NodeRecording{}
	off := 0
	for off < len(b) {
		num, typ, tagLen := protowire.ConsumeTag(b[off:])
		if tagLen < 0 {
			return fmt.Errorf("recordpb: bad tag in NodeRecording: %w", protowire.ParseError(tagLen))
		}
		off += tagLen
		switch num {
		case recFieldNodeID:
			v, l := protowire.ConsumeString(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			r.NodeID = v
			off += l
		case recFieldNodeName:
			v, l := protowire.ConsumeString(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			r.NodeName = v
			off += l
		case recFieldSessionName:
			v, l := protowire.ConsumeString(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			r.SessionName = v
			off += l
		case recFieldStartedAtUs:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			r.StartedAtUs = v
			off += l
		case recFieldEndedAtUs:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			r.EndedAtUs = v
			off += l
		case recFieldHasEndedAt:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			r.HasEndedAt = v != 0
			off += l
		case recFieldFirstTick:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			r.FirstTick = v
			off += l
		case recFieldLastTick:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			r.LastTick = v
			off += l
		case recFieldSnapshots:
			raw, l := protowire.ConsumeBytes(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			var snap NodeTickSnapshot
			if err := snap.Unmarshal(raw); err != nil {
				return err
			}
			r.Snapshots = append(r.Snapshots, snap)
			off += l
		case recFieldConfig:
			v, l := protowire.ConsumeString(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			r.Config = v
			off += l
		default:
			l := protowire.ConsumeFieldValue(num, typ, b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			off += l
		}
	}
	return nil
}

// SchedulerRecording mirrors the original's SchedulerRecording: the
// session-level manifest listing node recording files and per-tick
// execution order.
type SchedulerRecording struct {
	SchedulerID    string
	SessionName    string
	StartedAtUs    uint64
	EndedAtUs      uint64
	HasEndedAt     bool
	TotalTicks     uint64
	NodeRecordings map[string]string // node id -> relative path
	ExecutionOrder [][]string        // per-tick node name order
	Config         string
}

// Marshal encodes m in the wire format described above.
func (m *SchedulerRecording) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, schedFieldID, protowire.BytesType)
	b = protowire.AppendString(b, m.SchedulerID)
	b = protowire.AppendTag(b, schedFieldSessionName, protowire.BytesType)
	b = protowire.AppendString(b, m.SessionName)
	b = protowire.AppendTag(b, schedFieldStartedAtUs, protowire.VarintType)
	b = protowire.AppendVarint(b, m.StartedAtUs)
	b = protowire.AppendTag(b, schedFieldEndedAtUs, protowire.VarintType)
	b = protowire.AppendVarint(b, m.EndedAtUs)
	b = protowire.AppendTag(b, schedFieldHasEndedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, boolVarint(m.HasEndedAt))
	b = protowire.AppendTag(b, schedFieldTotalTicks, protowire.VarintType)
	b = protowire.AppendVarint(b, m.TotalTicks)
	for id, path := range m.NodeRecordings {
		b = appendMapEntry(b, schedFieldNodeRecordings, id, []byte(path))
	}
	for _, order := range m.ExecutionOrder {
		var list []byte
		for _, name := range order {
			list = protowire.AppendTag(list, orderListFieldNodeName, protowire.BytesType)
			list = protowire.AppendString(list, name)
		}
		b = protowire.AppendTag(b, schedFieldExecutionOrder, protowire.BytesType)
		b = protowire.AppendBytes(b, list)
	}
	b = protowire.AppendTag(b, schedFieldConfig, protowire.BytesType)
	b = protowire.AppendString(b, m.Config)
	return b
}

// Unmarshal decodes b into m, replacing its contents.
func (m *SchedulerRecording) Unmarshal(b []byte) error {
	*m = SchedulerRecording{NodeRecordings: map[string]string{}}
	off := 0
	for off < len(b) {
		num, typ, tagLen := protowire.ConsumeTag(b[off:])
		if tagLen < 0 {
			return protowire.ParseError(tagLen)
		}
		off += tagLen
		switch num {
		case schedFieldID:
			v, l := protowire.ConsumeString(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			m.SchedulerID = v
			off += l
		case schedFieldSessionName:
			v, l := protowire.ConsumeString(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			m.SessionName = v
			off += l
		case schedFieldStartedAtUs:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			m.StartedAtUs = v
			off += l
		case schedFieldEndedAtUs:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			m.EndedAtUs = v
			off += l
		case schedFieldHasEndedAt:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			m.HasEndedAt = v != 0
			off += l
		case schedFieldTotalTicks:
			v, l := protowire.ConsumeVarint(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			m.TotalTicks = v
			off += l
		case schedFieldNodeRecordings:
			raw, l := protowire.ConsumeBytes(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			key, val, _, err := consumeMapEntry(raw)
			if err != nil {
				return err
			}
			m.NodeRecordings[key] = string(val)
			off += l
		case schedFieldExecutionOrder:
			raw, l := protowire.ConsumeBytes(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			var order []string
			ioff := 0
			for ioff < len(raw) {
				inum, ityp, itagLen := protowire.ConsumeTag(raw[ioff:])
				if itagLen < 0 {
					return protowire.ParseError(itagLen)
				}
				ioff += itagLen
				if inum == orderListFieldNodeName && ityp == protowire.BytesType {
					name, nl := protowire.ConsumeString(raw[ioff:])
					if nl < 0 {
						return protowire.ParseError(nl)
					}
					order = append(order, name)
					ioff += nl
				} else {
					nl := protowire.ConsumeFieldValue(inum, ityp, raw[ioff:])
					if nl < 0 {
						return protowire.ParseError(nl)
					}
					ioff += nl
				}
			}
			m.ExecutionOrder = append(m.ExecutionOrder, order)
			off += l
		case schedFieldConfig:
			v, l := protowire.ConsumeString(b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			m.Config = v
			off += l
		default:
			l := protowire.ConsumeFieldValue(num, typ, b[off:])
			if l < 0 {
				return protowire.ParseError(l)
			}
			off += l
		}
	}
	return nil
}

func boolVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
