package replay

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/horus-rt/horus/internal/replay/recordpb"
)

// marshaler is satisfied by both recordpb message types.
type marshaler interface {
	Marshal() []byte
}

type unmarshaler interface {
	Unmarshal([]byte) error
}

func saveRecording(path string, m marshaler, compress bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	payload := m.Marshal()
	if !compress {
		_, err = f.Write(payload)
		return err
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write(payload); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

// isGzip checks the two-byte gzip magic so a load can transparently handle
// both compressed and uncompressed recordings without the caller needing to
// know which RecorderConfig.Compress setting produced the file.
func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func loadRecording(path string, m unmarshaler) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	payload := raw
	if isGzip(raw) {
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		defer gr.Close()
		payload, err = io.ReadAll(gr)
		if err != nil {
			return err
		}
	}
	return m.Unmarshal(payload)
}

// LoadNodeRecording loads a NodeRecording from path, transparently handling
// both compressed and uncompressed files.
func LoadNodeRecording(path string) (*recordpb.NodeRecording, error) {
	var r recordpb.NodeRecording
	if err := loadRecording(path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadSchedulerRecording loads a SchedulerRecording manifest from path.
func LoadSchedulerRecording(path string) (*recordpb.SchedulerRecording, error) {
	var r recordpb.SchedulerRecording
	if err := loadRecording(path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveSchedulerRecording writes m to path.
func SaveSchedulerRecording(path string, m *recordpb.SchedulerRecording, compress bool) error {
	return saveRecording(path, m, compress)
}
