// Package registry implements the per-scheduler discovery file: a JSON
// snapshot of a running scheduler's identity and node graph, written
// atomically so readers never observe a half-written file, and keyed by the
// scheduler's own PID so any reader can tell a live registry from an orphaned
// one left behind by a crashed process.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/horus-rt/horus/internal/herr"
	"github.com/horus-rt/horus/internal/shm"
)

// FilePrefix and FileSuffix bound the registry filename pattern
// ".horus_registry[suffix].json" used for both writing and discovery.
const (
	FilePrefix = ".horus_registry"
	FileSuffix = ".json"
)

// TopicRef names one side of a node's pub/sub declaration.
type TopicRef struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

// Node is one scheduler-owned node's externally visible shape, matching the
// "nodes" array in the registry file.
type Node struct {
	Name        string     `json:"name"`
	Priority    uint32     `json:"priority"`
	RateHz      float64    `json:"rate_hz"`
	Publishers  []TopicRef `json:"publishers"`
	Subscribers []TopicRef `json:"subscribers"`
}

// Entry is the full on-disk registry document for one scheduler.
type Entry struct {
	PID           uint32    `json:"pid"`
	SchedulerName string    `json:"scheduler_name"`
	WorkingDir    string    `json:"working_dir"`
	StartedAt     time.Time `json:"started_at"`
	Nodes         []Node    `json:"nodes"`
}

// Registry owns one scheduler's registry file for its lifetime: callers
// build the Entry once at startup, then call Write after node topology
// changes and Remove on clean shutdown.
type Registry struct {
	path string
}

// New creates a registry bound to a file disambiguated by a short uuid
// suffix, so two schedulers started in the same second never collide. dir is
// typically the user's home directory; an empty dir resolves to that home
// directory via os.UserHomeDir.
func New(dir string) (*Registry, error) {
	if dir == "" {
		var err error
		dir, err = os.UserHomeDir()
		if err != nil {
			return nil, herr.IoErr("registry.New", err)
		}
	}
	suffix := "_" + uuid.NewString()[:8]
	name := FilePrefix + suffix + FileSuffix
	return &Registry{path: filepath.Join(dir, name)}, nil
}

// Path returns the registry file's full path.
func (r *Registry) Path() string { return r.path }

// Write serializes entry and publishes it atomically: the document is
// written to a temp file in the same directory, then renamed into place, so
// a concurrent reader never observes a partial write. Matches the "written
// atomically (write-to-temp + rename)" contract.
func (r *Registry) Write(entry Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return herr.IoErr("registry.Write", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".horus_registry-tmp-*")
	if err != nil {
		return herr.IoErr("registry.Write", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return herr.IoErr("registry.Write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return herr.IoErr("registry.Write", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return herr.IoErr("registry.Write", err)
	}
	return nil
}

// Remove deletes the registry file. Safe to call on an already-removed file.
func (r *Registry) Remove() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return herr.IoErr("registry.Remove", err)
	}
	return nil
}

// Load reads and parses a single registry file without any liveness check.
func Load(path string) (Entry, error) {
	var entry Entry
	data, err := os.ReadFile(path)
	if err != nil {
		return entry, herr.IoErr("registry.Load", err)
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, herr.ValidationErr("registry.Load", fmt.Sprintf("malformed registry file %s: %v", path, err))
	}
	return entry, nil
}

// Discover lists every live scheduler registry file under dir, removing
// stale ones (PID no longer alive) along the way, per "stale registry files
// are garbage-collected by any reader". An empty dir uses the user's home
// directory.
func Discover(dir string) ([]Entry, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, herr.IoErr("registry.Discover", err)
		}
		dir = home
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, herr.IoErr("registry.Discover", err)
	}

	var live []Entry
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileSuffix) {
			continue
		}
		path := filepath.Join(dir, name)

		entry, err := Load(path)
		if err != nil {
			// Skip invalid files rather than failing the whole scan; a reader
			// should not be blocked by one scheduler's malformed registry.
			continue
		}
		if !shm.IsProcessAlive(entry.PID) {
			os.Remove(path)
			continue
		}
		live = append(live, entry)
	}
	return live, nil
}
