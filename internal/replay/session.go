package replay

import (
	"os"
	"path/filepath"

	"github.com/horus-rt/horus/internal/herr"
)

// SessionManager enumerates, sizes, and deletes recording sessions under one
// base directory, matching the original's RecordingManager.
type SessionManager struct {
	baseDir string
}

// NewSessionManager creates a manager rooted at baseDir.
func NewSessionManager(baseDir string) *SessionManager {
	return &SessionManager{baseDir: baseDir}
}

// DefaultSessionManager roots the manager at DefaultRecorderConfig's base
// directory.
func DefaultSessionManager() *SessionManager {
	return NewSessionManager(DefaultRecorderConfig().BaseDir)
}

// ListSessions returns the name of every session directory under the base
// directory.
func (m *SessionManager) ListSessions() ([]string, error) {
	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, herr.IoErr("replay.SessionManager.ListSessions", err)
	}
	var sessions []string
	for _, e := range entries {
		if e.IsDir() {
			sessions = append(sessions, e.Name())
		}
	}
	return sessions, nil
}

// SessionRecordings returns the path of every recording file within session.
func (m *SessionManager) SessionRecordings(session string) ([]string, error) {
	dir := filepath.Join(m.baseDir, session)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, herr.IoErr("replay.SessionManager.SessionRecordings", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == "."+RecordingExt {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// DeleteSession removes a session directory and everything under it.
func (m *SessionManager) DeleteSession(session string) error {
	dir := filepath.Join(m.baseDir, session)
	if err := os.RemoveAll(dir); err != nil {
		return herr.IoErr("replay.SessionManager.DeleteSession", err)
	}
	return nil
}

// TotalSize sums the on-disk size of every recording file across every
// session.
func (m *SessionManager) TotalSize() (int64, error) {
	sessions, err := m.ListSessions()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, session := range sessions {
		paths, err := m.SessionRecordings(session)
		if err != nil {
			return 0, err
		}
		for _, p := range paths {
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			total += info.Size()
		}
	}
	return total, nil
}
