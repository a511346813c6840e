// Package statefile persists the engine's full snapshot as a versioned
// JSON document with atomic replace semantics: the snapshot is written to
// a temporary file and renamed over the previous one, so a crash during
// save never leaves a partially written state file behind.
package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nhle/jirawatch/internal/model"
)

var (
	// ErrNotFound is returned by Load when no snapshot exists yet.
	ErrNotFound = errors.New("statefile: no state found")

	// ErrUnsupportedVersion is returned by Load when the snapshot was
	// written by an unknown (usually newer) schema version. The file is
	// left untouched rather than silently discarded.
	ErrUnsupportedVersion = errors.New("statefile: unsupported state version")
)

// Store reads and writes the persisted snapshot at a fixed path.
// Saves are serialized so writes land in mutation order.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store persisting to the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// Load reads and validates the snapshot. Running slots are returned
// verbatim; rebasing their last-start timestamps is the caller's concern.
func (s *Store) Load() (*model.PersistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", s.path, err)
	}

	var state model.PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}

	if state.Version != model.StateVersion {
		return nil, fmt.Errorf("%w: got %d, want %d",
			ErrUnsupportedVersion, state.Version, model.StateVersion)
	}

	return &state, nil
}

// Save writes the snapshot atomically. The version field is stamped here
// so callers cannot accidentally persist an unversioned document.
func (s *Store) Save(state *model.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.Version = model.StateVersion

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", dir, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing state file %s: %w", s.path, err)
	}

	return nil
}
