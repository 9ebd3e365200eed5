package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store implements ports.StateStore on the local filesystem. It is the
// durable fallback backend: one JSON file per key prefix, written
// atomically so that a reader never observes a partial record.
type Store struct {
	mu       sync.Mutex
	dir      string
	prefix   string
	snapshot map[string]any
	pending  map[string]any
}

// DefaultDir is used when no state directory is configured. It must resolve
// identically in the parent and in spawned children, which inherit it
// through the store configuration rather than recomputing it.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "warden")
}

// New creates a file-backed store for one key prefix. If dir is empty,
// DefaultDir is used.
func New(dir, prefix string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{
		dir:      dir,
		prefix:   prefix,
		snapshot: map[string]any{},
		pending:  map[string]any{},
	}
}

// path derives the record file name from the prefix. Colons are valid in
// redis keys but awkward in file names, so they are flattened.
func (s *Store) path() string {
	name := strings.ReplaceAll(s.prefix, ":", "_") + ".json"
	return filepath.Join(s.dir, name)
}

// Set buffers a write until Commit.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = value
}

// Get reads from the current snapshot, preferring buffered writes.
func (s *Store) Get(key string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.pending[key]; ok {
		return v
	}
	if v, ok := s.snapshot[key]; ok {
		return v
	}
	return def
}

// Commit merges buffered writes into the snapshot and persists the whole
// record atomically: write to a temp file in the same directory, fsync,
// then rename over the destination.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.pending {
		s.snapshot[k] = v
	}
	s.pending = map[string]any{}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure state directory: %w", err)
	}

	data, err := json.Marshal(s.snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal state record: %w", err)
	}

	// Temp file in the same directory so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(s.dir, "tmp-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write state record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync state record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path()); err != nil {
		return fmt.Errorf("failed to publish state record: %w", err)
	}
	return nil
}

// Reload replaces the snapshot with the persisted record. A missing file
// loads as an empty record; buffered writes are discarded, since Reload is
// only ever called before reads in a stale process image.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			s.snapshot = map[string]any{}
			s.pending = map[string]any{}
			return nil
		}
		return fmt.Errorf("failed to read state record: %w", err)
	}

	snapshot := map[string]any{}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal state record: %w", err)
	}
	s.snapshot = snapshot
	s.pending = map[string]any{}
	return nil
}

// Destroy removes the record file. Removing an absent record is not an
// error.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = map[string]any{}
	s.pending = map[string]any{}

	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state record: %w", err)
	}
	return nil
}
