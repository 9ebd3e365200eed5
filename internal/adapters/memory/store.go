package memory

import (
	"context"
	"sync"
)

// registry holds committed records per prefix, shared by every handle in
// this process so that two stores over one prefix observe each other's
// commits the way separate processes do over a real backend.
var registry = struct {
	mu      sync.Mutex
	records map[string]map[string]any
}{records: map[string]map[string]any{}}

// Store implements ports.StateStore in process memory. It exists for unit
// tests only: records do not survive the process, so it cannot back real
// spawned workers.
type Store struct {
	mu       sync.Mutex
	prefix   string
	snapshot map[string]any
	pending  map[string]any
}

// New creates a memory store for one key prefix.
func New(prefix string) *Store {
	return &Store{
		prefix:   prefix,
		snapshot: map[string]any{},
		pending:  map[string]any{},
	}
}

// Reset clears all committed records. Tests use it to isolate cases.
func Reset() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.records = map[string]map[string]any{}
}

func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = value
}

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

func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.pending {
		s.snapshot[k] = v
	}
	s.pending = map[string]any{}

	committed := make(map[string]any, len(s.snapshot))
	for k, v := range s.snapshot {
		committed[k] = v
	}

	registry.mu.Lock()
	registry.records[s.prefix] = committed
	registry.mu.Unlock()
	return nil
}

func (s *Store) Reload(ctx context.Context) error {
	registry.mu.Lock()
	record := registry.records[s.prefix]
	snapshot := make(map[string]any, len(record))
	for k, v := range record {
		snapshot[k] = v
	}
	registry.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	s.pending = map[string]any{}
	return nil
}

func (s *Store) Destroy(ctx context.Context) error {
	registry.mu.Lock()
	delete(registry.records, s.prefix)
	registry.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = map[string]any{}
	s.pending = map[string]any{}
	return nil
}
