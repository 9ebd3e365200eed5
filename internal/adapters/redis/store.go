package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.StateStore using Redis. It is the fast backend:
// the whole record is one JSON blob under the key prefix, so Commit is a
// single SET and cross-process visibility is immediate.
type Store struct {
	mu       sync.Mutex
	client   *backend.Client
	prefix   string
	ttl      time.Duration
	snapshot map[string]any
	pending  map[string]any
}

type Option func(*Store)

// WithTTL sets an expiration on the record. Zero means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New creates a Redis store for one key prefix.
func New(address, password string, db int, prefix string, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, prefix, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, prefix string, opts ...Option) *Store {
	store := &Store{
		client:   client,
		prefix:   prefix,
		snapshot: map[string]any{},
		pending:  map[string]any{},
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Ping verifies the backend is reachable. The store factory uses it to
// decide whether to fall back to the durable backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
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

// Commit merges buffered writes into the snapshot and publishes the record
// with one SET.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.pending {
		s.snapshot[k] = v
	}
	s.pending = map[string]any{}

	data, err := json.Marshal(s.snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal state record: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save record to redis: %w", err)
	}
	return nil
}

// Reload replaces the snapshot with the persisted record. A missing key
// loads as an empty record.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := s.client.Get(ctx, s.prefix).Result()
	if err != nil {
		if err == backend.Nil {
			s.snapshot = map[string]any{}
			s.pending = map[string]any{}
			return nil
		}
		return fmt.Errorf("failed to load record from redis: %w", err)
	}

	snapshot := map[string]any{}
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal state record: %w", err)
	}
	s.snapshot = snapshot
	s.pending = map[string]any{}
	return nil
}

// Destroy deletes the record key.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = map[string]any{}
	s.pending = map[string]any{}

	if err := s.client.Del(ctx, s.prefix).Err(); err != nil {
		return fmt.Errorf("failed to delete record from redis: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
