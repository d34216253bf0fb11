package retry

import (
	"context"
	"sync"
)

//go:generate go run go.uber.org/mock/mockgen@v0.4.0 -source store.go -destination ./mock/store.go

// Store keeps retry counts and ack flags across redeliveries.
//
// Increment must be atomic per key and must refresh the key expiry when the
// implementation supports expiry. Ack and HasBeenAcked operate on AckKey(key).
type Store interface {
	// Get returns the count stored under key, found is false when there is no prior activity
	Get(ctx context.Context, key string) (count int64, found bool, err error)
	// Increment increments the counter under key and returns the new value
	Increment(ctx context.Context, key string) (int64, error)
	// Clear removes key entirely
	Clear(ctx context.Context, key string) error
	// Ack sets the ack flag of key
	Ack(ctx context.Context, key string) error
	// HasBeenAcked reads the ack flag of key
	HasBeenAcked(ctx context.Context, key string) (bool, error)
}

// AckKey derives the key of the ack flag kept for key
func AckKey(key string) string {
	return "ack-" + key
}

// MemoryStore is an in-process Store, its lifetime is the lifetime of the process.
// Keys never expire.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryStore initializes MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int64)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.counts[key]
	return count, ok, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.counts, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ack(ctx context.Context, key string) error {
	_, err := s.Increment(ctx, AckKey(key))
	return err
}

func (s *MemoryStore) HasBeenAcked(ctx context.Context, key string) (bool, error) {
	count, _, err := s.Get(ctx, AckKey(key))
	return count > 0, err
}
