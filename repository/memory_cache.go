package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCacheStore is the in-process ephemeral cache, used when Valkey is
// not enabled. Entries expire lazily.
type MemoryCacheStore struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[string]memoryEntry
}

func NewMemoryCacheStore(clock clockwork.Clock) *MemoryCacheStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCacheStore{
		clock:   clock,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryCacheStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if !s.clock.Now().Before(entry.expiresAt) {
		s.mu.Lock()
		if cur, still := s.entries[key]; still && cur.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return true, nil
}

func (s *MemoryCacheStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{data: data, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *MemoryCacheStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

// Len counts live entries, pruning expired ones.
func (s *MemoryCacheStore) Len(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	return len(s.entries)
}
