package history

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is a process-local shard used for tests and URL-less
// development runs. Semantics match the Postgres backend: one record
// per user, upsert overwrites, eviction deletes by last update age.
type MemoryBackend struct {
	name string

	mu      sync.RWMutex
	records map[string]Record
	closed  bool
}

func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{name: name, records: make(map[string]Record)}
}

func (m *MemoryBackend) Name() string { return m.name }

func (m *MemoryBackend) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNoShards
	}
	if existing, ok := m.records[rec.UserID]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	m.records[rec.UserID] = rec
	return nil
}

func (m *MemoryBackend) Find(_ context.Context, userID string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[userID]
	return rec, ok, nil
}

func (m *MemoryBackend) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for userID, rec := range m.records {
		if rec.LastUpdated.Before(cutoff) {
			delete(m.records, userID)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryBackend) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryBackend) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
