// Package store persists per-room widget state so rooms survive hub
// restarts. The hub treats state as an opaque JSON snapshot keyed by room
// name.
package store

import (
	"context"
	"sort"
	"sync"
)

// Store persists room state snapshots.
type Store interface {
	// Load returns the stored snapshot for a room, or nil if none exists.
	Load(ctx context.Context, room string) ([]byte, error)
	// Save replaces the stored snapshot for a room.
	Save(ctx context.Context, room string, state []byte) error
	// Delete removes a room's snapshot.
	Delete(ctx context.Context, room string) error
	// Rooms lists the rooms with stored snapshots.
	Rooms(ctx context.Context) ([]string, error)
}

// MemoryStore keeps snapshots in process memory. It is the default for
// single-instance deployments without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	state map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, room string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.state[room]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, room string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, len(state))
	copy(data, state)
	s.state[room] = data
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, room)
	return nil
}

func (s *MemoryStore) Rooms(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.state))
	for room := range s.state {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms, nil
}
