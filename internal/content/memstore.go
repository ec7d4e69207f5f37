package content

import (
	"context"
	"sync"
)

// MemoryEventStore is an in-process EventStore.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryEventStore struct {
	mu      sync.Mutex
	streams map[string][]Envelope
	states  map[string]*Content
}

// NewMemoryEventStore creates an empty store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		streams: make(map[string][]Envelope),
		states:  make(map[string]*Content),
	}
}

// LoadEvents returns a copy of the stream for id, oldest first.
func (m *MemoryEventStore) LoadEvents(_ context.Context, id string) ([]Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope{}, m.streams[id]...), nil
}

// AppendEvents appends envs if the stream is at version expected.
func (m *MemoryEventStore) AppendEvents(_ context.Context, id string, expected int64, envs []Envelope, state *Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := int64(len(m.streams[id]))
	if current != expected {
		return NewVersionConflict(id, expected, current)
	}
	m.streams[id] = append(m.streams[id], envs...)
	m.states[id] = state.Clone()
	return nil
}

// State returns the last persisted state for id.
func (m *MemoryEventStore) State(id string) *Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id].Clone()
}
