package reachability

import (
	"context"
	"sync"
)

// MemoryBackend keeps the closure in maps.
type MemoryBackend struct {
	mu      sync.RWMutex
	pairs   map[int64]map[int64]struct{}
	indexed map[int64]bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		pairs:   make(map[int64]map[int64]struct{}),
		indexed: make(map[int64]bool),
	}
}

func (m *MemoryBackend) Indexed(_ context.Context, commit int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexed[commit], nil
}

func (m *MemoryBackend) Reaches(_ context.Context, source, target int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pairs[source][target]
	return ok, nil
}

func (m *MemoryBackend) Record(_ context.Context, commit int64, parents []int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.pairs[commit]
	if !ok {
		set = make(map[int64]struct{})
		m.pairs[commit] = set
	}
	before := len(set)
	for _, p := range parents {
		set[p] = struct{}{}
		for anc := range m.pairs[p] {
			set[anc] = struct{}{}
		}
	}
	m.indexed[commit] = true
	return len(set) - before, nil
}

// Len returns the number of stored pairs.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, set := range m.pairs {
		n += len(set)
	}
	return n
}
