package catalog

import (
	"sync"

	"songforge/pkg/domain"
)

// MemoryStore keeps the catalog in-process; the default when no database
// is configured, so the demo runs with zero setup.
type MemoryStore struct {
	mu     sync.RWMutex
	tracks map[string]domain.Generation
	order  []string
}

// NewMemoryStore initializes an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tracks: make(map[string]domain.Generation)}
}

// SaveTrack stores or replaces a track and tracks insertion order.
func (m *MemoryStore) SaveTrack(g domain.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tracks[g.ID]; !exists {
		m.order = append(m.order, g.ID)
	}
	m.tracks[g.ID] = g
	return nil
}

// ListTracks returns tracks in insertion order.
func (m *MemoryStore) ListTracks() ([]domain.Generation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Generation, 0, len(m.order))
	for _, id := range m.order {
		if g, ok := m.tracks[id]; ok {
			res = append(res, g)
		}
	}
	return res, nil
}

// GetTrack retrieves a track by ID.
func (m *MemoryStore) GetTrack(id string) (domain.Generation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.tracks[id]
	return g, ok, nil
}

// DeleteTrack removes a track.
func (m *MemoryStore) DeleteTrack(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracks, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return nil
}
