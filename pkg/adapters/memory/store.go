package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Store implements ports.MapStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Node
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Node),
	}
}

// Save persists a copy of the tree.
func (s *Store) Save(ctx context.Context, mapID string, root *domain.Node) error {
	copied := root.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[mapID] = copied
	return nil
}

// Load returns a copy of the stored tree so callers cannot mutate the store.
func (s *Store) Load(ctx context.Context, mapID string) (*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root, ok := s.data[mapID]
	if !ok {
		return nil, domain.ErrMapNotFound
	}
	return root.Clone(), nil
}

// Delete removes the map.
func (s *Store) Delete(ctx context.Context, mapID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, mapID)
	return nil
}

// List returns the stored map IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
