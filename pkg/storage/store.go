// Package storage persists traversal state between engine steps: an
// in-memory store for embedded use and a file-backed snapshot store for
// hosts that survive restarts.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/planwalk/planwalk/pkg/domain"
)

// TraversalStore persists traversal state between steps.
type TraversalStore interface {
	// Save writes a traversal's current state. Saving a terminal state is
	// allowed; terminal states stay retrievable until deleted.
	Save(ctx context.Context, state *domain.TraversalState) error
	// Get retrieves a traversal by ID.
	Get(ctx context.Context, id string) (*domain.TraversalState, error)
	// Delete discards a traversal.
	Delete(ctx context.Context, id string) error
	// ListActive returns the IDs of non-terminal traversals, sorted.
	ListActive(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryStore is an in-memory implementation of TraversalStore. States are
// stored as serialized copies, so a caller mutating its own state between
// steps never corrupts the stored version.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
	active map[string]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string][]byte),
		active: make(map[string]bool),
	}
}

// Save stores a snapshot of the traversal state.
func (s *MemoryStore) Save(_ context.Context, state *domain.TraversalState) error {
	if state.ID == "" {
		return fmt.Errorf("traversal state has no ID")
	}
	data, err := EncodeState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ID] = data
	s.active[state.ID] = !state.Terminal()
	return nil
}

// Get retrieves a traversal by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.TraversalState, error) {
	s.mu.RLock()
	data, ok := s.states[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTraversalNotFound, id)
	}
	return DecodeState(data)
}

// Delete discards a traversal.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrTraversalNotFound, id)
	}
	delete(s.states, id)
	delete(s.active, id)
	return nil
}

// ListActive returns the IDs of non-terminal traversals, sorted.
func (s *MemoryStore) ListActive(_ context.Context) ([]string, error) {
	s.mu.RLock()
	var ids []string
	for id, active := range s.active {
		if active {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
