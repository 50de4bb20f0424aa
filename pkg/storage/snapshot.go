package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/planwalk/planwalk/pkg/domain"
)

// EncodeState serializes a traversal state to JSON. Together with
// DecodeState it guarantees a loss-free round trip: a decoded state
// resumes exactly where the encoded one stopped.
func EncodeState(state *domain.TraversalState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode traversal state: %w", err)
	}
	return data, nil
}

// DecodeState deserializes a traversal state from JSON.
func DecodeState(data []byte) (*domain.TraversalState, error) {
	var state domain.TraversalState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode traversal state: %w", err)
	}
	if state.ID == "" {
		return nil, fmt.Errorf("decode traversal state: missing id")
	}
	if state.Visited == nil {
		state.Visited = make(map[string]*domain.VisitRecord)
	}
	return &state, nil
}

// FileStore persists traversals as one JSON file per traversal under a
// directory. Writes go through a temp file and rename, so a crash mid-save
// never leaves a truncated snapshot behind.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the snapshot directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes a traversal snapshot atomically.
func (s *FileStore) Save(_ context.Context, state *domain.TraversalState) error {
	if state.ID == "" {
		return fmt.Errorf("traversal state has no ID")
	}
	data, err := EncodeState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, state.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(state.ID)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Get reads a traversal snapshot by ID.
func (s *FileStore) Get(_ context.Context, id string) (*domain.TraversalState, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTraversalNotFound, id)
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return DecodeState(data)
}

// Delete removes a traversal snapshot.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", domain.ErrTraversalNotFound, id)
		}
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// ListActive scans the snapshot directory for non-terminal traversals.
func (s *FileStore) ListActive(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		state, err := DecodeState(data)
		if err != nil {
			// Unreadable snapshots are skipped, not fatal: one corrupt file
			// must not take down resume-on-start.
			continue
		}
		if !state.Terminal() {
			ids = append(ids, state.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
