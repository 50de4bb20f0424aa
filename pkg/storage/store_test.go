package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/planwalk/planwalk/pkg/domain"
)

func sampleState(id string) *domain.TraversalState {
	return &domain.TraversalState{
		ID:            id,
		GraphID:       "g",
		CurrentNodeID: "work",
		Visited:       map[string]*domain.VisitRecord{"work": {Outcome: domain.VisitPending, Attempts: 1}},
		Path:          []string{"start", "work"},
		Turn:          4,
		Status:        domain.StatusActive,
	}
}

func runStoreTests(t *testing.T, store TraversalStore) {
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleState("t-1")))
	require.NoError(t, store.Save(ctx, sampleState("t-2")))

	got, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "work", got.CurrentNodeID)
	assert.Equal(t, 1, got.Visited["work"].Attempts)

	_, err = store.Get(ctx, "absent")
	assert.True(t, errors.Is(err, domain.ErrTraversalNotFound))

	// Terminal traversals drop out of the active list but stay readable.
	done := sampleState("t-2")
	done.Status = domain.StatusCompleted
	require.NoError(t, store.Save(ctx, done))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1"}, active)

	got, err = store.Get(ctx, "t-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	require.NoError(t, store.Delete(ctx, "t-1"))
	_, err = store.Get(ctx, "t-1")
	assert.Error(t, err)
	assert.True(t, errors.Is(store.Delete(ctx, "t-1"), domain.ErrTraversalNotFound))

	assert.NoError(t, store.Close())
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	runStoreTests(t, store)
}

// The stored copy is isolated from later caller mutation.
func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	state := sampleState("t-1")
	require.NoError(t, store.Save(ctx, state))
	state.CurrentNodeID = "mutated"
	state.Visited["work"].Attempts = 99

	got, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "work", got.CurrentNodeID)
	assert.Equal(t, 1, got.Visited["work"].Attempts)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleState("t-1")))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.ID)
}

func TestFileStore_SkipsCorruptSnapshots(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleState("t-1")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{not json"), 0o600))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1"}, active)
}

func TestDecodeState_RejectsMissingID(t *testing.T) {
	_, err := DecodeState([]byte(`{"graph_id":"g"}`))
	assert.Error(t, err)
}

// Encode/decode is loss-free for arbitrary traversal contents.
func TestStateRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		state := &domain.TraversalState{
			ID:                   rapid.StringMatching(`[a-z0-9-]{1,32}`).Draw(t, "id"),
			GraphID:              rapid.StringMatching(`[a-z_]{1,16}`).Draw(t, "graph"),
			CurrentNodeID:        rapid.StringMatching(`[a-z_]{1,16}`).Draw(t, "node"),
			Visited:              map[string]*domain.VisitRecord{},
			Path:                 rapid.SliceOfN(rapid.StringMatching(`[a-z_]{1,8}`), 1, 10).Draw(t, "path"),
			CompletedNodes:       rapid.SliceOf(rapid.StringMatching(`[a-z_]{1,8}`)).Draw(t, "completed"),
			TurnsSinceTransition: rapid.IntRange(0, 100).Draw(t, "tst"),
			Turn:                 rapid.IntRange(0, 1000).Draw(t, "turn"),
			Status: rapid.SampledFrom([]domain.TraversalStatus{
				domain.StatusActive, domain.StatusCompleted, domain.StatusEscalated, domain.StatusExpired,
			}).Draw(t, "status"),
		}
		for _, id := range state.Path {
			state.Visited[id] = &domain.VisitRecord{
				Outcome:  rapid.SampledFrom([]string{domain.VisitPending, domain.VisitSuccess, domain.VisitFail}).Draw(t, "outcome"),
				Attempts: rapid.IntRange(0, 20).Draw(t, "attempts"),
			}
		}

		data, err := EncodeState(state)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		restored, err := DecodeState(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		assert.Equal(t, state.ID, restored.ID)
		assert.Equal(t, state.CurrentNodeID, restored.CurrentNodeID)
		assert.Equal(t, state.Path, restored.Path)
		assert.Equal(t, state.Turn, restored.Turn)
		assert.Equal(t, state.Status, restored.Status)
		assert.Equal(t, len(state.Visited), len(restored.Visited))
	})
}
