package domain

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testGraph() *GraphDefinition {
	return &GraphDefinition{
		ID:             "build",
		Name:           "Build Workflow",
		StalenessTurns: 15,
		StartNodeID:    "start",
		Nodes: map[string]Node{
			"start": {ID: "start", Kind: KindStart},
			"work":  {ID: "work", Kind: KindTask, Task: &TaskSpec{Action: "do it"}},
			"done":  {ID: "done", Kind: KindExit},
		},
		Edges: []Edge{
			{From: "start", To: "work", Condition: EdgeAlways},
			{From: "work", To: "done", Condition: EdgeOnSuccess},
		},
	}
}

func TestNewTraversalState(t *testing.T) {
	state := NewTraversalState("t-1", testGraph())

	assert.Equal(t, "t-1", state.ID)
	assert.Equal(t, "build", state.GraphID)
	assert.Equal(t, "start", state.CurrentNodeID)
	assert.Equal(t, []string{"start"}, state.Path)
	assert.Equal(t, StatusActive, state.Status)
	assert.False(t, state.Terminal())
}

func TestAppendEvent_EvictsOldest(t *testing.T) {
	state := NewTraversalState("t-1", testGraph())

	for i := 0; i < MaxEvents+10; i++ {
		state.AppendEvent(EventNodeEntered, fmt.Sprintf("n%d", i), nil)
	}

	require.Len(t, state.Events, MaxEvents)
	// The first ten events were evicted.
	assert.Equal(t, "n10", state.Events[0].NodeID)
	assert.Equal(t, fmt.Sprintf("n%d", MaxEvents+9), state.Events[len(state.Events)-1].NodeID)
}

func TestMarkCompleted_Unique(t *testing.T) {
	state := NewTraversalState("t-1", testGraph())

	assert.True(t, state.MarkCompleted("work"))
	assert.False(t, state.MarkCompleted("work"))
	assert.Equal(t, []string{"work"}, state.CompletedNodes)
}

func TestMarkFailed_Unique(t *testing.T) {
	state := NewTraversalState("t-1", testGraph())

	state.MarkFailed("work")
	state.MarkFailed("work")
	assert.Equal(t, []string{"work"}, state.FailedNodes)
}

func TestAbort(t *testing.T) {
	state := NewTraversalState("t-1", testGraph())
	state.Abort()
	assert.Equal(t, StatusAborted, state.Status)

	// Aborting a terminal traversal does not change its status.
	state.Status = StatusCompleted
	state.Abort()
	assert.Equal(t, StatusCompleted, state.Status)
}

func TestTraversalState_JSONRoundTrip(t *testing.T) {
	state := NewTraversalState("t-1", testGraph())
	state.CurrentNodeID = "work"
	state.Path = append(state.Path, "work")
	state.Visited["work"] = &VisitRecord{Outcome: VisitPending, Attempts: 2}
	state.MarkCompleted("other")
	state.TurnsSinceTransition = 3
	state.Turn = 7
	state.AppendEvent(EventNodeEntered, "work", map[string]any{"condition": "always"})

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var restored TraversalState
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, state.ID, restored.ID)
	assert.Equal(t, state.CurrentNodeID, restored.CurrentNodeID)
	assert.Equal(t, state.Path, restored.Path)
	assert.Equal(t, state.Visited["work"].Attempts, restored.Visited["work"].Attempts)
	assert.Equal(t, state.CompletedNodes, restored.CompletedNodes)
	assert.Equal(t, state.TurnsSinceTransition, restored.TurnsSinceTransition)
	assert.Equal(t, state.Turn, restored.Turn)
	require.Len(t, restored.Events, 1)
	assert.Equal(t, EventNodeEntered, restored.Events[0].Type)
}

// Serialization round-trip holds for arbitrary state contents, not just
// hand-picked ones.
func TestTraversalState_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOfN(rapid.StringMatching(`[a-z_]{1,12}`), 1, 8).Draw(t, "ids")

		state := &TraversalState{
			ID:            rapid.StringMatching(`[a-z0-9-]{1,24}`).Draw(t, "id"),
			GraphID:       "g",
			CurrentNodeID: ids[0],
			Visited:       make(map[string]*VisitRecord),
			Path:          ids,
			Turn:          rapid.IntRange(0, 1000).Draw(t, "turn"),
			Status:        StatusActive,
		}
		for _, id := range ids {
			state.Visited[id] = &VisitRecord{
				Outcome:  rapid.SampledFrom([]string{VisitPending, VisitSuccess, VisitFail}).Draw(t, "outcome"),
				Attempts: rapid.IntRange(0, 10).Draw(t, "attempts"),
			}
		}

		data, err := json.Marshal(state)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var restored TraversalState
		if err := json.Unmarshal(data, &restored); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		assert.Equal(t, state.ID, restored.ID)
		assert.Equal(t, state.Path, restored.Path)
		assert.Equal(t, state.Turn, restored.Turn)
		for id, rec := range state.Visited {
			restoredRec := restored.Visited[id]
			if restoredRec == nil {
				t.Fatalf("visited %q lost in round trip", id)
			}
			assert.Equal(t, rec.Attempts, restoredRec.Attempts)
			assert.Equal(t, rec.Outcome, restoredRec.Outcome)
		}
	})
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusActive.Terminal())
	for _, status := range []TraversalStatus{StatusCompleted, StatusEscalated, StatusExpired, StatusAborted} {
		assert.True(t, status.Terminal(), string(status))
	}
}
