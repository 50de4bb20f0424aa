package domain

// TraversalStatus is the lifecycle state of one run of a graph.
type TraversalStatus string

const (
	// StatusActive means the traversal holds a current node and accepts steps.
	StatusActive TraversalStatus = "active"
	// StatusCompleted means an exit node was reached.
	StatusCompleted TraversalStatus = "completed"
	// StatusEscalated means an escalate node was reached.
	StatusEscalated TraversalStatus = "escalated"
	// StatusExpired means the staleness timer tripped.
	StatusExpired TraversalStatus = "expired"
	// StatusAborted means the caller discarded the traversal explicitly.
	StatusAborted TraversalStatus = "aborted"
)

// Terminal reports whether the status admits no further transitions.
func (s TraversalStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusEscalated, StatusExpired, StatusAborted:
		return true
	default:
		return false
	}
}

// EventType classifies entries in the traversal event log.
type EventType string

const (
	EventGraphActivated EventType = "graph_activated"
	EventNodeEntered    EventType = "node_entered"
	EventNodeVerified   EventType = "node_verified"
	EventRetryTriggered EventType = "retry_triggered"
	EventEdgeFollowed   EventType = "edge_followed"
	EventGraphCompleted EventType = "graph_completed"
	EventGraphEscalated EventType = "graph_escalated"
	EventGraphExpired   EventType = "graph_expired"
	EventStallDetected  EventType = "stall_detected"
)

// Event is one entry in the bounded traversal event log.
type Event struct {
	Type      EventType      `json:"type"`
	TurnIndex int            `json:"turn_index"`
	NodeID    string         `json:"node_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// MaxEvents bounds the traversal event log. When full, the oldest event is
// evicted first.
const MaxEvents = 50

// VisitRecord tracks the verification outcome and attempt count for one
// visited node. Attempts reset when a node is re-entered through an edge,
// so loops (test → fix → test) start each visit fresh.
type VisitRecord struct {
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts"`
}

// Visit outcome labels recorded in VisitRecord.Outcome.
const (
	VisitPending = "pending"
	VisitSuccess = "success"
	VisitFail    = "fail"
)

// TraversalState is the mutable record of progress through one run of a
// graph. It is owned and passed by the caller; the engine mutates it
// exactly once per Step invocation. Once Status is terminal the state is
// frozen: no further mutation except explicit archival or discard.
type TraversalState struct {
	ID                   string                  `json:"id"`
	GraphID              string                  `json:"graph_id"`
	CurrentNodeID        string                  `json:"current_node_id"`
	Visited              map[string]*VisitRecord `json:"visited"`
	Path                 []string                `json:"path"`
	CompletedNodes       []string                `json:"completed_nodes,omitempty"`
	FailedNodes          []string                `json:"failed_nodes,omitempty"`
	TurnsSinceTransition int                     `json:"turns_since_transition"`
	Turn                 int                     `json:"turn"`
	Status               TraversalStatus         `json:"status"`
	Events               []Event                 `json:"events,omitempty"`
}

// NewTraversalState creates an active state positioned at the graph's
// start node. The caller supplies the traversal ID.
func NewTraversalState(id string, g *GraphDefinition) *TraversalState {
	return &TraversalState{
		ID:            id,
		GraphID:       g.ID,
		CurrentNodeID: g.StartNodeID,
		Visited:       make(map[string]*VisitRecord),
		Path:          []string{g.StartNodeID},
		Status:        StatusActive,
	}
}

// AppendEvent records an event, evicting the oldest entry once the log
// holds MaxEvents.
func (t *TraversalState) AppendEvent(evType EventType, nodeID string, payload map[string]any) Event {
	ev := Event{
		Type:      evType,
		TurnIndex: t.Turn,
		NodeID:    nodeID,
		Payload:   payload,
	}
	t.Events = append(t.Events, ev)
	if len(t.Events) > MaxEvents {
		t.Events = t.Events[len(t.Events)-MaxEvents:]
	}
	return ev
}

// VisitTo returns the visit record for a node, creating a pending record on
// first use.
func (t *TraversalState) VisitTo(nodeID string) *VisitRecord {
	if t.Visited == nil {
		t.Visited = make(map[string]*VisitRecord)
	}
	rec, ok := t.Visited[nodeID]
	if !ok {
		rec = &VisitRecord{Outcome: VisitPending}
		t.Visited[nodeID] = rec
	}
	return rec
}

// MarkCompleted records a unique node completion. Re-completing a node
// through a loop does not inflate progress.
func (t *TraversalState) MarkCompleted(nodeID string) bool {
	for _, id := range t.CompletedNodes {
		if id == nodeID {
			return false
		}
	}
	t.CompletedNodes = append(t.CompletedNodes, nodeID)
	return true
}

// MarkFailed records a unique node failure.
func (t *TraversalState) MarkFailed(nodeID string) {
	for _, id := range t.FailedNodes {
		if id == nodeID {
			return
		}
	}
	t.FailedNodes = append(t.FailedNodes, nodeID)
}

// Terminal reports whether the traversal has reached a terminal status.
func (t *TraversalState) Terminal() bool {
	return t.Status.Terminal()
}

// Abort freezes an active traversal at the caller's request. Aborting a
// traversal that is already terminal is a no-op.
func (t *TraversalState) Abort() {
	if t.Terminal() {
		return
	}
	t.Status = StatusAborted
}
