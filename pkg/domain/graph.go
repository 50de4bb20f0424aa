package domain

// NodeKind classifies a node in a workflow graph.
type NodeKind string

const (
	// KindStart marks the entry node of a graph. It carries no work and is
	// passed through via its always edge.
	KindStart NodeKind = "start"
	// KindTask is a unit of work executed outside the engine and judged by
	// a verification spec.
	KindTask NodeKind = "task"
	// KindDecision delegates branch selection to an external decision
	// policy keyed by PolicyKey. A decision node never executes anything.
	KindDecision NodeKind = "decision"
	// KindEscalate terminates the traversal and signals that automated
	// progress has failed and external intervention is required.
	KindEscalate NodeKind = "escalate"
	// KindExit terminates the traversal successfully.
	KindExit NodeKind = "exit"
	// KindCheckpoint is reserved for future persistence use. It is parsed
	// and validated but behaves as a pass-through task with any_output
	// verification in this version.
	KindCheckpoint NodeKind = "checkpoint"
)

// KnownNodeKinds lists every kind the loader accepts.
var KnownNodeKinds = []NodeKind{KindStart, KindTask, KindDecision, KindEscalate, KindExit, KindCheckpoint}

// EdgeCondition names the traversal outcome under which an edge is taken.
type EdgeCondition string

const (
	// EdgeOnSuccess is taken when a node's verification passes.
	EdgeOnSuccess EdgeCondition = "on_success"
	// EdgeOnFail is taken when retries are exhausted and no on_exhaust edge exists.
	EdgeOnFail EdgeCondition = "on_fail"
	// EdgeOnRetry is taken on a failed attempt while retries remain.
	EdgeOnRetry EdgeCondition = "on_retry"
	// EdgeOnExhaust is taken when a node's attempts reach max_retries + 1.
	EdgeOnExhaust EdgeCondition = "on_exhaust"
	// EdgeAlways is the universal fallback when no more specific condition applies.
	EdgeAlways EdgeCondition = "always"
)

// KnownEdgeConditions lists every condition the loader accepts.
var KnownEdgeConditions = []EdgeCondition{EdgeOnSuccess, EdgeOnFail, EdgeOnRetry, EdgeOnExhaust, EdgeAlways}

// VerifyType names a verification strategy applied to task output.
type VerifyType string

const (
	// VerifyAnyOutput passes when the output is a non-blank string.
	VerifyAnyOutput VerifyType = "any_output"
	// VerifyContains passes when the output contains Value, case-insensitive.
	VerifyContains VerifyType = "contains"
	// VerifyNotContains passes when the output does not contain Value, case-insensitive.
	VerifyNotContains VerifyType = "not_contains"
	// VerifyExitCodeZero passes when none of the configured failure markers
	// appear in the output. The marker set is a verifier configuration
	// concern, not an engine concern.
	VerifyExitCodeZero VerifyType = "exit_code_zero"
	// VerifyManual always passes and records that no automated check occurred.
	VerifyManual VerifyType = "manual"
	// VerifyExternal delegates to an injected predicate for checks the
	// engine cannot perform itself (filesystem state, service health, ...).
	VerifyExternal VerifyType = "external"
)

// KnownVerifyTypes lists every verification type the loader accepts.
var KnownVerifyTypes = []VerifyType{VerifyAnyOutput, VerifyContains, VerifyNotContains, VerifyExitCodeZero, VerifyManual, VerifyExternal}

// Severity is an escalation severity level. The ladder follows the PACE
// convention: primary, alternate, contingent, emergency.
type Severity string

const (
	SeverityPrimary    Severity = "primary"
	SeverityAlternate  Severity = "alternate"
	SeverityContingent Severity = "contingent"
	SeverityEmergency  Severity = "emergency"
)

// KnownSeverities lists every severity the loader accepts.
var KnownSeverities = []Severity{SeverityPrimary, SeverityAlternate, SeverityContingent, SeverityEmergency}

// VerificationSpec describes the deterministic check applied to a task
// node's execution output to decide success or failure.
type VerificationSpec struct {
	Type  VerifyType `json:"type"`
	Value string     `json:"value,omitempty"`
}

// TaskSpec carries the fields required by task (and checkpoint) nodes.
type TaskSpec struct {
	Action       string           `json:"action"`
	Tool         string           `json:"tool,omitempty"`
	ExecutorHint string           `json:"executor_hint,omitempty"`
	Verify       VerificationSpec `json:"verify"`
	MaxRetries   int              `json:"max_retries"`
}

// DecisionSpec carries the fields required by decision nodes. PolicyKey is
// an opaque identifier resolved by an external decision policy.
type DecisionSpec struct {
	PolicyKey string `json:"policy_key"`
}

// EscalateSpec carries the fields required by escalate nodes. The reason
// template may reference {graph}, {node}, {completed} and {total}.
type EscalateSpec struct {
	Severity       Severity `json:"severity"`
	ReasonTemplate string   `json:"reason"`
}

// Node is a unit of work or control-flow decision in a workflow graph.
// Kind-specific fields live in tagged sub-specs; the loader guarantees the
// spec matching Kind is present and the others are nil.
type Node struct {
	ID       string        `json:"id"`
	Name     string        `json:"name,omitempty"`
	Kind     NodeKind      `json:"kind"`
	Task     *TaskSpec     `json:"task,omitempty"`
	Decision *DecisionSpec `json:"decision,omitempty"`
	Escalate *EscalateSpec `json:"escalate,omitempty"`
}

// DisplayName returns the node's human-readable name, falling back to its ID.
func (n *Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// MaxRetries returns the retry budget for the node. Only task and
// checkpoint nodes retry; every other kind reports zero.
func (n *Node) MaxRetries() int {
	if n.Task != nil {
		return n.Task.MaxRetries
	}
	return 0
}

// Edge is a directed, conditionally-taken transition between two nodes.
// Definition order is significant: when several edges satisfy the same
// condition for the same source node, the first one loaded wins.
type Edge struct {
	From      string        `json:"from"`
	To        string        `json:"to"`
	Condition EdgeCondition `json:"condition"`
}

// GraphDefinition is an immutable, pre-authored workflow graph. It is
// created once at load time, never mutated, and shared by reference across
// all traversals of that graph.
type GraphDefinition struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	StalenessTurns int             `json:"staleness_turns"`
	StartNodeID    string          `json:"start"`
	Nodes          map[string]Node `json:"nodes"`
	Edges          []Edge          `json:"edges"`

	// Selection metadata used by the graph library to match a graph to a
	// request. Not consulted by the traversal engine itself.
	Triggers         []string `json:"triggers,omitempty"`
	TriggerThreshold int      `json:"trigger_threshold,omitempty"`
	Domains          []string `json:"domains,omitempty"`
}

// Node returns the node with the given ID, if present.
func (g *GraphDefinition) Node(id string) (Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// EdgesFrom returns the outgoing edges of a node in definition order.
func (g *GraphDefinition) EdgesFrom(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// TaskCount reports how many task nodes the graph contains. Decision,
// start and checkpoint nodes are routed automatically and do not count
// toward progress.
func (g *GraphDefinition) TaskCount() int {
	count := 0
	for _, n := range g.Nodes {
		if n.Kind == KindTask {
			count++
		}
	}
	return count
}
