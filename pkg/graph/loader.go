// Package graph loads and validates workflow graph definitions. Loading is
// a pure parse/validate step: it either produces a fully valid, immutable
// GraphDefinition or a structured GraphLoadError naming the offending node
// or edge, never a partially valid graph.
package graph

import (
	"fmt"

	"github.com/planwalk/planwalk/pkg/config"
	"github.com/planwalk/planwalk/pkg/domain"
)

// Load validates a graph spec and builds its immutable in-memory
// representation.
func Load(spec config.GraphSpec) (*domain.GraphDefinition, error) {
	if spec.ID == "" {
		return nil, domain.NewGraphLoadError(spec.ID, "graph id is required")
	}
	if len(spec.Nodes) == 0 {
		return nil, domain.NewGraphLoadError(spec.ID, "graph has no nodes")
	}
	if spec.Start == "" {
		return nil, domain.NewGraphLoadError(spec.ID, "graph has no start node")
	}

	staleness := spec.StalenessTurns
	if staleness <= 0 {
		staleness = config.DefaultStalenessTurns
	}

	threshold := spec.TriggerThreshold
	if threshold <= 0 && len(spec.Triggers) > 0 {
		threshold = config.DefaultTriggerThreshold
	}

	g := &domain.GraphDefinition{
		ID:               spec.ID,
		Name:             spec.Name,
		StalenessTurns:   staleness,
		StartNodeID:      spec.Start,
		Nodes:            make(map[string]domain.Node, len(spec.Nodes)),
		Edges:            make([]domain.Edge, 0, len(spec.Edges)),
		Triggers:         spec.Triggers,
		TriggerThreshold: threshold,
		Domains:          spec.Domains,
	}
	if g.Name == "" {
		g.Name = g.ID
	}

	startKindCount := 0
	for id, nodeSpec := range spec.Nodes {
		node, err := buildNode(spec.ID, id, nodeSpec)
		if err != nil {
			return nil, err
		}
		if node.Kind == domain.KindStart {
			startKindCount++
		}
		g.Nodes[id] = node
	}
	if startKindCount > 1 {
		return nil, domain.NewGraphLoadError(spec.ID, fmt.Sprintf("graph declares %d start nodes, at most one is allowed", startKindCount))
	}

	if _, ok := g.Nodes[spec.Start]; !ok {
		return nil, domain.NewGraphLoadError(spec.ID, fmt.Sprintf("start node %q does not exist", spec.Start))
	}

	for i, edgeSpec := range spec.Edges {
		edge, err := buildEdge(spec.ID, i, edgeSpec, g.Nodes)
		if err != nil {
			return nil, err
		}
		g.Edges = append(g.Edges, edge)
	}

	// The start node must be reachable from no other node.
	for i, edge := range g.Edges {
		if edge.To == g.StartNodeID {
			return nil, domain.NewEdgeLoadError(spec.ID, i, fmt.Sprintf("edge targets the start node %q", g.StartNodeID))
		}
	}

	// A start-kind node advances only through its always edge; without one
	// the traversal could never leave it.
	if start := g.Nodes[g.StartNodeID]; start.Kind == domain.KindStart {
		if !hasCondition(g.EdgesFrom(g.StartNodeID), domain.EdgeAlways) {
			return nil, domain.NewNodeLoadError(spec.ID, g.StartNodeID, "start node has no always edge")
		}
	}

	return g, nil
}

func buildNode(graphID, nodeID string, spec config.NodeSpec) (domain.Node, error) {
	kind := domain.NodeKind(spec.Kind)
	if spec.Kind == "" {
		kind = domain.KindTask
	}
	if !knownKind(kind) {
		return domain.Node{}, domain.NewNodeLoadError(graphID, nodeID, fmt.Sprintf("unknown node kind %q", spec.Kind))
	}

	node := domain.Node{
		ID:   nodeID,
		Name: spec.Name,
		Kind: kind,
	}

	switch kind {
	case domain.KindTask, domain.KindCheckpoint:
		task, err := buildTaskSpec(graphID, nodeID, spec, kind)
		if err != nil {
			return domain.Node{}, err
		}
		node.Task = task
	case domain.KindDecision:
		if spec.PolicyKey == "" {
			return domain.Node{}, domain.NewNodeLoadError(graphID, nodeID, "decision node requires policy_key")
		}
		node.Decision = &domain.DecisionSpec{PolicyKey: spec.PolicyKey}
	case domain.KindEscalate:
		severity := domain.Severity(spec.Severity)
		if spec.Severity == "" {
			severity = domain.SeverityContingent
		}
		if !knownSeverity(severity) {
			return domain.Node{}, domain.NewNodeLoadError(graphID, nodeID, fmt.Sprintf("unknown severity %q", spec.Severity))
		}
		node.Escalate = &domain.EscalateSpec{
			Severity:       severity,
			ReasonTemplate: spec.Reason,
		}
	case domain.KindStart, domain.KindExit:
		// No kind-specific fields.
	}

	return node, nil
}

func buildTaskSpec(graphID, nodeID string, spec config.NodeSpec, kind domain.NodeKind) (*domain.TaskSpec, error) {
	if kind == domain.KindTask && spec.Action == "" {
		return nil, domain.NewNodeLoadError(graphID, nodeID, "task node requires action")
	}
	if spec.MaxRetries < 0 {
		return nil, domain.NewNodeLoadError(graphID, nodeID, fmt.Sprintf("max_retries must be >= 0, got %d", spec.MaxRetries))
	}

	verify := domain.VerificationSpec{Type: domain.VerifyAnyOutput}
	if kind == domain.KindCheckpoint {
		// Reserved: checkpoints always verify as any_output in this version.
		if spec.Verify != nil && spec.Verify.Type != "" && spec.Verify.Type != string(domain.VerifyAnyOutput) {
			return nil, domain.NewNodeLoadError(graphID, nodeID, fmt.Sprintf("checkpoint node does not accept verification type %q", spec.Verify.Type))
		}
	} else if spec.Verify != nil {
		vtype := domain.VerifyType(spec.Verify.Type)
		if spec.Verify.Type == "" {
			vtype = domain.VerifyAnyOutput
		}
		if !knownVerifyType(vtype) {
			return nil, domain.NewNodeLoadError(graphID, nodeID, fmt.Sprintf("unknown verification type %q", spec.Verify.Type))
		}
		if (vtype == domain.VerifyContains || vtype == domain.VerifyNotContains) && spec.Verify.Value == "" {
			return nil, domain.NewNodeLoadError(graphID, nodeID, fmt.Sprintf("verification type %q requires a value", vtype))
		}
		verify = domain.VerificationSpec{Type: vtype, Value: spec.Verify.Value}
	}

	return &domain.TaskSpec{
		Action:       spec.Action,
		Tool:         spec.Tool,
		ExecutorHint: spec.Hint,
		Verify:       verify,
		MaxRetries:   spec.MaxRetries,
	}, nil
}

func buildEdge(graphID string, index int, spec config.EdgeSpec, nodes map[string]domain.Node) (domain.Edge, error) {
	if _, ok := nodes[spec.From]; !ok {
		return domain.Edge{}, domain.NewEdgeLoadError(graphID, index, fmt.Sprintf("from node %q does not exist", spec.From))
	}
	if _, ok := nodes[spec.To]; !ok {
		return domain.Edge{}, domain.NewEdgeLoadError(graphID, index, fmt.Sprintf("to node %q does not exist", spec.To))
	}

	condition := domain.EdgeCondition(spec.Condition)
	if spec.Condition == "" {
		condition = domain.EdgeAlways
	}
	if !knownCondition(condition) {
		return domain.Edge{}, domain.NewEdgeLoadError(graphID, index, fmt.Sprintf("unknown edge condition %q", spec.Condition))
	}

	return domain.Edge{From: spec.From, To: spec.To, Condition: condition}, nil
}

func knownKind(kind domain.NodeKind) bool {
	for _, k := range domain.KnownNodeKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func knownCondition(cond domain.EdgeCondition) bool {
	for _, c := range domain.KnownEdgeConditions {
		if c == cond {
			return true
		}
	}
	return false
}

func knownVerifyType(vtype domain.VerifyType) bool {
	for _, v := range domain.KnownVerifyTypes {
		if v == vtype {
			return true
		}
	}
	return false
}

func knownSeverity(severity domain.Severity) bool {
	for _, s := range domain.KnownSeverities {
		if s == severity {
			return true
		}
	}
	return false
}

func hasCondition(edges []domain.Edge, cond domain.EdgeCondition) bool {
	for _, e := range edges {
		if e.Condition == cond {
			return true
		}
	}
	return false
}
