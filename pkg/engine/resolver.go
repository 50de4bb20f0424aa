package engine

import (
	"github.com/planwalk/planwalk/pkg/domain"
	"github.com/planwalk/planwalk/pkg/engine/runtime"
)

// RouteReason explains how the resolver arrived at its resolution.
type RouteReason string

const (
	// RouteAdvance means a matching edge was found and should be followed.
	RouteAdvance RouteReason = "advance"
	// RouteRetrySelfLoop means retries remain and no on_retry edge is
	// defined: the traversal stays on the same node for another attempt.
	RouteRetrySelfLoop RouteReason = "retry_self_loop"
	// RouteStall means no edge matches the outcome. A stall is not an
	// error; the staleness timer eventually resolves it.
	RouteStall RouteReason = "stall"
)

// Resolution is the resolver's verdict for one (node, outcome) pair.
type Resolution struct {
	Reason    RouteReason
	Edge      *domain.Edge
	Condition domain.EdgeCondition
}

// ResolveEdge selects the next edge for a node given its verification
// outcome and the number of attempts completed so far. Selection follows a
// strict priority order; within one condition, the first edge in the
// graph's definition order wins.
//
// Retry arithmetic: attempts counts completed executions of the node, so a
// node with max_retries = R is attempted at most R + 1 times before the
// exhaustion path is mandatory.
func ResolveEdge(g *domain.GraphDefinition, node *domain.Node, outcome runtime.Outcome, attempts int) Resolution {
	candidates := g.EdgesFrom(node.ID)

	switch outcome {
	case runtime.OutcomeFail:
		if attempts < node.MaxRetries()+1 {
			if edge := firstMatch(candidates, domain.EdgeOnRetry); edge != nil {
				return Resolution{Reason: RouteAdvance, Edge: edge, Condition: domain.EdgeOnRetry}
			}
			// No on_retry edge: implicit self-loop rather than a stall, to
			// preserve forward-progress intent.
			return Resolution{Reason: RouteRetrySelfLoop}
		}
		for _, cond := range []domain.EdgeCondition{domain.EdgeOnExhaust, domain.EdgeOnFail, domain.EdgeAlways} {
			if edge := firstMatch(candidates, cond); edge != nil {
				return Resolution{Reason: RouteAdvance, Edge: edge, Condition: cond}
			}
		}
		return Resolution{Reason: RouteStall}
	case runtime.OutcomeSuccess:
		for _, cond := range []domain.EdgeCondition{domain.EdgeOnSuccess, domain.EdgeAlways} {
			if edge := firstMatch(candidates, cond); edge != nil {
				return Resolution{Reason: RouteAdvance, Edge: edge, Condition: cond}
			}
		}
		return Resolution{Reason: RouteStall}
	default:
		// OutcomeNone never reaches the resolver: the engine stays put and
		// reports awaiting execution. Treat anything else as a stall.
		return Resolution{Reason: RouteStall}
	}
}

// resolveAlways finds the unconditional edge used to pass through start
// and checkpoint nodes.
func resolveAlways(g *domain.GraphDefinition, nodeID string) *domain.Edge {
	return firstMatch(g.EdgesFrom(nodeID), domain.EdgeAlways)
}

func firstMatch(edges []domain.Edge, cond domain.EdgeCondition) *domain.Edge {
	for i := range edges {
		if edges[i].Condition == cond {
			return &edges[i]
		}
	}
	return nil
}
