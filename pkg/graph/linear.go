package graph

import (
	"fmt"

	"github.com/planwalk/planwalk/pkg/config"
	"github.com/planwalk/planwalk/pkg/domain"
)

// Failure policies a linear step may declare.
const (
	onFailWarn  = "warn"
	onFailRetry = "retry"
	onFailSkip  = "skip"
	onFailAbort = "abort"
)

// Node IDs synthesized by the adapter.
const (
	linearExitNodeID  = "__exit"
	linearAbortNodeID = "__aborted"
)

// AdaptLinear compiles a simple ordered task list into an equivalent
// graph, so the traversal engine has exactly one execution path regardless
// of authoring style. Each step becomes a task node with an on_success
// edge to its successor; the final step feeds a synthesized exit node.
// Failure policies compile to edge sets: warn and retry rely on the
// implicit self-loop, skip adds an on_exhaust edge to the next step, and
// abort adds an on_exhaust edge to a synthesized escalate node.
func AdaptLinear(plan config.LinearPlanSpec) (*domain.GraphDefinition, error) {
	if plan.ID == "" {
		return nil, domain.NewGraphLoadError(plan.ID, "plan id is required")
	}
	if len(plan.Steps) == 0 {
		return nil, domain.NewGraphLoadError(plan.ID, "plan has no steps")
	}

	spec := config.GraphSpec{
		ID:               plan.ID,
		Name:             plan.Name,
		StalenessTurns:   plan.StalenessTurns,
		Nodes:            make(map[string]config.NodeSpec, len(plan.Steps)+2),
		Triggers:         plan.Triggers,
		TriggerThreshold: plan.TriggerThreshold,
		Domains:          plan.Domains,
	}
	if spec.StalenessTurns <= 0 {
		spec.StalenessTurns = config.DefaultLinearStalenessTurns
	}

	stepIDs := make([]string, len(plan.Steps))
	needsAbort := false
	for i, step := range plan.Steps {
		id := fmt.Sprintf("step_%d", i+1)
		stepIDs[i] = id
		spec.Nodes[id] = config.NodeSpec{
			Name:       step.Name,
			Kind:       string(domain.KindTask),
			Action:     step.Action,
			Tool:       step.Tool,
			Hint:       step.Hint,
			Verify:     step.Verify,
			MaxRetries: step.MaxRetries,
		}

		switch step.OnFail {
		case "", onFailWarn, onFailRetry, onFailSkip:
		case onFailAbort:
			needsAbort = true
		default:
			return nil, domain.NewNodeLoadError(plan.ID, id, fmt.Sprintf("unknown on_fail policy %q", step.OnFail))
		}
	}

	spec.Start = stepIDs[0]
	spec.Nodes[linearExitNodeID] = config.NodeSpec{
		Name: "Done",
		Kind: string(domain.KindExit),
	}
	if needsAbort {
		spec.Nodes[linearAbortNodeID] = config.NodeSpec{
			Name:     "Aborted",
			Kind:     string(domain.KindEscalate),
			Severity: string(domain.SeverityContingent),
			Reason:   "Plan {graph} aborted: a required step failed verification",
		}
	}

	for i, step := range plan.Steps {
		next := linearExitNodeID
		if i < len(stepIDs)-1 {
			next = stepIDs[i+1]
		}
		spec.Edges = append(spec.Edges, config.EdgeSpec{
			From:      stepIDs[i],
			To:        next,
			Condition: string(domain.EdgeOnSuccess),
		})

		switch step.OnFail {
		case onFailSkip:
			spec.Edges = append(spec.Edges, config.EdgeSpec{
				From:      stepIDs[i],
				To:        next,
				Condition: string(domain.EdgeOnExhaust),
			})
		case onFailAbort:
			spec.Edges = append(spec.Edges, config.EdgeSpec{
				From:      stepIDs[i],
				To:        linearAbortNodeID,
				Condition: string(domain.EdgeOnExhaust),
			})
		}
	}

	return Load(spec)
}

// LoadLibrary loads every graph and plan in a library document. Any
// failure rejects the whole document, mirroring single-graph atomicity.
func LoadLibrary(spec *config.LibrarySpec) ([]*domain.GraphDefinition, error) {
	graphs := make([]*domain.GraphDefinition, 0, len(spec.Graphs)+len(spec.Plans))
	seen := make(map[string]bool)

	for _, graphSpec := range spec.Graphs {
		g, err := Load(graphSpec)
		if err != nil {
			return nil, err
		}
		if seen[g.ID] {
			return nil, domain.NewGraphLoadError(g.ID, "duplicate graph id")
		}
		seen[g.ID] = true
		graphs = append(graphs, g)
	}

	for _, planSpec := range spec.Plans {
		g, err := AdaptLinear(planSpec)
		if err != nil {
			return nil, err
		}
		if seen[g.ID] {
			return nil, domain.NewGraphLoadError(g.ID, "duplicate graph id")
		}
		seen[g.ID] = true
		graphs = append(graphs, g)
	}

	return graphs, nil
}
