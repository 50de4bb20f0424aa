package engine

import (
	"fmt"
	"strings"

	"github.com/planwalk/planwalk/pkg/domain"
)

// RenderStatus builds the textual progress block for an active traversal.
// It summarizes the path walked so far, details the current node, and
// previews the outgoing edges so the executor knows what each outcome
// leads to.
func RenderStatus(g *domain.GraphDefinition, state *domain.TraversalState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[WORKFLOW: %s]\n", g.Name)

	if summary := pathSummary(g, state); summary != "" {
		b.WriteString("  " + summary + "\n")
	}

	current, ok := g.Node(state.CurrentNodeID)
	if ok {
		switch current.Kind {
		case domain.KindTask, domain.KindCheckpoint:
			renderTaskDetail(&b, g, state, &current)
		case domain.KindDecision:
			fmt.Fprintf(&b, "    Decision: %s\n", current.DisplayName())
		}
	}

	b.WriteString("\nExecute the current step. Do not skip ahead.")
	return b.String()
}

// pathSummary renders the walked path as a compact arrow chain, marking
// each node with its outcome and the current node with its attempt count.
// Repeated visits collapse to the first occurrence; start and checkpoint
// nodes stay out of the summary.
func pathSummary(g *domain.GraphDefinition, state *domain.TraversalState) string {
	var parts []string
	seen := make(map[string]bool)
	for _, id := range state.Path {
		if seen[id] {
			continue
		}
		seen[id] = true
		node, ok := g.Node(id)
		if !ok || node.Kind == domain.KindStart || node.Kind == domain.KindCheckpoint {
			continue
		}

		name := node.DisplayName()
		if id == state.CurrentNodeID {
			attempts := 0
			if rec, ok := state.Visited[id]; ok {
				attempts = rec.Attempts
			}
			marker := name + " << CURRENT"
			if max := node.MaxRetries(); max > 0 {
				marker += fmt.Sprintf(" (attempt %d/%d)", attempts+1, max+1)
			}
			parts = append(parts, marker)
			continue
		}

		outcome := ""
		if rec, ok := state.Visited[id]; ok {
			outcome = rec.Outcome
		}
		switch outcome {
		case domain.VisitSuccess:
			parts = append(parts, name+" [DONE]")
		case domain.VisitFail:
			parts = append(parts, name+" [FAILED]")
		case domain.VisitPending:
			parts = append(parts, name+" [...]")
		}
	}
	return strings.Join(parts, " -> ")
}

func renderTaskDetail(b *strings.Builder, g *domain.GraphDefinition, state *domain.TraversalState, node *domain.Node) {
	task := node.Task
	if task == nil {
		return
	}
	fmt.Fprintf(b, "    Action: %s\n", task.Action)
	if task.Tool != "" {
		fmt.Fprintf(b, "    Tool: %s\n", task.Tool)
	}
	if task.ExecutorHint != "" {
		fmt.Fprintf(b, "    Hint: %s\n", task.ExecutorHint)
	}
	if task.Verify.Type != "" && task.Verify.Type != domain.VerifyManual {
		desc := string(task.Verify.Type)
		if task.Verify.Value != "" {
			desc += ": " + task.Verify.Value
		}
		fmt.Fprintf(b, "    Verify: %s\n", desc)
	}

	for _, edge := range g.EdgesFrom(node.ID) {
		target, ok := g.Node(edge.To)
		name := edge.To
		if ok {
			name = target.DisplayName()
		}
		if ok && target.Kind == domain.KindEscalate {
			fmt.Fprintf(b, "    On %s -> escalate: %s\n", edge.Condition, name)
		} else {
			fmt.Fprintf(b, "    On %s -> %s\n", edge.Condition, name)
		}
	}
}

// renderCompletion produces the terminal message for a completed traversal.
func renderCompletion(g *domain.GraphDefinition, state *domain.TraversalState) string {
	return fmt.Sprintf("[WORKFLOW COMPLETED: %s]\n  Completed: %d/%d nodes",
		g.Name, len(state.CompletedNodes), g.TaskCount())
}

// renderEscalation produces the terminal message for an escalated
// traversal. The closing line tells the executor to stop pushing the
// failed approach.
func renderEscalation(g *domain.GraphDefinition, state *domain.TraversalState, severity domain.Severity, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[WORKFLOW ESCALATED: %s]\n", g.Name)
	fmt.Fprintf(&b, "  Reason: %s\n", reason)
	fmt.Fprintf(&b, "  Severity: %s\n", severity)
	fmt.Fprintf(&b, "  Completed: %d/%d nodes\n\n", len(state.CompletedNodes), g.TaskCount())
	b.WriteString("The current approach has failed. Change strategy or ask the user for guidance.")
	return b.String()
}

// renderExpiration produces the terminal message for an expired traversal.
func renderExpiration(g *domain.GraphDefinition, state *domain.TraversalState) string {
	return fmt.Sprintf("[WORKFLOW EXPIRED: %s]\n  No transition for %d turns; the workflow was abandoned.",
		g.Name, state.TurnsSinceTransition)
}

// renderReason expands an escalation reason template. Templates may
// reference {graph}, {node}, {completed} and {total}; an empty template
// falls back to a generic message.
func renderReason(template string, g *domain.GraphDefinition, state *domain.TraversalState, node *domain.Node) string {
	if template == "" {
		return fmt.Sprintf("workflow %q escalated at node %q", g.Name, node.DisplayName())
	}
	r := strings.NewReplacer(
		"{graph}", g.Name,
		"{node}", node.DisplayName(),
		"{completed}", fmt.Sprintf("%d", len(state.CompletedNodes)),
		"{total}", fmt.Sprintf("%d", g.TaskCount()),
	)
	return r.Replace(template)
}
