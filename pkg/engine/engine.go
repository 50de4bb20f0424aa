// Package engine implements the directed-graph workflow traversal engine:
// verification of task output, deterministic edge resolution, and the
// per-step state machine with bounded retries, staleness expiry, and an
// escalation path.
//
// The engine performs no I/O and executes no actions itself. All real work
// happens in the host between steps; the engine only reacts to the
// evidence handed back to it, one synchronous state transition per Step
// call.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/planwalk/planwalk/pkg/domain"
	"github.com/planwalk/planwalk/pkg/engine/runtime"
)

// Config holds dependencies for creating an Engine.
type Config struct {
	Logger *slog.Logger
	// Verifier judges task output. Nil selects a default verifier.
	Verifier *Verifier
	// Policy resolves decision nodes. A nil policy fails every decision
	// closed.
	Policy runtime.DecisionPolicy
	// Sink receives escalation signals. May be nil.
	Sink runtime.EscalationSink
	// MaxRouteDepth bounds automatic routing through start and decision
	// chains. Zero selects the default of 15.
	MaxRouteDepth int
}

// Engine drives traversal state machines one step per invocation. It holds
// no per-traversal state itself: a single Engine serves any number of
// independent traversals.
type Engine struct {
	logger        *slog.Logger
	verifier      *Verifier
	policy        runtime.DecisionPolicy
	sink          runtime.EscalationSink
	maxRouteDepth int
}

const defaultMaxRouteDepth = 15

// New creates an Engine with the given configuration.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = &Verifier{}
	}
	depth := cfg.MaxRouteDepth
	if depth <= 0 {
		depth = defaultMaxRouteDepth
	}
	return &Engine{
		logger:        logger,
		verifier:      verifier,
		policy:        cfg.Policy,
		sink:          cfg.Sink,
		maxRouteDepth: depth,
	}
}

// stepRun accumulates the effects of one Step invocation.
type stepRun struct {
	graph        *domain.GraphDefinition
	state        *domain.TraversalState
	events       []domain.Event
	transitioned bool
	stalled      bool
	awaiting     bool
	rendered     string
}

func (r *stepRun) emit(evType domain.EventType, nodeID string, payload map[string]any) {
	r.events = append(r.events, r.state.AppendEvent(evType, nodeID, payload))
}

// Activate creates a traversal for a graph and routes it past the start
// node, so the first Step already faces real work. The returned state is
// owned by the caller.
func (e *Engine) Activate(ctx context.Context, g *domain.GraphDefinition) (*domain.TraversalState, runtime.Report, error) {
	state := domain.NewTraversalState(uuid.New().String(), g)
	run := &stepRun{graph: g, state: state}

	run.emit(domain.EventGraphActivated, g.StartNodeID, map[string]any{"graph": g.ID})
	run.emit(domain.EventNodeEntered, g.StartNodeID, nil)

	e.autoRoute(ctx, run)
	e.finalizeLanding(ctx, run)

	e.logger.Info("graph activated",
		slog.String("traversal_id", state.ID),
		slog.String("graph_id", g.ID),
		slog.String("current_node", state.CurrentNodeID),
	)

	return state, e.report(run), nil
}

// Step advances a traversal by exactly one invocation cycle. Calling Step
// with no new evidence while the current node awaits execution mutates
// nothing but the staleness counter. Runtime anomalies (stalls, retry
// exhaustion, staleness expiry, escalation) are represented as state plus
// events, never as errors; Step only errors on caller misuse.
func (e *Engine) Step(ctx context.Context, g *domain.GraphDefinition, state *domain.TraversalState, evidence runtime.Evidence) (runtime.Report, error) {
	if state.GraphID != g.ID {
		return runtime.Report{}, fmt.Errorf("%w: state belongs to %q, graph is %q", domain.ErrGraphMismatch, state.GraphID, g.ID)
	}
	if state.Terminal() {
		return runtime.Report{}, fmt.Errorf("%w: status %s", domain.ErrTraversalTerminal, state.Status)
	}

	run := &stepRun{graph: g, state: state}
	state.Turn++

	// Staleness runs before any other logic: a traversal sitting at a
	// stalled node still expires without new evidence.
	state.TurnsSinceTransition++
	if state.TurnsSinceTransition > g.StalenessTurns {
		state.Status = domain.StatusExpired
		run.emit(domain.EventGraphExpired, state.CurrentNodeID, map[string]any{
			"turns_since_transition": state.TurnsSinceTransition,
			"staleness_turns":        g.StalenessTurns,
		})
		run.rendered = renderExpiration(g, state)
		e.logger.Info("graph expired",
			slog.String("traversal_id", state.ID),
			slog.String("graph_id", g.ID),
			slog.Int("staleness_turns", g.StalenessTurns),
		)
		return e.report(run), nil
	}

	node, ok := g.Node(state.CurrentNodeID)
	if !ok {
		return runtime.Report{}, fmt.Errorf("%w: current node %q not in graph %q", domain.ErrNodeNotFound, state.CurrentNodeID, g.ID)
	}

	switch node.Kind {
	case domain.KindStart:
		e.autoRoute(ctx, run)
	case domain.KindTask, domain.KindCheckpoint:
		if !evidence.Present {
			run.awaiting = true
		} else {
			e.handleTaskEvidence(ctx, run, &node, evidence)
		}
	case domain.KindDecision:
		e.handleDecision(ctx, run, &node)
	case domain.KindExit, domain.KindEscalate:
		// Terminal node reached on a previous step's landing; finalized below.
	}

	e.finalizeLanding(ctx, run)
	return e.report(run), nil
}

// handleTaskEvidence verifies new evidence against the current task node
// and applies retry, exhaustion, or success routing.
func (e *Engine) handleTaskEvidence(ctx context.Context, run *stepRun, node *domain.Node, evidence runtime.Evidence) {
	state := run.state
	rec := state.VisitTo(node.ID)
	rec.Attempts++

	verified := e.verifier.Verify(ctx, node.Task.Verify, evidence)
	outcome := runtime.OutcomeFail
	if verified {
		outcome = runtime.OutcomeSuccess
	}
	run.emit(domain.EventNodeVerified, node.ID, map[string]any{
		"outcome":  string(outcome),
		"attempts": rec.Attempts,
	})

	if verified {
		rec.Outcome = domain.VisitSuccess
		state.MarkCompleted(node.ID)
		e.resolveAndFollow(run, node, runtime.OutcomeSuccess, rec.Attempts)
		e.autoRoute(ctx, run)
		return
	}

	if rec.Attempts < node.MaxRetries()+1 {
		run.emit(domain.EventRetryTriggered, node.ID, map[string]any{
			"attempts":    rec.Attempts,
			"max_retries": node.MaxRetries(),
		})
		res := ResolveEdge(run.graph, node, runtime.OutcomeFail, rec.Attempts)
		if res.Reason == RouteAdvance {
			e.follow(run, res)
			e.autoRoute(ctx, run)
		}
		// A self-loop stays on the node for the next attempt; it is not a
		// transition and does not reset the staleness counter.
		return
	}

	rec.Outcome = domain.VisitFail
	state.MarkFailed(node.ID)
	e.resolveAndFollow(run, node, runtime.OutcomeFail, rec.Attempts)
	e.autoRoute(ctx, run)
}

// handleDecision asks the decision policy for an outcome label and routes
// exactly as a task node's success/fail branches would. An unanswerable
// decision fails closed.
func (e *Engine) handleDecision(ctx context.Context, run *stepRun, node *domain.Node) {
	outcome := e.decide(ctx, run, node)
	edge := resolveDecision(run.graph, node, outcome)
	if edge == nil {
		run.stalled = true
		run.emit(domain.EventStallDetected, node.ID, map[string]any{"outcome": string(outcome)})
		return
	}
	e.follow(run, Resolution{Reason: RouteAdvance, Edge: edge, Condition: edge.Condition})
	e.autoRoute(ctx, run)
}

func (e *Engine) decide(ctx context.Context, run *stepRun, node *domain.Node) runtime.Outcome {
	if e.policy == nil {
		e.logger.Warn("decision node without policy, failing closed",
			slog.String("traversal_id", run.state.ID),
			slog.String("node_id", node.ID),
		)
		return runtime.OutcomeFail
	}
	outcome, err := e.policy.Decide(ctx, node.Decision.PolicyKey, run.state)
	if err != nil {
		e.logger.Warn("decision policy failed, failing closed",
			slog.String("traversal_id", run.state.ID),
			slog.String("node_id", node.ID),
			slog.String("policy_key", node.Decision.PolicyKey),
			slog.Any("error", err),
		)
		return runtime.OutcomeFail
	}
	run.emit(domain.EventNodeVerified, node.ID, map[string]any{
		"outcome":    string(outcome),
		"policy_key": node.Decision.PolicyKey,
	})
	return outcome
}

// resolveDecision picks the edge for a decision outcome: the matching
// conditional edge first, then always, else nil.
func resolveDecision(g *domain.GraphDefinition, node *domain.Node, outcome runtime.Outcome) *domain.Edge {
	candidates := g.EdgesFrom(node.ID)
	cond := domain.EdgeOnSuccess
	if outcome == runtime.OutcomeFail {
		cond = domain.EdgeOnFail
	}
	if edge := firstMatch(candidates, cond); edge != nil {
		return edge
	}
	return firstMatch(candidates, domain.EdgeAlways)
}

// resolveAndFollow resolves an edge for a task outcome and either follows
// it or records a stall.
func (e *Engine) resolveAndFollow(run *stepRun, node *domain.Node, outcome runtime.Outcome, attempts int) {
	res := ResolveEdge(run.graph, node, outcome, attempts)
	switch res.Reason {
	case RouteAdvance:
		e.follow(run, res)
	case RouteStall:
		run.stalled = true
		run.emit(domain.EventStallDetected, node.ID, map[string]any{"outcome": string(outcome)})
		e.logger.Warn("no edge matches outcome, stalling",
			slog.String("traversal_id", run.state.ID),
			slog.String("node_id", node.ID),
			slog.String("outcome", string(outcome)),
		)
	case RouteRetrySelfLoop:
		// Nothing to do: the node is attempted again in place.
	}
}

// follow moves the traversal across an edge: append to the path, reset the
// staleness counter, and reset the target's visit record so loops start
// each visit fresh.
func (e *Engine) follow(run *stepRun, res Resolution) {
	state := run.state
	from := state.CurrentNodeID
	to := res.Edge.To

	state.CurrentNodeID = to
	state.Path = append(state.Path, to)
	state.TurnsSinceTransition = 0
	if _, visited := state.Visited[to]; visited {
		state.Visited[to] = &domain.VisitRecord{Outcome: domain.VisitPending}
	}
	run.transitioned = true

	run.emit(domain.EventEdgeFollowed, to, map[string]any{
		"from":      from,
		"to":        to,
		"condition": string(res.Condition),
	})
	run.emit(domain.EventNodeEntered, to, nil)
}

// autoRoute passes through consecutive start and decision nodes until the
// traversal lands on a node that needs action or is terminal. The depth
// cap breaks accidental decision cycles.
func (e *Engine) autoRoute(ctx context.Context, run *stepRun) {
	for depth := 0; depth < e.maxRouteDepth; depth++ {
		node, ok := run.graph.Node(run.state.CurrentNodeID)
		if !ok {
			return
		}
		switch node.Kind {
		case domain.KindStart:
			edge := resolveAlways(run.graph, node.ID)
			if edge == nil {
				return
			}
			e.follow(run, Resolution{Reason: RouteAdvance, Edge: edge, Condition: domain.EdgeAlways})
		case domain.KindDecision:
			outcome := e.decide(ctx, run, &node)
			edge := resolveDecision(run.graph, &node, outcome)
			if edge == nil {
				run.stalled = true
				run.emit(domain.EventStallDetected, node.ID, map[string]any{"outcome": string(outcome)})
				return
			}
			e.follow(run, Resolution{Reason: RouteAdvance, Edge: edge, Condition: edge.Condition})
		default:
			// task, checkpoint, exit, escalate: stop routing. Tasks and
			// checkpoints need action; the rest are terminal.
			return
		}
	}
	e.logger.Warn("auto-route depth limit reached",
		slog.String("traversal_id", run.state.ID),
		slog.String("node_id", run.state.CurrentNodeID),
		slog.Int("max_depth", e.maxRouteDepth),
	)
}

// finalizeLanding freezes the traversal when it sits on a terminal node.
func (e *Engine) finalizeLanding(ctx context.Context, run *stepRun) {
	state := run.state
	if state.Terminal() {
		return
	}
	node, ok := run.graph.Node(state.CurrentNodeID)
	if !ok {
		return
	}

	switch node.Kind {
	case domain.KindExit:
		state.Status = domain.StatusCompleted
		run.emit(domain.EventGraphCompleted, node.ID, map[string]any{
			"completed": len(state.CompletedNodes),
			"total":     run.graph.TaskCount(),
		})
		run.rendered = renderCompletion(run.graph, state)
		e.logger.Info("graph completed",
			slog.String("traversal_id", state.ID),
			slog.String("graph_id", run.graph.ID),
			slog.Int("completed_nodes", len(state.CompletedNodes)),
		)
	case domain.KindEscalate:
		severity := domain.SeverityContingent
		reason := "workflow escalated"
		if node.Escalate != nil {
			severity = node.Escalate.Severity
			reason = renderReason(node.Escalate.ReasonTemplate, run.graph, state, &node)
		}
		state.Status = domain.StatusEscalated
		run.emit(domain.EventGraphEscalated, node.ID, map[string]any{
			"severity": string(severity),
			"reason":   reason,
		})
		run.rendered = renderEscalation(run.graph, state, severity, reason)
		e.logger.Warn("graph escalated",
			slog.String("traversal_id", state.ID),
			slog.String("graph_id", run.graph.ID),
			slog.String("severity", string(severity)),
			slog.String("reason", reason),
		)
		if e.sink != nil {
			e.sink.Escalated(ctx, severity, reason)
		}
	}
}

func (e *Engine) report(run *stepRun) runtime.Report {
	rendered := run.rendered
	if rendered == "" {
		rendered = RenderStatus(run.graph, run.state)
	}
	return runtime.Report{
		Status:            run.state.Status,
		CurrentNodeID:     run.state.CurrentNodeID,
		AwaitingExecution: run.awaiting,
		Transitioned:      run.transitioned,
		Stalled:           run.stalled,
		Rendered:          rendered,
		Events:            run.events,
	}
}
