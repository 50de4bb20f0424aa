// Package runtime defines the contracts shared by the traversal engine and
// its external collaborators, keeping workflow semantics decoupled from how
// actions are actually executed.
package runtime

import (
	"context"

	"github.com/planwalk/planwalk/pkg/domain"
)

// Outcome classifies the result of a node's most recent attempt and guides
// edge resolution.
type Outcome string

const (
	// OutcomeSuccess indicates verification passed and the happy-path edge
	// should be taken.
	OutcomeSuccess Outcome = "success"
	// OutcomeFail indicates verification failed; retry or exhaustion rules apply.
	OutcomeFail Outcome = "fail"
	// OutcomeNone indicates the node has not yet produced a result. The
	// resolver is never invoked for it; the engine stays put and reports
	// awaiting execution.
	OutcomeNone Outcome = "none"
)

// Evidence carries the raw output of the most recent action execution, or
// records that nothing has happened yet.
type Evidence struct {
	Output  string
	Present bool
}

// NoEvidence signals that no new execution output is available this step.
func NoEvidence() Evidence {
	return Evidence{}
}

// TextEvidence wraps raw execution output.
func TextEvidence(output string) Evidence {
	return Evidence{Output: output, Present: true}
}

// Report summarizes what one Step invocation did. Rendered is the
// human/model-readable description of "what to do now".
type Report struct {
	Status            domain.TraversalStatus
	CurrentNodeID     string
	AwaitingExecution bool
	Transitioned      bool
	Stalled           bool
	Rendered          string
	Events            []domain.Event
}

// ActionExecutor performs a task node's real work outside the engine and
// returns raw text output. The engine never calls this itself; the host
// invokes it between engine steps.
type ActionExecutor interface {
	Execute(ctx context.Context, node *domain.Node) (string, error)
}

// EscalationSink is invoked exactly once when a traversal escalates. The
// engine makes no assumption about what the sink does (pause, alert,
// switch strategy).
type EscalationSink interface {
	Escalated(ctx context.Context, severity domain.Severity, reason string)
}

// DecisionPolicy resolves a decision node's opaque policy key to an
// outcome label, used exactly like a verification result.
type DecisionPolicy interface {
	Decide(ctx context.Context, policyKey string, state *domain.TraversalState) (Outcome, error)
}

// ExternalCheck answers verification types the engine cannot judge itself,
// such as filesystem state. Its result is final: the engine does not retry
// the predicate on its own failure to answer, it fails closed.
type ExternalCheck interface {
	Check(ctx context.Context, spec domain.VerificationSpec, output string) (bool, error)
}

// ExternalCheckFunc adapts a function to the ExternalCheck interface.
type ExternalCheckFunc func(ctx context.Context, spec domain.VerificationSpec, output string) (bool, error)

// Check implements ExternalCheck.
func (f ExternalCheckFunc) Check(ctx context.Context, spec domain.VerificationSpec, output string) (bool, error) {
	return f(ctx, spec, output)
}
