// Package policy provides DecisionPolicy implementations for decision
// nodes: a static table for tests and embedded use, and a Rego-backed
// policy for externally authored decision logic.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/planwalk/planwalk/pkg/domain"
	"github.com/planwalk/planwalk/pkg/engine/runtime"
)

// ErrUnknownPolicyKey is returned when no rule is registered for a
// decision node's policy key. The engine treats it as a fail outcome.
var ErrUnknownPolicyKey = errors.New("unknown policy key")

// StaticPolicy resolves decision nodes from a fixed table of outcomes.
type StaticPolicy struct {
	outcomes map[string]runtime.Outcome
}

// NewStaticPolicy builds a policy from a key-to-outcome table.
func NewStaticPolicy(outcomes map[string]runtime.Outcome) *StaticPolicy {
	table := make(map[string]runtime.Outcome, len(outcomes))
	for key, outcome := range outcomes {
		table[key] = outcome
	}
	return &StaticPolicy{outcomes: table}
}

// Decide implements runtime.DecisionPolicy.
func (p *StaticPolicy) Decide(_ context.Context, policyKey string, _ *domain.TraversalState) (runtime.Outcome, error) {
	outcome, ok := p.outcomes[policyKey]
	if !ok {
		return runtime.OutcomeFail, fmt.Errorf("%w: %q", ErrUnknownPolicyKey, policyKey)
	}
	return outcome, nil
}

// RegoOptions control Rego policy construction.
type RegoOptions struct {
	// Namespace is the package prefix decision rules live under
	// (e.g. "planwalk" makes key "tests_green" query data.planwalk.tests_green).
	Namespace string
	// Modules contains the Rego modules to load, keyed by filename.
	Modules map[string]string
}

// RegoPolicy evaluates decision nodes against embedded Rego modules. A
// rule receives the traversal's observable state as input and yields
// either a bare outcome string or a document with an "outcome" field.
// Evaluation failures and absent rules resolve to fail.
type RegoPolicy struct {
	namespace     string
	moduleOrder   []string
	parsedModules map[string]*ast.Module

	mu      sync.RWMutex
	queries map[string]*rego.PreparedEvalQuery
}

const defaultNamespace = "planwalk"

// NewRegoPolicy parses and compiles the supplied modules.
func NewRegoPolicy(opts RegoOptions) (*RegoPolicy, error) {
	if len(opts.Modules) == 0 {
		return nil, errors.New("rego policy requires at least one module")
	}
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace == "" {
		namespace = defaultNamespace
	}

	moduleOrder := make([]string, 0, len(opts.Modules))
	for name := range opts.Modules {
		moduleOrder = append(moduleOrder, name)
	}
	sort.Strings(moduleOrder)

	parsed := make(map[string]*ast.Module, len(opts.Modules))
	for _, name := range moduleOrder {
		module, err := ast.ParseModuleWithOpts(name, opts.Modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		parsed[name] = module
	}

	return &RegoPolicy{
		namespace:     namespace,
		moduleOrder:   moduleOrder,
		parsedModules: parsed,
		queries:       make(map[string]*rego.PreparedEvalQuery),
	}, nil
}

// Decide implements runtime.DecisionPolicy.
func (p *RegoPolicy) Decide(ctx context.Context, policyKey string, state *domain.TraversalState) (runtime.Outcome, error) {
	key := strings.TrimSpace(policyKey)
	if key == "" {
		return runtime.OutcomeFail, errors.New("empty policy key")
	}

	prepared, err := p.getPreparedQuery(ctx, key)
	if err != nil {
		return runtime.OutcomeFail, fmt.Errorf("prepare query for %q: %w", key, err)
	}

	results, err := prepared.Eval(ctx, rego.EvalInput(stateInput(key, state)))
	if err != nil {
		return runtime.OutcomeFail, fmt.Errorf("rego decision %q: %w", key, err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return runtime.OutcomeFail, fmt.Errorf("%w: %q", ErrUnknownPolicyKey, key)
	}

	return parseOutcome(results[0].Expressions[0].Value)
}

func (p *RegoPolicy) getPreparedQuery(ctx context.Context, policyKey string) (*rego.PreparedEvalQuery, error) {
	p.mu.RLock()
	if prepared, ok := p.queries[policyKey]; ok {
		p.mu.RUnlock()
		return prepared, nil
	}
	p.mu.RUnlock()

	query := "data." + p.namespace + "." + policyKey

	opts := make([]func(*rego.Rego), 0, len(p.parsedModules)+1)
	opts = append(opts, rego.Query(query))
	for _, name := range p.moduleOrder {
		opts = append(opts, rego.ParsedModule(p.parsedModules[name]))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Another goroutine may have already prepared the query; respect first entry.
	if existing, ok := p.queries[policyKey]; ok {
		return existing, nil
	}
	p.queries[policyKey] = &prepared
	return &prepared, nil
}

// stateInput exposes the traversal's observable progress to rules without
// handing them the mutable state itself.
func stateInput(policyKey string, state *domain.TraversalState) map[string]any {
	return map[string]any{
		"policy_key":      policyKey,
		"graph_id":        state.GraphID,
		"current_node":    state.CurrentNodeID,
		"path":            append([]string(nil), state.Path...),
		"completed_nodes": append([]string(nil), state.CompletedNodes...),
		"failed_nodes":    append([]string(nil), state.FailedNodes...),
		"turn":            state.Turn,
	}
}

func parseOutcome(value any) (runtime.Outcome, error) {
	switch typed := value.(type) {
	case string:
		return outcomeFromString(typed)
	case bool:
		if typed {
			return runtime.OutcomeSuccess, nil
		}
		return runtime.OutcomeFail, nil
	case map[string]any:
		raw, ok := typed["outcome"]
		if !ok {
			return runtime.OutcomeFail, errors.New("rego decision: result document has no outcome field")
		}
		text, ok := raw.(string)
		if !ok {
			return runtime.OutcomeFail, fmt.Errorf("rego decision: outcome must be string, got %T", raw)
		}
		return outcomeFromString(text)
	default:
		return runtime.OutcomeFail, fmt.Errorf("rego decision: unexpected result type %T", value)
	}
}

func outcomeFromString(text string) (runtime.Outcome, error) {
	switch runtime.Outcome(strings.ToLower(strings.TrimSpace(text))) {
	case runtime.OutcomeSuccess:
		return runtime.OutcomeSuccess, nil
	case runtime.OutcomeFail:
		return runtime.OutcomeFail, nil
	default:
		return runtime.OutcomeFail, fmt.Errorf("rego decision: unknown outcome %q", text)
	}
}
