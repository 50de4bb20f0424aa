package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwalk/planwalk/pkg/domain"
	"github.com/planwalk/planwalk/pkg/engine/runtime"
)

func testState() *domain.TraversalState {
	return &domain.TraversalState{
		ID:             "t-1",
		GraphID:        "g",
		CurrentNodeID:  "gate",
		Path:           []string{"start", "build", "gate"},
		CompletedNodes: []string{"build"},
		Status:         domain.StatusActive,
	}
}

func TestStaticPolicy(t *testing.T) {
	p := NewStaticPolicy(map[string]runtime.Outcome{
		"ship_it": runtime.OutcomeSuccess,
		"hold":    runtime.OutcomeFail,
	})

	outcome, err := p.Decide(context.Background(), "ship_it", testState())
	require.NoError(t, err)
	assert.Equal(t, runtime.OutcomeSuccess, outcome)

	outcome, err = p.Decide(context.Background(), "hold", testState())
	require.NoError(t, err)
	assert.Equal(t, runtime.OutcomeFail, outcome)

	outcome, err = p.Decide(context.Background(), "unknown", testState())
	assert.True(t, errors.Is(err, ErrUnknownPolicyKey))
	assert.Equal(t, runtime.OutcomeFail, outcome)
}

const decisionModule = `package planwalk

import rego.v1

ship_it := "success" if {
	"build" in input.completed_nodes
}

ship_it := "fail" if {
	not "build" in input.completed_nodes
}

tests_green := {"outcome": "success"} if {
	input.current_node == "gate"
}
`

func TestRegoPolicy_StringResult(t *testing.T) {
	p, err := NewRegoPolicy(RegoOptions{Modules: map[string]string{"decisions.rego": decisionModule}})
	require.NoError(t, err)

	outcome, err := p.Decide(context.Background(), "ship_it", testState())
	require.NoError(t, err)
	assert.Equal(t, runtime.OutcomeSuccess, outcome)

	state := testState()
	state.CompletedNodes = nil
	outcome, err = p.Decide(context.Background(), "ship_it", state)
	require.NoError(t, err)
	assert.Equal(t, runtime.OutcomeFail, outcome)
}

func TestRegoPolicy_DocumentResult(t *testing.T) {
	p, err := NewRegoPolicy(RegoOptions{Modules: map[string]string{"decisions.rego": decisionModule}})
	require.NoError(t, err)

	outcome, err := p.Decide(context.Background(), "tests_green", testState())
	require.NoError(t, err)
	assert.Equal(t, runtime.OutcomeSuccess, outcome)
}

func TestRegoPolicy_UnknownKeyFailsClosed(t *testing.T) {
	p, err := NewRegoPolicy(RegoOptions{Modules: map[string]string{"decisions.rego": decisionModule}})
	require.NoError(t, err)

	outcome, err := p.Decide(context.Background(), "no_such_rule", testState())
	assert.Error(t, err)
	assert.Equal(t, runtime.OutcomeFail, outcome)
}

func TestRegoPolicy_EmptyKeyFailsClosed(t *testing.T) {
	p, err := NewRegoPolicy(RegoOptions{Modules: map[string]string{"decisions.rego": decisionModule}})
	require.NoError(t, err)

	outcome, err := p.Decide(context.Background(), "  ", testState())
	assert.Error(t, err)
	assert.Equal(t, runtime.OutcomeFail, outcome)
}

func TestRegoPolicy_RequiresModules(t *testing.T) {
	_, err := NewRegoPolicy(RegoOptions{})
	assert.Error(t, err)
}

func TestRegoPolicy_RejectsBadModule(t *testing.T) {
	_, err := NewRegoPolicy(RegoOptions{Modules: map[string]string{"bad.rego": "this is not rego"}})
	assert.Error(t, err)
}

func TestParseOutcome(t *testing.T) {
	cases := []struct {
		name    string
		value   any
		want    runtime.Outcome
		wantErr bool
	}{
		{name: "string success", value: "success", want: runtime.OutcomeSuccess},
		{name: "string fail", value: "fail", want: runtime.OutcomeFail},
		{name: "uppercase trimmed", value: " SUCCESS ", want: runtime.OutcomeSuccess},
		{name: "bool true", value: true, want: runtime.OutcomeSuccess},
		{name: "bool false", value: false, want: runtime.OutcomeFail},
		{name: "document", value: map[string]any{"outcome": "success"}, want: runtime.OutcomeSuccess},
		{name: "document missing field", value: map[string]any{"verdict": "yes"}, want: runtime.OutcomeFail, wantErr: true},
		{name: "unknown string", value: "maybe", want: runtime.OutcomeFail, wantErr: true},
		{name: "unexpected type", value: 42, want: runtime.OutcomeFail, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome, err := parseOutcome(tc.value)
			assert.Equal(t, tc.want, outcome)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
