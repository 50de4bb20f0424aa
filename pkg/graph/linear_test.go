package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwalk/planwalk/pkg/config"
	"github.com/planwalk/planwalk/pkg/domain"
)

func linearPlan() config.LinearPlanSpec {
	return config.LinearPlanSpec{
		ID:   "release",
		Name: "Release Checklist",
		Steps: []config.LinearStepSpec{
			{Name: "Run tests", Action: "run the test suite", MaxRetries: 1},
			{Name: "Tag release", Action: "tag the release", OnFail: "abort"},
			{Name: "Announce", Action: "post the announcement", OnFail: "skip"},
		},
	}
}

func TestAdaptLinear_BuildsChain(t *testing.T) {
	g, err := AdaptLinear(linearPlan())
	require.NoError(t, err)

	assert.Equal(t, "step_1", g.StartNodeID)
	// 3 steps + exit + abort escalate node.
	assert.Len(t, g.Nodes, 5)

	step1 := g.EdgesFrom("step_1")
	require.Len(t, step1, 1)
	assert.Equal(t, domain.EdgeOnSuccess, step1[0].Condition)
	assert.Equal(t, "step_2", step1[0].To)

	last := g.EdgesFrom("step_3")
	require.Len(t, last, 2)
	assert.Equal(t, "__exit", last[0].To)
	assert.Equal(t, domain.KindExit, g.Nodes["__exit"].Kind)
}

func TestAdaptLinear_AbortCompilesToEscalate(t *testing.T) {
	g, err := AdaptLinear(linearPlan())
	require.NoError(t, err)

	edges := g.EdgesFrom("step_2")
	require.Len(t, edges, 2)
	assert.Equal(t, domain.EdgeOnExhaust, edges[1].Condition)
	assert.Equal(t, "__aborted", edges[1].To)

	abort := g.Nodes["__aborted"]
	assert.Equal(t, domain.KindEscalate, abort.Kind)
	assert.Equal(t, domain.SeverityContingent, abort.Escalate.Severity)
}

func TestAdaptLinear_SkipRoutesExhaustionForward(t *testing.T) {
	g, err := AdaptLinear(linearPlan())
	require.NoError(t, err)

	edges := g.EdgesFrom("step_3")
	require.Len(t, edges, 2)
	assert.Equal(t, domain.EdgeOnExhaust, edges[1].Condition)
	assert.Equal(t, "__exit", edges[1].To)
}

func TestAdaptLinear_StalenessDefault(t *testing.T) {
	g, err := AdaptLinear(linearPlan())
	require.NoError(t, err)
	assert.Equal(t, config.DefaultLinearStalenessTurns, g.StalenessTurns)

	plan := linearPlan()
	plan.StalenessTurns = 25
	g, err = AdaptLinear(plan)
	require.NoError(t, err)
	assert.Equal(t, 25, g.StalenessTurns)
}

func TestAdaptLinear_RejectsUnknownOnFail(t *testing.T) {
	plan := linearPlan()
	plan.Steps[0].OnFail = "explode"
	_, err := AdaptLinear(plan)
	assert.Error(t, err)
}

func TestAdaptLinear_RejectsEmptyPlan(t *testing.T) {
	_, err := AdaptLinear(config.LinearPlanSpec{ID: "empty"})
	assert.Error(t, err)
}

func TestAdaptLinear_SingleStep(t *testing.T) {
	g, err := AdaptLinear(config.LinearPlanSpec{
		ID:    "one",
		Steps: []config.LinearStepSpec{{Name: "Only", Action: "do the thing"}},
	})
	require.NoError(t, err)

	edges := g.EdgesFrom("step_1")
	require.Len(t, edges, 1)
	assert.Equal(t, "__exit", edges[0].To)
}
