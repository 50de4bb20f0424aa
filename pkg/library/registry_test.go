package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwalk/planwalk/pkg/domain"
)

func matchGraph(id string, triggers []string, threshold int, domains ...string) *domain.GraphDefinition {
	return &domain.GraphDefinition{
		ID:               id,
		Name:             id,
		StartNodeID:      "n",
		Nodes:            map[string]domain.Node{"n": {ID: "n", Kind: domain.KindTask, Task: &domain.TaskSpec{Action: "a"}}},
		Triggers:         triggers,
		TriggerThreshold: threshold,
		Domains:          domains,
	}
}

func TestRegistry_UpdateAndGet(t *testing.T) {
	r := NewRegistry(nil)
	r.Update([]*domain.GraphDefinition{matchGraph("a", nil, 0), matchGraph("b", nil, 0)})

	g, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", g.ID)

	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())

	// Update replaces wholesale.
	r.Update([]*domain.GraphDefinition{matchGraph("c", nil, 0)})
	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry(nil)
	r.Update([]*domain.GraphDefinition{matchGraph("z", nil, 0), matchGraph("a", nil, 0), matchGraph("m", nil, 0)})

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "m", list[1].ID)
	assert.Equal(t, "z", list[2].ID)
}

func TestMatch_RequiresThresholdHits(t *testing.T) {
	r := NewRegistry(nil)
	r.Update([]*domain.GraphDefinition{
		matchGraph("deploy", []string{"deploy", "release", "production"}, 2),
	})

	_, ok := r.Match(MatchRequest{Message: "please deploy the thing"})
	assert.False(t, ok, "one hit is below the threshold")

	g, ok := r.Match(MatchRequest{Message: "deploy the new release now"})
	require.True(t, ok)
	assert.Equal(t, "deploy", g.ID)
}

func TestMatch_CaseInsensitive(t *testing.T) {
	r := NewRegistry(nil)
	r.Update([]*domain.GraphDefinition{matchGraph("deploy", []string{"Deploy", "Release"}, 2)})

	_, ok := r.Match(MatchRequest{Message: "DEPLOY the RELEASE"})
	assert.True(t, ok)
}

func TestMatch_DomainFilter(t *testing.T) {
	r := NewRegistry(nil)
	r.Update([]*domain.GraphDefinition{
		matchGraph("ops", []string{"restart", "service"}, 2, "infrastructure"),
	})

	_, ok := r.Match(MatchRequest{Message: "restart the service", Domain: "cooking"})
	assert.False(t, ok)

	g, ok := r.Match(MatchRequest{Message: "restart the service", Domain: "infrastructure"})
	require.True(t, ok)
	assert.Equal(t, "ops", g.ID)

	// Graphs without a domain filter accept any request domain.
	r.Update([]*domain.GraphDefinition{matchGraph("anywhere", []string{"restart", "service"}, 2)})
	_, ok = r.Match(MatchRequest{Message: "restart the service", Domain: "cooking"})
	assert.True(t, ok)
}

// An explicit domain match outranks a domainless graph with the same hits.
func TestMatch_DomainMatchOutranks(t *testing.T) {
	r := NewRegistry(nil)
	r.Update([]*domain.GraphDefinition{
		matchGraph("generic", []string{"restart", "service"}, 2),
		matchGraph("infra", []string{"restart", "service"}, 2, "infrastructure"),
	})

	g, ok := r.Match(MatchRequest{Message: "restart the service", Domain: "infrastructure"})
	require.True(t, ok)
	assert.Equal(t, "infra", g.ID)
}

func TestMatch_AllowList(t *testing.T) {
	r := NewRegistry(nil)
	r.Update([]*domain.GraphDefinition{
		matchGraph("a", []string{"x", "y"}, 2),
		matchGraph("b", []string{"x", "y"}, 2),
	})

	g, ok := r.Match(MatchRequest{Message: "x and y", Allowed: []string{"b"}})
	require.True(t, ok)
	assert.Equal(t, "b", g.ID)

	// Empty non-nil allow-list permits nothing.
	_, ok = r.Match(MatchRequest{Message: "x and y", Allowed: []string{}})
	assert.False(t, ok)
}

func TestMatch_ThresholdDefaultsToTwo(t *testing.T) {
	r := NewRegistry(nil)
	r.Update([]*domain.GraphDefinition{matchGraph("g", []string{"alpha", "beta"}, 0)})

	_, ok := r.Match(MatchRequest{Message: "alpha only"})
	assert.False(t, ok)

	_, ok = r.Match(MatchRequest{Message: "alpha and beta"})
	assert.True(t, ok)
}
