// Package library holds the in-memory registry of loaded workflow graphs
// and the file provider that keeps it in sync with yaml definitions on
// disk.
package library

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/planwalk/planwalk/pkg/domain"
)

// Registry is the shared, read-mostly store of graph definitions. Update
// swaps the whole set atomically, so readers never observe a partially
// loaded library.
type Registry struct {
	mu     sync.RWMutex
	graphs map[string]*domain.GraphDefinition
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		graphs: make(map[string]*domain.GraphDefinition),
		logger: logger,
	}
}

// Update replaces the registry contents wholesale.
func (r *Registry) Update(graphs []*domain.GraphDefinition) {
	next := make(map[string]*domain.GraphDefinition, len(graphs))
	for _, g := range graphs {
		next[g.ID] = g
	}
	r.mu.Lock()
	r.graphs = next
	r.mu.Unlock()
	r.logger.Info("graph library updated", slog.Int("graphs", len(next)))
}

// Get returns the graph with the given ID.
func (r *Registry) Get(id string) (*domain.GraphDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[id]
	return g, ok
}

// List returns all loaded graphs sorted by ID.
func (r *Registry) List() []*domain.GraphDefinition {
	r.mu.RLock()
	out := make([]*domain.GraphDefinition, 0, len(r.graphs))
	for _, g := range r.graphs {
		out = append(out, g)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many graphs are loaded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.graphs)
}

// MatchRequest carries the inputs for selecting a graph against a request.
type MatchRequest struct {
	// Message is the free-text request matched against graph triggers.
	Message string
	// Domain filters graphs that declare domains. Graphs without domains
	// match any request.
	Domain string
	// Allowed restricts the candidate set to the listed graph IDs. Nil
	// means no restriction; an empty non-nil slice allows nothing.
	Allowed []string
}

// Match selects the best graph for a request. A graph is a candidate when
// its trigger keywords hit the message at least trigger_threshold times
// and its domain filter accepts the request. Among candidates the highest
// score wins; a graph that matched through an explicit domain outranks one
// that matched by having no domain filter. Ties keep the first candidate
// in ID order, so matching is deterministic across reloads.
func (r *Registry) Match(req MatchRequest) (*domain.GraphDefinition, bool) {
	var allowed map[string]bool
	if req.Allowed != nil {
		allowed = make(map[string]bool, len(req.Allowed))
		for _, id := range req.Allowed {
			allowed[id] = true
		}
	}
	message := strings.ToLower(req.Message)

	var best *domain.GraphDefinition
	bestScore := 0.0
	for _, g := range r.List() {
		if allowed != nil && !allowed[g.ID] {
			continue
		}
		domainMatch := len(g.Domains) == 0
		for _, d := range g.Domains {
			if d == req.Domain {
				domainMatch = true
				break
			}
		}
		if !domainMatch {
			continue
		}

		hits := 0
		for _, t := range g.Triggers {
			if t != "" && strings.Contains(message, strings.ToLower(t)) {
				hits++
			}
		}
		threshold := g.TriggerThreshold
		if threshold <= 0 {
			threshold = 2
		}
		if hits < threshold {
			continue
		}

		score := float64(hits)
		if len(g.Domains) > 0 {
			score++
		}
		if score > bestScore {
			bestScore = score
			best = g
		}
	}

	if best == nil {
		return nil, false
	}
	return best, true
}
