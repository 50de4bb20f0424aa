package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrGraphNotFound     = errors.New("graph not found")
	ErrNodeNotFound      = errors.New("node not found")
	ErrTraversalNotFound = errors.New("traversal not found")
	ErrTraversalTerminal = errors.New("traversal is terminal")
	ErrGraphMismatch     = errors.New("traversal does not belong to graph")
	ErrConfigInvalid     = errors.New("invalid configuration")
)

// GraphLoadError reports a structural violation found while loading a graph
// definition. Loading fails wholesale: a GraphLoadError always means no
// graph was produced.
type GraphLoadError struct {
	GraphID string
	NodeID  string
	// EdgeIndex is the position of the offending edge in definition order,
	// or -1 when the violation is not edge-related.
	EdgeIndex int
	Reason    string
	Err       error
}

func (e *GraphLoadError) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("graph %q: node %q: %s", e.GraphID, e.NodeID, e.Reason)
	case e.EdgeIndex >= 0:
		return fmt.Sprintf("graph %q: edge[%d]: %s", e.GraphID, e.EdgeIndex, e.Reason)
	default:
		return fmt.Sprintf("graph %q: %s", e.GraphID, e.Reason)
	}
}

func (e *GraphLoadError) Unwrap() error {
	return e.Err
}

// NewGraphLoadError builds a graph-level load error.
func NewGraphLoadError(graphID, reason string) *GraphLoadError {
	return &GraphLoadError{GraphID: graphID, EdgeIndex: -1, Reason: reason}
}

// NewNodeLoadError builds a node-level load error.
func NewNodeLoadError(graphID, nodeID, reason string) *GraphLoadError {
	return &GraphLoadError{GraphID: graphID, NodeID: nodeID, EdgeIndex: -1, Reason: reason}
}

// NewEdgeLoadError builds an edge-level load error.
func NewEdgeLoadError(graphID string, edgeIndex int, reason string) *GraphLoadError {
	return &GraphLoadError{GraphID: graphID, EdgeIndex: edgeIndex, Reason: reason}
}
