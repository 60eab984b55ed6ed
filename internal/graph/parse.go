package graph

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrEmptyGraph is returned for a graph without nodes.
var ErrEmptyGraph = errors.New("graph has no nodes")

// Parse decodes the structural JSON of a graph.
func Parse(data []byte) (*Graph, error) {
	if len(data) == 0 {
		return nil, errors.New("graph structure is empty")
	}
	var g Graph
	if err := sonic.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode graph structure: %w", err)
	}
	for i, n := range g.Nodes {
		if n == nil {
			return nil, fmt.Errorf("node at position %d is null", i)
		}
		if n.Data == nil {
			n.Data = make(map[string]any)
		}
	}
	return &g, nil
}

// Marshal encodes a graph back into its structural JSON.
func Marshal(g *Graph) ([]byte, error) {
	return sonic.Marshal(g)
}
