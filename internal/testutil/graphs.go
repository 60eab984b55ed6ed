package testutil

import "github.com/vk/botgraph/internal/graph"

// GraphBuilder assembles graphs for tests.
type GraphBuilder struct {
	g *graph.Graph
}

// NewGraph starts a graph with the given id.
func NewGraph(id string) *GraphBuilder {
	return &GraphBuilder{g: &graph.Graph{ID: id, Name: id}}
}

// Node adds a node. data may be nil.
func (b *GraphBuilder) Node(id, typ string, data map[string]any) *GraphBuilder {
	if data == nil {
		data = map[string]any{}
	}
	b.g.Nodes = append(b.g.Nodes, &graph.Node{ID: id, Type: typ, Data: data})
	return b
}

// Exec connects an exec output to the target's exec input.
func (b *GraphBuilder) Exec(from, pin, to string) *GraphBuilder {
	return b.Link(from, pin, to, "exec")
}

// Link connects any two pins.
func (b *GraphBuilder) Link(from, fromPin, to, toPin string) *GraphBuilder {
	b.g.Connections = append(b.g.Connections, graph.Connection{
		SourceNodeID: from,
		SourcePinID:  fromPin,
		TargetNodeID: to,
		TargetPinID:  toPin,
	})
	return b
}

// Var declares a variable.
func (b *GraphBuilder) Var(name string, typ graph.VarType, value any) *GraphBuilder {
	b.g.Variables = append(b.g.Variables, graph.Variable{Name: name, Type: typ, Value: value})
	return b
}

// Build returns the graph.
func (b *GraphBuilder) Build() *graph.Graph { return b.g }
