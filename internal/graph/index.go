package graph

import (
	"fmt"
	"strings"
)

// PinResolver reports the kind of a pin declared by a node type. The
// registry implements it; an Index built without one skips kind-specific
// validation.
type PinResolver interface {
	PinKind(nodeType, pinID string, dir Direction) (PinKind, bool)
}

type endpoint struct {
	node string
	pin  string
}

// Index is a read-only lookup structure over a Graph's nodes and
// connections. It is safe for concurrent use once built.
type Index struct {
	graph    *Graph
	nodes    map[string]*Node
	incoming map[endpoint][]Connection
	outgoing map[endpoint][]Connection
	inTo     map[string][]Connection
	outFrom  map[string][]Connection
	byType   map[string][]*Node
	pins     PinResolver
}

// NewIndex builds and validates the index for g. Validation covers a
// non-empty node list, unique node ids, resolvable connection endpoints and,
// when pins is non-nil, the single-connection rules for data inputs and exec
// outputs.
func NewIndex(g *Graph, pins PinResolver) (*Index, error) {
	if g == nil || len(g.Nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	idx := &Index{
		graph:    g,
		nodes:    make(map[string]*Node, len(g.Nodes)),
		incoming: make(map[endpoint][]Connection),
		outgoing: make(map[endpoint][]Connection),
		inTo:     make(map[string][]Connection),
		outFrom:  make(map[string][]Connection),
		byType:   make(map[string][]*Node),
		pins:     pins,
	}

	var errs []string
	for _, n := range g.Nodes {
		if n.ID == "" {
			errs = append(errs, fmt.Sprintf("node of type '%s' has an empty id", n.Type))
			continue
		}
		if _, dup := idx.nodes[n.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate node id '%s'", n.ID))
			continue
		}
		idx.nodes[n.ID] = n
		idx.byType[n.Type] = append(idx.byType[n.Type], n)
	}

	for _, c := range g.Connections {
		src, ok := idx.nodes[c.SourceNodeID]
		if !ok {
			errs = append(errs, fmt.Sprintf("connection source node not found: %s", c.SourceNodeID))
			continue
		}
		dst, ok := idx.nodes[c.TargetNodeID]
		if !ok {
			errs = append(errs, fmt.Sprintf("connection target node not found: %s", c.TargetNodeID))
			continue
		}

		in := endpoint{c.TargetNodeID, c.TargetPinID}
		out := endpoint{c.SourceNodeID, c.SourcePinID}

		if pins != nil {
			if kind, ok := pins.PinKind(dst.Type, c.TargetPinID, Input); ok && kind == PinData && len(idx.incoming[in]) > 0 {
				errs = append(errs, fmt.Sprintf("data input %s.%s has more than one incoming connection", c.TargetNodeID, c.TargetPinID))
				continue
			}
			if kind, ok := pins.PinKind(src.Type, c.SourcePinID, Output); ok && kind == PinExec && len(idx.outgoing[out]) > 0 {
				errs = append(errs, fmt.Sprintf("exec output %s.%s has more than one outgoing connection", c.SourceNodeID, c.SourcePinID))
				continue
			}
		}

		idx.incoming[in] = append(idx.incoming[in], c)
		idx.outgoing[out] = append(idx.outgoing[out], c)
		idx.inTo[c.TargetNodeID] = append(idx.inTo[c.TargetNodeID], c)
		idx.outFrom[c.SourceNodeID] = append(idx.outFrom[c.SourceNodeID], c)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("graph validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return idx, nil
}

// Graph returns the indexed graph.
func (x *Index) Graph() *Graph { return x.graph }

// Node returns the node with the given id.
func (x *Index) Node(id string) (*Node, bool) {
	n, ok := x.nodes[id]
	return n, ok
}

// NodesOfType returns every node carrying the type tag, in declaration order.
func (x *Index) NodesOfType(tag string) []*Node {
	return x.byType[tag]
}

// Incoming returns the first connection feeding the given input pin.
func (x *Index) Incoming(nodeID, pinID string) (Connection, bool) {
	cs := x.incoming[endpoint{nodeID, pinID}]
	if len(cs) == 0 {
		return Connection{}, false
	}
	return cs[0], true
}

// Outgoing returns the first connection leaving the given output pin.
func (x *Index) Outgoing(nodeID, pinID string) (Connection, bool) {
	cs := x.outgoing[endpoint{nodeID, pinID}]
	if len(cs) == 0 {
		return Connection{}, false
	}
	return cs[0], true
}

// IncomingTo returns every connection whose target is the node.
func (x *Index) IncomingTo(nodeID string) []Connection {
	return x.inTo[nodeID]
}

// OutgoingFrom returns every connection whose source is the node.
func (x *Index) OutgoingFrom(nodeID string) []Connection {
	return x.outFrom[nodeID]
}

// IsExec reports whether the pin is a known exec pin of the node's type.
func (x *Index) IsExec(n *Node, pinID string, dir Direction) bool {
	if x.pins == nil {
		return false
	}
	kind, ok := x.pins.PinKind(n.Type, pinID, dir)
	return ok && kind == PinExec
}

// DetectExecCycles checks the exec edges for cycles. Looping is expressed
// by loop node types, so an exec cycle is reported as a diagnostic; it does
// not make the graph invalid.
func (x *Index) DetectExecCycles() error {
	if x.pins == nil {
		return nil
	}

	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("exec cycle detected involving node '%s'", n.ID)
		}
		temporary[n.ID] = true

		for _, c := range x.outFrom[n.ID] {
			if !x.IsExec(n, c.SourcePinID, Output) {
				continue
			}
			if err := visit(x.nodes[c.TargetNodeID]); err != nil {
				return err
			}
		}

		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, n := range x.graph.Nodes {
		if !permanent[n.ID] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}
