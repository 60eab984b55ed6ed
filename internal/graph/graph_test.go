package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPins declares "exec" as an exec pin on both sides and everything else
// as data.
type stubPins struct{}

func (stubPins) PinKind(_ string, pinID string, _ Direction) (PinKind, bool) {
	if pinID == "exec" || pinID == "loop_body" {
		return PinExec, true
	}
	return PinData, true
}

func node(id, typ string) *Node {
	return &Node{ID: id, Type: typ, Data: map[string]any{}}
}

func link(src, srcPin, dst, dstPin string) Connection {
	return Connection{SourceNodeID: src, SourcePinID: srcPin, TargetNodeID: dst, TargetPinID: dstPin}
}

func TestParse(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": "start", "type": "event:chat"},
			{"id": "say", "type": "action:send_message", "data": {"message": "pong"}}
		],
		"connections": [
			{"sourceNodeId": "start", "sourcePinId": "exec", "targetNodeId": "say", "targetPinId": "exec"}
		],
		"variables": [{"name": "count", "type": "number", "value": "3"}]
	}`)

	g, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	assert.NotNil(t, g.Nodes[0].Data, "missing data must be normalized to an empty map")
	assert.Equal(t, "pong", g.Nodes[1].Data["message"])
	require.Len(t, g.Connections, 1)
	assert.Equal(t, link("start", "exec", "say", "exec"), g.Connections[0])
	require.Len(t, g.Variables, 1)
	assert.Equal(t, VarNumber, g.Variables[0].Type)
}

func TestParse_Errors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := Parse(nil)
		assert.Error(t, err)
	})
	t.Run("malformed json", func(t *testing.T) {
		_, err := Parse([]byte(`{"nodes": [`))
		assert.ErrorContains(t, err, "failed to decode graph structure")
	})
	t.Run("null node", func(t *testing.T) {
		_, err := Parse([]byte(`{"nodes": [null]}`))
		assert.ErrorContains(t, err, "is null")
	})
}

func TestNewIndex(t *testing.T) {
	t.Run("empty graph", func(t *testing.T) {
		_, err := NewIndex(&Graph{}, nil)
		assert.ErrorIs(t, err, ErrEmptyGraph)
	})

	t.Run("lookups", func(t *testing.T) {
		g := &Graph{
			Nodes: []*Node{node("a", "event:chat"), node("b", "action:log"), node("c", "data:string")},
			Connections: []Connection{
				link("a", "exec", "b", "exec"),
				link("c", "value", "b", "message"),
			},
		}
		idx, err := NewIndex(g, stubPins{})
		require.NoError(t, err)

		n, ok := idx.Node("b")
		require.True(t, ok)
		assert.Equal(t, "action:log", n.Type)

		c, ok := idx.Incoming("b", "message")
		require.True(t, ok)
		assert.Equal(t, "c", c.SourceNodeID)

		c, ok = idx.Outgoing("a", "exec")
		require.True(t, ok)
		assert.Equal(t, "b", c.TargetNodeID)

		_, ok = idx.Outgoing("b", "exec")
		assert.False(t, ok)

		assert.Len(t, idx.IncomingTo("b"), 2)
		assert.Len(t, idx.OutgoingFrom("a"), 1)
		assert.Equal(t, []*Node{g.Nodes[0]}, idx.NodesOfType("event:chat"))
		assert.True(t, idx.IsExec(g.Nodes[0], "exec", Output))
		assert.False(t, idx.IsExec(g.Nodes[2], "value", Output))
	})

	t.Run("structural errors", func(t *testing.T) {
		g := &Graph{
			Nodes: []*Node{node("a", "x"), node("a", "x"), node("b", "x")},
			Connections: []Connection{
				link("dne", "exec", "a", "exec"),
				link("a", "exec", "missing", "exec"),
			},
		}
		_, err := NewIndex(g, nil)
		require.Error(t, err)
		assert.ErrorContains(t, err, "duplicate node id 'a'")
		assert.ErrorContains(t, err, "connection source node not found: dne")
		assert.ErrorContains(t, err, "connection target node not found: missing")
	})

	t.Run("single connection rules", func(t *testing.T) {
		g := &Graph{
			Nodes: []*Node{node("a", "x"), node("b", "x"), node("c", "x")},
			Connections: []Connection{
				link("a", "exec", "b", "exec"),
				link("a", "exec", "c", "exec"),
				link("a", "value", "b", "in"),
				link("c", "value", "b", "in"),
			},
		}
		_, err := NewIndex(g, stubPins{})
		require.Error(t, err)
		assert.ErrorContains(t, err, "exec output a.exec has more than one outgoing connection")
		assert.ErrorContains(t, err, "data input b.in has more than one incoming connection")
	})

	t.Run("exec inputs accept several sources", func(t *testing.T) {
		g := &Graph{
			Nodes: []*Node{node("a", "x"), node("b", "x"), node("c", "x")},
			Connections: []Connection{
				link("a", "exec", "c", "exec"),
				link("b", "exec", "c", "exec"),
			},
		}
		_, err := NewIndex(g, stubPins{})
		assert.NoError(t, err)
	})

	t.Run("data outputs fan out", func(t *testing.T) {
		g := &Graph{
			Nodes: []*Node{node("a", "x"), node("b", "x"), node("c", "x")},
			Connections: []Connection{
				link("a", "value", "b", "in"),
				link("a", "value", "c", "in"),
			},
		}
		_, err := NewIndex(g, stubPins{})
		assert.NoError(t, err)
	})
}

func TestDetectExecCycles(t *testing.T) {
	t.Run("acyclic chain", func(t *testing.T) {
		g := &Graph{
			Nodes:       []*Node{node("a", "x"), node("b", "x"), node("c", "x")},
			Connections: []Connection{link("a", "exec", "b", "exec"), link("b", "exec", "c", "exec")},
		}
		idx, err := NewIndex(g, stubPins{})
		require.NoError(t, err)
		assert.NoError(t, idx.DetectExecCycles())
	})

	t.Run("cycle through exec edges", func(t *testing.T) {
		g := &Graph{
			Nodes: []*Node{node("a", "x"), node("b", "x"), node("c", "x")},
			Connections: []Connection{
				link("a", "exec", "b", "exec"),
				link("b", "exec", "c", "exec"),
				link("c", "exec", "a", "exec"),
			},
		}
		idx, err := NewIndex(g, stubPins{})
		require.NoError(t, err)
		assert.ErrorContains(t, idx.DetectExecCycles(), "exec cycle detected")
	})

	t.Run("data edges are ignored", func(t *testing.T) {
		g := &Graph{
			Nodes: []*Node{node("a", "x"), node("b", "x")},
			Connections: []Connection{
				link("a", "exec", "b", "exec"),
				link("b", "value", "a", "in"),
			},
		}
		idx, err := NewIndex(g, stubPins{})
		require.NoError(t, err)
		assert.NoError(t, idx.DetectExecCycles())
	})
}
