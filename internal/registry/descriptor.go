package registry

import (
	"context"
	"strings"

	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/runtime"
)

// Kind is the closed set of node kinds.
type Kind int

const (
	// KindEvent is a start node. It has no exec input; its data outputs are
	// read from the run's event fields.
	KindEvent Kind = iota
	// KindAction has an exec input and an Executor that advances the
	// traversal itself.
	KindAction
	// KindData has no exec input and produces values through its Evaluator.
	KindData
	// KindLegacy has an exec input and only a Perform behavior. It runs at
	// most once per run and is advanced through the legacy fallback table.
	KindLegacy
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindAction:
		return "action"
	case KindData:
		return "data"
	case KindLegacy:
		return "legacy"
	}
	return "unknown"
}

// Helpers is the engine surface available to node behaviors.
type Helpers interface {
	// Traverse follows the connection leaving the node's exec output pin.
	Traverse(ctx context.Context, n *graph.Node, pinID string) error
	// ResolvePinValue pulls the value of one of the node's input pins.
	ResolvePinValue(ctx context.Context, n *graph.Node, pinID string, def any) (any, error)
	// SetOutput stores a value produced by the node for the rest of the run.
	SetOutput(n *graph.Node, pinID string, v any)
	// Output returns a value previously stored with SetOutput.
	Output(n *graph.Node, pinID string) (any, bool)
	// ResetLoopBody forgets memoized values of everything reachable from the
	// node's loop body pin.
	ResetLoopBody(n *graph.Node, pinID string)
}

// ExecutorFunc runs an action node. It must call Traverse on the exec
// output(s) representing its outcome.
type ExecutorFunc func(ctx context.Context, n *graph.Node, rc *runtime.Context, h Helpers) error

// EvaluatorFunc computes the value of one output pin.
type EvaluatorFunc func(ctx context.Context, n *graph.Node, pinID string, rc *runtime.Context, h Helpers) (any, error)

// PerformFunc is the one-shot behavior of a legacy node.
type PerformFunc func(ctx context.Context, n *graph.Node, rc *runtime.Context, h Helpers) error

// Descriptor declares a node type.
type Descriptor struct {
	Type     string
	Label    string
	Kind     Kind
	Inputs   []graph.Pin
	Outputs  []graph.Pin
	Volatile bool

	Executor  ExecutorFunc
	Evaluator EvaluatorFunc
	Perform   PerformFunc
}

// Pin returns the declared pin with the given id on one side.
func (d *Descriptor) Pin(id string, dir graph.Direction) (graph.Pin, bool) {
	pins := d.Inputs
	if dir == graph.Output {
		pins = d.Outputs
	}
	for _, p := range pins {
		if p.ID == id {
			return p, true
		}
	}
	return graph.Pin{}, false
}

// HasExecInput reports whether the type declares an exec input pin.
func (d *Descriptor) HasExecInput() bool {
	for _, p := range d.Inputs {
		if p.Kind == graph.PinExec {
			return true
		}
	}
	return false
}

// DataInputs returns the ids of the declared data input pins.
func (d *Descriptor) DataInputs() []string {
	var ids []string
	for _, p := range d.Inputs {
		if p.Kind == graph.PinData {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// DataOutputs returns the ids of the declared data output pins.
func (d *Descriptor) DataOutputs() []string {
	var ids []string
	for _, p := range d.Outputs {
		if p.Kind == graph.PinData {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// IsStart reports whether the type is the start node of an event type.
func (d *Descriptor) IsStart() bool {
	return d.Kind == KindEvent && strings.HasPrefix(d.Type, runtime.StartPrefix)
}

// Pin constructors used by node modules.

func ExecIn(id string) graph.Pin {
	return graph.Pin{ID: id, Kind: graph.PinExec, Direction: graph.Input}
}

func ExecOut(id string) graph.Pin {
	return graph.Pin{ID: id, Kind: graph.PinExec, Direction: graph.Output}
}

func DataIn(id, typ string) graph.Pin {
	return graph.Pin{ID: id, Kind: graph.PinData, Direction: graph.Input, Type: typ}
}

func DataOut(id, typ string) graph.Pin {
	return graph.Pin{ID: id, Kind: graph.PinData, Direction: graph.Output, Type: typ}
}
