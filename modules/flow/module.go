// Package flow provides control-flow nodes: branching, sequencing, loops,
// loop break and delay.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/runtime"
)

// DefaultMaxIterations bounds repeat and while loops when no limit is set.
const DefaultMaxIterations = 1000

// SequenceOutputs is the number of exec outputs of flow:sequence.
const SequenceOutputs = 4

// ErrIterationLimit is returned by a while loop that does not terminate
// within the iteration limit.
var ErrIterationLimit = errors.New("loop iteration limit exceeded")

// Module implements the registry.Module interface for this package.
type Module struct {
	// MaxIterations bounds repeat and while loops.
	MaxIterations int
}

func (m *Module) maxIterations() int {
	if m.MaxIterations > 0 {
		return m.MaxIterations
	}
	return DefaultMaxIterations
}

// Register registers the flow node types.
func (m *Module) Register(r *registry.Registry) {
	r.Register(registry.Descriptor{
		Type:     "flow:branch",
		Label:    "Branch",
		Kind:     registry.KindAction,
		Inputs:   []graph.Pin{registry.ExecIn("exec"), registry.DataIn("condition", "boolean")},
		Outputs:  []graph.Pin{registry.ExecOut("true"), registry.ExecOut("false")},
		Executor: branch,
	})

	seqOut := make([]graph.Pin, SequenceOutputs)
	for i := range seqOut {
		seqOut[i] = registry.ExecOut(fmt.Sprintf("then_%d", i))
	}
	r.Register(registry.Descriptor{
		Type:     "flow:sequence",
		Label:    "Sequence",
		Kind:     registry.KindAction,
		Inputs:   []graph.Pin{registry.ExecIn("exec")},
		Outputs:  seqOut,
		Executor: sequence,
	})

	r.Register(registry.Descriptor{
		Type:   "flow:for_each",
		Label:  "For Each",
		Kind:   registry.KindAction,
		Inputs: []graph.Pin{registry.ExecIn("exec"), registry.DataIn("array", "array")},
		Outputs: []graph.Pin{
			registry.ExecOut("loop_body"),
			registry.ExecOut("completed"),
			registry.DataOut("element", "any"),
			registry.DataOut("index", "number"),
		},
		Executor: forEach,
	})

	r.Register(registry.Descriptor{
		Type:   "flow:repeat",
		Label:  "Repeat",
		Kind:   registry.KindAction,
		Inputs: []graph.Pin{registry.ExecIn("exec"), registry.DataIn("count", "number")},
		Outputs: []graph.Pin{
			registry.ExecOut("loop_body"),
			registry.ExecOut("completed"),
			registry.DataOut("index", "number"),
		},
		Executor: m.repeat,
	})

	r.Register(registry.Descriptor{
		Type:   "flow:while",
		Label:  "While",
		Kind:   registry.KindAction,
		Inputs: []graph.Pin{registry.ExecIn("exec"), registry.DataIn("condition", "boolean")},
		Outputs: []graph.Pin{
			registry.ExecOut("loop_body"),
			registry.ExecOut("completed"),
			registry.DataOut("index", "number"),
		},
		Executor: m.while,
	})

	r.Register(registry.Descriptor{
		Type:   "flow:break",
		Label:  "Break",
		Kind:   registry.KindAction,
		Inputs: []graph.Pin{registry.ExecIn("exec")},
		Executor: func(context.Context, *graph.Node, *runtime.Context, registry.Helpers) error {
			return runtime.ErrBreakLoop
		},
	})

	r.Register(registry.Descriptor{
		Type:     "flow:delay",
		Label:    "Delay",
		Kind:     registry.KindAction,
		Inputs:   []graph.Pin{registry.ExecIn("exec"), registry.DataIn("ms", "number")},
		Outputs:  []graph.Pin{registry.ExecOut("exec")},
		Executor: delay,
	})
}

func branch(ctx context.Context, n *graph.Node, _ *runtime.Context, h registry.Helpers) error {
	cond, err := registry.ResolveBool(ctx, h, n, "condition", false)
	if err != nil {
		return err
	}
	if cond {
		return h.Traverse(ctx, n, "true")
	}
	return h.Traverse(ctx, n, "false")
}

func sequence(ctx context.Context, n *graph.Node, _ *runtime.Context, h registry.Helpers) error {
	for i := 0; i < SequenceOutputs; i++ {
		if err := h.Traverse(ctx, n, fmt.Sprintf("then_%d", i)); err != nil {
			return err
		}
	}
	return nil
}

// iterate runs the loop body once. It reports whether the body asked to
// break out of the loop.
func iterate(ctx context.Context, n *graph.Node, h registry.Helpers) (bool, error) {
	h.ResetLoopBody(n, "loop_body")
	err := h.Traverse(ctx, n, "loop_body")
	if errors.Is(err, runtime.ErrBreakLoop) {
		return true, nil
	}
	return false, err
}

func forEach(ctx context.Context, n *graph.Node, _ *runtime.Context, h registry.Helpers) error {
	items, err := registry.ResolveArray(ctx, h, n, "array")
	if err != nil {
		return err
	}
	for i, item := range items {
		h.SetOutput(n, "element", item)
		h.SetOutput(n, "index", float64(i))
		stop, err := iterate(ctx, n, h)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return h.Traverse(ctx, n, "completed")
}

func (m *Module) repeat(ctx context.Context, n *graph.Node, _ *runtime.Context, h registry.Helpers) error {
	count, err := registry.ResolveNumber(ctx, h, n, "count", 0)
	if err != nil {
		return err
	}
	times := int(count)
	if limit := m.maxIterations(); times > limit {
		ctxlog.FromContext(ctx).Warn("Repeat count exceeds the iteration limit, clamping.", "node", n.ID, "count", times, "limit", limit)
		times = limit
	}
	for i := 0; i < times; i++ {
		h.SetOutput(n, "index", float64(i))
		stop, err := iterate(ctx, n, h)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return h.Traverse(ctx, n, "completed")
}

func (m *Module) while(ctx context.Context, n *graph.Node, _ *runtime.Context, h registry.Helpers) error {
	limit := m.maxIterations()
	for i := 0; ; i++ {
		cond, err := registry.ResolveBool(ctx, h, n, "condition", false)
		if err != nil {
			return err
		}
		if !cond {
			break
		}
		if i >= limit {
			return fmt.Errorf("%w (%d)", ErrIterationLimit, limit)
		}
		h.SetOutput(n, "index", float64(i))
		stop, err := iterate(ctx, n, h)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return h.Traverse(ctx, n, "completed")
}

func delay(ctx context.Context, n *graph.Node, _ *runtime.Context, h registry.Helpers) error {
	ms, err := registry.ResolveNumber(ctx, h, n, "ms", 0)
	if err != nil {
		return err
	}
	if ms > 0 {
		t := time.NewTimer(time.Duration(ms * float64(time.Millisecond)))
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return h.Traverse(ctx, n, "exec")
}
