package engine

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/trace"
)

// Helpers implementation.

func (r *run) Traverse(ctx context.Context, n *graph.Node, pinID string) error {
	return r.traverse(ctx, n, pinID)
}

func (r *run) ResolvePinValue(ctx context.Context, n *graph.Node, pinID string, def any) (any, error) {
	if v, ok := r.takeCaptured(n, pinID); ok {
		return v, nil
	}
	return r.resolvePinValue(ctx, n, pinID, def)
}

func (r *run) SetOutput(n *graph.Node, pinID string, v any) {
	m, ok := r.memo[n.ID]
	if !ok {
		m = make(map[string]any)
		r.memo[n.ID] = m
	}
	m[pinID] = v
}

func (r *run) Output(n *graph.Node, pinID string) (any, bool) {
	v, ok := r.memo[n.ID][pinID]
	return v, ok
}

var _ registry.Helpers = (*run)(nil)
var _ registry.Helpers = (*invocation)(nil)

// literal returns a node's literal parameter, honoring debugger overrides.
func (r *run) literal(n *graph.Node, pinID string) (any, bool) {
	if o, ok := r.overrides[n.ID]; ok {
		if v, ok := o[pinID]; ok {
			return v, true
		}
	}
	v, ok := n.Data[pinID]
	return v, ok
}

func (r *run) resolvePinValue(ctx context.Context, n *graph.Node, pinID string, def any) (any, error) {
	if c, ok := r.idx.Incoming(n.ID, pinID); ok {
		if src, ok := r.idx.Node(c.SourceNodeID); ok {
			return r.evaluateOutputPin(ctx, src, c.SourcePinID, def)
		}
	}
	if v, ok := r.literal(n, pinID); ok {
		return v, nil
	}
	return def, nil
}

// takeCaptured hands out an input value recorded in the node's trace step,
// so the behavior sees exactly what the trace shows. Each pin is handed out
// once; later reads evaluate again and loop conditions stay live.
func (r *run) takeCaptured(n *graph.Node, pinID string) (any, bool) {
	pins := r.captured[n.ID]
	v, ok := pins[pinID]
	if !ok || v == nil {
		return nil, false
	}
	delete(pins, pinID)
	return v, true
}

func (r *run) captureInputs(ctx context.Context, n *graph.Node, d *registry.Descriptor) (map[string]any, error) {
	ids := d.DataInputs()
	if len(ids) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(ids))
	for _, id := range ids {
		v, err := r.resolvePinValue(ctx, n, id, nil)
		if err != nil {
			return inputs, err
		}
		inputs[id] = v
	}
	return inputs, nil
}

func (r *run) evaluateOutputPin(ctx context.Context, n *graph.Node, pinID string, def any) (any, error) {
	d, ok := r.e.reg.Lookup(n.Type)
	if !ok {
		return nil, r.wrap(n, fmt.Errorf("%w '%s'", ErrUnknownNodeType, n.Type))
	}

	// Outputs of exec nodes are whatever their last execution stored.
	if d.Kind == registry.KindAction || d.Kind == registry.KindLegacy {
		if v, ok := r.Output(n, pinID); ok {
			return v, nil
		}
		if d.Evaluator == nil {
			return def, nil
		}
		v, err := callEvaluator(ctx, d, n, pinID, r.rc, r)
		return v, r.wrap(n, err)
	}

	volatile := r.isVolatile(n)
	if !volatile {
		if v, ok := r.Output(n, pinID); ok {
			return v, nil
		}
	}

	key := n.ID + "." + pinID
	if r.resolving[key] {
		return nil, r.wrap(n, fmt.Errorf("%w at %s", ErrDataCycle, key))
	}
	r.resolving[key] = true
	defer delete(r.resolving, key)

	step, err := r.traceDataNode(ctx, n, d)
	if err != nil {
		return nil, err
	}
	defer delete(r.captured, n.ID)

	started := time.Now()
	var v any
	if d.Kind == registry.KindEvent {
		var found bool
		if v, found = r.rc.Event[pinID]; !found {
			v = def
		}
	} else {
		v, err = callEvaluator(ctx, d, n, pinID, r.rc, r)
		if err != nil {
			if !r.sealed[n.ID] {
				r.sealed[n.ID] = true
				r.finishStep(step, nil, time.Since(started), err)
			}
			return nil, r.wrap(n, err)
		}
	}

	if !volatile {
		r.SetOutput(n, pinID, v)
	}
	r.traceDataOutput(n, pinID, v, time.Since(started))
	return v, nil
}

// traceDataNode records the single execution step of a data node the first
// time it is pulled in a run.
func (r *run) traceDataNode(ctx context.Context, n *graph.Node, d *registry.Descriptor) (int, error) {
	if idx, ok := r.dataSteps[n.ID]; ok {
		return idx, nil
	}
	r.dataSteps[n.ID] = -1

	inputs, err := r.captureInputs(ctx, n, d)
	idx := r.recordStep(n, inputs, nil, trace.StepSuccess)
	r.dataSteps[n.ID] = idx
	if err != nil {
		r.sealed[n.ID] = true
		r.finishStep(idx, nil, 0, err)
		return idx, r.wrap(n, err)
	}
	r.captured[n.ID] = maps.Clone(inputs)
	return idx, nil
}

// traceDataOutput merges each output pin of a data node into its step
// exactly once.
func (r *run) traceDataOutput(n *graph.Node, pinID string, v any, d time.Duration) {
	idx, ok := r.dataSteps[n.ID]
	if !ok || idx < 0 || r.sealed[n.ID] || !r.tracing() {
		return
	}
	done, ok := r.tracedOut[n.ID]
	if !ok {
		done = make(map[string]bool)
		r.tracedOut[n.ID] = done
		r.e.tracer.UpdateStepDuration(r.traceID, idx, d)
	}
	if done[pinID] {
		return
	}
	done[pinID] = true
	r.e.tracer.UpdateStepOutputs(r.traceID, idx, map[string]any{pinID: v})
}

// isVolatile reports whether a data node must be re-evaluated on every
// pull: its type reads live state, or one of its upstream data sources is
// volatile.
func (r *run) isVolatile(n *graph.Node) bool {
	if v, ok := r.volatile[n.ID]; ok {
		return v
	}
	v := r.computeVolatile(n, make(map[string]bool), 0)
	r.volatile[n.ID] = v
	return v
}

func (r *run) computeVolatile(n *graph.Node, visited map[string]bool, depth int) bool {
	if depth > r.e.cfg.MaxVolatilityDepth {
		r.logger.Warn("Volatility check depth limit reached, assuming non-volatile.", "node", n.ID, "limit", r.e.cfg.MaxVolatilityDepth)
		return false
	}
	if visited[n.ID] {
		return false
	}
	visited[n.ID] = true

	d, ok := r.e.reg.Lookup(n.Type)
	if !ok {
		return false
	}
	if d.Volatile {
		return true
	}
	if d.Kind != registry.KindData {
		return false
	}

	for _, c := range r.idx.IncomingTo(n.ID) {
		if r.idx.IsExec(n, c.TargetPinID, graph.Input) {
			continue
		}
		src, ok := r.idx.Node(c.SourceNodeID)
		if !ok {
			continue
		}
		if cached, ok := r.volatile[src.ID]; ok {
			if cached {
				return true
			}
			continue
		}
		if r.computeVolatile(src, visited, depth+1) {
			return true
		}
	}
	return false
}

// ResetLoopBody clears the memoized values of every data node reachable
// from the loop body pin, following exec edges forward and data edges in
// both directions. The loop node itself keeps its outputs.
func (r *run) ResetLoopBody(n *graph.Node, pinID string) {
	c, ok := r.idx.Outgoing(n.ID, pinID)
	if !ok {
		return
	}

	type item struct {
		id      string
		viaExec bool
	}
	queue := []item{{id: c.TargetNodeID, viaExec: true}}
	visited := map[string]bool{n.ID: true}
	limit := r.e.cfg.MaxLoopBodyNodes

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if visited[it.id] {
			continue
		}
		if len(visited) > limit {
			r.logger.Warn("Loop body reset limit reached, stopping expansion.", "loop", n.ID, "limit", limit)
			return
		}
		visited[it.id] = true

		node, ok := r.idx.Node(it.id)
		if !ok {
			continue
		}
		if d, ok := r.e.reg.Lookup(node.Type); !ok || d.Kind == registry.KindData {
			delete(r.memo, it.id)
		}

		for _, out := range r.idx.OutgoingFrom(it.id) {
			exec := r.idx.IsExec(node, out.SourcePinID, graph.Output)
			if exec && !it.viaExec {
				continue
			}
			queue = append(queue, item{id: out.TargetNodeID, viaExec: exec})
		}
		for _, in := range r.idx.IncomingTo(it.id) {
			if r.idx.IsExec(node, in.TargetPinID, graph.Input) {
				continue
			}
			queue = append(queue, item{id: in.SourceNodeID})
		}
	}
}
