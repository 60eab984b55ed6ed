package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/vk/botgraph/internal/debug"
	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/runtime"
	"github.com/vk/botgraph/internal/trace"
)

// NodeError is a failure raised by a node behavior.
type NodeError struct {
	NodeID   string
	NodeType string
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node '%s' (%s): %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// run is the state of one Engine.Run invocation. It is confined to the
// goroutine executing the run.
type run struct {
	e       *Engine
	idx     *graph.Index
	rc      *runtime.Context
	logger  *slog.Logger
	traceID string

	memo      map[string]map[string]any
	executed  map[string]bool
	dataSteps map[string]int
	sealed    map[string]bool
	tracedOut map[string]map[string]bool
	volatile  map[string]bool
	resolving map[string]bool
	overrides map[string]map[string]any
	captured  map[string]map[string]any

	depth    int
	stepping bool
}

func newRun(e *Engine, idx *graph.Index, rc *runtime.Context, logger *slog.Logger) *run {
	return &run{
		e:         e,
		idx:       idx,
		rc:        rc,
		logger:    logger,
		memo:      make(map[string]map[string]any),
		executed:  make(map[string]bool),
		dataSteps: make(map[string]int),
		sealed:    make(map[string]bool),
		tracedOut: make(map[string]map[string]bool),
		volatile:  make(map[string]bool),
		resolving: make(map[string]bool),
		overrides: make(map[string]map[string]any),
		captured:  make(map[string]map[string]any),
	}
}

func (r *run) wrap(n *graph.Node, err error) error {
	if err == nil || runtime.IsControlSignal(err) {
		return err
	}
	var ne *NodeError
	if errors.As(err, &ne) {
		return err
	}
	return &NodeError{NodeID: n.ID, NodeType: n.Type, Err: err}
}

// Trace plumbing.

func (r *run) tracing() bool { return r.e.tracer != nil && r.traceID != "" }

func (r *run) recordStep(n *graph.Node, inputs, outputs map[string]any, status trace.StepStatus) int {
	if !r.tracing() {
		return -1
	}
	return r.e.tracer.RecordStep(r.traceID, trace.Step{
		NodeID:   n.ID,
		NodeType: n.Type,
		Status:   status,
		Inputs:   inputs,
		Outputs:  outputs,
	})
}

func (r *run) finishStep(idx int, outputs map[string]any, d time.Duration, err error) {
	if !r.tracing() || idx < 0 {
		return
	}
	if len(outputs) > 0 {
		r.e.tracer.UpdateStepOutputs(r.traceID, idx, outputs)
	}
	r.e.tracer.UpdateStepDuration(r.traceID, idx, d)
	if err != nil && !runtime.IsControlSignal(err) {
		r.e.tracer.UpdateStepStatus(r.traceID, idx, trace.StepError, err.Error())
		return
	}
	r.e.tracer.UpdateStepStatus(r.traceID, idx, trace.StepSuccess, "")
}

func (r *run) complete(ctx context.Context) {
	if r.tracing() {
		r.e.tracer.Complete(ctx, r.traceID)
	}
}

func (r *run) fail(ctx context.Context, err error) {
	if r.tracing() {
		r.e.tracer.Fail(ctx, r.traceID, err)
	}
}

// Control flow.

func (r *run) runStart(ctx context.Context, start *graph.Node) error {
	r.dataSteps[start.ID] = r.recordStep(start, nil, maps.Clone(r.rc.Event), trace.StepSuccess)
	r.sealed[start.ID] = true

	pins := []string{"exec"}
	if d, ok := r.e.reg.Lookup(start.Type); ok {
		pins = pins[:0]
		for _, p := range d.Outputs {
			if p.Kind == graph.PinExec {
				pins = append(pins, p.ID)
			}
		}
	}
	for _, pin := range pins {
		if err := r.traverse(ctx, start, pin); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) traverse(ctx context.Context, from *graph.Node, pinID string) error {
	c, ok := r.idx.Outgoing(from.ID, pinID)
	if !ok {
		return nil
	}
	target, ok := r.idx.Node(c.TargetNodeID)
	if !ok {
		return nil
	}
	if r.depth >= r.e.cfg.MaxDepth {
		r.logger.Warn("Traversal depth limit reached, aborting run.", "node", target.ID, "limit", r.e.cfg.MaxDepth)
		return fmt.Errorf("%w at node '%s'", ErrTraversalDepth, target.ID)
	}
	r.depth++
	defer func() { r.depth-- }()

	if r.tracing() {
		r.e.tracer.RecordTraversal(r.traceID, from.ID, pinID, target.ID)
	}
	return r.executeNode(ctx, target)
}

func (r *run) executeNode(ctx context.Context, n *graph.Node) error {
	if err := ctx.Err(); err != nil {
		return r.wrap(n, err)
	}
	d, ok := r.e.reg.Lookup(n.Type)
	if !ok {
		err := fmt.Errorf("%w '%s'", ErrUnknownNodeType, n.Type)
		r.finishStep(r.recordStep(n, nil, nil, trace.StepRunning), nil, 0, err)
		return r.wrap(n, err)
	}
	if d.Kind == registry.KindLegacy && r.executed[n.ID] {
		r.logger.Debug("Legacy node already executed in this run, skipping.", "node", n.ID)
		return nil
	}
	if err := r.checkBreakpoint(ctx, n, d); err != nil {
		return err
	}

	switch d.Kind {
	case registry.KindAction:
		return r.runExecutor(ctx, n, d)
	case registry.KindLegacy:
		return r.runLegacy(ctx, n, d)
	}
	r.logger.Debug("Node has no exec behavior, traversal ends here.", "node", n.ID, "type", n.Type)
	return nil
}

// invocation is the Helpers view handed to one executor call. Its first
// traversal from the executing node finalizes the node's trace step, so the
// step's duration excludes downstream work.
type invocation struct {
	*run
	node      *graph.Node
	step      int
	started   time.Time
	finalized bool
}

func (inv *invocation) Traverse(ctx context.Context, n *graph.Node, pinID string) error {
	if n.ID == inv.node.ID && !inv.finalized {
		inv.finalize(nil)
	}
	return inv.run.Traverse(ctx, n, pinID)
}

func (inv *invocation) finalize(err error) {
	inv.finalized = true
	inv.finishStep(inv.step, maps.Clone(inv.memo[inv.node.ID]), time.Since(inv.started), err)
}

func (r *run) runExecutor(ctx context.Context, n *graph.Node, d *registry.Descriptor) error {
	inputs, err := r.captureInputs(ctx, n, d)
	if err != nil {
		r.finishStep(r.recordStep(n, inputs, nil, trace.StepRunning), nil, 0, err)
		return r.wrap(n, err)
	}

	inv := &invocation{
		run:     r,
		node:    n,
		step:    r.recordStep(n, inputs, nil, trace.StepRunning),
		started: time.Now(),
	}
	r.captured[n.ID] = maps.Clone(inputs)
	defer delete(r.captured, n.ID)
	r.logger.Debug("Executing node.", "node", n.ID, "type", n.Type)

	err = callExecutor(ctx, d, n, r.rc, inv)
	if !inv.finalized {
		inv.finalize(err)
	}
	return r.wrap(n, err)
}

func (r *run) runLegacy(ctx context.Context, n *graph.Node, d *registry.Descriptor) error {
	r.executed[n.ID] = true

	inputs, err := r.captureInputs(ctx, n, d)
	step := r.recordStep(n, inputs, nil, trace.StepRunning)
	if err != nil {
		r.finishStep(step, nil, 0, err)
		return r.wrap(n, err)
	}

	r.logger.Debug("Performing legacy node.", "node", n.ID, "type", n.Type)
	r.captured[n.ID] = maps.Clone(inputs)
	started := time.Now()
	err = callPerform(ctx, d, n, r.rc, r)
	delete(r.captured, n.ID)
	r.finishStep(step, maps.Clone(r.memo[n.ID]), time.Since(started), err)
	if err != nil {
		return r.wrap(n, err)
	}

	pin, ok := registry.LegacyAdvancePin(n.Type)
	if !ok {
		return nil
	}
	return r.traverse(ctx, n, pin)
}

func callExecutor(ctx context.Context, d *registry.Descriptor, n *graph.Node, rc *runtime.Context, h registry.Helpers) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in executor: %v", rec)
		}
	}()
	return d.Executor(ctx, n, rc, h)
}

func callPerform(ctx context.Context, d *registry.Descriptor, n *graph.Node, rc *runtime.Context, h registry.Helpers) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in node: %v", rec)
		}
	}()
	return d.Perform(ctx, n, rc, h)
}

func callEvaluator(ctx context.Context, d *registry.Descriptor, n *graph.Node, pinID string, rc *runtime.Context, h registry.Helpers) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in evaluator: %v", rec)
		}
	}()
	return d.Evaluator(ctx, n, pinID, rc, h)
}

// Debugging.

func (r *run) checkBreakpoint(ctx context.Context, n *graph.Node, d *registry.Descriptor) error {
	if r.e.debugger == nil {
		return nil
	}
	var reason string
	switch {
	case r.stepping:
		reason = debug.ReasonStep
	case r.e.debugger.ShouldBreak(ctx, debug.Key{OwnerID: r.rc.OwnerID, GraphID: r.rc.GraphID}, n.ID, r.rc):
		reason = debug.ReasonBreakpoint
	default:
		return nil
	}

	inputs, err := r.captureInputs(ctx, n, d)
	if err != nil {
		r.logger.Warn("Could not resolve inputs for pause snapshot.", "node", n.ID, "error", err)
	}
	state := debug.PauseState{
		GraphID:  r.rc.GraphID,
		OwnerID:  r.rc.OwnerID,
		TraceID:  r.traceID,
		NodeID:   n.ID,
		NodeType: n.Type,
		Reason:   reason,
		Inputs:   inputs,
		Context:  r.rc.Snapshot(),
	}
	if r.tracing() {
		if t, ok := r.e.tracer.Snapshot(r.traceID); ok {
			state.Trace = t
		}
	}

	r.logger.Debug("Pausing before node.", "node", n.ID, "reason", reason)
	res, err := r.e.debugger.Pause(ctx, state)
	if err != nil {
		return r.wrap(n, fmt.Errorf("debug pause: %w", err))
	}
	if res.Stop {
		return runtime.ErrStoppedByDebugger
	}
	r.stepping = res.Step
	if len(res.Overrides) > 0 {
		o := r.overrides[n.ID]
		if o == nil {
			o = make(map[string]any, len(res.Overrides))
			r.overrides[n.ID] = o
		}
		maps.Copy(o, res.Overrides)
		r.logger.Debug("Applied debugger overrides.", "node", n.ID, "keys", len(res.Overrides))
	}
	return nil
}
