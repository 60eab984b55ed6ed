package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/debug"
	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/runtime"
	"github.com/vk/botgraph/internal/trace"
)

var (
	// ErrNoStartNode fails command-style runs whose graph lacks the command
	// start node.
	ErrNoStartNode = errors.New("start node not found")
	// ErrTraversalDepth is returned when nested traversals exceed the
	// configured ceiling, typically because of an exec cycle.
	ErrTraversalDepth = errors.New("traversal depth limit exceeded")
	// ErrDataCycle is returned when a data input depends on itself.
	ErrDataCycle = errors.New("data dependency cycle")
	// ErrUnknownNodeType is returned for nodes whose type is not registered.
	ErrUnknownNodeType = errors.New("unknown node type")
)

// Tracer receives the trace of a run. *trace.Collector implements it.
type Tracer interface {
	Start(ctx context.Context, ownerID, graphID, eventType string, args map[string]any, persist bool) string
	RecordStep(traceID string, step trace.Step) int
	RecordTraversal(traceID, fromNode, fromPin, toNode string)
	UpdateStepOutputs(traceID string, idx int, outputs map[string]any)
	UpdateStepDuration(traceID string, idx int, d time.Duration)
	UpdateStepStatus(traceID string, idx int, status trace.StepStatus, errMsg string)
	Complete(ctx context.Context, traceID string)
	Fail(ctx context.Context, traceID string, err error)
	Snapshot(traceID string) (*trace.Trace, bool)
}

// Debugger decides on and performs breakpoint pauses. *debug.Manager
// implements it.
type Debugger interface {
	ShouldBreak(ctx context.Context, key debug.Key, nodeID string, rc *runtime.Context) bool
	Pause(ctx context.Context, state debug.PauseState) (debug.Resume, error)
}

// Config bounds the work of a single run.
type Config struct {
	// MaxDepth is the ceiling on nested traversals.
	MaxDepth int
	// MaxVolatilityDepth bounds the upstream walk of the volatility check.
	MaxVolatilityDepth int
	// MaxLoopBodyNodes bounds the nodes visited when a loop body is reset.
	MaxLoopBodyNodes int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{MaxDepth: 1024, MaxVolatilityDepth: 64, MaxLoopBodyNodes: 4096}
}

// Engine runs graphs. It holds no per-run state and is safe for concurrent
// use.
type Engine struct {
	reg      *registry.Registry
	tracer   Tracer
	debugger Debugger
	cfg      Config
}

// New creates an Engine. A nil tracer or debugger disables tracing or
// debugging.
func New(reg *registry.Registry, tracer Tracer, debugger Debugger, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MaxVolatilityDepth <= 0 {
		cfg.MaxVolatilityDepth = def.MaxVolatilityDepth
	}
	if cfg.MaxLoopBodyNodes <= 0 {
		cfg.MaxLoopBodyNodes = def.MaxLoopBodyNodes
	}
	return &Engine{reg: reg, tracer: tracer, debugger: debugger, cfg: cfg}
}

// Registry returns the registry the engine dispatches through.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Run executes g for one event and returns rc. The error is non-nil only
// for a genuine failure, which has already been logged and traced. Runs
// stopped by the debugger or ended by a loop break are not failures.
func (e *Engine) Run(ctx context.Context, g *graph.Graph, rc *runtime.Context, eventType string) (out *runtime.Context, err error) {
	if rc == nil {
		rc = &runtime.Context{}
	}
	logger := ctxlog.FromContext(ctx).With("owner", rc.OwnerID, "graph", graphID(g, rc), "event", eventType)
	ctx = ctxlog.WithLogger(ctx, logger)

	idx, verr := graph.NewIndex(g, e.reg)
	if verr != nil {
		logger.Warn("Graph failed validation, skipping run.", "error", verr)
		return rc, nil
	}
	if cerr := idx.DetectExecCycles(); cerr != nil {
		logger.Debug("Graph contains an exec cycle.", "detail", cerr)
	}

	start := findStart(idx, eventType)
	if start == nil && eventType != "" {
		logger.Debug("No start node for event, nothing to run.")
		return rc, nil
	}

	if rc.GraphID == "" {
		rc.GraphID = g.ID
	}
	if rc.GraphName == "" {
		rc.GraphName = g.Name
	}
	if rc.EventType == "" {
		rc.EventType = eventType
	}
	if rc.Intents == nil {
		rc.Intents = &runtime.Intents{}
	}

	r := newRun(e, idx, rc, logger)
	if e.tracer != nil && rc.OwnerID != "" && rc.GraphID != "" {
		r.traceID = e.tracer.Start(ctx, rc.OwnerID, rc.GraphID, eventType, rc.Args, persistable(eventType))
		logger = logger.With("trace", r.traceID)
		ctx = ctxlog.WithLogger(ctx, logger)
		r.logger = logger
	}

	runtime.SeedVariables(rc, g.Variables)

	defer func() {
		if rec := recover(); rec != nil {
			out = rc
			err = fmt.Errorf("engine panic: %v", rec)
			logger.Error("Run panicked.", "error", err)
			r.fail(ctx, err)
		}
	}()

	if start == nil {
		err := fmt.Errorf("%w: %s", ErrNoStartNode, runtime.StartNodeType(eventType))
		logger.Error("Command run has no start node.", "error", err)
		r.fail(ctx, err)
		return rc, err
	}

	logger.Debug("Run started.", "start", start.ID)
	runErr := r.runStart(ctx, start)
	switch {
	case runErr == nil:
		logger.Debug("Run completed.")
		r.complete(ctx)
	case runtime.IsControlSignal(runErr):
		logger.Debug("Run ended by control signal.", "signal", runErr)
		r.complete(ctx)
	default:
		logger.Error("Run failed.", "error", runErr)
		r.fail(ctx, runErr)
		return rc, runErr
	}
	return rc, nil
}

func graphID(g *graph.Graph, rc *runtime.Context) string {
	if rc.GraphID != "" {
		return rc.GraphID
	}
	if g != nil {
		return g.ID
	}
	return ""
}

func findStart(idx *graph.Index, eventType string) *graph.Node {
	nodes := idx.NodesOfType(runtime.StartNodeType(eventType))
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// persistable reports whether traces of the event type may be stored
// durably. Command and request/response runs stay in memory.
func persistable(eventType string) bool {
	switch eventType {
	case "", runtime.EventCommand, runtime.EventAPICall:
		return false
	}
	return true
}
