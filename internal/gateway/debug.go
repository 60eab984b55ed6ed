package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/botgraph/internal/debug"
	"github.com/vk/botgraph/internal/manager"
	"github.com/vk/botgraph/internal/trace"
)

// ErrUnknownCommand is returned for debug commands the service does not
// implement.
var ErrUnknownCommand = errors.New("unknown debug command")

// Debug commands accepted on the /debug namespace. Every command carries a
// Request payload and is acknowledged with its result.
const (
	CmdAddBreakpoint    = "breakpoint:add"
	CmdRemoveBreakpoint = "breakpoint:remove"
	CmdToggleBreakpoint = "breakpoint:toggle"
	CmdBreakpoints      = "breakpoints"
	CmdPaused           = "paused"
	CmdResume           = "resume"
	CmdStop             = "stop"
	CmdTrace            = "trace:get"
	CmdLastTrace        = "trace:last"
	CmdHistory          = "traces"
	CmdGraphs           = "graphs"
)

// Commands lists every debug command.
var Commands = []string{
	CmdAddBreakpoint, CmdRemoveBreakpoint, CmdToggleBreakpoint, CmdBreakpoints,
	CmdPaused, CmdResume, CmdStop, CmdTrace, CmdLastTrace, CmdHistory, CmdGraphs,
}

// Request is the payload of a debug command. Each command reads the
// fields it needs.
type Request struct {
	OwnerID   string         `json:"ownerId,omitempty"`
	GraphID   string         `json:"graphId,omitempty"`
	NodeID    string         `json:"nodeId,omitempty"`
	Condition string         `json:"condition,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
	EventType string         `json:"eventType,omitempty"`
	Overrides map[string]any `json:"overrides,omitempty"`
	Step      bool           `json:"step,omitempty"`
}

// Traces is the trace lookup surface of *trace.Collector.
type Traces interface {
	Get(ctx context.Context, traceID string) (*trace.Trace, error)
	LastForGraph(ctx context.Context, ownerID, graphID, eventType string) (*trace.Trace, error)
	History(ownerID string) []*trace.Trace
}

// Graphs lists the loaded graphs of an owner. *manager.Manager implements
// it.
type Graphs interface {
	Graphs(ownerID string) []manager.GraphInfo
}

// DebugService executes debug commands against the debug manager and the
// trace collector.
type DebugService struct {
	debug  *debug.Manager
	traces Traces
	graphs Graphs
}

// NewDebugService creates a DebugService. graphs may be nil.
func NewDebugService(d *debug.Manager, traces Traces, graphs Graphs) *DebugService {
	return &DebugService{debug: d, traces: traces, graphs: graphs}
}

// Attach subscribes o to the events of one owner's debug session on a
// graph.
func (s *DebugService) Attach(key debug.Key, o debug.Observer) (detach func()) {
	return s.debug.Attach(key, o)
}

// Handle executes one command on behalf of actor.
func (s *DebugService) Handle(ctx context.Context, actor, cmd string, req Request) (any, error) {
	needGraph := func() error {
		if req.GraphID == "" {
			return fmt.Errorf("%s: graphId is required", cmd)
		}
		return nil
	}
	// Debug sessions belong to one owner's copy of a graph.
	needSession := func() error {
		if req.OwnerID == "" {
			return fmt.Errorf("%s: ownerId is required", cmd)
		}
		return needGraph()
	}
	key := debug.Key{OwnerID: req.OwnerID, GraphID: req.GraphID}

	switch cmd {
	case CmdAddBreakpoint, CmdRemoveBreakpoint, CmdToggleBreakpoint:
		if err := needSession(); err != nil {
			return nil, err
		}
		if req.NodeID == "" {
			return nil, fmt.Errorf("%s: nodeId is required", cmd)
		}
		switch cmd {
		case CmdAddBreakpoint:
			return s.debug.AddBreakpoint(ctx, key, req.NodeID, req.Condition, actor)
		case CmdRemoveBreakpoint:
			return nil, s.debug.RemoveBreakpoint(ctx, key, req.NodeID, actor)
		default:
			return s.debug.ToggleBreakpoint(ctx, key, req.NodeID, actor)
		}

	case CmdBreakpoints:
		if err := needSession(); err != nil {
			return nil, err
		}
		return s.debug.Breakpoints(key), nil

	case CmdPaused:
		if err := needSession(); err != nil {
			return nil, err
		}
		if st, ok := s.debug.Paused(key); ok {
			return st, nil
		}
		return nil, nil

	case CmdResume:
		if err := needSession(); err != nil {
			return nil, err
		}
		return nil, s.debug.Resume(ctx, key, actor, debug.Resume{Overrides: req.Overrides, Step: req.Step})

	case CmdStop:
		if err := needSession(); err != nil {
			return nil, err
		}
		return nil, s.debug.Stop(ctx, key, actor)

	case CmdTrace:
		if req.TraceID == "" {
			return nil, fmt.Errorf("%s: traceId is required", cmd)
		}
		return s.traces.Get(ctx, req.TraceID)

	case CmdLastTrace:
		if err := needGraph(); err != nil {
			return nil, err
		}
		return s.traces.LastForGraph(ctx, req.OwnerID, req.GraphID, req.EventType)

	case CmdHistory:
		return s.traces.History(req.OwnerID), nil

	case CmdGraphs:
		if s.graphs == nil {
			return []manager.GraphInfo{}, nil
		}
		return s.graphs.Graphs(req.OwnerID), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
}
