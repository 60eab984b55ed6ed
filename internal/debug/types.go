package debug

import (
	"errors"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/botgraph/internal/trace"
)

var (
	// ErrNotPaused is returned by Resume and Stop when the session has no
	// active pause.
	ErrNotPaused = errors.New("graph is not paused")
	// ErrNoBreakpoint is returned for operations on a missing breakpoint.
	ErrNoBreakpoint = errors.New("breakpoint not found")
)

// Breakpoint suspends runs before a node executes.
type Breakpoint struct {
	NodeID    string    `json:"nodeId"`
	Condition string    `json:"condition,omitempty"`
	Enabled   bool      `json:"enabled"`
	HitCount  int       `json:"hitCount"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	cond hcl.Expression
}

// PauseState is the snapshot of a suspended run.
type PauseState struct {
	GraphID  string         `json:"graphId"`
	OwnerID  string         `json:"ownerId"`
	TraceID  string         `json:"traceId,omitempty"`
	NodeID   string         `json:"nodeId"`
	NodeType string         `json:"nodeType"`
	Reason   string         `json:"reason"`
	Inputs   map[string]any `json:"inputs,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
	Trace    *trace.Trace   `json:"trace,omitempty"`
	PausedAt time.Time      `json:"pausedAt"`
}

// Key returns the session the paused run belongs to.
func (p PauseState) Key() Key { return Key{OwnerID: p.OwnerID, GraphID: p.GraphID} }

// Pause reasons.
const (
	ReasonBreakpoint = "breakpoint"
	ReasonStep       = "step"
)

// Resume is the decision delivered to a paused run.
type Resume struct {
	// Overrides are merged into the paused node's literal parameters for
	// the rest of the run.
	Overrides map[string]any `json:"overrides,omitempty"`
	// Step pauses the run again before the next node it executes.
	Step bool `json:"step,omitempty"`
	// Stop aborts the remaining traversal.
	Stop bool `json:"stop,omitempty"`
}

// EventType names a session event.
type EventType string

const (
	EventPaused            EventType = "paused"
	EventResumed           EventType = "resumed"
	EventStopped           EventType = "stopped"
	EventBreakpointAdded   EventType = "breakpoint_added"
	EventBreakpointRemoved EventType = "breakpoint_removed"
	EventBreakpointToggled EventType = "breakpoint_toggled"
)

// Event is broadcast to every observer of a session.
type Event struct {
	Key
	Type       EventType      `json:"type"`
	Actor      string         `json:"actor,omitempty"`
	Pause      *PauseState    `json:"pause,omitempty"`
	Breakpoint *Breakpoint    `json:"breakpoint,omitempty"`
	Overrides  map[string]any `json:"overrides,omitempty"`
}

// Observer receives session events. It is called synchronously and must not
// block.
type Observer func(Event)
