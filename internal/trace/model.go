package trace

import (
	"maps"
	"time"
)

// Status is the overall state of a trace.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// StepKind separates node executions from traversals.
type StepKind string

const (
	StepNode      StepKind = "node"
	StepTraversal StepKind = "traversal"
)

// StepStatus is the state of a node execution step.
type StepStatus string

const (
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// Step is one entry of a trace. Node steps fill the node fields, traversal
// steps fill the From/To fields.
type Step struct {
	Kind      StepKind       `json:"kind"`
	NodeID    string         `json:"nodeId,omitempty"`
	NodeType  string         `json:"nodeType,omitempty"`
	Status    StepStatus     `json:"status,omitempty"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Error     string         `json:"error,omitempty"`
	FromNode  string         `json:"fromNodeId,omitempty"`
	FromPin   string         `json:"fromPinId,omitempty"`
	ToNode    string         `json:"toNodeId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Trace is the recorded history of one graph run.
type Trace struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"ownerId"`
	GraphID   string         `json:"graphId"`
	EventType string         `json:"eventType"`
	Args      map[string]any `json:"args,omitempty"`
	Status    Status         `json:"status"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   time.Time      `json:"endedAt"`
	Steps     []Step         `json:"steps"`

	// Persist marks traces eligible for durable storage.
	Persist bool `json:"-"`
}

// Clone returns a copy that shares no slices or maps with t.
func (t *Trace) Clone() *Trace {
	c := *t
	c.Args = maps.Clone(t.Args)
	c.Steps = make([]Step, len(t.Steps))
	for i, s := range t.Steps {
		s.Inputs = maps.Clone(s.Inputs)
		s.Outputs = maps.Clone(s.Outputs)
		c.Steps[i] = s
	}
	return &c
}

// NodeSteps returns the node execution steps in order.
func (t *Trace) NodeSteps() []Step {
	var out []Step
	for _, s := range t.Steps {
		if s.Kind == StepNode {
			out = append(out, s)
		}
	}
	return out
}

// Traversals returns the traversal steps in order.
func (t *Trace) Traversals() []Step {
	var out []Step
	for _, s := range t.Steps {
		if s.Kind == StepTraversal {
			out = append(out, s)
		}
	}
	return out
}
