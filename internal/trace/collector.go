package trace

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/botgraph/internal/ctxlog"
)

// DefaultHistorySize is the per-owner history cap used when none is given.
const DefaultHistorySize = 50

// Collector records traces of running graphs. It is safe for concurrent use.
type Collector struct {
	mu          sync.Mutex
	active      map[string]*Trace
	history     map[string][]*Trace
	historySize int
	store       Store

	now func() time.Time
}

// NewCollector creates a Collector. store may be nil for memory-only traces.
func NewCollector(store Store, historySize int) *Collector {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Collector{
		active:      make(map[string]*Trace),
		history:     make(map[string][]*Trace),
		historySize: historySize,
		store:       store,
		now:         time.Now,
	}
}

// Start opens a new running trace and returns its id.
func (c *Collector) Start(ctx context.Context, ownerID, graphID, eventType string, args map[string]any, persist bool) string {
	t := &Trace{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		GraphID:   graphID,
		EventType: eventType,
		Args:      maps.Clone(args),
		Status:    StatusRunning,
		StartedAt: c.now(),
		Persist:   persist,
	}

	c.mu.Lock()
	c.active[t.ID] = t
	c.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Trace started.", "trace", t.ID, "owner", ownerID, "graph", graphID, "event", eventType)
	return t.ID
}

// RecordStep appends a node step and returns its index, or -1 when the
// trace is not running.
func (c *Collector) RecordStep(traceID string, step Step) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.active[traceID]
	if !ok {
		return -1
	}
	step.Kind = StepNode
	if step.Status == "" {
		step.Status = StepRunning
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = c.now()
	}
	step.Inputs = maps.Clone(step.Inputs)
	step.Outputs = maps.Clone(step.Outputs)
	t.Steps = append(t.Steps, step)
	return len(t.Steps) - 1
}

// RecordTraversal appends a traversal step.
func (c *Collector) RecordTraversal(traceID, fromNode, fromPin, toNode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.active[traceID]
	if !ok {
		return
	}
	t.Steps = append(t.Steps, Step{
		Kind:      StepTraversal,
		FromNode:  fromNode,
		FromPin:   fromPin,
		ToNode:    toNode,
		Timestamp: c.now(),
	})
}

// UpdateStepOutputs merges outputs into a node step.
func (c *Collector) UpdateStepOutputs(traceID string, idx int, outputs map[string]any) {
	c.withStep(traceID, idx, func(s *Step) {
		if s.Outputs == nil {
			s.Outputs = make(map[string]any, len(outputs))
		}
		maps.Copy(s.Outputs, outputs)
	})
}

// UpdateStepDuration sets the duration of a node step.
func (c *Collector) UpdateStepDuration(traceID string, idx int, d time.Duration) {
	c.withStep(traceID, idx, func(s *Step) { s.Duration = d })
}

// UpdateStepStatus sets the status and error message of a node step.
func (c *Collector) UpdateStepStatus(traceID string, idx int, status StepStatus, errMsg string) {
	c.withStep(traceID, idx, func(s *Step) {
		s.Status = status
		s.Error = errMsg
	})
}

func (c *Collector) withStep(traceID string, idx int, fn func(*Step)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.active[traceID]
	if !ok || idx < 0 || idx >= len(t.Steps) || t.Steps[idx].Kind != StepNode {
		return
	}
	fn(&t.Steps[idx])
}

// Complete finalizes a trace as completed.
func (c *Collector) Complete(ctx context.Context, traceID string) {
	c.finalize(ctx, traceID, StatusCompleted, "")
}

// Fail finalizes a trace as failed.
func (c *Collector) Fail(ctx context.Context, traceID string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.finalize(ctx, traceID, StatusError, msg)
}

func (c *Collector) finalize(ctx context.Context, traceID string, status Status, errMsg string) {
	logger := ctxlog.FromContext(ctx)

	c.mu.Lock()
	t, ok := c.active[traceID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.active, traceID)
	t.Status = status
	t.Error = errMsg
	t.EndedAt = c.now()

	h := append([]*Trace{t}, c.history[t.OwnerID]...)
	if len(h) > c.historySize {
		h = h[:c.historySize]
	}
	c.history[t.OwnerID] = h

	var persisted *Trace
	if t.Persist && c.store != nil {
		persisted = t.Clone()
	}
	c.mu.Unlock()

	logger.Debug("Trace finalized.", "trace", traceID, "status", status, "steps", len(t.Steps))

	if persisted != nil {
		if err := c.store.Save(ctx, persisted); err != nil {
			logger.Error("Failed to persist trace.", "trace", traceID, "error", err)
		}
	}
}

// Snapshot returns a copy of a trace held in memory.
func (c *Collector) Snapshot(traceID string) (*Trace, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.active[traceID]; ok {
		return t.Clone(), true
	}
	for _, h := range c.history {
		for _, t := range h {
			if t.ID == traceID {
				return t.Clone(), true
			}
		}
	}
	return nil, false
}

// Get looks a trace up in the active set, then the history, then the
// durable store.
func (c *Collector) Get(ctx context.Context, traceID string) (*Trace, error) {
	if t, ok := c.Snapshot(traceID); ok {
		return t, nil
	}
	if c.store == nil {
		return nil, ErrNotFound
	}
	return c.store.Get(ctx, traceID)
}

// LastForGraph returns the most recent finalized trace of a graph held in
// memory, falling back to the durable store. An empty eventType matches any
// event type.
func (c *Collector) LastForGraph(ctx context.Context, ownerID, graphID, eventType string) (*Trace, error) {
	c.mu.Lock()
	for _, t := range c.history[ownerID] {
		if t.GraphID == graphID && (eventType == "" || t.EventType == eventType) {
			found := t.Clone()
			c.mu.Unlock()
			return found, nil
		}
	}
	c.mu.Unlock()

	if c.store == nil {
		return nil, ErrNotFound
	}
	t, err := c.store.Last(ctx, ownerID, graphID, eventType)
	if err != nil && !errors.Is(err, ErrNotFound) {
		ctxlog.FromContext(ctx).Warn("Trace store lookup failed.", "owner", ownerID, "graph", graphID, "error", err)
	}
	return t, err
}

// History returns the finalized traces of an owner, most recent first.
func (c *Collector) History(ownerID string) []*Trace {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Trace, 0, len(c.history[ownerID]))
	for _, t := range c.history[ownerID] {
		out = append(out, t.Clone())
	}
	return out
}

// Active returns copies of the running traces, oldest first.
func (c *Collector) Active() []*Trace {
	c.mu.Lock()
	out := make([]*Trace, 0, len(c.active))
	for _, t := range c.active {
		out = append(out, t.Clone())
	}
	c.mu.Unlock()
	slices.SortFunc(out, func(a, b *Trace) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}
