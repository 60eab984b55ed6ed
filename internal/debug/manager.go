package debug

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/runtime"
)

type pending struct {
	state PauseState
	reply chan Resume
}

// session is the shared debug state of one graph.
type session struct {
	mu          sync.Mutex
	breakpoints map[string]*Breakpoint
	observers   map[int]Observer
	nextID      int
	active      *pending

	// slot holds a token while a run of the graph is paused.
	slot chan struct{}
}

func newSession() *session {
	return &session{
		breakpoints: make(map[string]*Breakpoint),
		observers:   make(map[int]Observer),
		slot:        make(chan struct{}, 1),
	}
}

// Key identifies a debug session. Graph ids are unique per owner only.
type Key struct {
	OwnerID string `json:"ownerId"`
	GraphID string `json:"graphId"`
}

func (k Key) String() string { return k.OwnerID + "/" + k.GraphID }

// Manager owns the debug sessions of every (owner, graph). It is safe for
// concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[Key]*session
	now      func() time.Time
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[Key]*session), now: time.Now}
}

func (m *Manager) session(key Key) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		s = newSession()
		m.sessions[key] = s
	}
	return s
}

func (m *Manager) lookup(key Key) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

func (s *session) broadcast(ev Event) {
	s.mu.Lock()
	obs := slices.Collect(maps.Values(s.observers))
	s.mu.Unlock()
	for _, o := range obs {
		o(ev)
	}
}

// Attach registers an observer for a session and returns the function that
// detaches it.
func (m *Manager) Attach(key Key, o Observer) (detach func()) {
	s := m.session(key)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Observers returns the number of observers attached to a session.
func (m *Manager) Observers(key Key) int {
	s, ok := m.lookup(key)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// AddBreakpoint sets the breakpoint of a node, replacing any previous one.
// A non-empty condition must compile.
func (m *Manager) AddBreakpoint(ctx context.Context, key Key, nodeID, condition, actor string) (Breakpoint, error) {
	bp := &Breakpoint{
		NodeID:    nodeID,
		Condition: strings.TrimSpace(condition),
		Enabled:   true,
		CreatedBy: actor,
		CreatedAt: m.now(),
	}
	if bp.Condition != "" {
		expr, err := compileCondition(bp.Condition)
		if err != nil {
			return Breakpoint{}, err
		}
		bp.cond = expr
	}

	s := m.session(key)
	s.mu.Lock()
	s.breakpoints[nodeID] = bp
	out := *bp
	s.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Breakpoint added.", "session", key.String(), "node", nodeID, "condition", bp.Condition)
	s.broadcast(Event{Type: EventBreakpointAdded, Key: key, Actor: actor, Breakpoint: &out})
	return out, nil
}

// RemoveBreakpoint deletes the breakpoint of a node.
func (m *Manager) RemoveBreakpoint(ctx context.Context, key Key, nodeID, actor string) error {
	s, ok := m.lookup(key)
	if !ok {
		return ErrNoBreakpoint
	}
	s.mu.Lock()
	bp, ok := s.breakpoints[nodeID]
	if !ok {
		s.mu.Unlock()
		return ErrNoBreakpoint
	}
	delete(s.breakpoints, nodeID)
	out := *bp
	s.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Breakpoint removed.", "session", key.String(), "node", nodeID)
	s.broadcast(Event{Type: EventBreakpointRemoved, Key: key, Actor: actor, Breakpoint: &out})
	return nil
}

// ToggleBreakpoint flips the enabled flag of a node's breakpoint and
// returns the new state.
func (m *Manager) ToggleBreakpoint(ctx context.Context, key Key, nodeID, actor string) (Breakpoint, error) {
	s, ok := m.lookup(key)
	if !ok {
		return Breakpoint{}, ErrNoBreakpoint
	}
	s.mu.Lock()
	bp, ok := s.breakpoints[nodeID]
	if !ok {
		s.mu.Unlock()
		return Breakpoint{}, ErrNoBreakpoint
	}
	bp.Enabled = !bp.Enabled
	out := *bp
	s.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Breakpoint toggled.", "session", key.String(), "node", nodeID, "enabled", out.Enabled)
	s.broadcast(Event{Type: EventBreakpointToggled, Key: key, Actor: actor, Breakpoint: &out})
	return out, nil
}

// Breakpoints returns the breakpoints of a session ordered by node id.
func (m *Manager) Breakpoints(key Key) []Breakpoint {
	s, ok := m.lookup(key)
	if !ok {
		return nil
	}
	s.mu.Lock()
	out := make([]Breakpoint, 0, len(s.breakpoints))
	for _, bp := range s.breakpoints {
		out = append(out, *bp)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Breakpoint) int { return strings.Compare(a.NodeID, b.NodeID) })
	return out
}

// ShouldBreak reports whether a run must pause before executing nodeID and
// counts the hit when it does. A failing condition never triggers.
func (m *Manager) ShouldBreak(ctx context.Context, key Key, nodeID string, rc *runtime.Context) bool {
	s, ok := m.lookup(key)
	if !ok {
		return false
	}
	s.mu.Lock()
	bp, ok := s.breakpoints[nodeID]
	if !ok || !bp.Enabled {
		s.mu.Unlock()
		return false
	}
	cond := bp.cond
	s.mu.Unlock()

	if cond != nil {
		hit, err := evalCondition(cond, rc)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("Breakpoint condition failed, treating as false.", "session", key.String(), "node", nodeID, "condition", bp.Condition, "error", err)
			return false
		}
		if !hit {
			return false
		}
	}

	s.mu.Lock()
	bp.HitCount++
	s.mu.Unlock()
	return true
}

// Pause suspends the calling run until an observer resumes or stops it.
// While another run of the same session is paused, the caller waits for its
// turn.
func (m *Manager) Pause(ctx context.Context, state PauseState) (Resume, error) {
	logger := ctxlog.FromContext(ctx)
	key := state.Key()
	s := m.session(key)

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return Resume{}, ctx.Err()
	}
	defer func() { <-s.slot }()

	if state.PausedAt.IsZero() {
		state.PausedAt = m.now()
	}
	p := &pending{state: state, reply: make(chan Resume, 1)}
	s.mu.Lock()
	s.active = p
	s.mu.Unlock()

	logger.Info("Execution paused.", "session", key.String(), "node", state.NodeID, "reason", state.Reason)
	snap := state
	s.broadcast(Event{Type: EventPaused, Key: key, Pause: &snap})

	select {
	case res := <-p.reply:
		return res, nil
	case <-ctx.Done():
		s.mu.Lock()
		if s.active == p {
			s.active = nil
		}
		s.mu.Unlock()
		return Resume{}, ctx.Err()
	}
}

// Paused returns the active pause of a session.
func (m *Manager) Paused(key Key) (PauseState, bool) {
	s, ok := m.lookup(key)
	if !ok {
		return PauseState{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return PauseState{}, false
	}
	return s.active.state, true
}

// Resume continues the active pause of a session.
func (m *Manager) Resume(ctx context.Context, key Key, actor string, res Resume) error {
	res.Stop = false
	return m.release(ctx, key, actor, res)
}

// Stop aborts the active pause of a session.
func (m *Manager) Stop(ctx context.Context, key Key, actor string) error {
	return m.release(ctx, key, actor, Resume{Stop: true})
}

func (m *Manager) release(ctx context.Context, key Key, actor string, res Resume) error {
	s, ok := m.lookup(key)
	if !ok {
		return ErrNotPaused
	}
	s.mu.Lock()
	p := s.active
	if p == nil {
		s.mu.Unlock()
		return ErrNotPaused
	}
	s.active = nil
	s.mu.Unlock()

	p.reply <- res

	ev := Event{Key: key, Actor: actor, Pause: &p.state, Overrides: res.Overrides}
	if res.Stop {
		ev.Type = EventStopped
		ctxlog.FromContext(ctx).Info("Execution stopped by debugger.", "session", key.String(), "node", p.state.NodeID, "actor", actor)
	} else {
		ev.Type = EventResumed
		ctxlog.FromContext(ctx).Info("Execution resumed.", "session", key.String(), "node", p.state.NodeID, "actor", actor, "step", res.Step)
	}
	s.broadcast(ev)
	return nil
}
