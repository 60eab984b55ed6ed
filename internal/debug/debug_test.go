package debug

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/botgraph/internal/runtime"
	"github.com/zclconf/go-cty/cty"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func runCtx(vars map[string]any) *runtime.Context {
	rc := runtime.NewContext("bot1", runtime.EventCommand, map[string]any{
		"user": "steve",
		"args": []any{"a", "b"},
	}, nil)
	rc.Variables = vars
	return rc
}

func TestCompileCondition(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "comparison", src: "variables.count > 3"},
		{name: "functions", src: `length(args) == 2 && lower(user) == "steve"`},
		{name: "conversions", src: `tonumber("4") > 3 && tostring(1) == "1"`},
		{name: "context root", src: `context.eventType == "command"`},
		{name: "syntax error", src: "variables.count >", wantErr: "invalid condition"},
		{name: "unknown root", src: "os.exit == 1", wantErr: "unknown name 'os'"},
		{name: "forbidden function", src: `file("/etc/passwd") == ""`, wantErr: "function 'file' is not allowed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compileCondition(tc.src)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestEvalCondition(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		vars    map[string]any
		want    bool
		wantErr bool
	}{
		{name: "true comparison", src: "variables.count > 3", vars: map[string]any{"count": float64(5)}, want: true},
		{name: "false comparison", src: "variables.count > 3", vars: map[string]any{"count": float64(2)}},
		{name: "missing variable", src: "variables.count > 3", vars: map[string]any{}, wantErr: true},
		{name: "nil variables", src: "variables.count > 3", wantErr: true},
		{name: "user and args", src: `user == "steve" && length(args) == 2`, want: true},
		{name: "contains", src: `contains(args, "b")`, want: true},
		{name: "non boolean", src: `user`, wantErr: true},
		{name: "array variable", src: `length(variables.items) == 3`, vars: map[string]any{"items": []any{1, "x", true}}, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := compileCondition(tc.src)
			require.NoError(t, err)
			got, err := evalCondition(expr, runCtx(tc.vars))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

var g1 = Key{OwnerID: "alice", GraphID: "g1"}

func TestShouldBreak(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	assert.False(t, m.ShouldBreak(ctx, g1, "n1", runCtx(nil)), "unknown graph never breaks")

	_, err := m.AddBreakpoint(ctx, g1, "n1", "", "alice")
	require.NoError(t, err)
	_, err = m.AddBreakpoint(ctx, g1, "n2", "variables.count > 3", "alice")
	require.NoError(t, err)
	_, err = m.AddBreakpoint(ctx, g1, "n3", "variables.missing > 3", "alice")
	require.NoError(t, err)

	_, err = m.AddBreakpoint(ctx, g1, "n4", "system()", "alice")
	assert.Error(t, err)

	rc := runCtx(map[string]any{"count": float64(5)})
	assert.True(t, m.ShouldBreak(ctx, g1, "n1", rc))
	assert.True(t, m.ShouldBreak(ctx, g1, "n2", rc))
	assert.False(t, m.ShouldBreak(ctx, g1, "n2", runCtx(map[string]any{"count": float64(1)})))
	assert.False(t, m.ShouldBreak(ctx, g1, "n3", rc), "failing conditions do not trigger")
	assert.False(t, m.ShouldBreak(ctx, g1, "n4", rc))

	_, err = m.ToggleBreakpoint(ctx, g1, "n1", "bob")
	require.NoError(t, err)
	assert.False(t, m.ShouldBreak(ctx, g1, "n1", rc))

	bps := m.Breakpoints(g1)
	require.Len(t, bps, 3)
	assert.Equal(t, "n1", bps[0].NodeID)
	assert.False(t, bps[0].Enabled)
	assert.Equal(t, 1, bps[0].HitCount)
	assert.Equal(t, 1, bps[1].HitCount)
	assert.Equal(t, "alice", bps[1].CreatedBy)

	require.NoError(t, m.RemoveBreakpoint(ctx, g1, "n2", "bob"))
	assert.ErrorIs(t, m.RemoveBreakpoint(ctx, g1, "n2", "bob"), ErrNoBreakpoint)
	_, err = m.ToggleBreakpoint(ctx, Key{OwnerID: "alice", GraphID: "nope"}, "n1", "bob")
	assert.ErrorIs(t, err, ErrNoBreakpoint)
}

func TestBreakpointBroadcast(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var first, second eventLog
	detachFirst := m.Attach(g1, first.observe)
	m.Attach(g1, second.observe)
	assert.Equal(t, 2, m.Observers(g1))

	_, err := m.AddBreakpoint(ctx, g1, "n1", "", "alice")
	require.NoError(t, err)
	_, err = m.ToggleBreakpoint(ctx, g1, "n1", "alice")
	require.NoError(t, err)

	detachFirst()
	detachFirst()
	assert.Equal(t, 1, m.Observers(g1))
	require.NoError(t, m.RemoveBreakpoint(ctx, g1, "n1", "alice"))

	assert.Equal(t, []EventType{EventBreakpointAdded, EventBreakpointToggled}, first.types())
	assert.Equal(t, []EventType{EventBreakpointAdded, EventBreakpointToggled, EventBreakpointRemoved}, second.types())
}

func waitPaused(t *testing.T, m *Manager, key Key, nodeID string) PauseState {
	t.Helper()
	var st PauseState
	require.Eventually(t, func() bool {
		var ok bool
		st, ok = m.Paused(key)
		return ok && st.NodeID == nodeID
	}, time.Second, time.Millisecond)
	return st
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var log eventLog
	m.Attach(g1, log.observe)

	assert.ErrorIs(t, m.Resume(ctx, g1, "alice", Resume{}), ErrNotPaused)
	assert.ErrorIs(t, m.Stop(ctx, g1, "alice"), ErrNotPaused)

	done := make(chan Resume, 1)
	go func() {
		res, err := m.Pause(ctx, PauseState{OwnerID: "alice", GraphID: "g1", NodeID: "n1", Reason: ReasonBreakpoint})
		assert.NoError(t, err)
		done <- res
	}()

	st := waitPaused(t, m, g1, "n1")
	assert.False(t, st.PausedAt.IsZero())
	require.Eventually(t, func() bool { return len(log.types()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Resume(ctx, g1, "alice", Resume{Overrides: map[string]any{"message": "changed"}, Stop: true}))
	res := <-done
	assert.Equal(t, "changed", res.Overrides["message"])
	assert.False(t, res.Stop, "resume never carries the stop signal")

	_, paused := m.Paused(g1)
	assert.False(t, paused)
	assert.Equal(t, []EventType{EventPaused, EventResumed}, log.types())
}

func TestPauseStop(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	done := make(chan Resume, 1)
	go func() {
		res, _ := m.Pause(ctx, PauseState{OwnerID: "alice", GraphID: "g1", NodeID: "n1"})
		done <- res
	}()
	waitPaused(t, m, g1, "n1")
	require.NoError(t, m.Stop(ctx, g1, "bob"))
	assert.True(t, (<-done).Stop)
}

func TestPauseQueuesFIFO(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	order := make(chan string, 2)
	pause := func(node string) {
		_, err := m.Pause(ctx, PauseState{OwnerID: "alice", GraphID: "g1", NodeID: node})
		assert.NoError(t, err)
		order <- node
	}

	go pause("first")
	waitPaused(t, m, g1, "first")
	go pause("second")

	// The second run waits while the first holds the pause slot.
	time.Sleep(20 * time.Millisecond)
	st, ok := m.Paused(g1)
	require.True(t, ok)
	assert.Equal(t, "first", st.NodeID)

	require.NoError(t, m.Resume(ctx, g1, "alice", Resume{}))
	assert.Equal(t, "first", <-order)

	waitPaused(t, m, g1, "second")
	require.NoError(t, m.Resume(ctx, g1, "alice", Resume{}))
	assert.Equal(t, "second", <-order)
}

func TestPauseCancelledByContext(t *testing.T) {
	m := NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := m.Pause(ctx, PauseState{OwnerID: "alice", GraphID: "g1", NodeID: "n1"})
		errc <- err
	}()
	waitPaused(t, m, g1, "n1")
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	_, ok := m.Paused(g1)
	assert.False(t, ok)

	// The slot is free again.
	done := make(chan struct{})
	go func() {
		_, _ = m.Pause(context.Background(), PauseState{OwnerID: "alice", GraphID: "g1", NodeID: "n2"})
		close(done)
	}()
	waitPaused(t, m, g1, "n2")
	require.NoError(t, m.Resume(context.Background(), g1, "x", Resume{}))
	<-done
}

func TestToCty(t *testing.T) {
	v, err := toCty(map[string]any{"p": runtime.Position{X: 1}})
	require.NoError(t, err)
	assert.True(t, v.GetAttr("p").GetAttr("x").Equals(cty.NumberIntVal(1)).True())

	_, err = toCty(func() {})
	assert.Error(t, err)
}

func TestSessionsAreScopedByOwner(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	bob := Key{OwnerID: "bob", GraphID: "g1"}

	var aliceLog, bobLog eventLog
	m.Attach(g1, aliceLog.observe)
	m.Attach(bob, bobLog.observe)

	_, err := m.AddBreakpoint(ctx, g1, "n1", "", "alice")
	require.NoError(t, err)
	assert.False(t, m.ShouldBreak(ctx, bob, "n1", runCtx(nil)), "another owner's graph with the same id does not break")
	assert.Empty(t, m.Breakpoints(bob))

	aliceDone := make(chan struct{})
	go func() {
		_, _ = m.Pause(ctx, PauseState{OwnerID: "alice", GraphID: "g1", NodeID: "n1"})
		close(aliceDone)
	}()
	waitPaused(t, m, g1, "n1")

	// Bob's pause does not queue behind Alice's.
	bobDone := make(chan struct{})
	go func() {
		_, _ = m.Pause(ctx, PauseState{OwnerID: "bob", GraphID: "g1", NodeID: "n2"})
		close(bobDone)
	}()
	st := waitPaused(t, m, bob, "n2")
	assert.Equal(t, "bob", st.OwnerID)

	require.NoError(t, m.Resume(ctx, bob, "bob", Resume{}))
	<-bobDone
	st, ok := m.Paused(g1)
	require.True(t, ok)
	assert.Equal(t, "alice", st.OwnerID)
	require.NoError(t, m.Resume(ctx, g1, "alice", Resume{}))
	<-aliceDone

	assert.Equal(t, []EventType{EventBreakpointAdded, EventPaused, EventResumed}, aliceLog.types())
	assert.Equal(t, []EventType{EventPaused, EventResumed}, bobLog.types())
}
