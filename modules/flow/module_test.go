package flow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/botgraph/internal/engine"
	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/runtime"
	"github.com/vk/botgraph/internal/testutil"
	"github.com/vk/botgraph/modules/actions"
	"github.com/vk/botgraph/modules/data"
	"github.com/vk/botgraph/modules/events"
	"github.com/vk/botgraph/modules/flow"
	"github.com/vk/botgraph/modules/variables"
)

func chat(h *testutil.Harness) *runtime.Context {
	return runtime.NewContext("owner", runtime.EventChat, map[string]any{"username": "Steve", "message": "go"}, h.Bot)
}

func TestBranch(t *testing.T) {
	for _, cond := range []bool{true, false} {
		h := testutil.NewHarness(t)
		g := testutil.NewGraph("br").
			Node("start", "event:chat", nil).
			Node("if", "flow:branch", map[string]any{"condition": cond}).
			Node("yes", "action:send_message", map[string]any{"message": "yes"}).
			Node("no", "action:send_message", map[string]any{"message": "no"}).
			Exec("start", "exec", "if").
			Exec("if", "true", "yes").
			Exec("if", "false", "no").
			Build()

		_, err := h.Engine.Run(h.Ctx, g, chat(h), runtime.EventChat)
		require.NoError(t, err)
		if cond {
			assert.Equal(t, []string{"yes"}, h.Bot.Messages())
		} else {
			assert.Equal(t, []string{"no"}, h.Bot.Messages())
		}
	}
}

func TestSequence_RunsOutputsInOrder(t *testing.T) {
	h := testutil.NewHarness(t)
	g := testutil.NewGraph("seq").
		Node("start", "event:chat", nil).
		Node("seq", "flow:sequence", nil).
		Node("a", "action:send_message", map[string]any{"message": "a"}).
		Node("c", "action:send_message", map[string]any{"message": "c"}).
		Exec("start", "exec", "seq").
		Exec("seq", "then_2", "c").
		Exec("seq", "then_0", "a").
		Build()

	_, err := h.Engine.Run(h.Ctx, g, chat(h), runtime.EventChat)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, h.Bot.Messages())
}

func counterLoop(limit any) *graph.Graph {
	return testutil.NewGraph("while").
		Node("start", "event:chat", nil).
		Node("loop", "flow:while", nil).
		Node("count", "variable:get", map[string]any{"name": "count"}).
		Node("below", "math:compare", map[string]any{"b": limit, "op": "<"}).
		Node("inc", "math:add", map[string]any{"b": 1}).
		Node("set", "variable:set", map[string]any{"name": "count"}).
		Node("say", "action:send_message", nil).
		Node("done", "action:send_message", map[string]any{"message": "done"}).
		Exec("start", "exec", "loop").
		Exec("loop", "loop_body", "set").
		Exec("set", "exec", "say").
		Exec("loop", "completed", "done").
		Link("count", "value", "below", "a").
		Link("below", "result", "loop", "condition").
		Link("count", "value", "inc", "a").
		Link("inc", "result", "set", "value").
		Link("count", "value", "say", "message").
		Var("count", graph.VarNumber, 0).
		Build()
}

func TestWhile_ReevaluatesCondition(t *testing.T) {
	h := testutil.NewHarness(t)
	rc, err := h.Engine.Run(h.Ctx, counterLoop(3), chat(h), runtime.EventChat)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "done"}, h.Bot.Messages())
	assert.Equal(t, float64(3), rc.Variables["count"])
}

func limitedEngine(h *testutil.Harness, limit int) *engine.Engine {
	reg := registry.New()
	reg.RegisterModules(&events.Module{}, &flow.Module{MaxIterations: limit}, &variables.Module{}, &data.Module{}, &actions.Module{})
	return engine.New(reg, h.Traces, nil, engine.Config{})
}

func TestWhile_IterationLimit(t *testing.T) {
	h := testutil.NewHarness(t)
	_, err := limitedEngine(h, 5).Run(h.Ctx, counterLoop(100), chat(h), runtime.EventChat)
	require.ErrorIs(t, err, flow.ErrIterationLimit)
	assert.Len(t, h.Bot.Messages(), 5)
}

func TestRepeat_ClampsToIterationLimit(t *testing.T) {
	h := testutil.NewHarness(t)
	g := testutil.NewGraph("rep").
		Node("start", "event:chat", nil).
		Node("loop", "flow:repeat", map[string]any{"count": 10}).
		Node("say", "action:send_message", nil).
		Exec("start", "exec", "loop").
		Exec("loop", "loop_body", "say").
		Link("loop", "index", "say", "message").
		Build()

	_, err := limitedEngine(h, 3).Run(h.Ctx, g, chat(h), runtime.EventChat)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, h.Bot.Messages())
	assert.Contains(t, h.Logs.String(), "clamping")
}

func TestDelay(t *testing.T) {
	g := testutil.NewGraph("wait").
		Node("start", "event:chat", nil).
		Node("wait", "flow:delay", map[string]any{"ms": 30}).
		Node("say", "action:send_message", map[string]any{"message": "later"}).
		Exec("start", "exec", "wait").
		Exec("wait", "exec", "say").
		Build()

	t.Run("waits", func(t *testing.T) {
		h := testutil.NewHarness(t)
		started := time.Now()
		_, err := h.Engine.Run(h.Ctx, g, chat(h), runtime.EventChat)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)
		assert.Equal(t, []string{"later"}, h.Bot.Messages())
	})

	t.Run("cancelled", func(t *testing.T) {
		h := testutil.NewHarness(t)
		ctx, cancel := context.WithCancel(h.Ctx)
		cancel()
		_, err := h.Engine.Run(ctx, g, chat(h), runtime.EventChat)
		require.Error(t, err)
		assert.Empty(t, h.Bot.Messages())
	})
}
