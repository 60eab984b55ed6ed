package legacy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/botgraph/internal/runtime"
	"github.com/vk/botgraph/internal/testutil"
)

func TestLegacyNodes(t *testing.T) {
	h := testutil.NewHarness(t)
	g := testutil.NewGraph("old").
		Node("start", "event:chat", nil).
		Node("say", "legacy:chat", map[string]any{"message": "hi"}).
		Node("note", "legacy:log", map[string]any{"message": "noted"}).
		Exec("start", "exec", "say").
		Exec("say", "exec", "note").
		Build()

	rc := runtime.NewContext("owner", runtime.EventChat, map[string]any{"username": "Steve", "message": "go"}, h.Bot)
	_, err := h.Engine.Run(h.Ctx, g, rc, runtime.EventChat)
	require.NoError(t, err)
	assert.Equal(t, []testutil.Call{
		{Method: "Chat", Args: []any{"hi"}},
		{Method: "Log", Args: []any{"noted"}},
	}, h.Bot.Calls())
}

func TestLegacyNodes_WithoutBot(t *testing.T) {
	h := testutil.NewHarness(t)
	g := testutil.NewGraph("old").
		Node("start", "event:chat", nil).
		Node("say", "legacy:chat", map[string]any{"message": "hi"}).
		Exec("start", "exec", "say").
		Build()

	_, err := h.Engine.Run(h.Ctx, g, runtime.NewContext("owner", runtime.EventChat, nil, nil), runtime.EventChat)
	assert.NoError(t, err)
}
