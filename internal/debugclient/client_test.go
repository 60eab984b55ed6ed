package debugclient

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/botgraph/internal/gateway"
	"github.com/vk/botgraph/internal/manager"
	"github.com/vk/botgraph/internal/testutil"
)

func TestParseArgs(t *testing.T) {
	t.Run("fields and overrides", func(t *testing.T) {
		req, err := ParseArgs([]string{
			"graphId=g1",
			"nodeId=42",
			"step=true",
			`overrides.count=7`,
			`overrides.name="bob"`,
			`overrides.raw=plain text`,
		})
		require.NoError(t, err)
		assert.Equal(t, "g1", req.GraphID)
		assert.Equal(t, "42", req.NodeID, "ids stay strings")
		assert.True(t, req.Step)
		assert.Equal(t, map[string]any{"count": float64(7), "name": "bob", "raw": "plain text"}, req.Overrides)
	})

	t.Run("value may contain equals", func(t *testing.T) {
		req, err := ParseArgs([]string{"condition=count==3"})
		require.NoError(t, err)
		assert.Equal(t, "count==3", req.Condition)
	})

	t.Run("no overrides", func(t *testing.T) {
		req, err := ParseArgs(nil)
		require.NoError(t, err)
		assert.Nil(t, req.Overrides)
	})

	t.Run("malformed pair", func(t *testing.T) {
		_, err := ParseArgs([]string{"graphId"})
		assert.ErrorContains(t, err, `"graphId" is not key=value`)
		_, err = ParseArgs([]string{"=x"})
		assert.Error(t, err)
	})
}

type staticGraphs []manager.GraphInfo

func (s staticGraphs) Graphs(string) []manager.GraphInfo { return s }

func startGateway(t *testing.T) string {
	t.Helper()
	h := testutil.NewHarness(t)
	svc := gateway.NewDebugService(h.Debug, h.Traces, staticGraphs{{ID: "g1", Name: "Greeter", Triggers: []string{"chat"}}})
	srv := gateway.New(gateway.Config{Port: 0}, gateway.NewBots(), nil, svc, nil)
	addr, err := srv.Start(h.Ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close(context.Background()) })
	return "http://127.0.0.1:" + addr[strings.LastIndex(addr, ":")+1:]
}

func TestClient_RoundTrip(t *testing.T) {
	url := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := Dial(ctx, Options{URL: url, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Do(ctx, gateway.CmdGraphs, gateway.Request{OwnerID: "alice"})
	require.NoError(t, err)
	list, ok := res.([]any)
	require.True(t, ok, "graphs result is a list, got %T", res)
	require.Len(t, list, 1)
	assert.Equal(t, "g1", list[0].(map[string]any)["id"])

	res, err = c.Do(ctx, gateway.CmdAddBreakpoint, gateway.Request{OwnerID: "alice", GraphID: "g1", NodeID: "say"})
	require.NoError(t, err)
	assert.Equal(t, "say", res.(map[string]any)["nodeId"])

	_, err = c.Do(ctx, gateway.CmdResume, gateway.Request{OwnerID: "alice", GraphID: "g1"})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = c.Do(ctx, gateway.CmdAddBreakpoint, gateway.Request{GraphID: "g1", NodeID: "say"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorContains(t, err, "ownerId is required")
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, Options{URL: "http://127.0.0.1:1", ConnectTimeout: time.Second})
	assert.Error(t, err)
}
