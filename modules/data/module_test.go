package data_test

import (
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/botgraph/internal/runtime"
	"github.com/vk/botgraph/internal/testutil"
)

// say runs a graph that sends the value of typ's output pin as a chat
// message and returns the message.
func say(t *testing.T, typ, pin string, data map[string]any) (string, error) {
	t.Helper()
	h := testutil.NewHarness(t)
	g := testutil.NewGraph("data").
		Node("start", "event:chat", nil).
		Node("n", typ, data).
		Node("say", "action:send_message", nil).
		Exec("start", "exec", "say").
		Link("n", pin, "say", "message").
		Build()
	rc := runtime.NewContext("owner", runtime.EventChat, map[string]any{"username": "Steve", "message": "go"}, h.Bot)
	_, err := h.Engine.Run(h.Ctx, g, rc, runtime.EventChat)
	if err != nil {
		return "", err
	}
	msgs := h.Bot.Messages()
	require.Len(t, msgs, 1)
	return msgs[0], nil
}

func TestDataNodes(t *testing.T) {
	testCases := []struct {
		name string
		typ  string
		pin  string
		data map[string]any
		want string
	}{
		{"string literal", "data:string", "value", map[string]any{"value": "hi"}, "hi"},
		{"number literal", "data:number", "value", map[string]any{"value": 4.5}, "4.5"},
		{"number literal from text", "data:number", "value", map[string]any{"value": "12"}, "12"},
		{"boolean literal", "data:boolean", "value", map[string]any{"value": true}, "true"},
		{"array literal from JSON", "data:array", "value", map[string]any{"value": `["a","b"]`}, "[a b]"},
		{"add", "math:add", "result", map[string]any{"a": 2, "b": 3}, "5"},
		{"subtract", "math:subtract", "result", map[string]any{"a": 5, "b": 7}, "-2"},
		{"multiply", "math:multiply", "result", map[string]any{"a": 1.5, "b": 4}, "6"},
		{"compare greater", "math:compare", "result", map[string]any{"a": 3, "b": 2, "op": ">"}, "true"},
		{"compare default equality", "math:compare", "result", map[string]any{"a": "2", "b": 2}, "true"},
		{"compare strings", "math:compare", "result", map[string]any{"a": "x", "b": "y", "op": "!="}, "true"},
		{"random with equal bounds", "math:random", "value", map[string]any{"min": 5, "max": 5}, "5"},
		{"and", "logic:and", "result", map[string]any{"a": true, "b": false}, "false"},
		{"or", "logic:or", "result", map[string]any{"a": true, "b": false}, "true"},
		{"not", "logic:not", "result", map[string]any{"value": "false"}, "true"},
		{"concat", "string:concat", "result", map[string]any{"a": "foo", "b": "bar", "separator": "-"}, "foo-bar"},
		{"contains", "string:contains", "result", map[string]any{"text": "hello world", "search": "wor"}, "true"},
		{"length", "array:length", "length", map[string]any{"array": []any{1, 2, 3}}, "3"},
		{"get element", "array:get", "element", map[string]any{"array": []any{"a", "b"}, "index": 1}, "b"},
		{"get element out of range", "array:get", "element", map[string]any{"array": []any{"a"}, "index": 3}, ""},
		{"get element negative index", "array:get", "element", map[string]any{"array": []any{"a"}, "index": -1}, ""},
		{"get element huge index", "array:get", "element", map[string]any{"array": []any{"a"}, "index": 1e30}, ""},
		{"get element infinite index", "array:get", "element", map[string]any{"array": []any{"a"}, "index": math.Inf(1)}, ""},
		{"get element NaN index", "array:get", "element", map[string]any{"array": []any{"a"}, "index": math.NaN()}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := say(t, tc.typ, tc.pin, tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompare_NumericOperatorOnStrings(t *testing.T) {
	_, err := say(t, "math:compare", "result", map[string]any{"a": "x", "b": "y", "op": "<"})
	assert.ErrorContains(t, err, "needs numeric operands")
}

func TestCompare_UnknownOperator(t *testing.T) {
	_, err := say(t, "math:compare", "result", map[string]any{"a": 1, "b": 2, "op": "<>"})
	assert.ErrorContains(t, err, "unknown comparison operator")
}

func TestArrayLiteral_RejectsMalformedJSON(t *testing.T) {
	_, err := say(t, "data:array", "value", map[string]any{"value": "[1,"})
	assert.ErrorContains(t, err, "not a JSON array")
}

func TestNow(t *testing.T) {
	before := time.Now().UnixMilli()
	got, err := say(t, "time:now", "timestamp", nil)
	require.NoError(t, err)
	ms, err := strconv.ParseInt(got, 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ms, before)

	iso, err := say(t, "time:now", "iso", nil)
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339Nano, iso)
	assert.NoError(t, err)
}
