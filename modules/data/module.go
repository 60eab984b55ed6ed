// Package data provides pure value nodes: literals, arithmetic, logic,
// strings, arrays and time.
package data

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/runtime"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

type evalFn = registry.EvaluatorFunc

func pure(r *registry.Registry, tag, label string, inputs []graph.Pin, outputs []graph.Pin, fn evalFn) {
	r.Register(registry.Descriptor{Type: tag, Label: label, Kind: registry.KindData, Inputs: inputs, Outputs: outputs, Evaluator: fn})
}

func in(ids ...string) []graph.Pin {
	pins := make([]graph.Pin, len(ids))
	for i, id := range ids {
		pins[i] = registry.DataIn(id, "any")
	}
	return pins
}

func out(id, typ string) []graph.Pin { return []graph.Pin{registry.DataOut(id, typ)} }

// Register registers the data node types.
func (m *Module) Register(r *registry.Registry) {
	pure(r, "data:string", "String", nil, out("value", "string"), literalString)
	pure(r, "data:number", "Number", nil, out("value", "number"), literalNumber)
	pure(r, "data:boolean", "Boolean", nil, out("value", "boolean"), literalBool)
	pure(r, "data:array", "Array", nil, out("value", "array"), literalArray)

	pure(r, "math:add", "Add", in("a", "b"), out("result", "number"), arith(func(a, b float64) float64 { return a + b }))
	pure(r, "math:subtract", "Subtract", in("a", "b"), out("result", "number"), arith(func(a, b float64) float64 { return a - b }))
	pure(r, "math:multiply", "Multiply", in("a", "b"), out("result", "number"), arith(func(a, b float64) float64 { return a * b }))
	pure(r, "math:compare", "Compare", in("a", "b"), out("result", "boolean"), compare)
	r.Register(registry.Descriptor{
		Type:      "math:random",
		Label:     "Random Number",
		Kind:      registry.KindData,
		Inputs:    in("min", "max"),
		Outputs:   out("value", "number"),
		Volatile:  true,
		Evaluator: random,
	})

	pure(r, "logic:and", "And", in("a", "b"), out("result", "boolean"), logic(func(a, b bool) bool { return a && b }))
	pure(r, "logic:or", "Or", in("a", "b"), out("result", "boolean"), logic(func(a, b bool) bool { return a || b }))
	pure(r, "logic:not", "Not", in("value"), out("result", "boolean"), not)

	pure(r, "string:concat", "Concat", in("a", "b"), out("result", "string"), concat)
	pure(r, "string:contains", "Contains", in("text", "search"), out("result", "boolean"), contains)

	pure(r, "array:length", "Length", in("array"), out("length", "number"), length)
	pure(r, "array:get", "Get Element", in("array", "index"), out("element", "any"), element)

	r.Register(registry.Descriptor{
		Type:      "time:now",
		Label:     "Now",
		Kind:      registry.KindData,
		Outputs:   []graph.Pin{registry.DataOut("timestamp", "number"), registry.DataOut("iso", "string")},
		Volatile:  true,
		Evaluator: now,
	})
}

func literalString(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	return registry.ResolveString(ctx, h, n, "value", "")
}

func literalNumber(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	return registry.ResolveNumber(ctx, h, n, "value", 0)
}

func literalBool(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	return registry.ResolveBool(ctx, h, n, "value", false)
}

func literalArray(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	v, err := h.ResolvePinValue(ctx, n, "value", nil)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		var arr []any
		if err := sonic.UnmarshalString(s, &arr); err != nil {
			return nil, fmt.Errorf("array literal is not a JSON array: %w", err)
		}
		return arr, nil
	}
	return runtime.AsArray(v), nil
}

func arith(op func(a, b float64) float64) evalFn {
	return func(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
		a, err := registry.ResolveNumber(ctx, h, n, "a", 0)
		if err != nil {
			return nil, err
		}
		b, err := registry.ResolveNumber(ctx, h, n, "b", 0)
		if err != nil {
			return nil, err
		}
		return op(a, b), nil
	}
}

func compare(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	op, err := registry.ResolveString(ctx, h, n, "op", "==")
	if err != nil {
		return nil, err
	}
	av, err := h.ResolvePinValue(ctx, n, "a", nil)
	if err != nil {
		return nil, err
	}
	bv, err := h.ResolvePinValue(ctx, n, "b", nil)
	if err != nil {
		return nil, err
	}

	a, aok := runtime.AsNumber(av)
	b, bok := runtime.AsNumber(bv)
	if !aok || !bok {
		as, bs := runtime.AsString(av), runtime.AsString(bv)
		switch op {
		case "==":
			return as == bs, nil
		case "!=":
			return as != bs, nil
		}
		return nil, fmt.Errorf("operator '%s' needs numeric operands", op)
	}

	switch op {
	case "==":
		return a == b, nil
	case "!=":
		return a != b, nil
	case ">":
		return a > b, nil
	case ">=":
		return a >= b, nil
	case "<":
		return a < b, nil
	case "<=":
		return a <= b, nil
	}
	return nil, fmt.Errorf("unknown comparison operator '%s'", op)
}

func random(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	lo, err := registry.ResolveNumber(ctx, h, n, "min", 0)
	if err != nil {
		return nil, err
	}
	hi, err := registry.ResolveNumber(ctx, h, n, "max", 1)
	if err != nil {
		return nil, err
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + rand.Float64()*(hi-lo), nil
}

func logic(op func(a, b bool) bool) evalFn {
	return func(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
		a, err := registry.ResolveBool(ctx, h, n, "a", false)
		if err != nil {
			return nil, err
		}
		b, err := registry.ResolveBool(ctx, h, n, "b", false)
		if err != nil {
			return nil, err
		}
		return op(a, b), nil
	}
}

func not(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	v, err := registry.ResolveBool(ctx, h, n, "value", false)
	if err != nil {
		return nil, err
	}
	return !v, nil
}

func concat(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	a, err := registry.ResolveString(ctx, h, n, "a", "")
	if err != nil {
		return nil, err
	}
	b, err := registry.ResolveString(ctx, h, n, "b", "")
	if err != nil {
		return nil, err
	}
	sep, err := registry.ResolveString(ctx, h, n, "separator", "")
	if err != nil {
		return nil, err
	}
	return a + sep + b, nil
}

func contains(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	text, err := registry.ResolveString(ctx, h, n, "text", "")
	if err != nil {
		return nil, err
	}
	search, err := registry.ResolveString(ctx, h, n, "search", "")
	if err != nil {
		return nil, err
	}
	return strings.Contains(text, search), nil
}

func length(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	arr, err := registry.ResolveArray(ctx, h, n, "array")
	if err != nil {
		return nil, err
	}
	return float64(len(arr)), nil
}

func element(ctx context.Context, n *graph.Node, _ string, _ *runtime.Context, h registry.Helpers) (any, error) {
	arr, err := registry.ResolveArray(ctx, h, n, "array")
	if err != nil {
		return nil, err
	}
	i, err := registry.ResolveNumber(ctx, h, n, "index", 0)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(i) || i < 0 || i >= float64(len(arr)) {
		return nil, nil
	}
	return arr[int(i)], nil
}

func now(_ context.Context, _ *graph.Node, pinID string, _ *runtime.Context, _ registry.Helpers) (any, error) {
	t := time.Now()
	if pinID == "iso" {
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	return float64(t.UnixMilli()), nil
}
