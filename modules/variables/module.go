// Package variables provides nodes that read and write the graph's
// variables.
package variables

import (
	"context"
	"errors"

	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/runtime"
)

var errNoName = errors.New("variable name is empty")

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the variable node types. variable:get reads live
// state and is volatile, so reads after a variable:set observe the write.
func (m *Module) Register(r *registry.Registry) {
	r.Register(registry.Descriptor{
		Type:      "variable:get",
		Label:     "Get Variable",
		Kind:      registry.KindData,
		Outputs:   []graph.Pin{registry.DataOut("value", "any")},
		Volatile:  true,
		Evaluator: get,
	})
	r.Register(registry.Descriptor{
		Type:     "variable:set",
		Label:    "Set Variable",
		Kind:     registry.KindAction,
		Inputs:   []graph.Pin{registry.ExecIn("exec"), registry.DataIn("value", "any")},
		Outputs:  []graph.Pin{registry.ExecOut("exec"), registry.DataOut("value", "any")},
		Executor: set,
	})
	r.Register(registry.Descriptor{
		Type:     "variable:persist",
		Label:    "Persist Variable",
		Kind:     registry.KindAction,
		Inputs:   []graph.Pin{registry.ExecIn("exec")},
		Outputs:  []graph.Pin{registry.ExecOut("exec")},
		Executor: persist,
	})
}

func name(ctx context.Context, n *graph.Node, h registry.Helpers) (string, error) {
	s, err := registry.ResolveString(ctx, h, n, "name", "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", errNoName
	}
	return s, nil
}

func get(ctx context.Context, n *graph.Node, _ string, rc *runtime.Context, h registry.Helpers) (any, error) {
	key, err := name(ctx, n, h)
	if err != nil {
		return nil, err
	}
	return rc.Variables[key], nil
}

func set(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	key, err := name(ctx, n, h)
	if err != nil {
		return err
	}
	v, err := h.ResolvePinValue(ctx, n, "value", nil)
	if err != nil {
		return err
	}
	if rc.Variables == nil {
		rc.Variables = make(map[string]any)
	}
	rc.Variables[key] = v
	h.SetOutput(n, "value", v)
	return h.Traverse(ctx, n, "exec")
}

func persist(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	key, err := name(ctx, n, h)
	if err != nil {
		return err
	}
	if rc.Intents != nil {
		rc.Intents.Add(runtime.Intent{Kind: runtime.IntentPersistVariable, Name: key, Value: rc.Variables[key]})
	}
	return h.Traverse(ctx, n, "exec")
}
