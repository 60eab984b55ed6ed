package registry

import (
	"context"

	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/runtime"
)

// ResolveString resolves an input pin and converts it to a string.
func ResolveString(ctx context.Context, h Helpers, n *graph.Node, pinID, def string) (string, error) {
	v, err := h.ResolvePinValue(ctx, n, pinID, def)
	if err != nil {
		return "", err
	}
	return runtime.AsString(v), nil
}

// ResolveNumber resolves an input pin and converts it to a number. Values
// that are not numeric yield def.
func ResolveNumber(ctx context.Context, h Helpers, n *graph.Node, pinID string, def float64) (float64, error) {
	v, err := h.ResolvePinValue(ctx, n, pinID, def)
	if err != nil {
		return 0, err
	}
	f, ok := runtime.AsNumber(v)
	if !ok {
		return def, nil
	}
	return f, nil
}

// ResolveBool resolves an input pin and converts it to a boolean.
func ResolveBool(ctx context.Context, h Helpers, n *graph.Node, pinID string, def bool) (bool, error) {
	v, err := h.ResolvePinValue(ctx, n, pinID, def)
	if err != nil {
		return false, err
	}
	return runtime.AsBool(v), nil
}

// ResolveArray resolves an input pin and converts it to a slice.
func ResolveArray(ctx context.Context, h Helpers, n *graph.Node, pinID string) ([]any, error) {
	v, err := h.ResolvePinValue(ctx, n, pinID, nil)
	if err != nil {
		return nil, err
	}
	return runtime.AsArray(v), nil
}
