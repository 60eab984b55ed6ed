// Package legacy provides node types without an executor. They perform
// once per run and are advanced by the engine's fallback table.
package legacy

import (
	"context"

	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/runtime"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the legacy node types.
func (m *Module) Register(r *registry.Registry) {
	for tag, perform := range map[string]registry.PerformFunc{
		"legacy:chat": chat,
		"legacy:log":  logLine,
	} {
		r.Register(registry.Descriptor{
			Type:    tag,
			Label:   tag,
			Kind:    registry.KindLegacy,
			Inputs:  []graph.Pin{registry.ExecIn("exec"), registry.DataIn("message", "string")},
			Outputs: []graph.Pin{registry.ExecOut("exec")},
			Perform: perform,
		})
	}
}

func chat(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	msg, err := registry.ResolveString(ctx, h, n, "message", "")
	if err != nil {
		return err
	}
	if rc.Bot == nil {
		return nil
	}
	return rc.Bot.Chat(ctx, msg)
}

func logLine(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	msg, err := registry.ResolveString(ctx, h, n, "message", "")
	if err != nil {
		return err
	}
	if rc.Bot == nil {
		return nil
	}
	return rc.Bot.Log(ctx, msg)
}
