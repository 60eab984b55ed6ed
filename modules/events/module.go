// Package events registers one start node per supported event type.
package events

import (
	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/runtime"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers an event:<type> start node for every event type. The
// node's data outputs are the event's fields, read from the run context by
// the engine.
func (m *Module) Register(r *registry.Registry) {
	for _, t := range runtime.EventTypes() {
		fields, _ := runtime.EventFields(t)
		outputs := []graph.Pin{registry.ExecOut("exec")}
		for _, f := range fields {
			outputs = append(outputs, registry.DataOut(f, "any"))
		}
		r.Register(registry.Descriptor{
			Type:    runtime.StartNodeType(t),
			Label:   "On " + t,
			Kind:    registry.KindEvent,
			Outputs: outputs,
		})
	}
}
