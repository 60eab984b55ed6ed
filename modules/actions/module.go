// Package actions provides nodes that act on the bot through its
// capabilities.
package actions

import (
	"context"
	"errors"

	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/runtime"
)

// ErrNoBot is returned by nodes that need capabilities when the run has
// none.
var ErrNoBot = errors.New("no bot capabilities in run context")

// Module implements the registry.Module interface for this package.
type Module struct{}

func action(r *registry.Registry, tag, label string, inputs []graph.Pin, outputs []graph.Pin, fn registry.ExecutorFunc) {
	r.Register(registry.Descriptor{
		Type:     tag,
		Label:    label,
		Kind:     registry.KindAction,
		Inputs:   append([]graph.Pin{registry.ExecIn("exec")}, inputs...),
		Outputs:  append([]graph.Pin{registry.ExecOut("exec")}, outputs...),
		Executor: fn,
	})
}

// Register registers the action node types.
func (m *Module) Register(r *registry.Registry) {
	action(r, "action:send_message", "Send Message", []graph.Pin{registry.DataIn("message", "string")}, nil, sendMessage)
	action(r, "action:command", "Run Command", []graph.Pin{registry.DataIn("command", "string")}, nil, command)
	action(r, "action:log", "Log", []graph.Pin{registry.DataIn("message", "string")}, nil, logLine)
	action(r, "action:emit_event", "Emit Event",
		[]graph.Pin{registry.DataIn("name", "string"), registry.DataIn("payload", "any")}, nil, emitEvent)
	action(r, "action:look_at", "Look At",
		[]graph.Pin{registry.DataIn("x", "number"), registry.DataIn("y", "number"), registry.DataIn("z", "number")}, nil, lookAt)
	action(r, "action:respond", "Respond", []graph.Pin{registry.DataIn("data", "any")}, nil, respond)
	action(r, "bot:get_players", "Get Players", nil,
		[]graph.Pin{registry.DataOut("players", "array"), registry.DataOut("count", "number")}, getPlayers)
	action(r, "bot:get_nearby_entities", "Get Nearby Entities", []graph.Pin{registry.DataIn("radius", "number")},
		[]graph.Pin{registry.DataOut("entities", "array"), registry.DataOut("count", "number")}, getNearbyEntities)
}

func bot(rc *runtime.Context) (runtime.Capabilities, error) {
	if rc.Bot == nil {
		return nil, ErrNoBot
	}
	return rc.Bot, nil
}

func sendMessage(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	b, err := bot(rc)
	if err != nil {
		return err
	}
	msg, err := registry.ResolveString(ctx, h, n, "message", "")
	if err != nil {
		return err
	}
	if err := b.Chat(ctx, msg); err != nil {
		return err
	}
	return h.Traverse(ctx, n, "exec")
}

func command(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	b, err := bot(rc)
	if err != nil {
		return err
	}
	cmd, err := registry.ResolveString(ctx, h, n, "command", "")
	if err != nil {
		return err
	}
	if err := b.Command(ctx, cmd); err != nil {
		return err
	}
	return h.Traverse(ctx, n, "exec")
}

func logLine(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	msg, err := registry.ResolveString(ctx, h, n, "message", "")
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Graph log.", "node", n.ID, "message", msg)
	if rc.Bot != nil {
		if err := rc.Bot.Log(ctx, msg); err != nil {
			return err
		}
	}
	return h.Traverse(ctx, n, "exec")
}

func emitEvent(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	b, err := bot(rc)
	if err != nil {
		return err
	}
	name, err := registry.ResolveString(ctx, h, n, "name", "")
	if err != nil {
		return err
	}
	if name == "" {
		return errors.New("event name is empty")
	}
	payload, err := h.ResolvePinValue(ctx, n, "payload", nil)
	if err != nil {
		return err
	}
	if err := b.EmitEvent(ctx, name, payload); err != nil {
		return err
	}
	return h.Traverse(ctx, n, "exec")
}

func lookAt(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	b, err := bot(rc)
	if err != nil {
		return err
	}
	var pos runtime.Position
	for pin, dst := range map[string]*float64{"x": &pos.X, "y": &pos.Y, "z": &pos.Z} {
		v, err := registry.ResolveNumber(ctx, h, n, pin, 0)
		if err != nil {
			return err
		}
		*dst = v
	}
	if err := b.LookAt(ctx, pos); err != nil {
		return err
	}
	return h.Traverse(ctx, n, "exec")
}

func respond(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	v, err := h.ResolvePinValue(ctx, n, "data", nil)
	if err != nil {
		return err
	}
	if rc.Respond == nil {
		ctxlog.FromContext(ctx).Warn("Respond node used outside of an API call, ignoring.", "node", n.ID)
	} else {
		rc.Respond(v)
	}
	return h.Traverse(ctx, n, "exec")
}

func getPlayers(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	b, err := bot(rc)
	if err != nil {
		return err
	}
	players, err := b.Players(ctx)
	if err != nil {
		return err
	}
	h.SetOutput(n, "players", runtime.AsArray(players))
	h.SetOutput(n, "count", float64(len(players)))
	return h.Traverse(ctx, n, "exec")
}

func getNearbyEntities(ctx context.Context, n *graph.Node, rc *runtime.Context, h registry.Helpers) error {
	b, err := bot(rc)
	if err != nil {
		return err
	}
	radius, err := registry.ResolveNumber(ctx, h, n, "radius", 0)
	if err != nil {
		return err
	}
	filter := runtime.EntityFilter{Radius: radius}
	if radius > 0 {
		pos := rc.World.Position
		filter.Center = &pos
	}
	entities, err := b.NearbyEntities(ctx, filter)
	if err != nil {
		return err
	}
	out := make([]any, len(entities))
	for i, e := range entities {
		out[i] = map[string]any{
			"id":       float64(e.ID),
			"name":     e.Name,
			"type":     e.Type,
			"position": map[string]any{"x": e.Position.X, "y": e.Position.Y, "z": e.Position.Z},
		}
	}
	h.SetOutput(n, "entities", out)
	h.SetOutput(n, "count", float64(len(entities)))
	return h.Traverse(ctx, n, "exec")
}
