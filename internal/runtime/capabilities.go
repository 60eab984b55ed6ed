package runtime

import "context"

// Position is a point in the game world.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Player is one entry of the online player list.
type Player struct {
	Username string `json:"username"`
	Ping     int    `json:"ping"`
}

// Entity is a nearby world entity.
type Entity struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

// EntityFilter narrows NearbyEntities. A zero Radius disables the distance
// filter.
type EntityFilter struct {
	Center *Position
	Radius float64
}

// Capabilities are the side-effecting operations a graph may perform
// against the bot it belongs to. From the interpreter's point of view all of
// them are fire-and-forget.
type Capabilities interface {
	Chat(ctx context.Context, message string) error
	Command(ctx context.Context, command string) error
	LookAt(ctx context.Context, pos Position) error
	Players(ctx context.Context) ([]Player, error)
	NearbyEntities(ctx context.Context, filter EntityFilter) ([]Entity, error)
	Log(ctx context.Context, line string) error
	EmitEvent(ctx context.Context, name string, payload any) error
}

// World is the owner's player/world snapshot taken when the run starts.
type World struct {
	Username string   `json:"username"`
	Position Position `json:"position"`
	Health   float64  `json:"health"`
	Food     float64  `json:"food"`
	Players  []Player `json:"players"`
}

// Map renders the snapshot as plain values.
func (w World) Map() map[string]any {
	players := make([]any, 0, len(w.Players))
	for _, p := range w.Players {
		players = append(players, p.Username)
	}
	return map[string]any{
		"username": w.Username,
		"position": map[string]any{"x": w.Position.X, "y": w.Position.Y, "z": w.Position.Z},
		"health":   w.Health,
		"food":     w.Food,
		"players":  players,
	}
}
