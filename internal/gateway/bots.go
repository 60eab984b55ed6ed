package gateway

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"

	"github.com/vk/botgraph/internal/runtime"
)

// ErrBotOffline is returned by capabilities of an owner whose bot is not
// connected.
var ErrBotOffline = errors.New("bot is not connected")

// Emitter sends one event to a connected client. *socket.Socket satisfies
// it through emitterFunc.
type Emitter interface {
	Emit(event string, args ...any) error
}

// Action is the payload of the "action" event sent to a bot.
type Action struct {
	Kind     string            `json:"kind"`
	Message  string            `json:"message,omitempty"`
	Position *runtime.Position `json:"position,omitempty"`
	Name     string            `json:"name,omitempty"`
	Payload  any               `json:"payload,omitempty"`
}

// Action kinds.
const (
	ActionChat    = "chat"
	ActionCommand = "command"
	ActionLookAt  = "look_at"
	ActionLog     = "log"
	ActionEmit    = "emit_event"
)

// State is the world snapshot a bot reports with the "state" event.
type State struct {
	Username string           `json:"username"`
	Position runtime.Position `json:"position"`
	Health   float64          `json:"health"`
	Food     float64          `json:"food"`
	Players  []runtime.Player `json:"players"`
}

type botConn struct {
	id      string
	emitter Emitter

	mu       sync.Mutex
	world    runtime.World
	entities map[int]runtime.Entity
}

// Bots tracks the connected bot of every owner. It implements
// manager.Bots.
type Bots struct {
	mu    sync.RWMutex
	conns map[string]*botConn
}

// NewBots creates an empty registry.
func NewBots() *Bots {
	return &Bots{conns: make(map[string]*botConn)}
}

// Connect registers the connection of an owner's bot, replacing a previous
// one.
func (b *Bots) Connect(ownerID, connID string, e Emitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[ownerID] = &botConn{id: connID, emitter: e, entities: make(map[int]runtime.Entity)}
}

// Disconnect forgets the owner's bot if connID is still its current
// connection, and reports whether it did.
func (b *Bots) Disconnect(ownerID, connID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[ownerID]
	if !ok || c.id != connID {
		return false
	}
	delete(b.conns, ownerID)
	return true
}

// Online reports whether the owner's bot is connected.
func (b *Bots) Online(ownerID string) bool {
	_, ok := b.conn(ownerID)
	return ok
}

func (b *Bots) conn(ownerID string) (*botConn, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.conns[ownerID]
	return c, ok
}

// Bot returns the capabilities and world snapshot of the owner's bot. The
// capabilities of an offline bot fail every side effect with ErrBotOffline.
func (b *Bots) Bot(ownerID string) (runtime.Capabilities, runtime.World) {
	c, ok := b.conn(ownerID)
	if !ok {
		return &remoteBot{}, runtime.World{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.world
	w.Players = slices.Clone(c.world.Players)
	return &remoteBot{conn: c}, w
}

// UpdateState replaces the world snapshot of the owner's bot.
func (b *Bots) UpdateState(ownerID string, s State) {
	c, ok := b.conn(ownerID)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.world = runtime.World(s)
}

// Observe folds an incoming event into the cached world: health values and
// the player and entity lists.
func (b *Bots) Observe(ownerID, eventType string, args map[string]any) {
	c, ok := b.conn(ownerID)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch eventType {
	case runtime.EventHealth:
		if v, ok := runtime.AsNumber(args["health"]); ok {
			c.world.Health = v
		}
		if v, ok := runtime.AsNumber(args["food"]); ok {
			c.world.Food = v
		}
	case runtime.EventPlayerJoined:
		name := runtime.AsString(args["username"])
		if name != "" && !slices.ContainsFunc(c.world.Players, func(p runtime.Player) bool { return p.Username == name }) {
			c.world.Players = append(c.world.Players, runtime.Player{Username: name})
		}
	case runtime.EventPlayerLeft:
		name := runtime.AsString(args["username"])
		c.world.Players = slices.DeleteFunc(c.world.Players, func(p runtime.Player) bool { return p.Username == name })
	case runtime.EventEntitySpawn, runtime.EventEntityMoved:
		var e runtime.Entity
		if err := decode(args["entity"], &e); err == nil {
			c.entities[e.ID] = e
		}
	case runtime.EventEntityGone:
		var e runtime.Entity
		if err := decode(args["entity"], &e); err == nil {
			delete(c.entities, e.ID)
		}
	}
}

// remoteBot performs capabilities by emitting actions to the bot's socket.
// Queries are answered from the cached world.
type remoteBot struct {
	conn *botConn
}

var _ runtime.Capabilities = (*remoteBot)(nil)

func (r *remoteBot) send(ctx context.Context, a Action) error {
	if r.conn == nil {
		return ErrBotOffline
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.conn.emitter.Emit("action", a)
}

func (r *remoteBot) Chat(ctx context.Context, message string) error {
	return r.send(ctx, Action{Kind: ActionChat, Message: message})
}

func (r *remoteBot) Command(ctx context.Context, command string) error {
	return r.send(ctx, Action{Kind: ActionCommand, Message: command})
}

func (r *remoteBot) LookAt(ctx context.Context, pos runtime.Position) error {
	return r.send(ctx, Action{Kind: ActionLookAt, Position: &pos})
}

func (r *remoteBot) Log(ctx context.Context, line string) error {
	return r.send(ctx, Action{Kind: ActionLog, Message: line})
}

func (r *remoteBot) EmitEvent(ctx context.Context, name string, payload any) error {
	return r.send(ctx, Action{Kind: ActionEmit, Name: name, Payload: payload})
}

func (r *remoteBot) Players(context.Context) ([]runtime.Player, error) {
	if r.conn == nil {
		return nil, ErrBotOffline
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()
	return slices.Clone(r.conn.world.Players), nil
}

func (r *remoteBot) NearbyEntities(_ context.Context, f runtime.EntityFilter) ([]runtime.Entity, error) {
	if r.conn == nil {
		return nil, ErrBotOffline
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	center := r.conn.world.Position
	if f.Center != nil {
		center = *f.Center
	}
	out := make([]runtime.Entity, 0, len(r.conn.entities))
	for _, e := range r.conn.entities {
		if f.Radius > 0 && distance(center, e.Position) > f.Radius {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b runtime.Entity) int { return a.ID - b.ID })
	return out, nil
}

func distance(a, b runtime.Position) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
