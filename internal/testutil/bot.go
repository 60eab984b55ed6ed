package testutil

import (
	"context"
	"sync"

	"github.com/vk/botgraph/internal/runtime"
)

// Call is one recorded capability invocation.
type Call struct {
	Method string
	Args   []any
}

// RecordingBot is a runtime.Capabilities fake that records every call.
type RecordingBot struct {
	mu    sync.Mutex
	calls []Call

	PlayerList []runtime.Player
	Entities   []runtime.Entity
	// Err, when set, is returned by every side-effecting call.
	Err error
}

func (b *RecordingBot) record(method string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Method: method, Args: args})
	return b.Err
}

// Calls returns the recorded calls in order.
func (b *RecordingBot) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// Messages returns the arguments of every Chat call.
func (b *RecordingBot) Messages() []string {
	var out []string
	for _, c := range b.Calls() {
		if c.Method == "Chat" {
			out = append(out, c.Args[0].(string))
		}
	}
	return out
}

func (b *RecordingBot) Chat(_ context.Context, message string) error {
	return b.record("Chat", message)
}

func (b *RecordingBot) Command(_ context.Context, command string) error {
	return b.record("Command", command)
}

func (b *RecordingBot) LookAt(_ context.Context, pos runtime.Position) error {
	return b.record("LookAt", pos)
}

func (b *RecordingBot) Players(context.Context) ([]runtime.Player, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Method: "Players"})
	return b.PlayerList, nil
}

func (b *RecordingBot) NearbyEntities(_ context.Context, filter runtime.EntityFilter) ([]runtime.Entity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Method: "NearbyEntities", Args: []any{filter}})
	return b.Entities, nil
}

func (b *RecordingBot) Log(_ context.Context, line string) error {
	return b.record("Log", line)
}

func (b *RecordingBot) EmitEvent(_ context.Context, name string, payload any) error {
	return b.record("EmitEvent", name, payload)
}

var _ runtime.Capabilities = (*RecordingBot)(nil)
