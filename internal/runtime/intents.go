package runtime

import (
	"context"
	"sync"
)

// Intent kinds.
const (
	IntentPersistVariable = "persist_variable"
)

// Intent is a deferred effect recorded during a run and applied by the
// graph manager after the run succeeds.
type Intent struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Intents collects the intents of one run.
type Intents struct {
	mu    sync.Mutex
	items []Intent
}

// Add records an intent.
func (i *Intents) Add(in Intent) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = append(i.items, in)
}

// List returns a copy of the recorded intents in insertion order.
func (i *Intents) List() []Intent {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Intent, len(i.items))
	copy(out, i.items)
	return out
}

// IntentSink applies the intents of a finished run.
type IntentSink interface {
	Apply(ctx context.Context, ownerID, graphID string, intents []Intent) error
}
