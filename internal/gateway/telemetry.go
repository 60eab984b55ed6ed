package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/vk/botgraph/internal/ctxlog"
)

// TelemetryEvent is the payload of the "telemetry" event emitted to
// observers subscribed to an owner.
type TelemetryEvent struct {
	OwnerID string         `json:"ownerId"`
	Type    string         `json:"type"`
	Args    map[string]any `json:"args,omitempty"`
	At      time.Time      `json:"at"`
}

// Telemetry fans republished bot events out to observers. It implements
// manager.Publisher. Events published before a sink is bound are dropped.
type Telemetry struct {
	mu   sync.RWMutex
	sink func(ownerID string, payload any)
	now  func() time.Time
}

// NewTelemetry creates an unbound fan-out.
func NewTelemetry() *Telemetry {
	return &Telemetry{now: time.Now}
}

func (t *Telemetry) bind(sink func(ownerID string, payload any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// Publish implements manager.Publisher.
func (t *Telemetry) Publish(ctx context.Context, ownerID, eventType string, args map[string]any) {
	t.mu.RLock()
	sink := t.sink
	t.mu.RUnlock()
	if sink == nil {
		return
	}
	ev, err := plain(TelemetryEvent{OwnerID: ownerID, Type: eventType, Args: args, At: t.now()})
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Dropping telemetry event.", "owner", ownerID, "event", eventType, "error", err)
		return
	}
	sink(ownerID, ev)
}
