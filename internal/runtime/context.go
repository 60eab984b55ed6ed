package runtime

import "maps"

// Context is the mutable state of one graph run. It is owned by a single
// engine invocation and must not be shared between runs.
type Context struct {
	OwnerID   string
	GraphID   string
	GraphName string
	EventType string

	// Event holds the fields extracted for EventType, see ExtractEvent.
	Event map[string]any
	// Args are the raw event arguments, recorded as trace metadata.
	Args map[string]any

	Bot   Capabilities
	World World

	Variables map[string]any
	Intents   *Intents

	// Respond is set for api_call runs and delivers the response payload to
	// the caller.
	Respond func(any)
}

// NewContext builds a run context for one event.
func NewContext(ownerID, eventType string, args map[string]any, bot Capabilities) *Context {
	return &Context{
		OwnerID:   ownerID,
		EventType: eventType,
		Event:     ExtractEvent(eventType, args),
		Args:      args,
		Bot:       bot,
		Variables: make(map[string]any),
		Intents:   &Intents{},
	}
}

// User returns the acting user of the event, if the event carries one.
func (c *Context) User() string {
	if c == nil {
		return ""
	}
	for _, k := range []string{"user", "username"} {
		if s, ok := c.Event[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Snapshot returns a read-only copy of the context suitable for debug
// observers and breakpoint conditions.
func (c *Context) Snapshot() map[string]any {
	return map[string]any{
		"ownerId":   c.OwnerID,
		"graphId":   c.GraphID,
		"graphName": c.GraphName,
		"eventType": c.EventType,
		"event":     maps.Clone(c.Event),
		"variables": maps.Clone(c.Variables),
		"world":     c.World.Map(),
	}
}
