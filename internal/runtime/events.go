package runtime

import "slices"

// Event types understood by the interpreter.
const (
	EventChat         = "chat"
	EventPrivate      = "private"
	EventGlobal       = "global"
	EventClan         = "clan"
	EventRawMessage   = "raw_message"
	EventPlayerJoined = "player_joined"
	EventPlayerLeft   = "player_left"
	EventBotDied      = "bot_died"
	EventHealth       = "health"
	EventTick         = "tick"
	EventEntitySpawn  = "entity_spawn"
	EventEntityMoved  = "entity_moved"
	EventEntityGone   = "entity_gone"
	EventCommand      = "command"
	EventAPICall      = "api_call"
)

// StartPrefix prefixes the type tag of a start node; the start node for
// event type T has type StartPrefix+T.
const StartPrefix = "event:"

var chatFields = []string{"username", "message", "chatType"}

var eventFields = map[string][]string{
	EventChat:         chatFields,
	EventPrivate:      chatFields,
	EventGlobal:       chatFields,
	EventClan:         chatFields,
	EventRawMessage:   {"rawText", "json"},
	EventPlayerJoined: {"username", "user"},
	EventPlayerLeft:   {"username", "user"},
	EventBotDied:      {"reason"},
	EventHealth:       {"health", "food", "saturation"},
	EventTick:         {"time", "day"},
	EventEntitySpawn:  {"entity"},
	EventEntityMoved:  {"entity"},
	EventEntityGone:   {"entity"},
	EventCommand:      {"commandName", "user", "args", "typeChat", "success"},
	EventAPICall:      {"graphName", "data"},
}

// EventTypes returns every known event type, sorted.
func EventTypes() []string {
	types := make([]string, 0, len(eventFields))
	for t := range eventFields {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// EventFields returns the field names injected for an event type.
func EventFields(eventType string) ([]string, bool) {
	f, ok := eventFields[eventType]
	return f, ok
}

// ExtractEvent picks the fields of eventType out of args. Unknown event
// types and missing fields produce no entries.
func ExtractEvent(eventType string, args map[string]any) map[string]any {
	out := make(map[string]any)
	for _, f := range eventFields[eventType] {
		if v, ok := args[f]; ok {
			out[f] = v
		}
	}
	return out
}

// StartNodeType returns the start node tag for an event type. Command-style
// runs without an event type start at the command node.
func StartNodeType(eventType string) string {
	if eventType == "" {
		return StartPrefix + EventCommand
	}
	return StartPrefix + eventType
}
