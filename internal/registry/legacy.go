package registry

// legacyAdvance is the closed fallback table for legacy nodes: the single
// exec output auto-traversed after the node has performed.
var legacyAdvance = map[string]string{
	"legacy:chat": "exec",
	"legacy:log":  "exec",
}

// LegacyAdvancePin returns the exec output a legacy node type advances
// through.
func LegacyAdvancePin(tag string) (string, bool) {
	pin, ok := legacyAdvance[tag]
	return pin, ok
}
