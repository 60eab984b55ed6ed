package registry

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/vk/botgraph/internal/graph"
)

// Module is the interface that all node libraries implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds every registered node type for a single application
// instance. Descriptors live in an arena slice and are addressed through
// a tag index.
type Registry struct {
	arena []Descriptor
	index map[string]int
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a node type. It panics on duplicate tags and on descriptors
// that do not satisfy their kind.
func (r *Registry) Register(d Descriptor) {
	if _, exists := r.index[d.Type]; exists {
		panic(fmt.Sprintf("node type '%s' already registered", d.Type))
	}
	if err := validateDescriptor(&d); err != nil {
		panic(fmt.Sprintf("invalid node type '%s': %v", d.Type, err))
	}
	slog.Debug("Registering node type.", "type", d.Type, "kind", d.Kind)
	r.index[d.Type] = len(r.arena)
	r.arena = append(r.arena, d)
}

// RegisterModules registers every module in order.
func (r *Registry) RegisterModules(mods ...Module) {
	for _, m := range mods {
		m.Register(r)
	}
}

// Lookup returns the descriptor for a type tag.
func (r *Registry) Lookup(tag string) (*Descriptor, bool) {
	i, ok := r.index[tag]
	if !ok {
		return nil, false
	}
	return &r.arena[i], true
}

// PinKind implements graph.PinResolver.
func (r *Registry) PinKind(nodeType, pinID string, dir graph.Direction) (graph.PinKind, bool) {
	d, ok := r.Lookup(nodeType)
	if !ok {
		return 0, false
	}
	p, ok := d.Pin(pinID, dir)
	if !ok {
		return 0, false
	}
	return p.Kind, true
}

// Types returns every registered type tag, sorted.
func (r *Registry) Types() []string {
	tags := make([]string, 0, len(r.arena))
	for _, d := range r.arena {
		tags = append(tags, d.Type)
	}
	slices.Sort(tags)
	return tags
}

// Len returns the number of registered node types.
func (r *Registry) Len() int { return len(r.arena) }
