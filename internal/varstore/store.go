package varstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/runtime"
)

type key struct {
	owner string
	graph string
}

// entry is one variable mapping. lock is a one-slot semaphore so waiters
// can give up when their context ends.
type entry struct {
	lock chan struct{}
	vars map[string]any
}

func newEntry(vars map[string]any) *entry {
	return &entry{lock: make(chan struct{}, 1), vars: vars}
}

func (e *entry) acquire(ctx context.Context) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) release() { <-e.lock }

// Store holds the persistent variables of every loaded graph.
type Store struct {
	entries sync.Map // key -> *entry
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Seed creates the entry of a graph from its declared defaults. An existing
// entry is kept.
func (s *Store) Seed(ownerID, graphID string, decls []graph.Variable) {
	s.entries.LoadOrStore(key{ownerID, graphID}, newEntry(runtime.DefaultVariables(decls)))
}

func (s *Store) entry(ownerID, graphID string) *entry {
	e, _ := s.entries.LoadOrStore(key{ownerID, graphID}, newEntry(map[string]any{}))
	return e.(*entry)
}

// Get returns a copy of a graph's current variables.
func (s *Store) Get(ctx context.Context, ownerID, graphID string) (map[string]any, error) {
	v, ok := s.entries.Load(key{ownerID, graphID})
	if !ok {
		return map[string]any{}, nil
	}
	e := v.(*entry)
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()
	return maps.Clone(e.vars), nil
}

// Update hands fn a copy of a graph's variables while holding the graph's
// entry. When fn succeeds, the mapping it returns replaces the stored one.
func (s *Store) Update(ctx context.Context, ownerID, graphID string, fn func(vars map[string]any) (map[string]any, error)) error {
	e := s.entry(ownerID, graphID)
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	next, err := fn(maps.Clone(e.vars))
	if err != nil {
		return err
	}
	if next == nil {
		next = map[string]any{}
	}
	e.vars = maps.Clone(next)
	return nil
}

// Drop removes one graph's entry.
func (s *Store) Drop(ownerID, graphID string) {
	s.entries.Delete(key{ownerID, graphID})
}

// DropOwner removes every entry of an owner.
func (s *Store) DropOwner(ownerID string) {
	s.entries.Range(func(k, _ any) bool {
		if k.(key).owner == ownerID {
			s.entries.Delete(k)
		}
		return true
	})
}

// Graphs returns the graph ids with an entry for the owner.
func (s *Store) Graphs(ownerID string) []string {
	var out []string
	s.entries.Range(func(k, _ any) bool {
		if kk := k.(key); kk.owner == ownerID {
			out = append(out, kk.graph)
		}
		return true
	})
	slices.Sort(out)
	return out
}
